// Package field provides fluent builders for declaring columns of a desired
// schema, and the semantic type enum the migration engine compares with.
//
// Field names follow database conventions (snake_case):
//
//	field.Int64("user_id")
//	field.String("email").MaxLen(255).Unique()
//	field.Time("created_at").DefaultNow()
//	field.Enum("status").Values("pending", "active", "banned")
//
// Two columns are considered type-equal when their semantic types and type
// parameters match, regardless of the names the catalog reports for them
// (int8 and bigint are both field.TypeInt64).
package field
