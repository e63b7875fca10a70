package field

import (
	"fmt"
)

// A Type represents a semantic column type. Structurally identical database
// types map to the same Type regardless of how the catalog spells them
// (e.g. int8/bigint, bool/boolean).
type Type uint8

// List of field types.
const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeDecimal
	TypeString
	TypeText
	TypeEnum
	TypeBytes
	TypeUUID
	TypeJSON
	TypeTime
	TypeTimestamp
	TypeDate
	endTypes
)

var typeNames = [...]string{
	TypeInvalid:   "invalid",
	TypeBool:      "bool",
	TypeInt16:     "int16",
	TypeInt32:     "int32",
	TypeInt64:     "int64",
	TypeFloat32:   "float32",
	TypeFloat64:   "float64",
	TypeDecimal:   "decimal",
	TypeString:    "string",
	TypeText:      "text",
	TypeEnum:      "enum",
	TypeBytes:     "bytes",
	TypeUUID:      "uuid",
	TypeJSON:      "json",
	TypeTime:      "time",
	TypeTimestamp: "timestamp",
	TypeDate:      "date",
}

// String returns the string representation of a type.
func (t Type) String() string {
	if t < endTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("invalid(%d)", t)
}

// Valid reports if the given type if known type.
func (t Type) Valid() bool {
	return t > TypeInvalid && t < endTypes
}

// Integer reports whether the type is an integer type.
func (t Type) Integer() bool {
	switch t {
	case TypeInt16, TypeInt32, TypeInt64:
		return true
	default:
		return false
	}
}

// Float reports whether the type is a float type.
func (t Type) Float() bool {
	return t == TypeFloat32 || t == TypeFloat64
}

// Numeric reports whether the type is a numeric type.
func (t Type) Numeric() bool {
	return t.Integer() || t.Float() || t == TypeDecimal
}

// Textual reports whether the type is a text-family type.
func (t Type) Textual() bool {
	switch t {
	case TypeString, TypeText, TypeEnum:
		return true
	default:
		return false
	}
}

// Temporal reports whether the type is a timestamp-family type.
func (t Type) Temporal() bool {
	switch t {
	case TypeTime, TypeTimestamp, TypeDate:
		return true
	default:
		return false
	}
}

// TypeInfo holds a semantic type together with its parameters.
type TypeInfo struct {
	Type      Type
	Size      int      // varchar/char length. 0 means unbounded.
	Precision int      // numeric precision.
	Scale     int      // numeric scale.
	Enums     []string // enum values, ordered.
}

// String returns the string representation of the type info.
func (t TypeInfo) String() string {
	switch {
	case t.Type == TypeString && t.Size > 0:
		return fmt.Sprintf("string(%d)", t.Size)
	case t.Type == TypeDecimal && t.Precision > 0:
		return fmt.Sprintf("decimal(%d,%d)", t.Precision, t.Scale)
	default:
		return t.Type.String()
	}
}

// A Descriptor for field configuration. Descriptors are the input the
// migration engine builds table descriptors from.
type Descriptor struct {
	Name      string   // field name.
	Info      TypeInfo // type information.
	Nullable  bool     // nullable field in the database.
	Unique    bool     // unique index on the field.
	Increment bool     // auto increment (identity) field.
	Default   any      // default value, literal or SQL expression.
	Comment   string   // field comment.
}

// Expr is a raw SQL default expression (e.g. "now()", "gen_random_uuid()").
type Expr string

type builder struct {
	desc *Descriptor
}

// Descriptor implements the vehicle for all builders below.
func (b builder) Descriptor() *Descriptor { return b.desc }

// String returns a new Descriptor builder for a bounded varchar field.
func String(name string) *stringBuilder {
	return &stringBuilder{builder{&Descriptor{Name: name, Info: TypeInfo{Type: TypeString}}}}
}

// Text returns a new Descriptor builder for an unbounded text field.
func Text(name string) *stringBuilder {
	return &stringBuilder{builder{&Descriptor{Name: name, Info: TypeInfo{Type: TypeText}}}}
}

type stringBuilder struct{ builder }

// MaxLen sets the varchar length of the field. It converts a text field
// into a bounded varchar.
func (b *stringBuilder) MaxLen(i int) *stringBuilder {
	b.desc.Info.Type = TypeString
	b.desc.Info.Size = i
	return b
}

// Unique makes the field unique within its table.
func (b *stringBuilder) Unique() *stringBuilder {
	b.desc.Unique = true
	return b
}

// Optional makes the field nullable in the database.
func (b *stringBuilder) Optional() *stringBuilder {
	b.desc.Nullable = true
	return b
}

// Default sets the default value of the field.
func (b *stringBuilder) Default(s string) *stringBuilder {
	b.desc.Default = s
	return b
}

// Comment sets the database comment of the field.
func (b *stringBuilder) Comment(c string) *stringBuilder {
	b.desc.Comment = c
	return b
}

// Int16 returns a new Descriptor builder for a smallint field.
func Int16(name string) *intBuilder {
	return &intBuilder{builder{&Descriptor{Name: name, Info: TypeInfo{Type: TypeInt16}}}}
}

// Int32 returns a new Descriptor builder for an integer field.
func Int32(name string) *intBuilder {
	return &intBuilder{builder{&Descriptor{Name: name, Info: TypeInfo{Type: TypeInt32}}}}
}

// Int64 returns a new Descriptor builder for a bigint field.
func Int64(name string) *intBuilder {
	return &intBuilder{builder{&Descriptor{Name: name, Info: TypeInfo{Type: TypeInt64}}}}
}

// Int is an alias for Int64. PostgreSQL integer primary keys default to bigint.
func Int(name string) *intBuilder {
	return Int64(name)
}

type intBuilder struct{ builder }

// Increment makes the field an identity (auto-increment) column.
func (b *intBuilder) Increment() *intBuilder {
	b.desc.Increment = true
	return b
}

// Unique makes the field unique within its table.
func (b *intBuilder) Unique() *intBuilder {
	b.desc.Unique = true
	return b
}

// Optional makes the field nullable in the database.
func (b *intBuilder) Optional() *intBuilder {
	b.desc.Nullable = true
	return b
}

// Default sets the default value of the field.
func (b *intBuilder) Default(i int64) *intBuilder {
	b.desc.Default = i
	return b
}

// Comment sets the database comment of the field.
func (b *intBuilder) Comment(c string) *intBuilder {
	b.desc.Comment = c
	return b
}

// Float32 returns a new Descriptor builder for a real field.
func Float32(name string) *floatBuilder {
	return &floatBuilder{builder{&Descriptor{Name: name, Info: TypeInfo{Type: TypeFloat32}}}}
}

// Float64 returns a new Descriptor builder for a double precision field.
func Float64(name string) *floatBuilder {
	return &floatBuilder{builder{&Descriptor{Name: name, Info: TypeInfo{Type: TypeFloat64}}}}
}

// Decimal returns a new Descriptor builder for a numeric(precision, scale) field.
func Decimal(name string, precision, scale int) *floatBuilder {
	return &floatBuilder{builder{&Descriptor{
		Name: name,
		Info: TypeInfo{Type: TypeDecimal, Precision: precision, Scale: scale},
	}}}
}

type floatBuilder struct{ builder }

// Optional makes the field nullable in the database.
func (b *floatBuilder) Optional() *floatBuilder {
	b.desc.Nullable = true
	return b
}

// Default sets the default value of the field.
func (b *floatBuilder) Default(f float64) *floatBuilder {
	b.desc.Default = f
	return b
}

// Comment sets the database comment of the field.
func (b *floatBuilder) Comment(c string) *floatBuilder {
	b.desc.Comment = c
	return b
}

// Bool returns a new Descriptor builder for a boolean field.
func Bool(name string) *boolBuilder {
	return &boolBuilder{builder{&Descriptor{Name: name, Info: TypeInfo{Type: TypeBool}}}}
}

type boolBuilder struct{ builder }

// Optional makes the field nullable in the database.
func (b *boolBuilder) Optional() *boolBuilder {
	b.desc.Nullable = true
	return b
}

// Default sets the default value of the field.
func (b *boolBuilder) Default(v bool) *boolBuilder {
	b.desc.Default = v
	return b
}

// Time returns a new Descriptor builder for a timestamptz field.
func Time(name string) *timeBuilder {
	return &timeBuilder{builder{&Descriptor{Name: name, Info: TypeInfo{Type: TypeTime}}}}
}

// Timestamp returns a new Descriptor builder for a timestamp (without time zone) field.
func Timestamp(name string) *timeBuilder {
	return &timeBuilder{builder{&Descriptor{Name: name, Info: TypeInfo{Type: TypeTimestamp}}}}
}

// Date returns a new Descriptor builder for a date field.
func Date(name string) *timeBuilder {
	return &timeBuilder{builder{&Descriptor{Name: name, Info: TypeInfo{Type: TypeDate}}}}
}

type timeBuilder struct{ builder }

// Optional makes the field nullable in the database.
func (b *timeBuilder) Optional() *timeBuilder {
	b.desc.Nullable = true
	return b
}

// DefaultNow sets "now()" as the default expression of the field.
func (b *timeBuilder) DefaultNow() *timeBuilder {
	b.desc.Default = Expr("now()")
	return b
}

// UUID returns a new Descriptor builder for a uuid field.
func UUID(name string) *uuidBuilder {
	return &uuidBuilder{builder{&Descriptor{Name: name, Info: TypeInfo{Type: TypeUUID}}}}
}

type uuidBuilder struct{ builder }

// Unique makes the field unique within its table.
func (b *uuidBuilder) Unique() *uuidBuilder {
	b.desc.Unique = true
	return b
}

// Optional makes the field nullable in the database.
func (b *uuidBuilder) Optional() *uuidBuilder {
	b.desc.Nullable = true
	return b
}

// DefaultRandom sets "gen_random_uuid()" as the default expression of the field.
func (b *uuidBuilder) DefaultRandom() *uuidBuilder {
	b.desc.Default = Expr("gen_random_uuid()")
	return b
}

// Enum returns a new Descriptor builder for an enum field rendered as a
// checked text column.
func Enum(name string) *enumBuilder {
	return &enumBuilder{builder{&Descriptor{Name: name, Info: TypeInfo{Type: TypeEnum}}}}
}

type enumBuilder struct{ builder }

// Values adds the given values to the enum.
func (b *enumBuilder) Values(values ...string) *enumBuilder {
	b.desc.Info.Enums = append(b.desc.Info.Enums, values...)
	return b
}

// Optional makes the field nullable in the database.
func (b *enumBuilder) Optional() *enumBuilder {
	b.desc.Nullable = true
	return b
}

// Default sets the default value of the field.
func (b *enumBuilder) Default(v string) *enumBuilder {
	b.desc.Default = v
	return b
}

// Bytes returns a new Descriptor builder for a bytea field.
func Bytes(name string) *bytesBuilder {
	return &bytesBuilder{builder{&Descriptor{Name: name, Info: TypeInfo{Type: TypeBytes}}}}
}

type bytesBuilder struct{ builder }

// Optional makes the field nullable in the database.
func (b *bytesBuilder) Optional() *bytesBuilder {
	b.desc.Nullable = true
	return b
}

// JSON returns a new Descriptor builder for a jsonb field.
func JSON(name string) *jsonBuilder {
	return &jsonBuilder{builder{&Descriptor{Name: name, Info: TypeInfo{Type: TypeJSON}}}}
}

type jsonBuilder struct{ builder }

// Optional makes the field nullable in the database.
func (b *jsonBuilder) Optional() *jsonBuilder {
	b.desc.Nullable = true
	return b
}
