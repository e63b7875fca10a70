package schema

import "fmt"

// A Violation flags a change that deserves review before it is applied.
// Violations are advisory; the destructive gate in Apply is the only hard
// stop.
type Violation struct {
	Change Change
	Reason string
}

func (v *Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Change, v.Reason)
}

type validator struct {
	allowDropTable     bool
	allowDropColumn    bool
	allowDropIndex     bool
	allowNullToNotNull bool
}

// ValidateOption configures change validation.
type ValidateOption func(*validator)

// AllowDropTable suppresses violations for table drops.
func AllowDropTable() ValidateOption {
	return func(v *validator) { v.allowDropTable = true }
}

// AllowDropColumn suppresses violations for column drops.
func AllowDropColumn() ValidateOption {
	return func(v *validator) { v.allowDropColumn = true }
}

// AllowDropIndex suppresses violations for index drops.
func AllowDropIndex() ValidateOption {
	return func(v *validator) { v.allowDropIndex = true }
}

// AllowNullToNotNull suppresses violations for columns changing from
// nullable to not null. The change itself is safe for the schema but fails
// at apply time if existing rows hold nulls.
func AllowNullToNotNull() ValidateOption {
	return func(v *validator) { v.allowNullToNotNull = true }
}

// ValidateChanges reviews a diff and returns the changes a careful operator
// would look at twice: data-discarding drops, narrowing type changes, and
// nullability tightening that can fail on existing rows.
func ValidateChanges(changes []Change, opts ...ValidateOption) []*Violation {
	v := &validator{}
	for _, opt := range opts {
		opt(v)
	}
	var violations []*Violation
	for _, c := range changes {
		switch c := c.(type) {
		case *DropTable:
			if !v.allowDropTable {
				violations = append(violations, &Violation{Change: c, Reason: "dropping the table discards all its rows"})
			}
		case *DropColumn:
			if !v.allowDropColumn {
				violations = append(violations, &Violation{Change: c, Reason: "dropping the column discards its data"})
			}
		case *DropIndex:
			if !v.allowDropIndex {
				violations = append(violations, &Violation{Change: c, Reason: "dropping the index may degrade queries relying on it"})
			}
		case *ModifyColumn:
			if c.Destructive() {
				violations = append(violations, &Violation{
					Change: c,
					Reason: fmt.Sprintf("type change %s to %s may truncate or reject existing values", c.From.Type, c.To.Type),
				})
			}
			if !v.allowNullToNotNull && c.From.Nullable && !c.To.Nullable {
				violations = append(violations, &Violation{Change: c, Reason: "setting NOT NULL fails if existing rows hold nulls"})
			}
		}
	}
	return violations
}
