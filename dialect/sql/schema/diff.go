package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/syssam/pgorm"
)

// A ChangeKind denotes the kind of schema change, and doubles as a bitmask
// for filtering change kinds out of a diff.
type ChangeKind uint

// List of change kinds.
const (
	NoChange          ChangeKind = 0
	ChangeCreateTable ChangeKind = 1 << (iota - 1)
	ChangeDropTable
	ChangeAddColumn
	ChangeModifyColumn
	ChangeDropColumn
	ChangeAddPrimaryKey
	ChangeDropPrimaryKey
	ChangeAddForeignKey
	ChangeDropForeignKey
	ChangeAddIndex
	ChangeDropIndex
	ChangeAddCheck
	ChangeDropCheck
)

// Is reports whether c is match the given change kind.
func (k ChangeKind) Is(c ChangeKind) bool {
	return k == c || k&c != 0
}

// A Change is a single schema change produced by the diff engine. Concrete
// types carry the minimal descriptors needed to emit DDL and, where the
// operation is reversible, to reverse it.
type Change interface {
	// Kind returns the change kind for filtering.
	Kind() ChangeKind
	// TableName returns the name of the table the change applies to.
	TableName() string
	// Destructive reports whether applying the change can discard data.
	Destructive() bool
	// String returns a short human-readable description.
	String() string
}

// CreateTable creates a new table with its columns, primary key and check
// constraints. Indexes and foreign keys are separate changes.
type CreateTable struct {
	T *Table
}

func (c *CreateTable) Kind() ChangeKind { return ChangeCreateTable }
func (c *CreateTable) TableName() string { return c.T.Name }
func (c *CreateTable) Destructive() bool { return false }
func (c *CreateTable) String() string { return fmt.Sprintf("create table %q", c.T.Name) }

// DropTable drops an existing table and all its data.
type DropTable struct {
	T *Table
}

func (c *DropTable) Kind() ChangeKind { return ChangeDropTable }
func (c *DropTable) TableName() string { return c.T.Name }
func (c *DropTable) Destructive() bool { return true }
func (c *DropTable) String() string { return fmt.Sprintf("drop table %q", c.T.Name) }

// AddColumn adds a new column to an existing table.
type AddColumn struct {
	T *Table
	C *Column
}

func (c *AddColumn) Kind() ChangeKind { return ChangeAddColumn }
func (c *AddColumn) TableName() string { return c.T.Name }
func (c *AddColumn) Destructive() bool { return false }
func (c *AddColumn) String() string {
	return fmt.Sprintf("add column %q to table %q", c.C.Name, c.T.Name)
}

// DropColumn drops a column and its data from an existing table.
type DropColumn struct {
	T *Table
	C *Column
}

func (c *DropColumn) Kind() ChangeKind { return ChangeDropColumn }
func (c *DropColumn) TableName() string { return c.T.Name }
func (c *DropColumn) Destructive() bool { return true }
func (c *DropColumn) String() string {
	return fmt.Sprintf("drop column %q from table %q", c.C.Name, c.T.Name)
}

// ModifyColumn alters the type, nullability or default of an existing
// column. From and To carry the full before/after descriptors; DDL emission
// splits the change into narrow ALTER statements.
type ModifyColumn struct {
	T    *Table
	From *Column
	To   *Column
}

func (c *ModifyColumn) Kind() ChangeKind { return ChangeModifyColumn }
func (c *ModifyColumn) TableName() string { return c.T.Name }

// Destructive reports whether the type change may lose data. A change that
// is ambiguous between widening and narrowing is classified destructive
// rather than guessing intent.
func (c *ModifyColumn) Destructive() bool {
	if typeChanged(c.From, c.To) {
		return !c.From.ConvertibleTo(c.To)
	}
	return false
}

func (c *ModifyColumn) String() string {
	return fmt.Sprintf("modify column %q of table %q", c.To.Name, c.T.Name)
}

// AddPrimaryKey adds a primary-key constraint to an existing table.
type AddPrimaryKey struct {
	T       *Table
	Columns []*Column
}

func (c *AddPrimaryKey) Kind() ChangeKind { return ChangeAddPrimaryKey }
func (c *AddPrimaryKey) TableName() string { return c.T.Name }
func (c *AddPrimaryKey) Destructive() bool { return false }
func (c *AddPrimaryKey) String() string {
	return fmt.Sprintf("add primary key to table %q", c.T.Name)
}

// DropPrimaryKey drops the primary-key constraint of an existing table.
type DropPrimaryKey struct {
	T *Table
}

func (c *DropPrimaryKey) Kind() ChangeKind { return ChangeDropPrimaryKey }
func (c *DropPrimaryKey) TableName() string { return c.T.Name }
func (c *DropPrimaryKey) Destructive() bool { return false }
func (c *DropPrimaryKey) String() string {
	return fmt.Sprintf("drop primary key of table %q", c.T.Name)
}

// AddForeignKey adds a foreign-key constraint to a table.
type AddForeignKey struct {
	T *Table
	F *ForeignKey
}

func (c *AddForeignKey) Kind() ChangeKind { return ChangeAddForeignKey }
func (c *AddForeignKey) TableName() string { return c.T.Name }
func (c *AddForeignKey) Destructive() bool { return false }
func (c *AddForeignKey) String() string {
	return fmt.Sprintf("add foreign key %q to table %q", c.F.Symbol, c.T.Name)
}

// DropForeignKey drops a foreign-key constraint from a table.
type DropForeignKey struct {
	T *Table
	F *ForeignKey
}

func (c *DropForeignKey) Kind() ChangeKind { return ChangeDropForeignKey }
func (c *DropForeignKey) TableName() string { return c.T.Name }
func (c *DropForeignKey) Destructive() bool { return false }
func (c *DropForeignKey) String() string {
	return fmt.Sprintf("drop foreign key %q from table %q", c.F.Symbol, c.T.Name)
}

// AddIndex creates an index on a table.
type AddIndex struct {
	T *Table
	I *Index
}

func (c *AddIndex) Kind() ChangeKind { return ChangeAddIndex }
func (c *AddIndex) TableName() string { return c.T.Name }
func (c *AddIndex) Destructive() bool { return false }
func (c *AddIndex) String() string {
	return fmt.Sprintf("create index %q on table %q", c.I.Name, c.T.Name)
}

// DropIndex drops an index from a table.
type DropIndex struct {
	T *Table
	I *Index
}

func (c *DropIndex) Kind() ChangeKind { return ChangeDropIndex }
func (c *DropIndex) TableName() string { return c.T.Name }
func (c *DropIndex) Destructive() bool { return false }
func (c *DropIndex) String() string {
	return fmt.Sprintf("drop index %q on table %q", c.I.Name, c.T.Name)
}

// AddCheck adds a check constraint to a table.
type AddCheck struct {
	T *Table
	K *Check
}

func (c *AddCheck) Kind() ChangeKind { return ChangeAddCheck }
func (c *AddCheck) TableName() string { return c.T.Name }
func (c *AddCheck) Destructive() bool { return false }
func (c *AddCheck) String() string {
	return fmt.Sprintf("add check %q to table %q", c.K.Name, c.T.Name)
}

// DropCheck drops a check constraint from a table.
type DropCheck struct {
	T *Table
	K *Check
}

func (c *DropCheck) Kind() ChangeKind { return ChangeDropCheck }
func (c *DropCheck) TableName() string { return c.T.Name }
func (c *DropCheck) Destructive() bool { return false }
func (c *DropCheck) String() string {
	return fmt.Sprintf("drop check %q from table %q", c.K.Name, c.T.Name)
}

// Differ computes the set of changes turning current into desired.
type Differ interface {
	Diff(current, desired *Schema) ([]Change, error)
}

// DiffFunc allows using ordinary functions as differs.
type DiffFunc func(current, desired *Schema) ([]Change, error)

// Diff calls f(current, desired).
func (f DiffFunc) Diff(current, desired *Schema) ([]Change, error) {
	return f(current, desired)
}

// A DiffHook wraps a Differ with additional behavior, in the spirit of
// middleware.
type DiffHook func(Differ) Differ

// Diff returns the changes that turn the current schema into the desired
// one. Changes are grouped per table in deterministic (sorted) order;
// execution ordering and destructive classification are the planner's job.
// Diffing a schema against itself yields no changes.
func Diff(current, desired *Schema) ([]Change, error) {
	var changes []Change
	// Dropped tables first, sorted for determinism.
	dropped := make([]string, 0)
	for _, t := range current.Tables {
		if !desired.HasTable(t.Name) {
			dropped = append(dropped, t.Name)
		}
	}
	sort.Strings(dropped)
	for _, name := range dropped {
		t, err := current.Table(name)
		if err != nil {
			return nil, err
		}
		changes = append(changes, &DropTable{T: t})
	}
	for _, dt := range desired.Tables {
		ct, err := current.Table(dt.Name)
		switch {
		case pgorm.IsNotFound(err):
			changes = append(changes, &CreateTable{T: dt})
			for _, idx := range dt.Indexes {
				changes = append(changes, &AddIndex{T: dt, I: idx})
			}
			for _, fk := range dt.ForeignKeys {
				changes = append(changes, &AddForeignKey{T: dt, F: fk})
			}
		case err != nil:
			return nil, err
		default:
			tc, err := diffTable(ct, dt)
			if err != nil {
				return nil, err
			}
			changes = append(changes, tc...)
		}
	}
	return changes, nil
}

// diffTable computes the changes for a table that exists on both sides.
func diffTable(current, desired *Table) ([]Change, error) {
	var changes []Change
	// Column diff by name.
	for _, c := range current.Columns {
		if !desired.HasColumn(c.Name) {
			changes = append(changes, &DropColumn{T: current, C: c})
		}
	}
	for _, dc := range desired.Columns {
		cc, ok := current.Column(dc.Name)
		if !ok {
			changes = append(changes, &AddColumn{T: desired, C: dc})
			continue
		}
		if columnChanged(cc, dc) {
			changes = append(changes, &ModifyColumn{T: desired, From: cc, To: dc})
		}
	}
	// Primary key, compared by covered columns.
	switch cpk, dpk := columnNames(current.PrimaryKey), columnNames(desired.PrimaryKey); {
	case len(cpk) == 0 && len(dpk) > 0:
		changes = append(changes, &AddPrimaryKey{T: desired, Columns: desired.PrimaryKey})
	case len(cpk) > 0 && len(dpk) == 0:
		changes = append(changes, &DropPrimaryKey{T: current})
	case !equalNames(cpk, dpk):
		changes = append(changes,
			&DropPrimaryKey{T: current},
			&AddPrimaryKey{T: desired, Columns: desired.PrimaryKey},
		)
	}
	// Foreign keys, compared structurally. Autogenerated constraint names
	// differ between runs and are ignored.
	for _, cfk := range current.ForeignKeys {
		if findForeignKey(desired.ForeignKeys, cfk) == nil {
			changes = append(changes, &DropForeignKey{T: current, F: cfk})
		}
	}
	for _, dfk := range desired.ForeignKeys {
		if findForeignKey(current.ForeignKeys, dfk) == nil {
			changes = append(changes, &AddForeignKey{T: desired, F: dfk})
		}
	}
	// Indexes, compared structurally.
	for _, cidx := range current.Indexes {
		if findIndex(desired.Indexes, cidx) == nil {
			changes = append(changes, &DropIndex{T: current, I: cidx})
		}
	}
	for _, didx := range desired.Indexes {
		if findIndex(current.Indexes, didx) == nil {
			changes = append(changes, &AddIndex{T: desired, I: didx})
		}
	}
	// Check constraints, compared by normalized expression.
	for _, cck := range current.Checks {
		if findCheck(desired.Checks, cck) == nil {
			changes = append(changes, &DropCheck{T: current, K: cck})
		}
	}
	for _, dck := range desired.Checks {
		if findCheck(current.Checks, dck) == nil {
			changes = append(changes, &AddCheck{T: desired, K: dck})
		}
	}
	return changes, nil
}

// columnChanged reports whether two columns with the same name differ in a
// way that requires an ALTER.
func columnChanged(current, desired *Column) bool {
	return typeChanged(current, desired) ||
		current.Nullable != desired.Nullable ||
		current.Unique != desired.Unique ||
		current.Increment != desired.Increment ||
		defaultChanged(current, desired)
}

func typeChanged(current, desired *Column) bool {
	if current.Type != desired.Type {
		return true
	}
	if current.Size != desired.Size || current.Precision != desired.Precision || current.Scale != desired.Scale {
		return true
	}
	return !equalNames(current.Enums, desired.Enums)
}

// defaultChanged compares default expressions. Identity columns own their
// default (a sequence) and are excluded from the comparison.
func defaultChanged(current, desired *Column) bool {
	if current.Increment || desired.Increment {
		return false
	}
	return normalizeDefault(current.defaultExpr()) != normalizeDefault(desired.defaultExpr())
}

// normalizeDefault strips the cast suffix and outer quotes the catalog adds
// to reported defaults (e.g. 'pending'::text).
func normalizeDefault(s string) string {
	if i := strings.Index(s, "::"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = s[1 : len(s)-1]
	}
	return s
}

// findForeignKey returns the structurally equal foreign key in fks, if any.
func findForeignKey(fks []*ForeignKey, fk *ForeignKey) *ForeignKey {
	for _, candidate := range fks {
		if equalNames(columnNames(candidate.Columns), columnNames(fk.Columns)) &&
			candidate.RefTable.Name == fk.RefTable.Name &&
			equalNames(columnNames(candidate.RefColumns), columnNames(fk.RefColumns)) &&
			refOption(candidate.OnDelete) == refOption(fk.OnDelete) &&
			refOption(candidate.OnUpdate) == refOption(fk.OnUpdate) {
			return candidate
		}
	}
	return nil
}

// findIndex returns the structurally equal index in idxs, if any.
func findIndex(idxs []*Index, idx *Index) *Index {
	for _, candidate := range idxs {
		if candidate.Unique == idx.Unique &&
			equalNames(columnNames(candidate.Columns), columnNames(idx.Columns)) &&
			normalizePredicate(candidate.Predicate) == normalizePredicate(idx.Predicate) {
			return candidate
		}
	}
	return nil
}

// findCheck returns the check with an equal normalized expression, if any.
func findCheck(checks []*Check, ck *Check) *Check {
	for _, candidate := range checks {
		if normalizePredicate(candidate.Expr) == normalizePredicate(ck.Expr) {
			return candidate
		}
	}
	return nil
}

// normalizePredicate folds whitespace and case so that catalog-rendered
// expressions compare equal to user-declared ones in the common cases.
func normalizePredicate(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "(", "")
	s = strings.ReplaceAll(s, ")", "")
	s = strings.ReplaceAll(s, `"`, "")
	return s
}

// refOption treats an empty reference option as NO ACTION, matching the
// catalog's reporting of unspecified actions.
func refOption(o ReferenceOption) ReferenceOption {
	if o == "" {
		return NoAction
	}
	return o
}

func columnNames(cols []*Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// filterChanges returns a DiffHook that drops the given change kinds from
// the diff output.
func filterChanges(skip ChangeKind) DiffHook {
	return func(next Differ) Differ {
		return DiffFunc(func(current, desired *Schema) ([]Change, error) {
			changes, err := next.Diff(current, desired)
			if err != nil {
				return nil, err
			}
			kept := changes[:0]
			for _, c := range changes {
				if !skip.Is(c.Kind()) {
					kept = append(kept, c)
				}
			}
			return kept, nil
		})
	}
}
