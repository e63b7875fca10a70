package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/pgorm"
	"github.com/syssam/pgorm/schema/field"
)

// Schema is an immutable, ordered collection of table descriptors with
// unique names. It represents either the desired state (built from declared
// models) or the actual state (built by the inspector); both sides produce
// the same representation so they can be diffed.
type Schema struct {
	Name   string // database schema (namespace), e.g. "public".
	Tables []*Table

	tables map[string]*Table
}

// NewSchema builds a schema from the given tables. It fails if two tables
// share a name, or if any table fails basic structural validation.
func NewSchema(name string, tables ...*Table) (*Schema, error) {
	s := &Schema{Name: name, Tables: tables, tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		if _, ok := s.tables[t.Name]; ok {
			return nil, fmt.Errorf("schema: duplicate table %q", t.Name)
		}
		if err := t.validate(); err != nil {
			return nil, err
		}
		s.tables[t.Name] = t
	}
	return s, nil
}

// Table returns the table descriptor with the given name. It fails with a
// pgorm.NotFoundError if the table does not exist.
func (s *Schema) Table(name string) (*Table, error) {
	if t, ok := s.tables[name]; ok {
		return t, nil
	}
	return nil, pgorm.NewNotFoundError("table", name)
}

// HasTable reports if a table with the given name exists in the schema.
func (s *Schema) HasTable(name string) bool {
	_, ok := s.tables[name]
	return ok
}

// Fingerprint returns a stable digest of the schema's structure. Two schemas
// with structurally identical descriptors produce the same fingerprint.
func (s *Schema) Fingerprint() (string, error) {
	type fkProj struct {
		Columns    []string
		RefTable   string
		RefColumns []string
		OnUpdate   string
		OnDelete   string
	}
	type idxProj struct {
		Columns   []string
		Unique    bool
		Predicate string
	}
	type colProj struct {
		Name      string
		Type      uint8
		Size      int
		Precision int
		Scale     int
		Enums     []string
		Nullable  bool
		Unique    bool
		Increment bool
		Default   string
	}
	type tblProj struct {
		Name        string
		Columns     []colProj
		PrimaryKey  []string
		ForeignKeys []fkProj
		Indexes     []idxProj
		Checks      []string
	}
	proj := make([]tblProj, 0, len(s.Tables))
	for _, t := range s.Tables {
		tp := tblProj{Name: t.Name}
		for _, c := range t.Columns {
			tp.Columns = append(tp.Columns, colProj{
				Name:      c.Name,
				Type:      uint8(c.Type),
				Size:      c.Size,
				Precision: c.Precision,
				Scale:     c.Scale,
				Enums:     c.Enums,
				Nullable:  c.Nullable,
				Unique:    c.Unique,
				Increment: c.Increment,
				Default:   c.defaultExpr(),
			})
		}
		for _, c := range t.PrimaryKey {
			tp.PrimaryKey = append(tp.PrimaryKey, c.Name)
		}
		for _, fk := range t.ForeignKeys {
			p := fkProj{RefTable: fk.RefTable.Name, OnUpdate: string(fk.OnUpdate), OnDelete: string(fk.OnDelete)}
			for _, c := range fk.Columns {
				p.Columns = append(p.Columns, c.Name)
			}
			for _, c := range fk.RefColumns {
				p.RefColumns = append(p.RefColumns, c.Name)
			}
			tp.ForeignKeys = append(tp.ForeignKeys, p)
		}
		for _, idx := range t.Indexes {
			p := idxProj{Unique: idx.Unique, Predicate: idx.Predicate}
			for _, c := range idx.Columns {
				p.Columns = append(p.Columns, c.Name)
			}
			tp.Indexes = append(tp.Indexes, p)
		}
		for _, ck := range t.Checks {
			tp.Checks = append(tp.Checks, ck.Expr)
		}
		proj = append(proj, tp)
	}
	b, err := msgpack.Marshal(proj)
	if err != nil {
		return "", fmt.Errorf("schema: fingerprint: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Table schema definition for SQL dialects.
type Table struct {
	Name        string
	Columns     []*Column
	PrimaryKey  []*Column
	ForeignKeys []*ForeignKey
	Indexes     []*Index
	Checks      []*Check
	Comment     string

	columns map[string]*Column
	// pkName holds the catalog name of the primary-key constraint when the
	// table was introspected. Empty for desired-state tables, in which case
	// the PostgreSQL default "<table>_pkey" is assumed.
	pkName string
	// fks stages introspected foreign keys until all tables of the schema
	// have been read and referenced tables can be linked.
	fks []*inspectedFK
}

// NewTable returns a new table with the given name.
func NewTable(name string) *Table {
	return &Table{Name: name, columns: make(map[string]*Column)}
}

// AddColumn adds a new column to the table.
func (t *Table) AddColumn(c *Column) *Table {
	if t.columns == nil {
		t.columns = make(map[string]*Column)
	}
	t.columns[c.Name] = c
	t.Columns = append(t.Columns, c)
	return t
}

// SetPrimaryKey sets the primary key of the table to the named columns.
// Unknown column names are ignored here and caught by validation.
func (t *Table) SetPrimaryKey(names ...string) *Table {
	t.PrimaryKey = nil
	for _, name := range names {
		if c, ok := t.Column(name); ok {
			t.PrimaryKey = append(t.PrimaryKey, c)
		}
	}
	return t
}

// AddForeignKey adds a foreign key to the table.
func (t *Table) AddForeignKey(fk *ForeignKey) *Table {
	t.ForeignKeys = append(t.ForeignKeys, fk)
	return t
}

// AddIndex creates and adds a new index to the table from the given options.
func (t *Table) AddIndex(name string, unique bool, columns []string) *Table {
	idx := &Index{Name: name, Unique: unique}
	for _, name := range columns {
		if c, ok := t.Column(name); ok {
			idx.Columns = append(idx.Columns, c)
		}
	}
	t.Indexes = append(t.Indexes, idx)
	return t
}

// AddCheck adds a check constraint to the table.
func (t *Table) AddCheck(name, expr string) *Table {
	t.Checks = append(t.Checks, &Check{Name: name, Expr: expr})
	return t
}

// SetComment sets the table comment.
func (t *Table) SetComment(c string) *Table {
	t.Comment = c
	return t
}

// Column returns the column with the given name, if it exists.
func (t *Table) Column(name string) (*Column, bool) {
	if c, ok := t.columns[name]; ok {
		return c, true
	}
	// Columns may be appended directly to the slice.
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// MustColumn returns the column with the given name. It fails with a
// pgorm.NotFoundError if the column does not exist.
func (t *Table) MustColumn(name string) (*Column, error) {
	if c, ok := t.Column(name); ok {
		return c, nil
	}
	return nil, pgorm.NewNotFoundError("column", fmt.Sprintf("%s.%s", t.Name, name))
}

// HasColumn reports if the table has a column with the given name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// Index returns the index with the given name, if it exists.
func (t *Table) Index(name string) (*Index, bool) {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return nil, false
}

// validate checks the internal consistency of the table descriptor.
func (t *Table) validate() error {
	if t.Name == "" {
		return fmt.Errorf("schema: table without a name")
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if _, ok := seen[c.Name]; ok {
			return fmt.Errorf("schema: duplicate column %q in table %q", c.Name, t.Name)
		}
		if !c.Type.Valid() {
			return fmt.Errorf("schema: column %s.%s has invalid type", t.Name, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	for _, c := range t.PrimaryKey {
		if !t.HasColumn(c.Name) {
			return fmt.Errorf("schema: primary key of %q references unknown column %q", t.Name, c.Name)
		}
	}
	for _, fk := range t.ForeignKeys {
		if fk.RefTable == nil {
			return fmt.Errorf("schema: foreign key %q on table %q has no referenced table", fk.Symbol, t.Name)
		}
		if len(fk.Columns) == 0 || len(fk.Columns) != len(fk.RefColumns) {
			return fmt.Errorf("schema: foreign key %q on table %q has mismatched columns", fk.Symbol, t.Name)
		}
		for _, c := range fk.Columns {
			if !t.HasColumn(c.Name) {
				return fmt.Errorf("schema: foreign key %q references unknown column %q", fk.Symbol, c.Name)
			}
		}
	}
	for _, idx := range t.Indexes {
		for _, c := range idx.Columns {
			if !t.HasColumn(c.Name) {
				return fmt.Errorf("schema: index %q references unknown column %q", idx.Name, c.Name)
			}
		}
	}
	return nil
}

// PrimaryKeyName returns the name of the primary-key constraint.
func (t *Table) PrimaryKeyName() string {
	if t.pkName != "" {
		return t.pkName
	}
	return t.Name + "_pkey"
}

// Column schema definition for SQL dialects.
type Column struct {
	Name      string     // column name.
	Type      field.Type // semantic column type.
	Size      int        // varchar length. 0 means unbounded.
	Precision int        // numeric precision.
	Scale     int        // numeric scale.
	Enums     []string   // enum values, ordered.
	Nullable  bool       // null or not null attribute.
	Unique    bool       // unique constraint owned by the column.
	Increment bool       // identity (auto increment) attribute.
	Default   any        // default value: literal, field.Expr or nil.
	Comment   string     // column comment.

	typ string // raw type name as reported by the catalog, when introspected.
	// uniqName holds the catalog name of the unique constraint owned by the
	// column when the table was introspected. Empty for desired-state
	// columns, in which case the PostgreSQL default "<table>_<column>_key"
	// is assumed.
	uniqName string
}

// NewColumn builds a column descriptor from a field descriptor.
func NewColumn(fd *field.Descriptor) *Column {
	return &Column{
		Name:      fd.Name,
		Type:      fd.Info.Type,
		Size:      fd.Info.Size,
		Precision: fd.Info.Precision,
		Scale:     fd.Info.Scale,
		Enums:     fd.Info.Enums,
		Nullable:  fd.Nullable,
		Unique:    fd.Unique,
		Increment: fd.Increment,
		Default:   fd.Default,
		Comment:   fd.Comment,
	}
}

// ConvertibleTo reports whether a column with this descriptor can be
// altered to the destination descriptor without the possibility of losing
// data. Ambiguous conversions report false and are classified destructive
// by the diff engine, never guessed.
func (c *Column) ConvertibleTo(d *Column) bool {
	switch {
	case c.Type == d.Type:
		switch c.Type {
		case field.TypeString:
			// Widening varchar is safe. An unbounded source into a bounded
			// destination may truncate.
			return d.Size == 0 || (c.Size > 0 && c.Size <= d.Size)
		case field.TypeDecimal:
			return d.Precision >= c.Precision && d.Scale >= c.Scale
		case field.TypeEnum:
			return containsAll(d.Enums, c.Enums)
		default:
			return true
		}
	case c.Type.Integer() && d.Type.Integer():
		// int16 -> int32 -> int64 widens.
		return c.Type <= d.Type
	case c.Type == field.TypeFloat32 && d.Type == field.TypeFloat64:
		return true
	case c.Type == field.TypeString && d.Type == field.TypeText:
		return true
	case c.Type == field.TypeEnum && (d.Type == field.TypeText || d.Type == field.TypeString && d.Size == 0):
		return true
	}
	return false
}

func containsAll(haystack, needles []string) bool {
	set := make(map[string]struct{}, len(haystack))
	for _, s := range haystack {
		set[s] = struct{}{}
	}
	for _, s := range needles {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

// defaultExpr renders the default value as a comparable string.
func (c *Column) defaultExpr() string {
	switch v := c.Default.(type) {
	case nil:
		return ""
	case field.Expr:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ReferenceOption for constraint actions.
type ReferenceOption string

// Reference options (actions) specified by ON UPDATE and ON DELETE
// subclauses of the FOREIGN KEY clause.
const (
	NoAction   ReferenceOption = "NO ACTION"
	Restrict   ReferenceOption = "RESTRICT"
	Cascade    ReferenceOption = "CASCADE"
	SetNull    ReferenceOption = "SET NULL"
	SetDefault ReferenceOption = "SET DEFAULT"
)

// ForeignKey definition for creation and reference of a foreign-key
// constraint. Foreign keys are compared structurally by the diff engine;
// the Symbol only names the constraint in DDL.
type ForeignKey struct {
	Symbol     string          // foreign-key constraint name.
	Columns    []*Column       // foreign-key columns on the owning table.
	RefTable   *Table          // referenced table.
	RefColumns []*Column       // referenced columns.
	OnUpdate   ReferenceOption // action on update.
	OnDelete   ReferenceOption // action on delete.
}

// Index definition for table indexes.
type Index struct {
	Name      string    // index name.
	Unique    bool      // uniqueness.
	Columns   []*Column // covered columns, ordered.
	Predicate string    // partial-index predicate, optional.
}

// Check is a check constraint on a table.
type Check struct {
	Name string // constraint name.
	Expr string // boolean expression.
}
