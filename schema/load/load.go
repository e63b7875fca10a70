// Package load builds table descriptors from declarative YAML schema files.
// It is the input layer of the migration CLI; programs embedding the engine
// usually build their descriptors in code instead.
package load

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-openapi/inflect"
	"gopkg.in/yaml.v3"

	"github.com/syssam/pgorm/dialect/sql/schema"
	"github.com/syssam/pgorm/schema/field"
)

// File is the top-level document of a schema file.
type File struct {
	Models []*Model `yaml:"models"`
}

// Model declares one table. The table name defaults to the pluralized
// snake-case form of the model name ("OrderItem" becomes "order_items").
type Model struct {
	Name       string   `yaml:"name"`
	Table      string   `yaml:"table"`
	PrimaryKey []string `yaml:"primary_key"`
	Fields     []*Field `yaml:"fields"`
	Indexes    []*Index `yaml:"indexes"`
	Checks     []*Check `yaml:"checks"`
	Comment    string   `yaml:"comment"`
}

// Field declares one column of a model.
type Field struct {
	Name      string   `yaml:"name"`
	Type      string   `yaml:"type"`
	Size      int      `yaml:"size"`
	Precision int      `yaml:"precision"`
	Scale     int      `yaml:"scale"`
	Values    []string `yaml:"values"` // enum values.
	Optional  bool     `yaml:"optional"`
	Unique    bool     `yaml:"unique"`
	Increment bool     `yaml:"increment"`
	Primary   bool     `yaml:"primary"`
	Default   any      `yaml:"default"`
	// DefaultExpr is a raw SQL default (e.g. "now()"). It wins over Default.
	DefaultExpr string `yaml:"default_expr"`
	// References names the target of a foreign key as "table.column".
	References string `yaml:"references"`
	OnDelete   string `yaml:"on_delete"`
	OnUpdate   string `yaml:"on_update"`
	Comment    string `yaml:"comment"`
}

// Index declares an index on a model.
type Index struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
	Where   string   `yaml:"where"`
}

// Check declares a check constraint on a model.
type Check struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

var fieldTypes = map[string]field.Type{
	"bool":      field.TypeBool,
	"int16":     field.TypeInt16,
	"int32":     field.TypeInt32,
	"int64":     field.TypeInt64,
	"int":       field.TypeInt64,
	"float32":   field.TypeFloat32,
	"float64":   field.TypeFloat64,
	"decimal":   field.TypeDecimal,
	"string":    field.TypeString,
	"text":      field.TypeText,
	"enum":      field.TypeEnum,
	"bytes":     field.TypeBytes,
	"uuid":      field.TypeUUID,
	"json":      field.TypeJSON,
	"time":      field.TypeTime,
	"timestamp": field.TypeTimestamp,
	"date":      field.TypeDate,
}

var refActions = map[string]schema.ReferenceOption{
	"no action":   schema.NoAction,
	"restrict":    schema.Restrict,
	"cascade":     schema.Cascade,
	"set null":    schema.SetNull,
	"set default": schema.SetDefault,
}

// LoadFile reads and resolves a schema file from disk.
func LoadFile(path string) ([]*schema.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a YAML schema document and returns the table descriptors it
// declares, with foreign keys resolved across the whole set. References to
// tables or columns not declared in the document are an error.
func Load(r io.Reader) ([]*schema.Table, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("load: decoding schema: %w", err)
	}
	tables := make([]*schema.Table, 0, len(file.Models))
	byName := make(map[string]*schema.Table, len(file.Models))
	for _, m := range file.Models {
		t, err := buildTable(m)
		if err != nil {
			return nil, err
		}
		if _, ok := byName[t.Name]; ok {
			return nil, fmt.Errorf("load: duplicate table %q", t.Name)
		}
		tables = append(tables, t)
		byName[t.Name] = t
	}
	// Foreign keys resolve in a second pass so declaration order does not
	// matter.
	for i, m := range file.Models {
		if err := resolveRefs(m, tables[i], byName); err != nil {
			return nil, err
		}
	}
	return tables, nil
}

// TableName returns the table name of a model: the explicit override if
// set, otherwise the pluralized snake-case model name.
func TableName(m *Model) string {
	if m.Table != "" {
		return m.Table
	}
	return inflect.Pluralize(inflect.Underscore(m.Name))
}

func buildTable(m *Model) (*schema.Table, error) {
	if m.Name == "" && m.Table == "" {
		return nil, fmt.Errorf("load: model without a name")
	}
	t := schema.NewTable(TableName(m))
	if m.Comment != "" {
		t.SetComment(m.Comment)
	}
	pk := append([]string(nil), m.PrimaryKey...)
	for _, f := range m.Fields {
		c, err := buildColumn(m, f)
		if err != nil {
			return nil, err
		}
		t.AddColumn(c)
		if f.Primary {
			pk = append(pk, f.Name)
		}
	}
	for _, name := range pk {
		if !t.HasColumn(name) {
			return nil, fmt.Errorf("load: model %q: primary key references unknown field %q", m.Name, name)
		}
	}
	t.SetPrimaryKey(pk...)
	for _, idx := range m.Indexes {
		name := idx.Name
		if name == "" {
			name = fmt.Sprintf("%s_%s_idx", t.Name, strings.Join(idx.Columns, "_"))
		}
		for _, col := range idx.Columns {
			if !t.HasColumn(col) {
				return nil, fmt.Errorf("load: model %q: index %q references unknown field %q", m.Name, name, col)
			}
		}
		t.AddIndex(name, idx.Unique, idx.Columns)
		if idx.Where != "" {
			t.Indexes[len(t.Indexes)-1].Predicate = idx.Where
		}
	}
	for _, ck := range m.Checks {
		if ck.Name == "" || ck.Expr == "" {
			return nil, fmt.Errorf("load: model %q: checks need both a name and an expr", m.Name)
		}
		t.AddCheck(ck.Name, ck.Expr)
	}
	return t, nil
}

func buildColumn(m *Model, f *Field) (*schema.Column, error) {
	if f.Name == "" {
		return nil, fmt.Errorf("load: model %q: field without a name", m.Name)
	}
	typ, ok := fieldTypes[strings.ToLower(f.Type)]
	if !ok {
		return nil, fmt.Errorf("load: model %q: field %q has unknown type %q", m.Name, f.Name, f.Type)
	}
	if typ == field.TypeEnum && len(f.Values) == 0 {
		return nil, fmt.Errorf("load: model %q: enum field %q has no values", m.Name, f.Name)
	}
	desc := &field.Descriptor{
		Name: f.Name,
		Info: field.TypeInfo{
			Type:      typ,
			Size:      f.Size,
			Precision: f.Precision,
			Scale:     f.Scale,
			Enums:     f.Values,
		},
		Nullable:  f.Optional,
		Unique:    f.Unique,
		Increment: f.Increment,
		Default:   f.Default,
		Comment:   f.Comment,
	}
	if f.DefaultExpr != "" {
		desc.Default = field.Expr(f.DefaultExpr)
	}
	return schema.NewColumn(desc), nil
}

func resolveRefs(m *Model, t *schema.Table, byName map[string]*schema.Table) error {
	for _, f := range m.Fields {
		if f.References == "" {
			continue
		}
		refTable, refColumn, ok := strings.Cut(f.References, ".")
		if !ok {
			return fmt.Errorf("load: model %q: field %q: references must be \"table.column\", got %q", m.Name, f.Name, f.References)
		}
		ref, ok := byName[refTable]
		if !ok {
			return fmt.Errorf("load: model %q: field %q references undeclared table %q", m.Name, f.Name, refTable)
		}
		refCol, err := ref.MustColumn(refColumn)
		if err != nil {
			return fmt.Errorf("load: model %q: field %q references unknown column %q of table %q", m.Name, f.Name, refColumn, refTable)
		}
		col, err := t.MustColumn(f.Name)
		if err != nil {
			return err
		}
		fk := &schema.ForeignKey{
			Columns:    []*schema.Column{col},
			RefTable:   ref,
			RefColumns: []*schema.Column{refCol},
		}
		if fk.OnDelete, err = refAction(m, f, f.OnDelete); err != nil {
			return err
		}
		if fk.OnUpdate, err = refAction(m, f, f.OnUpdate); err != nil {
			return err
		}
		t.AddForeignKey(fk)
	}
	return nil
}

func refAction(m *Model, f *Field, s string) (schema.ReferenceOption, error) {
	if s == "" {
		return schema.NoAction, nil
	}
	normalized := strings.ToLower(strings.ReplaceAll(s, "_", " "))
	if action, ok := refActions[normalized]; ok {
		return action, nil
	}
	return "", fmt.Errorf("load: model %q: field %q has unknown reference action %q", m.Name, f.Name, s)
}
