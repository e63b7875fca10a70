package schema

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/pgorm"
	"github.com/syssam/pgorm/dialect"
	"github.com/syssam/pgorm/dialect/sql"
	"github.com/syssam/pgorm/schema/field"
)

// typeMapping normalizes catalog-reported type names into semantic types.
// It is a plain lookup table so that adding a synonym is a one-line change.
// Keys cover both information_schema data_type spellings and pg_catalog
// udt_name spellings.
var typeMapping = map[string]field.Type{
	"smallint":                    field.TypeInt16,
	"int2":                        field.TypeInt16,
	"integer":                     field.TypeInt32,
	"int4":                        field.TypeInt32,
	"bigint":                      field.TypeInt64,
	"int8":                        field.TypeInt64,
	"real":                        field.TypeFloat32,
	"float4":                      field.TypeFloat32,
	"double precision":            field.TypeFloat64,
	"float8":                      field.TypeFloat64,
	"numeric":                     field.TypeDecimal,
	"decimal":                     field.TypeDecimal,
	"character varying":           field.TypeString,
	"varchar":                     field.TypeString,
	"character":                   field.TypeString,
	"bpchar":                      field.TypeString,
	"text":                        field.TypeText,
	"boolean":                     field.TypeBool,
	"bool":                        field.TypeBool,
	"bytea":                       field.TypeBytes,
	"uuid":                        field.TypeUUID,
	"json":                        field.TypeJSON,
	"jsonb":                       field.TypeJSON,
	"timestamp with time zone":    field.TypeTime,
	"timestamptz":                 field.TypeTime,
	"timestamp without time zone": field.TypeTimestamp,
	"timestamp":                   field.TypeTimestamp,
	"date":                        field.TypeDate,
}

// inspectRetries bounds how often introspection restarts after detecting
// concurrent catalog changes.
const inspectRetries = 3

// An Inspector reads the live catalog state of a single database schema and
// produces descriptors comparable with desired-state descriptors. Results
// are never cached; every call reads the catalog afresh.
type Inspector struct {
	drv    dialect.Driver
	schema string
}

// NewInspector returns an inspector reading the given database schema
// (namespace). An empty name defaults to "public".
func NewInspector(drv dialect.Driver, schemaName string) *Inspector {
	if schemaName == "" {
		schemaName = "public"
	}
	return &Inspector{drv: drv, schema: schemaName}
}

// Inspect reads the current catalog state. If the catalog changes while it
// is being read (detected by comparing a checksum taken before and after),
// the read restarts; persistent drift fails with a pgorm.ConnectivityError.
func (i *Inspector) Inspect(ctx context.Context) (*Schema, error) {
	for attempt := 0; attempt < inspectRetries; attempt++ {
		before, err := i.checksum(ctx)
		if err != nil {
			return nil, err
		}
		tables, err := i.tables(ctx)
		if err != nil {
			return nil, err
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for _, t := range tables {
			g.Go(func() error {
				return i.inspectTable(gctx, t)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if err := resolveForeignKeys(tables); err != nil {
			return nil, err
		}
		after, err := i.checksum(ctx)
		if err != nil {
			return nil, err
		}
		if before == after {
			return NewSchema(i.schema, tables...)
		}
	}
	return nil, pgorm.NewConnectivityError("introspection", errors.New("catalog changed concurrently"))
}

// checksum returns a coarse digest of the schema's catalog entries. It only
// needs to change whenever a relation is created, dropped or reshaped.
func (i *Inspector) checksum(ctx context.Context) (string, error) {
	rows := &sql.Rows{}
	query := `SELECT COALESCE(md5(string_agg(c.relname || ':' || c.relnatts::text, ',' ORDER BY c.relname)), '')
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relkind IN ('r', 'i')`
	if err := i.drv.Query(ctx, query, []any{i.schema}, rows); err != nil {
		return "", pgorm.NewConnectivityError("checksum", err)
	}
	defer rows.Close()
	var sum string
	if rows.Next() {
		if err := rows.Scan(&sum); err != nil {
			return "", pgorm.NewConnectivityError("checksum", err)
		}
	}
	return sum, rows.Err()
}

// tables lists the base tables of the schema in name order.
func (i *Inspector) tables(ctx context.Context) ([]*Table, error) {
	rows := &sql.Rows{}
	query := `SELECT table_name FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name`
	if err := i.drv.Query(ctx, query, []any{i.schema}, rows); err != nil {
		return nil, pgorm.NewConnectivityError("tables", err)
	}
	defer rows.Close()
	var tables []*Table
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, pgorm.NewConnectivityError("tables", err)
		}
		tables = append(tables, NewTable(name))
	}
	if err := rows.Err(); err != nil {
		return nil, pgorm.NewConnectivityError("tables", err)
	}
	return tables, nil
}

// inspectTable fills in the columns, constraints and indexes of a table.
func (i *Inspector) inspectTable(ctx context.Context, t *Table) error {
	if err := i.columns(ctx, t); err != nil {
		return err
	}
	if err := i.primaryKey(ctx, t); err != nil {
		return err
	}
	if err := i.uniques(ctx, t); err != nil {
		return err
	}
	if err := i.foreignKeys(ctx, t); err != nil {
		return err
	}
	if err := i.indexes(ctx, t); err != nil {
		return err
	}
	return i.checks(ctx, t)
}

func (i *Inspector) columns(ctx context.Context, t *Table) error {
	rows := &sql.Rows{}
	query := `SELECT column_name, data_type, udt_name, is_nullable, column_default,
character_maximum_length, numeric_precision, numeric_scale, is_identity
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`
	if err := i.drv.Query(ctx, query, []any{i.schema, t.Name}, rows); err != nil {
		return pgorm.NewConnectivityError("columns", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name, dataType, udtName, nullable string
			defaultVal, identity              sql.NullString
			maxLen, precision, scale          sql.NullInt64
		)
		if err := rows.Scan(&name, &dataType, &udtName, &nullable, &defaultVal, &maxLen, &precision, &scale, &identity); err != nil {
			return pgorm.NewConnectivityError("columns", err)
		}
		c, err := newInspectedColumn(t.Name, name, dataType, udtName)
		if err != nil {
			return err
		}
		c.Nullable = nullable == "YES"
		if maxLen.Valid {
			c.Size = int(maxLen.Int64)
		}
		if c.Type == field.TypeDecimal {
			if precision.Valid {
				c.Precision = int(precision.Int64)
			}
			if scale.Valid {
				c.Scale = int(scale.Int64)
			}
		}
		switch {
		case identity.Valid && identity.String == "YES":
			c.Increment = true
		case defaultVal.Valid && strings.HasPrefix(defaultVal.String, "nextval("):
			// Legacy serial columns behave like identity columns.
			c.Increment = true
		case defaultVal.Valid:
			c.Default = field.Expr(defaultVal.String)
		}
		t.AddColumn(c)
	}
	return rows.Err()
}

// newInspectedColumn normalizes the catalog type names of a column through
// the lookup table. Unknown types fail with a pgorm.UnsupportedTypeError
// carrying the table and column context.
func newInspectedColumn(table, name, dataType, udtName string) (*Column, error) {
	typ, ok := typeMapping[dataType]
	if !ok {
		typ, ok = typeMapping[udtName]
	}
	if !ok {
		return nil, pgorm.NewUnsupportedTypeError(table, name, dataType)
	}
	return &Column{Name: name, Type: typ, typ: dataType}, nil
}

func (i *Inspector) primaryKey(ctx context.Context, t *Table) error {
	rows := &sql.Rows{}
	query := `SELECT kcu.column_name, tc.constraint_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'PRIMARY KEY'
ORDER BY kcu.ordinal_position`
	if err := i.drv.Query(ctx, query, []any{i.schema, t.Name}, rows); err != nil {
		return pgorm.NewConnectivityError("primary key", err)
	}
	defer rows.Close()
	for rows.Next() {
		var column, constraint string
		if err := rows.Scan(&column, &constraint); err != nil {
			return pgorm.NewConnectivityError("primary key", err)
		}
		t.pkName = constraint
		if c, ok := t.Column(column); ok {
			t.PrimaryKey = append(t.PrimaryKey, c)
		}
	}
	return rows.Err()
}

// uniques marks columns covered by single-column UNIQUE constraints and
// records multi-column UNIQUE constraints as unique indexes.
func (i *Inspector) uniques(ctx context.Context, t *Table) error {
	rows := &sql.Rows{}
	query := `SELECT tc.constraint_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'UNIQUE'
ORDER BY tc.constraint_name, kcu.ordinal_position`
	if err := i.drv.Query(ctx, query, []any{i.schema, t.Name}, rows); err != nil {
		return pgorm.NewConnectivityError("unique constraints", err)
	}
	defer rows.Close()
	groups := make(map[string][]string)
	var order []string
	for rows.Next() {
		var constraint, column string
		if err := rows.Scan(&constraint, &column); err != nil {
			return pgorm.NewConnectivityError("unique constraints", err)
		}
		if _, ok := groups[constraint]; !ok {
			order = append(order, constraint)
		}
		groups[constraint] = append(groups[constraint], column)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, constraint := range order {
		columns := groups[constraint]
		if len(columns) == 1 {
			if c, ok := t.Column(columns[0]); ok {
				c.Unique = true
				c.uniqName = constraint
			}
			continue
		}
		t.AddIndex(constraint, true, columns)
	}
	return nil
}

func (i *Inspector) foreignKeys(ctx context.Context, t *Table) error {
	rows := &sql.Rows{}
	// Referenced columns are paired positionally through the key usage of
	// the referenced constraint; a plain constraint-name join would
	// cross-product the columns of composite foreign keys.
	query := `SELECT tc.constraint_name, kcu.column_name, rkcu.table_name, rkcu.column_name, rc.update_rule, rc.delete_rule
FROM information_schema.table_constraints tc
JOIN information_schema.referential_constraints rc
  ON rc.constraint_name = tc.constraint_name AND rc.constraint_schema = tc.table_schema
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
JOIN information_schema.key_column_usage rkcu
  ON rkcu.constraint_name = rc.unique_constraint_name
 AND rkcu.table_schema = rc.unique_constraint_schema
 AND rkcu.ordinal_position = kcu.position_in_unique_constraint
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1 AND tc.table_name = $2
ORDER BY tc.constraint_name, kcu.ordinal_position`
	if err := i.drv.Query(ctx, query, []any{i.schema, t.Name}, rows); err != nil {
		return pgorm.NewConnectivityError("foreign keys", err)
	}
	defer rows.Close()
	fks := make(map[string]*inspectedFK)
	var order []string
	for rows.Next() {
		var constraint, column, refTable, refColumn, updateRule, deleteRule string
		if err := rows.Scan(&constraint, &column, &refTable, &refColumn, &updateRule, &deleteRule); err != nil {
			return pgorm.NewConnectivityError("foreign keys", err)
		}
		fk, ok := fks[constraint]
		if !ok {
			fk = &inspectedFK{
				symbol:   constraint,
				refTable: refTable,
				onUpdate: ReferenceOption(updateRule),
				onDelete: ReferenceOption(deleteRule),
			}
			fks[constraint] = fk
			order = append(order, constraint)
		}
		fk.columns = append(fk.columns, column)
		fk.refColumns = append(fk.refColumns, refColumn)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, constraint := range order {
		t.fks = append(t.fks, fks[constraint])
	}
	return nil
}

// inspectedFK is a foreign key read from the catalog before its referenced
// table descriptor is known. resolveForeignKeys turns it into a ForeignKey.
type inspectedFK struct {
	symbol     string
	columns    []string
	refTable   string
	refColumns []string
	onUpdate   ReferenceOption
	onDelete   ReferenceOption
}

// resolveForeignKeys links inspected foreign keys to their referenced table
// descriptors after all tables of the schema have been read. References to
// tables outside the inspected schema are modeled as bare descriptors.
func resolveForeignKeys(tables []*Table) error {
	byName := make(map[string]*Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}
	for _, t := range tables {
		for _, ifk := range t.fks {
			ref, ok := byName[ifk.refTable]
			if !ok {
				ref = NewTable(ifk.refTable)
				for _, name := range ifk.refColumns {
					ref.AddColumn(&Column{Name: name, Type: field.TypeInt64})
				}
			}
			fk := &ForeignKey{
				Symbol:   ifk.symbol,
				RefTable: ref,
				OnUpdate: ifk.onUpdate,
				OnDelete: ifk.onDelete,
			}
			for _, name := range ifk.columns {
				c, err := t.MustColumn(name)
				if err != nil {
					return err
				}
				fk.Columns = append(fk.Columns, c)
			}
			for _, name := range ifk.refColumns {
				c, ok := ref.Column(name)
				if !ok {
					c = &Column{Name: name, Type: field.TypeInt64}
				}
				fk.RefColumns = append(fk.RefColumns, c)
			}
			t.ForeignKeys = append(t.ForeignKeys, fk)
		}
		t.fks = nil
	}
	return nil
}

func (i *Inspector) indexes(ctx context.Context, t *Table) error {
	rows := &sql.Rows{}
	// Indexes backing primary-key and unique constraints are reported by
	// the constraint queries and excluded here.
	query := `SELECT ix.relname, pix.indisunique, COALESCE(pg_get_expr(pix.indpred, pt.oid), ''),
array_to_string(array_agg(a.attname ORDER BY array_position(pix.indkey, a.attnum)), ',')
FROM pg_catalog.pg_class pt
JOIN pg_catalog.pg_index pix ON pt.oid = pix.indrelid
JOIN pg_catalog.pg_class ix ON ix.oid = pix.indexrelid
JOIN pg_catalog.pg_attribute a ON a.attrelid = pt.oid AND a.attnum = ANY(pix.indkey)
JOIN pg_catalog.pg_namespace n ON n.oid = pt.relnamespace
LEFT JOIN pg_catalog.pg_constraint con ON con.conindid = ix.oid
WHERE pt.relkind = 'r' AND n.nspname = $1 AND pt.relname = $2
  AND NOT pix.indisprimary AND con.oid IS NULL
GROUP BY ix.relname, pix.indisunique, pix.indpred, pt.oid
ORDER BY ix.relname`
	if err := i.drv.Query(ctx, query, []any{i.schema, t.Name}, rows); err != nil {
		return pgorm.NewConnectivityError("indexes", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name, predicate, columns string
			unique                   bool
		)
		if err := rows.Scan(&name, &unique, &predicate, &columns); err != nil {
			return pgorm.NewConnectivityError("indexes", err)
		}
		idx := &Index{Name: name, Unique: unique, Predicate: predicate}
		for _, col := range strings.Split(columns, ",") {
			if c, ok := t.Column(col); ok {
				idx.Columns = append(idx.Columns, c)
			}
		}
		t.Indexes = append(t.Indexes, idx)
	}
	return rows.Err()
}

// enumLiteral extracts quoted string literals from a catalog check clause.
var enumLiteral = regexp.MustCompile(`'((?:[^']|'')*)'`)

func (i *Inspector) checks(ctx context.Context, t *Table) error {
	rows := &sql.Rows{}
	query := `SELECT tc.constraint_name, cc.check_clause
FROM information_schema.table_constraints tc
JOIN information_schema.check_constraints cc
  ON cc.constraint_name = tc.constraint_name AND cc.constraint_schema = tc.table_schema
WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'CHECK'
  AND cc.check_clause NOT LIKE '%IS NOT NULL%'
ORDER BY tc.constraint_name`
	if err := i.drv.Query(ctx, query, []any{i.schema, t.Name}, rows); err != nil {
		return pgorm.NewConnectivityError("check constraints", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, clause string
		if err := rows.Scan(&name, &clause); err != nil {
			return pgorm.NewConnectivityError("check constraints", err)
		}
		if i.foldEnumCheck(t, name, clause) {
			continue
		}
		t.Checks = append(t.Checks, &Check{Name: name, Expr: clause})
	}
	return rows.Err()
}

// foldEnumCheck recognizes the check constraint convention backing enum
// columns ("<table>_<column>_check") and folds the allowed values back into
// the column descriptor, so that round-tripping an enum column through the
// catalog compares equal to its declaration.
func (i *Inspector) foldEnumCheck(t *Table, name, clause string) bool {
	for _, c := range t.Columns {
		if name != enumCheckName(t, c) {
			continue
		}
		if c.Type != field.TypeText && c.Type != field.TypeString {
			return false
		}
		matches := enumLiteral.FindAllStringSubmatch(clause, -1)
		if len(matches) == 0 {
			return false
		}
		c.Type = field.TypeEnum
		c.Enums = c.Enums[:0]
		for _, m := range matches {
			c.Enums = append(c.Enums, strings.ReplaceAll(m[1], "''", "'"))
		}
		return true
	}
	return false
}
