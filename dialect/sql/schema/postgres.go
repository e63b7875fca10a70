package schema

import (
	"fmt"
	"strings"

	"github.com/syssam/pgorm/schema/field"
)

// quote returns the PostgreSQL quoted form of an identifier.
func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// quoteLiteral returns the PostgreSQL quoted form of a string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// cType returns the PostgreSQL type of the column.
func cType(c *Column) string {
	switch c.Type {
	case field.TypeBool:
		return "boolean"
	case field.TypeInt16:
		return "smallint"
	case field.TypeInt32:
		return "integer"
	case field.TypeInt64:
		return "bigint"
	case field.TypeFloat32:
		return "real"
	case field.TypeFloat64:
		return "double precision"
	case field.TypeDecimal:
		if c.Precision > 0 {
			return fmt.Sprintf("numeric(%d,%d)", c.Precision, c.Scale)
		}
		return "numeric"
	case field.TypeString:
		if c.Size > 0 {
			return fmt.Sprintf("varchar(%d)", c.Size)
		}
		return "varchar"
	case field.TypeText, field.TypeEnum:
		// Enums are rendered as checked text columns.
		return "text"
	case field.TypeBytes:
		return "bytea"
	case field.TypeUUID:
		return "uuid"
	case field.TypeJSON:
		return "jsonb"
	case field.TypeTime:
		return "timestamptz"
	case field.TypeTimestamp:
		return "timestamp"
	case field.TypeDate:
		return "date"
	default:
		return c.Type.String()
	}
}

// defaultSQL renders a default value for DDL. field.Expr values are emitted
// verbatim, everything else as a literal.
func defaultSQL(v any) string {
	switch v := v.(type) {
	case field.Expr:
		return string(v)
	case string:
		return quoteLiteral(v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// columnSQL renders a column definition for CREATE TABLE / ADD COLUMN.
func columnSQL(c *Column) string {
	var b strings.Builder
	b.WriteString(quote(c.Name))
	b.WriteString(" ")
	b.WriteString(cType(c))
	if c.Increment {
		b.WriteString(" GENERATED BY DEFAULT AS IDENTITY")
	}
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.Default != nil && !c.Increment {
		b.WriteString(" DEFAULT ")
		b.WriteString(defaultSQL(c.Default))
	}
	return b.String()
}

// enumCheckName returns the conventional name of the check constraint that
// backs an enum column. The inspector recognizes this convention and folds
// the check back into the column's enum values.
func enumCheckName(table *Table, c *Column) string {
	return fmt.Sprintf("%s_%s_check", table.Name, c.Name)
}

// enumCheckSQL renders the IN check expression backing an enum column.
func enumCheckSQL(c *Column) string {
	values := make([]string, len(c.Enums))
	for i, v := range c.Enums {
		values[i] = quoteLiteral(v)
	}
	return fmt.Sprintf("%s IN (%s)", quote(c.Name), strings.Join(values, ", "))
}

// createTableSQL renders the CREATE TABLE statement for a table. Foreign
// keys are included only when inlineFKs is set; the planner requests them
// as separate ALTER statements otherwise so that dependency cycles between
// new tables stay resolvable.
func createTableSQL(t *Table, inlineFKs bool) string {
	var defs []string
	for _, c := range t.Columns {
		defs = append(defs, columnSQL(c))
	}
	if len(t.PrimaryKey) > 0 {
		cols := make([]string, len(t.PrimaryKey))
		for i, c := range t.PrimaryKey {
			cols[i] = quote(c.Name)
		}
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(cols, ", ")))
	}
	for _, c := range t.Columns {
		if c.Unique {
			defs = append(defs, fmt.Sprintf("UNIQUE (%s)", quote(c.Name)))
		}
		if c.Type == field.TypeEnum && len(c.Enums) > 0 {
			defs = append(defs, fmt.Sprintf("CONSTRAINT %s CHECK (%s)", quote(enumCheckName(t, c)), enumCheckSQL(c)))
		}
	}
	for _, ck := range t.Checks {
		defs = append(defs, fmt.Sprintf("CONSTRAINT %s CHECK (%s)", quote(ck.Name), ck.Expr))
	}
	if inlineFKs {
		for _, fk := range t.ForeignKeys {
			defs = append(defs, fmt.Sprintf("CONSTRAINT %s %s", quote(fkSymbol(t, fk)), foreignKeySQL(fk)))
		}
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quote(t.Name), strings.Join(defs, ", "))
}

// uniqueConstraintName returns the name of the unique constraint owned by
// a column, deriving the PostgreSQL conventional name when the column was
// not introspected.
func uniqueConstraintName(t *Table, c *Column) string {
	if c.uniqName != "" {
		return c.uniqName
	}
	return fmt.Sprintf("%s_%s_key", t.Name, c.Name)
}

// fkSymbol returns the constraint name of a foreign key, deriving the
// PostgreSQL conventional name when none was declared.
func fkSymbol(t *Table, fk *ForeignKey) string {
	if fk.Symbol != "" {
		return fk.Symbol
	}
	return fmt.Sprintf("%s_%s_fkey", t.Name, fk.Columns[0].Name)
}

// foreignKeySQL renders the FOREIGN KEY ... REFERENCES clause.
func foreignKeySQL(fk *ForeignKey) string {
	cols := make([]string, len(fk.Columns))
	for i, c := range fk.Columns {
		cols[i] = quote(c.Name)
	}
	refs := make([]string, len(fk.RefColumns))
	for i, c := range fk.RefColumns {
		refs[i] = quote(c.Name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "FOREIGN KEY (%s) REFERENCES %s (%s)",
		strings.Join(cols, ", "), quote(fk.RefTable.Name), strings.Join(refs, ", "))
	if fk.OnUpdate != "" && fk.OnUpdate != NoAction {
		fmt.Fprintf(&b, " ON UPDATE %s", fk.OnUpdate)
	}
	if fk.OnDelete != "" && fk.OnDelete != NoAction {
		fmt.Fprintf(&b, " ON DELETE %s", fk.OnDelete)
	}
	return b.String()
}

// createIndexSQL renders the CREATE INDEX statement for an index.
func createIndexSQL(t *Table, idx *Index) string {
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = quote(c.Name)
	}
	var b strings.Builder
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	fmt.Fprintf(&b, "INDEX %s ON %s (%s)", quote(idx.Name), quote(t.Name), strings.Join(cols, ", "))
	if idx.Predicate != "" {
		fmt.Fprintf(&b, " WHERE %s", idx.Predicate)
	}
	return b.String()
}

// modifyColumnSQL splits a column modification into narrow ALTER statements.
func modifyColumnSQL(t *Table, from, to *Column) []string {
	var stmts []string
	alter := func(format string, args ...any) {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ", quote(t.Name))+fmt.Sprintf(format, args...))
	}
	if typeChanged(from, to) {
		alter("ALTER COLUMN %s TYPE %s", quote(to.Name), cType(to))
		// Enum value changes swap the backing check constraint.
		if from.Type == field.TypeEnum || to.Type == field.TypeEnum {
			if from.Type == field.TypeEnum && len(from.Enums) > 0 {
				alter("DROP CONSTRAINT IF EXISTS %s", quote(enumCheckName(t, from)))
			}
			if to.Type == field.TypeEnum && len(to.Enums) > 0 {
				alter("ADD CONSTRAINT %s CHECK (%s)", quote(enumCheckName(t, to)), enumCheckSQL(to))
			}
		}
	}
	if from.Nullable != to.Nullable {
		if to.Nullable {
			alter("ALTER COLUMN %s DROP NOT NULL", quote(to.Name))
		} else {
			alter("ALTER COLUMN %s SET NOT NULL", quote(to.Name))
		}
	}
	if from.Increment != to.Increment {
		if to.Increment {
			alter("ALTER COLUMN %s ADD GENERATED BY DEFAULT AS IDENTITY", quote(to.Name))
		} else {
			alter("ALTER COLUMN %s DROP IDENTITY IF EXISTS", quote(to.Name))
		}
	}
	if from.Unique != to.Unique {
		if to.Unique {
			alter("ADD CONSTRAINT %s UNIQUE (%s)", quote(uniqueConstraintName(t, to)), quote(to.Name))
		} else {
			alter("DROP CONSTRAINT %s", quote(uniqueConstraintName(t, from)))
		}
	}
	if defaultChanged(from, to) {
		if to.Default == nil {
			alter("ALTER COLUMN %s DROP DEFAULT", quote(to.Name))
		} else {
			alter("ALTER COLUMN %s SET DEFAULT %s", quote(to.Name), defaultSQL(to.Default))
		}
	}
	return stmts
}

// changeStmts renders the DDL statement(s) for a change, together with the
// reverse statement(s) where the change is reversible.
func changeStmts(c Change, inlineFKs bool) (stmts, reverse []string) {
	switch c := c.(type) {
	case *CreateTable:
		return []string{createTableSQL(c.T, inlineFKs)},
			[]string{fmt.Sprintf("DROP TABLE %s", quote(c.T.Name))}
	case *DropTable:
		// Dropping a table discards its data. Irreversible.
		return []string{fmt.Sprintf("DROP TABLE %s", quote(c.T.Name))}, nil
	case *AddColumn:
		stmts = []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quote(c.T.Name), columnSQL(c.C))}
		if c.C.Unique {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)",
				quote(c.T.Name), quote(uniqueConstraintName(c.T, c.C)), quote(c.C.Name)))
		}
		if c.C.Type == field.TypeEnum && len(c.C.Enums) > 0 {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)",
				quote(c.T.Name), quote(enumCheckName(c.T, c.C)), enumCheckSQL(c.C)))
		}
		// Dropping the column drops its constraints with it.
		return stmts, []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quote(c.T.Name), quote(c.C.Name))}
	case *DropColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quote(c.T.Name), quote(c.C.Name))}, nil
	case *ModifyColumn:
		return modifyColumnSQL(c.T, c.From, c.To), modifyColumnSQL(c.T, c.To, c.From)
	case *AddPrimaryKey:
		cols := make([]string, len(c.Columns))
		for i, col := range c.Columns {
			cols[i] = quote(col.Name)
		}
		return []string{fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", quote(c.T.Name), strings.Join(cols, ", "))},
			[]string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", quote(c.T.Name), quote(c.T.PrimaryKeyName()))}
	case *DropPrimaryKey:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", quote(c.T.Name), quote(c.T.PrimaryKeyName()))}, nil
	case *AddForeignKey:
		symbol := fkSymbol(c.T, c.F)
		return []string{fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s", quote(c.T.Name), quote(symbol), foreignKeySQL(c.F))},
			[]string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", quote(c.T.Name), quote(symbol))}
	case *DropForeignKey:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", quote(c.T.Name), quote(fkSymbol(c.T, c.F)))},
			[]string{fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s", quote(c.T.Name), quote(fkSymbol(c.T, c.F)), foreignKeySQL(c.F))}
	case *AddIndex:
		return []string{createIndexSQL(c.T, c.I)},
			[]string{fmt.Sprintf("DROP INDEX %s", quote(c.I.Name))}
	case *DropIndex:
		return []string{fmt.Sprintf("DROP INDEX %s", quote(c.I.Name))},
			[]string{createIndexSQL(c.T, c.I)}
	case *AddCheck:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)", quote(c.T.Name), quote(c.K.Name), c.K.Expr)},
			[]string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", quote(c.T.Name), quote(c.K.Name))}
	case *DropCheck:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", quote(c.T.Name), quote(c.K.Name))},
			[]string{fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)", quote(c.T.Name), quote(c.K.Name), c.K.Expr)}
	default:
		return nil, nil
	}
}
