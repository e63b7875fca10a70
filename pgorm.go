// Package pgorm provides declarative schema migrations for PostgreSQL:
// tables are described with typed descriptors (or YAML documents), the
// connected database is introspected, and the difference is planned and
// applied as ordered DDL inside a single transaction.
//
// This package holds the error taxonomy shared by the whole module. The
// engine itself lives in dialect/sql/schema, the driver abstraction in
// dialect and dialect/sql, and the column builders in schema/field.
package pgorm
