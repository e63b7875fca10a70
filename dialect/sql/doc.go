// Package sql implements dialect.Driver on top of database/sql.
//
// It is the only place in pgorm that knows about database/sql; the rest of
// the library, including the migration engine, goes through the dialect
// interfaces and can be backed by any driver.
package sql
