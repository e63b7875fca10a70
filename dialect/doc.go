// Package dialect defines the narrow database capability set pgorm depends on.
//
// The migration core never talks to a concrete driver. It is written against
// three small interfaces:
//
//	type ExecQuerier interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	}
//
//	type Driver interface {
//	    ExecQuerier
//	    Tx(context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
//	type Tx interface {
//	    ExecQuerier
//	    Commit() error
//	    Rollback() error
//	}
//
// The dialect/sql sub-package implements Driver on top of database/sql.
//
// Opening a PostgreSQL connection:
//
//	import (
//	    "github.com/syssam/pgorm/dialect"
//	    "github.com/syssam/pgorm/dialect/sql"
//
//	    _ "github.com/lib/pq"
//	)
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://localhost/app?sslmode=disable")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
package dialect
