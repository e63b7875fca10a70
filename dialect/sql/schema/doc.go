// Package schema contains the declarative migration engine for PostgreSQL:
// table and column descriptors, catalog introspection, the diff engine that
// compares actual and desired state, the planner that orders the resulting
// changes into safe and destructive buckets, and the executor that applies
// a plan in a single transaction.
//
// The typical flow:
//
//	drv, err := sql.Open(dialect.Postgres, url)
//	m, err := schema.NewMigrate(drv)
//	plan, err := m.Plan(ctx, tables...)
//	err = m.Apply(ctx, plan)
package schema
