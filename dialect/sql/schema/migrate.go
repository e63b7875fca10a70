package schema

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/syssam/pgorm"
	"github.com/syssam/pgorm/dialect"
)

var (
	// ErrPendingDestructive is returned by Apply when the plan contains
	// destructive steps and the migrator was not configured to allow them.
	ErrPendingDestructive = errors.New("schema: plan contains destructive changes")

	// ErrAppliedPlan is returned when a plan is applied a second time. Plans
	// are single-use; re-applying one would run DDL against a state it was
	// not computed from.
	ErrAppliedPlan = errors.New("schema: plan was already applied")
)

// MigrateOption allows configuring the schema migration using functional
// options.
type MigrateOption func(*Migrate)

// WithSchemaName sets the database schema (namespace) the migrator works
// in. Defaults to "public".
func WithSchemaName(name string) MigrateOption {
	return func(m *Migrate) {
		m.schema = name
	}
}

// WithAllowDestructive allows applying plans that contain destructive
// steps (table drops, column drops, narrowing type changes). Without it,
// Apply fails with ErrPendingDestructive when such steps are present.
func WithAllowDestructive(b bool) MigrateOption {
	return func(m *Migrate) {
		m.allowDestructive = b
	}
}

// WithSkipChanges allows skipping/filtering the given change kinds from
// the diff output. For example:
//
//	migrate, err := schema.NewMigrate(drv, schema.WithSkipChanges(schema.ChangeDropColumn|schema.ChangeDropIndex))
func WithSkipChanges(skip ChangeKind) MigrateOption {
	return func(m *Migrate) {
		m.skip = skip
	}
}

// WithDiffHook adds a list of DiffHook to the schema migration.
// For example, to log the diff changes:
//
//	migrate, err := schema.NewMigrate(drv,
//		schema.WithDiffHook(func(next schema.Differ) schema.Differ {
//			return schema.DiffFunc(func(current, desired *schema.Schema) ([]schema.Change, error) {
//				changes, err := next.Diff(current, desired)
//				// Log or modify the changes.
//				return changes, err
//			})
//		}),
//	)
func WithDiffHook(hooks ...DiffHook) MigrateOption {
	return func(m *Migrate) {
		m.diffHooks = append(m.diffHooks, hooks...)
	}
}

// WithApplyHook adds a list of ApplyHook to the plan execution.
func WithApplyHook(hooks ...ApplyHook) MigrateOption {
	return func(m *Migrate) {
		m.applyHooks = append(m.applyHooks, hooks...)
	}
}

// WithInlineForeignKeys configures the planner to fold foreign keys of new
// tables into their CREATE TABLE statements. See InlineForeignKeys.
func WithInlineForeignKeys(b bool) MigrateOption {
	return func(m *Migrate) {
		m.inlineFKs = b
	}
}

// WithLogger sets the logger used for progress reporting during planning
// and execution. Defaults to slog.Default.
func WithLogger(log *slog.Logger) MigrateOption {
	return func(m *Migrate) {
		m.log = log
	}
}

// An Applier applies a migration plan on the database.
type Applier interface {
	Apply(ctx context.Context, plan *Plan) error
}

// The ApplyFunc type is an adapter to allow the use of ordinary functions
// as appliers.
type ApplyFunc func(ctx context.Context, plan *Plan) error

// Apply calls f(ctx, plan).
func (f ApplyFunc) Apply(ctx context.Context, plan *Plan) error {
	return f(ctx, plan)
}

// An ApplyHook wraps an Applier with additional behavior, in the spirit of
// middleware.
type ApplyHook func(Applier) Applier

// Migrate runs the migration flow: introspect the connected database, diff
// it against the desired tables, order the changes into a plan, and apply
// the plan in a single transaction.
type Migrate struct {
	drv              dialect.Driver
	schema           string
	allowDestructive bool
	inlineFKs        bool
	skip             ChangeKind
	diffHooks        []DiffHook
	applyHooks       []ApplyHook
	log              *slog.Logger
}

// NewMigrate creates a Migrate for the given driver.
func NewMigrate(drv dialect.Driver, opts ...MigrateOption) (*Migrate, error) {
	if drv.Dialect() != dialect.Postgres {
		return nil, fmt.Errorf("schema: unsupported dialect %q", drv.Dialect())
	}
	m := &Migrate{drv: drv, schema: "public", log: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Plan introspects the connected database and returns the ordered plan that
// turns its state into the state described by the given tables. The catalog
// is read afresh on every call; plans are never computed from cached state.
// An empty plan means the database already matches.
func (m *Migrate) Plan(ctx context.Context, tables ...*Table) (*Plan, error) {
	current, err := NewInspector(m.drv, m.schema).Inspect(ctx)
	if err != nil {
		return nil, err
	}
	desired, err := NewSchema(m.schema, tables...)
	if err != nil {
		return nil, err
	}
	changes, err := m.diff(current, desired)
	if err != nil {
		return nil, err
	}
	var opts []PlanOption
	if m.inlineFKs {
		opts = append(opts, InlineForeignKeys(true))
	}
	plan, err := NewPlan(changes, opts...)
	if err != nil {
		return nil, err
	}
	m.log.Debug("schema: plan computed",
		"plan", plan.ID.String(),
		"safe", len(plan.Safe),
		"destructive", len(plan.Destructive),
		"two_phase", plan.TwoPhase,
	)
	return plan, nil
}

// diff runs the diff engine through the configured hook chain.
func (m *Migrate) diff(current, desired *Schema) ([]Change, error) {
	var differ Differ = DiffFunc(Diff)
	hooks := m.diffHooks
	if m.skip != NoChange {
		hooks = append(hooks[:len(hooks):len(hooks)], filterChanges(m.skip))
	}
	for i := len(hooks) - 1; i >= 0; i-- {
		differ = hooks[i](differ)
	}
	return differ.Diff(current, desired)
}

// Create plans and applies the migration in one call. It is the common
// entrypoint for code that does not need to review the plan first.
func (m *Migrate) Create(ctx context.Context, tables ...*Table) error {
	plan, err := m.Plan(ctx, tables...)
	if err != nil {
		return err
	}
	return m.Apply(ctx, plan)
}

// Apply executes the plan inside a single transaction. Either every step is
// committed or none is: the first failing statement rolls back the whole
// transaction and is reported as a pgorm.MigrationFailedError. Destructive
// steps require the migrator to be configured with WithAllowDestructive.
// A plan can be applied at most once.
func (m *Migrate) Apply(ctx context.Context, plan *Plan) error {
	if plan.applied {
		return ErrAppliedPlan
	}
	if plan.Empty() {
		plan.applied = true
		m.log.Info("schema: nothing to do", "plan", plan.ID.String())
		return nil
	}
	if len(plan.Destructive) > 0 && !m.allowDestructive {
		return fmt.Errorf("schema: %d destructive change(s) held back: %w", len(plan.Destructive), ErrPendingDestructive)
	}
	var applier Applier = ApplyFunc(m.apply)
	for i := len(m.applyHooks) - 1; i >= 0; i-- {
		applier = m.applyHooks[i](applier)
	}
	if err := applier.Apply(ctx, plan); err != nil {
		return err
	}
	plan.applied = true
	return nil
}

func (m *Migrate) apply(ctx context.Context, plan *Plan) error {
	tx, err := m.drv.Tx(ctx)
	if err != nil {
		return pgorm.NewConnectivityError("begin", err)
	}
	// Serialize concurrent migrators of the same schema. The lock is tied
	// to the transaction and released on commit or rollback.
	if err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", []any{schemaLockKey(m.schema)}, nil); err != nil {
		return m.rollback(tx, pgorm.NewConnectivityError("advisory lock", err))
	}
	steps := plan.Steps()
	m.log.Info("schema: applying plan",
		"plan", plan.ID.String(),
		"steps", len(steps),
		"destructive", len(plan.Destructive),
	)
	for i, step := range steps {
		for _, stmt := range step.Cmd {
			m.log.Debug("schema: exec", "plan", plan.ID.String(), "step", i, "stmt", stmt)
			if err := tx.Exec(ctx, stmt, []any{}, nil); err != nil {
				return m.rollback(tx, pgorm.NewMigrationFailedError(i, stmt, err))
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return pgorm.NewMigrationFailedError(len(steps), "COMMIT", err)
	}
	m.log.Info("schema: plan applied", "plan", plan.ID.String())
	return nil
}

// rollback aborts the transaction, keeping err as the primary failure. A
// failing rollback is reported together with the original error.
func (m *Migrate) rollback(tx dialect.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		return &pgorm.RollbackError{Err: rerr, Original: err}
	}
	return err
}

// schemaLockKey derives the advisory-lock key for a schema name.
func schemaLockKey(schema string) int64 {
	h := fnv.New64a()
	h.Write([]byte("pgorm:" + schema))
	return int64(h.Sum64())
}
