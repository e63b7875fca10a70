// Command pgorm plans and applies declarative schema migrations against a
// PostgreSQL database.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"

	"github.com/syssam/pgorm/dialect"
	"github.com/syssam/pgorm/dialect/sql"
	"github.com/syssam/pgorm/dialect/sql/schema"
	"github.com/syssam/pgorm/schema/load"
)

type options struct {
	dbURL            string
	schemaName       string
	schemaFile       string
	allowDestructive bool
	inlineFKs        bool
	verbose          bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pgorm:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "pgorm",
		Short:         "Declarative schema migrations for PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dbURL, "db-url", os.Getenv("DATABASE_URL"), "database connection URL (defaults to $DATABASE_URL)")
	root.PersistentFlags().StringVar(&opts.schemaName, "schema", "public", "database schema (namespace) to migrate")
	root.PersistentFlags().StringVarP(&opts.schemaFile, "schema-file", "f", "schema.yaml", "path to the declarative schema file")
	root.PersistentFlags().BoolVar(&opts.inlineFKs, "inline-fks", false, "fold foreign keys of new tables into CREATE TABLE")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every statement")
	root.AddCommand(newPlanCmd(opts), newApplyCmd(opts))
	return root
}

func newPlanCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the changes that would bring the database up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, _, cleanup, err := computePlan(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer cleanup()
			printPlan(cmd, plan)
			return nil
		},
	}
}

func newApplyCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the pending changes to the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, m, cleanup, err := computePlan(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer cleanup()
			printPlan(cmd, plan)
			if plan.Empty() {
				return nil
			}
			if err := m.Apply(cmd.Context(), plan); err != nil {
				if errors.Is(err, schema.ErrPendingDestructive) {
					return fmt.Errorf("%w (re-run with --allow-destructive to apply them)", err)
				}
				return err
			}
			cmd.Println("Applied.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.allowDestructive, "allow-destructive", false, "apply destructive changes (drops, narrowing type changes)")
	return cmd
}

// computePlan loads the schema file, connects, and computes the plan. The
// returned cleanup closes the connection and must be called after the plan
// (and any apply) is done with it.
func computePlan(ctx context.Context, opts *options) (*schema.Plan, *schema.Migrate, func(), error) {
	if opts.dbURL == "" {
		return nil, nil, nil, errors.New("no database URL: pass --db-url or set DATABASE_URL")
	}
	tables, err := load.LoadFile(opts.schemaFile)
	if err != nil {
		return nil, nil, nil, err
	}
	drv, err := sql.Open(dialect.Postgres, opts.dbURL)
	if err != nil {
		return nil, nil, nil, err
	}
	var d dialect.Driver = drv
	if opts.verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		d = dialect.Debug(drv)
	}
	m, err := schema.NewMigrate(d,
		schema.WithSchemaName(opts.schemaName),
		schema.WithAllowDestructive(opts.allowDestructive),
		schema.WithInlineForeignKeys(opts.inlineFKs),
	)
	if err != nil {
		drv.Close()
		return nil, nil, nil, err
	}
	plan, err := m.Plan(ctx, tables...)
	if err != nil {
		drv.Close()
		return nil, nil, nil, err
	}
	return plan, m, func() { drv.Close() }, nil
}

func printPlan(cmd *cobra.Command, plan *schema.Plan) {
	if plan.Empty() {
		cmd.Println("No changes. The database matches the schema file.")
		return
	}
	if len(plan.Safe) > 0 {
		cmd.Printf("Safe changes (%d):\n", len(plan.Safe))
		printSteps(cmd, plan.Safe)
	}
	if len(plan.Destructive) > 0 {
		cmd.Printf("Destructive changes (%d):\n", len(plan.Destructive))
		printSteps(cmd, plan.Destructive)
	}
	if plan.TwoPhase {
		cmd.Println("Note: foreign-key cycles were split into a second phase of ALTER statements.")
	}
}

func printSteps(cmd *cobra.Command, steps []*schema.Step) {
	for _, s := range steps {
		cmd.Printf("  -- %s\n", s.Change)
		for _, stmt := range s.Cmd {
			cmd.Printf("     %s;\n", stmt)
		}
	}
}
