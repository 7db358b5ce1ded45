package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/arena/pkg/audit"
	"github.com/platinummonkey/arena/pkg/events"
	"github.com/platinummonkey/arena/pkg/observability"
	"github.com/platinummonkey/arena/pkg/rbac"
)

// schemaStep applies one component's migrations. Order matters: event tables
// reference users, which the rbac migrations create.
type schemaStep struct {
	name string
	run  func(ctx context.Context, db *sql.DB, logger *observability.Logger) error
}

var schemaSteps = []schemaStep{
	{"rbac", rbac.RunMigrations},
	{"events", events.RunMigrations},
	{"audit", audit.RunMigrations},
}

func newMigrateCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "migrate",
		Description: "Apply database migrations",
	}
	cmd.Run = func(ctx context.Context, args []string) error {
		if err := env.flagSet(cmd.Name).Parse(args); err != nil {
			return err
		}
		db, err := env.db(ctx)
		if err != nil {
			return err
		}
		return Migrate(ctx, db, env)
	}
	return cmd
}

// Migrate applies every component's migrations in dependency order
func Migrate(ctx context.Context, db *sql.DB, env *Env) error {
	for _, step := range schemaSteps {
		env.Log.WithField("component", step.name).Info("applying migrations")
		if err := step.run(ctx, db, env.Logger); err != nil {
			return fmt.Errorf("%s migrations: %w", step.name, err)
		}
	}
	env.Log.Info("schema is up to date")
	return nil
}
