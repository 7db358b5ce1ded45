package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/arena/pkg/rbac"
)

func loadSeed(path string) (*rbac.SeedData, error) {
	if path == "" {
		return rbac.DefaultSeed(), nil
	}
	return rbac.LoadSeedFile(path)
}

func newSeedCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "seed",
		Description: "Load the permission catalog and system roles",
	}
	cmd.Run = func(ctx context.Context, args []string) error {
		fs := env.flagSet(cmd.Name)
		file := fs.String("file", "", "YAML seed file (defaults to the built-in catalog, or ARENA_SEED_FILE)")
		dryRun := fs.Bool("dry-run", false, "Validate the seed without writing")
		if err := fs.Parse(args); err != nil {
			return err
		}
		path := *file
		if path == "" && env.Config != nil {
			path = env.Config.SeedFile
		}

		data, err := loadSeed(path)
		if err != nil {
			return err
		}
		if *dryRun {
			env.Log.WithFields(logrus.Fields{
				"permissions": len(data.Permissions),
				"roles":       len(data.Roles),
			}).Info("seed is valid")
			return nil
		}

		db, err := env.db(ctx)
		if err != nil {
			return err
		}
		result, err := rbac.Seed(ctx, rbac.NewStore(db), data, env.Logger)
		if err != nil {
			return fmt.Errorf("seed failed: %w", err)
		}

		enc := json.NewEncoder(env.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return cmd
}

func newCatalogCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "catalog",
		Description: "Print the permission catalog and system roles as YAML",
	}
	cmd.Run = func(ctx context.Context, args []string) error {
		fs := env.flagSet(cmd.Name)
		file := fs.String("file", "", "YAML seed file to normalize instead of the built-in catalog")
		if err := fs.Parse(args); err != nil {
			return err
		}
		data, err := loadSeed(*file)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(env.Out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	}
	return cmd
}
