package main

import (
	"context"
	"database/sql"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/arena/pkg/cli"
	"github.com/platinummonkey/arena/pkg/config"
	"github.com/platinummonkey/arena/pkg/observability"
	"github.com/platinummonkey/arena/pkg/storage/postgres"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)

	env := &cli.Env{
		Out:    os.Stdout,
		Log:    log,
		Logger: observability.NewLogger(observability.InfoLevel, os.Stderr),
	}

	// catalog and seed -dry-run work without a full environment.
	cfg, cfgErr := config.LoadConfig()
	if cfgErr == nil {
		env.Config = cfg
		if level, err := logrus.ParseLevel(cfg.Observability.LogLevel.String()); err == nil {
			log.SetLevel(level)
		}
	}

	var conn *postgres.ConnectionManager
	env.OpenDB = func(ctx context.Context) (*sql.DB, error) {
		if conn != nil {
			return conn.DB(), nil
		}
		if cfgErr != nil {
			return nil, cfgErr
		}
		var err error
		conn, err = postgres.NewConnectionManager(ctx, postgres.ConnectionConfig{
			URL:      cfg.Database.URL,
			MaxConns: 2,
			Timeout:  cfg.Database.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return conn.DB(), nil
	}

	err := cli.NewRootCommand(env).Execute(context.Background(), os.Args[1:], os.Stdout)
	if conn != nil {
		conn.Close()
	}
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}
