// Command portalctl runs operator tasks against the portal database: schema
// migrations, default reference data and bootstrap accounts.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"benefits/internal/platform/config"
	"benefits/internal/platform/logger"
	"benefits/internal/platform/postgres"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "portalctl",
		Usage: "Benefits portal operator commands",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "optional YAML config file"},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			seedCommand(),
			accountCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every subcommand needs: config, a logger and the database.
type env struct {
	cfg    config.Server
	logger *slog.Logger
	db     *sql.DB
}

func openEnv(ctx context.Context, c *cli.Command) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, fmt.Errorf("database.dsn is required (set BENEFITS_DATABASE_DSN)")
	}
	return &env{cfg: cfg, logger: logger.New(cfg.LogLevel), db: db}, nil
}

func (e *env) Close() {
	_ = e.db.Close()
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the database schema",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: func(ctx context.Context, c *cli.Command) error {
					e, err := openEnv(ctx, c)
					if err != nil {
						return err
					}
					defer e.Close()
					if err := postgres.MigrateUp(ctx, e.db); err != nil {
						return err
					}
					return printVersion(ctx, e.db)
				},
			},
			{
				Name:  "down",
				Usage: "Roll back the latest migration",
				Action: func(ctx context.Context, c *cli.Command) error {
					e, err := openEnv(ctx, c)
					if err != nil {
						return err
					}
					defer e.Close()
					if err := postgres.MigrateDown(ctx, e.db); err != nil {
						return err
					}
					return printVersion(ctx, e.db)
				},
			},
			{
				Name:  "version",
				Usage: "Print the current schema version",
				Action: func(ctx context.Context, c *cli.Command) error {
					e, err := openEnv(ctx, c)
					if err != nil {
						return err
					}
					defer e.Close()
					return printVersion(ctx, e.db)
				},
			},
		},
	}
}

func printVersion(ctx context.Context, db *sql.DB) error {
	v, err := postgres.MigrationVersion(ctx, db)
	if err != nil {
		return err
	}
	fmt.Printf("schema version %d\n", v)
	return nil
}
