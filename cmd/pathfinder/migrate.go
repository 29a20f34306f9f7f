package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/internal/migration"
)

// =============================================================================
// 🗄️ migrate 命令（风险日志表）
// =============================================================================

func runMigrate(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		printMigrateUsage(out)
		return errors.New("missing migrate subcommand")
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("migrate "+sub, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database URL (overrides config)")
	all := fs.Bool("all", false, "Roll back all migrations (down only)")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	var run func(cli *migration.CLI) error
	switch sub {
	case "up":
		run = func(cli *migration.CLI) error { return cli.RunUp(ctx) }
	case "down":
		run = func(cli *migration.CLI) error {
			if *all {
				return cli.RunDownAll(ctx)
			}
			return cli.RunDown(ctx)
		}
	case "status":
		run = func(cli *migration.CLI) error { return cli.RunStatus(ctx) }
	case "version":
		run = func(cli *migration.CLI) error { return cli.RunVersion(ctx) }
	case "info":
		run = func(cli *migration.CLI) error { return cli.RunInfo(ctx) }
	case "steps":
		n, err := positionalInt(fs.Args(), "steps")
		if err != nil {
			return err
		}
		run = func(cli *migration.CLI) error { return cli.RunSteps(ctx, n) }
	case "goto":
		n, err := positionalInt(fs.Args(), "goto")
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("goto version must be >= 0, got %d", n)
		}
		run = func(cli *migration.CLI) error { return cli.RunGoto(ctx, uint(n)) }
	case "force":
		n, err := positionalInt(fs.Args(), "force")
		if err != nil {
			return err
		}
		run = func(cli *migration.CLI) error { return cli.RunForce(ctx, n) }
	default:
		printMigrateUsage(out)
		return fmt.Errorf("unknown migrate subcommand %q", sub)
	}

	m, err := createMigrator(*configPath, *dbType, *dbURL)
	if err != nil {
		return err
	}
	defer m.Close()

	cli := migration.NewCLI(m)
	cli.SetOutput(out)
	return run(cli)
}

// createMigrator 优先使用 --db-url，否则读取配置中的数据库
func createMigrator(configPath, dbType, dbURL string) (*migration.DefaultMigrator, error) {
	logger := zap.NewNop()
	if dbURL != "" {
		if dbType == "" {
			dbType = "postgres"
		}
		return migration.NewMigratorFromURL(dbType, dbURL, logger)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if dbType != "" {
		cfg.Database.Driver = dbType
	}
	if cfg.Database.Driver == "" {
		return nil, errors.New("no database configured; set database.driver or pass --db-url")
	}
	return migration.NewMigratorFromConfig(cfg, logger)
}

func positionalInt(args []string, name string) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("%s requires a number", name)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s argument %q: %w", name, args[0], err)
	}
	return n, nil
}

func printMigrateUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: pathfinder migrate <subcommand> [options]

Subcommands:
  up              Apply all pending migrations
  down [--all]    Roll back the last migration, or all of them
  steps <n>       Apply (n > 0) or roll back (n < 0) n migrations
  goto <version>  Migrate to a specific version
  force <version> Force the recorded version (clears the dirty flag)
  status          Show migration status
  version         Show the current version
  info            Show migrator details

Options:
  --config <path>   Configuration file
  --db-type <type>  postgres, mysql or sqlite
  --db-url <url>    Database URL (overrides config)`)
}
