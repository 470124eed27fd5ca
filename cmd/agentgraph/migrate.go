package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate handles `agentgraph migrate <subcommand> [options] [arg]`.
func runMigrate(args []string, out io.Writer) error {
	if len(args) < 1 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printMigrateUsage(out)
		if len(args) < 1 {
			return errors.New("missing migrate subcommand")
		}
		return nil
	}
	subcommand := args[0]

	fset := flag.NewFlagSet("migrate "+subcommand, flag.ContinueOnError)
	fset.SetOutput(out)
	configPath := fset.String("config", "", "Path to config file")
	dbType := fset.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fset.String("db-url", "", "Database connection URL")
	flagArgs, positional := splitMigrateArgs(args[1:])
	if err := fset.Parse(flagArgs); err != nil {
		return err
	}

	migrator, err := createMigrator(*configPath, *dbType, *dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(out)
	return cli.Run(context.Background(), subcommand, positional)
}

// splitMigrateArgs separates --flags from positional values so negative
// step counts such as "steps -1" are not parsed as flags.
func splitMigrateArgs(args []string) (flags, positional []string) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "--") {
			positional = append(positional, a)
			continue
		}
		flags = append(flags, a)
		if !strings.Contains(a, "=") && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	return flags, positional
}

// createMigrator prefers explicit --db-type/--db-url and otherwise uses the
// database section of the config.
func createMigrator(configPath, dbType, dbURL string) (*migration.DefaultMigrator, error) {
	if dbType != "" && dbURL != "" {
		return migration.NewMigratorFromURL(dbType, dbURL, zap.NewNop())
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if dbType != "" {
		cfg.Database.Driver = dbType
	}
	return migration.NewMigratorFromConfig(databaseConfig(cfg.Database), zap.NewNop())
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage(out io.Writer) {
	fmt.Fprintln(out, `Database Migration Commands

Usage:
  agentgraph migrate <subcommand> [options] [arg]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration
  steps <n>   Apply (n>0) or rollback (n<0) n migrations
  status      Show migration status
  version     Show current migration version
  info        Show migration summary
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  reset       Rollback all migrations
  help        Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  agentgraph migrate up
  agentgraph migrate status --config /etc/agentgraph/config.yaml
  agentgraph migrate goto 1
  agentgraph migrate reset --db-type sqlite --db-url ./agentgraph.db`)
}
