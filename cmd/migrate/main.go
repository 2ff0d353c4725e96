package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/busfleet/payroll-backend-go/internal/config"
	"github.com/busfleet/payroll-backend-go/internal/pkg/migration"
)

func main() {
	var migrationsPath string
	flag.StringVar(&migrationsPath, "path", "", "Path to migrations directory (default: DB_MIGRATIONS_PATH or ./migrations)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	if migrationsPath == "" {
		migrationsPath = cfg.Database.MigrationsPath
	}
	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		fatal(logger, "Failed to resolve migrations path", err)
	}

	logger.Info("Migration CLI started", slog.String("command", command), slog.String("migrations_path", absPath))

	m, err := migration.New(cfg.DatabaseURL(), absPath, logger)
	if err != nil {
		fatal(logger, "Failed to create migrator", err)
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "step":
		if len(args) < 2 {
			fatal(logger, "Step count required. Usage: migrate step <n>", nil)
		}
		n, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			fatal(logger, "Invalid step count", convErr)
		}
		err = m.Steps(n)
	case "version":
		version, dirty, vErr := m.Version()
		if vErr != nil {
			fatal(logger, "Failed to get version", vErr)
		}
		if version == 0 {
			logger.Info("No migrations applied")
		} else {
			logger.Info("Current migration version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
		}
	case "force":
		if len(args) < 2 {
			fatal(logger, "Version required. Usage: migrate force <version>", nil)
		}
		version, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			fatal(logger, "Invalid version number", convErr)
		}
		err = m.Force(version)
	default:
		logger.Error("Unknown command", slog.String("command", command))
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fatal(logger, "Migration failed", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	if err != nil {
		logger.Error(msg, slog.Any("error", err))
	} else {
		logger.Error(msg)
	}
	os.Exit(1)
}

func printUsage() {
	fmt.Println(`Fleet payroll database migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                 Apply all pending migrations
  down               Roll back all migrations
  step <n>           Apply n migrations (positive=up, negative=down)
  version            Show current migration version
  force <version>    Force set migration version

Flags:
  -path string       Path to migrations directory

Environment Variables:
  DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME, DB_SSL_MODE, DB_MIGRATIONS_PATH`)
}
