package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/platinummonkey/ehrops/pkg/cli"
	"github.com/platinummonkey/ehrops/pkg/config"
	"github.com/platinummonkey/ehrops/pkg/engine"
	"github.com/platinummonkey/ehrops/pkg/observability"
	"github.com/platinummonkey/ehrops/pkg/storage/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	rootCmd := cli.NewRootCommand(openEngine, os.Stdout)
	if err := rootCmd.Execute(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openEngine connects with the daemon's configuration. Logs go to stderr so
// command output stays machine-readable.
func openEngine(ctx context.Context) (*engine.Engine, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr).WithField("service", "ehrops-cli")

	conn, err := postgres.NewConnectionManager(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	rdb, err := postgres.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, seeding without a distributed lock")
		rdb = nil
	}

	e, err := engine.New(engine.Options{DB: conn.DB(), Redis: rdb, Config: cfg, Logger: logger})
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	release := func() {
		if err := e.Close(30 * time.Second); err != nil {
			logger.WithError(err).Warn("Pending notifications were not delivered")
		}
		if rdb != nil {
			rdb.Close()
		}
		conn.Close()
	}
	return e, release, nil
}
