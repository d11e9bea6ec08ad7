package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/cardtpl/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the template API server over the local database until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Server
	if host := cmd.String("host"); host != "" {
		cfg.Host = host
	}
	if cmd.IsSet("port") {
		cfg.Port = cmd.Int("port")
	}

	if len(cfg.Tokens) == 0 {
		r.logger.Warn("no server.tokens configured; every API request will be rejected")
	}

	db, err := r.database()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, db, r.logger)
	r.writePlain("Serving template API on http://%s\n", cfg.Addr())

	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
