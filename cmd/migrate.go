package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/desertthunder/cardtpl/internal/shared"
	"github.com/desertthunder/cardtpl/internal/store"
	"github.com/urfave/cli/v3"
)

// keyLister is implemented by storages that can enumerate keys.
type keyLister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Migrate runs the one-time legacy template migration for the given cards.
func (r *Runner) Migrate(ctx context.Context, cmd *cli.Command) error {
	if r.config.Client.UserID == "" {
		return fmt.Errorf("%w: client.user_id is required for migration", shared.ErrMissingConfig)
	}
	if _, err := r.localStorage(); err != nil {
		return err
	}

	channelID := cmd.String("channel")
	cards, err := loadCards(cmd)
	if err != nil {
		return err
	}

	progress, wait := r.progressPrinter()
	report := r.engine(0).Migrate(ctx, progress, channelID, cards)
	wait()

	if report.Err != nil {
		return fmt.Errorf("migration aborted: %w", report.Err)
	}

	r.writePlainln("")
	r.writePlainHeader(fmt.Sprintf("Migration %s", report.Status))
	if report.Status == store.MigrationCompleted {
		r.writePlain("Reused: %d\n", report.Reused)
		r.writePlain("Created: %d\n", report.Created)
		r.writePlain("Detached: %d\n", report.Detached)
		r.writePlain("Skipped: %d\n", report.Skipped)
	}
	return nil
}

// LegacyImport stores a legacy JSON object of card id → template content in local storage,
// where the migration looks for it.
func (r *Runner) LegacyImport(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path to legacy JSON", shared.ErrMissingArgument)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read legacy file: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("%w: legacy file must be a JSON object: %v", shared.ErrInvalidInput, err)
	}

	storage, err := r.localStorage()
	if err != nil {
		return err
	}
	if err := storage.SetItem(ctx, store.LegacyTemplatesKey, string(data)); err != nil {
		return err
	}

	r.logger.Info("legacy templates imported", "cards", len(obj))
	return r.writePlain("✓ Imported legacy templates for %d cards\n", len(obj))
}

// LegacyStatus reports the stored legacy blob and migration flags.
func (r *Runner) LegacyStatus(ctx context.Context, cmd *cli.Command) error {
	storage, err := r.localStorage()
	if err != nil {
		return err
	}

	r.writePlainHeader("Legacy Templates")

	raw, ok, err := storage.GetItem(ctx, store.LegacyTemplatesKey)
	if err != nil {
		return err
	}
	if !ok || raw == "" {
		r.writePlain("Legacy data: none\n")
	} else {
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			r.writePlain("Legacy data: %d bytes (not a JSON object)\n", len(raw))
		} else {
			r.writePlain("Legacy data: %d cards\n", len(obj))
		}
	}

	userID := r.config.Client.UserID
	if flagKey := store.MigrationFlagKey(userID); flagKey != "" {
		done, _, err := storage.GetItem(ctx, flagKey)
		if err != nil {
			return err
		}
		r.writePlain("User %s: %s\n", userID, migrationState(done))
	} else {
		r.writePlain("User: not configured\n")
	}

	lister, ok := storage.(keyLister)
	if !ok {
		return nil
	}
	keys, err := lister.Keys(ctx, store.MigrationFlagPrefix+":")
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		r.writePlain("\nFlags:\n")
		for _, key := range keys {
			r.writePlain("  %s\n", key)
		}
	}
	return nil
}

// LegacyReset clears the configured user's migration flag so the next run migrates again.
func (r *Runner) LegacyReset(ctx context.Context, cmd *cli.Command) error {
	flagKey := store.MigrationFlagKey(r.config.Client.UserID)
	if flagKey == "" {
		return fmt.Errorf("%w: client.user_id", shared.ErrMissingConfig)
	}

	storage, err := r.localStorage()
	if err != nil {
		return err
	}
	if err := storage.RemoveItem(ctx, flagKey); err != nil {
		return err
	}

	r.logger.Info("migration flag cleared", "user", r.config.Client.UserID)
	return r.writePlain("✓ Migration flag cleared for %s\n", r.config.Client.UserID)
}

func migrationState(flag string) string {
	if flag == "1" {
		return "migrated"
	}
	return "not migrated"
}
