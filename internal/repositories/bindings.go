package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/cardtpl/internal/models"
	"github.com/desertthunder/cardtpl/internal/shared"
)

const bindingColumns = `id, user_id, channel_id, external_card_id, card_name, sheet_type, mode, template_id, template_snapshot, created_at, updated_at`

// BindingRepository persists (channel, card) → template bindings scoped by owner.
type BindingRepository struct {
	db *sql.DB
}

// NewBindingRepository creates a new BindingRepository with the given database connection
func NewBindingRepository(db *sql.DB) *BindingRepository {
	return &BindingRepository{db: db}
}

// List returns the user's bindings in a channel, most recently updated first.
func (r *BindingRepository) List(ctx context.Context, userID, channelID string) ([]models.Binding, error) {
	query := `SELECT ` + bindingColumns + ` FROM character_card_template_bindings
		WHERE user_id = ? AND channel_id = ? ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bindings: %w", err)
	}
	defer rows.Close()

	bindings := []models.Binding{}
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return bindings, nil
}

// Upsert creates or replaces the binding for (user, channel, card).
//
// Managed bindings must reference a template the user owns; an empty sheet type is
// inherited from that template.
func (r *BindingRepository) Upsert(ctx context.Context, userID string, payload models.BindingPayload) (*models.Binding, error) {
	if err := payload.Normalize(); err != nil {
		return nil, err
	}

	var result *models.Binding
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if payload.Mode == models.ModeManaged {
			t, err := getOwnedTemplate(ctx, tx, userID, payload.TemplateID)
			if err != nil {
				return err
			}
			if payload.SheetType == "" {
				payload.SheetType = t.SheetType
			}
		}

		row := tx.QueryRowContext(ctx,
			`SELECT `+bindingColumns+` FROM character_card_template_bindings
			WHERE user_id = ? AND channel_id = ? AND external_card_id = ?`,
			userID, payload.ChannelID, payload.ExternalCardID,
		)
		existing, err := scanBinding(row)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		ts := now()
		if existing != nil {
			existing.CardName = payload.CardName
			existing.SheetType = payload.SheetType
			existing.Mode = payload.Mode
			existing.TemplateID = payload.TemplateID
			existing.TemplateSnapshot = payload.TemplateSnapshot
			existing.UpdatedAt = ts

			query := `
				UPDATE character_card_template_bindings
				SET card_name = ?, sheet_type = ?, mode = ?, template_id = ?, template_snapshot = ?, updated_at = ?
				WHERE id = ?
			`
			_, err := tx.ExecContext(ctx, query,
				existing.CardName, existing.SheetType, existing.Mode, existing.TemplateID, existing.TemplateSnapshot, existing.UpdatedAt,
				existing.ID,
			)
			if err != nil {
				return fmt.Errorf("failed to update binding: %w", err)
			}
			result = existing
			return nil
		}

		b := models.Binding{
			ID:               shared.GenerateID(),
			UserID:           userID,
			ChannelID:        payload.ChannelID,
			ExternalCardID:   payload.ExternalCardID,
			CardName:         payload.CardName,
			SheetType:        payload.SheetType,
			Mode:             payload.Mode,
			TemplateID:       payload.TemplateID,
			TemplateSnapshot: payload.TemplateSnapshot,
			CreatedAt:        ts,
			UpdatedAt:        ts,
		}

		query := `INSERT INTO character_card_template_bindings (` + bindingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err = tx.ExecContext(ctx, query,
			b.ID, b.UserID, b.ChannelID, b.ExternalCardID, b.CardName, b.SheetType,
			b.Mode, b.TemplateID, b.TemplateSnapshot, b.CreatedAt, b.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert binding: %w", err)
		}
		result = &b
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func scanBinding(s scanner) (*models.Binding, error) {
	var (
		b    models.Binding
		mode string
	)
	err := s.Scan(&b.ID, &b.UserID, &b.ChannelID, &b.ExternalCardID, &b.CardName, &b.SheetType,
		&mode, &b.TemplateID, &b.TemplateSnapshot, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan binding: %w", err)
	}
	b.Mode = models.BindingMode(mode)
	return &b, nil
}
