package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/cardtpl/internal/models"
	"github.com/desertthunder/cardtpl/internal/shared"
)

const templateColumns = `id, user_id, name, sheet_type, content, is_global_default, is_sheet_default, created_at, updated_at`

// TemplateRepository persists character card templates scoped by owner.
//
// Default flags are kept exclusive per owner: at most one global default, and at most one
// sheet default per sheet type. Flag changes clear the previous holder in the same transaction.
type TemplateRepository struct {
	db *sql.DB
}

// NewTemplateRepository creates a new TemplateRepository with the given database connection
func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// List returns the user's templates, defaults first and then most recently updated.
//
// A non-empty sheetType filters by exact (trimmed) match.
func (r *TemplateRepository) List(ctx context.Context, userID, sheetType string) ([]models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM character_card_templates WHERE user_id = ?`
	args := []any{userID}

	if sheetType = strings.TrimSpace(sheetType); sheetType != "" {
		query += " AND sheet_type = ?"
		args = append(args, sheetType)
	}

	query += " ORDER BY is_global_default DESC, is_sheet_default DESC, updated_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	templates := []models.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return templates, nil
}

// Get returns a template owned by userID.
//
// Returns [shared.ErrNotFound] when the id is unknown and [shared.ErrForbidden] when another user owns it.
func (r *TemplateRepository) Get(ctx context.Context, userID, id string) (*models.Template, error) {
	return getOwnedTemplate(ctx, r.db, userID, id)
}

// Create validates the payload and inserts a new template.
func (r *TemplateRepository) Create(ctx context.Context, userID string, payload models.TemplatePayload) (*models.Template, error) {
	if err := payload.Normalize(); err != nil {
		return nil, err
	}

	ts := now()
	t := models.Template{
		ID:        shared.GenerateID(),
		UserID:    userID,
		Name:      payload.Name,
		SheetType: payload.SheetType,
		Content:   payload.Content,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if payload.IsGlobalDefault != nil {
		t.IsGlobalDefault = *payload.IsGlobalDefault
	}
	if payload.IsSheetDefault != nil {
		t.IsSheetDefault = *payload.IsSheetDefault
	}

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := clearDefaults(ctx, tx, t); err != nil {
			return err
		}

		query := `INSERT INTO character_card_templates (` + templateColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err := tx.ExecContext(ctx, query,
			t.ID, t.UserID, t.Name, t.SheetType, t.Content,
			t.IsGlobalDefault, t.IsSheetDefault, t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert template: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// Update applies a partial update to a template owned by userID.
func (r *TemplateRepository) Update(ctx context.Context, userID, id string, patch models.TemplatePatch) (*models.Template, error) {
	if err := patch.Normalize(); err != nil {
		return nil, err
	}

	var updated *models.Template
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		t, err := getOwnedTemplate(ctx, tx, userID, id)
		if err != nil {
			return err
		}

		if patch.Name != nil {
			t.Name = *patch.Name
		}
		if patch.SheetType != nil {
			t.SheetType = *patch.SheetType
		}
		if patch.Content != nil {
			t.Content = *patch.Content
		}
		if patch.IsGlobalDefault != nil {
			t.IsGlobalDefault = *patch.IsGlobalDefault
		}
		if patch.IsSheetDefault != nil {
			t.IsSheetDefault = *patch.IsSheetDefault
		}
		if t.IsSheetDefault && t.SheetType == "" {
			return fmt.Errorf("%w: sheet default requires a sheet type", shared.ErrInvalidInput)
		}

		// A sheet default that moves to another sheet type keeps its flag and
		// takes over that sheet type.
		if err := clearDefaults(ctx, tx, *t); err != nil {
			return err
		}

		t.UpdatedAt = now()
		query := `
			UPDATE character_card_templates
			SET name = ?, sheet_type = ?, content = ?, is_global_default = ?, is_sheet_default = ?, updated_at = ?
			WHERE id = ? AND user_id = ?
		`
		_, err = tx.ExecContext(ctx, query,
			t.Name, t.SheetType, t.Content, t.IsGlobalDefault, t.IsSheetDefault, t.UpdatedAt,
			t.ID, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to update template: %w", err)
		}

		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// SetDefault flags the template as the global or sheet default, clearing the previous holder.
func (r *TemplateRepository) SetDefault(ctx context.Context, userID, id string, scope models.DefaultScope) (*models.Template, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: scope must be %q or %q", shared.ErrInvalidInput, models.ScopeGlobal, models.ScopeSheet)
	}

	var updated *models.Template
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		t, err := getOwnedTemplate(ctx, tx, userID, id)
		if err != nil {
			return err
		}

		switch scope {
		case models.ScopeGlobal:
			t.IsGlobalDefault = true
		case models.ScopeSheet:
			if t.SheetType == "" {
				return fmt.Errorf("%w: sheet default requires a sheet type", shared.ErrInvalidInput)
			}
			t.IsSheetDefault = true
		}

		if err := clearDefaults(ctx, tx, *t); err != nil {
			return err
		}

		t.UpdatedAt = now()
		query := `
			UPDATE character_card_templates
			SET is_global_default = ?, is_sheet_default = ?, updated_at = ?
			WHERE id = ? AND user_id = ?
		`
		if _, err := tx.ExecContext(ctx, query, t.IsGlobalDefault, t.IsSheetDefault, t.UpdatedAt, t.ID, userID); err != nil {
			return fmt.Errorf("failed to set default: %w", err)
		}

		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Delete removes a template owned by userID.
//
// The user's managed bindings that point at it are first detached, carrying the
// template content as their snapshot.
func (r *TemplateRepository) Delete(ctx context.Context, userID, id string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		t, err := getOwnedTemplate(ctx, tx, userID, id)
		if err != nil {
			return err
		}

		detach := `
			UPDATE character_card_template_bindings
			SET mode = ?, template_id = '', template_snapshot = ?, updated_at = ?
			WHERE user_id = ? AND template_id = ? AND mode = ?
		`
		if _, err := tx.ExecContext(ctx, detach, models.ModeDetached, t.Content, now(), userID, id, models.ModeManaged); err != nil {
			return fmt.Errorf("failed to detach bindings: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM character_card_templates WHERE id = ? AND user_id = ?`, id, userID); err != nil {
			return fmt.Errorf("failed to delete template: %w", err)
		}
		return nil
	})
}

// clearDefaults unsets the flags t holds on the owner's other templates.
func clearDefaults(ctx context.Context, db execer, t models.Template) error {
	if t.IsGlobalDefault {
		query := `UPDATE character_card_templates SET is_global_default = 0 WHERE user_id = ? AND id != ? AND is_global_default = 1`
		if _, err := db.ExecContext(ctx, query, t.UserID, t.ID); err != nil {
			return fmt.Errorf("failed to clear global default: %w", err)
		}
	}

	if t.IsSheetDefault && t.SheetType != "" {
		query := `
			UPDATE character_card_templates SET is_sheet_default = 0
			WHERE user_id = ? AND id != ? AND sheet_type = ? AND is_sheet_default = 1
		`
		if _, err := db.ExecContext(ctx, query, t.UserID, t.ID, t.SheetType); err != nil {
			return fmt.Errorf("failed to clear sheet default: %w", err)
		}
	}
	return nil
}

func getOwnedTemplate(ctx context.Context, db execer, userID, id string) (*models.Template, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: template id is required", shared.ErrInvalidInput)
	}

	row := db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM character_card_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: template %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if t.UserID != userID {
		return nil, fmt.Errorf("%w: template %s belongs to another user", shared.ErrForbidden, id)
	}
	return t, nil
}

func scanTemplate(s scanner) (*models.Template, error) {
	var t models.Template
	err := s.Scan(&t.ID, &t.UserID, &t.Name, &t.SheetType, &t.Content,
		&t.IsGlobalDefault, &t.IsSheetDefault, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}
	return &t, nil
}
