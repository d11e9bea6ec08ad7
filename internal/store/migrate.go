package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/desertthunder/cardtpl/internal/models"
)

const (
	// LegacyTemplatesKey holds the JSON object mapping card id → template string.
	LegacyTemplatesKey = "sealchat_character_sheet_templates"
	// MigrationFlagPrefix is joined with the user id to form the completion flag key.
	MigrationFlagPrefix = "sealchat_template_migration_v1_done"

	migrationDone      = "1"
	migratedNameMarker = "-迁移-"
	defaultCardName    = "人物卡"
)

// MigrationFlagKey returns the completion flag key for a user, or "" for an empty id.
func MigrationFlagKey(userID string) string {
	if userID == "" {
		return ""
	}
	return MigrationFlagPrefix + ":" + userID
}

// HashTemplateContent returns "h" followed by the absolute value of a 32-bit rolling hash
// (h*31 + c over UTF-16 code units). It is only a display disambiguator.
func HashTemplateContent(content string) string {
	var hash int32
	for _, unit := range utf16.Encode([]rune(content)) {
		hash = (hash << 5) - hash + int32(unit)
	}

	abs := int64(hash)
	if abs < 0 {
		abs = -abs
	}
	return "h" + strconv.FormatInt(abs, 10)
}

// MigratedTemplateName builds the name given to a template created from legacy content.
func MigratedTemplateName(cardName, content string) string {
	if cardName == "" {
		cardName = defaultCardName
	}
	digest := HashTemplateContent(content)
	if len(digest) > 6 {
		digest = digest[len(digest)-6:]
	}
	return cardName + migratedNameMarker + digest
}

// MigrationStatus is the outcome of one migration attempt.
type MigrationStatus int

const (
	MigrationSkipped   MigrationStatus = iota // preconditions not met; nothing read or written
	MigrationDone                             // flag was already set
	MigrationNoLegacy                         // nothing to migrate; flag set
	MigrationCompleted                        // cards processed; flag set
	MigrationAborted                          // error; flag left unset so the next trigger retries
)

func (s MigrationStatus) String() string {
	switch s {
	case MigrationSkipped:
		return "skipped"
	case MigrationDone:
		return "already done"
	case MigrationNoLegacy:
		return "no legacy data"
	case MigrationCompleted:
		return "completed"
	case MigrationAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// MigrationReport summarizes what a migration attempt did.
type MigrationReport struct {
	Status   MigrationStatus
	Reused   int // cards bound to an existing template with identical content
	Created  int // templates created from legacy content
	Detached int // cards given a detached binding because creation failed
	Skipped  int // cards with no legacy content or an existing binding
	Err      error
}

// MigrateLocalTemplatesIfNeeded imports legacy locally stored templates for the given cards,
// at most once per user per local storage.
//
// Cards that already have a binding or no legacy content are skipped. Legacy content identical
// (per sheet type) to a cached template is bound to it; otherwise a new template is created and
// bound. A failed create falls back to a detached binding with the legacy content. Any other
// failure aborts the run without setting the flag; cards bound before the failure stay bound and
// are skipped by the next run.
func (s *Store) MigrateLocalTemplatesIfNeeded(ctx context.Context, channelID string, cards []models.CharacterCard) MigrationReport {
	flagKey := MigrationFlagKey(s.userID)
	if flagKey == "" || channelID == "" || len(cards) == 0 || s.storage == nil {
		return MigrationReport{Status: MigrationSkipped}
	}

	if !s.migrating.CompareAndSwap(false, true) {
		return MigrationReport{Status: MigrationSkipped}
	}
	defer s.migrating.Store(false)

	logger := s.logger.With("user", s.userID, "channel", channelID)

	abort := func(report MigrationReport, err error) MigrationReport {
		logger.Warn("template migration aborted", "err", err)
		report.Status = MigrationAborted
		report.Err = err
		return report
	}

	done, _, err := s.storage.GetItem(ctx, flagKey)
	if err != nil {
		return abort(MigrationReport{}, fmt.Errorf("failed to read migration flag: %w", err))
	}
	if done == migrationDone {
		return MigrationReport{Status: MigrationDone}
	}

	legacy, found, err := s.readLegacyTemplates(ctx)
	if err != nil {
		return abort(MigrationReport{}, err)
	}
	if !found {
		if err := s.storage.SetItem(ctx, flagKey, migrationDone); err != nil {
			return abort(MigrationReport{}, fmt.Errorf("failed to set migration flag: %w", err))
		}
		return MigrationReport{Status: MigrationNoLegacy}
	}

	var report MigrationReport
	if err := s.EnsureTemplatesLoaded(ctx); err != nil {
		return abort(report, err)
	}
	if err := s.EnsureBindingsLoaded(ctx, channelID); err != nil {
		return abort(report, err)
	}

	contentIndex := make(map[string]models.Template)
	for _, t := range s.Templates() {
		key := contentKey(t.SheetType, t.Content)
		if _, ok := contentIndex[key]; !ok {
			contentIndex[key] = t
		}
	}

	for _, card := range cards {
		content := strings.TrimSpace(legacy[card.ID])
		if content == "" {
			report.Skipped++
			continue
		}
		if _, ok := s.Binding(channelID, card.ID); ok {
			report.Skipped++
			continue
		}

		ref := CardRef{ChannelID: channelID, ExternalCardID: card.ID, CardName: card.Name, SheetType: card.SheetType}
		key := contentKey(card.SheetType, content)

		tpl, ok := contentIndex[key]
		if ok {
			report.Reused++
		} else {
			created, err := s.CreateTemplate(ctx, models.TemplatePayload{
				Name:      MigratedTemplateName(card.Name, content),
				SheetType: card.SheetType,
				Content:   content,
			})
			switch {
			case err != nil:
				logger.Warn("template creation failed, binding detached copy", "card", card.ID, "err", err)
			case created == nil:
				logger.Warn("template creation returned no item, binding detached copy", "card", card.ID)
			default:
				tpl, ok = *created, true
				contentIndex[key] = tpl
				report.Created++
			}
		}

		if ok && tpl.ID != "" {
			if _, err := s.BindCardToTemplate(ctx, ref, tpl.ID); err != nil {
				return abort(report, fmt.Errorf("failed to bind card %s: %w", card.ID, err))
			}
			continue
		}

		if _, err := s.BindCardToDetachedTemplate(ctx, ref, content); err != nil {
			return abort(report, fmt.Errorf("failed to bind card %s: %w", card.ID, err))
		}
		report.Detached++
	}

	if err := s.storage.SetItem(ctx, flagKey, migrationDone); err != nil {
		return abort(report, fmt.Errorf("failed to set migration flag: %w", err))
	}

	report.Status = MigrationCompleted
	logger.Info("template migration completed",
		"reused", report.Reused, "created", report.Created, "detached", report.Detached, "skipped", report.Skipped)
	return report
}

// readLegacyTemplates returns the legacy card → content map. found is false when there is
// nothing to migrate: no blob, an empty blob, or JSON that is not an object.
func (s *Store) readLegacyTemplates(ctx context.Context) (map[string]string, bool, error) {
	raw, ok, err := s.storage.GetItem(ctx, LegacyTemplatesKey)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read legacy templates: %w", err)
	}
	if !ok || raw == "" {
		return nil, false, nil
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, false, fmt.Errorf("failed to parse legacy templates: %w", err)
	}

	obj, isObject := parsed.(map[string]any)
	if !isObject {
		return nil, false, nil
	}

	out := make(map[string]string, len(obj))
	for id, v := range obj {
		out[id] = legacyString(v)
	}
	return out, true, nil
}

// legacyString stringifies a legacy value; falsy values become "".
func legacyString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if !val {
			return ""
		}
		return "true"
	case float64:
		if val == 0 {
			return ""
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

func contentKey(sheetType, content string) string {
	return models.NormalizeSheetType(sheetType) + "::" + content
}
