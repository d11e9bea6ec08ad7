package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/cardtpl/internal/formatter"
	"github.com/desertthunder/cardtpl/internal/models"
	"github.com/desertthunder/cardtpl/internal/shared"
	"github.com/desertthunder/cardtpl/internal/store"
	"github.com/urfave/cli/v3"
)

// BindingsList prints the bindings of one channel.
func (r *Runner) BindingsList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	bindings, err := r.templateStore().LoadBindings(ctx, cmd.String("channel"))
	if err != nil {
		return fmt.Errorf("failed to list bindings: %w", err)
	}
	return formatter.WriteBindings(r.output, format, bindings)
}

// BindingsBind binds a card to a shared template in managed mode.
func (r *Runner) BindingsBind(ctx context.Context, cmd *cli.Command) error {
	ref := cardRef(cmd)
	templateID := cmd.String("template")

	b, err := r.templateStore().BindCardToTemplate(ctx, ref, templateID)
	if err != nil {
		return fmt.Errorf("failed to bind card: %w", err)
	}

	r.logger.Info("card bound", "channel", ref.ChannelID, "card", ref.ExternalCardID, "template", templateID)
	return r.writeBinding(b)
}

// BindingsDetach gives a card a private snapshot. Without --content or --file the snapshot is
// the content the card resolves to right now.
func (r *Runner) BindingsDetach(ctx context.Context, cmd *cli.Command) error {
	ref := cardRef(cmd)
	s := r.templateStore()

	snapshot, ok, err := readContent(cmd)
	if err != nil {
		return err
	}
	if !ok {
		snapshot = s.LoadAndResolve(ctx, ref.ChannelID, ref.ExternalCardID, ref.SheetType, "")
	}
	if strings.TrimSpace(snapshot) == "" {
		return fmt.Errorf("%w: no content to detach; pass --content or --file", shared.ErrMissingArgument)
	}

	b, err := s.BindCardToDetachedTemplate(ctx, ref, snapshot)
	if err != nil {
		return fmt.Errorf("failed to detach card: %w", err)
	}

	r.logger.Info("card detached", "channel", ref.ChannelID, "card", ref.ExternalCardID)
	return r.writeBinding(b)
}

// BindingsEnsure binds every listed card that has no binding yet.
func (r *Runner) BindingsEnsure(ctx context.Context, cmd *cli.Command) error {
	channelID := cmd.String("channel")
	cards, err := loadCards(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("ensuring bindings", "channel", channelID, "cards", len(cards))
	r.writePlain("Ensuring bindings for %d cards in %s\n\n", len(cards), channelID)

	progress, wait := r.progressPrinter()
	result, err := r.engine(0).EnsureAll(ctx, progress, channelID, cards, cmd.String("fallback"))
	wait()
	if err != nil {
		return err
	}

	r.writePlainln("")
	r.writePlainHeader("Bindings Ensured")
	r.writePlain("Existing: %d\n", result.Existing)
	r.writePlain("Created: %d\n", result.Created)
	r.writePlain("Skipped: %d\n", result.Skipped)
	r.writePlain("Failed: %d\n", result.Failed)

	if result.Failed > 0 {
		r.writePlain("\nFailed cards:\n")
		for _, res := range result.Results {
			if res.Error != nil {
				r.writePlain("  - %s: %v\n", res.Card.ID, res.Error)
			}
		}
	}
	return nil
}

// BindingsWarm loads templates and the bindings of the channels given as arguments.
func (r *Runner) BindingsWarm(ctx context.Context, cmd *cli.Command) error {
	channels := cmd.Args().Slice()
	if len(channels) == 0 {
		return fmt.Errorf("%w: at least one channel id", shared.ErrMissingArgument)
	}

	progress, wait := r.progressPrinter()
	result, err := r.engine(cmd.Int("concurrency")).WarmChannels(ctx, progress, channels)
	wait()
	if err != nil {
		return err
	}

	r.writePlainln("Loaded %d channels, %d failed", result.Loaded, result.Failed)
	for _, ch := range result.Channels {
		if ch.Error != nil {
			r.writePlain("  ✗ %s: %v\n", ch.ChannelID, ch.Error)
		} else {
			r.writePlain("  ✓ %s (%d bindings)\n", ch.ChannelID, ch.Count)
		}
	}
	return nil
}

// Resolve prints the effective template content for a card.
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	s := r.templateStore()
	channelID := cmd.String("channel")
	cardID := cmd.String("card")
	sheetType := cmd.String("sheet-type")
	fallback := cmd.String("fallback")

	var content string
	if channelID == "" || cardID == "" {
		if err := s.EnsureTemplatesLoaded(ctx); err != nil {
			r.logger.Warn("resolving without templates", "error", err)
		}
		content = s.ResolveDefaultTemplate(sheetType, fallback)
	} else {
		content = s.LoadAndResolve(ctx, channelID, cardID, sheetType, fallback)
	}

	if cmd.Bool("render") {
		out, err := formatter.RenderContent(content, 0)
		if err != nil {
			return err
		}
		return r.writePlain("%s", out)
	}
	return r.writePlain("%s\n", content)
}

func (r *Runner) writeBinding(b *models.Binding) error {
	if b == nil {
		r.logger.Warn("server returned no binding")
		return nil
	}

	target := b.TemplateID
	if b.Mode == models.ModeDetached {
		target = fmt.Sprintf("snapshot, %d chars", len([]rune(b.TemplateSnapshot)))
	}
	return r.writePlain("✓ %s/%s → %s (%s)\n", b.ChannelID, b.ExternalCardID, b.Mode, target)
}

func cardRef(cmd *cli.Command) store.CardRef {
	return store.CardRef{
		ChannelID:      cmd.String("channel"),
		ExternalCardID: cmd.String("card"),
		CardName:       cmd.String("name"),
		SheetType:      cmd.String("sheet-type"),
	}
}

// parseCard parses "id[:name[:sheetType]]".
func parseCard(raw string) (models.CharacterCard, error) {
	parts := strings.SplitN(raw, ":", 3)
	card := models.CharacterCard{ID: strings.TrimSpace(parts[0])}
	if card.ID == "" {
		return card, fmt.Errorf("%w: card %q has no id", shared.ErrInvalidArgument, raw)
	}
	if len(parts) > 1 {
		card.Name = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		card.SheetType = strings.TrimSpace(parts[2])
	}
	return card, nil
}

// loadCards collects cards from --cards-file followed by every --card flag.
func loadCards(cmd *cli.Command) ([]models.CharacterCard, error) {
	var cards []models.CharacterCard

	if path := cmd.String("cards-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read cards file: %w", err)
		}
		if err := json.Unmarshal(data, &cards); err != nil {
			return nil, fmt.Errorf("%w: cards file must be a JSON array: %v", shared.ErrInvalidInput, err)
		}
	}

	for _, raw := range cmd.StringSlice("card") {
		card, err := parseCard(raw)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}

	if len(cards) == 0 {
		return nil, fmt.Errorf("%w: pass --card or --cards-file", shared.ErrMissingArgument)
	}
	return cards, nil
}
