package tasks

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cardtpl/internal/models"
	"github.com/desertthunder/cardtpl/internal/shared"
	"github.com/desertthunder/cardtpl/internal/store"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultConcurrency = 4
	maxConcurrency     = 10
)

// Outcome describes what EnsureAll did for one card.
type Outcome string

const (
	OutcomeExisting      Outcome = "existing"
	OutcomeSheetDefault  Outcome = "sheet default"
	OutcomeGlobalDefault Outcome = "global default"
	OutcomeDetached      Outcome = "detached fallback"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeFailed        Outcome = "failed"
)

// CardBindingResult is the result of ensuring a binding for a single card.
type CardBindingResult struct {
	Card    models.CharacterCard
	Binding *models.Binding // nil when skipped or failed
	Outcome Outcome
	Error   error
}

// EnsureRunResult contains the per-card results of [BindingEngine.EnsureAll].
type EnsureRunResult struct {
	ChannelID string
	Results   []CardBindingResult
	Existing  int // cards that already had a binding
	Created   int // bindings created by this run
	Skipped   int // cards without an id
	Failed    int
}

// ChannelWarmResult is the result of loading one channel's bindings.
type ChannelWarmResult struct {
	ChannelID string
	Count     int
	Error     error
}

// WarmResult contains the per-channel results of [BindingEngine.WarmChannels].
type WarmResult struct {
	Channels []ChannelWarmResult // in request order
	Loaded   int
	Failed   int
}

// EngineOpts configures a [BindingEngine].
type EngineOpts struct {
	Concurrency int     // channels loaded in parallel by WarmChannels (default 4, max 10)
	RateLimit   float64 // cards per second in EnsureAll, 0 disables pacing
	Logger      *log.Logger
}

// BindingEngine runs store operations over many channels or cards with progress reporting.
type BindingEngine struct {
	store       *store.Store
	concurrency int
	limiter     *rate.Limiter
	logger      *log.Logger
}

// NewBindingEngine creates a new BindingEngine over s.
func NewBindingEngine(s *store.Store, opts EngineOpts) *BindingEngine {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	concurrency = min(concurrency, maxConcurrency)

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &BindingEngine{
		store:       s,
		concurrency: concurrency,
		limiter:     limiter,
		logger:      logger.WithPrefix("tasks"),
	}
}

// sendProgress never blocks; a full channel drops the update.
func (e *BindingEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
		e.logger.Debug("progress update dropped", "phase", update.Phase, "message", update.Message)
	}
}

// WarmChannels loads the templates and the bindings of every channel into the store.
//
// Channels load concurrently, bounded by the engine's concurrency. A failed channel is recorded in
// its result and does not stop the others. The returned error is non-nil only when the template
// list cannot be loaded or ctx is cancelled.
func (e *BindingEngine) WarmChannels(ctx context.Context, progress chan<- ProgressUpdate, channelIDs []string) (*WarmResult, error) {
	if e.store == nil {
		return nil, fmt.Errorf("%w: store not initialized", shared.ErrServiceUnavailable)
	}

	e.sendProgress(progress, loadTemplatesUpdate())
	if err := e.store.EnsureTemplatesLoaded(ctx); err != nil {
		return nil, err
	}

	ids := uniqueChannels(channelIDs)
	result := &WarmResult{Channels: make([]ChannelWarmResult, len(ids))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	done := make(chan int, len(ids))
	for i, channelID := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res := ChannelWarmResult{ChannelID: channelID}
			if err := e.store.EnsureBindingsLoaded(gctx, channelID); err != nil {
				res.Error = err
				e.logger.Warn("failed to load bindings", "channel", channelID, "err", err)
			} else {
				res.Count = len(e.store.Bindings(channelID))
			}

			result.Channels[i] = res
			done <- i
			return nil
		})
	}

	go func() {
		g.Wait()
		close(done)
	}()

	step := 0
	for i := range done {
		step++
		res := result.Channels[i]
		e.sendProgress(progress, channelLoadedUpdate(step, len(ids), res.ChannelID, res.Error))
	}

	if err := g.Wait(); err != nil {
		return result, err
	}

	for _, res := range result.Channels {
		if res.Error != nil {
			result.Failed++
		} else {
			result.Loaded++
		}
	}
	return result, nil
}

func uniqueChannels(channelIDs []string) []string {
	ids := make([]string, 0, len(channelIDs))
	for _, id := range channelIDs {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(ids, id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// EnsureAll makes sure every card in the channel has a binding, creating missing ones from the
// sheet default, the global default, or a detached copy of fallback.
//
// Cards are processed in order, paced by the engine's rate limit. Per-card failures are collected;
// a failure to load templates or bindings, or a cancelled context, stops the run.
func (e *BindingEngine) EnsureAll(ctx context.Context, progress chan<- ProgressUpdate, channelID string, cards []models.CharacterCard, fallback string) (*EnsureRunResult, error) {
	if e.store == nil {
		return nil, fmt.Errorf("%w: store not initialized", shared.ErrServiceUnavailable)
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, fmt.Errorf("%w: channel id", shared.ErrMissingArgument)
	}

	e.sendProgress(progress, loadTemplatesUpdate())
	if err := e.store.EnsureTemplatesLoaded(ctx); err != nil {
		return nil, err
	}
	if err := e.store.EnsureBindingsLoaded(ctx, channelID); err != nil {
		return nil, err
	}

	result := &EnsureRunResult{ChannelID: channelID, Results: make([]CardBindingResult, 0, len(cards))}
	total := len(cards)

	for i, card := range cards {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return result, err
			}
		} else if err := ctx.Err(); err != nil {
			return result, err
		}

		res := e.ensureCard(ctx, channelID, card, fallback)
		switch res.Outcome {
		case OutcomeExisting:
			result.Existing++
		case OutcomeSkipped:
			result.Skipped++
		case OutcomeFailed:
			result.Failed++
		default:
			result.Created++
		}

		result.Results = append(result.Results, res)
		e.sendProgress(progress, ensureCardUpdate(i+1, total, card, res))
	}

	return result, nil
}

func (e *BindingEngine) ensureCard(ctx context.Context, channelID string, card models.CharacterCard, fallback string) CardBindingResult {
	res := CardBindingResult{Card: card}

	if strings.TrimSpace(card.ID) == "" {
		res.Outcome = OutcomeSkipped
		return res
	}

	_, existed := e.store.Binding(channelID, card.ID)

	b, err := e.store.EnsureCardBinding(ctx, store.EnsureBindingRequest{
		CardRef: store.CardRef{
			ChannelID:      channelID,
			ExternalCardID: card.ID,
			CardName:       card.Name,
			SheetType:      card.SheetType,
		},
		FallbackTemplate: fallback,
	})
	switch {
	case err != nil:
		res.Outcome = OutcomeFailed
		res.Error = err
		return res
	case b == nil:
		res.Outcome = OutcomeSkipped
		return res
	}

	res.Binding = b
	switch {
	case existed:
		res.Outcome = OutcomeExisting
	case b.Mode == models.ModeDetached:
		res.Outcome = OutcomeDetached
	default:
		res.Outcome = OutcomeGlobalDefault
		if t, ok := e.store.SheetDefaultTemplate(card.SheetType); ok && t.ID == b.TemplateID {
			res.Outcome = OutcomeSheetDefault
		}
	}
	return res
}

// Migrate runs the legacy template migration for the channel's cards and reports its outcome.
func (e *BindingEngine) Migrate(ctx context.Context, progress chan<- ProgressUpdate, channelID string, cards []models.CharacterCard) store.MigrationReport {
	report := e.store.MigrateLocalTemplatesIfNeeded(ctx, channelID, cards)
	e.sendProgress(progress, migrationUpdate(report, report.Status))
	return report
}
