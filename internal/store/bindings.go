package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/desertthunder/cardtpl/internal/models"
)

// LoadBindings fetches one channel's bindings and replaces that partition.
//
// An empty channel id makes no request and returns nothing.
func (s *Store) LoadBindings(ctx context.Context, channelID string) ([]models.Binding, error) {
	if channelID == "" {
		return nil, nil
	}

	items, err := s.api.ListBindings(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bindings for channel %s: %w", channelID, err)
	}

	partition := make(map[string]models.Binding, len(items))
	for _, b := range items {
		if b.ExternalCardID == "" {
			continue
		}
		partition[b.ExternalCardID] = b
	}

	s.mu.Lock()
	s.bindings[channelID] = partition
	s.loadedChannels[channelID] = true
	s.mu.Unlock()

	s.logger.Debug("bindings loaded", "channel", channelID, "count", len(items))
	return items, nil
}

// EnsureBindingsLoaded loads a channel's bindings at most once per session.
//
// Concurrent callers for the same channel share a single request, as in [Store.EnsureTemplatesLoaded].
func (s *Store) EnsureBindingsLoaded(ctx context.Context, channelID string) error {
	if channelID == "" || s.ChannelLoaded(channelID) {
		return nil
	}

	return s.shareLoad(ctx, "bindings:"+channelID, func(ctx context.Context) error {
		if s.ChannelLoaded(channelID) {
			return nil
		}
		_, err := s.LoadBindings(ctx, channelID)
		return err
	})
}

// ChannelLoaded reports whether a channel's partition came from a full load.
func (s *Store) ChannelLoaded(channelID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedChannels[channelID]
}

// Binding returns the cached binding for (channel, card).
func (s *Store) Binding(channelID, cardID string) (models.Binding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bindings[channelID][cardID]
	return b, ok
}

// Bindings returns the cached bindings of a channel ordered by card id.
func (s *Store) Bindings(channelID string) []models.Binding {
	s.mu.RLock()
	partition := s.bindings[channelID]
	out := make([]models.Binding, 0, len(partition))
	for _, b := range partition {
		out = append(out, b)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ExternalCardID < out[j].ExternalCardID })
	return out
}
