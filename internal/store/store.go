package store

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cardtpl/internal/models"
	"github.com/desertthunder/cardtpl/internal/services"
	"golang.org/x/sync/singleflight"
)

// KeyValueStore is durable string storage local to the client, holding the
// migration flag and the legacy template blob.
type KeyValueStore interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// Options configures a [Store].
type Options struct {
	API     services.TemplateAPI
	Storage KeyValueStore
	UserID  string // scopes the migration flag; migration is skipped when empty
	Logger  *log.Logger
}

// Store is the session cache for templates and per-channel bindings.
//
// Reads never touch the network. Lazy loads are collapsed per key with singleflight;
// mutations call the API first and patch the cache afterwards. It is safe for concurrent use,
// but concurrent mutations of the same entity are applied in whatever order they complete.
type Store struct {
	api     services.TemplateAPI
	storage KeyValueStore
	userID  string
	logger  *log.Logger

	mu              sync.RWMutex
	templates       []models.Template // server order
	templateIndex   map[string]int
	templatesLoaded bool
	bindings        map[string]map[string]models.Binding // channel → card → binding
	loadedChannels  map[string]bool

	sf        singleflight.Group
	migrating atomic.Bool
}

// New creates an empty store. Nothing is loaded until first use.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Store{
		api:            opts.API,
		storage:        opts.Storage,
		userID:         opts.UserID,
		logger:         logger.WithPrefix("store"),
		templateIndex:  make(map[string]int),
		bindings:       make(map[string]map[string]models.Binding),
		loadedChannels: make(map[string]bool),
	}
}

// UserID returns the user the store migrates for.
func (s *Store) UserID() string {
	return s.userID
}

// Reset drops every cached template and binding. The migration guard is kept.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.templates = nil
	s.templateIndex = make(map[string]int)
	s.templatesLoaded = false
	s.bindings = make(map[string]map[string]models.Binding)
	s.loadedChannels = make(map[string]bool)
}

// shareLoad runs load once for all concurrent callers of key.
//
// The load runs on ctx without its cancellation, so one caller giving up does not fail the
// others sharing the flight. Each caller still returns ctx.Err() as soon as its own ctx ends.
func (s *Store) shareLoad(ctx context.Context, key string, load func(context.Context) error) error {
	flight := s.sf.DoChan(key, func() (any, error) {
		return nil, load(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-flight:
		return res.Err
	}
}

// replaceTemplatesLocked swaps in a new template list, dropping entries without an id.
func (s *Store) replaceTemplatesLocked(items []models.Template) {
	s.templates = make([]models.Template, 0, len(items))
	s.templateIndex = make(map[string]int, len(items))
	for _, t := range items {
		if t.ID == "" {
			continue
		}
		if i, ok := s.templateIndex[t.ID]; ok {
			s.templates[i] = t
			continue
		}
		s.templateIndex[t.ID] = len(s.templates)
		s.templates = append(s.templates, t)
	}
}

// putTemplateLocked replaces the template in place or appends it.
func (s *Store) putTemplateLocked(t models.Template) {
	if i, ok := s.templateIndex[t.ID]; ok {
		s.templates[i] = t
		return
	}
	s.templateIndex[t.ID] = len(s.templates)
	s.templates = append(s.templates, t)
}

// removeTemplateLocked drops the template and returns it if it was cached.
func (s *Store) removeTemplateLocked(id string) (models.Template, bool) {
	i, ok := s.templateIndex[id]
	if !ok {
		return models.Template{}, false
	}

	removed := s.templates[i]
	s.templates = append(s.templates[:i], s.templates[i+1:]...)
	delete(s.templateIndex, id)
	for j := i; j < len(s.templates); j++ {
		s.templateIndex[s.templates[j].ID] = j
	}
	return removed, true
}

// putBindingLocked replaces the (channel, card) entry of a partition.
func (s *Store) putBindingLocked(b models.Binding) {
	partition, ok := s.bindings[b.ChannelID]
	if !ok {
		partition = make(map[string]models.Binding)
		s.bindings[b.ChannelID] = partition
	}
	partition[b.ExternalCardID] = b
}
