package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/aether/internal/journal"
)

// ErrJournalNotRegistered is returned by [Registry.CreateJournal] when no
// factory has been registered under the requested journal name.
var ErrJournalNotRegistered = errors.New("config: journal not registered")

// JournalFactory builds a journal sink from its configuration block.
type JournalFactory func(ctx context.Context, cfg JournalConfig) (journal.Sink, error)

// Registry maps journal names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	journals map[string]JournalFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		journals: make(map[string]JournalFactory),
	}
}

// RegisterJournal registers a journal factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterJournal(name string, factory JournalFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.journals[name] = factory
}

// Journals returns the registered journal names in sorted order.
func (r *Registry) Journals() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.journals))
	for name := range r.journals {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// CreateJournal instantiates a journal sink using the factory registered
// under cfg.Name. An empty name returns a nil sink and no error: the
// journal is disabled. Returns [ErrJournalNotRegistered] if no factory has
// been registered for that name.
func (r *Registry) CreateJournal(ctx context.Context, cfg JournalConfig) (journal.Sink, error) {
	if cfg.Name == "" {
		return nil, nil
	}
	r.mu.RLock()
	factory, ok := r.journals[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrJournalNotRegistered, cfg.Name)
	}
	return factory(ctx, cfg)
}

// RegisterBuiltinJournals registers the "file" and "postgres" journals.
func RegisterBuiltinJournals(r *Registry) {
	r.RegisterJournal("file", func(_ context.Context, cfg JournalConfig) (journal.Sink, error) {
		return journal.NewFileSink(cfg.Path), nil
	})
	r.RegisterJournal("postgres", func(ctx context.Context, cfg JournalConfig) (journal.Sink, error) {
		sink, err := journal.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return sink, nil
	})
}
