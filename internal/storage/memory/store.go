// Package memory is the in-process CodeStore
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/storage"
)

// Store keeps snippets in a map
type Store struct {
	mu       sync.RWMutex
	snippets map[mode.Mode]storage.Snippet
}

// New creates an empty store
func New() *Store {
	return &Store{snippets: make(map[mode.Mode]storage.Snippet)}
}

func (s *Store) Load(_ context.Context, m mode.Mode) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snip, ok := s.snippets[m]
	return snip.Code, ok, nil
}

func (s *Store) Save(_ context.Context, m mode.Mode, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snippets[m] = storage.Snippet{Mode: m, Code: code, UpdatedAt: time.Now().UTC()}
	return nil
}

func (s *Store) Delete(_ context.Context, m mode.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snippets[m]; !ok {
		return storage.ErrSnippetNotFound
	}
	delete(s.snippets, m)
	return nil
}

func (s *Store) List(_ context.Context) ([]storage.Snippet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.Snippet, 0, len(s.snippets))
	for _, snip := range s.snippets {
		out = append(out, snip)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mode < out[j].Mode })
	return out, nil
}

func (s *Store) Close() error { return nil }

var _ storage.CodeStore = (*Store)(nil)
