// Package storage defines the persistence collaborator: the last edited
// code per environment mode. Durability is best effort.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
)

// ErrSnippetNotFound is returned when no code was saved for a mode
var ErrSnippetNotFound = errors.New("snippet not found")

// Snippet is the saved editor text for one mode
type Snippet struct {
	Mode      mode.Mode `json:"mode"`
	Code      string    `json:"code"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CodeStore persists editor text keyed by mode
type CodeStore interface {
	// Load returns the saved text; ok is false when nothing was saved
	Load(ctx context.Context, m mode.Mode) (code string, ok bool, err error)
	Save(ctx context.Context, m mode.Mode, code string) error
	Delete(ctx context.Context, m mode.Mode) error
	List(ctx context.Context) ([]Snippet, error)
	Close() error
}
