package host

import (
	"errors"
	"sync"
	"time"

	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/shared/id"
)

// ErrDocumentNotFound is returned for unknown or revoked documents
var ErrDocumentNotFound = errors.New("document not found")

// Document is a generated sandbox document addressable by ID
type Document struct {
	ID        id.DocumentID
	Mode      mode.Mode
	HTML      string
	CreatedAt time.Time
}

// DocumentStore holds mounted documents until they are revoked. It is the
// server-side analogue of an object URL.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[id.DocumentID]Document
}

// NewDocumentStore creates an empty store
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[id.DocumentID]Document)}
}

// Put registers html and returns its document
func (s *DocumentStore) Put(m mode.Mode, html string) Document {
	doc := Document{ID: id.NewDocumentID(), Mode: m, HTML: html, CreatedAt: time.Now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return doc
}

// Get retrieves a live document
func (s *DocumentStore) Get(docID id.DocumentID) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[docID]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

// Revoke releases a document. Revoking twice is a no-op.
func (s *DocumentStore) Revoke(docID id.DocumentID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.docs[docID]
	delete(s.docs, docID)
	return ok
}

// Len returns the number of live documents
func (s *DocumentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
