// Package contextstore persists the focus document served by the context
// server: {currentFocus, focusHistory} in a single JSON file. Keys it does
// not own are carried through writes untouched.
package contextstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nwant/thinking-partner-focus/logger"
)

// Focus status values.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

const (
	keyCurrentFocus    = "currentFocus"
	keyFocusHistory    = "focusHistory"
	keyRecentDecisions = "recentDecisions"
)

// Focus is a stored unit of attention.
type Focus struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	Context     string    `json:"context"`
	Tool        string    `json:"tool"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt,omitzero"`
}

// Document is the portion of the context file this package understands.
type Document struct {
	CurrentFocus    *Focus  `json:"currentFocus"`
	FocusHistory    []Focus `json:"focusHistory"`
	RecentDecisions []any   `json:"recentDecisions,omitempty"`
}

// Store reads and writes the context file. Safe for concurrent use within
// one process.
type Store struct {
	path  string
	mu    sync.Mutex
	now   func() time.Time
	newID func() string
	log   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the focus ID source.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// Open returns a store backed by path. The file is created on first write.
func Open(path string, opts ...Option) *Store {
	s := &Store{
		path:  path,
		now:   time.Now,
		newID: newFocusID,
		log:   logger.WithComponent("contextstore").With("path", path),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newFocusID returns a time-ordered UUID.
func newFocusID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load returns the current document. A missing file is an empty document.
func (s *Store) Load() (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, doc, err := s.read()
	return doc, err
}

// Current returns the active focus, or nil.
func (s *Store) Current() (*Focus, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	return doc.CurrentFocus, nil
}

// History returns completed foci, most recent first. limit <= 0 means all.
func (s *Store) History(limit int) ([]Focus, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(doc.FocusHistory) > limit {
		return doc.FocusHistory[:limit], nil
	}
	return doc.FocusHistory, nil
}

// SetFocus completes the active focus, moves it to the front of the
// history and activates a new focus.
func (s *Store) SetFocus(topic, context, tool string) (Focus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, doc, err := s.read()
	if err != nil {
		return Focus{}, err
	}

	now := s.now().UTC()
	if prev := doc.CurrentFocus; prev != nil {
		prev.Status = StatusCompleted
		prev.CompletedAt = now
		doc.FocusHistory = append([]Focus{*prev}, doc.FocusHistory...)
		s.log.Debug("focus completed", "id", prev.ID, "topic", prev.Topic)
	}

	next := Focus{
		ID:        s.newID(),
		Topic:     topic,
		Context:   context,
		Tool:      tool,
		Status:    StatusActive,
		StartedAt: now,
	}
	doc.CurrentFocus = &next

	if err := s.write(raw, doc); err != nil {
		return Focus{}, err
	}
	s.log.Info("focus set", "id", next.ID, "topic", next.Topic, "tool", next.Tool)
	return next, nil
}

// read returns the raw top-level object and the decoded document. Caller
// must hold mu.
func (s *Store) read() (map[string]json.RawMessage, Document, error) {
	raw := map[string]json.RawMessage{}
	doc := Document{FocusHistory: []Focus{}}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return raw, doc, nil
	}
	if err != nil {
		return nil, doc, fmt.Errorf("failed to read context file: %w", err)
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, doc, fmt.Errorf("failed to parse context file %s: %w", s.path, err)
	}

	if v, ok := raw[keyCurrentFocus]; ok {
		if err := json.Unmarshal(v, &doc.CurrentFocus); err != nil {
			return nil, doc, fmt.Errorf("invalid %s in %s: %w", keyCurrentFocus, s.path, err)
		}
	}
	if v, ok := raw[keyFocusHistory]; ok {
		if err := json.Unmarshal(v, &doc.FocusHistory); err != nil {
			return nil, doc, fmt.Errorf("invalid %s in %s: %w", keyFocusHistory, s.path, err)
		}
		if doc.FocusHistory == nil {
			doc.FocusHistory = []Focus{}
		}
	}
	if v, ok := raw[keyRecentDecisions]; ok {
		// Owned by other writers; tolerate any shape.
		if err := json.Unmarshal(v, &doc.RecentDecisions); err != nil {
			doc.RecentDecisions = nil
		}
	}
	return raw, doc, nil
}

// write merges doc into raw and replaces the file atomically. Caller must
// hold mu.
func (s *Store) write(raw map[string]json.RawMessage, doc Document) error {
	current, err := json.Marshal(doc.CurrentFocus)
	if err != nil {
		return err
	}
	history, err := json.Marshal(doc.FocusHistory)
	if err != nil {
		return err
	}
	raw[keyCurrentFocus] = current
	raw[keyFocusHistory] = history

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".context-*.json")
	if err != nil {
		return fmt.Errorf("failed to write context file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write context file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write context file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace context file: %w", err)
	}
	return nil
}
