package store

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrLoadInProgress is returned when a server load overlaps another.
var ErrLoadInProgress = errors.New("store: load already in progress")

// Store holds the conversation timeline. Messages are kept sorted by
// CreatedAt and unique by id; a message with a known id replaces the
// existing entry in place instead of appending a duplicate.
type Store struct {
	mu        sync.Mutex
	messages  []Message
	loading   bool
	attempted bool
	onAppend  []func(Message, int)
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// OnAppend registers a callback fired after a message is inserted (not
// replaced). The callback receives the message and the new timeline length.
func (s *Store) OnAppend(fn func(msg Message, length int)) {
	s.mu.Lock()
	s.onAppend = append(s.onAppend, fn)
	s.mu.Unlock()
}

// Append inserts a message, or replaces the existing entry when the id is
// already present (optimistic → confirmed promotion, placeholder updates).
// Returns true when the message was a true insert.
func (s *Store) Append(msg Message) bool {
	s.mu.Lock()
	if i := s.indexOf(msg.ID.String()); i >= 0 {
		s.messages[i] = msg
		s.resort()
		s.mu.Unlock()
		return false
	}
	s.messages = append(s.messages, msg)
	s.resort()
	length := len(s.messages)
	callbacks := make([]func(Message, int), len(s.onAppend))
	copy(callbacks, s.onAppend)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(msg, length)
	}
	return true
}

// Promote rewrites a temporary entry's id and status in place once the
// server's authoritative id is known. If the confirmed id is already in the
// store the temporary entry is removed instead, preserving uniqueness.
func (s *Store) Promote(tempID, confirmed MessageID, status DeliveryStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(tempID.String())
	if i < 0 {
		return false
	}
	if j := s.indexOf(confirmed.String()); j >= 0 && j != i {
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
		return true
	}
	s.messages[i].ID = confirmed
	s.messages[i].Status = status
	s.resort()
	return true
}

// SetStatus updates the delivery status of an entry.
func (s *Store) SetStatus(id MessageID, status DeliveryStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id.String())
	if i < 0 {
		return false
	}
	s.messages[i].Status = status
	return true
}

// LoadFromServer replaces the timeline with the authoritative server view.
// A load already in progress suppresses the call, and a failed fetch leaves
// the existing timeline intact; either way the load counts as attempted.
func (s *Store) LoadFromServer(ctx context.Context, fetch func(context.Context) ([]Message, error)) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return ErrLoadInProgress
	}
	s.loading = true
	s.mu.Unlock()

	msgs, err := fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.attempted = true
	if err != nil {
		return err
	}
	s.messages = msgs
	s.resort()
	return nil
}

// LoadFromLocal replaces the timeline with locally-persisted guest messages.
func (s *Store) LoadFromLocal(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append([]Message(nil), msgs...)
	s.resort()
	s.attempted = true
}

// MarkLoadAttempted records a load attempt without touching the timeline.
// Used when there is no conversation to load from.
func (s *Store) MarkLoadAttempted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempted = true
}

// LoadAttempted reports whether any load has completed (even a failed one).
func (s *Store) LoadAttempted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempted
}

// Snapshot returns a copy of the timeline in CreatedAt order.
func (s *Store) Snapshot() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Clear empties the timeline. Used on identity transitions.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.attempted = false
}

// --- internal ---

func (s *Store) indexOf(id string) int {
	for i := range s.messages {
		if s.messages[i].ID.String() == id {
			return i
		}
	}
	return -1
}

func (s *Store) resort() {
	sort.SliceStable(s.messages, func(i, j int) bool {
		return s.messages[i].CreatedAt.Before(s.messages[j].CreatedAt)
	})
}
