// Package unread counts inbound bot messages that arrived while the
// widget was not visible.
package unread

import (
	"sync"

	"github.com/Thanhpt21/chatsync-go/internal/store"
)

// Tracker observes store appends and maintains the unseen-bot-message
// count. Appends fire exactly once per inserted message (replacements do
// not re-fire), so each insert is counted at most once.
type Tracker struct {
	mu      sync.Mutex
	visible bool
	count   int
}

// NewTracker creates a tracker; the view starts hidden.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe subscribes the tracker to a store's appends.
func (t *Tracker) Observe(s *store.Store) {
	s.OnAppend(t.HandleAppend)
}

// HandleAppend processes one appended message at the given timeline length.
func (t *Tracker) HandleAppend(msg store.Message, length int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.visible {
		return
	}
	if msg.SenderType == store.SenderBot && msg.Status != store.StatusSending {
		t.count++
	}
}

// SetVisible updates visibility; becoming visible resets the count.
func (t *Tracker) SetVisible(visible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.visible = visible
	if visible {
		t.count = 0
	}
}

// Count returns the current unread count.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}
