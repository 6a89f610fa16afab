// Package conversation resolves and persists the canonical conversation id
// used to address the channel for an authenticated actor.
package conversation

import (
	"context"
	"sync"

	"github.com/Thanhpt21/chatsync-go/internal/localstore"
)

// Lister looks up existing conversation ids for an owner, most recent first.
type Lister interface {
	ListConversationIDs(ctx context.Context, userID string) ([]string, error)
}

// Resolver holds the resolved conversation id. An existing conversation is
// preferred over creating a new one; if none exists, the id is captured
// later from the server's first send acknowledgement or a
// conversation_created event. Once set, the id is persisted so a restart
// does not fragment the timeline.
type Resolver struct {
	lister Lister
	local  localstore.Store

	mu             sync.Mutex
	conversationID string
}

// NewResolver creates a resolver seeded from persisted local state.
func NewResolver(lister Lister, local localstore.Store) *Resolver {
	return &Resolver{
		lister:         lister,
		local:          local,
		conversationID: localstore.ConversationID(local),
	}
}

// ConversationID returns the resolved id, or "" while unresolved.
func (r *Resolver) ConversationID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conversationID
}

// Set records and persists a conversation id. Returns true when the id
// actually changed.
func (r *Resolver) Set(id string) bool {
	if id == "" {
		return false
	}
	r.mu.Lock()
	if r.conversationID == id {
		r.mu.Unlock()
		return false
	}
	r.conversationID = id
	r.mu.Unlock()

	localstore.SetConversationID(r.local, id)
	return true
}

// Resolve returns the conversation id, looking up the actor's existing
// conversations when still unresolved. An empty result with nil error means
// no conversation exists yet; the first send will create one implicitly.
// Called again on every reconnect while unresolved.
func (r *Resolver) Resolve(ctx context.Context, userID string) (string, error) {
	r.mu.Lock()
	if r.conversationID != "" {
		id := r.conversationID
		r.mu.Unlock()
		return id, nil
	}
	r.mu.Unlock()

	ids, err := r.lister.ListConversationIDs(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", nil
	}
	r.Set(ids[0])
	return ids[0], nil
}

// Reset forgets the resolved id, in memory and on disk. Used when the
// identity changes.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.conversationID = ""
	r.mu.Unlock()
	r.local.Delete(localstore.KeyConversationID)
}
