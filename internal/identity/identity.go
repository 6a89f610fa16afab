// Package identity decides whether the actor is a guest or an
// authenticated user, and drives the one-time migration of guest-local
// messages into a server conversation when a guest signs in.
package identity

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/Thanhpt21/chatsync-go/internal/localstore"
	"github.com/Thanhpt21/chatsync-go/internal/store"
)

// ActorKind distinguishes guests from authenticated users.
type ActorKind int

const (
	Guest ActorKind = iota
	Authenticated
)

func (k ActorKind) String() string {
	if k == Authenticated {
		return "authenticated"
	}
	return "guest"
}

// Session is the identity and addressing context. Sessions are values:
// an identity transition replaces the session, it never mutates one.
type Session struct {
	Kind           ActorKind
	GuestSessionID string // set for guests, generated once and reused
	UserID         string // set for authenticated users
}

// Resolver produces sessions from the current authentication result and
// owns the migration-once guard.
type Resolver struct {
	local localstore.Store

	mu       sync.Mutex
	migrated bool
}

// NewResolver creates a resolver over the local persistent store.
func NewResolver(local localstore.Store) *Resolver {
	return &Resolver{local: local}
}

// Resolve maps an authentication result (empty userID = no identity) to a
// session. The first guest observation generates and persists a guest
// session id that is reused across restarts.
func (r *Resolver) Resolve(userID string) Session {
	if userID == "" {
		gid := localstore.GuestSessionID(r.local)
		if gid == "" {
			gid = "guest-" + uuid.NewString()
			localstore.SetGuestSessionID(r.local, gid)
			log.Printf("[Identity] new guest session %s", gid)
		}
		return Session{Kind: Guest, GuestSessionID: gid}
	}
	return Session{Kind: Authenticated, UserID: userID}
}

// MigrationSinks receive the guest messages being migrated. SubmitUser
// re-sends a user message through the send pipeline; SaveBot persists a
// bot message via the backend interface.
type MigrationSinks struct {
	SubmitUser func(msg store.Message) error
	SaveBot    func(msg store.Message) error
}

// MigrateGuestMessages moves locally-stored guest messages into the server
// conversation, exactly once per guest→authenticated transition. Each
// message is an independent best-effort call: a failure is logged and does
// not block the rest. Guest storage is cleared only after every attempt
// has been issued, which also makes a repeat observation a no-op.
// Returns the number of migration attempts issued.
func (r *Resolver) MigrateGuestMessages(sinks MigrationSinks) int {
	r.mu.Lock()
	if r.migrated {
		r.mu.Unlock()
		return 0
	}
	msgs := localstore.GuestMessages(r.local)
	if len(msgs) == 0 {
		r.mu.Unlock()
		return 0
	}
	r.migrated = true
	r.mu.Unlock()

	attempts := 0
	for _, msg := range msgs {
		attempts++
		var err error
		switch msg.SenderType {
		case store.SenderUser:
			err = sinks.SubmitUser(msg)
		case store.SenderBot:
			tagged := msg
			tagged.Metadata = cloneMeta(msg.Metadata)
			tagged.Metadata["migrated"] = true
			if msg.SessionID != "" {
				tagged.Metadata["originalSessionId"] = msg.SessionID
			}
			err = sinks.SaveBot(tagged)
		default:
			continue
		}
		if err != nil {
			log.Printf("[Identity] migrate %s message %s: %v", msg.SenderType, msg.ID.String(), err)
		}
	}

	localstore.ClearGuestState(r.local)
	log.Printf("[Identity] migrated %d guest messages", attempts)
	return attempts
}

// ResetMigration re-arms the migration guard. Called on an
// authenticated→guest transition (logout); there is no backward migration.
func (r *Resolver) ResetMigration() {
	r.mu.Lock()
	r.migrated = false
	r.mu.Unlock()
}

func cloneMeta(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}
