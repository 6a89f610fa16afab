package send

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thanhpt21/chatsync-go/internal/bus"
	"github.com/Thanhpt21/chatsync-go/internal/identity"
	"github.com/Thanhpt21/chatsync-go/internal/localstore"
	"github.com/Thanhpt21/chatsync-go/internal/store"
)

type fakeEmitter struct {
	mu     sync.Mutex
	events []bus.EventName
	sent   []bus.SendMessagePayload
	err    error
}

func (f *fakeEmitter) Emit(event bus.EventName, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	if p, ok := data.(bus.SendMessagePayload); ok {
		f.sent = append(f.sent, p)
	}
	return f.err
}

func (f *fakeEmitter) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newLocal(t *testing.T) localstore.Store {
	fs, err := localstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return fs
}

func guestPipeline(t *testing.T, st *store.Store, local localstore.Store) *Pipeline {
	return NewPipeline(Config{
		Store:          st,
		Local:          local,
		Session:        identity.Session{Kind: identity.Guest, GuestSessionID: "guest-1"},
		ConversationID: func() string { return "" },
		SendInterval:   30 * time.Millisecond,
		AckTimeout:     50 * time.Millisecond,
	})
}

func authPipeline(st *store.Store, local localstore.Store, em Emitter, onAccepted func()) *Pipeline {
	return NewPipeline(Config{
		Store:          st,
		Local:          local,
		Emitter:        em,
		Session:        identity.Session{Kind: identity.Authenticated, UserID: "42"},
		ConversationID: func() string { return "7" },
		SendInterval:   30 * time.Millisecond,
		AckTimeout:     50 * time.Millisecond,
		OnAccepted:     onAccepted,
	})
}

func TestSend_EmptyBodyRejected(t *testing.T) {
	st := store.New()
	p := guestPipeline(t, st, newLocal(t))

	assert.False(t, p.Send("   ", nil))
	assert.Zero(t, st.Len())
}

func TestSend_GuestStoresLocally(t *testing.T) {
	st := store.New()
	local := newLocal(t)
	p := guestPipeline(t, st, local)

	require.True(t, p.Send("Xin chào", nil))

	snap := st.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, store.StatusLocal, snap[0].Status)
	assert.Equal(t, "guest-1", snap[0].SessionID)
	assert.Equal(t, true, snap[0].Metadata["isGuest"])
	assert.True(t, snap[0].ID.Temporary())

	persisted := localstore.GuestMessages(local)
	require.Len(t, persisted, 1)
	assert.Equal(t, "Xin chào", persisted[0].Body)

	assert.False(t, p.InFlight(), "guest sends never open the ack window")
}

func TestSend_RateGuard(t *testing.T) {
	st := store.New()
	p := guestPipeline(t, st, newLocal(t))

	assert.True(t, p.Send("first", nil))
	assert.False(t, p.Send("second", nil), "within the interval")
	assert.Equal(t, 1, st.Len())

	time.Sleep(40 * time.Millisecond)
	assert.True(t, p.Send("third", nil))
	assert.Equal(t, 2, st.Len())
}

func TestSend_SingleAwaitingAckWindow(t *testing.T) {
	st := store.New()
	em := &fakeEmitter{}
	p := authPipeline(st, newLocal(t), em, nil)
	defer p.Close()

	require.True(t, p.Send("one", nil))
	time.Sleep(35 * time.Millisecond) // past the rate guard, still awaiting ack
	assert.False(t, p.Send("two", nil))

	assert.Equal(t, 1, st.Len())
	assert.Equal(t, 1, em.sentCount())
}

func TestSend_AckReconciliation(t *testing.T) {
	st := store.New()
	em := &fakeEmitter{}
	var accepted int
	p := authPipeline(st, newLocal(t), em, func() { accepted++ })
	defer p.Close()

	require.True(t, p.Send("giá VNM?", map[string]any{"topic": "stocks"}))
	assert.Equal(t, 1, accepted)

	require.Len(t, em.sent, 1)
	assert.Equal(t, "giá VNM?", em.sent[0].Body)
	assert.Equal(t, "7", em.sent[0].ConversationID)

	ack := store.Message{
		ID:             store.ConfirmedID("srv-42"),
		ConversationID: "7",
		SenderID:       "42",
		SenderType:     store.SenderUser,
		Body:           "giá VNM?",
		CreatedAt:      time.Now(),
	}
	assert.True(t, p.HandleInbound(ack), "ack is consumed, not appended")

	snap := st.Snapshot()
	require.Len(t, snap, 1, "no second entry")
	assert.Equal(t, "srv-42", snap[0].ID.String())
	assert.Equal(t, store.StatusSent, snap[0].Status)
	assert.False(t, p.InFlight())
}

func TestSend_TimeoutMarksSentNotFailed(t *testing.T) {
	st := store.New()
	em := &fakeEmitter{}
	p := authPipeline(st, newLocal(t), em, nil)
	defer p.Close()

	require.True(t, p.Send("anyone there?", nil))

	assert.Eventually(t, func() bool {
		snap := st.Snapshot()
		return len(snap) == 1 && snap[0].Status == store.StatusSent
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, st.Len())
	assert.False(t, p.InFlight(), "guard released on timeout")
}

func TestHandleInbound_IgnoresUnrelatedMessages(t *testing.T) {
	st := store.New()
	p := authPipeline(st, newLocal(t), &fakeEmitter{}, nil)
	defer p.Close()

	// Nothing in flight.
	assert.False(t, p.HandleInbound(store.Message{SenderType: store.SenderUser, SenderID: "42"}))

	require.True(t, p.Send("hello", nil))
	// Bot messages are never acks.
	assert.False(t, p.HandleInbound(store.Message{SenderType: store.SenderBot, Body: "hello"}))
	// Another user's message with a different body is not ours.
	assert.False(t, p.HandleInbound(store.Message{SenderType: store.SenderUser, SenderID: "99", Body: "other"}))
}

func TestSend_NoChannelRejected(t *testing.T) {
	st := store.New()
	p := NewPipeline(Config{
		Store:          st,
		Local:          newLocal(t),
		Session:        identity.Session{Kind: identity.Authenticated, UserID: "42"},
		ConversationID: func() string { return "" },
		SendInterval:   10 * time.Millisecond,
	})

	assert.False(t, p.Send("hi", nil))
	assert.Zero(t, st.Len())
}

func TestResubmit_BypassesGuards(t *testing.T) {
	em := &fakeEmitter{}
	p := authPipeline(store.New(), newLocal(t), em, nil)
	defer p.Close()

	for i := 0; i < 3; i++ {
		msg := store.Message{SenderType: store.SenderUser, Body: "migrated"}
		require.NoError(t, p.Resubmit(msg))
	}
	assert.Equal(t, 3, em.sentCount())
}

func TestClose_CancelsGuardState(t *testing.T) {
	st := store.New()
	p := authPipeline(st, newLocal(t), &fakeEmitter{}, nil)

	require.True(t, p.Send("pending", nil))
	p.Close()

	assert.False(t, p.InFlight())
	// A stale ack after the transition must not promote anything.
	assert.False(t, p.HandleInbound(store.Message{
		ID: store.ConfirmedID("srv-9"), SenderType: store.SenderUser, SenderID: "42", Body: "pending",
	}))
}
