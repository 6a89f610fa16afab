package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thanhpt21/chatsync-go/internal/localstore"
)

type fakeLister struct {
	ids   []string
	err   error
	calls int
}

func (f *fakeLister) ListConversationIDs(ctx context.Context, userID string) ([]string, error) {
	f.calls++
	return f.ids, f.err
}

func newLocal(t *testing.T) localstore.Store {
	fs, err := localstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return fs
}

func TestResolve_PrefersExistingConversation(t *testing.T) {
	local := newLocal(t)
	lister := &fakeLister{ids: []string{"9", "3"}}
	r := NewResolver(lister, local)

	id, err := r.Resolve(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "9", id, "most recent conversation wins")

	// Resolved id is persisted for the next restart.
	assert.Equal(t, "9", localstore.ConversationID(local))

	// Second resolve uses the cached id, no second lookup.
	id, err = r.Resolve(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "9", id)
	assert.Equal(t, 1, lister.calls)
}

func TestResolve_NoneExistsYet(t *testing.T) {
	r := NewResolver(&fakeLister{}, newLocal(t))

	id, err := r.Resolve(context.Background(), "42")
	require.NoError(t, err)
	assert.Empty(t, id, "created implicitly by the first send")
}

func TestResolve_RetriedAfterFailure(t *testing.T) {
	lister := &fakeLister{err: errors.New("backend down")}
	r := NewResolver(lister, newLocal(t))

	_, err := r.Resolve(context.Background(), "42")
	require.Error(t, err)

	// Reconnect path retries while unresolved.
	lister.err = nil
	lister.ids = []string{"5"}
	id, err := r.Resolve(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "5", id)
}

func TestNewResolver_SeedsFromPersistedState(t *testing.T) {
	local := newLocal(t)
	localstore.SetConversationID(local, "11")

	lister := &fakeLister{ids: []string{"99"}}
	r := NewResolver(lister, local)

	id, err := r.Resolve(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "11", id, "restart must not fragment the timeline")
	assert.Zero(t, lister.calls)
}

func TestSet_FromServerEvent(t *testing.T) {
	local := newLocal(t)
	r := NewResolver(&fakeLister{}, local)

	assert.True(t, r.Set("31"))
	assert.False(t, r.Set("31"), "idempotent")
	assert.False(t, r.Set(""))
	assert.Equal(t, "31", r.ConversationID())
	assert.Equal(t, "31", localstore.ConversationID(local))
}

func TestReset_ClearsMemoryAndDisk(t *testing.T) {
	local := newLocal(t)
	r := NewResolver(&fakeLister{}, local)
	r.Set("7")

	r.Reset()

	assert.Empty(t, r.ConversationID())
	assert.Empty(t, localstore.ConversationID(local))
}
