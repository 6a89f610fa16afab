package bus

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thanhpt21/chatsync-go/internal/store"
)

func TestEncode_SendMessage(t *testing.T) {
	frame, err := Encode(EventSendMessage, SendMessagePayload{
		Body:           "hello",
		ConversationID: "7",
		Metadata:       map[string]any{"isGuest": false},
	})
	require.NoError(t, err)

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.JSONEq(t, `"send_message"`, string(env["event"]))
	assert.JSONEq(t, `{"message":"hello","conversationId":"7","metadata":{"isGuest":false}}`, string(env["data"]))
}

func TestDecode_MessageEvent(t *testing.T) {
	frame := []byte(`{"event":"message","data":{"id":"srv-42","senderType":"BOT","message":"chào bạn","conversationId":"7","createdAt":"2024-05-01T10:00:00Z"}}`)

	ev, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, EventMessage, ev.Name)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "srv-42", ev.Message.ID.String())
	assert.False(t, ev.Message.ID.Temporary())
	assert.Equal(t, store.SenderBot, ev.Message.SenderType)
	assert.Equal(t, "chào bạn", ev.Message.Body)
}

func TestDecode_ConversationCreated_AltFieldName(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"conversation_created","data":{"id":"12"}}`))
	require.NoError(t, err)
	assert.Equal(t, "12", ev.ConversationID)

	ev, err = Decode([]byte(`{"event":"conversation_updated","data":{"conversationId":"13"}}`))
	require.NoError(t, err)
	assert.Equal(t, "13", ev.ConversationID)
}

func TestDecode_SessionAssigned(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"session_assigned","data":{"sessionId":"sess-9"}}`))
	require.NoError(t, err)
	assert.Equal(t, "sess-9", ev.SessionID)
}

func TestDecode_UnknownEventPassesThrough(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"presence","data":{"who":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventName("presence"), ev.Name)
	assert.Nil(t, ev.Message)
}

func TestDecode_BadFrame(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.Error(t, err)
}

func TestQueue_PublishAndReceive(t *testing.T) {
	q := NewQueue()
	q.Publish(Event{Name: EventConnected})
	assert.Equal(t, 1, q.Size())

	ev := <-q.Events()
	assert.Equal(t, EventConnected, ev.Name)
	assert.Equal(t, 0, q.Size())
}
