// Package bus defines the bidirectional channel's event vocabulary, the
// JSON wire envelope, and the queue feeding the engine's dispatch loop.
// Every inbound event flows through one dispatcher so the timeline's
// dedup and ordering rules live in a single place.
package bus

import (
	"encoding/json"
	"fmt"

	"github.com/Thanhpt21/chatsync-go/internal/store"
)

// EventName identifies a channel event.
type EventName string

// Inbound events. The first three are synthesized by the connection
// manager from transport state; the rest arrive on the wire.
const (
	EventConnected           EventName = "connected"
	EventDisconnected        EventName = "disconnected"
	EventConnectError        EventName = "connect_error"
	EventSessionAssigned     EventName = "session_assigned"
	EventConversationUpdated EventName = "conversation_updated"
	EventConversationCreated EventName = "conversation_created"
	EventMessage             EventName = "message"
)

// Outbound events.
const (
	EventJoinConversation EventName = "join_conversation"
	EventSendMessage      EventName = "send_message"
)

// Event is a decoded channel event.
type Event struct {
	Name           EventName
	Message        *store.Message // set for EventMessage
	ConversationID string         // set for conversation_* events
	SessionID      string         // set for session_assigned
	Reason         string         // set for disconnected / connect_error
}

// SendMessagePayload is the body of an outbound send_message event.
// The "message" field name is the wire format's name for the body.
type SendMessagePayload struct {
	Body           string         `json:"message"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
}

// JoinConversationPayload is the body of an outbound join_conversation event.
type JoinConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

// envelope is the single wire frame: {"event": ..., "data": ...}.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// conversationPayload accepts either field name; some backend events carry
// the id as "id" rather than "conversationId".
type conversationPayload struct {
	ConversationID string `json:"conversationId"`
	ID             string `json:"id"`
}

func (p conversationPayload) id() string {
	if p.ConversationID != "" {
		return p.ConversationID
	}
	return p.ID
}

// Encode serialises an outbound event into a wire frame.
func Encode(name EventName, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		raw = b
	}
	return json.Marshal(envelope{Event: string(name), Data: raw})
}

// Decode parses an inbound wire frame into an Event.
func Decode(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Event{}, fmt.Errorf("decode frame: %w", err)
	}

	ev := Event{Name: EventName(env.Event)}
	switch ev.Name {
	case EventMessage:
		var msg store.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return Event{}, fmt.Errorf("decode message event: %w", err)
		}
		ev.Message = &msg

	case EventConversationUpdated, EventConversationCreated:
		var p conversationPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", ev.Name, err)
		}
		ev.ConversationID = p.id()

	case EventSessionAssigned:
		var p struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return Event{}, fmt.Errorf("decode session_assigned: %w", err)
		}
		ev.SessionID = p.SessionID

	default:
		// Unknown events pass through with just the name; the dispatcher
		// ignores what it does not handle.
	}
	return ev, nil
}
