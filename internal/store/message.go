// Package store implements the ordered, deduplicated chat timeline and its
// reconciliation rules. All mutations go through the Store so the
// uniqueness and ordering invariants are enforced in one place.
package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SenderType identifies who authored a message. Values match the wire format.
type SenderType string

const (
	SenderUser SenderType = "USER"
	SenderBot  SenderType = "BOT"
)

// DeliveryStatus tracks how far a message has made it toward the server.
type DeliveryStatus string

const (
	StatusLocal   DeliveryStatus = "local"   // guest message, never sent anywhere
	StatusSending DeliveryStatus = "sending" // optimistic, awaiting acknowledgement
	StatusSent    DeliveryStatus = "sent"
	StatusFailed  DeliveryStatus = "failed"
)

// Temporary id prefixes. Ids carrying one of these were minted locally and
// are expected to be replaced by a server-issued id during reconciliation.
const (
	tempPrefix  = "temp-"
	localPrefix = "local-"
)

// MessageID is either a locally-minted temporary id or a server-confirmed id.
// Reconciliation promotes Temporary → Confirmed; the reverse never happens.
type MessageID struct {
	value     string
	temporary bool
}

// NewTemporaryID mints a temporary id for an optimistic authenticated send.
func NewTemporaryID() MessageID {
	return MessageID{value: tempPrefix + uuid.NewString(), temporary: true}
}

// NewLocalID mints an id for a guest-local message.
func NewLocalID() MessageID {
	return MessageID{value: localPrefix + uuid.NewString(), temporary: true}
}

// ConfirmedID wraps a server-issued id.
func ConfirmedID(value string) MessageID {
	return MessageID{value: value}
}

// ParseID classifies a raw id string by its prefix.
func ParseID(value string) MessageID {
	if strings.HasPrefix(value, tempPrefix) || strings.HasPrefix(value, localPrefix) {
		return MessageID{value: value, temporary: true}
	}
	return MessageID{value: value}
}

func (id MessageID) String() string  { return id.value }
func (id MessageID) Temporary() bool { return id.temporary }
func (id MessageID) IsZero() bool    { return id.value == "" }

// MarshalJSON writes the id as a plain string so the wire format stays flat.
func (id MessageID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON reads a plain string and classifies it by prefix, so
// guest-local messages restored from disk keep their temporary tag.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*id = ParseID(raw)
	return nil
}

// Message is a single timeline entry.
type Message struct {
	ID             MessageID      `json:"id"`
	ConversationID string         `json:"conversationId,omitempty"`
	SessionID      string         `json:"sessionId,omitempty"`
	SenderID       string         `json:"senderId,omitempty"` // empty for guests and bots
	SenderType     SenderType     `json:"senderType"`
	Body           string         `json:"message"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	Status         DeliveryStatus `json:"status,omitempty"`
}

// IsOwnEcho reports whether an inbound message is the server echoing a
// message this actor already appended optimistically.
func IsOwnEcho(msg Message, selfID string) bool {
	return selfID != "" && msg.SenderType == SenderUser && msg.SenderID == selfID
}
