// Package localstore is the widget's persistent key/value state: the guest
// session id, the guest message list, and the last-known conversation id.
// It survives restarts and is cleared on logout or explicit reset.
package localstore

import (
	"encoding/json"
	"log"

	"github.com/Thanhpt21/chatsync-go/internal/store"
)

// Keys, matching the original widget's storage layout.
const (
	KeyGuestSessionID = "guestSessionId"
	KeySessionID      = "sessionId"
	KeyConversationID = "conversationId"
	KeyGuestMessages  = "localChatMessages"
)

// Store is a small persistent string key/value store.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
	Clear() error
}

// GuestSessionID returns the persisted guest session id, if any.
func GuestSessionID(s Store) string {
	v, _ := s.Get(KeyGuestSessionID)
	return v
}

// SetGuestSessionID persists the guest session id.
func SetGuestSessionID(s Store, id string) {
	if err := s.Set(KeyGuestSessionID, id); err != nil {
		log.Printf("[LocalStore] persist guest session id: %v", err)
	}
}

// ConversationID returns the last-known conversation id, if any.
func ConversationID(s Store) string {
	v, _ := s.Get(KeyConversationID)
	return v
}

// SetConversationID persists the resolved conversation id so a restart does
// not fragment the timeline.
func SetConversationID(s Store, id string) {
	if err := s.Set(KeyConversationID, id); err != nil {
		log.Printf("[LocalStore] persist conversation id: %v", err)
	}
}

// GuestMessages restores the persisted guest message list. A corrupt value
// is treated as empty rather than failing the caller.
func GuestMessages(s Store) []store.Message {
	raw, ok := s.Get(KeyGuestMessages)
	if !ok || raw == "" {
		return nil
	}
	var msgs []store.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		log.Printf("[LocalStore] corrupt guest messages, discarding: %v", err)
		return nil
	}
	return msgs
}

// SaveGuestMessages persists the guest message list. Only messages with
// status "local" belong here; the caller filters.
func SaveGuestMessages(s Store, msgs []store.Message) {
	data, err := json.Marshal(msgs)
	if err != nil {
		log.Printf("[LocalStore] encode guest messages: %v", err)
		return
	}
	if err := s.Set(KeyGuestMessages, string(data)); err != nil {
		log.Printf("[LocalStore] persist guest messages: %v", err)
	}
}

// ClearGuestState removes everything tied to the guest identity.
func ClearGuestState(s Store) {
	s.Delete(KeyGuestSessionID)
	s.Delete(KeyGuestMessages)
}
