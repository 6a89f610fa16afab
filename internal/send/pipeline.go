// Package send serializes outgoing user messages: a minimum inter-send
// interval, a single awaiting-ack window, and optimistic append with
// timeout-based reconciliation.
package send

import (
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Thanhpt21/chatsync-go/internal/bus"
	"github.com/Thanhpt21/chatsync-go/internal/identity"
	"github.com/Thanhpt21/chatsync-go/internal/localstore"
	"github.com/Thanhpt21/chatsync-go/internal/store"
)

// Emitter sends outbound events over the channel.
type Emitter interface {
	Emit(event bus.EventName, data any) error
}

// Config wires a pipeline to its session. A pipeline belongs to exactly one
// session; an identity transition builds a new pipeline, which cancels any
// in-flight guard state from the old one.
type Config struct {
	Store          *store.Store
	Local          localstore.Store
	Emitter        Emitter // nil for guest sessions
	Session        identity.Session
	ConversationID func() string // current resolved id, may return ""
	SendInterval   time.Duration
	AckTimeout     time.Duration
	OnAccepted     func() // fired when an authenticated send is accepted
}

// Pipeline is the send path for one session.
type Pipeline struct {
	cfg Config

	mu           sync.Mutex
	closed       bool
	inFlight     bool
	lastSend     time.Time
	awaiting     store.MessageID
	awaitingBody string
	ackTimer     *time.Timer
}

// NewPipeline creates a pipeline. Zero timing fields get the production
// defaults.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.SendInterval == 0 {
		cfg.SendInterval = 1500 * time.Millisecond
	}
	if cfg.AckTimeout == 0 {
		cfg.AckTimeout = 5 * time.Second
	}
	return &Pipeline{cfg: cfg}
}

// Send accepts or silently rejects an outgoing message. Rejection (send in
// flight, interval not elapsed, empty body) is a no-op with no error
// surfaced. On acceptance the optimistic entry is appended immediately;
// guests persist locally with no network call, authenticated sends emit
// over the channel and open the awaiting-ack window.
func (p *Pipeline) Send(body string, metadata map[string]any) bool {
	body = strings.TrimSpace(body)
	if body == "" {
		return false
	}

	p.mu.Lock()
	if p.closed || p.inFlight {
		p.mu.Unlock()
		return false
	}
	now := time.Now()
	if !p.lastSend.IsZero() && now.Sub(p.lastSend) < p.cfg.SendInterval {
		p.mu.Unlock()
		return false
	}

	if p.cfg.Session.Kind == identity.Guest {
		p.lastSend = now
		p.mu.Unlock()
		p.sendGuest(body, metadata, now)
		return true
	}

	if p.cfg.Emitter == nil {
		p.mu.Unlock()
		log.Printf("[Send] no channel available, dropping send")
		return false
	}

	tempID := store.NewTemporaryID()
	p.lastSend = now
	p.inFlight = true
	p.awaiting = tempID
	p.awaitingBody = body
	p.ackTimer = time.AfterFunc(p.cfg.AckTimeout, func() { p.onAckTimeout(tempID) })
	p.mu.Unlock()

	p.sendAuthenticated(tempID, body, metadata, now)
	return true
}

// HandleInbound offers an inbound message to the awaiting-ack window.
// A USER message from this actor (or carrying the in-flight body or temp
// id) is the acknowledgement: the optimistic entry is promoted in place
// and the message is consumed. Returns true when consumed.
func (p *Pipeline) HandleInbound(msg store.Message) bool {
	if msg.SenderType != store.SenderUser {
		return false
	}

	p.mu.Lock()
	if !p.inFlight || p.awaiting.IsZero() {
		p.mu.Unlock()
		return false
	}
	match := msg.ID.String() == p.awaiting.String() ||
		(p.cfg.Session.UserID != "" && msg.SenderID == p.cfg.Session.UserID) ||
		msg.Body == p.awaitingBody
	if !match {
		p.mu.Unlock()
		return false
	}
	awaiting := p.awaiting
	p.release()
	p.mu.Unlock()

	if msg.ID.String() == awaiting.String() {
		p.cfg.Store.SetStatus(awaiting, store.StatusSent)
	} else {
		p.cfg.Store.Promote(awaiting, msg.ID, store.StatusSent)
	}
	return true
}

// Resubmit re-sends a migrated guest message over the channel, bypassing
// the rate guard and the optimistic append; the server timeline reload
// brings it back.
func (p *Pipeline) Resubmit(msg store.Message) error {
	if p.cfg.Emitter == nil {
		return errors.New("send: no channel available")
	}
	return p.cfg.Emitter.Emit(bus.EventSendMessage, bus.SendMessagePayload{
		Body:           msg.Body,
		Metadata:       msg.Metadata,
		ConversationID: p.cfg.ConversationID(),
	})
}

// InFlight reports whether a send is awaiting acknowledgement.
func (p *Pipeline) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// Close cancels the guard state and any pending ack timer. Safe to call on
// identity transitions; a stale ack can never reach the new session's
// pipeline.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.release()
}

// --- internal ---

func (p *Pipeline) sendGuest(body string, metadata map[string]any, now time.Time) {
	meta := cloneMeta(metadata)
	meta["isGuest"] = true
	meta["guestSessionId"] = p.cfg.Session.GuestSessionID

	msg := store.Message{
		ID:         store.NewLocalID(),
		SessionID:  p.cfg.Session.GuestSessionID,
		SenderType: store.SenderUser,
		Body:       body,
		Metadata:   meta,
		CreatedAt:  now,
		Status:     store.StatusLocal,
	}
	p.cfg.Store.Append(msg)
	p.persistLocal()
}

func (p *Pipeline) sendAuthenticated(tempID store.MessageID, body string, metadata map[string]any, now time.Time) {
	meta := cloneMeta(metadata)
	meta["isGuest"] = false
	meta["userId"] = p.cfg.Session.UserID

	convID := p.cfg.ConversationID()
	msg := store.Message{
		ID:             tempID,
		ConversationID: convID,
		SenderID:       p.cfg.Session.UserID,
		SenderType:     store.SenderUser,
		Body:           body,
		Metadata:       meta,
		CreatedAt:      now,
		Status:         store.StatusSending,
	}
	p.cfg.Store.Append(msg)

	if p.cfg.OnAccepted != nil {
		p.cfg.OnAccepted()
	}

	err := p.cfg.Emitter.Emit(bus.EventSendMessage, bus.SendMessagePayload{
		Body:           body,
		Metadata:       meta,
		ConversationID: convID,
	})
	if err != nil {
		// The channel may be mid-reconnect; the ack timeout will settle
		// the entry rather than flagging a probably-transient failure.
		log.Printf("[Send] emit failed: %v", err)
	}
}

func (p *Pipeline) onAckTimeout(tempID store.MessageID) {
	p.mu.Lock()
	if p.closed || p.awaiting.String() != tempID.String() {
		p.mu.Unlock()
		return
	}
	p.release()
	p.mu.Unlock()

	// No ack is not proof of delivery failure; degrade to assumed-sent.
	log.Printf("[Send] ack timeout for %s, assuming sent", tempID.String())
	p.cfg.Store.SetStatus(tempID, store.StatusSent)
}

// release clears the awaiting-ack window. Callers hold the lock.
func (p *Pipeline) release() {
	p.inFlight = false
	p.awaiting = store.MessageID{}
	p.awaitingBody = ""
	if p.ackTimer != nil {
		p.ackTimer.Stop()
		p.ackTimer = nil
	}
}

func (p *Pipeline) persistLocal() {
	var local []store.Message
	for _, m := range p.cfg.Store.Snapshot() {
		if m.Status == store.StatusLocal {
			local = append(local, m)
		}
	}
	localstore.SaveGuestMessages(p.cfg.Local, local)
}

func cloneMeta(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}
