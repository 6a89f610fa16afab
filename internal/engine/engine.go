// Package engine is the top-level coordinator. It owns the Session value,
// builds the per-session components, and runs the single dispatch loop
// through which every inbound channel event mutates the message store.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Thanhpt21/chatsync-go/internal/api"
	"github.com/Thanhpt21/chatsync-go/internal/bus"
	"github.com/Thanhpt21/chatsync-go/internal/config"
	"github.com/Thanhpt21/chatsync-go/internal/conversation"
	"github.com/Thanhpt21/chatsync-go/internal/identity"
	"github.com/Thanhpt21/chatsync-go/internal/indicator"
	"github.com/Thanhpt21/chatsync-go/internal/localstore"
	"github.com/Thanhpt21/chatsync-go/internal/send"
	"github.com/Thanhpt21/chatsync-go/internal/socket"
	"github.com/Thanhpt21/chatsync-go/internal/store"
	"github.com/Thanhpt21/chatsync-go/internal/unread"
)

// Config wires an engine to its environment.
type Config struct {
	GatewayURL string
	API        *api.Client
	Local      localstore.Store
	Timings    config.Timings
}

// Engine synchronizes the conversation timeline for one widget instance.
type Engine struct {
	cfg     Config
	timings config.Timings

	store  *store.Store
	unseen *unread.Tracker
	ident  *identity.Resolver
	conv   *conversation.Resolver
	ind    *indicator.Indicator

	mu       sync.Mutex
	session  identity.Session
	sock     *socket.Manager
	pipeline *send.Pipeline
	queue    *bus.Queue    // current session's event queue, nil for guests
	sessDone chan struct{} // closed when the session is replaced

	done     chan struct{}
	closeOne sync.Once
}

// New creates an engine. Call Start to resolve the initial identity and
// begin dispatching.
func New(cfg Config) *Engine {
	cfg.Timings = cfg.Timings.Normalize()
	e := &Engine{
		cfg:     cfg,
		timings: cfg.Timings,
		store:   store.New(),
		unseen:  unread.NewTracker(),
		ident:   identity.NewResolver(cfg.Local),
		conv:    conversation.NewResolver(cfg.API, cfg.Local),
		ind:     indicator.New(cfg.Timings.IndicatorTimeout),
		done:    make(chan struct{}),
	}
	e.unseen.Observe(e.store)
	return e
}

// Start resolves the initial identity (empty userID = guest).
func (e *Engine) Start(userID string) {
	e.SetIdentity(userID)
}

// SetIdentity applies the current authentication result. A change of
// identity replaces the session and its components; guest→authenticated
// additionally triggers the one-time migration once a conversation id is
// known.
func (e *Engine) SetIdentity(userID string) {
	e.mu.Lock()
	wasAuth := e.session.Kind == identity.Authenticated && e.session.UserID != ""
	if wasAuth && e.session.UserID == userID {
		e.mu.Unlock()
		return
	}

	// Tear down the previous session's components. Cancelling the
	// pipeline here guarantees no stale ack applies to the new session,
	// and closing sessDone stops the old dispatch loop so transport
	// events still queued from the old socket are never handled.
	if e.pipeline != nil {
		e.pipeline.Close()
		e.pipeline = nil
	}
	if e.sock != nil {
		e.sock.Close()
		e.sock = nil
	}
	if e.sessDone != nil {
		close(e.sessDone)
		e.sessDone = nil
	}
	e.queue = nil

	if userID == "" {
		if wasAuth {
			// Logout clears everything local; guest mode starts fresh.
			e.cfg.Local.Clear()
			e.ident.ResetMigration()
			e.conv.Reset()
		}
		e.session = e.ident.Resolve("")
		e.pipeline = e.newPipeline(e.session, nil)
		e.mu.Unlock()

		log.Printf("[Engine] guest session %s", e.session.GuestSessionID)
		e.store.LoadFromLocal(localstore.GuestMessages(e.cfg.Local))
		return
	}

	e.session = e.ident.Resolve(userID)
	queue := bus.NewQueue()
	done := make(chan struct{})
	sock := socket.NewManager(e.cfg.GatewayURL, queue, socket.Options{
		BaseDelay: e.timings.ReconnectDelay,
	})
	e.sock = sock
	e.pipeline = e.newPipeline(e.session, sock)
	e.queue = queue
	e.sessDone = done
	e.mu.Unlock()

	log.Printf("[Engine] authenticated as user %s", userID)
	e.store.Clear()
	go e.run(queue, done)
	sock.Connect()
}

// Send submits a user message through the pipeline. Returns whether the
// send was accepted.
func (e *Engine) Send(body string, metadata map[string]any) bool {
	e.mu.Lock()
	p := e.pipeline
	e.mu.Unlock()
	if p == nil {
		return false
	}
	return p.Send(body, metadata)
}

// Messages returns the current timeline.
func (e *Engine) Messages() []store.Message {
	return e.store.Snapshot()
}

// OnMessage registers a callback for newly appended timeline entries.
func (e *Engine) OnMessage(fn func(store.Message)) {
	e.store.OnAppend(func(msg store.Message, _ int) { fn(msg) })
}

// Indicator exposes the response indicator for observers.
func (e *Engine) Indicator() *indicator.Indicator {
	return e.ind
}

// Unread returns the count of bot messages unseen while hidden.
func (e *Engine) Unread() int {
	return e.unseen.Count()
}

// SetVisible updates widget visibility for the unread tracker.
func (e *Engine) SetVisible(visible bool) {
	e.unseen.SetVisible(visible)
}

// ConnectionState returns the channel state (Disconnected for guests).
func (e *Engine) ConnectionState() socket.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sock == nil {
		return socket.Disconnected
	}
	return e.sock.State()
}

// OnConnectionState registers a callback for channel state transitions.
// Must be called after the session is authenticated.
func (e *Engine) OnConnectionState(fn func(socket.State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sock != nil {
		e.sock.OnState(fn)
	}
}

// StatusText renders the current state as a user-facing status line.
func (e *Engine) StatusText() string {
	e.mu.Lock()
	sess := e.session
	sock := e.sock
	e.mu.Unlock()

	if sess.Kind == identity.Guest {
		return "Guest mode - messages are stored locally"
	}
	if sock == nil || sock.State() != socket.Connected {
		return "Connecting..."
	}
	if e.conv.ConversationID() == "" {
		if !e.store.LoadAttempted() {
			return "Initializing..."
		}
		return "Ready - send a message to start a conversation"
	}
	return "Connected"
}

// Close shuts the engine down.
func (e *Engine) Close() {
	e.closeOne.Do(func() { close(e.done) })
	e.mu.Lock()
	if e.pipeline != nil {
		e.pipeline.Close()
	}
	if e.sock != nil {
		e.sock.Close()
	}
	if e.sessDone != nil {
		close(e.sessDone)
		e.sessDone = nil
	}
	e.mu.Unlock()
	e.ind.Close()
}

// --- dispatch ---

// run drains one session's event queue. It exits when the engine closes or
// the session is replaced; events from a replaced session's transport are
// dropped rather than dispatched against the new session.
func (e *Engine) run(queue *bus.Queue, done chan struct{}) {
	for {
		select {
		case <-e.done:
			return
		case <-done:
			return
		case ev := <-queue.Events():
			if !e.sessionCurrent(done) {
				return
			}
			e.handle(ev)
		}
	}
}

func (e *Engine) sessionCurrent(done chan struct{}) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessDone == done
}

func (e *Engine) handle(ev bus.Event) {
	switch ev.Name {
	case bus.EventConnected:
		e.onConnected()

	case bus.EventDisconnected:
		log.Printf("[Engine] channel dropped: %s", ev.Reason)

	case bus.EventConnectError:
		log.Printf("[Engine] channel error: %s", ev.Reason)

	case bus.EventSessionAssigned:
		e.cfg.Local.Set(localstore.KeySessionID, ev.SessionID)

	case bus.EventConversationCreated, bus.EventConversationUpdated:
		if e.conv.Set(ev.ConversationID) {
			e.join(ev.ConversationID)
			e.loadTimeline(ev.ConversationID)
			e.maybeMigrate()
		}

	case bus.EventMessage:
		if ev.Message != nil {
			e.onMessage(*ev.Message)
		}
	}
}

// onConnected runs after every transition into Connected: re-join the
// resolved conversation and reload the timeline to pick up anything
// missed while disconnected.
func (e *Engine) onConnected() {
	e.mu.Lock()
	sess := e.session
	e.mu.Unlock()

	ctx, cancel := e.opCtx()
	id, err := e.conv.Resolve(ctx, sess.UserID)
	cancel()
	if err != nil {
		log.Printf("[Engine] conversation lookup failed: %v", err)
		return
	}
	if id == "" {
		// Nothing to join yet; the first send creates the conversation.
		e.store.MarkLoadAttempted()
		return
	}
	e.join(id)
	e.loadTimeline(id)
	e.maybeMigrate()
}

func (e *Engine) onMessage(msg store.Message) {
	e.mu.Lock()
	sess := e.session
	p := e.pipeline
	e.mu.Unlock()

	if p != nil && p.HandleInbound(msg) {
		// The ack may carry the id of an implicitly-created conversation.
		if msg.ConversationID != "" && e.conv.Set(msg.ConversationID) {
			e.join(msg.ConversationID)
			e.maybeMigrate()
		}
		return
	}

	if store.IsOwnEcho(msg, sess.UserID) {
		return
	}

	if msg.SenderType == store.SenderBot {
		e.ind.Resolve()
	}
	e.store.Append(msg)
}

func (e *Engine) join(conversationID string) {
	e.mu.Lock()
	sock := e.sock
	e.mu.Unlock()
	if sock == nil {
		return
	}
	err := sock.Emit(bus.EventJoinConversation, bus.JoinConversationPayload{ConversationID: conversationID})
	if err != nil {
		log.Printf("[Engine] join conversation %s: %v", conversationID, err)
	}
}

func (e *Engine) loadTimeline(conversationID string) {
	ctx, cancel := e.opCtx()
	defer cancel()
	err := e.store.LoadFromServer(ctx, func(ctx context.Context) ([]store.Message, error) {
		return e.cfg.API.ListMessages(ctx, conversationID)
	})
	if err != nil {
		// The last-known-good timeline stays; the next reconnect retries.
		log.Printf("[Engine] timeline load failed: %v", err)
	}
}

// maybeMigrate runs the guest→authenticated migration once a conversation
// id is available to address it.
func (e *Engine) maybeMigrate() {
	e.mu.Lock()
	sess := e.session
	p := e.pipeline
	e.mu.Unlock()

	if sess.Kind != identity.Authenticated || p == nil {
		return
	}
	convID := e.conv.ConversationID()
	if convID == "" {
		return
	}

	n := e.ident.MigrateGuestMessages(identity.MigrationSinks{
		SubmitUser: func(msg store.Message) error {
			return p.Resubmit(msg)
		},
		SaveBot: func(msg store.Message) error {
			ctx, cancel := e.opCtx()
			defer cancel()
			return e.cfg.API.SaveBotMessage(ctx, api.BotMessage{
				ConversationID: convID,
				Body:           msg.Body,
				UserID:         sess.UserID,
				Metadata:       msg.Metadata,
			})
		},
	})
	if n > 0 {
		e.loadTimeline(convID)
	}
}

func (e *Engine) newPipeline(sess identity.Session, emitter send.Emitter) *send.Pipeline {
	return send.NewPipeline(send.Config{
		Store:          e.store,
		Local:          e.cfg.Local,
		Emitter:        emitter,
		Session:        sess,
		ConversationID: e.conv.ConversationID,
		SendInterval:   e.timings.SendInterval,
		AckTimeout:     e.timings.AckTimeout,
		OnAccepted:     e.ind.Activate,
	})
}

func (e *Engine) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}
