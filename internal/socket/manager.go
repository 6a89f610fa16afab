// Package socket owns the bidirectional event channel: connect, bounded
// reconnect with backoff, and teardown. It is only instantiated for
// authenticated sessions; guest mode never opens a channel.
package socket

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thanhpt21/chatsync-go/internal/bus"
)

// State is the channel connection lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Options tune the reconnect behaviour.
type Options struct {
	MaxAttempts int           // reconnect attempts before giving up
	BaseDelay   time.Duration // delay grows linearly with the attempt count
}

// Manager owns the websocket connection and its lifecycle. Inbound frames
// are decoded and published to the queue; transport transitions surface as
// synthesized connected/disconnected/connect_error events.
type Manager struct {
	url       string
	queue     *bus.Queue
	dialer    *websocket.Dialer
	maxTries  int
	baseDelay time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	attempts int
	closed   bool
	retry    *time.Timer
	onState  func(State)

	writeMu sync.Mutex
}

// NewManager creates a manager for the given gateway URL.
func NewManager(url string, queue *bus.Queue, opts Options) *Manager {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseDelay == 0 {
		opts.BaseDelay = time.Second
	}
	return &Manager{
		url:       url,
		queue:     queue,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		maxTries:  opts.MaxAttempts,
		baseDelay: opts.BaseDelay,
	}
}

// OnState registers a callback for state transitions. Used for the
// non-blocking connection status indicator.
func (m *Manager) OnState(fn func(State)) {
	m.mu.Lock()
	m.onState = fn
	m.mu.Unlock()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect starts the connection attempt. Non-blocking; progress surfaces
// through OnState and the event queue.
func (m *Manager) Connect() {
	m.setState(Connecting)
	go m.dial()
}

// Emit sends an outbound event over the channel.
func (m *Manager) Emit(event bus.EventName, data any) error {
	m.mu.Lock()
	conn := m.conn
	state := m.state
	m.mu.Unlock()
	if conn == nil || state != Connected {
		return fmt.Errorf("socket: not connected (state %s)", state)
	}

	frame, err := bus.Encode(event, data)
	if err != nil {
		return err
	}

	// gorilla allows a single concurrent writer
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Close tears the channel down. Idempotent; cancels any pending reconnect.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	conn := m.conn
	m.conn = nil
	m.state = Disconnected
	fn := m.onState
	m.mu.Unlock()

	if fn != nil {
		fn(Disconnected)
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// --- internal ---

func (m *Manager) dial() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	url := m.url
	m.mu.Unlock()

	conn, resp, err := m.dialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		log.Printf("[Socket] connect error: %v", err)
		m.queue.Publish(bus.Event{Name: bus.EventConnectError, Reason: err.Error()})
		m.scheduleRetry()
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.attempts = 0
	m.mu.Unlock()

	m.setState(Connected)
	m.queue.Publish(bus.Event{Name: bus.EventConnected})
	go m.readLoop(conn)
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			m.handleDrop(err)
			return
		}
		ev, err := bus.Decode(frame)
		if err != nil {
			log.Printf("[Socket] bad frame: %v", err)
			continue
		}
		m.queue.Publish(ev)
	}
}

func (m *Manager) handleDrop(err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.mu.Unlock()

	log.Printf("[Socket] disconnected: %v", err)
	m.queue.Publish(bus.Event{Name: bus.EventDisconnected, Reason: err.Error()})
	m.setState(Reconnecting)
	m.scheduleRetry()
}

func (m *Manager) scheduleRetry() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.attempts++
	if m.attempts > m.maxTries {
		m.mu.Unlock()
		log.Printf("[Socket] reconnect attempts exhausted")
		m.setState(Disconnected)
		return
	}
	delay := m.baseDelay * time.Duration(m.attempts)
	m.retry = time.AfterFunc(delay, m.dial)
	m.mu.Unlock()

	m.setState(Reconnecting)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == s || m.closed && s != Disconnected {
		m.mu.Unlock()
		return
	}
	m.state = s
	fn := m.onState
	m.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
