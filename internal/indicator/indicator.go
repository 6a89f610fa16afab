// Package indicator drives the "bot is responding" indicator: activated by
// an accepted authenticated send, resolved by the next inbound bot message,
// and guaranteed to stop by a liveness timeout either way.
package indicator

import (
	"sync"
	"time"
)

// State of the indicator.
type State int

const (
	Idle State = iota
	Active
	Resolved
	TimedOut
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Resolved:
		return "resolved"
	case TimedOut:
		return "timed_out"
	default:
		return "idle"
	}
}

// Indicator is the response indicator state machine. Resolved and TimedOut
// are resting states equivalent to Idle; the next Activate starts a fresh
// cycle.
type Indicator struct {
	timeout time.Duration

	mu       sync.Mutex
	state    State
	timer    *time.Timer
	closed   bool
	onChange func(State)
}

// New creates an indicator with the given liveness timeout.
func New(timeout time.Duration) *Indicator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Indicator{timeout: timeout}
}

// OnChange registers a state-transition callback.
func (i *Indicator) OnChange(fn func(State)) {
	i.mu.Lock()
	i.onChange = fn
	i.mu.Unlock()
}

// State returns the current state.
func (i *Indicator) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Showing reports whether the indicator should be visible.
func (i *Indicator) Showing() bool {
	return i.State() == Active
}

// Activate enters Active and (re)starts the liveness timer. Re-entering
// while already Active restarts the timeout instead of stacking timers.
func (i *Indicator) Activate() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	if i.timer != nil {
		i.timer.Stop()
	}
	i.timer = time.AfterFunc(i.timeout, i.onTimeout)
	fn := i.transition(Active)
	i.mu.Unlock()
	notify(fn, Active)
}

// Resolve stops the indicator because a bot message arrived.
func (i *Indicator) Resolve() {
	i.mu.Lock()
	if i.state != Active {
		i.mu.Unlock()
		return
	}
	i.stopTimer()
	fn := i.transition(Resolved)
	i.mu.Unlock()
	notify(fn, Resolved)
}

// Close tears the indicator down, cancelling any pending timer.
func (i *Indicator) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	i.stopTimer()
	i.state = Idle
}

// --- internal ---

func (i *Indicator) onTimeout() {
	i.mu.Lock()
	if i.closed || i.state != Active {
		i.mu.Unlock()
		return
	}
	fn := i.transition(TimedOut)
	i.mu.Unlock()
	notify(fn, TimedOut)
}

// transition sets the state and returns the callback to fire once the lock
// is released. Callers hold the lock.
func (i *Indicator) transition(s State) func(State) {
	i.state = s
	return i.onChange
}

// stopTimer cancels the liveness timer. Callers hold the lock.
func (i *Indicator) stopTimer() {
	if i.timer != nil {
		i.timer.Stop()
		i.timer = nil
	}
}

func notify(fn func(State), s State) {
	if fn != nil {
		fn(s)
	}
}
