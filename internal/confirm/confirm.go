// Package confirm implements two-step armed confirmation keyed by resource.
//
// The first request for a key arms it until now+window; a second request
// inside the window fires. Expiry is evaluated lazily against an injected
// clock, so no timers run and tests never wait on wall time.
package confirm

import (
	"sync"
	"time"
)

// Phase is the confirmation phase of a key.
type Phase uint8

const (
	// Unarmed means the next request arms the key.
	Unarmed Phase = iota
	// Armed means the next request inside the window fires.
	Armed
)

func (p Phase) String() string {
	if p == Armed {
		return "armed"
	}
	return "unarmed"
}

// State is the observable state of a key.
type State struct {
	Phase    Phase
	Deadline time.Time
}

// Outcome is the result of [Window.Request].
type Outcome uint8

const (
	// OutcomeArmed means the key was armed by this request.
	OutcomeArmed Outcome = iota + 1
	// OutcomeFire means the caller should perform the action now.
	OutcomeFire
)

// Window tracks armed keys.
type Window struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	armed  map[string]time.Time
}

// New returns a Window with the given duration. A nil now uses time.Now.
func New(window time.Duration, now func() time.Time) *Window {
	if now == nil {
		now = time.Now
	}
	return &Window{window: window, now: now, armed: map[string]time.Time{}}
}

// Request advances key: Unarmed arms it, Armed within the deadline fires.
// Firing does not disarm; call [Window.Disarm] once the action succeeded so
// a failed action can be retried inside the same window.
func (w *Window) Request(key string) Outcome {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if deadline, ok := w.armed[key]; ok && now.Before(deadline) {
		return OutcomeFire
	}
	w.armed[key] = now.Add(w.window)
	return OutcomeArmed
}

// Disarm returns key to Unarmed.
func (w *Window) Disarm(key string) {
	w.mu.Lock()
	delete(w.armed, key)
	w.mu.Unlock()
}

// State reports the current state of key. Expired entries are pruned.
func (w *Window) State(key string) State {
	w.mu.Lock()
	defer w.mu.Unlock()

	deadline, ok := w.armed[key]
	if !ok {
		return State{Phase: Unarmed}
	}
	if !w.now().Before(deadline) {
		delete(w.armed, key)
		return State{Phase: Unarmed}
	}
	return State{Phase: Armed, Deadline: deadline}
}

// Reset disarms every key.
func (w *Window) Reset() {
	w.mu.Lock()
	w.armed = map[string]time.Time{}
	w.mu.Unlock()
}
