package app

import (
	"sync"
	"time"
)

// Stopper is the part of *time.Timer the service needs.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d, like time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Stopper

func realAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// questionTimers holds at most one pending close timer per session.
type questionTimers struct {
	after AfterFunc

	mu      sync.Mutex
	pending map[string]Stopper
}

func newQuestionTimers(after AfterFunc) *questionTimers {
	return &questionTimers{
		after:   after,
		pending: make(map[string]Stopper),
	}
}

// schedule replaces any pending timer for the session. A timer drops its own
// entry when it fires, stale or not.
func (t *questionTimers) schedule(sessionID string, d time.Duration, f func()) {
	if d < 0 {
		d = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.pending[sessionID]; ok {
		existing.Stop()
	}
	var timer Stopper
	timer = t.after(d, func() {
		t.forget(sessionID, timer)
		f()
	})
	t.pending[sessionID] = timer
}

// forget removes the entry for sessionID if it still belongs to timer.
func (t *questionTimers) forget(sessionID string, timer Stopper) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending[sessionID] == timer {
		delete(t.pending, sessionID)
	}
}

func (t *questionTimers) cancel(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.pending[sessionID]; ok {
		existing.Stop()
		delete(t.pending, sessionID)
	}
}

func (t *questionTimers) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, existing := range t.pending {
		existing.Stop()
		delete(t.pending, id)
	}
}

func (t *questionTimers) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
