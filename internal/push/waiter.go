package push

import (
	"errors"
	"sync"
	"time"
)

// ErrAlreadyWaiting is returned when a continuation is parked while another
// one is still pending. The engine serializes state-changing operations, so a
// second concurrent wait is a caller bug.
var ErrAlreadyWaiting = errors.New("push: a continuation is already waiting for the channel")

// Waiter parks at most one continuation until the channel is ready. Broadcast
// paths use it to hold a send until the device can be addressed: if the
// channel never becomes ready within the budget, the continuation's timeout
// arm runs instead and the send is dropped.
type Waiter struct {
	mu      sync.Mutex
	timeout time.Duration
	ready   func() bool

	pending *waitEntry
}

type waitEntry struct {
	onReady   func()
	onTimeout func()
	timer     *time.Timer
}

// NewWaiter builds a waiter. ready reports whether the channel is already
// usable; timeout bounds how long a continuation may stay parked.
func NewWaiter(ready func() bool, timeout time.Duration) *Waiter {
	return &Waiter{ready: ready, timeout: timeout}
}

// StartWaiting parks the continuation. If the channel is already ready,
// onReady runs synchronously before StartWaiting returns and nothing is
// parked.
func (w *Waiter) StartWaiting(onReady, onTimeout func()) error {
	w.mu.Lock()
	if w.ready() {
		w.mu.Unlock()
		onReady()
		return nil
	}
	if w.pending != nil {
		w.mu.Unlock()
		return ErrAlreadyWaiting
	}

	entry := &waitEntry{onReady: onReady, onTimeout: onTimeout}
	entry.timer = time.AfterFunc(w.timeout, func() { w.expire(entry) })
	w.pending = entry
	w.mu.Unlock()
	return nil
}

// ChannelReady releases the parked continuation, if any.
func (w *Waiter) ChannelReady() {
	w.mu.Lock()
	entry := w.pending
	w.pending = nil
	w.mu.Unlock()

	if entry == nil {
		return
	}
	entry.timer.Stop()
	entry.onReady()
}

// Cancel drops the parked continuation without running either arm.
func (w *Waiter) Cancel() {
	w.mu.Lock()
	entry := w.pending
	w.pending = nil
	w.mu.Unlock()

	if entry != nil {
		entry.timer.Stop()
	}
}

// Waiting reports whether a continuation is parked.
func (w *Waiter) Waiting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending != nil
}

func (w *Waiter) expire(entry *waitEntry) {
	w.mu.Lock()
	if w.pending != entry {
		w.mu.Unlock()
		return
	}
	w.pending = nil
	w.mu.Unlock()
	entry.onTimeout()
}
