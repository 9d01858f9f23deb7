// Package antnotify implements the request/response correlation registry:
// callers register a predicate over incoming messages and receive a one-shot
// channel that fires on the first match or on timeout.
package antnotify

import (
	"context"
	"sync"
	"time"

	"github.com/prograhamer/go-anthostd/internal/antmetrics"
	"github.com/prograhamer/go-anthostd/internal/antmsg"
)

// Predicate reports whether msg satisfies a pending wait.
type Predicate func(msg antmsg.Message) bool

// waiter is one registered predicate plus its one-shot delivery channel.
type waiter struct {
	predicate Predicate
	out       chan antmsg.Message
}

// Registry holds the set of currently pending waiters. A message dispatched
// through Notify is offered to every waiter in registration order; the first
// whose predicate matches is removed and receives it. Waiters never block the
// dispatcher — Notify always returns immediately.
type Registry struct {
	mu      sync.Mutex
	waiters []*waiter
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Register installs pred and returns a channel that receives the first
// message it matches. The channel is unregistered and closed automatically
// once it fires or ctx is done, whichever happens first.
func (r *Registry) Register(ctx context.Context, pred Predicate) <-chan antmsg.Message {
	w := &waiter{predicate: pred, out: make(chan antmsg.Message, 1)}

	r.mu.Lock()
	r.waiters = append(r.waiters, w)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.remove(w)
	}()

	return w.out
}

// WaitFor is a convenience wrapper blocking until pred matches, timeout
// elapses, or ctx is cancelled.
func (r *Registry) WaitFor(ctx context.Context, timeout time.Duration, pred Predicate) (antmsg.Message, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := r.Register(waitCtx, pred)
	select {
	case msg, ok := <-ch:
		if !ok {
			antmetrics.IncNotifierTimeout()
			return nil, waitCtx.Err()
		}
		return msg, nil
	case <-waitCtx.Done():
		// Wait for ch to be closed (by Register's cleanup or by Notify), so the
		// waiter is already unregistered when WaitFor returns.
		<-ch
		antmetrics.IncNotifierTimeout()
		return nil, waitCtx.Err()
	}
}

// Notify offers msg to every pending waiter, delivering to and removing the
// first match. It never blocks: a waiter whose buffered slot is somehow full
// (it cannot be, capacity 1, single delivery) would simply be skipped.
func (r *Registry) Notify(msg antmsg.Message) {
	r.mu.Lock()
	var matched *waiter
	var idx int
	for i, w := range r.waiters {
		if w.predicate(msg) {
			matched = w
			idx = i
			break
		}
	}
	if matched != nil {
		r.waiters = append(r.waiters[:idx], r.waiters[idx+1:]...)
	}
	r.mu.Unlock()

	if matched != nil {
		select {
		case matched.out <- msg:
		default:
		}
		close(matched.out)
	}
}

// Pending returns the number of currently registered waiters, for debug/status
// surfaces.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}

func (r *Registry) remove(target *waiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, w := range r.waiters {
		if w == target {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			close(w.out)
			return
		}
	}
}
