package antnode

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prograhamer/go-anthostd/internal/antmsg"
)

// bulkWriter is the minimal write side a txWriter drives.
type bulkWriter interface {
	Write(buf []byte, timeout time.Duration) (int, error)
}

// txHooks customize txWriter behavior without duplicating its goroutine and
// buffer plumbing per caller.
type txHooks struct {
	OnError func(error)
	OnAfter func()
}

// txWriter funnels outgoing frame writes through a single goroutine so
// concurrent callers (the orchestrator's channel-setup sequence, request/
// response calls, user code sending acknowledged data) never interleave bytes
// on the wire. Send blocks only until the message is queued for the write
// goroutine; the goroutine itself never blocks a caller on the USB round trip
// beyond the configured writeTimeout.
type txWriter struct {
	mu           sync.Mutex
	ch           chan antmsg.Message
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	transport    bulkWriter
	writeTimeout time.Duration
	hooks        txHooks
	closed       atomic.Bool
}

func newTxWriter(parent context.Context, transport bulkWriter, buf int, writeTimeout time.Duration, hooks txHooks) *txWriter {
	ctx, cancel := context.WithCancel(parent)
	w := &txWriter{
		ch:           make(chan antmsg.Message, buf),
		ctx:          ctx,
		cancel:       cancel,
		transport:    transport,
		writeTimeout: writeTimeout,
		hooks:        hooks,
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *txWriter) loop() {
	defer w.wg.Done()
	for {
		select {
		case msg, ok := <-w.ch:
			if !ok {
				return
			}
			frame := antmsg.Encode(msg)
			if _, err := w.transport.Write(frame, w.writeTimeout); err != nil {
				if w.hooks.OnError != nil {
					w.hooks.OnError(err)
				}
				continue
			}
			if w.hooks.OnAfter != nil {
				w.hooks.OnAfter()
			}
		case <-w.ctx.Done():
			return
		}
	}
}

// Send enqueues msg for transmission, blocking only if the internal buffer is
// full (bounded backpressure, unlike a fire-and-forget drop policy, because
// silently dropping an AssignChannel or OpenChannel request would wedge the
// open sequence waiting on a response that never gets sent).
//
// mu is held for the duration of the enqueue attempt so a concurrent Close
// can never close w.ch out from under a Send that already passed the closed
// check — Close cancels w.ctx before taking mu, which unblocks any Send
// parked in the select below so the lock is never held indefinitely.
func (w *txWriter) Send(ctx context.Context, msg antmsg.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed.Load() {
		return ErrContext
	}
	select {
	case w.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return ErrContext
	}
}

func (w *txWriter) Close() {
	if w.closed.Swap(true) {
		return
	}
	w.cancel()
	w.mu.Lock()
	close(w.ch)
	w.mu.Unlock()
	w.wg.Wait()
}
