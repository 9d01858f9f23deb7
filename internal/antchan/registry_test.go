package antchan

import (
	"errors"
	"testing"

	"github.com/prograhamer/go-anthostd/internal/antmsg"
)

type recordingProcessor struct {
	received []antmsg.DataPayload
	err      error
}

func (p *recordingProcessor) ProcessData(data antmsg.DataPayload) error {
	p.received = append(p.received, data)
	return p.err
}

func TestRegistry_AllocateFillsSlotsThenErrors(t *testing.T) {
	r := New(2)
	a, err := r.Allocate(nil)
	if err != nil {
		t.Fatalf("allocate 1: %v", err)
	}
	b, err := r.Allocate(nil)
	if err != nil {
		t.Fatalf("allocate 2: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct channels, got %d and %d", a, b)
	}
	if _, err := r.Allocate(nil); !errors.Is(err, ErrNoAvailableChannel) {
		t.Fatalf("expected ErrNoAvailableChannel, got %v", err)
	}
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := New(4)
	ch, err := r.Allocate(nil)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	snap, ok := r.Status(ch)
	if !ok || snap.Status != Assigned {
		t.Fatalf("expected Assigned, got %v ok=%v", snap.Status, ok)
	}

	r.MarkOpen(ch)
	snap, _ = r.Status(ch)
	if snap.Status != Open {
		t.Fatalf("expected Open, got %v", snap.Status)
	}

	if !r.BeginClose(ch) {
		t.Fatal("expected BeginClose to succeed from Open")
	}
	snap, _ = r.Status(ch)
	if snap.Status != Closing {
		t.Fatalf("expected Closing, got %v", snap.Status)
	}
	if r.BeginClose(ch) {
		t.Fatal("expected second BeginClose to be a no-op")
	}

	if err := r.Free(ch); !errors.Is(err, ErrChannelInvalidState) {
		t.Fatalf("expected ErrChannelInvalidState before MarkClosed, got %v", err)
	}

	r.MarkClosed(ch)
	snap, _ = r.Status(ch)
	if snap.Status != Closed {
		t.Fatalf("expected Closed, got %v", snap.Status)
	}

	if err := r.Free(ch); err != nil {
		t.Fatalf("free: %v", err)
	}
	if _, ok := r.Status(ch); ok {
		t.Fatal("expected channel to be gone after Free")
	}
}

func TestRegistry_AppendEventAndDispatch(t *testing.T) {
	r := New(1)
	proc := &recordingProcessor{}
	ch, _ := r.Allocate(proc)

	r.AppendEvent(ch, antmsg.CodeResponseNoError)
	r.AppendEvent(ch, antmsg.CodeEventChannelClosed)

	snap, _ := r.Status(ch)
	if len(snap.Events) != 2 || snap.Events[1] != antmsg.CodeEventChannelClosed {
		t.Fatalf("unexpected event log: %v", snap.Events)
	}

	payload := antmsg.DataPayload{Channel: ch}
	if err := r.Dispatch(ch, payload); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(proc.received) != 1 {
		t.Fatalf("expected processor to receive 1 payload, got %d", len(proc.received))
	}

	r.MarkClosed(ch)
	if err := r.Dispatch(ch, payload); err != nil {
		t.Fatalf("dispatch after close should be a no-op, got error: %v", err)
	}
	if len(proc.received) != 1 {
		t.Fatalf("expected no further dispatch after MarkClosed, got %d", len(proc.received))
	}
}
