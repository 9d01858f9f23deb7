package antnotify

import (
	"context"
	"testing"
	"time"

	"github.com/prograhamer/go-anthostd/internal/antmsg"
)

func TestRegistry_NotifyDeliversFirstMatch(t *testing.T) {
	r := New()
	ctx := context.Background()

	ch := r.Register(ctx, func(m antmsg.Message) bool {
		_, ok := m.(antmsg.StartupMessage)
		return ok
	})

	r.Notify(antmsg.OpenChannel{Channel: 1})
	r.Notify(antmsg.StartupMessage{Reason: 0})

	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed without delivering")
		}
		if _, ok := msg.(antmsg.StartupMessage); !ok {
			t.Fatalf("expected StartupMessage, got %T", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}

	if r.Pending() != 0 {
		t.Fatalf("expected waiter to be removed after delivery, pending=%d", r.Pending())
	}
}

func TestRegistry_WaitForTimesOut(t *testing.T) {
	r := New()
	ctx := context.Background()

	_, err := r.WaitFor(ctx, 20*time.Millisecond, func(m antmsg.Message) bool { return false })
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if r.Pending() != 0 {
		t.Fatalf("expected waiter cleanup after timeout, pending=%d", r.Pending())
	}
}

func TestRegistry_OnlyOneWaiterConsumesMatch(t *testing.T) {
	r := New()
	ctx := context.Background()

	pred := func(m antmsg.Message) bool {
		_, ok := m.(antmsg.ResetSystem)
		return ok
	}
	chA := r.Register(ctx, pred)
	chB := r.Register(ctx, pred)

	r.Notify(antmsg.ResetSystem{})

	select {
	case _, ok := <-chA:
		if !ok {
			t.Fatal("chA closed without delivery")
		}
	case <-time.After(time.Second):
		t.Fatal("chA never fired")
	}

	select {
	case _, ok := <-chB:
		t.Fatalf("chB should still be pending, got ok=%v", ok)
	default:
	}
	if r.Pending() != 1 {
		t.Fatalf("expected chB still registered, pending=%d", r.Pending())
	}
}
