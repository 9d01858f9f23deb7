package antstream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prograhamer/go-anthostd/internal/antmsg"
)

// chunkTransport replays a fixed byte stream in caller-chosen chunk sizes,
// mimicking irregular USB bulk read boundaries.
type chunkTransport struct {
	mu     sync.Mutex
	chunks [][]byte
	idx    int
}

func (c *chunkTransport) Read(buf []byte, _ time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx >= len(c.chunks) {
		return 0, ErrTimeout
	}
	chunk := c.chunks[c.idx]
	c.idx++
	n := copy(buf, chunk)
	return n, nil
}

func chunksOf(data []byte, sizes []int) [][]byte {
	var out [][]byte
	pos := 0
	i := 0
	for pos < len(data) {
		n := sizes[i%len(sizes)]
		i++
		if pos+n > len(data) {
			n = len(data) - pos
		}
		out = append(out, data[pos:pos+n])
		pos += n
	}
	return out
}

func TestParser_ChunkedFrames(t *testing.T) {
	want := []antmsg.Message{
		antmsg.ResetSystem{},
		antmsg.OpenChannel{Channel: 3},
		antmsg.SetChannelPeriod{Channel: 1, Period: 8070},
	}

	var stream []byte
	for _, m := range want {
		stream = append(stream, antmsg.Encode(m)...)
	}

	tr := &chunkTransport{chunks: chunksOf(stream, []int{1, 2, 3, 5, 7})}
	p := New(tr, WithReadWindow(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	var got []antmsg.Message
	for i := 0; i < len(want); i++ {
		select {
		case msg, ok := <-p.Out:
			if !ok {
				t.Fatalf("Out closed early at %d", i)
			}
			got = append(got, msg)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
	cancel()
	<-errCh

	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].MessageID() != want[i].MessageID() {
			t.Fatalf("message %d: got id %v, want %v", i, got[i].MessageID(), want[i].MessageID())
		}
	}
}

func TestParser_DiscardsGarbagePrefix(t *testing.T) {
	want := antmsg.ResetSystem{}
	garbage := []byte{0x00, 0xff, 0x11, 0x22}
	stream := append(garbage, antmsg.Encode(want)...)

	tr := &chunkTransport{chunks: [][]byte{stream}}
	p := New(tr, WithReadWindow(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	select {
	case msg, ok := <-p.Out:
		if !ok {
			t.Fatal("Out closed before delivering message")
		}
		if msg.MessageID() != want.MessageID() {
			t.Fatalf("got %v, want %v", msg.MessageID(), want.MessageID())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	if p.DiscardedBytes() != uint64(len(garbage)) {
		t.Fatalf("discarded %d bytes, want %d", p.DiscardedBytes(), len(garbage))
	}
}

func TestParser_StopClosesOut(t *testing.T) {
	tr := &chunkTransport{}
	p := New(tr, WithReadWindow(time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	p.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after Stop")
	}

	if _, ok := <-p.Out; ok {
		t.Fatal("Out should be closed after Run returns")
	}
}
