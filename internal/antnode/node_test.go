package antnode

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prograhamer/go-anthostd/internal/antchan"
	"github.com/prograhamer/go-anthostd/internal/antdevice"
	"github.com/prograhamer/go-anthostd/internal/antmsg"
	"github.com/prograhamer/go-anthostd/internal/antsearch"
)

// fakeTransport is an in-memory BulkTransport: Writes are decoded back into
// messages, and a canned reply can be queued onto the read side, mirroring a
// dongle that answers each request with a scripted response.
type fakeTransport struct {
	mu      sync.Mutex
	written []antmsg.Message
	inbox   [][]byte
	closed  bool
}

func (f *fakeTransport) Write(buf []byte, _ time.Duration) (int, error) {
	msg, _, err := antmsg.Decode(buf)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	f.written = append(f.written, msg)
	f.mu.Unlock()
	return len(buf), nil
}

func (f *fakeTransport) Read(buf []byte, _ time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inbox) == 0 {
		return 0, nil
	}
	chunk := f.inbox[0]
	f.inbox = f.inbox[1:]
	return copy(buf, chunk), nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) queue(msg antmsg.Message) {
	f.mu.Lock()
	f.inbox = append(f.inbox, antmsg.Encode(msg))
	f.mu.Unlock()
}

func (f *fakeTransport) lastWritten() antmsg.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.written) == 0 {
		return nil
	}
	return f.written[len(f.written)-1]
}

type fakeDevice struct {
	channelType antmsg.ChannelType
	deviceType  byte
	rfFreq      byte
	period      uint16
	pairingID   uint16
	txType      byte
}

func (d *fakeDevice) ProcessData(antmsg.DataPayload) error { return nil }
func (d *fakeDevice) ChannelType() antmsg.ChannelType       { return d.channelType }
func (d *fakeDevice) DeviceType() byte                      { return d.deviceType }
func (d *fakeDevice) RFFrequency() byte                     { return d.rfFreq }
func (d *fakeDevice) ChannelPeriod() uint16                 { return d.period }
func (d *fakeDevice) SetChannelPeriod(p uint16) error       { d.period = p; return nil }
func (d *fakeDevice) Pairing() antdevice.Pairing {
	return antdevice.Pairing{DeviceID: d.pairingID, TransmissionType: d.txType}
}

// respondNoErrorAfterWrites polls the transport until it has seen n writes,
// then queues a ResponseNoError reply addressed to the most recent one.
func respondNoErrorAfterWrites(t *testing.T, tr *fakeTransport, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		tr.mu.Lock()
		got := len(tr.written)
		tr.mu.Unlock()
		if got >= n {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for write %d", n)
		case <-time.After(time.Millisecond):
		}
	}
	last := tr.lastWritten()
	tr.queue(antmsg.ChannelResponseEvent{
		Channel:   channelOf(last),
		InReplyTo: last.MessageID(),
		Code:      antmsg.CodeResponseNoError,
	})
}

func channelOf(msg antmsg.Message) byte {
	switch m := msg.(type) {
	case antmsg.AssignChannel:
		return m.Channel
	case antmsg.SetChannelID:
		return m.Channel
	case antmsg.SetChannelRFFrequency:
		return m.Channel
	case antmsg.SetChannelPeriod:
		return m.Channel
	case antmsg.SetChannelSearchTimeout:
		return m.Channel
	case antmsg.SetChannelLowPrioritySearchTimeout:
		return m.Channel
	case antmsg.OpenChannel:
		return m.Channel
	case antmsg.CloseChannel:
		return m.Channel
	default:
		return 0
	}
}

func TestNode_ResetAndSetNetworkKey(t *testing.T) {
	tr := &fakeTransport{}
	n := New(tr, WithResponseWait(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx)
	defer n.Stop()

	go func() {
		time.Sleep(20 * time.Millisecond)
		tr.queue(antmsg.StartupMessage{Reason: 0})
	}()
	if err := n.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	go respondNoErrorAfterWrites(t, tr, 2)
	if err := n.SetNetworkKey(ctx, 0, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		t.Fatalf("set network key: %v", err)
	}
}

func TestNode_AssignDeviceThenClose(t *testing.T) {
	tr := &fakeTransport{}
	n := New(tr, WithResponseWait(time.Second), WithMaxChannels(4))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx)
	defer n.Stop()

	dev := &fakeDevice{
		channelType: antmsg.ChannelTypeReceive,
		deviceType:  120,
		rfFreq:      57,
		period:      8070,
		pairingID:   4321,
		txType:      1,
	}

	// Five request/response round trips: assign, set id, set period, set
	// freq, open.
	for i := 1; i <= 5; i++ {
		go respondNoErrorAfterWrites(t, tr, i)
	}
	channel, err := n.AssignDevice(ctx, 0, dev, nil)
	if err != nil {
		t.Fatalf("assign device: %v", err)
	}

	snap, ok := n.ChannelStatus(channel)
	if !ok || snap.Status != antchan.Open {
		t.Fatalf("expected channel to be Open, got %+v ok=%v", snap, ok)
	}

	go func() {
		tr.mu.Lock()
		before := len(tr.written)
		tr.mu.Unlock()
		deadline := time.After(2 * time.Second)
		for {
			tr.mu.Lock()
			got := len(tr.written)
			tr.mu.Unlock()
			if got > before {
				break
			}
			select {
			case <-deadline:
				t.Error("timed out waiting for CloseChannel write")
				return
			case <-time.After(time.Millisecond):
			}
		}
		tr.queue(antmsg.ChannelResponseEvent{
			Channel:   channel,
			InReplyTo: antmsg.IDChannelEvent,
			Code:      antmsg.CodeEventChannelClosed,
		})
	}()
	if err := n.CloseChannel(ctx, channel); err != nil {
		t.Fatalf("close channel: %v", err)
	}

	if _, ok := n.ChannelStatus(channel); ok {
		t.Fatal("expected channel to be freed after close")
	}
}

func TestNode_Capabilities(t *testing.T) {
	tr := &fakeTransport{}
	n := New(tr, WithResponseWait(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx)
	defer n.Stop()

	if _, err := n.CachedCapabilities(); err != ErrCapabilitiesNotInitialized {
		t.Fatalf("expected ErrCapabilitiesNotInitialized before first request, got %v", err)
	}

	go func() {
		deadline := time.After(2 * time.Second)
		for {
			tr.mu.Lock()
			got := len(tr.written)
			tr.mu.Unlock()
			if got >= 1 {
				break
			}
			select {
			case <-deadline:
				t.Error("timed out waiting for RequestMessage write")
				return
			case <-time.After(time.Millisecond):
			}
		}
		tr.queue(antmsg.Capabilities{})
	}()

	caps, err := n.Capabilities(ctx)
	if err != nil {
		t.Fatalf("capabilities: %v", err)
	}

	cached, err := n.CachedCapabilities()
	if err != nil {
		t.Fatalf("cached capabilities: %v", err)
	}
	if cached != caps {
		t.Fatalf("cached capabilities %+v does not match returned %+v", cached, caps)
	}

	last := tr.lastWritten()
	req, ok := last.(antmsg.RequestMessage)
	if !ok || req.RequestID != antmsg.IDCapabilities {
		t.Fatalf("expected a RequestMessage{Capabilities}, got %#v", last)
	}
}

func TestNode_AssignSearchChannelWithOptions(t *testing.T) {
	tr := &fakeTransport{}
	n := New(tr, WithResponseWait(time.Second), WithMaxChannels(4))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx)
	defer n.Stop()

	search := antsearch.New(8)

	// EnableExtendedMessages, AssignChannel, SetChannelID, SetChannelPeriod,
	// SetChannelRFFrequency, SetChannelLowPrioritySearchTimeout,
	// SetChannelSearchTimeout, OpenChannel: 8 round trips.
	for i := 1; i <= 8; i++ {
		go respondNoErrorAfterWrites(t, tr, i)
	}

	lowPriority := byte(10)
	timeout := byte(20)
	channel, err := n.AssignSearchChannel(ctx, 0, search, &ChannelOptions{
		LowPrioritySearchTimeout: &lowPriority,
		SearchTimeout:            &timeout,
	})
	if err != nil {
		t.Fatalf("assign search channel: %v", err)
	}

	snap, ok := n.ChannelStatus(channel)
	if !ok || snap.Status != antchan.Open {
		t.Fatalf("expected search channel to be Open, got %+v ok=%v", snap, ok)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	var sawEnableExtended, sawLowPriority, sawSearchTimeout bool
	for _, msg := range tr.written {
		switch m := msg.(type) {
		case antmsg.EnableExtendedMessages:
			sawEnableExtended = m.Enabled == 1
		case antmsg.SetChannelLowPrioritySearchTimeout:
			sawLowPriority = m.Timeout == lowPriority
		case antmsg.SetChannelSearchTimeout:
			sawSearchTimeout = m.Timeout == timeout
		case antmsg.AssignChannel:
			if !m.ExtendedAssignment.Has(antmsg.ExtAssignBackgroundScanning) {
				t.Fatalf("expected AssignChannel to carry BackgroundScanning, got %+v", m)
			}
		}
	}
	if !sawEnableExtended || !sawLowPriority || !sawSearchTimeout {
		t.Fatalf("missing expected search-channel steps: extended=%v lowPriority=%v searchTimeout=%v",
			sawEnableExtended, sawLowPriority, sawSearchTimeout)
	}
}
