// Package antnode is the per-dongle orchestrator: it owns the USB bulk
// transport, drives the stream parser and dispatcher, and exposes the
// request/response sequences (reset, network key, channel assign/open/close)
// that turn raw ANT messages into a channel lifecycle.
package antnode

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prograhamer/go-anthostd/internal/antchan"
	"github.com/prograhamer/go-anthostd/internal/antdevice"
	"github.com/prograhamer/go-anthostd/internal/antmetrics"
	"github.com/prograhamer/go-anthostd/internal/antmsg"
	"github.com/prograhamer/go-anthostd/internal/antnotify"
	"github.com/prograhamer/go-anthostd/internal/antstream"
	"github.com/prograhamer/go-anthostd/internal/logging"
)

// BulkTransport is the full duplex USB bulk endpoint contract a Node drives.
// usbtransport.Device and any fake used in tests both implement it.
type BulkTransport interface {
	Read(buf []byte, timeout time.Duration) (int, error)
	Write(buf []byte, timeout time.Duration) (int, error)
	Close() error
}

const (
	defaultMaxChannels   = 8
	defaultWriteTimeout  = 1 * time.Second
	defaultResponseWait  = 2 * time.Second
	defaultTxBuf         = 32
)

// Node coordinates one physical dongle: a single BulkTransport, its stream
// parser, its channel table, and its notifier registry.
type Node struct {
	transport    BulkTransport
	maxChannels  byte
	writeTimeout time.Duration
	responseWait time.Duration
	logger       *slog.Logger

	parser   *antstream.Parser
	registry *antchan.Registry
	notifier *antnotify.Registry
	tx       *txWriter
	disp     *dispatcher

	capsMu sync.RWMutex
	caps   *antmsg.Capabilities

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// ChannelOptions carries the optional per-channel search-timeout settings
// AssignDevice and AssignSearchChannel send after the base assign/configure
// sequence if set.
type ChannelOptions struct {
	// SearchTimeout, if non-nil, is sent via SetChannelSearchTimeout (2.5s
	// units; 0 disables high-priority search, 255 means infinite).
	SearchTimeout *byte
	// LowPrioritySearchTimeout, if non-nil, is sent via
	// SetChannelLowPrioritySearchTimeout (same units).
	LowPrioritySearchTimeout *byte
}

// Option configures a Node.
type Option func(*Node)

func WithMaxChannels(n byte) Option {
	return func(nd *Node) {
		if n > 0 {
			nd.maxChannels = n
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(nd *Node) {
		if d > 0 {
			nd.writeTimeout = d
		}
	}
}

func WithResponseWait(d time.Duration) Option {
	return func(nd *Node) {
		if d > 0 {
			nd.responseWait = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(nd *Node) {
		if l != nil {
			nd.logger = l
		}
	}
}

// New constructs a Node over transport. Call Start to begin the read/
// dispatch loops.
func New(transport BulkTransport, opts ...Option) *Node {
	nd := &Node{
		transport:    transport,
		maxChannels:  defaultMaxChannels,
		writeTimeout: defaultWriteTimeout,
		responseWait: defaultResponseWait,
		logger:       logging.L(),
	}
	for _, o := range opts {
		o(nd)
	}
	nd.registry = antchan.New(nd.maxChannels)
	nd.notifier = antnotify.New()
	return nd
}

// Start launches the stream parser, dispatcher, and outgoing writer
// goroutines. It returns once all three are running; callers drive the
// channel lifecycle via AssignDevice/CloseChannel and stop everything with
// Stop.
func (nd *Node) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	nd.cancel = cancel

	nd.parser = antstream.New(nd.transport, antstream.WithLogger(nd.logger))
	nd.tx = newTxWriter(runCtx, nd.transport, defaultTxBuf, nd.writeTimeout, txHooks{
		OnError: func(err error) {
			antmetrics.IncError(mapErrToMetric(fmt.Errorf("%w: %v", ErrBulkWrite, err)))
			nd.logger.Warn("write_error", "error", err)
		},
	})
	nd.disp = newDispatcher(nd.parser.Out, nd.registry, nd.notifier, nd.logger)

	nd.wg.Add(2)
	go func() {
		defer nd.wg.Done()
		if err := nd.parser.Run(runCtx); err != nil && runCtx.Err() == nil {
			antmetrics.IncError(mapErrToMetric(fmt.Errorf("%w: %v", ErrBulkRead, err)))
			nd.logger.Error("parser_stopped", "error", err)
		}
	}()
	go func() {
		defer nd.wg.Done()
		nd.disp.run(runCtx)
	}()
}

// Stop cancels the internal context and waits for the parser and dispatcher
// goroutines to exit, then closes the outgoing writer and the transport.
func (nd *Node) Stop() {
	if nd.cancel != nil {
		nd.cancel()
	}
	nd.wg.Wait()
	if nd.tx != nil {
		nd.tx.Close()
	}
	_ = nd.transport.Close()
}

// Send enqueues a single outgoing message through the txWriter.
func (nd *Node) Send(ctx context.Context, msg antmsg.Message) error {
	return nd.tx.Send(ctx, msg)
}

// Reset issues ResetSystem and waits for StartupMessage.
func (nd *Node) Reset(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, nd.responseWait)
	defer cancel()
	ch := nd.notifier.Register(waitCtx, func(msg antmsg.Message) bool {
		_, ok := msg.(antmsg.StartupMessage)
		return ok
	})
	if err := nd.Send(ctx, antmsg.ResetSystem{}); err != nil {
		return fmt.Errorf("%w: %v", ErrOpenSequence, err)
	}
	select {
	case _, ok := <-ch:
		if !ok {
			return fmt.Errorf("%w: reset", ErrNoResponse)
		}
		return nil
	case <-waitCtx.Done():
		return fmt.Errorf("%w: reset: %v", ErrNoResponse, waitCtx.Err())
	}
}

// SetNetworkKey configures a network's shared key and waits for the
// ResponseNoError acknowledgement.
func (nd *Node) SetNetworkKey(ctx context.Context, network byte, key [8]byte) error {
	return nd.sendAndAwaitResponse(ctx, antmsg.SetNetworkKey{Network: network, Key: key}, antmsg.IDSetNetworkKey)
}

// Capabilities requests the modem's Capabilities message and caches the
// result, completing step 5 of the open sequence. Every call makes the round
// trip; CachedCapabilities reads the stored result without one.
func (nd *Node) Capabilities(ctx context.Context) (antmsg.Capabilities, error) {
	waitCtx, cancel := context.WithTimeout(ctx, nd.responseWait)
	defer cancel()
	ch := nd.notifier.Register(waitCtx, func(m antmsg.Message) bool {
		_, ok := m.(antmsg.Capabilities)
		return ok
	})
	if err := nd.Send(ctx, antmsg.RequestMessage{Channel: 0, RequestID: antmsg.IDCapabilities}); err != nil {
		return antmsg.Capabilities{}, fmt.Errorf("%w: %v", ErrOpenSequence, err)
	}
	select {
	case m, ok := <-ch:
		if !ok {
			return antmsg.Capabilities{}, fmt.Errorf("%w: capabilities", ErrNoResponse)
		}
		caps := m.(antmsg.Capabilities)
		nd.capsMu.Lock()
		nd.caps = &caps
		nd.capsMu.Unlock()
		return caps, nil
	case <-waitCtx.Done():
		return antmsg.Capabilities{}, fmt.Errorf("%w: capabilities: %v", ErrNoResponse, waitCtx.Err())
	}
}

// CachedCapabilities returns the Capabilities result stored by a prior call to
// Capabilities, or ErrCapabilitiesNotInitialized if it has not been requested
// yet.
func (nd *Node) CachedCapabilities() (antmsg.Capabilities, error) {
	nd.capsMu.RLock()
	defer nd.capsMu.RUnlock()
	if nd.caps == nil {
		return antmsg.Capabilities{}, ErrCapabilitiesNotInitialized
	}
	return *nd.caps, nil
}

// sendAndAwaitResponse sends msg then waits for a ChannelResponseEvent whose
// InReplyTo matches replyTo, returning its MessageCode as an error if it isn't
// ResponseNoError.
func (nd *Node) sendAndAwaitResponse(ctx context.Context, msg antmsg.Message, replyTo antmsg.ID) error {
	waitCtx, cancel := context.WithTimeout(ctx, nd.responseWait)
	defer cancel()
	ch := nd.notifier.Register(waitCtx, func(m antmsg.Message) bool {
		resp, ok := m.(antmsg.ChannelResponseEvent)
		return ok && resp.InReplyTo == replyTo
	})
	if err := nd.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelSetup, err)
	}
	select {
	case m, ok := <-ch:
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoResponse, replyTo)
		}
		resp := m.(antmsg.ChannelResponseEvent)
		if resp.Code != antmsg.CodeResponseNoError {
			return fmt.Errorf("%w: %s: %v", ErrUnexpectedReply, replyTo, resp.Code)
		}
		return nil
	case <-waitCtx.Done():
		return fmt.Errorf("%w: %s: %v", ErrNoResponse, replyTo, waitCtx.Err())
	}
}

// AssignDevice allocates a channel, binds dev as its data processor, and
// drives the full assign/configure/open sequence — AssignChannel,
// SetChannelID, SetChannelPeriod, SetChannelRFFrequency, optionally
// SetChannelLowPrioritySearchTimeout and SetChannelSearchTimeout (opts, if
// non-nil), then OpenChannel — returning the allocated channel number once
// OpenChannel has been acknowledged. Any failure aborts and leaves the
// assignment in Assigned; callers may Free it.
func (nd *Node) AssignDevice(ctx context.Context, network byte, dev antdevice.Device, opts *ChannelOptions) (byte, error) {
	channel, err := nd.registry.Allocate(dev)
	if err != nil {
		return 0, err
	}

	steps := []antmsg.Message{
		antmsg.AssignChannel{Channel: channel, ChannelType: dev.ChannelType(), Network: network},
		antmsg.SetChannelID{
			Channel:          channel,
			Device:           dev.Pairing().DeviceID,
			DeviceType:       dev.DeviceType(),
			TransmissionType: dev.Pairing().TransmissionType,
		},
		antmsg.SetChannelPeriod{Channel: channel, Period: dev.ChannelPeriod()},
		antmsg.SetChannelRFFrequency{Channel: channel, Frequency: dev.RFFrequency()},
	}
	if opts != nil && opts.LowPrioritySearchTimeout != nil {
		steps = append(steps, antmsg.SetChannelLowPrioritySearchTimeout{Channel: channel, Timeout: *opts.LowPrioritySearchTimeout})
	}
	if opts != nil && opts.SearchTimeout != nil {
		steps = append(steps, antmsg.SetChannelSearchTimeout{Channel: channel, Timeout: *opts.SearchTimeout})
	}
	for _, step := range steps {
		if err := nd.sendAndAwaitResponse(ctx, step, step.MessageID()); err != nil {
			return 0, fmt.Errorf("%w: channel %d: %v", ErrChannelSetup, channel, err)
		}
	}

	if err := nd.sendAndAwaitResponse(ctx, antmsg.OpenChannel{Channel: channel}, antmsg.IDOpenChannel); err != nil {
		return 0, fmt.Errorf("%w: channel %d: %v", ErrOpenSequence, channel, err)
	}
	nd.registry.MarkOpen(channel)
	return channel, nil
}

// AssignProcessor is a lighter-weight allocation for a channel whose data
// consumer doesn't need the full Device configuration contract (e.g. the
// search-scan processor bound to a background-scanning channel already
// configured by the caller).
func (nd *Node) AssignProcessor(processor antchan.Processor) (byte, error) {
	return nd.registry.Allocate(processor)
}

// searchChannelPeriod and searchRFFrequency match the ANT+ background-
// scanning plan a search channel must use.
const (
	searchChannelPeriod uint16 = 8070
	searchRFFrequency   byte   = 57
)

// AssignSearchChannel allocates a channel bound to processor (typically an
// *antsearch.Processor), enables extended messages so broadcasts carry
// ChannelID trailers, then assigns it as a background-scanning channel:
// device=0, device_type=0, transmission_type=0, period=8070, frequency=57.
// opts, if non-nil, applies the same optional search-timeout steps as
// AssignDevice. Returns the allocated channel number once OpenChannel has
// been acknowledged.
func (nd *Node) AssignSearchChannel(ctx context.Context, network byte, processor antchan.Processor, opts *ChannelOptions) (byte, error) {
	channel, err := nd.registry.Allocate(processor)
	if err != nil {
		return 0, err
	}

	if err := nd.sendAndAwaitResponse(ctx, antmsg.EnableExtendedMessages{Enabled: 1}, antmsg.IDEnableExtendedMessages); err != nil {
		return 0, fmt.Errorf("%w: channel %d: %v", ErrChannelSetup, channel, err)
	}

	steps := []antmsg.Message{
		antmsg.AssignChannel{
			Channel:            channel,
			ChannelType:        antmsg.ChannelTypeReceive,
			Network:            network,
			ExtendedAssignment: antmsg.ExtAssignBackgroundScanning,
		},
		antmsg.SetChannelID{Channel: channel, Device: 0, DeviceType: 0, TransmissionType: 0},
		antmsg.SetChannelPeriod{Channel: channel, Period: searchChannelPeriod},
		antmsg.SetChannelRFFrequency{Channel: channel, Frequency: searchRFFrequency},
	}
	if opts != nil && opts.LowPrioritySearchTimeout != nil {
		steps = append(steps, antmsg.SetChannelLowPrioritySearchTimeout{Channel: channel, Timeout: *opts.LowPrioritySearchTimeout})
	}
	if opts != nil && opts.SearchTimeout != nil {
		steps = append(steps, antmsg.SetChannelSearchTimeout{Channel: channel, Timeout: *opts.SearchTimeout})
	}
	for _, step := range steps {
		if err := nd.sendAndAwaitResponse(ctx, step, step.MessageID()); err != nil {
			return 0, fmt.Errorf("%w: channel %d: %v", ErrChannelSetup, channel, err)
		}
	}

	if err := nd.sendAndAwaitResponse(ctx, antmsg.OpenChannel{Channel: channel}, antmsg.IDOpenChannel); err != nil {
		return 0, fmt.Errorf("%w: channel %d: %v", ErrOpenSequence, channel, err)
	}
	nd.registry.MarkOpen(channel)
	return channel, nil
}

// CloseChannel begins the close handshake: transitions the channel to
// Closing, sends CloseChannel, and waits for EventChannelClosed (delivered
// to the dispatcher, which calls registry.MarkClosed) before freeing the slot.
func (nd *Node) CloseChannel(ctx context.Context, channel byte) error {
	if !nd.registry.BeginClose(channel) {
		return antchan.ErrChannelInvalidState
	}

	waitCtx, cancel := context.WithTimeout(ctx, nd.responseWait)
	defer cancel()
	ch := nd.notifier.Register(waitCtx, func(m antmsg.Message) bool {
		resp, ok := m.(antmsg.ChannelResponseEvent)
		return ok && resp.Channel == channel && resp.InReplyTo == antmsg.IDChannelEvent && resp.Code == antmsg.CodeEventChannelClosed
	})

	if err := nd.Send(ctx, antmsg.CloseChannel{Channel: channel}); err != nil {
		return fmt.Errorf("%w: %v", ErrCloseChannel, err)
	}

	select {
	case _, ok := <-ch:
		if !ok {
			return fmt.Errorf("%w: channel %d", ErrNoResponse, channel)
		}
	case <-waitCtx.Done():
		return fmt.Errorf("%w: channel %d: %v", ErrNoResponse, channel, waitCtx.Err())
	}

	return nd.registry.Free(channel)
}

// ChannelStatus returns the current lifecycle status and event log for a
// channel, for debug/status surfaces.
func (nd *Node) ChannelStatus(channel byte) (antchan.Snapshot, bool) {
	return nd.registry.Status(channel)
}

// Channels returns a point-in-time snapshot of every allocated channel.
func (nd *Node) Channels() []antchan.Snapshot {
	return nd.registry.Snapshots()
}
