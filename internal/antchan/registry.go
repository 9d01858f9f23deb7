// Package antchan implements the per-channel assignment table: allocation,
// status lifecycle, the append-only event log, and the bound data processor.
package antchan

import (
	"errors"
	"sync"

	"github.com/prograhamer/go-anthostd/internal/antmetrics"
	"github.com/prograhamer/go-anthostd/internal/antmsg"
)

// Status is a channel assignment's lifecycle state.
type Status int

const (
	Assigned Status = iota
	Open
	Closing
	Closed
)

func (s Status) String() string {
	switch s {
	case Assigned:
		return "Assigned"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ErrNoAvailableChannel is returned by Allocate when every channel slot is in
// use.
var ErrNoAvailableChannel = errors.New("antchan: no available channel")

// ErrChannelInvalidState is returned when an operation's precondition on the
// current Status isn't met.
var ErrChannelInvalidState = errors.New("antchan: invalid channel state")

// Processor consumes 8-byte data frames bound to a channel.
type Processor interface {
	ProcessData(antmsg.DataPayload) error
}

// assignment is the table entry for one channel. Its own mutex isolates
// status/event/processor mutation from table-level enumeration.
type assignment struct {
	mu        sync.Mutex
	status    Status
	events    []antmsg.MessageCode
	processor Processor
}

// Snapshot is a point-in-time, lock-free copy of an assignment's status and
// event log, safe to read after the call returns.
type Snapshot struct {
	Channel byte
	Status  Status
	Events  []antmsg.MessageCode
}

// Registry is the channel:u8 -> assignment table shared by the orchestrator
// (writer, via Allocate/Free) and the dispatcher (reader+mutator of
// status/events/processor, via AppendEvent/MarkClosed/Dispatch).
type Registry struct {
	mu          sync.RWMutex
	entries     map[byte]*assignment
	maxChannels byte
}

// New constructs a Registry supporting channel numbers 0..maxChannels-1.
func New(maxChannels byte) *Registry {
	return &Registry{
		entries:     make(map[byte]*assignment),
		maxChannels: maxChannels,
	}
}

// Allocate scans channels 0..maxChannels for the first vacant slot, inserts
// it with the given processor bound (may be nil), and returns its index.
func (r *Registry) Allocate(processor Processor) (byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := byte(0); ch < r.maxChannels; ch++ {
		if _, ok := r.entries[ch]; ok {
			continue
		}
		r.entries[ch] = &assignment{status: Assigned, processor: processor}
		antmetrics.IncChannelsAssigned()
		return ch, nil
	}
	return 0, ErrNoAvailableChannel
}

func (r *Registry) lookup(channel byte) (*assignment, bool) {
	r.mu.RLock()
	a, ok := r.entries[channel]
	r.mu.RUnlock()
	return a, ok
}

// Status returns a non-blocking snapshot of a channel's status and event log.
func (r *Registry) Status(channel byte) (Snapshot, bool) {
	a, ok := r.lookup(channel)
	if !ok {
		return Snapshot{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	events := make([]antmsg.MessageCode, len(a.events))
	copy(events, a.events)
	return Snapshot{Channel: channel, Status: a.status, Events: events}, true
}

// BeginClose atomically transitions Open -> Closing and reports whether the
// caller must now issue CloseChannel (false if the channel was already past
// Open, making this call a no-op).
func (r *Registry) BeginClose(channel byte) bool {
	a, ok := r.lookup(channel)
	if !ok {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != Open {
		return false
	}
	a.status = Closing
	return true
}

// MarkOpen transitions Assigned -> Open after a successful assign-channel
// sequence.
func (r *Registry) MarkOpen(channel byte) {
	if a, ok := r.lookup(channel); ok {
		a.mu.Lock()
		a.status = Open
		a.mu.Unlock()
		antmetrics.IncChannelsOpened()
	}
}

// MarkClosed sets status Closed and drops the bound processor, called from
// the dispatcher on EventChannelClosed.
func (r *Registry) MarkClosed(channel byte) {
	a, ok := r.lookup(channel)
	if !ok {
		return
	}
	a.mu.Lock()
	wasClosed := a.status == Closed
	a.status = Closed
	a.processor = nil
	a.mu.Unlock()
	if !wasClosed {
		antmetrics.IncChannelsClosed()
	}
}

// AppendEvent appends a channel event to the per-channel log.
func (r *Registry) AppendEvent(channel byte, code antmsg.MessageCode) {
	if a, ok := r.lookup(channel); ok {
		a.mu.Lock()
		a.events = append(a.events, code)
		a.mu.Unlock()
	}
}

// Dispatch invokes the bound processor with payload; processor errors are
// returned to the caller (the dispatcher logs and continues rather than
// disabling the channel).
func (r *Registry) Dispatch(channel byte, payload antmsg.DataPayload) error {
	a, ok := r.lookup(channel)
	if !ok {
		return nil
	}
	a.mu.Lock()
	p := a.processor
	a.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.ProcessData(payload)
}

// Free removes a Closed assignment; any other status is ErrChannelInvalidState.
func (r *Registry) Free(channel byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.entries[channel]
	if !ok {
		return ErrChannelInvalidState
	}
	a.mu.Lock()
	status := a.status
	a.mu.Unlock()
	if status != Closed {
		return ErrChannelInvalidState
	}
	delete(r.entries, channel)
	return nil
}

// Snapshots returns a point-in-time copy of every channel currently in the
// table, for status/debug surfaces.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	channels := make([]byte, 0, len(r.entries))
	for ch := range r.entries {
		channels = append(channels, ch)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(channels))
	for _, ch := range channels {
		if s, ok := r.Status(ch); ok {
			out = append(out, s)
		}
	}
	return out
}
