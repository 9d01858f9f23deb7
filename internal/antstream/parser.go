// Package antstream turns a raw byte stream from a BulkTransport into a
// sequence of decoded ANT messages, resynchronising after garbage and
// tolerating frames split across reads.
package antstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prograhamer/go-anthostd/internal/antmetrics"
	"github.com/prograhamer/go-anthostd/internal/antmsg"
)

// Transport is the minimal read side of a BulkTransport.
type Transport interface {
	Read(buf []byte, timeout time.Duration) (int, error)
}

// ErrTimeout is returned by Transport.Read on a timeout; the parser treats it
// as zero bytes read rather than an error.
var ErrTimeout = errors.New("antstream: timeout")

const (
	defaultBufSize    = 4096
	defaultReadWindow = 100 * time.Millisecond
)

// Parser owns a ring buffer over raw transport reads and publishes decoded
// messages to Out. It is single-threaded over its buffer: Run must only be
// called once.
type Parser struct {
	transport  Transport
	bufSize    int
	readWindow time.Duration
	logger     *slog.Logger

	Out chan antmsg.Message

	stop chan struct{}

	discarded uint64
}

// Option configures a Parser.
type Option func(*Parser)

func WithBufSize(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func WithReadWindow(d time.Duration) Option {
	return func(p *Parser) {
		if d > 0 {
			p.readWindow = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// New constructs a Parser reading from transport. Out is a channel with 256
// buffered slots; it is not unbounded. Once all 256 are full, Run blocks on
// the next send (no further reads happen) until the consumer drains Out or
// the parser is stopped or cancelled.
func New(transport Transport, opts ...Option) *Parser {
	p := &Parser{
		transport:  transport,
		bufSize:    defaultBufSize,
		readWindow: defaultReadWindow,
		logger:     slog.Default(),
		Out:        make(chan antmsg.Message, 256),
		stop:       make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Stop requests the run loop exit; it returns within one read-window.
func (p *Parser) Stop() {
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
}

// DiscardedBytes returns the cumulative count of pre-sync bytes skipped
// while resynchronising.
func (p *Parser) DiscardedBytes() uint64 { return p.discarded }

// Run drives the read/decode/resync loop until ctx is cancelled, Stop is
// called, or the transport returns a non-timeout error. It always closes Out
// before returning, which is how the dispatcher learns the parser has
// stopped.
func (p *Parser) Run(ctx context.Context) error {
	defer close(p.Out)

	buf := make([]byte, p.bufSize)
	var writeIndex, readIndex int

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			return nil
		default:
		}

		n, err := p.transport.Read(buf[writeIndex:], p.readWindow)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				n = 0
			} else {
				return fmt.Errorf("antstream: read: %w", err)
			}
		}
		writeIndex += n

		if n > 0 {
			readIndex = p.resync(buf, readIndex, writeIndex)

			for readIndex < writeIndex {
				msg, consumed, derr := antmsg.Decode(buf[readIndex:writeIndex])
				if derr != nil {
					if antmsg.IsInsufficientData(derr) {
						break
					}
					return fmt.Errorf("antstream: decode: %w", derr)
				}
				readIndex += consumed
				select {
				case p.Out <- msg:
				case <-ctx.Done():
					return ctx.Err()
				case <-p.stop:
					return nil
				}
			}

			readIndex, writeIndex = compact(buf, readIndex, writeIndex)
		}
	}
}

// resync advances past any non-SYNC bytes at readIndex, counting them for
// observability. It never reads past writeIndex.
func (p *Parser) resync(buf []byte, readIndex, writeIndex int) int {
	start := readIndex
	for readIndex < writeIndex && buf[readIndex] != antmsg.SYNC {
		readIndex++
	}
	if n := readIndex - start; n > 0 {
		p.discarded += uint64(n)
		antmetrics.AddStreamDiscarded(n)
		p.logger.Debug("antstream_resync", "discarded", n)
	}
	return readIndex
}

// compact reclaims consumed prefix space: a full reset when the buffer is
// drained, otherwise a memmove of the unread tail to the start.
func compact(buf []byte, readIndex, writeIndex int) (int, int) {
	if readIndex == writeIndex {
		return 0, 0
	}
	if readIndex == 0 {
		return readIndex, writeIndex
	}
	n := copy(buf, buf[readIndex:writeIndex])
	return 0, n
}
