// Package antsearch implements the search-scan discovery processor: a
// DataProcessor that deduplicates ChannelID trailers off a background-scanning
// channel and publishes each distinct one at most once.
package antsearch

import (
	"github.com/prograhamer/go-anthostd/internal/antmetrics"
	"github.com/prograhamer/go-anthostd/internal/antmsg"
)

// Processor discovers distinct ChannelID values seen on a search channel's
// extended broadcast trailers and publishes each once on Found.
//
// Found is sized generously and drained by the caller; a full channel causes
// ProcessData to drop the discovery rather than block the dispatcher, mirroring
// the try-send semantics of the channel this was ported from.
type Processor struct {
	Found chan antmsg.ChannelID

	seen map[antmsg.ChannelID]struct{}
}

// New constructs a Processor with the given output channel capacity.
func New(bufSize int) *Processor {
	return &Processor{
		Found: make(chan antmsg.ChannelID, bufSize),
		seen:  make(map[antmsg.ChannelID]struct{}),
	}
}

// ProcessData records data.ChannelID if present and not previously seen.
func (p *Processor) ProcessData(data antmsg.DataPayload) error {
	if data.ChannelID == nil {
		return nil
	}
	id := *data.ChannelID
	if _, ok := p.seen[id]; ok {
		return nil
	}
	p.seen[id] = struct{}{}

	select {
	case p.Found <- id:
		antmetrics.IncSearchDiscovery()
	default:
	}
	return nil
}

// Seen reports how many distinct channel ids have been discovered so far.
func (p *Processor) Seen() int { return len(p.seen) }
