package antnode

import (
	"context"
	"log/slog"

	"github.com/prograhamer/go-anthostd/internal/antchan"
	"github.com/prograhamer/go-anthostd/internal/antmetrics"
	"github.com/prograhamer/go-anthostd/internal/antmsg"
	"github.com/prograhamer/go-anthostd/internal/antnotify"
	"github.com/prograhamer/go-anthostd/internal/logging"
)

// dispatcher drains the stream parser's Out channel and routes each message:
// ChannelResponseEvent frames go to the notifier registry for request/
// response correlation, and those carrying an asynchronous channel event
// (InReplyTo == ChannelEvent) also go to the channel's event log; data frames go to the
// bound processor via the channel registry. A processor error is logged and
// otherwise ignored — a misbehaving consumer never disables its own channel.
type dispatcher struct {
	in       <-chan antmsg.Message
	registry *antchan.Registry
	notifier *antnotify.Registry
	logger   *slog.Logger
}

func newDispatcher(in <-chan antmsg.Message, registry *antchan.Registry, notifier *antnotify.Registry, logger *slog.Logger) *dispatcher {
	return &dispatcher{in: in, registry: registry, notifier: notifier, logger: logger}
}

func (d *dispatcher) run(ctx context.Context) {
	for {
		select {
		case msg, ok := <-d.in:
			if !ok {
				return
			}
			d.route(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (d *dispatcher) route(msg antmsg.Message) {
	antmetrics.IncFramesDecoded(msg.MessageID().String())

	switch m := msg.(type) {
	case antmsg.ChannelResponseEvent:
		if m.InReplyTo == antmsg.IDChannelEvent {
			d.registry.AppendEvent(m.Channel, m.Code)
			if m.Code == antmsg.CodeEventChannelClosed {
				d.registry.MarkClosed(m.Channel)
			}
		}
		d.notifier.Notify(msg)

	case antmsg.BroadcastData:
		if err := d.registry.Dispatch(m.Channel, m.DataPayload); err != nil {
			antmetrics.IncError(antmetrics.ErrDispatch)
			logging.WithChannel(d.logger, m.Channel).Warn("process_data_error", "error", err)
		}

	case antmsg.AcknowledgedData:
		if err := d.registry.Dispatch(m.Channel, m.DataPayload); err != nil {
			antmetrics.IncError(antmetrics.ErrDispatch)
			logging.WithChannel(d.logger, m.Channel).Warn("process_data_error", "error", err)
		}
		d.notifier.Notify(msg)

	default:
		d.notifier.Notify(msg)
	}
}
