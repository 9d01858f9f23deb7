package antnode

import (
	"errors"

	"github.com/prograhamer/go-anthostd/internal/antmetrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrOpenDevice                 = errors.New("open_device")
	ErrBulkRead                   = errors.New("bulk_read")
	ErrBulkWrite                  = errors.New("bulk_write")
	ErrOpenSequence               = errors.New("open_sequence")
	ErrChannelSetup               = errors.New("channel_setup")
	ErrCloseChannel               = errors.New("close_channel")
	ErrNoResponse                 = errors.New("no_response")
	ErrUnexpectedReply            = errors.New("unexpected_reply")
	ErrContext                    = errors.New("context_cancelled")
	ErrCapabilitiesNotInitialized = errors.New("capabilities_not_initialized")
)

// mapErrToMetric maps a wrapped sentinel error to a metrics label.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrBulkRead):
		return antmetrics.ErrUSBRead
	case errors.Is(err, ErrBulkWrite):
		return antmetrics.ErrUSBWrite
	case errors.Is(err, ErrOpenSequence):
		return antmetrics.ErrOpenSequence
	case errors.Is(err, ErrChannelSetup):
		return antmetrics.ErrChannelSetup
	case errors.Is(err, ErrCloseChannel):
		return antmetrics.ErrCloseChannel
	default:
		return antmetrics.ErrDispatch
	}
}
