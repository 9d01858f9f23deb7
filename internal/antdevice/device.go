// Package antdevice declares the optional-capability interfaces a channel
// consumer implements: DataProcessor for raw broadcast/ack frames, and the
// richer Device for something that also knows its own channel configuration.
package antdevice

import "github.com/prograhamer/go-anthostd/internal/antmsg"

// DataProcessor receives every data frame dispatched to a channel.
// Implementations must not block; antchan.Registry.Dispatch calls this
// synchronously from the dispatcher goroutine.
type DataProcessor interface {
	ProcessData(data antmsg.DataPayload) error
}

// Pairing identifies the specific transmitter a Device expects to pair with.
type Pairing struct {
	DeviceID         uint16
	TransmissionType byte
}

// Device is a DataProcessor that also carries the channel configuration
// needed to drive an AssignChannel/SetChannelID/SetChannelPeriod/
// SetChannelRFFrequency/OpenChannel sequence on its behalf.
type Device interface {
	DataProcessor

	ChannelType() antmsg.ChannelType
	DeviceType() byte
	RFFrequency() byte
	ChannelPeriod() uint16
	SetChannelPeriod(period uint16) error
	Pairing() Pairing
}

// DataProcessorFunc adapts a plain function to DataProcessor.
type DataProcessorFunc func(antmsg.DataPayload) error

func (f DataProcessorFunc) ProcessData(data antmsg.DataPayload) error { return f(data) }
