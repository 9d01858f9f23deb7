// Package usbtransport implements antnode.BulkTransport over a USB ANT
// dongle's bulk IN/OUT endpoints using google/gousb.
package usbtransport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
	"github.com/prograhamer/go-anthostd/internal/antstream"
)

// Garmin/Dynastream's USB vendor id and the ANT USB-m stick's product id —
// the pairing node.rs defaults to when no override is given.
const (
	DefaultVendorID  = 0x0fcf
	DefaultProductID = 0x1009
)

// ErrTimeout is returned by Read/Write when the USB transfer times out. It is
// antstream.ErrTimeout itself (not a distinct sentinel) so the stream
// parser's errors.Is(err, antstream.ErrTimeout) check treats it as a
// zero-byte read rather than a hard error.
var ErrTimeout = antstream.ErrTimeout

// ErrDeviceNotFound is returned when no USB device matches the configured
// vendor/product id.
var ErrDeviceNotFound = errors.New("usbtransport: device not found")

// ErrEndpointNotFound is returned when the claimed interface has no bulk
// IN+OUT endpoint pair.
var ErrEndpointNotFound = errors.New("usbtransport: endpoint not found")

// Device is an opened ANT USB dongle's bulk transport.
type Device struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	intf  *gousb.Interface
	epIn  *gousb.InEndpoint
	epOut *gousb.OutEndpoint
}

// Option configures device selection before Open.
type Option func(*openParams)

type openParams struct {
	vendorID, productID gousb.ID
}

func WithVendorProduct(vendorID, productID uint16) Option {
	return func(p *openParams) {
		p.vendorID = gousb.ID(vendorID)
		p.productID = gousb.ID(productID)
	}
}

// Open finds the first matching USB device, claims its default interface,
// and resolves the bulk IN/OUT endpoint pair. The returned Device owns the
// gousb context and must be Closed by the caller.
func Open(opts ...Option) (*Device, error) {
	p := openParams{vendorID: DefaultVendorID, productID: DefaultProductID}
	for _, o := range opts {
		o(&p)
	}

	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(p.vendorID, p.productID)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: open device: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, ErrDeviceNotFound
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: set auto detach: %w", err)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: claim config: %w", err)
	}

	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: claim interface: %w", err)
	}

	epIn, epOut, err := findBulkEndpoints(intf)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, err
	}

	return &Device{ctx: ctx, dev: dev, cfg: cfg, intf: intf, epIn: epIn, epOut: epOut}, nil
}

// findBulkEndpoints scans the claimed interface setting for a bulk IN and a
// bulk OUT endpoint, mirroring a USB-m stick's single-altsetting layout:
// exactly one of each. If a setting has several bulk endpoints in one
// direction, which of them is used is not defined.
func findBulkEndpoints(intf *gousb.Interface) (*gousb.InEndpoint, *gousb.OutEndpoint, error) {
	var inDesc, outDesc *gousb.EndpointDesc
	for _, ep := range intf.Setting.Endpoints {
		ep := ep
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionIn:
			inDesc = &ep
		case gousb.EndpointDirectionOut:
			outDesc = &ep
		}
	}
	if inDesc == nil || outDesc == nil {
		return nil, nil, ErrEndpointNotFound
	}
	epIn, err := intf.InEndpoint(inDesc.Number)
	if err != nil {
		return nil, nil, fmt.Errorf("usbtransport: in endpoint: %w", err)
	}
	epOut, err := intf.OutEndpoint(outDesc.Number)
	if err != nil {
		return nil, nil, fmt.Errorf("usbtransport: out endpoint: %w", err)
	}
	return epIn, epOut, nil
}

// Read performs one bulk IN transfer, capped at timeout. A timed-out
// transfer returns (0, ErrTimeout), which the stream parser treats as an
// empty read rather than an error.
func (d *Device) Read(buf []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := d.epIn.ReadContext(ctx, buf)
	if err != nil {
		if ctx.Err() != nil {
			return n, ErrTimeout
		}
		return n, fmt.Errorf("usbtransport: bulk read: %w", err)
	}
	return n, nil
}

// Write performs one bulk OUT transfer, capped at timeout.
func (d *Device) Write(buf []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := d.epOut.WriteContext(ctx, buf)
	if err != nil {
		if ctx.Err() != nil {
			return n, ErrTimeout
		}
		return n, fmt.Errorf("usbtransport: bulk write: %w", err)
	}
	return n, nil
}

// Close releases the interface, configuration, device handle, and context in
// order.
func (d *Device) Close() error {
	if d.intf != nil {
		d.intf.Close()
	}
	if d.cfg != nil {
		d.cfg.Close()
	}
	var err error
	if d.dev != nil {
		err = d.dev.Close()
	}
	if d.ctx != nil {
		d.ctx.Close()
	}
	return err
}
