// Package antpage decodes the small set of common data pages that can arrive
// inside a broadcast/acknowledged data payload: command status, manufacturer
// information, and product information.
package antpage

import "github.com/prograhamer/go-anthostd/internal/antbytes"

// PageNumber identifies a common data page by its first payload byte.
type PageNumber byte

const (
	PageCommandStatus           PageNumber = 71
	PageManufacturerInformation PageNumber = 80
	PageProductInformation      PageNumber = 81
)

// CommandStatus is the outcome byte of a CommandStatus page.
type CommandStatus byte

const (
	CommandStatusPass          CommandStatus = 0
	CommandStatusFail          CommandStatus = 1
	CommandStatusNotSupported  CommandStatus = 2
	CommandStatusRejected      CommandStatus = 3
	CommandStatusPending       CommandStatus = 4
	CommandStatusUninitialized CommandStatus = 255
)

func commandStatusKnown(b byte) bool {
	switch CommandStatus(b) {
	case CommandStatusPass, CommandStatusFail, CommandStatusNotSupported,
		CommandStatusRejected, CommandStatusPending, CommandStatusUninitialized:
		return true
	default:
		return false
	}
}

// Page is the decoded union of the supported common data pages.
type Page interface {
	PageNumber() PageNumber
}

type CommandStatusPage struct {
	CommandID    byte
	SequenceNo   byte
	Status       CommandStatus
	ResponseData [4]byte
}

func (CommandStatusPage) PageNumber() PageNumber { return PageCommandStatus }

type ManufacturerInformationPage struct {
	HardwareRevision byte
	ManufacturerID   uint16
	ModelNumber      uint16
}

func (ManufacturerInformationPage) PageNumber() PageNumber { return PageManufacturerInformation }

type ProductInformationPage struct {
	SoftwareRevision uint16
	SerialNumber     uint32
}

func (ProductInformationPage) PageNumber() PageNumber { return PageProductInformation }

// Decode interprets an 8-byte data payload as a common data page. It returns
// (nil, false) for an unrecognised page number or a CommandStatus byte outside
// the known enum.
func Decode(data [8]byte) (Page, bool) {
	switch PageNumber(data[0]) {
	case PageCommandStatus:
		if !commandStatusKnown(data[3]) {
			return nil, false
		}
		return CommandStatusPage{
			CommandID:    data[1],
			SequenceNo:   data[2],
			Status:       CommandStatus(data[3]),
			ResponseData: [4]byte{data[4], data[5], data[6], data[7]},
		}, true

	case PageManufacturerInformation:
		return ManufacturerInformationPage{
			HardwareRevision: data[3],
			ManufacturerID:   antbytes.LEToU16(data[4], data[5]),
			ModelNumber:      antbytes.LEToU16(data[6], data[7]),
		}, true

	case PageProductInformation:
		softwareRevision := uint16(data[3]) * 100
		if data[2] != 0xff {
			softwareRevision += uint16(data[2])
		}
		return ProductInformationPage{
			SoftwareRevision: softwareRevision,
			SerialNumber:     antbytes.LEToU32(data[4], data[5], data[6], data[7]),
		}, true

	default:
		return nil, false
	}
}
