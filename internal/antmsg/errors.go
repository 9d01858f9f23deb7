package antmsg

import "fmt"

// DecodeError is returned by Decode. Callers distinguish InsufficientData
// (more bytes needed, not corruption) from every other variant (corruption;
// the caller should give up on the stream rather than retry).
type DecodeError struct {
	Kind  DecodeErrorKind
	Value byte // populated for the Invalid* kinds
}

type DecodeErrorKind int

const (
	InsufficientData DecodeErrorKind = iota
	InvalidSyncByte
	InvalidChecksum
	InvalidMessageID
	InvalidMessageCode
	InvalidChannelType
	// InvalidChannelExtendedAssignment is reserved: Decode never rejects an
	// AssignChannel's extended-assignment byte (unknown bits are preserved,
	// not validated, so a decode/encode round trip stays byte-exact against
	// firmware newer than ChannelExtendedAssignment's named flags).
	InvalidChannelExtendedAssignment
)

func (e *DecodeError) Error() string {
	switch e.Kind {
	case InsufficientData:
		return "antmsg: insufficient data"
	case InvalidSyncByte:
		return "antmsg: invalid sync byte"
	case InvalidChecksum:
		return "antmsg: invalid checksum"
	case InvalidMessageID:
		return fmt.Sprintf("antmsg: invalid message id 0x%02x", e.Value)
	case InvalidMessageCode:
		return fmt.Sprintf("antmsg: invalid message code 0x%02x", e.Value)
	case InvalidChannelType:
		return fmt.Sprintf("antmsg: invalid channel type 0x%02x", e.Value)
	case InvalidChannelExtendedAssignment:
		return fmt.Sprintf("antmsg: invalid channel extended assignment 0x%02x", e.Value)
	default:
		return "antmsg: decode error"
	}
}

// IsInsufficientData reports whether err signals "need more bytes", as
// opposed to a corrupt frame.
func IsInsufficientData(err error) bool {
	de, ok := err.(*DecodeError)
	return ok && de.Kind == InsufficientData
}

func errInsufficientData() error { return &DecodeError{Kind: InsufficientData} }
func errInvalidSync() error      { return &DecodeError{Kind: InvalidSyncByte} }
func errInvalidChecksum() error  { return &DecodeError{Kind: InvalidChecksum} }
func errInvalidID(v byte) error  { return &DecodeError{Kind: InvalidMessageID, Value: v} }
func errInvalidCode(v byte) error { return &DecodeError{Kind: InvalidMessageCode, Value: v} }
func errInvalidChannelType(v byte) error {
	return &DecodeError{Kind: InvalidChannelType, Value: v}
}
