package antmsg

// SYNC is the first byte of every frame.
const SYNC byte = 0xa4

// ID identifies the message variant carried by a frame. ChannelEvent (0x01)
// is special: it never appears as a top-level frame id, only inside a
// ChannelResponseEvent's message_id field.
type ID byte

const (
	IDChannelEvent         ID = 0x01
	IDChannelResponseEvent ID = 0x40
	IDAssignChannel        ID = 0x42
	IDSetChannelPeriod     ID = 0x43
	IDSetChannelSearchTimeout ID = 0x44
	IDSetChannelRFFrequency   ID = 0x45
	IDSetNetworkKey           ID = 0x46
	IDResetSystem             ID = 0x4a
	IDOpenChannel             ID = 0x4b
	IDCloseChannel            ID = 0x4c
	IDRequestMessage          ID = 0x4d
	IDBroadcastData           ID = 0x4e
	IDAcknowledgedData        ID = 0x4f
	IDSetChannelID            ID = 0x51
	IDCapabilities            ID = 0x54
	IDSetChannelLowPrioritySearchTimeout ID = 0x63
	IDEnableExtendedMessages             ID = 0x66
	IDLibConfig                          ID = 0x6e
	IDStartupMessage                     ID = 0x6f
)

func (id ID) String() string {
	switch id {
	case IDChannelEvent:
		return "ChannelEvent"
	case IDChannelResponseEvent:
		return "ChannelResponseEvent"
	case IDAssignChannel:
		return "AssignChannel"
	case IDSetChannelPeriod:
		return "SetChannelPeriod"
	case IDSetChannelSearchTimeout:
		return "SetChannelSearchTimeout"
	case IDSetChannelRFFrequency:
		return "SetChannelRFFrequency"
	case IDSetNetworkKey:
		return "SetNetworkKey"
	case IDResetSystem:
		return "ResetSystem"
	case IDOpenChannel:
		return "OpenChannel"
	case IDCloseChannel:
		return "CloseChannel"
	case IDRequestMessage:
		return "RequestMessage"
	case IDBroadcastData:
		return "BroadcastData"
	case IDAcknowledgedData:
		return "AcknowledgedData"
	case IDSetChannelID:
		return "SetChannelID"
	case IDCapabilities:
		return "Capabilities"
	case IDSetChannelLowPrioritySearchTimeout:
		return "SetChannelLowPrioritySearchTimeout"
	case IDEnableExtendedMessages:
		return "EnableExtendedMessages"
	case IDLibConfig:
		return "LibConfig"
	case IDStartupMessage:
		return "StartupMessage"
	default:
		return "Unknown"
	}
}

func idKnown(id byte) bool {
	switch ID(id) {
	case IDChannelResponseEvent, IDAssignChannel, IDSetChannelPeriod, IDSetChannelSearchTimeout,
		IDSetChannelRFFrequency, IDSetNetworkKey, IDResetSystem, IDOpenChannel, IDCloseChannel,
		IDRequestMessage, IDBroadcastData, IDAcknowledgedData, IDSetChannelID, IDCapabilities,
		IDSetChannelLowPrioritySearchTimeout, IDEnableExtendedMessages, IDLibConfig, IDStartupMessage:
		return true
	default:
		return false
	}
}

// MessageCode is carried inside a ChannelResponseEvent, either as a command
// response status or (when message_id == ChannelEvent) an asynchronous event.
type MessageCode byte

const (
	CodeResponseNoError MessageCode = 0

	CodeEventRXSearchTimeout        MessageCode = 1
	CodeEventRXFail                 MessageCode = 2
	CodeEventTX                     MessageCode = 3
	CodeEventTransferRXFailed       MessageCode = 4
	CodeEventTransferTXCompleted    MessageCode = 5
	CodeEventTransferTXFailed       MessageCode = 6
	CodeEventChannelClosed          MessageCode = 7
	CodeEventRXFailGoToSearch       MessageCode = 8
	CodeEventChannelCollision       MessageCode = 9
	CodeEventTransferTXStart        MessageCode = 10
	CodeEventTransferNextDataBlock  MessageCode = 17

	CodeChannelInWrongState          MessageCode = 21
	CodeChannelNotOpened             MessageCode = 22
	CodeChannelIDNotSet              MessageCode = 24
	CodeCloseAllChannels             MessageCode = 25
	CodeTransferInProgress           MessageCode = 31
	CodeTransferSequenceNumberError  MessageCode = 32
	CodeTransferInError              MessageCode = 33
	CodeMessageSizeExceedsLimit      MessageCode = 39
	CodeInvalidMessage               MessageCode = 40
	CodeInvalidNetworkNumber         MessageCode = 41
	CodeInvalidListID                MessageCode = 48
	CodeInvalidScanTXChannel         MessageCode = 49
	CodeInvalidParameterProvided     MessageCode = 51
	CodeEventSerialQueOverflow       MessageCode = 52
	CodeEventQueOverflow             MessageCode = 53
	CodeEncryptNegotiationSuccess    MessageCode = 56
	CodeEncryptNegotiationFail       MessageCode = 57
	CodeNVMFullError                 MessageCode = 64
	CodeNVMWriteError                MessageCode = 65
	CodeUSBStringWriteFail           MessageCode = 112
	CodeMesgSerialErrorID            MessageCode = 174
)

func codeKnown(b byte) bool {
	switch MessageCode(b) {
	case CodeResponseNoError, CodeEventRXSearchTimeout, CodeEventRXFail, CodeEventTX,
		CodeEventTransferRXFailed, CodeEventTransferTXCompleted, CodeEventTransferTXFailed,
		CodeEventChannelClosed, CodeEventRXFailGoToSearch, CodeEventChannelCollision,
		CodeEventTransferTXStart, CodeEventTransferNextDataBlock, CodeChannelInWrongState,
		CodeChannelNotOpened, CodeChannelIDNotSet, CodeCloseAllChannels, CodeTransferInProgress,
		CodeTransferSequenceNumberError, CodeTransferInError, CodeMessageSizeExceedsLimit,
		CodeInvalidMessage, CodeInvalidNetworkNumber, CodeInvalidListID, CodeInvalidScanTXChannel,
		CodeInvalidParameterProvided, CodeEventSerialQueOverflow, CodeEventQueOverflow,
		CodeEncryptNegotiationSuccess, CodeEncryptNegotiationFail, CodeNVMFullError,
		CodeNVMWriteError, CodeUSBStringWriteFail, CodeMesgSerialErrorID:
		return true
	default:
		return false
	}
}

// ChannelType selects the channel's basic transmit/receive role.
type ChannelType byte

const (
	ChannelTypeReceive                    ChannelType = 0x00
	ChannelTypeTransmit                   ChannelType = 0x10
	ChannelTypeSharedBidirectionalReceive ChannelType = 0x20
	ChannelTypeSharedBidirectionalTransmit ChannelType = 0x30
	ChannelTypeReceiveOnly                ChannelType = 0x40
	ChannelTypeTransmitOnly               ChannelType = 0x50
)

func channelTypeKnown(b byte) bool {
	switch ChannelType(b) {
	case ChannelTypeReceive, ChannelTypeTransmit, ChannelTypeSharedBidirectionalReceive,
		ChannelTypeSharedBidirectionalTransmit, ChannelTypeReceiveOnly, ChannelTypeTransmitOnly:
		return true
	default:
		return false
	}
}

// ChannelExtendedAssignment is a bitflag set; unknown bits are preserved
// verbatim so a decode/encode round trip is byte-exact even against frames
// produced by firmware newer than this set of known flags.
type ChannelExtendedAssignment byte

const (
	ExtAssignBackgroundScanning ChannelExtendedAssignment = 0x01
	ExtAssignFrequencyAgility   ChannelExtendedAssignment = 0x04
	ExtAssignFastChannelInit    ChannelExtendedAssignment = 0x10
	ExtAssignAsyncTransmission  ChannelExtendedAssignment = 0x20
)

// Has reports whether all bits in flag are set.
func (e ChannelExtendedAssignment) Has(flag ChannelExtendedAssignment) bool {
	return e&flag == flag
}
