package antmsg

import "fmt"

// Message is implemented by every decodable/encodable ANT frame payload.
// The frame header (SYNC, LEN, ID) and trailing checksum are added by Encode
// and stripped by Decode; implementations only describe their own payload.
type Message interface {
	MessageID() ID
	appendPayload(buf []byte) []byte
}

// ResetSystem requests a full modem reset. Its payload is a single zero byte.
type ResetSystem struct{}

func (ResetSystem) MessageID() ID { return IDResetSystem }
func (ResetSystem) appendPayload(buf []byte) []byte {
	return append(buf, 0)
}

// StartupMessage reports why the modem restarted.
type StartupMessage struct {
	Reason byte
}

func (StartupMessage) MessageID() ID { return IDStartupMessage }
func (m StartupMessage) appendPayload(buf []byte) []byte {
	return append(buf, m.Reason)
}

// SetNetworkKey assigns the 8-byte shared secret for a network slot.
type SetNetworkKey struct {
	Network byte
	Key     [8]byte
}

func (SetNetworkKey) MessageID() ID { return IDSetNetworkKey }
func (m SetNetworkKey) appendPayload(buf []byte) []byte {
	return append(append(buf, m.Network), m.Key[:]...)
}

// AssignChannel binds a channel number to a role, network, and extended
// assignment flag set.
type AssignChannel struct {
	Channel            byte
	ChannelType        ChannelType
	Network            byte
	ExtendedAssignment ChannelExtendedAssignment
}

func (AssignChannel) MessageID() ID { return IDAssignChannel }
func (m AssignChannel) appendPayload(buf []byte) []byte {
	return append(buf, m.Channel, byte(m.ChannelType), m.Network, byte(m.ExtendedAssignment))
}

// SetChannelID targets a channel at a specific device id / type / transmission
// type, or (Pairing=true) requests the modem pair with the next seen device.
// The pairing bit is packed into bit 7 of the device-type byte on the wire.
type SetChannelID struct {
	Channel          byte
	Device           uint16
	Pairing          bool
	DeviceType       byte
	TransmissionType byte
}

func (SetChannelID) MessageID() ID { return IDSetChannelID }
func (m SetChannelID) appendPayload(buf []byte) []byte {
	lo := byte(m.Device)
	hi := byte(m.Device >> 8)
	deviceTypeByte := m.DeviceType & 0x7f
	if m.Pairing {
		deviceTypeByte |= 0x80
	}
	return append(buf, m.Channel, lo, hi, deviceTypeByte, m.TransmissionType)
}

// SetChannelPeriod sets the broadcast cadence in 1/32768s units.
type SetChannelPeriod struct {
	Channel byte
	Period  uint16
}

func (SetChannelPeriod) MessageID() ID { return IDSetChannelPeriod }
func (m SetChannelPeriod) appendPayload(buf []byte) []byte {
	lo := byte(m.Period)
	hi := byte(m.Period >> 8)
	return append(buf, m.Channel, lo, hi)
}

// SetChannelRFFrequency selects the RF channel (2400MHz + Frequency MHz).
type SetChannelRFFrequency struct {
	Channel   byte
	Frequency byte
}

func (SetChannelRFFrequency) MessageID() ID { return IDSetChannelRFFrequency }
func (m SetChannelRFFrequency) appendPayload(buf []byte) []byte {
	return append(buf, m.Channel, m.Frequency)
}

// SetChannelSearchTimeout sets the high-priority search timeout in 2.5s
// units; 0 = immediate search disable, 255 = infinite search.
type SetChannelSearchTimeout struct {
	Channel byte
	Timeout byte
}

func (SetChannelSearchTimeout) MessageID() ID { return IDSetChannelSearchTimeout }
func (m SetChannelSearchTimeout) appendPayload(buf []byte) []byte {
	return append(buf, m.Channel, m.Timeout)
}

// SetChannelLowPrioritySearchTimeout sets the low-priority search timeout in
// 2.5s units; 0 = off, 255 = infinite.
type SetChannelLowPrioritySearchTimeout struct {
	Channel byte
	Timeout byte
}

func (SetChannelLowPrioritySearchTimeout) MessageID() ID {
	return IDSetChannelLowPrioritySearchTimeout
}
func (m SetChannelLowPrioritySearchTimeout) appendPayload(buf []byte) []byte {
	return append(buf, m.Channel, m.Timeout)
}

// OpenChannel starts radio activity on an assigned channel.
type OpenChannel struct {
	Channel byte
}

func (OpenChannel) MessageID() ID { return IDOpenChannel }
func (m OpenChannel) appendPayload(buf []byte) []byte {
	return append(buf, m.Channel)
}

// CloseChannel stops radio activity on a channel. The modem confirms with an
// asynchronous EventChannelClosed, not with the response to this message.
type CloseChannel struct {
	Channel byte
}

func (CloseChannel) MessageID() ID { return IDCloseChannel }
func (m CloseChannel) appendPayload(buf []byte) []byte {
	return append(buf, m.Channel)
}

// RequestMessage asks the modem to emit a specific message (e.g. Capabilities)
// out of band.
type RequestMessage struct {
	Channel   byte
	RequestID ID
}

func (RequestMessage) MessageID() ID { return IDRequestMessage }
func (m RequestMessage) appendPayload(buf []byte) []byte {
	return append(buf, m.Channel, byte(m.RequestID))
}

// EnableExtendedMessages turns on (or off) extended trailers on broadcast
// data frames.
type EnableExtendedMessages struct {
	Enabled byte
}

func (EnableExtendedMessages) MessageID() ID { return IDEnableExtendedMessages }
func (m EnableExtendedMessages) appendPayload(buf []byte) []byte {
	return append(buf, m.Enabled)
}

// LibConfig configures which extended trailers appear on broadcasts; Flags is
// the same CHANNEL_ID/RSSI/RX_TIMESTAMP bit layout used on decoded frames.
type LibConfig struct {
	Flags byte
}

func (LibConfig) MessageID() ID { return IDLibConfig }
func (m LibConfig) appendPayload(buf []byte) []byte {
	return append(buf, m.Flags)
}

// ChannelResponseEvent carries either a command response (InReplyTo names the
// command being responded to) or, when InReplyTo == IDChannelEvent, an
// asynchronous channel event (Code names the event).
type ChannelResponseEvent struct {
	Channel byte
	InReplyTo ID
	Code    MessageCode
}

func (ChannelResponseEvent) MessageID() ID { return IDChannelResponseEvent }
func (m ChannelResponseEvent) appendPayload(buf []byte) []byte {
	return append(buf, m.Channel, byte(m.InReplyTo), byte(m.Code))
}

// IsEvent reports whether this ChannelResponseEvent is an asynchronous
// channel event rather than a command response.
func (m ChannelResponseEvent) IsEvent() bool { return m.InReplyTo == IDChannelEvent }

func (m ChannelResponseEvent) String() string {
	if m.IsEvent() {
		return fmt.Sprintf("ChannelResponseEvent{channel:%d event:%v}", m.Channel, m.Code)
	}
	return fmt.Sprintf("ChannelResponseEvent{channel:%d in_response_to:%v code:%v}", m.Channel, m.InReplyTo, m.Code)
}

// extended broadcast trailer flag bits, read from the byte immediately after
// the fixed 8-byte payload.
const (
	extFlagChannelID    byte = 0x80
	extFlagRSSI         byte = 0x40
	extFlagRxTimestamp  byte = 0x20
)

// ChannelID identifies a discovered or bound ANT device.
type ChannelID struct {
	DeviceNumber    uint16
	DeviceType      byte
	TransmissionType byte
}

// RSSI is the optional received-signal-strength trailer. A pad byte always
// follows it on the wire (undocumented, but observed on every Dynastream
// dongle this library has been tested against).
type RSSI struct {
	MeasurementType byte
	Value           byte
	ThresholdConfig byte
}

// DataPayload is the common carrier for BroadcastData and AcknowledgedData.
// Data is nil for the zero-length (channel-only) variant. ChannelID, RSSI,
// and RxTimestamp are populated only when the corresponding extended flag bit
// was set and enough bytes were present to decode it.
type DataPayload struct {
	Channel     byte
	Data        *[8]byte
	ChannelID   *ChannelID
	RSSI        *RSSI
	RxTimestamp *uint16
}

func (p DataPayload) appendPayload(buf []byte) []byte {
	buf = append(buf, p.Channel)
	if p.Data == nil {
		return buf
	}
	buf = append(buf, p.Data[:]...)
	var flags byte
	if p.ChannelID != nil {
		flags |= extFlagChannelID
	}
	if p.RSSI != nil {
		flags |= extFlagRSSI
	}
	if p.RxTimestamp != nil {
		flags |= extFlagRxTimestamp
	}
	if flags == 0 {
		return buf
	}
	buf = append(buf, flags)
	if p.ChannelID != nil {
		lo := byte(p.ChannelID.DeviceNumber)
		hi := byte(p.ChannelID.DeviceNumber >> 8)
		buf = append(buf, lo, hi, p.ChannelID.DeviceType, p.ChannelID.TransmissionType)
	}
	if p.RSSI != nil {
		buf = append(buf, p.RSSI.MeasurementType, p.RSSI.Value, p.RSSI.ThresholdConfig, 0)
	}
	if p.RxTimestamp != nil {
		lo := byte(*p.RxTimestamp)
		hi := byte(*p.RxTimestamp >> 8)
		buf = append(buf, lo, hi)
	}
	return buf
}

// BroadcastData is an unacknowledged periodic data frame from a channel.
type BroadcastData struct{ DataPayload }

func (BroadcastData) MessageID() ID { return IDBroadcastData }
func (m BroadcastData) appendPayload(buf []byte) []byte { return m.DataPayload.appendPayload(buf) }

// AcknowledgedData is a data frame the sender expects the link layer to
// acknowledge; it shares DataPayload's wire shape exactly.
type AcknowledgedData struct{ DataPayload }

func (AcknowledgedData) MessageID() ID { return IDAcknowledgedData }
func (m AcknowledgedData) appendPayload(buf []byte) []byte { return m.DataPayload.appendPayload(buf) }

// Capabilities standard/advanced option bitflag groups, carried raw inside
// Capabilities before being flattened into named booleans.
type capStandardOptions byte

const (
	capNoReceiveChannels  capStandardOptions = 0x01
	capNoTransmitChannels capStandardOptions = 0x02
	capNoReceiveMessages  capStandardOptions = 0x04
	capNoTransmitMessages capStandardOptions = 0x08
	capNoAckdMessages     capStandardOptions = 0x10
	capNoBurstMessages    capStandardOptions = 0x20
)

type capAdvancedOptions byte

const (
	capNetworkEnabled          capAdvancedOptions = 0x02
	capSerialNumberEnabled     capAdvancedOptions = 0x04
	capPerChannelTXPowerEnabled capAdvancedOptions = 0x08
	capScriptEnabled           capAdvancedOptions = 0x20
	capSearchListEnabled       capAdvancedOptions = 0x40
)

type capAdvancedOptions2 byte

const (
	capLEDEnabled             capAdvancedOptions2 = 0x01
	capExtMessageEnabled      capAdvancedOptions2 = 0x02
	capScanModeEnabled        capAdvancedOptions2 = 0x04
	capProxSearchEnabled      capAdvancedOptions2 = 0x10
	capExtAssignEnabled       capAdvancedOptions2 = 0x20
	capFSANTFSEnabled         capAdvancedOptions2 = 0x40
	capFIT1Enabled            capAdvancedOptions2 = 0x80
)

type capAdvancedOptions3 byte

const (
	capAdvancedBurstEnabled          capAdvancedOptions3 = 0x01
	capEventBufferingEnabled         capAdvancedOptions3 = 0x02
	capEventFilteringEnabled         capAdvancedOptions3 = 0x04
	capHighDutySearchEnabled         capAdvancedOptions3 = 0x08
	capSearchSharingEnabled          capAdvancedOptions3 = 0x10
	capSelectiveDataUpdatesEnabled   capAdvancedOptions3 = 0x20
	capEncryptedChannelEnabled       capAdvancedOptions3 = 0x40
)

type capAdvancedOptions4 byte

const (
	capRFActiveNotificationEnabled capAdvancedOptions4 = 0x01
)

// Capabilities flattens the modem's reported capability bitflags into named
// booleans, mirroring the grouping (standard / advanced 1-4) the wire format
// uses. AdvancedOptions4 is absent on some dongles (short-form frame, LEN=7);
// in that case every field it would have populated reads false.
type Capabilities struct {
	MaxChannels          byte
	MaxNetworks          byte
	MaxSensrcoreChannels byte

	NoReceiveChannels  bool
	NoTransmitChannels bool
	NoReceiveMessages  bool
	NoTransmitMessages bool
	NoAckdMessages     bool
	NoBurstMessages    bool

	NetworkEnabled              bool
	SerialNumberEnabled         bool
	PerChannelTXPowerEnabled    bool
	ScriptEnabled               bool
	SearchListEnabled           bool

	LEDEnabled                bool
	ExtendedMessageEnabled    bool
	ScanModeEnabled           bool
	ProximitySearchEnabled    bool
	ExtendedAssignmentEnabled bool
	FSANTFSEnabled            bool
	FIT1Enabled               bool

	AdvancedBurstEnabled        bool
	EventBufferingEnabled       bool
	EventFilteringEnabled       bool
	HighDutySearchEnabled       bool
	SearchSharingEnabled        bool
	SelectiveDataUpdatesEnabled bool
	EncryptedChannelEnabled     bool

	RFActiveNotificationEnabled bool

	// raw bitflag bytes as received, retained so encode() round-trips
	// byte-exact including any bits this struct doesn't name.
	rawStandard  byte
	rawAdvanced  byte
	rawAdvanced2 byte
	rawAdvanced3 byte
	rawAdvanced4 byte
	hasAdvanced4 bool
}

func (Capabilities) MessageID() ID { return IDCapabilities }

func (m Capabilities) appendPayload(buf []byte) []byte {
	buf = append(buf, m.MaxChannels, m.MaxNetworks, m.rawStandard, m.rawAdvanced, m.rawAdvanced2, m.rawAdvanced3, m.MaxSensrcoreChannels)
	if m.hasAdvanced4 {
		buf = append(buf, m.rawAdvanced4)
	}
	return buf
}

func capabilitiesFromRaw(maxChannels, maxNetworks, std, adv, adv2, adv3 byte, maxSensrcore, adv4 byte, hasAdv4 bool) Capabilities {
	c := Capabilities{
		MaxChannels:          maxChannels,
		MaxNetworks:          maxNetworks,
		MaxSensrcoreChannels: maxSensrcore,

		NoReceiveChannels:  capStandardOptions(std)&capNoReceiveChannels != 0,
		NoTransmitChannels: capStandardOptions(std)&capNoTransmitChannels != 0,
		NoReceiveMessages:  capStandardOptions(std)&capNoReceiveMessages != 0,
		NoTransmitMessages: capStandardOptions(std)&capNoTransmitMessages != 0,
		NoAckdMessages:     capStandardOptions(std)&capNoAckdMessages != 0,
		NoBurstMessages:    capStandardOptions(std)&capNoBurstMessages != 0,

		NetworkEnabled:           capAdvancedOptions(adv)&capNetworkEnabled != 0,
		SerialNumberEnabled:      capAdvancedOptions(adv)&capSerialNumberEnabled != 0,
		PerChannelTXPowerEnabled: capAdvancedOptions(adv)&capPerChannelTXPowerEnabled != 0,
		ScriptEnabled:            capAdvancedOptions(adv)&capScriptEnabled != 0,
		SearchListEnabled:        capAdvancedOptions(adv)&capSearchListEnabled != 0,

		LEDEnabled:                capAdvancedOptions2(adv2)&capLEDEnabled != 0,
		ExtendedMessageEnabled:    capAdvancedOptions2(adv2)&capExtMessageEnabled != 0,
		ScanModeEnabled:           capAdvancedOptions2(adv2)&capScanModeEnabled != 0,
		ProximitySearchEnabled:    capAdvancedOptions2(adv2)&capProxSearchEnabled != 0,
		ExtendedAssignmentEnabled: capAdvancedOptions2(adv2)&capExtAssignEnabled != 0,
		FSANTFSEnabled:            capAdvancedOptions2(adv2)&capFSANTFSEnabled != 0,
		FIT1Enabled:               capAdvancedOptions2(adv2)&capFIT1Enabled != 0,

		AdvancedBurstEnabled:        capAdvancedOptions3(adv3)&capAdvancedBurstEnabled != 0,
		EventBufferingEnabled:       capAdvancedOptions3(adv3)&capEventBufferingEnabled != 0,
		EventFilteringEnabled:       capAdvancedOptions3(adv3)&capEventFilteringEnabled != 0,
		HighDutySearchEnabled:       capAdvancedOptions3(adv3)&capHighDutySearchEnabled != 0,
		SearchSharingEnabled:        capAdvancedOptions3(adv3)&capSearchSharingEnabled != 0,
		SelectiveDataUpdatesEnabled: capAdvancedOptions3(adv3)&capSelectiveDataUpdatesEnabled != 0,
		EncryptedChannelEnabled:     capAdvancedOptions3(adv3)&capEncryptedChannelEnabled != 0,

		rawStandard:  std,
		rawAdvanced:  adv,
		rawAdvanced2: adv2,
		rawAdvanced3: adv3,
		rawAdvanced4: adv4,
		hasAdvanced4: hasAdv4,
	}
	if hasAdv4 {
		c.RFActiveNotificationEnabled = capAdvancedOptions4(adv4)&capRFActiveNotificationEnabled != 0
	}
	return c
}
