// Package antmsg implements the ANT wire envelope: SYNC | LEN | ID |
// payload[LEN] | CHECKSUM, and every host-relevant message variant's payload
// layout, bit for bit.
package antmsg

import "github.com/prograhamer/go-anthostd/internal/antbytes"

// Encode serialises m into a complete on-wire frame, including the trailing
// XOR checksum.
func Encode(m Message) []byte {
	payload := m.appendPayload(nil)
	frame := make([]byte, 0, 4+len(payload))
	frame = append(frame, SYNC, byte(len(payload)), byte(m.MessageID()))
	frame = append(frame, payload...)
	var checksum byte
	for _, b := range frame {
		checksum ^= b
	}
	frame = append(frame, checksum)
	return frame
}

// EncodedLen returns the total on-wire length Encode(m) would produce.
func EncodedLen(m Message) int {
	return 4 + len(m.appendPayload(nil))
}

// Decode consumes the leading frame out of data and returns the decoded
// Message plus the number of bytes consumed. A DecodeError with Kind
// InsufficientData means data does not yet contain a full frame; the caller
// should read more bytes and retry with the same (unconsumed) data. Any other
// DecodeError signals a corrupt or unsupported frame.
func Decode(data []byte) (Message, int, error) {
	if len(data) < 5 {
		return nil, 0, errInsufficientData()
	}
	if data[0] != SYNC {
		return nil, 0, errInvalidSync()
	}
	dataLen := int(data[1])
	messageLen := dataLen + 4
	if len(data) < messageLen {
		return nil, 0, errInsufficientData()
	}

	idByte := data[2]
	if !idKnown(idByte) {
		return nil, 0, errInvalidID(idByte)
	}
	id := ID(idByte)

	var checksum byte
	for _, b := range data[:messageLen] {
		checksum ^= b
	}
	if checksum != 0 {
		return nil, 0, errInvalidChecksum()
	}

	payload := data[3 : messageLen-1]

	msg, err := decodePayload(id, payload)
	if err != nil {
		return nil, 0, err
	}
	return msg, messageLen, nil
}

func decodePayload(id ID, payload []byte) (Message, error) {
	switch id {
	case IDResetSystem:
		return ResetSystem{}, nil

	case IDStartupMessage:
		return StartupMessage{Reason: byteAt(payload, 0)}, nil

	case IDCapabilities:
		if len(payload) < 7 {
			return nil, errInsufficientData()
		}
		hasAdv4 := len(payload) >= 8
		var adv4 byte
		if hasAdv4 {
			adv4 = payload[7]
		}
		return capabilitiesFromRaw(payload[0], payload[1], payload[2], payload[3], payload[4], payload[5], payload[6], adv4, hasAdv4), nil

	case IDSetNetworkKey:
		var key [8]byte
		copy(key[:], payload[1:])
		return SetNetworkKey{Network: payload[0], Key: key}, nil

	case IDAssignChannel:
		if !channelTypeKnown(payload[1]) {
			return nil, errInvalidChannelType(payload[1])
		}
		return AssignChannel{
			Channel:            payload[0],
			ChannelType:        ChannelType(payload[1]),
			Network:            payload[2],
			ExtendedAssignment: ChannelExtendedAssignment(payload[3]),
		}, nil

	case IDSetChannelID:
		device := antbytes.LEToU16(payload[1], payload[2])
		return SetChannelID{
			Channel:          payload[0],
			Device:           device,
			Pairing:          payload[3]&0x80 != 0,
			DeviceType:       payload[3] & 0x7f,
			TransmissionType: payload[4],
		}, nil

	case IDSetChannelPeriod:
		return SetChannelPeriod{
			Channel: payload[0],
			Period:  antbytes.LEToU16(payload[1], payload[2]),
		}, nil

	case IDSetChannelRFFrequency:
		return SetChannelRFFrequency{Channel: payload[0], Frequency: payload[1]}, nil

	case IDSetChannelSearchTimeout:
		return SetChannelSearchTimeout{Channel: payload[0], Timeout: payload[1]}, nil

	case IDSetChannelLowPrioritySearchTimeout:
		return SetChannelLowPrioritySearchTimeout{Channel: payload[0], Timeout: payload[1]}, nil

	case IDOpenChannel:
		return OpenChannel{Channel: payload[0]}, nil

	case IDCloseChannel:
		return CloseChannel{Channel: payload[0]}, nil

	case IDRequestMessage:
		if !idKnown(payload[1]) {
			return nil, errInvalidID(payload[1])
		}
		return RequestMessage{Channel: payload[0], RequestID: ID(payload[1])}, nil

	case IDEnableExtendedMessages:
		return EnableExtendedMessages{Enabled: payload[0]}, nil

	case IDLibConfig:
		return LibConfig{Flags: payload[0]}, nil

	case IDChannelResponseEvent:
		if !idKnown(byte(payload[1])) && payload[1] != byte(IDChannelEvent) {
			return nil, errInvalidID(payload[1])
		}
		if !codeKnown(payload[2]) {
			return nil, errInvalidCode(payload[2])
		}
		return ChannelResponseEvent{
			Channel:   payload[0],
			InReplyTo: ID(payload[1]),
			Code:      MessageCode(payload[2]),
		}, nil

	case IDBroadcastData:
		return BroadcastData{decodeDataPayload(payload)}, nil

	case IDAcknowledgedData:
		return AcknowledgedData{decodeDataPayload(payload)}, nil

	default:
		return nil, errInvalidID(byte(id))
	}
}

func byteAt(b []byte, i int) byte {
	if i < len(b) {
		return b[i]
	}
	return 0
}

// decodeDataPayload decodes the channel, fixed 8-byte payload (if present),
// and any extended trailers that fit within the available bytes. A trailer
// whose full width doesn't fit is treated as absent rather than an error, per
// the extended-data decoding rule.
func decodeDataPayload(payload []byte) DataPayload {
	p := DataPayload{Channel: payload[0]}
	if len(payload) <= 1 {
		return p
	}
	var data [8]byte
	copy(data[:], payload[1:])
	p.Data = &data
	if len(payload) <= 9 {
		return p
	}
	flags := payload[9]
	off := 10
	if flags&extFlagChannelID != 0 && off+4 <= len(payload) {
		p.ChannelID = &ChannelID{
			DeviceNumber:     antbytes.LEToU16(payload[off], payload[off+1]),
			DeviceType:       payload[off+2],
			TransmissionType: payload[off+3],
		}
		off += 4
	}
	if flags&extFlagRSSI != 0 && off+4 <= len(payload) {
		p.RSSI = &RSSI{
			MeasurementType: payload[off],
			Value:           payload[off+1],
			ThresholdConfig: payload[off+2],
			// payload[off+3] is the undocumented pad byte; discarded.
		}
		off += 4
	}
	if flags&extFlagRxTimestamp != 0 && off+2 <= len(payload) {
		ts := antbytes.LEToU16(payload[off], payload[off+1])
		p.RxTimestamp = &ts
		off += 2
	}
	return p
}
