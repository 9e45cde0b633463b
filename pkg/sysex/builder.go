package sysex

// newFrame wraps a payload into a complete BBS-1 frame
func newFrame(t MessageType, payload ...byte) []byte {
	frame := make([]byte, 0, minFrameLen+len(payload))
	frame = append(frame, Start, ManufacturerID1, ManufacturerID2, ManufacturerID3, DeviceID)
	frame = append(frame, byte(t), Reserved)
	frame = append(frame, payload...)
	return append(frame, End)
}

// newRequest builds a data request with a zeroed packet header
func newRequest(cmd PayloadCommand) []byte {
	payload := make([]byte, 1+PacketHeaderLen)
	payload[0] = byte(cmd)
	return newFrame(TypeData, payload...)
}

// BuildRequestConnection asks the device to acknowledge the connection
func BuildRequestConnection() []byte {
	return newRequest(CmdRequestConnection)
}

// BuildRequestMode asks for the current operating mode
func BuildRequestMode() []byte {
	return newRequest(CmdRequestMode)
}

// BuildRequestHWVersion asks for the hardware version
func BuildRequestHWVersion() []byte {
	return newRequest(CmdRequestHWVersion)
}

// BuildRequestFWVersion asks for the firmware version
func BuildRequestFWVersion() []byte {
	return newRequest(CmdRequestFWVersion)
}

// BuildRequestTempoMaps starts a tempo map transfer
func BuildRequestTempoMaps() []byte {
	return newRequest(CmdRequestTempoMaps)
}

// BuildDeleteTempoMaps erases every tempo map on the device
func BuildDeleteTempoMaps() []byte {
	return newRequest(CmdDeleteTempoMaps)
}

// BuildAckOK builds the acknowledgement used to request the next page
func BuildAckOK() []byte {
	return newFrame(TypeAckOK)
}

// BuildAnswer frames a device-side answer. It is the inverse of Parse for
// answers and is used to emulate the device.
func BuildAnswer(t MessageType, cmd PayloadCommand, data []byte) []byte {
	payload := make([]byte, 0, 1+len(data))
	payload = append(payload, byte(cmd))
	payload = append(payload, data...)
	return newFrame(t, payload...)
}

// PacketHeader encodes a 14-bit packet id into the 4-byte packet header
func PacketHeader(id uint16) []byte {
	return []byte{byte(id>>7) & 0x7F, byte(id) & 0x7F, Reserved, Reserved}
}

// BuildTempoMapPage frames one tempo map page answer. The last page carries
// packet id 0x3FFF whatever id is given.
func BuildTempoMapPage(id uint16, body []byte, last bool) []byte {
	if last {
		id = LastPacketID
	}
	data := append(PacketHeader(id), body...)
	return BuildAnswer(TypeData, CmdTempoMapPage, data)
}

// BuildVersionAnswer frames a hardware or firmware version answer
func BuildVersionAnswer(cmd PayloadCommand, major, minor, patch byte) []byte {
	data := append(PacketHeader(0), major, Reserved, minor, Reserved, patch, Reserved)
	return BuildAnswer(TypeData, cmd, data)
}

// BuildModeAnswer frames a mode answer
func BuildModeAnswer(mode Mode) []byte {
	var raw byte
	switch mode {
	case ModeNormal:
		raw = 0x00
	case ModeFirmware:
		raw = 0x01
	default:
		raw = 0x7F
	}
	return BuildAnswer(TypeData, CmdMode, append(PacketHeader(0), raw))
}

// BuildConnectedAnswer frames the connection acknowledgement
func BuildConnectedAnswer() []byte {
	return BuildAnswer(TypeData, CmdConnected, PacketHeader(0))
}
