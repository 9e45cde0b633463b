// Package sysex implements the BodyBeat Sync (BBS-1) System Exclusive protocol
package sysex

import "fmt"

// Frame markers
const (
	Start = 0xF0
	End   = 0xF7
)

// Peterson manufacturer ID (extended 3-byte form) and BBS-1 device ID
const (
	ManufacturerID1 = 0x00
	ManufacturerID2 = 0x40
	ManufacturerID3 = 0x70
	DeviceID        = 0x01
)

// Reserved is the filler value for every reserved or unused byte
const Reserved = 0x00

// MessageType is byte 5 of every frame
type MessageType byte

// Message types. TypeCommand is never accepted by the device: requests are
// always sent as TypeData.
const (
	TypeCommand MessageType = 0x01
	TypeData    MessageType = 0x02
	TypeAckOK   MessageType = 0x03
	TypeAckErr  MessageType = 0x04
)

// String returns the message type name
func (t MessageType) String() string {
	switch t {
	case TypeCommand:
		return "command"
	case TypeData:
		return "data"
	case TypeAckOK:
		return "ack-ok"
	case TypeAckErr:
		return "ack-err"
	default:
		return "unknown"
	}
}

// PayloadCommand selects the request or answer kind inside a payload
type PayloadCommand byte

// Payload commands
const (
	// Firmware transfer, not decoded
	CmdFirmwarePage        PayloadCommand = 0x01
	CmdRequestNextFirmware PayloadCommand = 0x02
	CmdSendFirmwarePage    PayloadCommand = 0x03
	CmdFirmwareComplete    PayloadCommand = 0x04

	CmdRequestHWVersion PayloadCommand = 0x13
	CmdHWVersion        PayloadCommand = 0x14
	CmdRequestFWVersion PayloadCommand = 0x15
	CmdFWVersion        PayloadCommand = 0x16

	CmdRequestTempoMaps PayloadCommand = 0x17
	CmdSendTempoMapPage PayloadCommand = 0x18
	CmdTempoMapPage     PayloadCommand = 0x19

	CmdRequestConnection PayloadCommand = 0x20
	CmdConnected         PayloadCommand = 0x21

	CmdRequestMode PayloadCommand = 0x22
	CmdMode        PayloadCommand = 0x23

	CmdDeleteTempoMaps PayloadCommand = 0x24

	// Virtual keys and encoder, ignored by current firmware
	CmdVirtualKey     PayloadCommand = 0x40
	CmdVirtualEncoder PayloadCommand = 0x41
)

var commandNames = map[PayloadCommand]string{
	CmdFirmwarePage:        "firmware-page",
	CmdRequestNextFirmware: "request-next-firmware-page",
	CmdSendFirmwarePage:    "send-firmware-page",
	CmdFirmwareComplete:    "firmware-complete",
	CmdRequestHWVersion:    "request-hw-version",
	CmdHWVersion:           "hw-version",
	CmdRequestFWVersion:    "request-fw-version",
	CmdFWVersion:           "fw-version",
	CmdRequestTempoMaps:    "request-tempo-maps",
	CmdSendTempoMapPage:    "send-tempo-map-page",
	CmdTempoMapPage:        "tempo-map-page",
	CmdRequestConnection:   "request-connection",
	CmdConnected:           "connected",
	CmdRequestMode:         "request-mode",
	CmdMode:                "mode",
	CmdDeleteTempoMaps:     "delete-tempo-maps",
	CmdVirtualKey:          "virtual-key",
	CmdVirtualEncoder:      "virtual-encoder",
}

// String returns the command name, or its hex value when unnamed
func (c PayloadCommand) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", byte(c))
}

// Packet header that follows the payload command:
// [packet ID top 7 bits] [packet ID low 7 bits] [reserved] [reserved]
const (
	PacketHeaderLen = 4
	LastPacketID    = 0x3FFF
	LastPacketByte  = 0x7F
)

// Frame layout offsets
const (
	offsetMessageType = 5
	offsetPayload     = 6
	minFrameLen       = 8 // F0 + 3 man ID + dev ID + type + reserved + F7
)

// Mode is the operating mode reported by the device
type Mode int

const (
	ModeUnknown Mode = iota
	ModeNormal
	ModeFirmware
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeFirmware:
		return "firmware update"
	default:
		return "unknown"
	}
}
