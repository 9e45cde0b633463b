package sysex

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Protocol errors
var (
	ErrInvalidFraming     = errors.New("invalid sysex framing")
	ErrWrongManufacturer  = errors.New("wrong manufacturer id")
	ErrWrongDevice        = errors.New("wrong device id")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Codec parses frames received from the device
type Codec struct {
	logger *zap.Logger
}

// Option configures a Codec
type Option func(*Codec)

// WithLogger sets the logger used for soft protocol errors
func WithLogger(l *zap.Logger) Option {
	return func(c *Codec) {
		c.logger = l
	}
}

// NewCodec creates a Codec
func NewCodec(opts ...Option) *Codec {
	c := &Codec{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultCodec = NewCodec()

// Parse parses a frame with a codec that discards logs
func Parse(raw []byte) (*Message, error) {
	return defaultCodec.Parse(raw)
}

// Validate checks framing, manufacturer id and device id
func Validate(raw []byte) error {
	if len(raw) < 2 {
		return fmt.Errorf("%w: frame too short (%d bytes)", ErrInvalidFraming, len(raw))
	}
	if raw[0] != Start {
		return fmt.Errorf("%w: expected start byte 0x%02X, got 0x%02X", ErrInvalidFraming, Start, raw[0])
	}
	if raw[len(raw)-1] != End {
		return fmt.Errorf("%w: expected end byte 0x%02X, got 0x%02X", ErrInvalidFraming, End, raw[len(raw)-1])
	}
	if len(raw) < offsetPayload+1 {
		return fmt.Errorf("%w: frame too short (%d bytes)", ErrInvalidFraming, len(raw))
	}
	if raw[1] != ManufacturerID1 || raw[2] != ManufacturerID2 || raw[3] != ManufacturerID3 {
		return fmt.Errorf("%w: %02X %02X %02X", ErrWrongManufacturer, raw[1], raw[2], raw[3])
	}
	if raw[4] != DeviceID {
		return fmt.Errorf("%w: 0x%02X", ErrWrongDevice, raw[4])
	}
	return nil
}

// Parse decodes one complete frame. Framing and id mismatches are returned
// as errors. A frame with an unknown message type is logged and dropped:
// Parse then returns a nil message and a nil error.
func (c *Codec) Parse(raw []byte) (*Message, error) {
	if err := Validate(raw); err != nil {
		return nil, err
	}

	t := MessageType(raw[offsetMessageType])
	switch t {
	case TypeCommand, TypeData, TypeAckOK, TypeAckErr:
	default:
		c.logger.Warn("dropping frame",
			zap.Error(ErrUnknownMessageType),
			zap.Uint8("type", uint8(t)),
			zap.Binary("frame", raw))
		return nil, nil
	}

	var payload []byte
	if len(raw) > offsetPayload+1 {
		payload = raw[offsetPayload : len(raw)-1]
	}

	msg := &Message{Type: t, Payload: c.parsePayload(payload)}
	c.logger.Debug("parsed frame", zap.Stringer("message", msg))
	return msg, nil
}

// parsePayload dispatches on the payload command. Byte 0 is reserved.
func (c *Codec) parsePayload(payload []byte) Payload {
	if len(payload) < 2 {
		return nil
	}

	cmd := PayloadCommand(payload[1])
	data := payload[2:]

	switch cmd {
	case CmdRequestHWVersion, CmdRequestFWVersion, CmdRequestTempoMaps,
		CmdRequestConnection, CmdRequestMode:
		return Request{Cmd: cmd}
	case CmdDeleteTempoMaps:
		return Delete{}
	case CmdTempoMapPage, CmdSendTempoMapPage:
		return PageData{Cmd: cmd, Data: clone(data)}
	case CmdHWVersion, CmdFWVersion:
		if v, ok := parseVersion(cmd, data); ok {
			return v
		}
	case CmdMode:
		if m, ok := parseMode(data); ok {
			return m
		}
	case CmdConnected:
		return Connected{}
	}

	c.logger.Debug("undecoded payload",
		zap.Stringer("command", cmd),
		zap.Binary("data", data))
	return Unknown{Cmd: cmd, Raw: clone(data)}
}

// Version digits sit after the packet header, one padding byte apart
const (
	versionMajor = PacketHeaderLen
	versionMinor = PacketHeaderLen + 2
	versionPatch = PacketHeaderLen + 4
)

// parseVersion renders x.xx.xx from three numeric bytes
func parseVersion(cmd PayloadCommand, data []byte) (VersionAnswer, bool) {
	if len(data) <= versionPatch {
		return VersionAnswer{}, false
	}
	v := VersionAnswer{
		Cmd:   cmd,
		Major: data[versionMajor],
		Minor: data[versionMinor],
		Patch: data[versionPatch],
	}
	v.Version = FormatVersion(v.Major, v.Minor, v.Patch)
	return v, true
}

// FormatVersion renders a version with a 1-digit major and 2-digit minor and
// patch groups, e.g. 2.03.45
func FormatVersion(major, minor, patch byte) string {
	return fmt.Sprintf("%d.%02d.%02d", major, minor, patch)
}

func parseMode(data []byte) (ModeAnswer, bool) {
	if len(data) <= PacketHeaderLen {
		return ModeAnswer{}, false
	}
	raw := data[PacketHeaderLen]
	switch raw {
	case 0x00:
		return ModeAnswer{Mode: ModeNormal, Raw: raw}, true
	case 0x01:
		return ModeAnswer{Mode: ModeFirmware, Raw: raw}, true
	default:
		return ModeAnswer{Mode: ModeUnknown, Raw: raw}, true
	}
}

// IsLastPage reports whether msg is a page carrying the 7F 7F sentinel
func IsLastPage(msg *Message) bool {
	if msg == nil {
		return false
	}
	page, ok := msg.Payload.(PageData)
	return ok && page.IsLast()
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
