package sysex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBuildRequestWireFormat(t *testing.T) {
	tests := []struct {
		name  string
		build func() []byte
		cmd   byte
	}{
		{"connection", BuildRequestConnection, 0x20},
		{"mode", BuildRequestMode, 0x22},
		{"hw version", BuildRequestHWVersion, 0x13},
		{"fw version", BuildRequestFWVersion, 0x15},
		{"tempo maps", BuildRequestTempoMaps, 0x17},
		{"delete tempo maps", BuildDeleteTempoMaps, 0x24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := []byte{0xF0, 0x00, 0x40, 0x70, 0x01, 0x02, 0x00, tt.cmd, 0x00, 0x00, 0x00, 0x00, 0xF7}
			assert.Equal(t, want, tt.build())
		})
	}
}

func TestBuildAckOK(t *testing.T) {
	assert.Equal(t, []byte{0xF0, 0x00, 0x40, 0x70, 0x01, 0x03, 0x00, 0xF7}, BuildAckOK())

	msg, err := Parse(BuildAckOK())
	require.NoError(t, err)
	assert.Equal(t, TypeAckOK, msg.Type)
	assert.Nil(t, msg.Payload)
}

func TestParseRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		build func() []byte
		want  Payload
	}{
		{"connection", BuildRequestConnection, Request{Cmd: CmdRequestConnection}},
		{"mode", BuildRequestMode, Request{Cmd: CmdRequestMode}},
		{"hw version", BuildRequestHWVersion, Request{Cmd: CmdRequestHWVersion}},
		{"fw version", BuildRequestFWVersion, Request{Cmd: CmdRequestFWVersion}},
		{"tempo maps", BuildRequestTempoMaps, Request{Cmd: CmdRequestTempoMaps}},
		{"delete", BuildDeleteTempoMaps, Delete{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse(tt.build())
			require.NoError(t, err)
			require.NotNil(t, msg)
			assert.Equal(t, TypeData, msg.Type)
			assert.Equal(t, tt.want, msg.Payload)
		})
	}
}

func TestParseAnswers(t *testing.T) {
	msg, err := Parse(BuildConnectedAnswer())
	require.NoError(t, err)
	assert.Equal(t, Connected{}, msg.Payload)

	msg, err = Parse(BuildTempoMapPage(3, []byte{0x00, 0x42}, false))
	require.NoError(t, err)
	page, ok := msg.Payload.(PageData)
	require.True(t, ok, "payload is %T", msg.Payload)
	assert.Equal(t, CmdTempoMapPage, page.Cmd)
	assert.Equal(t, []byte{0x00, 0x03, 0x00, 0x00, 0x00, 0x42}, page.Data)
	assert.Equal(t, []byte{0x00, 0x42}, page.Body())
	id, ok := page.PacketID()
	assert.True(t, ok)
	assert.Equal(t, uint16(3), id)
}

func TestParseRejection(t *testing.T) {
	valid := BuildRequestMode()

	for i := 1; i <= 3; i++ {
		frame := append([]byte(nil), valid...)
		frame[i] ^= 0x01
		_, err := Parse(frame)
		assert.ErrorIs(t, err, ErrWrongManufacturer, "byte %d altered", i)
	}

	frame := append([]byte(nil), valid...)
	frame[4] = 0x02
	_, err := Parse(frame)
	assert.ErrorIs(t, err, ErrWrongDevice)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"start only", []byte{0xF0}},
		{"bad end", append(append([]byte(nil), valid[:len(valid)-1]...), 0x00)},
		{"bad start", append([]byte{0x90}, valid[1:]...)},
		{"header cut", []byte{0xF0, 0x00, 0x40, 0xF7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			assert.ErrorIs(t, err, ErrInvalidFraming)
		})
	}
}

func TestParseUnknownMessageType(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	codec := NewCodec(WithLogger(zap.New(core)))

	frame := BuildRequestMode()
	frame[5] = 0x09

	msg, err := codec.Parse(frame)
	assert.NoError(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, 1, logs.FilterMessage("dropping frame").Len())
}

func TestParseUnknownPayloadCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  PayloadCommand
	}{
		{"firmware page", CmdFirmwarePage},
		{"request next firmware page", CmdRequestNextFirmware},
		{"send firmware page", CmdSendFirmwarePage},
		{"virtual key", CmdVirtualKey},
		{"undocumented", PayloadCommand(0x66)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse(BuildAnswer(TypeData, tt.cmd, []byte{0x01, 0x02, 0x03}))
			require.NoError(t, err)
			assert.Equal(t, Unknown{Cmd: tt.cmd, Raw: []byte{0x01, 0x02, 0x03}}, msg.Payload)
		})
	}
}

func TestParseVersion(t *testing.T) {
	raw := []byte{
		0xF0, 0x00, 0x40, 0x70, 0x01, 0x02, 0x00, 0x16,
		0x00, 0x00, 0x00, 0x00, // packet header
		0x02, 0x00, 0x03, 0x00, 0x2D, 0x00,
		0xF7,
	}

	msg, err := Parse(raw)
	require.NoError(t, err)
	v, ok := msg.Payload.(VersionAnswer)
	require.True(t, ok, "payload is %T", msg.Payload)
	assert.Equal(t, "2.03.45", v.Version)
	assert.Equal(t, CmdFWVersion, v.Cmd)

	msg, err = Parse(BuildVersionAnswer(CmdHWVersion, 1, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, "1.00.07", msg.Payload.(VersionAnswer).Version)
}

func TestParseVersionTooShort(t *testing.T) {
	msg, err := Parse(BuildAnswer(TypeData, CmdHWVersion, []byte{0x00, 0x00, 0x00, 0x00, 0x01}))
	require.NoError(t, err)
	assert.IsType(t, Unknown{}, msg.Payload)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		raw  byte
		want Mode
	}{
		{0x00, ModeNormal},
		{0x01, ModeFirmware},
		{0x02, ModeUnknown},
		{0x7F, ModeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			frame := BuildAnswer(TypeData, CmdMode, []byte{0x00, 0x00, 0x00, 0x00, tt.raw})
			msg, err := Parse(frame)
			require.NoError(t, err)
			assert.Equal(t, ModeAnswer{Mode: tt.want, Raw: tt.raw}, msg.Payload)
		})
	}

	msg, err := Parse(BuildModeAnswer(ModeFirmware))
	require.NoError(t, err)
	assert.Equal(t, ModeFirmware, msg.Payload.(ModeAnswer).Mode)
}

func TestIsLastPage(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  bool
	}{
		{"sentinel", BuildAnswer(TypeData, CmdTempoMapPage, []byte{0x7F, 0x7F, 0x00, 0x00, 0x01}), true},
		{"sentinel only", BuildAnswer(TypeData, CmdTempoMapPage, []byte{0x7F, 0x7F}), true},
		{"built last page", BuildTempoMapPage(0, []byte{0x01}, true), true},
		{"first page", BuildTempoMapPage(0, []byte{0x01}, false), false},
		{"half sentinel", BuildAnswer(TypeData, CmdTempoMapPage, []byte{0x7F, 0x00}), false},
		{"one byte", BuildAnswer(TypeData, CmdTempoMapPage, []byte{0x7F}), false},
		{"empty page", BuildAnswer(TypeData, CmdTempoMapPage, nil), false},
		{"not a page", BuildAnswer(TypeData, CmdMode, []byte{0x7F, 0x7F, 0x00, 0x00, 0x00}), false},
		{"bare ack", BuildAckOK(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse(tt.frame)
			require.NoError(t, err)
			assert.Equal(t, tt.want, IsLastPage(msg))
		})
	}

	assert.False(t, IsLastPage(nil))
}

func TestPacketHeader(t *testing.T) {
	assert.Equal(t, []byte{0x7F, 0x7F, 0x00, 0x00}, PacketHeader(LastPacketID))
	assert.Equal(t, []byte{0x01, 0x05, 0x00, 0x00}, PacketHeader(133))
}

func TestMessageString(t *testing.T) {
	msg, err := Parse(BuildRequestTempoMaps())
	require.NoError(t, err)
	assert.Equal(t, "data/request-tempo-maps", msg.String())
	assert.Equal(t, "0x66", PayloadCommand(0x66).String())
}
