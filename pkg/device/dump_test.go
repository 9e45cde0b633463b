package device

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/james-see/bbs1ctl/pkg/sysex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpRoundTrip(t *testing.T) {
	served := servedFile(t)
	s := newTestSession(t, NewSimulator(served, WithPageSize(10)))

	_, frames, err := s.FetchTempoMaps(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteDump(&buf, frames))
	assert.Equal(t, FormatSysEx, DetectFormat(buf.Bytes()))

	read, err := ReadDump(&buf)
	require.NoError(t, err)
	assert.Equal(t, frames, read)

	f, err := DecodeDump(read)
	require.NoError(t, err)
	assert.True(t, served.Equal(f))
}

func TestDumpFile(t *testing.T) {
	served := servedFile(t)
	pages, err := served.Pages(16)
	require.NoError(t, err)

	frames := make([][]byte, len(pages))
	for i, page := range pages {
		frames[i] = sysex.BuildAnswer(sysex.TypeData, sysex.CmdTempoMapPage, page)
	}

	name := filepath.Join(t.TempDir(), "maps.syx")
	require.NoError(t, WriteDumpFile(name, frames))

	f, err := ReadTempoFile(name)
	require.NoError(t, err)
	assert.True(t, served.Equal(f))
}

func TestLoadRawStream(t *testing.T) {
	served := servedFile(t)
	stream, err := served.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, FormatStream, DetectFormat(stream))

	f, err := LoadTempoFile(stream)
	require.NoError(t, err)
	assert.True(t, served.Equal(f))
}

func TestSplitFramesIgnoresGaps(t *testing.T) {
	data := append([]byte{0x00, 0x01}, sysex.BuildAckOK()...)
	data = append(data, 0x42)
	data = append(data, sysex.BuildRequestMode()...)

	frames, err := SplitFrames(data)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{sysex.BuildAckOK(), sysex.BuildRequestMode()}, frames)
}

func TestDumpRejection(t *testing.T) {
	_, err := SplitFrames([]byte{0xF0, 0x00, 0x40, 0x70, 0x01, 0x02})
	assert.ErrorIs(t, err, sysex.ErrInvalidFraming)

	_, err = SplitFrames([]byte{0xF0, 0x00, 0x20, 0x32, 0x01, 0x02, 0x00, 0xF7})
	assert.ErrorIs(t, err, sysex.ErrWrongManufacturer)

	_, err = SplitFrames([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrNotDump)

	_, err = LoadTempoFile([]byte("MThd"))
	assert.ErrorIs(t, err, ErrNotDump)

	err = WriteDump(&bytes.Buffer{}, [][]byte{{0xF0}})
	assert.ErrorIs(t, err, sysex.ErrInvalidFraming)
}
