package device

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/james-see/bbs1ctl/pkg/sysex"
	"github.com/james-see/bbs1ctl/pkg/tempo"
)

// ErrNotDump is returned for content that is neither a SysEx dump nor a raw
// tempo map stream
var ErrNotDump = errors.New("not a BBS-1 dump")

// Format is the kind of content found in a dump file
type Format string

const (
	FormatSysEx   Format = "syx"
	FormatStream  Format = "stream"
	FormatUnknown Format = "unknown"
)

// DetectFormat detects the dump format from its content
func DetectFormat(data []byte) Format {
	if len(data) == 0 {
		return FormatUnknown
	}
	if data[0] == sysex.Start {
		return FormatSysEx
	}
	if len(data) >= 4 && bytes.Equal(data[1:4], tempo.Magic[:]) {
		return FormatStream
	}
	return FormatUnknown
}

// WriteDump writes frames back to back, the usual .syx layout
func WriteDump(w io.Writer, frames [][]byte) error {
	bw := bufio.NewWriter(w)
	for i, frame := range frames {
		if err := sysex.Validate(frame); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if _, err := bw.Write(frame); err != nil {
			return fmt.Errorf("failed to write dump: %w", err)
		}
	}
	return bw.Flush()
}

// ReadDump splits a .syx dump into frames and validates each one. Bytes
// between frames are ignored.
func ReadDump(r io.Reader) ([][]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read dump: %w", err)
	}
	return SplitFrames(data)
}

// SplitFrames cuts data into F0..F7 frames
func SplitFrames(data []byte) ([][]byte, error) {
	var frames [][]byte
	for {
		start := bytes.IndexByte(data, sysex.Start)
		if start < 0 {
			break
		}
		end := bytes.IndexByte(data[start:], sysex.End)
		if end < 0 {
			return nil, fmt.Errorf("%w: frame %d has no end marker", sysex.ErrInvalidFraming, len(frames))
		}
		frame := append([]byte(nil), data[start:start+end+1]...)
		if err := sysex.Validate(frame); err != nil {
			return nil, fmt.Errorf("frame %d: %w", len(frames), err)
		}
		frames = append(frames, frame)
		data = data[start+end+1:]
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no SysEx frames", ErrNotDump)
	}
	return frames, nil
}

// DecodeDump parses frames and decodes the tempo map pages among them
func DecodeDump(frames [][]byte, opts ...tempo.DecodeOption) (*tempo.File, error) {
	payloads := make([]sysex.Payload, 0, len(frames))
	for i, frame := range frames {
		msg, err := sysex.Parse(frame)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if msg == nil || msg.Payload == nil {
			continue
		}
		payloads = append(payloads, msg.Payload)
	}
	return tempo.DecodePayloads(payloads, opts...)
}

// LoadTempoFile decodes data holding either a .syx dump or a raw stream
func LoadTempoFile(data []byte, opts ...tempo.DecodeOption) (*tempo.File, error) {
	switch DetectFormat(data) {
	case FormatSysEx:
		frames, err := SplitFrames(data)
		if err != nil {
			return nil, err
		}
		return DecodeDump(frames, opts...)
	case FormatStream:
		return tempo.Decode(data, opts...)
	default:
		return nil, ErrNotDump
	}
}

// ReadTempoFile reads and decodes a dump file from disk
func ReadTempoFile(filename string, opts ...tempo.DecodeOption) (*tempo.File, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read dump file: %w", err)
	}
	return LoadTempoFile(data, opts...)
}

// WriteDumpFile writes frames to filename
func WriteDumpFile(filename string, frames [][]byte) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create dump file: %w", err)
	}
	if err := WriteDump(f, frames); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
