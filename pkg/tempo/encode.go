package tempo

import (
	"encoding/binary"
	"fmt"

	"github.com/james-see/bbs1ctl/pkg/sysex"
)

// DefaultPageSize is the stream bytes carried by one page
const DefaultPageSize = 28

// MarshalBinary encodes the file into the logical tempo map stream. Bars are
// written at each map's StartOffset; maps without decoded bars keep the raw
// bytes they were decoded from. Call Layout after editing bars.
func (f *File) MarshalBinary() ([]byte, error) {
	if f.Version != 1 && f.Version != 2 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, f.Version)
	}
	if len(f.Maps) > MaxMaps {
		return nil, fmt.Errorf("%w: %d", ErrMapCountOutOfRange, len(f.Maps))
	}

	stride := f.RecordLen()
	out := make([]byte, HeaderLen+len(f.Maps)*stride)

	out[offsetMagic] = Magic[0]
	out[offsetMagic+1] = Magic[1]
	out[offsetMagic+2] = Magic[2]
	out[offsetVersion] = f.Version
	binary.LittleEndian.PutUint16(out[offsetSize:], f.Size)
	out[offsetMapCount] = byte(len(f.Maps))

	for i, m := range f.Maps {
		off := HeaderLen + i*stride
		if err := encodeRecord(out[off:off+stride], m, f.Version); err != nil {
			return nil, fmt.Errorf("map %d: %w", i+1, err)
		}
	}

	region, err := f.encodeBars()
	if err != nil {
		return nil, err
	}
	return append(out, region...), nil
}

// UnmarshalBinary decodes a tempo map stream into f
func (f *File) UnmarshalBinary(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*f = *decoded
	return nil
}

func encodeRecord(rec []byte, m *Map, version uint8) error {
	if len(m.Name) > NameLen {
		return fmt.Errorf("%w: %q", ErrNameTooLong, m.Name)
	}
	if m.CountIn > MaxCountIn {
		return fmt.Errorf("%w: %d", ErrCountInOutOfRange, m.CountIn)
	}

	binary.LittleEndian.PutUint16(rec[recStartOffset:], m.StartOffset)
	binary.LittleEndian.PutUint16(rec[recLength:], m.Length)

	var name [NameLen]byte
	copy(name[:], m.Name)
	for i, start := range nameRuns {
		copy(rec[start:start+nameRunLen], name[i*nameRunLen:(i+1)*nameRunLen])
	}

	if version == 2 {
		if m.Looping {
			rec[recFlags] = LoopFlag
		}
		rec[recCountIn] = m.CountIn
	}
	return nil
}

func (f *File) encodeBars() ([]byte, error) {
	region := append([]byte(nil), f.barsRegion...)
	for i, m := range f.Maps {
		end := int(m.StartOffset) + int(m.Length)
		if len(region) < end {
			region = append(region, make([]byte, end-len(region))...)
		}
		if m.Bars == nil {
			continue
		}
		if len(m.Bars)*BarLen != int(m.Length) {
			return nil, fmt.Errorf("%w: map %d has %d bars for %d bytes", ErrInvalidLayout, i+1, len(m.Bars), m.Length)
		}
		for j, bar := range m.Bars {
			off := int(m.StartOffset) + j*BarLen
			if err := encodeBar(region[off:off+BarLen], bar); err != nil {
				return nil, fmt.Errorf("map %d bar %d: %w", i+1, j+1, err)
			}
		}
	}
	return region, nil
}

// SplitPages cuts a stream into page payloads of at most size stream bytes,
// each prefixed with its packet header. The final page carries the 7F 7F
// sentinel.
func SplitPages(stream []byte, size int) [][]byte {
	if size <= 0 {
		size = DefaultPageSize
	}

	var pages [][]byte
	for id := 0; ; id++ {
		n := size
		if n > len(stream) {
			n = len(stream)
		}
		last := n == len(stream)

		header := sysex.PacketHeader(uint16(id))
		if last {
			header = sysex.PacketHeader(sysex.LastPacketID)
		}
		pages = append(pages, append(header, stream[:n]...))
		stream = stream[n:]

		if last {
			return pages
		}
	}
}

// Pages encodes the file and splits it into page payloads
func (f *File) Pages(size int) ([][]byte, error) {
	stream, err := f.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return SplitPages(stream, size), nil
}
