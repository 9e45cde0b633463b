package tempo

import (
	"encoding/binary"
	"fmt"

	"github.com/james-see/bbs1ctl/pkg/sysex"
	"go.uber.org/zap"
)

// Header layout
const (
	offsetMagic    = 1
	offsetVersion  = 4
	offsetSize     = 6
	offsetMapCount = 8
)

// Map record layout, relative to the record start
const (
	recStartOffset = 0
	recLength      = 2
	recFlags       = 25
	recCountIn     = 26
)

// nameRuns are the four 4-byte name chunks; the byte after each run is
// padding
var nameRuns = [4]int{6, 11, 16, 21}

const nameRunLen = 4

type decoder struct {
	logger     *zap.Logger
	checkOrder bool
}

// DecodeOption configures decoding
type DecodeOption func(*decoder)

// WithLogger sets the logger used for best-effort bar decoding
func WithLogger(l *zap.Logger) DecodeOption {
	return func(d *decoder) {
		d.logger = l
	}
}

// WithPageOrderCheck rejects pages whose embedded packet ids do not count up
// from 0 in arrival order, the last page excepted
func WithPageOrderCheck() DecodeOption {
	return func(d *decoder) {
		d.checkOrder = true
	}
}

func newDecoder(opts []DecodeOption) *decoder {
	d := &decoder{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DecodePayloads decodes the tempo map pages found among parsed payloads,
// in the order given. Payloads that are not pages are ignored.
func DecodePayloads(payloads []sysex.Payload, opts ...DecodeOption) (*File, error) {
	var pages [][]byte
	for _, p := range payloads {
		if page, ok := p.(sysex.PageData); ok {
			pages = append(pages, page.Data)
		}
	}
	return DecodePages(pages, opts...)
}

// DecodePages reassembles page data in arrival order and decodes the
// resulting stream. Each page starts with a 4-byte packet header that is not
// part of the stream. Empty pages are skipped.
func DecodePages(pages [][]byte, opts ...DecodeOption) (*File, error) {
	d := newDecoder(opts)

	var stream []byte
	index := 0
	for _, page := range pages {
		if len(page) == 0 {
			continue
		}
		if d.checkOrder {
			if err := checkPageID(page, index); err != nil {
				return nil, err
			}
		}
		index++
		if len(page) > sysex.PacketHeaderLen {
			stream = append(stream, page[sysex.PacketHeaderLen:]...)
		}
	}

	return d.decode(stream)
}

func checkPageID(page []byte, index int) error {
	p := sysex.PageData{Data: page}
	if p.IsLast() {
		return nil
	}
	id, ok := p.PacketID()
	if !ok {
		return fmt.Errorf("%w: page %d has no packet id", ErrPageOrder, index)
	}
	if int(id) != index {
		return fmt.Errorf("%w: page %d carries packet id %d", ErrPageOrder, index, id)
	}
	return nil
}

// Decode decodes a reassembled tempo map stream
func Decode(stream []byte, opts ...DecodeOption) (*File, error) {
	return newDecoder(opts).decode(stream)
}

func (d *decoder) decode(stream []byte) (*File, error) {
	if len(stream) < offsetMagic+len(Magic) ||
		stream[1] != Magic[0] || stream[2] != Magic[1] || stream[3] != Magic[2] {
		return nil, ErrNotTempoMapData
	}
	if len(stream) < HeaderLen {
		return nil, fmt.Errorf("%w: header needs %d bytes, got %d", ErrTruncated, HeaderLen, len(stream))
	}

	f := &File{}
	if err := f.SetVersion(stream[offsetVersion]); err != nil {
		return nil, err
	}
	f.Size = binary.LittleEndian.Uint16(stream[offsetSize:])

	count := int(stream[offsetMapCount])
	if count > MaxMaps {
		return nil, fmt.Errorf("%w: %d", ErrMapCountOutOfRange, count)
	}

	stride := f.RecordLen()
	barsStart := HeaderLen + count*stride
	if len(stream) < barsStart {
		return nil, fmt.Errorf("%w: %d map records need %d bytes, got %d", ErrTruncated, count, barsStart, len(stream))
	}

	f.Maps = make([]*Map, 0, count)
	for i := 0; i < count; i++ {
		off := HeaderLen + i*stride
		m, err := decodeRecord(stream[off:off+stride], f.Version)
		if err != nil {
			return nil, fmt.Errorf("map %d: %w", i+1, err)
		}
		f.Maps = append(f.Maps, m)
	}

	region := stream[barsStart:]
	f.barsRegion = append([]byte(nil), region...)
	for i, m := range f.Maps {
		bars, err := decodeBars(region, m.StartOffset, m.Length)
		if err != nil {
			d.logger.Warn("skipping bars",
				zap.Int("map", i+1),
				zap.String("name", m.Name),
				zap.Error(err))
			continue
		}
		m.Bars = bars
	}

	d.logger.Debug("decoded tempo file",
		zap.Uint8("version", f.Version),
		zap.Uint16("size", f.Size),
		zap.Int("maps", len(f.Maps)),
		zap.Int("bars_region", len(region)))
	return f, nil
}

func decodeRecord(rec []byte, version uint8) (*Map, error) {
	name := make([]byte, 0, NameLen)
	for _, start := range nameRuns {
		name = append(name, rec[start:start+nameRunLen]...)
	}

	var looping bool
	var countIn int
	if version == 2 {
		looping = rec[recFlags]&LoopFlag != 0
		countIn = int(rec[recCountIn])
	}

	m, err := NewMap(string(name), looping, countIn, nil)
	if err != nil {
		return nil, err
	}
	m.StartOffset = binary.LittleEndian.Uint16(rec[recStartOffset:])
	m.Length = binary.LittleEndian.Uint16(rec[recLength:])
	return m, nil
}

func decodeBars(region []byte, start, length uint16) ([]Bar, error) {
	if length == 0 {
		return nil, nil
	}
	end := int(start) + int(length)
	if end > len(region) {
		return nil, fmt.Errorf("%w: bars window %d-%d outside %d-byte region", ErrTruncated, start, end, len(region))
	}
	if length%BarLen != 0 {
		return nil, fmt.Errorf("%w: bars length %d is not a multiple of %d", ErrInvalidBar, length, BarLen)
	}

	window := region[start:end]
	bars := make([]Bar, 0, len(window)/BarLen)
	for i := 0; i < len(window); i += BarLen {
		b, err := decodeBar(window[i : i+BarLen])
		if err != nil {
			return nil, fmt.Errorf("bar %d: %w", i/BarLen+1, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}
