// Package tempo decodes and encodes the BBS-1 tempo map file
package tempo

import (
	"fmt"
	"strings"
)

// File format constants
const (
	HeaderLen   = 10
	MaxMaps     = 9
	MaxCountIn  = 8
	NameLen     = 16
	BarLen      = 4
	RecordLenV1 = 25
	RecordLenV2 = 30
	LoopFlag    = 0x08
)

// Magic is the file signature, "BBS"
var Magic = [3]byte{0x42, 0x42, 0x53}

// Bar is one metronome measure
type Bar struct {
	BeatsPerBar uint8  // 1-16
	BeatValue   uint8  // 2, 4, 8, 16 or 32
	Repeats     uint8  // 0 holds the bar until stopped
	Tempo       uint16 // BPM × 100
}

// NewBar creates a bar with a tempo given in BPM × 100
func NewBar(beatsPerBar, beatValue, repeats, tempo int) (Bar, error) {
	if beatsPerBar < 1 || beatsPerBar > 16 {
		return Bar{}, fmt.Errorf("%w: %d beats per bar", ErrInvalidBar, beatsPerBar)
	}
	if beatValue < 0 || beatValue > 0xFF {
		return Bar{}, fmt.Errorf("%w: beat value %d", ErrInvalidBar, beatValue)
	}
	if repeats < 0 || repeats > 0xFF {
		return Bar{}, fmt.Errorf("%w: repeats %d", ErrInvalidBar, repeats)
	}
	if tempo <= 0 || tempo > 0xFFFF {
		return Bar{}, fmt.Errorf("%w: tempo %d", ErrInvalidBar, tempo)
	}
	b := Bar{
		BeatsPerBar: uint8(beatsPerBar),
		BeatValue:   uint8(beatValue),
		Repeats:     uint8(repeats),
		Tempo:       uint16(tempo),
	}
	if err := b.Validate(); err != nil {
		return Bar{}, err
	}
	return b, nil
}

// Validate checks the time signature and tempo
func (b Bar) Validate() error {
	if b.BeatsPerBar < 1 || b.BeatsPerBar > 16 {
		return fmt.Errorf("%w: %d beats per bar", ErrInvalidBar, b.BeatsPerBar)
	}
	if _, ok := beatValueCode(b.BeatValue); !ok {
		return fmt.Errorf("%w: beat value %d", ErrInvalidBar, b.BeatValue)
	}
	if b.Tempo == 0 {
		return fmt.Errorf("%w: zero tempo", ErrInvalidBar)
	}
	return nil
}

// BPM returns the tempo in beats per minute
func (b Bar) BPM() float64 {
	return float64(b.Tempo) / 100
}

// String renders the bar as "4/4 x2 @ 120.00"
func (b Bar) String() string {
	repeats := "hold"
	if b.Repeats > 0 {
		repeats = fmt.Sprintf("x%d", b.Repeats)
	}
	return fmt.Sprintf("%d/%d %s @ %.2f", b.BeatsPerBar, b.BeatValue, repeats, b.BPM())
}

// Map is one of the nine on-device tempo map slots
type Map struct {
	StartOffset uint16 // byte offset into the bars region
	Length      uint16 // byte length of this map's bars
	Name        string // up to 16 characters, NUL padding stripped
	Looping     bool   // version 2 only
	CountIn     uint8  // bars, 0-8, version 2 only
	Bars        []Bar
}

// NewMap creates a map, rejecting an out of range count-in or name
func NewMap(name string, looping bool, countIn int, bars []Bar) (*Map, error) {
	m := &Map{Looping: looping, Bars: bars}
	if err := m.SetName(name); err != nil {
		return nil, err
	}
	if err := m.SetCountIn(countIn); err != nil {
		return nil, err
	}
	return m, nil
}

// SetName sets the map name
func (m *Map) SetName(name string) error {
	if len(name) > NameLen {
		return fmt.Errorf("%w: %q is longer than %d bytes", ErrNameTooLong, name, NameLen)
	}
	m.Name = strings.TrimRight(name, "\x00")
	return nil
}

// SetCountIn sets the number of count-in bars
func (m *Map) SetCountIn(n int) error {
	if n < 0 || n > MaxCountIn {
		return fmt.Errorf("%w: %d", ErrCountInOutOfRange, n)
	}
	m.CountIn = uint8(n)
	return nil
}

// SetLooping toggles looping
func (m *Map) SetLooping(looping bool) {
	m.Looping = looping
}

// Reset empties the map
func (m *Map) Reset() {
	m.Bars = nil
	m.Name = ""
	m.Looping = false
	m.CountIn = 0
}

// Equal compares name, offsets, flags and bars
func (m *Map) Equal(o *Map) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.StartOffset != o.StartOffset || m.Length != o.Length ||
		m.Name != o.Name || m.Looping != o.Looping || m.CountIn != o.CountIn {
		return false
	}
	if len(m.Bars) != len(o.Bars) {
		return false
	}
	for i := range m.Bars {
		if m.Bars[i] != o.Bars[i] {
			return false
		}
	}
	return true
}

// File is a decoded tempo map file
type File struct {
	Version uint8  // 1 or 2, selects the map record layout
	Size    uint16 // declared size from the header
	Maps    []*Map // in slot order

	// bars region as received, kept so undecoded bars survive re-encoding
	barsRegion []byte
}

// NewFile creates a version 2 file holding maps
func NewFile(maps ...*Map) (*File, error) {
	if len(maps) > MaxMaps {
		return nil, fmt.Errorf("%w: %d", ErrMapCountOutOfRange, len(maps))
	}
	f := &File{Version: 2, Maps: maps}
	f.Layout()
	return f, nil
}

// MapsCount returns the number of maps
func (f *File) MapsCount() int {
	return len(f.Maps)
}

// SetVersion sets the record layout version
func (f *File) SetVersion(v uint8) error {
	if v != 1 && v != 2 {
		return fmt.Errorf("%w: %d", ErrUnknownVersion, v)
	}
	f.Version = v
	return nil
}

// RecordLen returns the map record stride for the file version
func (f *File) RecordLen() int {
	return recordLen(f.Version)
}

func recordLen(version uint8) int {
	if version == 1 {
		return RecordLenV1
	}
	return RecordLenV2
}

// Layout packs every map's bars back to back, recomputing offsets, lengths
// and the declared size. Raw bars of maps that could not be decoded are
// dropped.
func (f *File) Layout() {
	var offset uint16
	for _, m := range f.Maps {
		m.StartOffset = offset
		m.Length = uint16(len(m.Bars) * BarLen)
		offset += m.Length
	}
	f.barsRegion = nil
	f.Size = uint16(HeaderLen+len(f.Maps)*f.RecordLen()) + offset
}

// Equal compares version, size and every map
func (f *File) Equal(o *File) bool {
	if f == nil || o == nil {
		return f == o
	}
	if f.Version != o.Version || f.Size != o.Size || len(f.Maps) != len(o.Maps) {
		return false
	}
	for i := range f.Maps {
		if !f.Maps[i].Equal(o.Maps[i]) {
			return false
		}
	}
	return true
}
