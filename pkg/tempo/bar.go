package tempo

import (
	"encoding/binary"
	"fmt"
)

// Bar record: [beats-1 << 4 | log2(beat value)] [repeats] [tempo LE16]

func beatValueCode(v uint8) (uint8, bool) {
	switch v {
	case 2:
		return 1, true
	case 4:
		return 2, true
	case 8:
		return 3, true
	case 16:
		return 4, true
	case 32:
		return 5, true
	default:
		return 0, false
	}
}

func decodeBar(b []byte) (Bar, error) {
	code := b[0] & 0x0F
	if code < 1 || code > 5 {
		return Bar{}, fmt.Errorf("%w: beat value code %d", ErrInvalidBar, code)
	}
	bar := Bar{
		BeatsPerBar: b[0]>>4 + 1,
		BeatValue:   1 << code,
		Repeats:     b[1],
		Tempo:       binary.LittleEndian.Uint16(b[2:]),
	}
	if err := bar.Validate(); err != nil {
		return Bar{}, err
	}
	return bar, nil
}

func encodeBar(dst []byte, bar Bar) error {
	if err := bar.Validate(); err != nil {
		return err
	}
	code, _ := beatValueCode(bar.BeatValue)
	dst[0] = (bar.BeatsPerBar-1)<<4 | code
	dst[1] = bar.Repeats
	binary.LittleEndian.PutUint16(dst[2:], bar.Tempo)
	return nil
}
