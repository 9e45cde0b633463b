package tempo

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Click track settings for MIDI export
const (
	TicksPerQuarter = 960
	ClickChannel    = 9  // General MIDI percussion
	AccentNote      = 76 // Hi Wood Block
	ClickNote       = 77 // Low Wood Block
	AccentVelocity  = 127
	ClickVelocity   = 90
)

// ExportMIDI renders the file as a Standard MIDI File with one click track
// per map. Repeated bars are expanded; hold bars are rendered once.
func ExportMIDI(f *File) ([]byte, error) {
	if f == nil {
		return nil, errors.New("nil tempo file")
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(TicksPerQuarter)

	for i, m := range f.Maps {
		if err := s.Add(mapTrack(i, m)); err != nil {
			return nil, fmt.Errorf("failed to add track for map %d: %w", i+1, err)
		}
	}
	if len(f.Maps) == 0 {
		var track smf.Track
		track.Add(0, smf.MetaTrackSequenceName("empty"))
		track.Close(0)
		if err := s.Add(track); err != nil {
			return nil, fmt.Errorf("failed to add track: %w", err)
		}
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteMIDIFile exports the file to filename
func WriteMIDIFile(f *File, filename string) error {
	data, err := ExportMIDI(f)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

func mapTrack(index int, m *Map) smf.Track {
	var track smf.Track

	name := m.Name
	if name == "" {
		name = fmt.Sprintf("Map %d", index+1)
	}
	track.Add(0, smf.MetaTrackSequenceName(name))

	var delta uint32
	if m.CountIn > 0 && len(m.Bars) > 0 && m.Bars[0].Validate() == nil {
		track.Add(0, smf.MetaMarker("count-in"))
		delta = addBar(&track, m.Bars[0], int(m.CountIn), delta)
		track.Add(delta, smf.MetaMarker("start"))
		delta = 0
	}

	for _, bar := range m.Bars {
		if bar.Validate() != nil {
			continue
		}
		repeats := int(bar.Repeats)
		if repeats == 0 {
			repeats = 1
		}
		delta = addBar(&track, bar, repeats, delta)
	}

	track.Close(delta)
	return track
}

// quarterBPM converts the bar tempo, counted in beat value units, to the
// quarter notes per minute that a MIDI tempo event carries
func quarterBPM(bar Bar) float64 {
	return bar.BPM() * 4 / float64(bar.BeatValue)
}

// addBar appends times repetitions of bar and returns the delta left over
// after the last click
func addBar(track *smf.Track, bar Bar, times int, delta uint32) uint32 {
	beatTicks := uint32(TicksPerQuarter*4) / uint32(bar.BeatValue)
	gate := beatTicks / 8

	for r := 0; r < times; r++ {
		track.Add(delta, smf.MetaMeter(bar.BeatsPerBar, bar.BeatValue))
		track.Add(0, smf.MetaTempo(quarterBPM(bar)))
		delta = 0

		for beat := 0; beat < int(bar.BeatsPerBar); beat++ {
			note, velocity := uint8(ClickNote), uint8(ClickVelocity)
			if beat == 0 {
				note, velocity = AccentNote, AccentVelocity
			}
			track.Add(delta, midi.NoteOn(ClickChannel, note, velocity))
			track.Add(gate, midi.NoteOff(ClickChannel, note))
			delta = beatTicks - gate
		}
	}
	return delta
}
