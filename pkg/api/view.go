package api

import "github.com/james-see/bbs1ctl/pkg/tempo"

// BarView is the JSON form of a bar
type BarView struct {
	BeatsPerBar uint8   `json:"beats_per_bar"`
	BeatValue   uint8   `json:"beat_value"`
	Repeats     uint8   `json:"repeats"`
	Tempo       uint16  `json:"tempo"`
	BPM         float64 `json:"bpm"`
}

// MapView is the JSON form of a tempo map. Bars is null when the map's bars
// could not be decoded.
type MapView struct {
	Slot        int       `json:"slot"`
	Name        string    `json:"name"`
	Looping     bool      `json:"looping"`
	CountIn     uint8     `json:"count_in"`
	StartOffset uint16    `json:"start_offset"`
	Length      uint16    `json:"length"`
	Bars        []BarView `json:"bars"`
}

// FileView is the JSON form of a tempo map file
type FileView struct {
	Version uint8     `json:"version"`
	Size    uint16    `json:"size"`
	Maps    []MapView `json:"maps"`
}

// NewFileView converts f for JSON output
func NewFileView(f *tempo.File) FileView {
	v := FileView{Version: f.Version, Size: f.Size, Maps: make([]MapView, 0, len(f.Maps))}
	for i, m := range f.Maps {
		mv := MapView{
			Slot:        i + 1,
			Name:        m.Name,
			Looping:     m.Looping,
			CountIn:     m.CountIn,
			StartOffset: m.StartOffset,
			Length:      m.Length,
		}
		if m.Bars != nil {
			mv.Bars = make([]BarView, len(m.Bars))
			for j, b := range m.Bars {
				mv.Bars[j] = BarView{
					BeatsPerBar: b.BeatsPerBar,
					BeatValue:   b.BeatValue,
					Repeats:     b.Repeats,
					Tempo:       b.Tempo,
					BPM:         b.BPM(),
				}
			}
		}
		v.Maps = append(v.Maps, mv)
	}
	return v
}
