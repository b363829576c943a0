package score

import "sort"

// Offsets are measured in quarter-lengths from the start of the piece.
// Rests are implicit: any span without a note is silent, so only sounding
// elements are stored.

// Note is a pitched event within a part.
type Note struct {
	Offset   float64  `json:"offset"`
	Pitch    string   `json:"pitch"`
	Duration float64  `json:"duration"`
	Lyrics   []string `json:"lyrics,omitempty"`
}

// End returns the offset at which the note stops sounding.
func (n Note) End() float64 { return n.Offset + n.Duration }

// KeySignature records the number of sharps in effect from an offset.
// Negative counts are flats.
type KeySignature struct {
	Offset float64 `json:"offset"`
	Sharps int     `json:"sharps"`
}

// Clef marks a clef change at an offset.
type Clef struct {
	Offset float64 `json:"offset"`
	Name   string  `json:"name"`
}

// MetronomeMark sets the tempo in beats per minute from an offset.
type MetronomeMark struct {
	Offset float64 `json:"offset"`
	BPM    int     `json:"bpm"`
}

// Dynamic is a loudness marking at an offset.
type Dynamic struct {
	Offset float64 `json:"offset"`
	Value  string  `json:"value"`
}

// Instrument assigns an instrument to a part from an offset.
type Instrument struct {
	Offset float64 `json:"offset"`
	Name   string  `json:"name"`
}

// Part is one voice of the score. DisplayIndex orders parts for
// presentation only; reordering parts never changes their content.
type Part struct {
	DisplayIndex   int             `json:"displayIndex"`
	Notes          []Note          `json:"notes"`
	KeySignatures  []KeySignature  `json:"keySignatures,omitempty"`
	Clefs          []Clef          `json:"clefs,omitempty"`
	MetronomeMarks []MetronomeMark `json:"metronomeMarks,omitempty"`
	Dynamics       []Dynamic       `json:"dynamics,omitempty"`
	Instruments    []Instrument    `json:"instruments,omitempty"`
}

func newPart(displayIndex int) *Part {
	return &Part{
		DisplayIndex:   displayIndex,
		Notes:          []Note{},
		MetronomeMarks: []MetronomeMark{{Offset: 0, BPM: defaultBPM}},
	}
}

const defaultBPM = 120

func (p *Part) sortNotes() {
	sort.SliceStable(p.Notes, func(i, j int) bool {
		return p.Notes[i].Offset < p.Notes[j].Offset
	})
}
