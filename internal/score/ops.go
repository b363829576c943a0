package score

import (
	"fmt"
	"sort"
)

// Range is the span of offsets affected by an edit, reported back to
// clients so they can redraw only the region that changed.
type Range struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

var validClefs = map[string]bool{
	"treble": true, "treble8va": true, "treble8vb": true,
	"bass": true, "bass8va": true, "bass8vb": true,
	"frenchviolin": true, "alto": true, "tenor": true,
	"cbaritone": true, "fbaritone": true, "gsoprano": true,
	"mezzosoprano": true, "soprano": true, "percussion": true, "tab": true,
}

var validDynamics = map[string]bool{
	"ppp": true, "pp": true, "p": true, "mp": true,
	"mf": true, "f": true, "ff": true, "fff": true,
}

// ChangeKeySignature replaces the key signature at offset, or inserts one
// if none starts there, then respells every note governed by the new
// signature so a flat key never shows sharp accidentals.
func (p *Part) ChangeKeySignature(offset float64, sharps int) error {
	replaced := false
	for i := range p.KeySignatures {
		if p.KeySignatures[i].Offset == offset {
			p.KeySignatures[i].Sharps = sharps
			replaced = true
			break
		}
	}
	if !replaced {
		p.KeySignatures = append(p.KeySignatures, KeySignature{Offset: offset, Sharps: sharps})
		sort.SliceStable(p.KeySignatures, func(i, j int) bool {
			return p.KeySignatures[i].Offset < p.KeySignatures[j].Offset
		})
	}

	// The new signature governs notes up to the next signature, if any.
	end := -1.0
	for _, sig := range p.KeySignatures {
		if sig.Offset > offset {
			end = sig.Offset
			break
		}
	}
	return p.respellNotes(offset, end, sharps > 0)
}

func (p *Part) respellNotes(start, end float64, useSharps bool) error {
	for i := range p.Notes {
		off := p.Notes[i].Offset
		if off < start || (end >= 0 && off > end) {
			continue
		}
		renamed, err := respellPitch(p.Notes[i].Pitch, useSharps)
		if err != nil {
			return err
		}
		p.Notes[i].Pitch = renamed
	}
	return nil
}

// InsertNote adds a note, evicting any notes it would overlap in time. The
// returned range covers the inserted note and everything it displaced.
func (p *Part) InsertNote(offset float64, pitch string, duration float64) (Range, error) {
	if _, err := parsePitch(pitch); err != nil {
		return Range{}, err
	}

	affected := Range{Start: offset, End: offset + duration}
	kept := p.Notes[:0]
	for _, note := range p.Notes {
		if note.Offset < affected.End && offset < note.End() {
			if note.Offset < affected.Start {
				affected.Start = note.Offset
			}
			if note.End() > affected.End {
				affected.End = note.End()
			}
			continue
		}
		kept = append(kept, note)
	}
	p.Notes = append(kept, Note{Offset: offset, Pitch: pitch, Duration: duration})
	p.sortNotes()
	return affected, nil
}

// RemoveNote deletes the note with the given pitch name starting at offset.
// Removing a note that is not there changes nothing and reports an empty
// range at the offset.
func (p *Part) RemoveNote(offset float64, name string) Range {
	for i, note := range p.Notes {
		if note.Offset == offset && note.Pitch == name {
			p.Notes = append(p.Notes[:i], p.Notes[i+1:]...)
			return Range{Start: offset, End: offset}
		}
	}
	return Range{Start: offset, End: offset}
}

// InsertMetronomeMark sets the tempo at offset in every part, replacing an
// existing mark at the same offset.
func (p *Project) InsertMetronomeMark(offset float64, bpm int) {
	for _, part := range p.Parts {
		replaced := false
		for i := range part.MetronomeMarks {
			if part.MetronomeMarks[i].Offset == offset {
				part.MetronomeMarks[i].BPM = bpm
				replaced = true
				break
			}
		}
		if !replaced {
			part.MetronomeMarks = append(part.MetronomeMarks, MetronomeMark{Offset: offset, BPM: bpm})
			sort.SliceStable(part.MetronomeMarks, func(i, j int) bool {
				return part.MetronomeMarks[i].Offset < part.MetronomeMarks[j].Offset
			})
		}
	}
}

// RemoveMetronomeMark deletes the tempo mark at offset from every part.
func (p *Project) RemoveMetronomeMark(offset float64) {
	for _, part := range p.Parts {
		for i, mark := range part.MetronomeMarks {
			if mark.Offset == offset {
				part.MetronomeMarks = append(part.MetronomeMarks[:i], part.MetronomeMarks[i+1:]...)
				break
			}
		}
	}
}

// Transpose shifts every note in the part by the given number of semitones.
func (p *Part) Transpose(semitones int) error {
	for i := range p.Notes {
		shifted, err := transposePitch(p.Notes[i].Pitch, semitones)
		if err != nil {
			return err
		}
		p.Notes[i].Pitch = shifted
	}
	return nil
}

// InsertClef places a clef at offset, replacing any clef already there.
func (p *Part) InsertClef(offset float64, name string) error {
	if !validClefs[name] {
		return fmt.Errorf("%w: %q", ErrBadClef, name)
	}
	for i := range p.Clefs {
		if p.Clefs[i].Offset == offset {
			p.Clefs[i].Name = name
			return nil
		}
	}
	p.Clefs = append(p.Clefs, Clef{Offset: offset, Name: name})
	sort.SliceStable(p.Clefs, func(i, j int) bool { return p.Clefs[i].Offset < p.Clefs[j].Offset })
	return nil
}

// RemoveClef deletes the clef at offset if one is there.
func (p *Part) RemoveClef(offset float64) {
	for i, clef := range p.Clefs {
		if clef.Offset == offset {
			p.Clefs = append(p.Clefs[:i], p.Clefs[i+1:]...)
			return
		}
	}
}

// InsertMeasures opens up empty time: every element at or after the
// insertion offset moves later by the inserted quarter-lengths.
func (p *Part) InsertMeasures(offset, quarterLengths float64) {
	for i := range p.Notes {
		if p.Notes[i].Offset >= offset {
			p.Notes[i].Offset += quarterLengths
		}
	}
	for i := range p.KeySignatures {
		if p.KeySignatures[i].Offset >= offset {
			p.KeySignatures[i].Offset += quarterLengths
		}
	}
	for i := range p.Clefs {
		if p.Clefs[i].Offset >= offset {
			p.Clefs[i].Offset += quarterLengths
		}
	}
	for i := range p.MetronomeMarks {
		if p.MetronomeMarks[i].Offset >= offset {
			p.MetronomeMarks[i].Offset += quarterLengths
		}
	}
	for i := range p.Dynamics {
		if p.Dynamics[i].Offset >= offset {
			p.Dynamics[i].Offset += quarterLengths
		}
	}
	for i := range p.Instruments {
		if p.Instruments[i].Offset >= offset {
			p.Instruments[i].Offset += quarterLengths
		}
	}
}

// AddInstrument assigns an instrument from offset, replacing an existing
// assignment at the same offset.
func (p *Part) AddInstrument(offset float64, name string) {
	for i := range p.Instruments {
		if p.Instruments[i].Offset == offset {
			p.Instruments[i].Name = name
			return
		}
	}
	p.Instruments = append(p.Instruments, Instrument{Offset: offset, Name: name})
	sort.SliceStable(p.Instruments, func(i, j int) bool {
		return p.Instruments[i].Offset < p.Instruments[j].Offset
	})
}

// RemoveInstrument deletes the instrument assignment at offset.
func (p *Part) RemoveInstrument(offset float64) {
	for i, inst := range p.Instruments {
		if inst.Offset == offset {
			p.Instruments = append(p.Instruments[:i], p.Instruments[i+1:]...)
			return
		}
	}
}

// AddDynamic places a loudness marking at offset, replacing any marking
// already there.
func (p *Part) AddDynamic(offset float64, value string) error {
	if !validDynamics[value] {
		return fmt.Errorf("%w: %q", ErrBadDynamic, value)
	}
	for i := range p.Dynamics {
		if p.Dynamics[i].Offset == offset {
			p.Dynamics[i].Value = value
			return nil
		}
	}
	p.Dynamics = append(p.Dynamics, Dynamic{Offset: offset, Value: value})
	sort.SliceStable(p.Dynamics, func(i, j int) bool { return p.Dynamics[i].Offset < p.Dynamics[j].Offset })
	return nil
}

// RemoveDynamic deletes the loudness marking at offset.
func (p *Part) RemoveDynamic(offset float64) {
	for i, dyn := range p.Dynamics {
		if dyn.Offset == offset {
			p.Dynamics = append(p.Dynamics[:i], p.Dynamics[i+1:]...)
			return
		}
	}
}

// AddLyric appends a lyric syllable to the note starting at offset. A
// lyric aimed at empty time is dropped silently.
func (p *Part) AddLyric(offset float64, text string) {
	for i := range p.Notes {
		if p.Notes[i].Offset == offset {
			p.Notes[i].Lyrics = append(p.Notes[i].Lyrics, text)
			return
		}
	}
}
