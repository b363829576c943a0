package score

import (
	"fmt"
	"strconv"
	"strings"
)

// Pitch names follow the convention of the editing clients: a step letter
// A-G, an optional accidental ('#' for sharp, '-' for flat), and an octave
// number, e.g. "C#4" or "B-3".

var stepSemitones = map[byte]int{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

var sharpNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
var flatNames = [12]string{"C", "D-", "D", "E-", "E", "F", "G-", "G", "A-", "A", "B-", "B"}

// parsePitch returns a MIDI-style note number for a pitch name.
func parsePitch(name string) (int, error) {
	if len(name) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrBadPitch, name)
	}
	step := strings.ToUpper(name)[0]
	semis, ok := stepSemitones[step]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrBadPitch, name)
	}

	rest := name[1:]
	switch rest[0] {
	case '#':
		semis++
		rest = rest[1:]
	case '-':
		semis--
		rest = rest[1:]
	}

	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadPitch, name)
	}

	return (octave+1)*12 + semis, nil
}

// pitchName renders a note number back to a name, spelled with sharps or
// flats depending on the prevailing key signature.
func pitchName(number int, useSharps bool) string {
	octave := number/12 - 1
	semis := number % 12
	if semis < 0 {
		semis += 12
		octave--
	}
	name := sharpNames[semis]
	if !useSharps {
		name = flatNames[semis]
	}
	return name + strconv.Itoa(octave)
}

// transposePitch shifts a pitch name by a number of semitones, keeping the
// spelling convention of the original name.
func transposePitch(name string, semitones int) (string, error) {
	number, err := parsePitch(name)
	if err != nil {
		return "", err
	}
	return pitchName(number+semitones, !strings.Contains(name, "-")), nil
}

// respellPitch renames a note to match the spelling of the surrounding key
// signature, so a flat key never shows sharp accidentals and vice versa.
func respellPitch(name string, useSharps bool) (string, error) {
	number, err := parsePitch(name)
	if err != nil {
		return "", err
	}
	return pitchName(number, useSharps), nil
}
