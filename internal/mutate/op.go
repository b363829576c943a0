// Package mutate validates incoming edit requests, decodes them into a
// closed set of typed operations, and applies them to the pooled document
// under the project lock. The operation set is fixed: anything outside it
// is rejected before any document is loaded.
package mutate

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jvossen/ensemble/internal/score"
)

// Op is one decoded edit operation. Apply mutates the document exactly
// once and reports the affected offset range, when there is one.
type Op interface {
	Name() string
	Apply(proj *score.Project) (*score.Range, error)
}

// Operation names accepted on the wire.
const (
	OpChangeKeySignature   = "changeKeySignature"
	OpInsertNote           = "insertNote"
	OpRemoveNote           = "removeNote"
	OpInsertMetronomeMark  = "insertMetronomeMark"
	OpRemoveMetronomeMark  = "removeMetronomeMark"
	OpTranspose            = "transpose"
	OpInsertClef           = "insertClef"
	OpRemoveClef           = "removeClef"
	OpInsertMeasures       = "insertMeasures"
	OpAddInstrument        = "addInstrument"
	OpRemoveInstrument     = "removeInstrument"
	OpAddDynamic           = "addDynamic"
	OpRemoveDynamic        = "removeDynamic"
	OpAddLyric             = "addLyric"
	OpChat                 = "chat"
)

// Wire argument positions follow the editing clients: args[0] is the
// offset, args[1] names the part (already carried separately as the part
// index), and the operation-specific values start at args[2].

// ChangeKeySignature replaces or inserts a key signature.
type ChangeKeySignature struct {
	Part   int
	Offset float64
	Sharps int
}

func (o ChangeKeySignature) Name() string { return OpChangeKeySignature }

func (o ChangeKeySignature) Apply(proj *score.Project) (*score.Range, error) {
	part, err := proj.Part(o.Part)
	if err != nil {
		return nil, err
	}
	return nil, part.ChangeKeySignature(o.Offset, o.Sharps)
}

// InsertNote adds a note, displacing overlapping ones.
type InsertNote struct {
	Part     int
	Offset   float64
	Pitch    string
	Duration float64
}

func (o InsertNote) Name() string { return OpInsertNote }

func (o InsertNote) Apply(proj *score.Project) (*score.Range, error) {
	part, err := proj.Part(o.Part)
	if err != nil {
		return nil, err
	}
	affected, err := part.InsertNote(o.Offset, o.Pitch, o.Duration)
	if err != nil {
		return nil, err
	}
	return &affected, nil
}

// RemoveNote deletes a named note at an offset.
type RemoveNote struct {
	Part     int
	Offset   float64
	NoteName string
}

func (o RemoveNote) Name() string { return OpRemoveNote }

func (o RemoveNote) Apply(proj *score.Project) (*score.Range, error) {
	part, err := proj.Part(o.Part)
	if err != nil {
		return nil, err
	}
	affected := part.RemoveNote(o.Offset, o.NoteName)
	return &affected, nil
}

// InsertMetronomeMark sets the tempo across every part.
type InsertMetronomeMark struct {
	Offset float64
	BPM    int
}

func (o InsertMetronomeMark) Name() string { return OpInsertMetronomeMark }

func (o InsertMetronomeMark) Apply(proj *score.Project) (*score.Range, error) {
	proj.InsertMetronomeMark(o.Offset, o.BPM)
	return nil, nil
}

// RemoveMetronomeMark clears the tempo mark across every part.
type RemoveMetronomeMark struct {
	Offset float64
}

func (o RemoveMetronomeMark) Name() string { return OpRemoveMetronomeMark }

func (o RemoveMetronomeMark) Apply(proj *score.Project) (*score.Range, error) {
	proj.RemoveMetronomeMark(o.Offset)
	return nil, nil
}

// Transpose shifts a whole part by semitones.
type Transpose struct {
	Part      int
	Semitones int
}

func (o Transpose) Name() string { return OpTranspose }

func (o Transpose) Apply(proj *score.Project) (*score.Range, error) {
	part, err := proj.Part(o.Part)
	if err != nil {
		return nil, err
	}
	return nil, part.Transpose(o.Semitones)
}

// InsertClef places a clef.
type InsertClef struct {
	Part   int
	Offset float64
	Clef   string
}

func (o InsertClef) Name() string { return OpInsertClef }

func (o InsertClef) Apply(proj *score.Project) (*score.Range, error) {
	part, err := proj.Part(o.Part)
	if err != nil {
		return nil, err
	}
	return nil, part.InsertClef(o.Offset, o.Clef)
}

// RemoveClef removes a clef.
type RemoveClef struct {
	Part   int
	Offset float64
}

func (o RemoveClef) Name() string { return OpRemoveClef }

func (o RemoveClef) Apply(proj *score.Project) (*score.Range, error) {
	part, err := proj.Part(o.Part)
	if err != nil {
		return nil, err
	}
	part.RemoveClef(o.Offset)
	return nil, nil
}

// InsertMeasures opens empty time in a part.
type InsertMeasures struct {
	Part           int
	Offset         float64
	QuarterLengths float64
}

func (o InsertMeasures) Name() string { return OpInsertMeasures }

func (o InsertMeasures) Apply(proj *score.Project) (*score.Range, error) {
	part, err := proj.Part(o.Part)
	if err != nil {
		return nil, err
	}
	part.InsertMeasures(o.Offset, o.QuarterLengths)
	return nil, nil
}

// AddInstrument assigns an instrument.
type AddInstrument struct {
	Part       int
	Offset     float64
	Instrument string
}

func (o AddInstrument) Name() string { return OpAddInstrument }

func (o AddInstrument) Apply(proj *score.Project) (*score.Range, error) {
	part, err := proj.Part(o.Part)
	if err != nil {
		return nil, err
	}
	part.AddInstrument(o.Offset, o.Instrument)
	return nil, nil
}

// RemoveInstrument clears an instrument assignment.
type RemoveInstrument struct {
	Part   int
	Offset float64
}

func (o RemoveInstrument) Name() string { return OpRemoveInstrument }

func (o RemoveInstrument) Apply(proj *score.Project) (*score.Range, error) {
	part, err := proj.Part(o.Part)
	if err != nil {
		return nil, err
	}
	part.RemoveInstrument(o.Offset)
	return nil, nil
}

// AddDynamic places a loudness marking.
type AddDynamic struct {
	Part    int
	Offset  float64
	Dynamic string
}

func (o AddDynamic) Name() string { return OpAddDynamic }

func (o AddDynamic) Apply(proj *score.Project) (*score.Range, error) {
	part, err := proj.Part(o.Part)
	if err != nil {
		return nil, err
	}
	return nil, part.AddDynamic(o.Offset, o.Dynamic)
}

// RemoveDynamic clears a loudness marking.
type RemoveDynamic struct {
	Part   int
	Offset float64
}

func (o RemoveDynamic) Name() string { return OpRemoveDynamic }

func (o RemoveDynamic) Apply(proj *score.Project) (*score.Range, error) {
	part, err := proj.Part(o.Part)
	if err != nil {
		return nil, err
	}
	part.RemoveDynamic(o.Offset)
	return nil, nil
}

// AddLyric attaches a lyric syllable to a note.
type AddLyric struct {
	Part   int
	Offset float64
	Lyric  string
}

func (o AddLyric) Name() string { return OpAddLyric }

func (o AddLyric) Apply(proj *score.Project) (*score.Range, error) {
	part, err := proj.Part(o.Part)
	if err != nil {
		return nil, err
	}
	part.AddLyric(o.Offset, o.Lyric)
	return nil, nil
}

// Chat is a passthrough: it mutates nothing but is still broadcast to
// every subscriber, which is all a chat message needs.
type Chat struct{}

func (o Chat) Name() string { return OpChat }

func (o Chat) Apply(proj *score.Project) (*score.Range, error) { return nil, nil }

// Decode validates a wire-level update and produces its typed operation.
// argsJSON is the client's positional argument array (all strings);
// partIndex and offset arrive as separate string fields, empty when
// absent. Every failure here is a validation failure: the document is
// never touched.
func Decode(name, argsJSON, partIndex, offset string) (Op, error) {
	var args []string
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return nil, fmt.Errorf("%w: args: %v", ErrInvalidArgument, err)
		}
	}

	if present(offset) {
		value, err := strconv.ParseFloat(offset, 64)
		if err != nil || value < 0 {
			return nil, fmt.Errorf("%w: offset %q", ErrInvalidArgument, offset)
		}
	}

	part := -1
	if present(partIndex) {
		value, err := strconv.Atoi(partIndex)
		if err != nil || value < 0 {
			return nil, fmt.Errorf("%w: part index %q", ErrInvalidArgument, partIndex)
		}
		part = value
	}
	if partScoped[name] && part < 0 {
		return nil, fmt.Errorf("%w: missing part index", ErrInvalidArgument)
	}

	switch name {
	case OpChangeKeySignature:
		off, err := offsetArg(args)
		if err != nil {
			return nil, err
		}
		sharps, err := intArg(args, 2)
		if err != nil {
			return nil, err
		}
		return ChangeKeySignature{Part: part, Offset: off, Sharps: sharps}, nil

	case OpInsertNote:
		off, err := offsetArg(args)
		if err != nil {
			return nil, err
		}
		pitch, err := stringArg(args, 2)
		if err != nil {
			return nil, err
		}
		duration, err := floatArg(args, 3)
		if err != nil {
			return nil, err
		}
		if duration <= 0 {
			return nil, fmt.Errorf("%w: duration %v", ErrInvalidArgument, duration)
		}
		return InsertNote{Part: part, Offset: off, Pitch: pitch, Duration: duration}, nil

	case OpRemoveNote:
		off, err := offsetArg(args)
		if err != nil {
			return nil, err
		}
		noteName, err := stringArg(args, 2)
		if err != nil {
			return nil, err
		}
		return RemoveNote{Part: part, Offset: off, NoteName: noteName}, nil

	case OpInsertMetronomeMark:
		off, err := offsetArg(args)
		if err != nil {
			return nil, err
		}
		bpm, err := intArg(args, 1)
		if err != nil {
			return nil, err
		}
		if bpm <= 0 {
			return nil, fmt.Errorf("%w: bpm %d", ErrInvalidArgument, bpm)
		}
		return InsertMetronomeMark{Offset: off, BPM: bpm}, nil

	case OpRemoveMetronomeMark:
		off, err := offsetArg(args)
		if err != nil {
			return nil, err
		}
		return RemoveMetronomeMark{Offset: off}, nil

	case OpTranspose:
		semitones, err := intArg(args, 1)
		if err != nil {
			return nil, err
		}
		return Transpose{Part: part, Semitones: semitones}, nil

	case OpInsertClef:
		off, err := offsetArg(args)
		if err != nil {
			return nil, err
		}
		clef, err := stringArg(args, 2)
		if err != nil {
			return nil, err
		}
		return InsertClef{Part: part, Offset: off, Clef: clef}, nil

	case OpRemoveClef:
		off, err := offsetArg(args)
		if err != nil {
			return nil, err
		}
		return RemoveClef{Part: part, Offset: off}, nil

	case OpInsertMeasures:
		off, err := offsetArg(args)
		if err != nil {
			return nil, err
		}
		qls, err := floatArg(args, 2)
		if err != nil {
			return nil, err
		}
		return InsertMeasures{Part: part, Offset: off, QuarterLengths: qls}, nil

	case OpAddInstrument:
		off, err := offsetArg(args)
		if err != nil {
			return nil, err
		}
		instrument, err := stringArg(args, 2)
		if err != nil {
			return nil, err
		}
		return AddInstrument{Part: part, Offset: off, Instrument: instrument}, nil

	case OpRemoveInstrument:
		off, err := offsetArg(args)
		if err != nil {
			return nil, err
		}
		return RemoveInstrument{Part: part, Offset: off}, nil

	case OpAddDynamic:
		off, err := offsetArg(args)
		if err != nil {
			return nil, err
		}
		dynamic, err := stringArg(args, 2)
		if err != nil {
			return nil, err
		}
		return AddDynamic{Part: part, Offset: off, Dynamic: dynamic}, nil

	case OpRemoveDynamic:
		off, err := offsetArg(args)
		if err != nil {
			return nil, err
		}
		return RemoveDynamic{Part: part, Offset: off}, nil

	case OpAddLyric:
		off, err := offsetArg(args)
		if err != nil {
			return nil, err
		}
		lyric, err := stringArg(args, 2)
		if err != nil {
			return nil, err
		}
		return AddLyric{Part: part, Offset: off, Lyric: lyric}, nil

	case OpChat:
		return Chat{}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
}

func present(field string) bool {
	return field != "" && field != "None"
}

// partScoped lists the operations that edit a single part and therefore
// need a part index. The remainder act on the whole project.
var partScoped = map[string]bool{
	OpChangeKeySignature: true,
	OpInsertNote:         true,
	OpRemoveNote:         true,
	OpTranspose:          true,
	OpInsertClef:         true,
	OpRemoveClef:         true,
	OpInsertMeasures:     true,
	OpAddInstrument:      true,
	OpRemoveInstrument:   true,
	OpAddDynamic:         true,
	OpRemoveDynamic:      true,
	OpAddLyric:           true,
}

func stringArg(args []string, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w: missing argument %d", ErrInvalidArgument, i)
	}
	return args[i], nil
}

func floatArg(args []string, i int) (float64, error) {
	raw, err := stringArg(args, i)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: argument %d: %q", ErrInvalidArgument, i, raw)
	}
	return value, nil
}

func intArg(args []string, i int) (int, error) {
	raw, err := stringArg(args, i)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: argument %d: %q", ErrInvalidArgument, i, raw)
	}
	return value, nil
}

func offsetArg(args []string) (float64, error) {
	value, err := floatArg(args, 0)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, fmt.Errorf("%w: negative offset %v", ErrInvalidArgument, value)
	}
	return value, nil
}
