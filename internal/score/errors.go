package score

import "errors"

var (
	// ErrBadPitch indicates a pitch name that cannot be parsed.
	ErrBadPitch = errors.New("unrecognized pitch name")
	// ErrBadClef indicates a clef name outside the supported set.
	ErrBadClef = errors.New("unrecognized clef name")
	// ErrBadDynamic indicates a dynamic marking outside the supported set.
	ErrBadDynamic = errors.New("unrecognized dynamic marking")
	// ErrPartIndex indicates a part index out of range.
	ErrPartIndex = errors.New("part index out of range")
)
