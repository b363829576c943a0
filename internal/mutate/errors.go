package mutate

import "errors"

var (
	// ErrUnknownOperation indicates an operation name outside the
	// supported set. The document is never touched.
	ErrUnknownOperation = errors.New("invalid operation")
	// ErrInvalidArgument indicates arguments that fail shape validation
	// before the document is touched.
	ErrInvalidArgument = errors.New("invalid argument")
)
