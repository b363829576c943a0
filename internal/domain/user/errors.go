package user

import "errors"

var (
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("username is taken")
	// ErrLoginFailed indicates an unknown username or a wrong password.
	// The two cases are deliberately indistinguishable to the caller.
	ErrLoginFailed = errors.New("failed to login")
	// ErrInvalidInput indicates empty or malformed registration input.
	ErrInvalidInput = errors.New("invalid user input")
)
