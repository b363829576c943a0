package session

import "errors"

var (
	// ErrNotAuthorized indicates the user is not a contributor of the
	// project they tried to subscribe to.
	ErrNotAuthorized = errors.New("you are not a contributor")
	// ErrNotSubscribed indicates an unknown session cookie.
	ErrNotSubscribed = errors.New("you are not subscribed")
	// ErrMalformedCookie indicates a token that isn't a session cookie
	// at all.
	ErrMalformedCookie = errors.New("that doesn't look like a cookie")
)
