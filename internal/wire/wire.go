// Package wire defines the JSON envelope exchanged with editing clients.
// Requests name a handler and carry positional string arguments; replies
// carry a status and a payload. The shapes are deliberately loose so the
// same envelope serves RPC replies and broadcast fan-out.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	StatusOK   = "ok"
	StatusFail = "fail"
)

var ErrMalformedRequest = errors.New("malformed request")

// Request is one client call: a handler name plus positional arguments.
// Clients send every argument as a string.
type Request struct {
	Name string   `json:"fName"`
	Args []string `json:"args"`
}

// Reply is the server's answer. Payload is either the handler's result
// or, on failure, a human-readable reason.
type Reply struct {
	Status  string `json:"status"`
	Payload any    `json:"payload"`
}

// OK builds a success reply.
func OK(payload any) Reply {
	return Reply{Status: StatusOK, Payload: payload}
}

// Fail builds a failure reply with a reason the client can show.
func Fail(reason string) Reply {
	return Reply{Status: StatusFail, Payload: reason}
}

// DecodeRequest parses a request envelope. Anything that is not a JSON
// object with a handler name is rejected.
func DecodeRequest(data []byte) (Request, error) {
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if _, ok := probe.(map[string]any); !ok {
		return Request{}, fmt.Errorf("%w: not an object", ErrMalformedRequest)
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if req.Name == "" {
		return Request{}, fmt.Errorf("%w: missing handler name", ErrMalformedRequest)
	}
	return req, nil
}

// EncodeRequest serializes a request for broadcast to subscribers.
func EncodeRequest(req Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return data, nil
}

// EncodeReply serializes a reply envelope.
func EncodeReply(reply Reply) ([]byte, error) {
	data, err := json.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("encoding reply: %w", err)
	}
	return data, nil
}
