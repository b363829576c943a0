package server

import (
	"context"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/jvossen/ensemble/internal/wire"
)

const maxRequestBytes = 1 << 20

// serveRPC decodes one request envelope, runs its handler, and writes
// the reply. Handler panics are contained here so one bad request
// cannot take the server down.
func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		s.writeReply(w, wire.Fail("Internal Server Error"))
		return
	}

	req, err := wire.DecodeRequest(body)
	if err != nil {
		s.writeReply(w, wire.Fail("Malformed request"))
		return
	}

	handler, ok := s.handlers[req.Name]
	if !ok {
		s.writeReply(w, wire.Fail("Internal Server Error"))
		return
	}

	s.writeReply(w, s.dispatch(r.Context(), req.Name, handler, req.Args))
}

func (s *Server) dispatch(ctx context.Context, name string, handler handlerFunc, args []string) (reply wire.Reply) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("handler panicked",
				"handler", name, "panic", rec, "stack", string(debug.Stack()))
			reply = wire.Fail("Internal Server Error")
		}
	}()
	return handler(ctx, args)
}

func (s *Server) writeReply(w http.ResponseWriter, reply wire.Reply) {
	data, err := wire.EncodeReply(reply)
	if err != nil {
		s.logger.Error("encoding reply", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
