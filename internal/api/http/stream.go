package apihttp

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// eventStream writes server-sent events and flushes after each one.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func openEventStream(w http.ResponseWriter) (*eventStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &eventStream{w: w, flusher: flusher}, true
}

func (s *eventStream) start() {
	header := s.w.Header()
	header.Set("Content-Type", "text/event-stream; charset=utf-8")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

// send returns an error once the client has gone away.
func (s *eventStream) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
