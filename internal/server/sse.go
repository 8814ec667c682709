package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/agentbroker/broker/internal/stream"
)

// sseWriter wraps http.ResponseWriter for line-delimited SSE output,
// using http.ResponseController for flushing so it works reliably
// through middleware wrappers (Go 1.20+).
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter builds an sseWriter, failing if w does not support
// flushing.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("server: streaming not supported by response writer")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

// writeEvent writes one stream.Record as `data: <json>\n\n`, per
// spec.md section 4.6.
func (s *sseWriter) writeEvent(rec stream.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *sseWriter) flush() {
	if err := s.rc.Flush(); err != nil {
		s.flusher.Flush()
	}
}
