package server

import (
	"encoding/json"
	"net/http"

	"github.com/agentbroker/broker/internal/apierr"
)

// ErrorResponse is the body of every non-2xx response: a single top-level
// "detail" key whose value is either a plain string or a structured
// object, matching the wire contract every client-facing error follows.
type ErrorResponse struct {
	Detail any `json:"detail"`
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeAPIError translates err into its HTTP status and JSON error body
// via internal/apierr, so every handler reports failures the same way
// regardless of which component produced them. 4xx messages are the
// tagged Error's own human-readable message; 5xx messages never repeat
// the underlying cause, since that may be a raw os/exec or storage
// driver error never meant for a client to see.
func writeAPIError(w http.ResponseWriter, err error) {
	status := apierr.Status(err)
	message := apierr.Message(err)
	if status >= http.StatusInternalServerError {
		message = "internal error"
	}

	var detail any = message
	if e, ok := apierr.As(err); ok && len(e.Details) > 0 {
		d := make(map[string]any, len(e.Details)+2)
		for k, v := range e.Details {
			d[k] = v
		}
		d["code"] = string(e.Kind)
		d["message"] = message
		detail = d
	}
	writeJSON(w, status, ErrorResponse{Detail: detail})
}
