package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/authengine"
)

// ErrorResponse is the JSON body written for every failed request.
type ErrorResponse struct {
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError writes err as an [ErrorResponse]. Errors outside the engine
// taxonomy are reported as a generic 500 so internals never leak.
func WriteError(w http.ResponseWriter, err error) {
	status := authengine.StatusCode(err)
	msg := "Internal server error."
	var e *authengine.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	WriteJSON(w, status, ErrorResponse{Message: msg, StatusCode: status})
}
