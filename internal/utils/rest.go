package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the wire shape of every error the API returns.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondWithError writes a JSON error body with the given status code.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{Error: message})
}

// RespondWithJSON encodes payload straight to the response writer. The
// status code is committed before encoding, so an encode failure can
// only be reported in the body.
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Failed to encode response: "+err.Error(), http.StatusInternalServerError)
		return err
	}
	return nil
}
