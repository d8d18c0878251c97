package httpapi

import (
	"encoding/json"
	"net/http"

	pkgerrors "github.com/nomusic/nomusic/pkg/errors"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusForErr maps a pkg/errors typed error to an HTTP status,
// defaulting to 500 for anything unrecognized.
func statusForErr(err error) int {
	code, ok := pkgerrors.CodeOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch code {
	case pkgerrors.ErrCodeInvalidInput, pkgerrors.ErrCodeValidation:
		return http.StatusBadRequest
	case pkgerrors.ErrCodeQueueState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
