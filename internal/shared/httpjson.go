package shared

import (
	"encoding/json"
	"errors"
	"net/http"
)

// RespondJSON writes value as a JSON body with the given status.
func RespondJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// RespondError writes a JSON error envelope.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// DecodeJSON parses the request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

// UserSafeMessage converts expected domain errors into messages fit for end
// users; anything unrecognised collapses to a generic message so internals
// never leak.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "Resource not found"
	case errors.Is(err, ErrUnauthenticated):
		return "Sign in required"
	case errors.Is(err, ErrForbidden):
		return "You do not have access to this action"
	default:
		return "Something went wrong, please try again"
	}
}
