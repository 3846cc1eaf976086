package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

func NewRequestID() string { return "req_" + uuid.NewString() }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	resp := map[string]any{
		"request_id": NewRequestID(),
		"error": map[string]any{
			"code": code, "message": message, "details": details,
		},
	}
	WriteJSON(w, status, resp)
}

// WriteReason is the envelope for gate decisions that are denials rather than
// errors: the request worked, the answer is no, and the reason code says why.
func WriteReason(w http.ResponseWriter, status int, reason string, extra map[string]any) {
	resp := map[string]any{
		"request_id": NewRequestID(),
		"reason":     reason,
	}
	for k, v := range extra {
		resp[k] = v
	}
	WriteJSON(w, status, resp)
}
