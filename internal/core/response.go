package core

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON body of error responses.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// JSON writes data with the given status. If marshalling fails it falls back
// to a 500 with a fixed body.
func JSON(w http.ResponseWriter, _ *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"internal_unexpected_error","message":"failed to marshal response"}`))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
