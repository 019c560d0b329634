package httpx

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/target/portal-access/internal/errors"
)

// errorBody is the JSON shape of every error the gateway itself produces.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON encodes v as the response body. Responses are never cached since
// most of them describe the caller's session.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	// A failed write means the client went away.
	_, _ = w.Write(append(data, '\n'))
}

// WriteProblem writes an error body with a fixed status.
func WriteProblem(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, errorBody{Error: code, Message: message})
}

// WriteAppError derives the status from err's AppError code. Only the
// AppError message is exposed, never the wrapped cause.
func WriteAppError(w http.ResponseWriter, code string, err error) {
	WriteProblem(w, apperrors.CodeOf(err).HTTPStatus(), code, apperrors.PublicMessage(err))
}
