package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/plumehq/plume/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code,omitempty"`
	Hint          string `json:"hint,omitempty"`
	SuggestedTool string `json:"suggestedTool,omitempty"`
	Retryable     bool   `json:"retryable,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps the structured error taxonomy onto HTTP statuses and
// emits the uniform error envelope.
func writeError(w http.ResponseWriter, err error) {
	ae := apperr.Classify(err)
	writeJSON(w, statusFor(ae.Code), errResponse{
		Error:         ae.Message,
		Code:          string(ae.Code),
		Hint:          ae.Hint,
		SuggestedTool: ae.SuggestedTool,
		Retryable:     ae.Retryable,
	})
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeInvalidArgument, apperr.CodeInvalidLineReference, apperr.CodeUnsupportedTarget:
		return http.StatusBadRequest
	case apperr.CodeEmptyContentBlocked:
		return http.StatusUnprocessableEntity
	case apperr.CodeConfirmationRequired:
		return http.StatusPreconditionRequired
	case apperr.CodeAmbiguousTarget, apperr.CodeConfirmationInvalid, apperr.CodeNoteInTrash:
		return http.StatusConflict
	case apperr.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
