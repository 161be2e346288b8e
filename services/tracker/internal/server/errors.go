package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"booktracker/services/tracker/internal/app"
)

const codeInvalidRequest = "REQUEST_INVALID"

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

// writeAppError maps app errors to status codes. Unknown errors are logged
// and reported without detail.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS", app.ErrInvalidCredentials.Error())
	case errors.Is(err, app.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", app.ErrUnauthorized.Error())
	case errors.Is(err, app.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "AUTH_USERNAME_TAKEN", app.ErrUsernameTaken.Error())
	case errors.Is(err, app.ErrEmailTaken):
		writeError(w, http.StatusConflict, "AUTH_EMAIL_TAKEN", app.ErrEmailTaken.Error())
	case errors.Is(err, app.ErrBookNotFound):
		writeError(w, http.StatusNotFound, "BOOK_NOT_FOUND", app.ErrBookNotFound.Error())
	case errors.Is(err, app.ErrPDFNotFound):
		writeError(w, http.StatusNotFound, "BOOK_PDF_NOT_FOUND", app.ErrPDFNotFound.Error())
	case errors.Is(err, app.ErrInvalidInput):
		writeError(w, http.StatusUnprocessableEntity, codeInvalidRequest, err.Error())
	default:
		logInternal(r, err)
		writeError(w, http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR", "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "SYSTEM_METHOD_NOT_ALLOWED", "method not allowed")
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "SYSTEM_NOT_FOUND", "not found")
}
