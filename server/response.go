package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"benirage/core/auth"
	"benirage/core/media"
	"benirage/core/upload"
	"benirage/repository"

	"go.uber.org/zap"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Success: false, Message: message, Code: code})
}

// statusOf maps a domain error to an HTTP status and a stable code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrNoSession):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, upload.ErrDraftNotFound),
		errors.Is(err, upload.ErrTaskNotFound),
		errors.Is(err, repository.ErrStoryNotFound):
		return http.StatusNotFound, "NotFound"
	case errors.Is(err, upload.ErrUploadsInProgress):
		return http.StatusConflict, "UploadsInProgress"
	case errors.Is(err, upload.ErrDraftSaving):
		return http.StatusConflict, "DraftSaving"
	case errors.Is(err, upload.ErrInvalidTransition),
		errors.Is(err, upload.ErrNothingToRetry):
		return http.StatusConflict, "InvalidTransition"
	case errors.Is(err, upload.ErrUnknownKind):
		return http.StatusBadRequest, "UnknownKind"
	case errors.Is(err, repository.ErrTitleRequired):
		return http.StatusBadRequest, "ValidationError"
	}

	switch code := media.CodeOf(err); code {
	case media.CodeFileTooLarge, media.CodeUnsupportedType, media.CodeMediaLoadError:
		return http.StatusBadRequest, string(code)
	case media.CodeUploadCancelled:
		return http.StatusConflict, string(code)
	case media.CodeUploadFailed, media.CodeURLResolutionFailed:
		return http.StatusBadGateway, string(code)
	}
	return http.StatusInternalServerError, "InternalError"
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, message string) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(message, zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, status, code, message)
		return
	}
	s.log.Info(message, zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	writeError(w, status, code, publicMessage(err))
}

// publicMessage prefers the user-facing text of media errors over the
// wrapped transport detail.
func publicMessage(err error) string {
	var me *media.Error
	if errors.As(err, &me) && me.Message != "" {
		return me.Message
	}
	return err.Error()
}
