package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"benirage/core/auth"
	"benirage/core/media"
	"benirage/core/upload"
	"benirage/model"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before net/http moves it to a temp file.
const multipartMemory = 32 << 20

// maxUploadBody caps a file request at the largest media limit plus room
// for the multipart envelope.
const maxUploadBody = media.MaxVideoSize + 10<<20

type openDraftRequest struct {
	StoryID string `json:"storyId"`
}

type saveResponse struct {
	Success bool         `json:"success"`
	Story   *model.Story `json:"story"`
}

func (s *Server) OpenDraftHandler(w http.ResponseWriter, r *http.Request) {
	session, err := auth.FromContext(r.Context())
	if err != nil {
		s.fail(w, r, err, "Unauthorized")
		return
	}

	var req openDraftRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "BadRequest", "Invalid request body")
			return
		}
	}
	writeJSON(w, http.StatusCreated, s.drafts.OpenDraft(session, req.StoryID))
}

func (s *Server) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	session, draftID, ok := s.draftRequest(w, r)
	if !ok {
		return
	}
	view, err := s.drafts.Snapshot(session, draftID)
	if err != nil {
		s.fail(w, r, err, "Failed to load draft")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) DiscardHandler(w http.ResponseWriter, r *http.Request) {
	session, draftID, ok := s.draftRequest(w, r)
	if !ok {
		return
	}
	if err := s.drafts.Discard(session, draftID); err != nil {
		s.fail(w, r, err, "Failed to discard draft")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) OpenPickerHandler(w http.ResponseWriter, r *http.Request) {
	s.fieldAction(w, r, s.drafts.OpenPicker)
}

func (s *Server) CancelPickerHandler(w http.ResponseWriter, r *http.Request) {
	s.fieldAction(w, r, s.drafts.CancelPicker)
}

func (s *Server) RetryHandler(w http.ResponseWriter, r *http.Request) {
	s.fieldAction(w, r, s.drafts.Retry)
}

func (s *Server) ChooseFileHandler(w http.ResponseWriter, r *http.Request) {
	session, draftID, ok := s.draftRequest(w, r)
	if !ok {
		return
	}
	kind, ok := model.ParseKind(mux.Vars(r)["kind"])
	if !ok {
		s.fail(w, r, upload.ErrUnknownKind, "Unknown media kind")
		return
	}

	if r.ContentLength > s.maxBody {
		s.rejectOversized(w, r, session, draftID, kind)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.rejectOversized(w, r, session, draftID, kind)
			return
		}
		writeError(w, http.StatusBadRequest, "BadRequest", "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	src, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "Missing file")
		return
	}
	defer src.Close()

	file, err := mediaFile(s.cfg.UploadSpoolDir, kind, src, header)
	if err != nil {
		s.fail(w, r, err, "Failed to read uploaded file")
		return
	}

	view, err := s.drafts.Choose(session, draftID, kind, file)
	if err != nil {
		s.fail(w, r, err, "Failed to choose file")
		return
	}
	status := http.StatusAccepted
	if view.Error != "" {
		status = http.StatusUnprocessableEntity
	}
	s.log.Debug("file chosen",
		zap.String("draftId", draftID),
		zap.String("kind", string(kind)),
		zap.String("file", file.Name),
		zap.Int64("size", file.Size),
		zap.String("state", view.State))
	writeJSON(w, status, view)
}

// rejectOversized records a body over the request cap as a too-large file
// on the field, so the draft sees the same rejection as any oversized pick.
func (s *Server) rejectOversized(w http.ResponseWriter, r *http.Request, session auth.Session, draftID string, kind model.Kind) {
	limit, _ := media.Limits(kind)
	file := media.File{Size: limit.MaxSize + 1, Data: emptyData{}}
	view, err := s.drafts.Choose(session, draftID, kind, file)
	if err != nil {
		s.fail(w, r, err, "Failed to choose file")
		return
	}
	s.log.Info("upload body over cap",
		zap.String("draftId", draftID),
		zap.String("kind", string(kind)),
		zap.Int64("contentLength", r.ContentLength),
		zap.Int64("cap", s.maxBody))
	writeJSON(w, http.StatusRequestEntityTooLarge, view)
}

func (s *Server) CancelTaskHandler(w http.ResponseWriter, r *http.Request) {
	session, draftID, ok := s.draftRequest(w, r)
	if !ok {
		return
	}
	view, err := s.drafts.Cancel(session, draftID, mux.Vars(r)["taskId"])
	if err != nil {
		s.fail(w, r, err, "Failed to cancel upload")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) SaveHandler(w http.ResponseWriter, r *http.Request) {
	session, draftID, ok := s.draftRequest(w, r)
	if !ok {
		return
	}

	var fields model.StoryFields
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "BadRequest", "Invalid request body")
			return
		}
	}

	story, err := s.drafts.Save(r.Context(), session, draftID, fields, s.stories)
	if err != nil {
		s.fail(w, r, err, "Failed to save story")
		return
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(r.Context(), story.ID); err != nil {
			s.log.Warn("failed to invalidate player cache", zap.String("storyId", story.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, saveResponse{Success: true, Story: story})
}

type fieldOp func(auth.Session, string, model.Kind) (upload.FieldView, error)

func (s *Server) fieldAction(w http.ResponseWriter, r *http.Request, op fieldOp) {
	session, draftID, ok := s.draftRequest(w, r)
	if !ok {
		return
	}
	kind, ok := model.ParseKind(mux.Vars(r)["kind"])
	if !ok {
		s.fail(w, r, upload.ErrUnknownKind, "Unknown media kind")
		return
	}
	view, err := op(session, draftID, kind)
	if err != nil {
		s.fail(w, r, err, "Field update failed")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) draftRequest(w http.ResponseWriter, r *http.Request) (auth.Session, string, bool) {
	session, err := auth.FromContext(r.Context())
	if err != nil {
		s.fail(w, r, err, "Unauthorized")
		return auth.Session{}, "", false
	}
	return session, mux.Vars(r)["draftId"], true
}
