package server

import (
	"net/http"

	"benirage/core/player"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// PlayerHandler returns the player payload of a story, served from the cache
// when possible. Every request counts as a view.
func (s *Server) PlayerHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storyID := mux.Vars(r)["id"]

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, storyID)
		if err != nil {
			s.log.Warn("player cache unavailable", zap.String("storyId", storyID), zap.Error(err))
		}
		if cached != nil {
			s.countView(r, storyID)
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	story, err := s.stories.GetByID(ctx, storyID)
	if err != nil {
		s.fail(w, r, err, "Failed to load story")
		return
	}

	payload := player.NewPayload(*story)
	if s.cache != nil {
		if err := s.cache.Set(ctx, payload); err != nil {
			s.log.Warn("failed to cache player payload", zap.String("storyId", storyID), zap.Error(err))
		}
	}
	s.countView(r, storyID)
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) countView(r *http.Request, storyID string) {
	if err := s.stories.IncrementViewCount(r.Context(), storyID); err != nil {
		s.log.Warn("failed to count view", zap.String("storyId", storyID), zap.Error(err))
	}
}
