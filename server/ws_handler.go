package server

import (
	"net/http"

	"benirage/core/auth"

	"go.uber.org/zap"
)

// NotificationsHandler upgrades to a websocket that receives the caller's
// upload notifications.
func (s *Server) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	session, err := auth.FromContext(r.Context())
	if err != nil {
		s.fail(w, r, err, "Unauthorized")
		return
	}
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Unavailable", "Notifications are disabled")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.hub.Attach(conn, session.UserID)
	s.log.Debug("notification stream attached", zap.String("user", session.UserID))
}
