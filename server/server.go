package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"benirage/cache"
	"benirage/config"
	"benirage/core/auth"
	"benirage/core/notify"
	"benirage/core/player"
	"benirage/core/upload"
	"benirage/metrics"
	"benirage/repository"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// PlayerCache stores rendered player payloads.
type PlayerCache interface {
	Get(ctx context.Context, storyID string) (*player.Payload, error)
	Set(ctx context.Context, p player.Payload) error
	Invalidate(ctx context.Context, storyID string) error
}

var _ PlayerCache = (*cache.StoryCache)(nil)

// Deps are the collaborators of the HTTP surface. Cache and Hub may be nil.
type Deps struct {
	Config  *config.Config
	Drafts  *upload.Orchestrator
	Stories repository.StoryRepository
	Cache   PlayerCache
	Tokens  *auth.Tokens
	Hub     *notify.Hub
	Logger  *zap.Logger

	// MaxUploadBody caps a file request. Zero uses the default cap.
	MaxUploadBody int64
}

// Server is the story media API.
type Server struct {
	cfg      *config.Config
	drafts   *upload.Orchestrator
	stories  repository.StoryRepository
	cache    PlayerCache
	tokens   *auth.Tokens
	hub      *notify.Hub
	log      *zap.Logger
	upgrader websocket.Upgrader
	maxBody  int64
}

// New creates a Server.
func New(d Deps) *Server {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxBody := d.MaxUploadBody
	if maxBody <= 0 {
		maxBody = maxUploadBody
	}
	return &Server{
		cfg:     d.Config,
		drafts:  d.Drafts,
		stories: d.Stories,
		cache:   d.Cache,
		tokens:  d.Tokens,
		hub:     d.Hub,
		log:     log.With(zap.String("component", "http")),
		maxBody: maxBody,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/healthz", s.HealthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/drafts", s.OpenDraftHandler).Methods(http.MethodPost)
	api.HandleFunc("/drafts/{draftId}", s.SnapshotHandler).Methods(http.MethodGet)
	api.HandleFunc("/drafts/{draftId}", s.DiscardHandler).Methods(http.MethodDelete)
	api.HandleFunc("/drafts/{draftId}/fields/{kind}/picker", s.OpenPickerHandler).Methods(http.MethodPost)
	api.HandleFunc("/drafts/{draftId}/fields/{kind}/picker", s.CancelPickerHandler).Methods(http.MethodDelete)
	api.HandleFunc("/drafts/{draftId}/fields/{kind}/file", s.ChooseFileHandler).Methods(http.MethodPost)
	api.HandleFunc("/drafts/{draftId}/fields/{kind}/retry", s.RetryHandler).Methods(http.MethodPost)
	api.HandleFunc("/drafts/{draftId}/tasks/{taskId}", s.CancelTaskHandler).Methods(http.MethodDelete)
	api.HandleFunc("/drafts/{draftId}/save", s.SaveHandler).Methods(http.MethodPost)
	api.HandleFunc("/stories/{id}/player", s.PlayerHandler).Methods(http.MethodGet)

	ws := router.PathPrefix("/ws").Subrouter()
	ws.Use(s.authMiddleware)
	ws.HandleFunc("/notifications", s.NotificationsHandler).Methods(http.MethodGet)

	return router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.cfg.HTTPAddr,
		Handler:     s.Router(),
		ReadTimeout: 5 * time.Minute, // large video uploads
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("server stopped")
	return nil
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"liveUploads": s.drafts.LiveTasks(),
	})
}
