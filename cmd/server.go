package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"benirage/cache"
	"benirage/config"
	"benirage/core/auth"
	"benirage/core/cleanup"
	"benirage/core/media"
	"benirage/core/notify"
	"benirage/core/upload"
	"benirage/db"
	"benirage/logger"
	"benirage/repository"
	"benirage/server"

	"github.com/spf13/cobra"
)

const (
	tokenTTL       = 24 * time.Hour
	cleanupTimeout = 30 * time.Minute
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the story media server",
	Long:  `Start the HTTP server for draft uploads, story players and upload notifications.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	initLogger(cfg)
	defer logger.Sync()
	log := logger.L()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.UploadSpoolDir, 0o755); err != nil {
		return fmt.Errorf("create upload spool dir: %w", err)
	}

	gdb, err := db.ConnectGormDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close(gdb)
	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}
	stories := repository.NewGormStoryRepository(gdb)

	var playerCache server.PlayerCache
	if rc, err := db.ConnectRedis(ctx, cfg); err != nil {
		logger.Warn("redis unavailable, player cache disabled", logger.ErrorField(err))
	} else {
		defer rc.Close()
		playerCache = cache.NewStoryCache(rc, cfg.StoryCacheTTL)
	}

	ff := media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	var extractor upload.Extractor
	if ff.CanProbe() {
		var grabber media.FrameGrabber
		if ff.CanGrabFrames() {
			grabber = ff
		} else {
			logger.Warn("ffmpeg not found, video thumbnails disabled", logger.String("path", cfg.FFmpegPath))
		}
		extractor = media.NewExtractor(ff, grabber, cfg.UploadSpoolDir, log)
	} else {
		logger.Warn("ffprobe not found, media metadata disabled", logger.String("path", cfg.FFprobePath))
	}

	hub := notify.NewHub(notify.NewLogNotifier(log), log)
	go hub.Run()
	defer hub.Stop()

	drafts := upload.New(media.NewUploader(store, cfg.CacheControl, log), extractor, store, hub, log)
	defer drafts.Close()

	sweeper, err := cleanup.NewSweeper(store, stories, drafts.PendingPaths, cleanup.Options{Retention: cfg.CleanupRetention}, log)
	if err != nil {
		return err
	}
	scheduler, err := cleanup.NewScheduler(cfg.CleanupSchedule, sweeper, cleanupTimeout, log)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := server.New(server.Deps{
		Config:  cfg,
		Drafts:  drafts,
		Stories: stories,
		Cache:   playerCache,
		Tokens:  auth.NewTokens(cfg.JWTSecret, tokenTTL),
		Hub:     hub,
		Logger:  log,
	})
	return srv.ListenAndServe(ctx)
}
