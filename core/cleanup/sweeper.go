// Package cleanup removes uploaded media that no story ended up referencing.
package cleanup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"benirage/metrics"
	"benirage/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MediaPrefix is where every story upload lives.
const MediaPrefix = "stories/"

const defaultConcurrency = 8

// References lists the media URLs stored on story records.
type References interface {
	MediaURLs(ctx context.Context) ([]string, error)
}

// PendingFunc lists storage paths of uploads belonging to unsaved drafts.
type PendingFunc func() []string

// Options tunes a sweep.
type Options struct {
	Retention   time.Duration
	DryRun      bool
	Concurrency int
	// Now is replaceable in tests.
	Now func() time.Time
}

// Result summarizes one sweep.
type Result struct {
	Scanned    int      `json:"scanned"`
	Referenced int      `json:"referenced"`
	Pending    int      `json:"pending"`
	Young      int      `json:"young"`
	Deleted    []string `json:"deleted"`
	Failed     int      `json:"failed"`
	DryRun     bool     `json:"dryRun"`
}

// Sweeper deletes objects under MediaPrefix older than the retention window
// that are neither referenced by a story nor owned by an open draft.
type Sweeper struct {
	store   storage.ObjectStore
	refs    References
	pending PendingFunc
	opts    Options
	log     *zap.Logger
}

// NewSweeper creates a Sweeper. pending may be nil.
func NewSweeper(store storage.ObjectStore, refs References, pending PendingFunc, opts Options, log *zap.Logger) (*Sweeper, error) {
	if opts.Retention <= 0 {
		return nil, fmt.Errorf("cleanup retention must be positive, got %s", opts.Retention)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		store:   store,
		refs:    refs,
		pending: pending,
		opts:    opts,
		log:     log.With(zap.String("component", "cleanup")),
	}, nil
}

// Sweep runs once.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	start := time.Now()
	res := Result{DryRun: s.opts.DryRun, Deleted: []string{}}

	urls, err := s.refs.MediaURLs(ctx)
	if err != nil {
		return res, fmt.Errorf("load story references: %w", err)
	}
	referenced := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		referenced[u] = struct{}{}
	}
	pending := make(map[string]struct{})
	if s.pending != nil {
		for _, p := range s.pending() {
			pending[p] = struct{}{}
		}
	}

	objects, err := s.store.ListObjects(ctx, MediaPrefix)
	if err != nil {
		return res, fmt.Errorf("list media objects: %w", err)
	}
	res.Scanned = len(objects)

	cutoff := s.opts.Now().Add(-s.opts.Retention)
	var victims []string
	for _, obj := range objects {
		if _, ok := referenced[s.store.PublicURL(obj.Path)]; ok {
			res.Referenced++
			continue
		}
		if _, ok := pending[obj.Path]; ok {
			res.Pending++
			continue
		}
		if obj.LastModified.After(cutoff) {
			res.Young++
			continue
		}
		victims = append(victims, obj.Path)
	}

	if s.opts.DryRun {
		res.Deleted = victims
		s.log.Info("cleanup dry run", zap.Int("scanned", res.Scanned), zap.Int("wouldDelete", len(victims)))
		return res, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, path := range victims {
		g.Go(func() error {
			if err := s.store.DeleteObject(gctx, path); err != nil {
				s.log.Warn("failed to delete orphaned object", zap.String("path", path), zap.Error(err))
				mu.Lock()
				res.Failed++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			res.Deleted = append(res.Deleted, path)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	metrics.CleanupDeleted(len(res.Deleted))

	s.log.Info("cleanup finished",
		zap.Int("scanned", res.Scanned),
		zap.Int("referenced", res.Referenced),
		zap.Int("pending", res.Pending),
		zap.Int("young", res.Young),
		zap.Int("deleted", len(res.Deleted)),
		zap.Int("failed", res.Failed),
		zap.Duration("elapsed", time.Since(start)))
	return res, ctx.Err()
}
