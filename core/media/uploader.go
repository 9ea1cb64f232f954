package media

import (
	"context"
	"errors"
	"sync"
	"time"

	"benirage/metrics"
	"benirage/model"
	"benirage/storage"

	"go.uber.org/zap"
)

// discardTimeout bounds the best-effort delete of a cancelled upload.
const discardTimeout = 10 * time.Second

// Uploader streams validated files to object storage. It keeps no state
// between calls; a retry is simply another Upload.
type Uploader struct {
	store        storage.ObjectStore
	cacheControl string
	log          *zap.Logger
}

// NewUploader creates an Uploader. cacheControl is sent with every object.
func NewUploader(store storage.ObjectStore, cacheControl string, log *zap.Logger) *Uploader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Uploader{
		store:        store,
		cacheControl: cacheControl,
		log:          log.With(zap.String("component", "uploader")),
	}
}

// Upload stores file under a fresh path below stories/{ownerID|temp}/ and
// returns the resulting asset. onProgress, when set, receives non-decreasing
// percentages; only 0 and 100 are guaranteed. Cancelling ctx aborts the
// transfer and yields ErrUploadCancelled.
func (u *Uploader) Upload(ctx context.Context, file File, kind model.Kind, ownerID string, onProgress func(int)) (model.MediaAsset, error) {
	if err := Validate(file, kind); err != nil {
		return model.MediaAsset{}, err
	}

	start := time.Now()
	path := BuildPath(ownerID, FileName(file.Extension()))
	progress := newProgress(file.Size, onProgress)
	progress.set(0)

	log := u.log.With(
		zap.String("kind", string(kind)),
		zap.String("path", path),
		zap.Int64("size", file.Size),
	)
	log.Debug("upload started")

	err := u.store.PutObject(ctx, path, file.Reader(), file.Size, storage.PutOptions{
		ContentType:  file.MimeType,
		CacheControl: u.cacheControl,
		Upsert:       false,
		Metadata:     map[string]string{"kind": string(kind)},
		Progress:     progress.bytes,
	})
	if ctx.Err() != nil {
		// the transport may have committed the object before noticing the abort
		u.discard(ctx, path)
		log.Info("upload cancelled")
		metrics.ObserveUpload(string(kind), metrics.OutcomeCancelled, 0, time.Since(start))
		return model.MediaAsset{}, newError(CodeUploadCancelled, ctx.Err(), "Upload cancelled")
	}
	if err != nil {
		log.Warn("upload failed", zap.Error(err))
		metrics.ObserveUpload(string(kind), metrics.OutcomeFailed, 0, time.Since(start))
		if errors.Is(err, storage.ErrObjectExists) {
			return model.MediaAsset{}, newError(CodeUploadFailed, err, "Upload failed: a file already exists at %s", path)
		}
		return model.MediaAsset{}, newError(CodeUploadFailed, err, "Upload failed")
	}

	url := u.store.PublicURL(path)
	if url == "" {
		log.Warn("public url unavailable")
		metrics.ObserveUpload(string(kind), metrics.OutcomeFailed, 0, time.Since(start))
		return model.MediaAsset{}, newError(CodeURLResolutionFailed, nil, "Failed to get public URL for uploaded file")
	}

	progress.set(100)
	metrics.ObserveUpload(string(kind), metrics.OutcomeSucceeded, file.Size, time.Since(start))
	log.Info("upload completed", zap.Duration("elapsed", time.Since(start)))

	return model.MediaAsset{
		URL:      url,
		Path:     path,
		Size:     file.Size,
		MimeType: file.MimeType,
	}, nil
}

func (u *Uploader) discard(ctx context.Context, path string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discardTimeout)
	defer cancel()
	if err := u.store.DeleteObject(ctx, path); err != nil {
		u.log.Warn("failed to discard cancelled upload", zap.String("path", path), zap.Error(err))
	}
}

// UploadHandle is an upload running in the background.
type UploadHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
	asset  model.MediaAsset
	err    error
}

// Start runs Upload on a new goroutine and returns a handle to await or cancel it.
func (u *Uploader) Start(ctx context.Context, file File, kind model.Kind, ownerID string, onProgress func(int)) *UploadHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := &UploadHandle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer cancel()
		h.asset, h.err = u.Upload(ctx, file, kind, ownerID, onProgress)
	}()
	return h
}

// Cancel aborts the upload. It is safe to call more than once.
func (h *UploadHandle) Cancel() {
	h.cancel()
}

// Done is closed once the upload reached a result.
func (h *UploadHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the upload finishes and returns its result.
func (h *UploadHandle) Wait() (model.MediaAsset, error) {
	<-h.done
	return h.asset, h.err
}

// progress converts byte counts into clamped, non-decreasing percentages.
// Intermediate values stop at 99; 100 is reserved for a resolved upload.
type progress struct {
	mu    sync.Mutex
	total int64
	last  int
	fn    func(int)
}

func newProgress(total int64, fn func(int)) *progress {
	return &progress{total: total, last: -1, fn: fn}
}

func (p *progress) bytes(sent int64) {
	if p.total <= 0 {
		return
	}
	pct := int(sent * 100 / p.total)
	if pct > 99 {
		pct = 99
	}
	p.set(pct)
}

func (p *progress) set(pct int) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct <= p.last {
		return
	}
	p.last = pct
	p.fn(pct)
}
