// Package upload coordinates the media fields of story drafts: one state
// machine per (draft, kind), with concurrent uploads tracked by task id.
package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"benirage/core/auth"
	"benirage/core/media"
	"benirage/core/notify"
	"benirage/metrics"
	"benirage/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrDraftNotFound     = errors.New("draft not found")
	ErrTaskNotFound      = errors.New("upload task not found")
	ErrInvalidTransition = errors.New("invalid field transition")
	ErrUploadsInProgress = errors.New("uploads still in progress")
	ErrUnknownKind       = errors.New("unknown media kind")
	ErrNothingToRetry    = errors.New("no failed upload to retry")
	ErrDraftSaving       = errors.New("draft is being saved")
)

const cleanupTimeout = 10 * time.Second

// Uploader starts background uploads.
type Uploader interface {
	Start(ctx context.Context, file media.File, kind model.Kind, ownerID string, onProgress func(int)) *media.UploadHandle
}

// Extractor derives local metadata from a file.
type Extractor interface {
	AudioDuration(ctx context.Context, file media.File) (int, error)
	VideoMetadata(ctx context.Context, file media.File) (media.VideoMetadata, error)
}

// ObjectDeleter removes stored objects that nothing will reference.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, path string) error
}

// StoryWriter persists the media of a draft into a story record.
type StoryWriter interface {
	SaveStoryMedia(ctx context.Context, storyID string, fields model.StoryFields, m model.StoryMedia) (*model.Story, error)
}

type field struct {
	state State
	// file is retained while a task is uploading or failed so it can be retried.
	file *media.File
}

type draft struct {
	id      string
	storyID string
	owner   string
	fields  map[model.Kind]*field
	saving  bool
}

type task struct {
	id      string
	draftID string
	kind    model.Kind
	handle  *media.UploadHandle
	cancel  context.CancelFunc
	started time.Time
}

// Orchestrator owns every open draft and the live task map.
type Orchestrator struct {
	uploader  Uploader
	extractor Extractor
	deleter   ObjectDeleter
	notifier  notify.Notifier
	log       *zap.Logger

	mu     sync.Mutex
	drafts map[string]*draft
	live   map[string]*task
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an Orchestrator. extractor and deleter may be nil.
func New(uploader Uploader, extractor Extractor, deleter ObjectDeleter, notifier notify.Notifier, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		uploader:  uploader,
		extractor: extractor,
		deleter:   deleter,
		notifier:  notifier,
		log:       log.With(zap.String("component", "orchestrator")),
		drafts:    make(map[string]*draft),
		live:      make(map[string]*task),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Close aborts every running task and waits for them to wind down.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

// OpenDraft starts a draft owned by s. storyID is empty for a new story.
func (o *Orchestrator) OpenDraft(s auth.Session, storyID string) DraftView {
	d := &draft{
		id:      uuid.NewString(),
		storyID: storyID,
		owner:   s.UserID,
		fields:  make(map[model.Kind]*field, len(model.Kinds)),
	}
	for _, k := range model.Kinds {
		d.fields[k] = &field{state: Idle{}}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.drafts[d.id] = d
	o.log.Info("draft opened", zap.String("draftId", d.id), zap.String("storyId", storyID), zap.String("user", s.UserID))
	return o.viewLocked(d)
}

// Snapshot returns the current state of a draft.
func (o *Orchestrator) Snapshot(s auth.Session, draftID string) (DraftView, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d, err := o.draftLocked(s, draftID)
	if err != nil {
		return DraftView{}, err
	}
	return o.viewLocked(d), nil
}

// OpenPicker moves a field to selecting.
func (o *Orchestrator) OpenPicker(s auth.Session, draftID string, kind model.Kind) (FieldView, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, _, err := o.fieldLocked(s, draftID, kind)
	if err != nil {
		return FieldView{}, err
	}
	switch f.state.(type) {
	case Idle, Succeeded, Failed, Cancelled:
	case Selecting, Validating, Uploading:
		return FieldView{}, invalid("open the picker", f.state)
	}
	o.releaseFile(f)
	f.state = Selecting{}
	return View(f.state), nil
}

// CancelPicker closes the picker without a file.
func (o *Orchestrator) CancelPicker(s auth.Session, draftID string, kind model.Kind) (FieldView, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, _, err := o.fieldLocked(s, draftID, kind)
	if err != nil {
		return FieldView{}, err
	}
	if _, ok := f.state.(Selecting); !ok {
		return FieldView{}, invalid("cancel the picker", f.state)
	}
	f.state = Idle{}
	return View(f.state), nil
}

// Choose validates file and, when it passes, starts uploading it. The
// orchestrator takes ownership of file and releases it once it is no longer
// needed for a retry.
func (o *Orchestrator) Choose(s auth.Session, draftID string, kind model.Kind, file media.File) (FieldView, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, d, err := o.fieldLocked(s, draftID, kind)
	if err != nil {
		file.Release()
		return FieldView{}, err
	}
	if _, ok := f.state.(Selecting); !ok {
		file.Release()
		return FieldView{}, invalid("choose a file", f.state)
	}

	f.state = Validating{FileName: file.Name}
	if err := media.Validate(file, kind); err != nil {
		file.Release()
		f.state = Idle{Err: err}
		o.log.Info("file rejected",
			zap.String("draftId", d.id),
			zap.String("kind", string(kind)),
			zap.String("file", file.Name),
			zap.Int64("size", file.Size),
			zap.String("mimeType", file.MimeType),
			zap.Error(err))
		o.notifier.Notify(notify.Notification{
			UserID:  d.owner,
			DraftID: d.id,
			Kind:    string(kind),
			Level:   notify.LevelError,
			Message: messageOf(err),
		})
		return View(f.state), nil
	}

	f.file = &file
	o.startLocked(d, kind, f)
	return View(f.state), nil
}

// Retry uploads the retained file of a failed field again under a new task id.
func (o *Orchestrator) Retry(s auth.Session, draftID string, kind model.Kind) (FieldView, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, d, err := o.fieldLocked(s, draftID, kind)
	if err != nil {
		return FieldView{}, err
	}
	if _, ok := f.state.(Failed); !ok || f.file == nil {
		return FieldView{}, fmt.Errorf("%w: field is %s", ErrNothingToRetry, f.state.Name())
	}
	o.startLocked(d, kind, f)
	return View(f.state), nil
}

// Cancel aborts the live task taskID. The field ends in cancelled and the
// user gets an informational notification.
func (o *Orchestrator) Cancel(s auth.Session, draftID, taskID string) (FieldView, error) {
	o.mu.Lock()
	d, err := o.draftLocked(s, draftID)
	if err != nil {
		o.mu.Unlock()
		return FieldView{}, err
	}
	t, ok := o.live[taskID]
	if !ok || t.draftID != d.id {
		o.mu.Unlock()
		return FieldView{}, ErrTaskNotFound
	}
	f := d.fields[t.kind]
	o.endLocked(t)
	o.releaseFile(f)
	f.state = Cancelled{TaskID: t.id}
	view := View(f.state)
	o.mu.Unlock()

	t.cancel()
	o.log.Info("upload cancelled", zap.String("draftId", d.id), zap.String("taskId", t.id), zap.String("kind", string(t.kind)))
	o.notifier.Notify(notify.Notification{
		UserID:  d.owner,
		DraftID: d.id,
		TaskID:  t.id,
		Kind:    string(t.kind),
		Level:   notify.LevelInfo,
		Message: kindTitle(t.kind) + " upload cancelled",
	})
	return view, nil
}

// Save merges every succeeded field into the draft's story through w. It is
// refused while any field of the draft is still uploading.
func (o *Orchestrator) Save(ctx context.Context, s auth.Session, draftID string, fields model.StoryFields, w StoryWriter) (*model.Story, error) {
	o.mu.Lock()
	d, err := o.draftLocked(s, draftID)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if d.saving {
		o.mu.Unlock()
		return nil, ErrDraftSaving
	}
	if o.uploadingLocked(d) {
		o.mu.Unlock()
		o.log.Info("save blocked by running uploads", zap.String("draftId", d.id))
		o.notifier.Notify(notify.Notification{
			UserID:  d.owner,
			DraftID: d.id,
			Level:   notify.LevelWarning,
			Message: "Please wait for uploads to finish before saving",
		})
		return nil, ErrUploadsInProgress
	}
	m := mediaOf(d)
	d.saving = true
	storyID, owner := d.storyID, d.owner
	o.mu.Unlock()

	story, err := w.SaveStoryMedia(ctx, storyID, fields, m)

	o.mu.Lock()
	d.saving = false
	if err != nil {
		o.mu.Unlock()
		o.log.Error("story save failed", zap.String("draftId", d.id), zap.Error(err))
		o.notifier.Notify(notify.Notification{
			UserID:  owner,
			DraftID: d.id,
			Level:   notify.LevelError,
			Message: "Failed to save story",
		})
		return nil, err
	}
	for _, f := range d.fields {
		o.releaseFile(f)
	}
	delete(o.drafts, d.id)
	o.mu.Unlock()

	o.log.Info("story saved", zap.String("draftId", d.id), zap.String("storyId", story.ID), zap.String("mediaType", string(story.MediaType)))
	o.notifier.Notify(notify.Notification{
		UserID:  owner,
		DraftID: d.id,
		Level:   notify.LevelSuccess,
		Message: "Story saved",
	})
	return story, nil
}

// Discard abandons a draft: running tasks are cancelled and assets uploaded
// for it are deleted.
func (o *Orchestrator) Discard(s auth.Session, draftID string) error {
	o.mu.Lock()
	d, err := o.draftLocked(s, draftID)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	if d.saving {
		o.mu.Unlock()
		return ErrDraftSaving
	}
	var cancelled []*task
	var orphans []string
	for kind, f := range d.fields {
		switch st := f.state.(type) {
		case Uploading:
			if t, ok := o.live[st.TaskID]; ok {
				o.endLocked(t)
				cancelled = append(cancelled, t)
			}
		case Succeeded:
			orphans = append(orphans, st.Asset.Path)
		}
		o.releaseFile(f)
		d.fields[kind] = &field{state: Idle{}}
	}
	delete(o.drafts, d.id)
	o.mu.Unlock()

	for _, t := range cancelled {
		t.cancel()
		o.notifier.Notify(notify.Notification{
			UserID:  d.owner,
			DraftID: d.id,
			TaskID:  t.id,
			Kind:    string(t.kind),
			Level:   notify.LevelInfo,
			Message: kindTitle(t.kind) + " upload cancelled",
		})
	}
	for _, p := range orphans {
		o.deleteObject(p)
	}
	o.log.Info("draft discarded", zap.String("draftId", d.id), zap.Int("cancelled", len(cancelled)), zap.Int("deleted", len(orphans)))
	return nil
}

// PendingPaths lists assets uploaded for open drafts that no story
// references yet.
func (o *Orchestrator) PendingPaths() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, d := range o.drafts {
		for _, f := range d.fields {
			if st, ok := f.state.(Succeeded); ok {
				out = append(out, st.Asset.Path)
			}
		}
	}
	return out
}

// LiveTasks reports how many tasks are uploading.
func (o *Orchestrator) LiveTasks() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.live)
}

// startLocked creates a task for f.file and runs it. Requires o.mu.
func (o *Orchestrator) startLocked(d *draft, kind model.Kind, f *field) {
	ctx, cancel := context.WithCancel(o.ctx)
	t := &task{
		id:      uuid.NewString(),
		draftID: d.id,
		kind:    kind,
		cancel:  cancel,
		started: time.Now(),
	}
	file := *f.file
	t.handle = o.uploader.Start(ctx, file, kind, d.storyID, func(pct int) {
		o.progress(t, pct)
	})
	o.live[t.id] = t
	f.state = Uploading{TaskID: t.id, Progress: 0}
	metrics.UploadStarted()

	o.log.Info("upload started",
		zap.String("draftId", d.id),
		zap.String("taskId", t.id),
		zap.String("kind", string(kind)),
		zap.String("file", file.Name),
		zap.Int64("size", file.Size))

	o.wg.Add(1)
	go o.run(ctx, t, file)
}

func (o *Orchestrator) run(ctx context.Context, t *task, file media.File) {
	defer o.wg.Done()

	var (
		meta    Metadata
		metaErr error
		g       errgroup.Group
	)
	extractCtx, stopExtract := context.WithCancel(ctx)
	defer stopExtract()
	g.Go(func() error {
		meta, metaErr = o.extract(extractCtx, file, t.kind)
		return nil
	})

	asset, err := t.handle.Wait()
	if err != nil {
		stopExtract()
	}
	g.Wait()
	o.finish(t, asset, err, meta, metaErr)
}

func (o *Orchestrator) extract(ctx context.Context, file media.File, kind model.Kind) (Metadata, error) {
	if o.extractor == nil {
		return Metadata{}, nil
	}
	switch kind {
	case model.KindAudio:
		d, err := o.extractor.AudioDuration(ctx, file)
		return Metadata{Duration: d}, err
	case model.KindVideo:
		vm, err := o.extractor.VideoMetadata(ctx, file)
		return Metadata{Duration: vm.Duration, Thumbnail: vm.Thumbnail}, err
	default:
		return Metadata{}, nil
	}
}

// progress applies a progress report if t is still the field's live task.
func (o *Orchestrator) progress(t *task, pct int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.live[t.id]; !ok {
		return
	}
	d := o.drafts[t.draftID]
	if d == nil {
		return
	}
	f := d.fields[t.kind]
	st, ok := f.state.(Uploading)
	if !ok || st.TaskID != t.id || pct <= st.Progress {
		return
	}
	// 100 is shown only once the task has actually succeeded
	if pct > 99 {
		pct = 99
	}
	st.Progress = pct
	f.state = st
}

// finish applies the terminal outcome of t unless it was cancelled or its
// draft went away, in which case the result is dropped.
func (o *Orchestrator) finish(t *task, asset model.MediaAsset, err error, meta Metadata, metaErr error) {
	o.mu.Lock()
	if _, ok := o.live[t.id]; !ok {
		o.mu.Unlock()
		if err == nil {
			o.log.Info("dropping late upload result", zap.String("taskId", t.id), zap.String("path", asset.Path))
			o.deleteObject(asset.Path)
		}
		return
	}
	o.endLocked(t)
	d := o.drafts[t.draftID]
	f := d.fields[t.kind]

	log := o.log.With(
		zap.String("draftId", d.id),
		zap.String("taskId", t.id),
		zap.String("kind", string(t.kind)),
		zap.Duration("elapsed", time.Since(t.started)))

	n := notify.Notification{UserID: d.owner, DraftID: d.id, TaskID: t.id, Kind: string(t.kind)}
	switch {
	case err == nil:
		o.releaseFile(f)
		f.state = Succeeded{TaskID: t.id, Asset: asset, Metadata: meta, MetadataErr: metaErr}
		n.Level = notify.LevelSuccess
		n.Message = kindTitle(t.kind) + " uploaded successfully"
		if metaErr != nil {
			n.Message += " (metadata unavailable)"
			log.Warn("metadata extraction failed", zap.Error(metaErr))
		}
		log.Info("upload succeeded", zap.String("path", asset.Path), zap.Int64("size", asset.Size))
	case errors.Is(err, media.ErrUploadCancelled):
		// aborted from outside Cancel, e.g. on shutdown
		o.releaseFile(f)
		f.state = Cancelled{TaskID: t.id}
		n.Level = notify.LevelInfo
		n.Message = kindTitle(t.kind) + " upload cancelled"
		log.Info("upload aborted")
	default:
		f.state = Failed{TaskID: t.id, Err: err}
		n.Level = notify.LevelError
		n.Message = messageOf(err)
		log.Warn("upload failed", zap.Error(err))
	}
	o.mu.Unlock()

	o.notifier.Notify(n)
}

// endLocked removes t from the live map. Requires o.mu.
func (o *Orchestrator) endLocked(t *task) {
	if _, ok := o.live[t.id]; !ok {
		return
	}
	delete(o.live, t.id)
	metrics.UploadFinished()
}

func (o *Orchestrator) releaseFile(f *field) {
	if f.file == nil {
		return
	}
	if err := f.file.Release(); err != nil {
		o.log.Warn("failed to release upload file", zap.String("file", f.file.Name), zap.Error(err))
	}
	f.file = nil
}

func (o *Orchestrator) deleteObject(path string) {
	if o.deleter == nil || path == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := o.deleter.DeleteObject(ctx, path); err != nil {
		o.log.Warn("failed to delete unreferenced object", zap.String("path", path), zap.Error(err))
	}
}

func (o *Orchestrator) draftLocked(s auth.Session, draftID string) (*draft, error) {
	d, ok := o.drafts[draftID]
	if !ok || d.owner != s.UserID {
		return nil, ErrDraftNotFound
	}
	return d, nil
}

func (o *Orchestrator) fieldLocked(s auth.Session, draftID string, kind model.Kind) (*field, *draft, error) {
	d, err := o.draftLocked(s, draftID)
	if err != nil {
		return nil, nil, err
	}
	if d.saving {
		return nil, nil, ErrDraftSaving
	}
	f, ok := d.fields[kind]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return f, d, nil
}

func (o *Orchestrator) uploadingLocked(d *draft) bool {
	for _, f := range d.fields {
		if _, ok := f.state.(Uploading); ok {
			return true
		}
	}
	return false
}

func (o *Orchestrator) viewLocked(d *draft) DraftView {
	v := DraftView{
		ID:      d.id,
		StoryID: d.storyID,
		Fields:  make(map[model.Kind]FieldView, len(d.fields)),
	}
	for k, f := range d.fields {
		v.Fields[k] = View(f.state)
	}
	v.Uploading = o.uploadingLocked(d)
	return v
}

func mediaOf(d *draft) model.StoryMedia {
	var m model.StoryMedia
	for kind, f := range d.fields {
		st, ok := f.state.(Succeeded)
		if !ok {
			continue
		}
		asset := st.Asset
		switch kind {
		case model.KindAudio:
			m.Audio = &asset
			m.AudioDuration = st.Metadata.Duration
		case model.KindVideo:
			m.Video = &asset
			m.VideoDuration = st.Metadata.Duration
			m.Thumbnail = st.Metadata.Thumbnail
		case model.KindImage:
			m.Image = &asset
		}
	}
	return m
}

func invalid(action string, s State) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, action, s.Name())
}

func messageOf(err error) string {
	var me *media.Error
	if errors.As(err, &me) && me.Message != "" {
		return me.Message
	}
	return err.Error()
}

func kindTitle(k model.Kind) string {
	s := string(k)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
