package upload

import (
	"benirage/core/media"
	"benirage/model"
)

// State is the tagged state of one media field. The concrete types below
// are the only implementations.
type State interface {
	Name() string
	isState()
}

// Idle is the resting state. Err holds the last validation rejection, if any.
type Idle struct{ Err error }

// Selecting means a file picker is open.
type Selecting struct{}

// Validating means a chosen file is being checked.
type Validating struct{ FileName string }

// Uploading is an in-flight task.
type Uploading struct {
	TaskID   string
	Progress int
}

// Succeeded holds the stored asset and what the extractor derived from it.
// MetadataErr is set when extraction failed but the upload did not.
type Succeeded struct {
	TaskID      string
	Asset       model.MediaAsset
	Metadata    Metadata
	MetadataErr error
}

// Failed keeps the error for display; the file is retained for Retry.
type Failed struct {
	TaskID string
	Err    error
}

// Cancelled is a task the user aborted.
type Cancelled struct{ TaskID string }

func (Idle) Name() string       { return "idle" }
func (Selecting) Name() string  { return "selecting" }
func (Validating) Name() string { return "validating" }
func (Uploading) Name() string  { return "uploading" }
func (Succeeded) Name() string  { return "succeeded" }
func (Failed) Name() string     { return "failed" }
func (Cancelled) Name() string  { return "cancelled" }

func (Idle) isState()       {}
func (Selecting) isState()  {}
func (Validating) isState() {}
func (Uploading) isState()  {}
func (Succeeded) isState()  {}
func (Failed) isState()     {}
func (Cancelled) isState()  {}

// Metadata is the locally extracted media information.
type Metadata struct {
	Duration  int    `json:"duration,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// FieldView is the JSON rendering of a field state.
type FieldView struct {
	State         string            `json:"state"`
	TaskID        string            `json:"taskId,omitempty"`
	Progress      *int              `json:"progress,omitempty"`
	Error         string            `json:"error,omitempty"`
	Code          media.Code        `json:"code,omitempty"`
	Asset         *model.MediaAsset `json:"asset,omitempty"`
	Metadata      *Metadata         `json:"metadata,omitempty"`
	MetadataError string            `json:"metadataError,omitempty"`
	CanRetry      bool              `json:"canRetry,omitempty"`
}

// View renders s.
func View(s State) FieldView {
	v := FieldView{State: s.Name()}
	switch s := s.(type) {
	case Idle:
		if s.Err != nil {
			v.Error = s.Err.Error()
			v.Code = media.CodeOf(s.Err)
		}
	case Selecting, Validating:
	case Uploading:
		p := s.Progress
		v.TaskID = s.TaskID
		v.Progress = &p
	case Succeeded:
		asset, meta := s.Asset, s.Metadata
		v.TaskID = s.TaskID
		v.Asset = &asset
		v.Metadata = &meta
		if s.MetadataErr != nil {
			v.MetadataError = s.MetadataErr.Error()
		}
	case Failed:
		v.TaskID = s.TaskID
		v.Error = s.Err.Error()
		v.Code = media.CodeOf(s.Err)
		v.CanRetry = true
	case Cancelled:
		v.TaskID = s.TaskID
	default:
		panic("upload: unknown state " + s.Name())
	}
	return v
}

// DraftView is a consistent snapshot of a draft.
type DraftView struct {
	ID        string                   `json:"id"`
	StoryID   string                   `json:"storyId,omitempty"`
	Fields    map[model.Kind]FieldView `json:"fields"`
	Uploading bool                     `json:"uploading"`
}
