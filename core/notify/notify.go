// Package notify delivers toast notifications to users.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level is the severity a toast is rendered with.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is one toast. TaskID is set for upload outcomes.
type Notification struct {
	UserID    string `json:"-"`
	DraftID   string `json:"draftId,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Level     Level  `json:"level"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Notifier is a fire-and-forget sink.
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log.With(zap.String("component", "notify"))}
}

func (l *LogNotifier) Notify(n Notification) {
	fields := []zap.Field{
		zap.String("user", n.UserID),
		zap.String("level", string(n.Level)),
		zap.String("draftId", n.DraftID),
	}
	if n.TaskID != "" {
		fields = append(fields, zap.String("taskId", n.TaskID))
	}
	if n.Level == LevelError || n.Level == LevelWarning {
		l.log.Warn(n.Message, fields...)
		return
	}
	l.log.Info(n.Message, fields...)
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// ForTask returns the notifications carrying taskID.
func (r *Recorder) ForTask(taskID string) []Notification {
	var out []Notification
	for _, n := range r.All() {
		if n.TaskID == taskID {
			out = append(out, n)
		}
	}
	return out
}

func stamp(n Notification) Notification {
	if n.Timestamp == 0 {
		n.Timestamp = time.Now().UnixMilli()
	}
	return n
}
