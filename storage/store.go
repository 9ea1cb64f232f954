// Package storage is the object storage collaborator used by the media
// pipeline: put without overwrite, public URL resolution, delete and listing.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	// ErrObjectExists is returned by PutObject when Upsert is false and the path is taken.
	ErrObjectExists = errors.New("storage: object already exists")
	// ErrObjectNotFound is returned when an object is missing.
	ErrObjectNotFound = errors.New("storage: object not found")
)

// ProgressFunc receives the cumulative number of bytes sent so far.
type ProgressFunc func(sent int64)

// PutOptions are the hints passed with an upload.
type PutOptions struct {
	ContentType  string
	CacheControl string
	Upsert       bool
	Metadata     map[string]string
	Progress     ProgressFunc
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// ObjectStore is the contract every storage backend implements.
type ObjectStore interface {
	PutObject(ctx context.Context, path string, r io.Reader, size int64, opts PutOptions) error
	// PublicURL returns the publicly resolvable URL of path, or "" if none can be built.
	PublicURL(path string) string
	DeleteObject(ctx context.Context, path string) error
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// BucketStats summarises a set of objects.
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
	TypeStats    map[string]int64 // object count per coarse content class
}

// Summarize computes bucket statistics for a listing.
func Summarize(objects []ObjectInfo) BucketStats {
	stats := BucketStats{TypeStats: make(map[string]int64)}
	for _, obj := range objects {
		stats.TotalObjects++
		stats.TotalSize += obj.Size
		if obj.LastModified.After(stats.LastModified) {
			stats.LastModified = obj.LastModified
		}
		class := contentClass(obj.ContentType)
		if class == "other" {
			class = inferContentClass(obj.Path)
		}
		stats.TypeStats[class]++
	}
	return stats
}

func contentClass(contentType string) string {
	major, _, _ := strings.Cut(contentType, "/")
	switch major {
	case "audio", "video", "image":
		return major
	default:
		return "other"
	}
}

// inferContentClass guesses the content class from the file extension.
func inferContentClass(path string) string {
	ext := ""
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		ext = strings.ToLower(path[i:])
	}
	switch ext {
	case ".mp3", ".wav", ".m4a", ".ogg":
		return "audio"
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return "image"
	case ".mp4", ".avi", ".mov", ".webm":
		return "video"
	default:
		return "other"
	}
}

// FormatSize renders a byte count with a binary unit, e.g. "1.5 MB".
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
