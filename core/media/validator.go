package media

import (
	"strings"

	"benirage/model"
)

// Per-kind size ceilings in bytes.
const (
	MaxAudioSize int64 = 50 * 1024 * 1024
	MaxVideoSize int64 = 100 * 1024 * 1024
	MaxImageSize int64 = 10 * 1024 * 1024
)

// Limit is the size ceiling and MIME allow-list of one kind.
type Limit struct {
	MaxSize      int64
	AllowedTypes []string
}

var limits = map[model.Kind]Limit{
	model.KindAudio: {
		MaxSize:      MaxAudioSize,
		AllowedTypes: []string{"audio/mpeg", "audio/wav", "audio/mp4", "audio/m4a", "audio/x-m4a", "audio/ogg"},
	},
	model.KindVideo: {
		MaxSize:      MaxVideoSize,
		AllowedTypes: []string{"video/mp4", "video/webm", "video/quicktime", "video/avi"},
	},
	model.KindImage: {
		MaxSize:      MaxImageSize,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/webp", "image/gif"},
	},
}

// Limits returns the constraints for kind.
func Limits(kind model.Kind) (Limit, bool) {
	l, ok := limits[kind]
	return l, ok
}

// Validate checks file size and MIME type against the limits of kind. Size
// is checked first; the first failure is returned.
func Validate(file File, kind model.Kind) error {
	limit, ok := limits[kind]
	if !ok {
		return newError(CodeUnsupportedType, nil, "Unsupported media kind %q", kind)
	}

	if file.Size > limit.MaxSize {
		return newError(CodeFileTooLarge, nil, "File size must be less than %dMB", limit.MaxSize/(1024*1024))
	}

	for _, t := range limit.AllowedTypes {
		if file.MimeType == t {
			return nil
		}
	}
	return newError(CodeUnsupportedType, nil, "File type must be one of: %s", strings.Join(limit.AllowedTypes, ", "))
}
