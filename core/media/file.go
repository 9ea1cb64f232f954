package media

import (
	"io"
	"path/filepath"
	"strings"
)

// File describes a user-selected file. Data must stay readable for as long as
// the file may be uploaded again (retries re-read it from the start).
type File struct {
	Name     string
	Size     int64
	MimeType string
	Data     io.ReaderAt
}

// Reader returns a fresh reader over the whole file.
func (f File) Reader() io.Reader {
	return io.NewSectionReader(f.Data, 0, f.Size)
}

// Release closes the underlying data if it holds a resource.
func (f File) Release() error {
	if c, ok := f.Data.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var mimeExtensions = map[string]string{
	"audio/mpeg":      "mp3",
	"audio/wav":       "wav",
	"audio/mp4":       "m4a",
	"audio/m4a":       "m4a",
	"audio/x-m4a":     "m4a",
	"audio/ogg":       "ogg",
	"video/mp4":       "mp4",
	"video/webm":      "webm",
	"video/quicktime": "mov",
	"video/avi":       "avi",
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/webp":      "webp",
	"image/gif":       "gif",
}

// Extension returns the original extension without the dot, falling back to
// the MIME type when the name has none.
func (f File) Extension() string {
	if ext := strings.TrimPrefix(filepath.Ext(f.Name), "."); ext != "" {
		return strings.ToLower(ext)
	}
	if ext, ok := mimeExtensions[f.MimeType]; ok {
		return ext
	}
	if _, sub, ok := strings.Cut(f.MimeType, "/"); ok && sub != "" {
		return strings.TrimPrefix(sub, "x-")
	}
	return "bin"
}
