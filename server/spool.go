package server

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"

	"benirage/core/media"
	"benirage/model"
)

// spooledFile is an upload copied to disk. Closing it removes the file.
type spooledFile struct {
	*os.File
}

func (f *spooledFile) Close() error {
	err := f.File.Close()
	if rmErr := os.Remove(f.Name()); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

// emptyData stands in for the bytes of a file that is rejected before spooling.
type emptyData struct{}

func (emptyData) ReadAt(p []byte, off int64) (int, error) { return 0, io.EOF }

// mediaFile turns a multipart part into a media.File. Files that fail
// validation are not copied; their metadata is enough for the rejection.
func mediaFile(spoolDir string, kind model.Kind, src multipart.File, header *multipart.FileHeader) (media.File, error) {
	file := media.File{
		Name:     filepath.Base(header.Filename),
		Size:     header.Size,
		MimeType: contentType(header),
		Data:     emptyData{},
	}
	if media.Validate(file, kind) != nil {
		return file, nil
	}

	if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		return media.File{}, fmt.Errorf("create spool dir: %w", err)
	}
	tmp, err := os.CreateTemp(spoolDir, "upload-*."+file.Extension())
	if err != nil {
		return media.File{}, fmt.Errorf("create spool file: %w", err)
	}
	spooled := &spooledFile{File: tmp}

	n, err := io.Copy(tmp, src)
	if err != nil {
		spooled.Close()
		return media.File{}, fmt.Errorf("spool %s: %w", file.Name, err)
	}
	file.Size = n
	file.Data = spooled
	return file, nil
}

// contentType is the part's declared type without parameters, or a guess
// from the file extension.
func contentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			return mt
		}
	}
	if guess := mime.TypeByExtension(filepath.Ext(header.Filename)); guess != "" {
		if mt, _, err := mime.ParseMediaType(guess); err == nil {
			return mt
		}
	}
	return "application/octet-stream"
}
