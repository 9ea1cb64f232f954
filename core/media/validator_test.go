package media

import (
	"bytes"
	"testing"

	"benirage/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileOf(name, mimeType string, size int64) File {
	return File{Name: name, Size: size, MimeType: mimeType, Data: bytes.NewReader(nil)}
}

func TestValidateAcceptsAllowedTypes(t *testing.T) {
	for _, kind := range model.Kinds {
		limit, ok := Limits(kind)
		require.True(t, ok)
		for _, mimeType := range limit.AllowedTypes {
			for _, size := range []int64{0, 1, limit.MaxSize / 2, limit.MaxSize} {
				err := Validate(fileOf("f", mimeType, size), kind)
				assert.NoError(t, err, "%s %s %d", kind, mimeType, size)
			}
		}
	}
}

func TestValidateTooLargeWinsOverType(t *testing.T) {
	for _, kind := range model.Kinds {
		limit, _ := Limits(kind)
		for _, mimeType := range append([]string{"application/pdf", ""}, limit.AllowedTypes...) {
			err := Validate(fileOf("f", mimeType, limit.MaxSize+1), kind)
			assert.ErrorIs(t, err, ErrFileTooLarge, "%s %s", kind, mimeType)
			assert.True(t, IsValidation(err))
		}
	}
}

func TestValidateUnsupportedType(t *testing.T) {
	cases := []struct {
		kind     model.Kind
		mimeType string
	}{
		{model.KindAudio, "video/mp4"},
		{model.KindAudio, "audio/flac"},
		{model.KindVideo, "video/x-matroska"},
		{model.KindVideo, "image/png"},
		{model.KindImage, "image/svg+xml"},
		{model.KindImage, "application/pdf"},
	}
	for _, tc := range cases {
		err := Validate(fileOf("f", tc.mimeType, 1024), tc.kind)
		assert.ErrorIs(t, err, ErrUnsupportedType, "%s %s", tc.kind, tc.mimeType)
	}
}

func TestValidateScenarios(t *testing.T) {
	t.Run("60MiB mp3", func(t *testing.T) {
		err := Validate(fileOf("song.mp3", "audio/mpeg", 60<<20), model.KindAudio)
		require.Error(t, err)
		assert.Equal(t, CodeFileTooLarge, CodeOf(err))
		assert.Contains(t, err.Error(), "50MB")
	})

	t.Run("2MiB pdf as image", func(t *testing.T) {
		err := Validate(fileOf("doc.pdf", "application/pdf", 2<<20), model.KindImage)
		require.Error(t, err)
		assert.Equal(t, CodeUnsupportedType, CodeOf(err))
		assert.Contains(t, err.Error(), "image/jpeg, image/png, image/webp, image/gif")
	})

	t.Run("unknown kind", func(t *testing.T) {
		err := Validate(fileOf("f", "audio/mpeg", 1), model.Kind("document"))
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})
}

func TestValidateIsIdempotent(t *testing.T) {
	files := []File{
		fileOf("a.mp3", "audio/mpeg", 1<<20),
		fileOf("a.mp3", "audio/mpeg", 51<<20),
		fileOf("a.txt", "text/plain", 1),
	}
	for _, f := range files {
		first := Validate(f, model.KindAudio)
		second := Validate(f, model.KindAudio)
		assert.Equal(t, first, second)
	}
}

func TestFileExtension(t *testing.T) {
	assert.Equal(t, "mp3", fileOf("Song.MP3", "audio/mpeg", 1).Extension())
	assert.Equal(t, "mov", fileOf("clip", "video/quicktime", 1).Extension())
	assert.Equal(t, "m4a", fileOf("", "audio/x-m4a", 1).Extension())
	assert.Equal(t, "flac", fileOf("", "audio/x-flac", 1).Extension())
	assert.Equal(t, "bin", fileOf("", "", 1).Extension())
}
