package repository

import (
	"context"
	"fmt"
	"os"
	"testing"

	"benirage/model"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMergeFieldsKeepsExistingValues(t *testing.T) {
	s := &model.Story{Title: "Old title", Content: "Old body", AuthorName: "Amina"}

	mergeFields(s, model.StoryFields{Title: "New title", Content: "  ", Transcript: "words"})

	assert.Equal(t, "New title", s.Title)
	assert.Equal(t, "Old body", s.Content)
	assert.Equal(t, "Amina", s.AuthorName)
	assert.Equal(t, "words", s.Transcript)
}

func TestReferencedURLsSkipsInlineThumbnails(t *testing.T) {
	rows := []mediaRow{
		{AudioURL: "https://cdn/stories/u/a.mp3", ThumbnailURL: "data:image/jpeg;base64,AAAA"},
		{VideoURL: "https://cdn/stories/u/v.mp4", ThumbnailURL: "https://cdn/stories/u/t.jpg"},
		{},
	}

	assert.Equal(t, []string{
		"https://cdn/stories/u/a.mp3",
		"https://cdn/stories/u/v.mp4",
		"https://cdn/stories/u/t.jpg",
	}, referencedURLs(rows))
}

func TestIsDuplicate(t *testing.T) {
	assert.True(t, isDuplicate(fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})))
	assert.False(t, isDuplicate(&mysql.MySQLError{Number: 1045}))
	assert.False(t, isDuplicate(assert.AnError))
}

// openTestDB connects to BENIRAGE_TEST_MYSQL_DSN; the test is skipped without it.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("BENIRAGE_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("BENIRAGE_TEST_MYSQL_DSN not set")
	}
	gdb, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&model.Story{}))
	return gdb
}

func TestStoryRepositoryMySQL(t *testing.T) {
	gdb := openTestDB(t)
	repo := NewGormStoryRepository(gdb)
	ctx := context.Background()

	_, err := repo.SaveStoryMedia(ctx, "", model.StoryFields{}, model.StoryMedia{})
	require.ErrorIs(t, err, ErrTitleRequired)

	audio := &model.MediaAsset{URL: "https://cdn/stories/u/a.mp3", Path: "stories/u/a.mp3"}
	created, err := repo.SaveStoryMedia(ctx, "", model.StoryFields{Title: "River song"},
		model.StoryMedia{Audio: audio, AudioDuration: 42})
	require.NoError(t, err)
	t.Cleanup(func() { gdb.Delete(&model.Story{}, "id = ?", created.ID) })
	assert.Equal(t, model.MediaTypeAudio, created.MediaType)

	video := &model.MediaAsset{URL: "https://cdn/stories/u/v.mp4", Path: "stories/u/v.mp4"}
	updated, err := repo.SaveStoryMedia(ctx, created.ID, model.StoryFields{},
		model.StoryMedia{Video: video, VideoDuration: 90, Thumbnail: "data:image/jpeg;base64,AAAA"})
	require.NoError(t, err)
	assert.Equal(t, "River song", updated.Title)
	assert.Equal(t, model.MediaTypeMixed, updated.MediaType)
	assert.Equal(t, 42, updated.AudioDuration)

	require.NoError(t, repo.IncrementViewCount(ctx, created.ID))
	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.ViewCount)

	urls, err := repo.MediaURLs(ctx)
	require.NoError(t, err)
	assert.Contains(t, urls, audio.URL)
	assert.Contains(t, urls, video.URL)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrStoryNotFound)
	_, err = repo.SaveStoryMedia(ctx, "missing", model.StoryFields{}, model.StoryMedia{})
	assert.ErrorIs(t, err, ErrStoryNotFound)
	assert.ErrorIs(t, repo.IncrementViewCount(ctx, "missing"), ErrStoryNotFound)
}
