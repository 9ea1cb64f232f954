package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutAndGet(t *testing.T) {
	store := NewMemoryStore("https://media.test/")
	ctx := context.Background()

	var progress []int64
	err := store.PutObject(ctx, "stories/temp/a.mp3", strings.NewReader("hello"), 5, PutOptions{
		ContentType: "audio/mpeg",
		Progress:    func(sent int64) { progress = append(progress, sent) },
	})
	require.NoError(t, err)

	data, info, err := store.Get("stories/temp/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "audio/mpeg", info.ContentType)
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, []int64{5}, progress)
	assert.Equal(t, "https://media.test/stories/temp/a.mp3", store.PublicURL("stories/temp/a.mp3"))
}

func TestMemoryStoreRefusesOverwrite(t *testing.T) {
	store := NewMemoryStore("http://x")
	ctx := context.Background()

	require.NoError(t, store.PutObject(ctx, "p", strings.NewReader("a"), 1, PutOptions{}))
	err := store.PutObject(ctx, "p", strings.NewReader("b"), 1, PutOptions{})
	assert.ErrorIs(t, err, ErrObjectExists)

	require.NoError(t, store.PutObject(ctx, "p", strings.NewReader("c"), 1, PutOptions{Upsert: true}))
	data, _, _ := store.Get("p")
	assert.Equal(t, "c", string(data))
}

func TestMemoryStoreCancelledPut(t *testing.T) {
	store := NewMemoryStore("http://x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.PutObject(ctx, "p", strings.NewReader("abc"), 3, PutOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStoreListAndDelete(t *testing.T) {
	store := NewMemoryStore("http://x")
	ctx := context.Background()
	for _, p := range []string{"stories/s1/b.mp4", "stories/s1/a.mp3", "other/c.png"} {
		require.NoError(t, store.PutObject(ctx, p, strings.NewReader("x"), 1, PutOptions{}))
	}

	objects, err := store.ListObjects(ctx, "stories/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "stories/s1/a.mp3", objects[0].Path)

	require.NoError(t, store.DeleteObject(ctx, "stories/s1/a.mp3"))
	require.NoError(t, store.DeleteObject(ctx, "missing"))
	assert.Equal(t, 2, store.Len())
}

func TestSummarize(t *testing.T) {
	now := time.Now()
	stats := Summarize([]ObjectInfo{
		{Path: "a.mp3", Size: 10, ContentType: "audio/mpeg", LastModified: now.Add(-time.Hour)},
		{Path: "b.mov", Size: 20, LastModified: now},
		{Path: "c.bin", Size: 1},
	})
	assert.Equal(t, int64(3), stats.TotalObjects)
	assert.Equal(t, int64(31), stats.TotalSize)
	assert.Equal(t, now, stats.LastModified)
	assert.Equal(t, int64(1), stats.TypeStats["audio"])
	assert.Equal(t, int64(1), stats.TypeStats["video"])
	assert.Equal(t, int64(1), stats.TypeStats["other"])
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "50.0 MB", FormatSize(50<<20))
}

func TestCacheControlHeader(t *testing.T) {
	assert.Equal(t, "max-age=3600", cacheControlHeader("3600"))
	assert.Equal(t, "public, max-age=60", cacheControlHeader("public, max-age=60"))
	assert.Equal(t, "", cacheControlHeader(""))
}

func TestProgressHook(t *testing.T) {
	var got []int64
	hook := &progressHook{fn: func(sent int64) { got = append(got, sent) }}
	n, err := hook.Read(make([]byte, 4))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	_, _ = hook.Read(make([]byte, 6))
	assert.Equal(t, []int64{4, 10}, got)
}
