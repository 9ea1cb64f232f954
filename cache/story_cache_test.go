package cache

import (
	"context"
	"testing"
	"time"

	"benirage/core/player"
	"benirage/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*StoryCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStoryCache(client, time.Minute), mr
}

func TestStoryCacheRoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	miss, err := c.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	p := player.NewPayload(model.Story{
		ID:            "s1",
		Title:         "Harvest",
		MediaType:     model.MediaTypeAudio,
		AudioURL:      "https://cdn/stories/u/a.mp3",
		AudioDuration: 75,
	})
	require.NoError(t, c.Set(ctx, p))
	assert.True(t, mr.Exists("story:player:s1"))
	assert.Equal(t, time.Minute, mr.TTL("story:player:s1"))

	got, err := c.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Harvest", got.Story.Title)
	assert.Equal(t, "1:15", got.Duration)
	assert.Equal(t, p.Waveform, got.Waveform)
}

func TestStoryCacheInvalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, player.NewPayload(model.Story{ID: "s2", Title: "Text only"})))
	require.NoError(t, c.Invalidate(ctx, "s2"))

	got, err := c.Get(ctx, "s2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoryCacheExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, player.NewPayload(model.Story{ID: "s3"})))
	mr.FastForward(2 * time.Minute)

	got, err := c.Get(ctx, "s3")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoryCacheCorruptEntryIsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("story:player:s4", "{not json"))

	got, err := c.Get(context.Background(), "s4")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists("story:player:s4"))
}

func TestStoryCacheUnavailable(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, err := c.Get(context.Background(), "s5")
	assert.Error(t, err)
}
