package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"benirage/cache"
	"benirage/config"
	"benirage/core/auth"
	"benirage/core/media"
	"benirage/core/notify"
	"benirage/core/upload"
	"benirage/model"
	"benirage/repository"
	"benirage/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = auth.Session{UserID: "user-1", Username: "alice"}

type gatedStore struct {
	*storage.MemoryStore
	gate chan struct{}
	once sync.Once
}

func (s *gatedStore) PutObject(ctx context.Context, path string, r io.Reader, size int64, opts storage.PutOptions) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.MemoryStore.PutObject(ctx, path, r, size, opts)
}

func (s *gatedStore) release() {
	if s.gate != nil {
		s.once.Do(func() { close(s.gate) })
	}
}

type fakeStories struct {
	mu      sync.Mutex
	stories map[string]*model.Story
	views   map[string]int
}

func newFakeStories() *fakeStories {
	return &fakeStories{stories: make(map[string]*model.Story), views: make(map[string]int)}
}

func (f *fakeStories) SaveStoryMedia(_ context.Context, storyID string, fields model.StoryFields, m model.StoryMedia) (*model.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s *model.Story
	if storyID == "" {
		if fields.Title == "" {
			return nil, repository.ErrTitleRequired
		}
		s = &model.Story{ID: fmt.Sprintf("story-%d", len(f.stories)+1)}
		f.stories[s.ID] = s
	} else {
		var ok bool
		if s, ok = f.stories[storyID]; !ok {
			return nil, repository.ErrStoryNotFound
		}
	}
	if fields.Title != "" {
		s.Title = fields.Title
	}
	m.Apply(s)
	out := *s
	return &out, nil
}

func (f *fakeStories) GetByID(_ context.Context, id string) (*model.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stories[id]
	if !ok {
		return nil, repository.ErrStoryNotFound
	}
	out := *s
	return &out, nil
}

func (f *fakeStories) MediaURLs(context.Context) ([]string, error) { return nil, nil }

func (f *fakeStories) IncrementViewCount(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.stories[id]; !ok {
		return repository.ErrStoryNotFound
	}
	f.views[id]++
	return nil
}

func (f *fakeStories) viewsOf(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.views[id]
}

type testServer struct {
	*httptest.Server
	store    *gatedStore
	stories  *fakeStories
	hub      *notify.Hub
	notes    *notify.Recorder
	cache    *cache.StoryCache
	redis    *miniredis.Miniredis
	spoolDir string
	token    string
}

func newTestServer(t *testing.T, gated bool, opts ...func(*Deps)) *testServer {
	t.Helper()

	store := &gatedStore{MemoryStore: storage.NewMemoryStore("http://media.test/bucket")}
	if gated {
		store.gate = make(chan struct{})
	}
	t.Cleanup(store.release)

	notes := &notify.Recorder{}
	hub := notify.NewHub(notes, nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	drafts := upload.New(media.NewUploader(store, "3600", nil), nil, store, hub, nil)
	t.Cleanup(drafts.Close)

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })
	storyCache := cache.NewStoryCache(rc, time.Minute)

	tokens := auth.NewTokens("test-secret", time.Hour)
	token, err := tokens.Issue(alice)
	require.NoError(t, err)

	spoolDir := t.TempDir()
	stories := newFakeStories()
	deps := Deps{
		Config:  &config.Config{UploadSpoolDir: spoolDir},
		Drafts:  drafts,
		Stories: stories,
		Cache:   storyCache,
		Tokens:  tokens,
		Hub:     hub,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	srv := New(deps)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testServer{
		Server:   ts,
		store:    store,
		stories:  stories,
		hub:      hub,
		notes:    notes,
		cache:    storyCache,
		redis:    mr,
		spoolDir: spoolDir,
		token:    token,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ts.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) openDraft(t *testing.T, storyID string) upload.DraftView {
	t.Helper()
	var view upload.DraftView
	body := strings.NewReader(fmt.Sprintf(`{"storyId":%q}`, storyID))
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/drafts", body, "application/json", &view))
	return view
}

func (ts *testServer) chooseFile(t *testing.T, draftID string, kind model.Kind, name, mimeType string, data []byte) (int, upload.FieldView) {
	t.Helper()
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/drafts/"+draftID+"/fields/"+string(kind)+"/picker", nil, "", nil))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, name))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	var view upload.FieldView
	status := ts.do(t, http.MethodPost, "/api/drafts/"+draftID+"/fields/"+string(kind)+"/file", &buf, mw.FormDataContentType(), &view)
	return status, view
}

func (ts *testServer) waitForState(t *testing.T, draftID string, kind model.Kind, state string) upload.FieldView {
	t.Helper()
	var got upload.FieldView
	require.Eventually(t, func() bool {
		var view upload.DraftView
		if ts.do(t, http.MethodGet, "/api/drafts/"+draftID, nil, "", &view) != http.StatusOK {
			return false
		}
		got = view.Fields[kind]
		return got.State == state
	}, 5*time.Second, 10*time.Millisecond)
	return got
}

func spoolEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestRequiresToken(t *testing.T) {
	ts := newTestServer(t, false)

	resp, err := http.Post(ts.URL+"/api/drafts", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, body.Success)
	assert.Equal(t, "Unauthorized", body.Code)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadAndSaveNewStory(t *testing.T) {
	ts := newTestServer(t, false)
	draft := ts.openDraft(t, "")
	assert.Equal(t, "idle", draft.Fields[model.KindAudio].State)

	status, view := ts.chooseFile(t, draft.ID, model.KindAudio, "river.mp3", "audio/mpeg", bytes.Repeat([]byte{0xff}, 4096))
	assert.Equal(t, http.StatusAccepted, status)
	assert.NotEmpty(t, view.TaskID)

	done := ts.waitForState(t, draft.ID, model.KindAudio, "succeeded")
	require.NotNil(t, done.Asset)
	assert.True(t, strings.HasPrefix(done.Asset.Path, "stories/temp/"))
	assert.Equal(t, "http://media.test/bucket/"+done.Asset.Path, done.Asset.URL)

	var saved saveResponse
	body := strings.NewReader(`{"title":"River song"}`)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/drafts/"+draft.ID+"/save", body, "application/json", &saved))
	require.NotNil(t, saved.Story)
	assert.Equal(t, "River song", saved.Story.Title)
	assert.Equal(t, done.Asset.URL, saved.Story.AudioURL)
	assert.Equal(t, model.MediaTypeAudio, saved.Story.MediaType)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/drafts/"+draft.ID, nil, "", nil))
	assert.Equal(t, 0, spoolEntries(t, ts.spoolDir))
}

func TestUploadPathUsesStoryID(t *testing.T) {
	ts := newTestServer(t, false)
	draft := ts.openDraft(t, "story-9")

	status, _ := ts.chooseFile(t, draft.ID, model.KindImage, "cover.png", "image/png", []byte("png bytes"))
	require.Equal(t, http.StatusAccepted, status)

	done := ts.waitForState(t, draft.ID, model.KindImage, "succeeded")
	require.NotNil(t, done.Asset)
	assert.True(t, strings.HasPrefix(done.Asset.Path, "stories/story-9/"), done.Asset.Path)
	assert.True(t, strings.HasSuffix(done.Asset.Path, ".png"), done.Asset.Path)
}

func TestOversizedBodyRejectsField(t *testing.T) {
	ts := newTestServer(t, false, func(d *Deps) { d.MaxUploadBody = 1024 })
	draft := ts.openDraft(t, "")

	status, view := ts.chooseFile(t, draft.ID, model.KindVideo, "clip.mp4", "video/mp4", bytes.Repeat([]byte{0x01}, 4096))
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, "idle", view.State)
	assert.Equal(t, media.CodeFileTooLarge, view.Code)

	var snap upload.DraftView
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/drafts/"+draft.ID, nil, "", &snap))
	assert.Equal(t, "idle", snap.Fields[model.KindVideo].State)

	require.Eventually(t, func() bool {
		for _, n := range ts.notes.All() {
			if n.Kind == string(model.KindVideo) && n.Level == notify.LevelError {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, spoolEntries(t, ts.spoolDir))
}

func TestSaveBlockedWhileUploading(t *testing.T) {
	ts := newTestServer(t, true)
	draft := ts.openDraft(t, "")

	status, _ := ts.chooseFile(t, draft.ID, model.KindImage, "cover.png", "image/png", []byte("png bytes"))
	require.Equal(t, http.StatusAccepted, status)

	var body errorResponse
	save := strings.NewReader(`{"title":"Patience"}`)
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/api/drafts/"+draft.ID+"/save", save, "application/json", &body))
	assert.Equal(t, "UploadsInProgress", body.Code)

	ts.store.release()
	ts.waitForState(t, draft.ID, model.KindImage, "succeeded")

	var saved saveResponse
	save = strings.NewReader(`{"title":"Patience"}`)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/drafts/"+draft.ID+"/save", save, "application/json", &saved))
	assert.Contains(t, saved.Story.ThumbnailURL, "http://media.test/bucket/stories/temp/")
}

func TestCancelTask(t *testing.T) {
	ts := newTestServer(t, true)
	draft := ts.openDraft(t, "")

	_, view := ts.chooseFile(t, draft.ID, model.KindVideo, "clip.mp4", "video/mp4", []byte("mp4 bytes"))
	require.Equal(t, "uploading", view.State)

	var cancelled upload.FieldView
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/api/drafts/"+draft.ID+"/tasks/"+view.TaskID, nil, "", &cancelled))
	assert.Equal(t, "cancelled", cancelled.State)
	assert.Equal(t, view.TaskID, cancelled.TaskID)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/drafts/"+draft.ID+"/tasks/"+view.TaskID, nil, "", nil))
	assert.Equal(t, 0, ts.store.Len())
}

func TestRejectedFileIsNotSpooled(t *testing.T) {
	ts := newTestServer(t, false)
	draft := ts.openDraft(t, "")

	status, view := ts.chooseFile(t, draft.ID, model.KindAudio, "notes.pdf", "application/pdf", []byte("%PDF-1.4"))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "idle", view.State)
	assert.Equal(t, media.CodeUnsupportedType, view.Code)
	assert.Equal(t, 0, spoolEntries(t, ts.spoolDir))
	assert.Equal(t, 0, ts.store.Len())
}

func TestFieldErrors(t *testing.T) {
	ts := newTestServer(t, false)
	draft := ts.openDraft(t, "")

	var body errorResponse
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/drafts/"+draft.ID+"/fields/pdf/picker", nil, "", &body))
	assert.Equal(t, "UnknownKind", body.Code)

	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/api/drafts/"+draft.ID+"/fields/audio/retry", nil, "", &body))
	assert.Equal(t, "InvalidTransition", body.Code)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/drafts/nope/fields/audio/picker", nil, "", &body))
	assert.Equal(t, "NotFound", body.Code)

	var picked upload.FieldView
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/drafts/"+draft.ID+"/fields/audio/picker", nil, "", &picked))
	assert.Equal(t, "selecting", picked.State)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/api/drafts/"+draft.ID+"/fields/audio/picker", nil, "", &picked))
	assert.Equal(t, "idle", picked.State)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/drafts/"+draft.ID, nil, "", nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/drafts/"+draft.ID, nil, "", nil))
}

func TestSaveInvalidatesPlayerCache(t *testing.T) {
	ts := newTestServer(t, false)
	ts.stories.stories["story-7"] = &model.Story{ID: "story-7", Title: "Market day"}

	var payload struct {
		Story  model.Story `json:"story"`
		Layout struct {
			Variant string `json:"variant"`
		} `json:"layout"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/stories/story-7/player", nil, "", &payload))
	assert.Equal(t, "text", payload.Layout.Variant)
	assert.True(t, ts.redis.Exists("story:player:story-7"))

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/stories/story-7/player", nil, "", &payload))
	assert.Equal(t, 2, ts.stories.viewsOf("story-7"))

	draft := ts.openDraft(t, "story-7")
	ts.chooseFile(t, draft.ID, model.KindAudio, "market.wav", "audio/wav", []byte("RIFF"))
	ts.waitForState(t, draft.ID, model.KindAudio, "succeeded")
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/drafts/"+draft.ID+"/save", nil, "", nil))
	assert.False(t, ts.redis.Exists("story:player:story-7"))

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/stories/story-7/player", nil, "", &payload))
	assert.Equal(t, "audio", payload.Layout.Variant)
	assert.Equal(t, "Market day", payload.Story.Title)

	var body errorResponse
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/stories/missing/player", nil, "", &body))
	assert.Equal(t, "NotFound", body.Code)
}

func TestNotificationStream(t *testing.T) {
	ts := newTestServer(t, false)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/notifications?token=" + ts.token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return ts.hub.Connected(alice.UserID) }, 2*time.Second, 10*time.Millisecond)

	draft := ts.openDraft(t, "")
	ts.chooseFile(t, draft.ID, model.KindImage, "scan.tiff", "image/tiff", []byte("II*"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var n notify.Notification
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, notify.LevelError, n.Level)
	assert.Equal(t, draft.ID, n.DraftID)
	assert.Equal(t, "image", n.Kind)
}

func TestNotificationStreamRejectsBadToken(t *testing.T) {
	ts := newTestServer(t, false)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/notifications?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
