package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogNotifierLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	n := NewLogNotifier(zap.New(core))

	n.Notify(Notification{UserID: "u", Level: LevelSuccess, Message: "Audio uploaded"})
	n.Notify(Notification{UserID: "u", Level: LevelError, Message: "Upload failed", TaskID: "t1"})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, "t1", entries[1].ContextMap()["taskId"])
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Notify(Notification{TaskID: "a", Message: "one"})
	r.Notify(Notification{TaskID: "b", Message: "two"})
	r.Notify(Notification{Message: "three"})

	assert.Len(t, r.All(), 3)
	require.Len(t, r.ForTask("b"), 1)
	assert.Equal(t, "two", r.ForTask("b")[0].Message)
}

func newHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Attach(conn, r.URL.Query().Get("user"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversToConnectedUser(t *testing.T) {
	fallback := &Recorder{}
	hub := NewHub(fallback, nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := newHubServer(t, hub)
	conn := dial(t, srv, "u-1")
	require.Eventually(t, func() bool { return hub.Connected("u-1") }, time.Second, 10*time.Millisecond)

	hub.Notify(Notification{UserID: "u-1", DraftID: "d", TaskID: "t", Level: LevelInfo, Message: "Upload cancelled"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Notification
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, LevelInfo, got.Level)
	assert.Equal(t, "Upload cancelled", got.Message)
	assert.Equal(t, "t", got.TaskID)
	assert.NotZero(t, got.Timestamp)
	assert.Empty(t, fallback.All())
}

func TestHubFallsBackWithoutConnection(t *testing.T) {
	fallback := &Recorder{}
	hub := NewHub(fallback, nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	hub.Notify(Notification{UserID: "offline", Level: LevelWarning, Message: "Please wait"})
	require.Len(t, fallback.All(), 1)
	assert.Equal(t, "Please wait", fallback.All()[0].Message)
}

func TestHubQueuedDeliveryFallsBackAfterDisconnect(t *testing.T) {
	fallback := &Recorder{}
	hub := NewHub(fallback, nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	// Notify saw a connection, but it closed before the hub loop sent.
	n := Notification{UserID: "u-3", TaskID: "task-1", Level: LevelSuccess, Message: "Upload complete"}
	data, err := json.Marshal(n)
	require.NoError(t, err)
	hub.deliver <- delivery{n: n, data: data}

	require.Eventually(t, func() bool { return len(fallback.ForTask("task-1")) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "Upload complete", fallback.ForTask("task-1")[0].Message)
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := newHubServer(t, hub)
	conn := dial(t, srv, "u-2")
	require.Eventually(t, func() bool { return hub.Connected("u-2") }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return !hub.Connected("u-2") }, 2*time.Second, 10*time.Millisecond)
}
