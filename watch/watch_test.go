package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursegen/config"
	"coursegen/progress"
)

const taskID = "task-w1"

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// scriptedBackend accepts one generation request and runs script over
// the task's websocket. A nil script leaves the channel silent.
func scriptedBackend(t *testing.T, script func(conn *websocket.Conn)) *config.Config {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courses/generate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"message": "Course generation started",
			"task_id": taskID,
		})
	})
	mux.HandleFunc("/api/v1/ws/course-generation/"+taskID, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if script != nil {
			script(conn)
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &config.Config{
		APIBase:              srv.URL,
		KeepaliveInterval:    50 * time.Millisecond,
		ReconnectDelay:       20 * time.Millisecond,
		MaxReconnectAttempts: 2,
		HandshakeTimeout:     time.Second,
		MaxFrameSize:         1024 * 1024,
		HTTPTimeout:          2 * time.Second,
		CourseName:           "Intro to Go",
	}
}

func send(conn *websocket.Conn, frame string) {
	_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func TestWatcher_FailedGeneration(t *testing.T) {
	cfg := scriptedBackend(t, func(conn *websocket.Conn) {
		send(conn, fmt.Sprintf(`{"type":"progress","task_id":%q,"step":"document_analysis","progress":20,"message":"reading"}`, taskID))
		send(conn, fmt.Sprintf(`{"type":"completion","task_id":%q,"success":false,"message":"LLM backend rejected the request"}`, taskID))
	})

	snap, err := New(cfg).Run(context.Background())
	require.NoError(t, err) // a failed task is a result, not a watch error

	assert.Equal(t, progress.StatusFailed, snap.Status)
	assert.Equal(t, "LLM backend rejected the request", snap.LastError)
	assert.Equal(t, 20, snap.Progress)
}

func TestWatcher_BackendErrorEvent(t *testing.T) {
	cfg := scriptedBackend(t, func(conn *websocket.Conn) {
		send(conn, fmt.Sprintf(`{"type":"error","task_id":%q,"message":"vector store unavailable","step":"document_analysis"}`, taskID))
	})

	snap, err := New(cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, progress.StatusError, snap.Status)
	assert.Equal(t, "vector store unavailable", snap.LastError)
	assert.Equal(t, "document_analysis", snap.Step)
}

func TestWatcher_ChannelExhaustionSurfacesAsError(t *testing.T) {
	// Backend accepts the request but the websocket endpoint does not
	// exist, so every dial fails until the reconnect budget runs out.
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courses/generate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"task_id": taskID})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &config.Config{
		APIBase:              srv.URL,
		KeepaliveInterval:    50 * time.Millisecond,
		ReconnectDelay:       20 * time.Millisecond,
		MaxReconnectAttempts: 2,
		HandshakeTimeout:     time.Second,
		MaxFrameSize:         1024 * 1024,
		HTTPTimeout:          2 * time.Second,
	}

	snap, err := New(cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, progress.StatusError, snap.Status)
	assert.Contains(t, snap.LastError, "reconnect attempts exhausted")
}

func TestWatcher_Timeout(t *testing.T) {
	cfg := scriptedBackend(t, nil) // channel stays silent forever
	cfg.WatchTimeout = 150 * time.Millisecond

	snap, err := New(cfg).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, progress.StatusInitializing, snap.Status)
}
