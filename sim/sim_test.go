package sim_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursegen/client"
	"coursegen/config"
	"coursegen/event"
	"coursegen/progress"
	"coursegen/sim"
	"coursegen/watch"
)

func simConfig(apiBase string) *config.Config {
	return &config.Config{
		APIBase:              apiBase,
		KeepaliveInterval:    50 * time.Millisecond,
		ReconnectDelay:       20 * time.Millisecond,
		MaxReconnectAttempts: 2,
		HandshakeTimeout:     time.Second,
		MaxFrameSize:         1024 * 1024,
		HTTPTimeout:          5 * time.Second,
		WatchTimeout:         10 * time.Second,
		CourseName:           "Intro to Go",
		CourseType:           "programming",
		CourseAudience:       "beginners",
		CourseLevel:          "beginner",
		CourseDuration:       "16h",
		CourseChapters:       4,
		SimStepDelay:         20 * time.Millisecond,
	}
}

func startSim(t *testing.T) (*httptest.Server, *config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := httptest.NewServer(sim.NewServer(simConfig("")).Router())
	t.Cleanup(srv.Close)
	return srv, simConfig(srv.URL)
}

func TestSim_FullGenerationPipeline(t *testing.T) {
	_, cfg := startSim(t)

	snap, err := watch.New(cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, progress.StatusCompleted, snap.Status)
	assert.NotZero(t, snap.ResultID)
	assert.NotEmpty(t, snap.TaskID)
	// The simulator's last progress frame reports 95 and completion
	// does not force the bar to 100.
	assert.Equal(t, 95, snap.Progress)
	assert.Equal(t, "knowledge_graph", snap.Step)

	course, err := client.New(cfg).GetCourse(context.Background(), snap.ResultID)
	require.NoError(t, err)
	assert.Equal(t, "Intro to Go", course.Title)
	assert.Equal(t, 4, course.Chapters)
	assert.Equal(t, "ready", course.Status)
}

func TestSim_BroadcastFramesDecodeWithBoundCodec(t *testing.T) {
	srv, cfg := startSim(t)

	resp, err := client.New(cfg).GenerateCourse(context.Background(), client.GenerateRequest{})
	require.NoError(t, err)

	wsURL := "ws" + srv.URL[len("http"):] + "/api/v1/ws/course-generation/" + resp.TaskID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Every broadcast frame must carry the type discriminator and pass
	// the consumer-side codec bound to this task.
	var sawProgress bool
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		ev, ok := event.Decode(resp.TaskID, data)
		require.Truef(t, ok, "frame did not decode: %s", data)
		switch ev := ev.(type) {
		case event.Progress:
			sawProgress = true
		case event.Completion:
			assert.True(t, sawProgress)
			assert.True(t, ev.Success)
			return
		}
	}
}

func TestSim_FailedStepReportsFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := simConfig("")
	cfg.SimFailStep = "chapter_content"

	srv := httptest.NewServer(sim.NewServer(cfg).Router())
	defer srv.Close()
	cfg.APIBase = srv.URL

	snap, err := watch.New(cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, progress.StatusError, snap.Status)
	assert.Contains(t, snap.LastError, "chapter_content")
	assert.Equal(t, "chapter_content", snap.Step)
	assert.Zero(t, snap.ResultID)

	// The server-side task record agrees with the stream.
	res, err := http.Get(srv.URL + "/api/v1/tasks/" + snap.TaskID)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var task struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&task))
	assert.Equal(t, "failed", task.Status)
	assert.Contains(t, task.Error, "chapter_content")
}

func TestSim_UnknownTaskIs404(t *testing.T) {
	srv, _ := startSim(t)

	res, err := http.Get(srv.URL + "/api/v1/tasks/task-missing")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestSim_AnswersPingWithPong(t *testing.T) {
	srv, _ := startSim(t)

	wsURL := "ws" + srv.URL[len("http"):] + "/api/v1/ws/course-generation/task-any"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(event.Ping)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, event.Pong, string(msg))
}

func TestSim_RejectsWhenOutOfMemoryBudget(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := simConfig("")
	cfg.ThrottleFreeMem = 1 << 62 // impossible requirement

	srv := httptest.NewServer(sim.NewServer(cfg).Router())
	defer srv.Close()
	cfg.APIBase = srv.URL

	_, err := client.New(cfg).GenerateCourse(context.Background(), client.GenerateRequest{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "503")
	assert.ErrorContains(t, err, "not enough free memory")
}

func TestSim_UnknownCourseIs404(t *testing.T) {
	_, cfg := startSim(t)

	_, err := client.New(cfg).GetCourse(context.Background(), 999)
	require.Error(t, err)
	assert.ErrorContains(t, err, "404")
}
