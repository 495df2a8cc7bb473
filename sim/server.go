// Package sim is a stand-in course-generation backend for local
// development and tests: it accepts generation requests, runs a
// scripted generation, and streams progress over the same websocket
// contract the real backend uses. It is not a job scheduler; every
// accepted task runs to completion on its own goroutine.
package sim

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lithammer/shortuuid/v4"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"coursegen/config"
	"coursegen/event"
)

type Server struct {
	cfg      *config.Config
	store    *Store
	hub      *hub
	engine   *gin.Engine
	upgrader websocket.Upgrader
}

func NewServer(cfg *config.Config) *Server {
	s := &Server{
		cfg:   cfg,
		store: NewStore(),
		hub:   newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.engine = s.setupRouter()
	return s
}

func (s *Server) setupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/courses/generate", s.handleGenerate)
		v1.GET("/courses/:courseId", s.handleGetCourse)
		v1.GET("/tasks/:taskId", s.handleGetTask)
		v1.GET("/ws/course-generation/:taskId", s.handleWebSocket)
	}
	return r
}

// Router exposes the underlying handler; main mounts it on its own
// http.Server, tests on httptest.
func (s *Server) Router() http.Handler {
	return s.engine
}

type generateRequest struct {
	DocumentIDs  []int `json:"document_ids"`
	CourseConfig struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		Audience string `json:"audience"`
		Level    string `json:"level"`
		Duration string `json:"duration"`
		Chapters int    `json:"chapters"`
	} `json:"course_config"`
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Refuse new work when the host is under pressure, same policy the
	// real backend applies before scheduling an LLM pipeline.
	if err := s.checkResources(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	t := &GenerationTask{
		ID:        fmt.Sprintf("task-%s", shortuuid.New()),
		Status:    TaskQueued,
		CreatedAt: time.Now(),
	}
	s.store.PutTask(t)
	go s.runGeneration(t, req)

	log.Printf("sim: accepted generation task %s for course %q", t.ID, req.CourseConfig.Name)
	c.JSON(http.StatusOK, gin.H{
		"message": "Course generation started",
		"task_id": t.ID,
	})
}

func (s *Server) handleGetCourse(c *gin.Context) {
	var id int
	if _, err := fmt.Sscanf(c.Param("courseId"), "%d", &id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}
	course, found := s.store.GetCourse(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
		return
	}
	c.JSON(http.StatusOK, course)
}

// handleGetTask serves a task's server-side record, the poll-based
// fallback for consumers without a websocket.
func (s *Server) handleGetTask(c *gin.Context) {
	t, found := s.store.GetTask(c.Param("taskId"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, t)
}

// handleWebSocket subscribes the caller to one task's event stream and
// answers literal ping probes with pong until the peer goes away.
func (s *Server) handleWebSocket(c *gin.Context) {
	taskID := c.Param("taskId")
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	ws := &wsClient{conn: conn}
	s.hub.add(taskID, ws)
	defer func() {
		s.hub.remove(taskID, ws)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if string(data) == event.Ping {
			if err := ws.writeText([]byte(event.Pong)); err != nil {
				return
			}
		}
	}
}

// checkResources mirrors the admission throttle of the production
// pipeline: require some idle CPU and free memory before taking a job.
func (s *Server) checkResources() error {
	p, err := cpu.Percent(0, false)
	if err != nil {
		log.Printf("sim: warning: could not get CPU usage: %v", err)
	} else if len(p) > 0 && p[0] > (100.0-s.cfg.ThrottleCPU) {
		return fmt.Errorf("not enough idle CPU. Current usage: %.2f%%, Idle threshold: %.2f%%", p[0], s.cfg.ThrottleCPU)
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Printf("sim: warning: could not get memory usage: %v", err)
	} else if vm.Available < uint64(s.cfg.ThrottleFreeMem) {
		return fmt.Errorf("not enough free memory. Available: %d, Required: %d", vm.Available, s.cfg.ThrottleFreeMem)
	}
	return nil
}
