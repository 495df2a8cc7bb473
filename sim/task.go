package sim

import (
	"sync"
	"time"
)

type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// GenerationTask is the simulator's server-side record of one job.
type GenerationTask struct {
	ID          string     `json:"id"`
	Status      TaskStatus `json:"status"`
	CourseID    int        `json:"courseId,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt time.Time  `json:"completedAt,omitempty"`
}

// Course is what a successful generation leaves behind.
type Course struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Chapters    int    `json:"chapters"`
}

// Store keeps tasks and finished courses in memory.
type Store struct {
	tasks   sync.Map // task id -> *GenerationTask
	courses sync.Map // course id -> *Course

	mu           sync.Mutex
	nextCourseID int
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) PutTask(t *GenerationTask) {
	s.tasks.Store(t.ID, t)
}

func (s *Store) GetTask(id string) (*GenerationTask, bool) {
	if val, ok := s.tasks.Load(id); ok {
		return val.(*GenerationTask), true
	}
	return nil, false
}

// AllocateCourse persists a generated course under a fresh id.
func (s *Store) AllocateCourse(title, description string, chapters int) *Course {
	s.mu.Lock()
	s.nextCourseID++
	id := s.nextCourseID
	s.mu.Unlock()

	course := &Course{
		ID:          id,
		Title:       title,
		Description: description,
		Status:      "ready",
		Chapters:    chapters,
	}
	s.courses.Store(id, course)
	return course
}

func (s *Store) GetCourse(id int) (*Course, bool) {
	if val, ok := s.courses.Load(id); ok {
		return val.(*Course), true
	}
	return nil, false
}
