package sim

import (
	"fmt"
	"log"
	"time"

	"coursegen/event"
)

// The scripted pipeline, loosely the stages the real backend walks
// through when it synthesizes a course from documents.
var generationSteps = []struct {
	step     string
	progress int
	message  string
}{
	{"document_analysis", 15, "Analyzing source documents"},
	{"course_structure", 40, "Drafting course outline and objectives"},
	{"chapter_content", 75, "Generating chapter content"},
	{"knowledge_graph", 95, "Building the knowledge graph"},
}

func now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// runGeneration walks the scripted steps for one task, broadcasting a
// progress event per step and a completion event at the end. Late
// websocket subscribers simply miss the earlier events; the client is
// expected to tolerate gaps.
func (s *Server) runGeneration(t *GenerationTask, req generateRequest) {
	t.Status = TaskProcessing
	s.store.PutTask(t)

	for _, step := range generationSteps {
		time.Sleep(s.cfg.SimStepDelay)
		if step.step == s.cfg.SimFailStep {
			s.failGeneration(t, step.step)
			return
		}
		s.hub.broadcast(t.ID, event.Progress{
			Type:      event.TypeProgress,
			TaskID:    t.ID,
			Step:      step.step,
			Progress:  step.progress,
			Message:   step.message,
			Timestamp: now(),
		})
	}

	chapters := req.CourseConfig.Chapters
	if chapters <= 0 {
		chapters = 6
	}
	course := s.store.AllocateCourse(
		req.CourseConfig.Name,
		fmt.Sprintf("Auto-generated %s course for %s", req.CourseConfig.Level, req.CourseConfig.Audience),
		chapters,
	)

	t.Status = TaskCompleted
	t.CourseID = course.ID
	t.CompletedAt = time.Now()
	s.store.PutTask(t)

	s.hub.broadcast(t.ID, event.Completion{
		Type:      event.TypeCompletion,
		TaskID:    t.ID,
		Success:   true,
		Message:   "Course generation completed",
		Timestamp: now(),
		CourseID:  course.ID,
	})
	log.Printf("sim: task %s completed, course %d", t.ID, course.ID)
}

// failGeneration aborts the pipeline at the named step, the way the
// real backend reports an LLM stage blowing up: an error event with the
// failing step, then a completion with success=false.
func (s *Server) failGeneration(t *GenerationTask, step string) {
	msg := fmt.Sprintf("generation failed at step %s", step)

	t.Status = TaskFailed
	t.Error = msg
	t.CompletedAt = time.Now()
	s.store.PutTask(t)

	s.hub.broadcast(t.ID, event.Error{
		Type:      event.TypeError,
		TaskID:    t.ID,
		Message:   msg,
		Timestamp: now(),
		Step:      step,
	})
	s.hub.broadcast(t.ID, event.Completion{
		Type:      event.TypeCompletion,
		TaskID:    t.ID,
		Success:   false,
		Message:   msg,
		Timestamp: now(),
	})
	log.Printf("sim: task %s failed at step %s", t.ID, step)
}
