// Package event defines the closed set of messages a course-generation
// task publishes over its websocket channel, plus the codec that turns
// raw frames into them.
package event

import "encoding/json"

type Type string

const (
	TypeProgress   Type = "progress"
	TypeCompletion Type = "completion"
	TypeError      Type = "error"
)

// Keepalive tokens exchanged as literal text frames. The client probes
// with Ping; the server answers with Pong. Neither reaches the codec.
const (
	Ping = "ping"
	Pong = "pong"
)

// Progress reports an intermediate generation step. Data carries an
// optional step-specific payload that this subsystem never inspects.
// Every event carries its Type discriminator on the wire; producers
// must set it or consumers will drop the frame.
type Progress struct {
	Type      Type            `json:"type"`
	TaskID    string          `json:"task_id"`
	Step      string          `json:"step"`
	Progress  int             `json:"progress"` // 0-100
	Message   string          `json:"message"`
	Timestamp float64         `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Completion is the terminal event of a task. CourseID is set when
// Success is true and the backend persisted a course.
type Completion struct {
	Type      Type    `json:"type"`
	TaskID    string  `json:"task_id"`
	Success   bool    `json:"success"`
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
	CourseID  int     `json:"course_id,omitempty"`
}

// Error reports a task-scoped failure from the backend, or is
// synthesized locally when the channel gives up reconnecting.
type Error struct {
	Type      Type    `json:"type"`
	TaskID    string  `json:"task_id"`
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
	Step      string  `json:"step,omitempty"`
}
