package progress

type Status string

const (
	StatusIdle         Status = "idle"
	StatusInitializing Status = "initializing"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusError        Status = "error"
)

// Terminal reports whether s admits no further event-driven transitions.
// Only an explicit Reset leaves a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusError:
		return true
	}
	return false
}

// Snapshot is the single authoritative generation-state record consumed
// by whatever renders or reacts to task progress. ResultID is the id of
// the generated course once a successful completion arrives.
type Snapshot struct {
	Status    Status `json:"status"`
	Progress  int    `json:"progress"` // 0-100
	Step      string `json:"step,omitempty"`
	Message   string `json:"message,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
	ResultID  int    `json:"resultId,omitempty"`
	LastError string `json:"lastError,omitempty"`
}
