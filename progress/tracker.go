package progress

import (
	"sync"

	"coursegen/event"
)

// Tracker folds generation events into a single Snapshot. All
// transitions are total: an event that is not legal in the current
// status is dropped rather than producing an intermediate state, so a
// replayed or duplicated terminal event can never regress the snapshot.
//
// A mutex stands in for the source system's single event loop; every
// transition and every read is atomic with respect to the others.
type Tracker struct {
	mu   sync.Mutex
	snap Snapshot

	// OnChange, when set before the first transition, is invoked with a
	// copy of the snapshot after every accepted transition. It runs
	// outside the tracker's lock, so the hook may call back into the
	// tracker; delivery order matches transition order as long as
	// transitions come from a single goroutine, which is how a channel
	// read loop drives it.
	OnChange func(Snapshot)
}

func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{Status: StatusIdle}}
}

// Snapshot returns a copy of the current state.
func (tr *Tracker) Snapshot() Snapshot {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.snap
}

// Start moves an idle tracker to initializing for the given task. It
// returns false, leaving the snapshot untouched, when taskID is empty
// or a task is already in flight.
func (tr *Tracker) Start(taskID string) bool {
	if taskID == "" {
		return false
	}
	tr.mu.Lock()
	if tr.snap.Status != StatusIdle {
		tr.mu.Unlock()
		return false
	}
	tr.snap = Snapshot{
		Status: StatusInitializing,
		TaskID: taskID,
	}
	snap := tr.snap
	tr.mu.Unlock()
	tr.notify(snap)
	return true
}

// ApplyProgress handles a progress event. The first accepted progress
// moves initializing to running; afterwards step and message are
// overwritten and progress only ever grows (a late, lower value still
// refreshes step/message but never winds the bar back).
func (tr *Tracker) ApplyProgress(ev event.Progress) {
	tr.mu.Lock()
	switch tr.snap.Status {
	case StatusInitializing, StatusRunning:
	default:
		tr.mu.Unlock()
		return
	}
	tr.snap.Status = StatusRunning
	if ev.Progress > tr.snap.Progress {
		tr.snap.Progress = ev.Progress
	}
	tr.snap.Step = ev.Step
	tr.snap.Message = ev.Message
	snap := tr.snap
	tr.mu.Unlock()
	tr.notify(snap)
}

// ApplyCompletion handles the task's terminal event, branching on its
// Success field. Progress is deliberately left at the last reported
// value rather than forced to 100; the backend does not promise a final
// progress frame and the consumer can render completion regardless.
func (tr *Tracker) ApplyCompletion(ev event.Completion) {
	tr.mu.Lock()
	switch tr.snap.Status {
	case StatusInitializing, StatusRunning:
	default:
		tr.mu.Unlock()
		return
	}
	if ev.Success {
		tr.snap.Status = StatusCompleted
		tr.snap.ResultID = ev.CourseID
	} else {
		tr.snap.Status = StatusFailed
		tr.snap.LastError = ev.Message
	}
	tr.snap.Message = ev.Message
	snap := tr.snap
	tr.mu.Unlock()
	tr.notify(snap)
}

// ApplyError handles a backend-reported or locally synthesized failure.
func (tr *Tracker) ApplyError(ev event.Error) {
	tr.mu.Lock()
	switch tr.snap.Status {
	case StatusInitializing, StatusRunning:
	default:
		tr.mu.Unlock()
		return
	}
	tr.snap.Status = StatusError
	tr.snap.LastError = ev.Message
	tr.snap.Message = ev.Message
	if ev.Step != "" {
		tr.snap.Step = ev.Step
	}
	snap := tr.snap
	tr.mu.Unlock()
	tr.notify(snap)
}

// Reset returns the tracker to a pristine idle snapshot from any state.
// The caller is responsible for disposing any channel still bound to
// the old task.
func (tr *Tracker) Reset() {
	tr.mu.Lock()
	tr.snap = Snapshot{Status: StatusIdle}
	snap := tr.snap
	tr.mu.Unlock()
	tr.notify(snap)
}

// notify runs after the lock is released; the committed snapshot copy
// travels with the call.
func (tr *Tracker) notify(snap Snapshot) {
	if tr.OnChange != nil {
		tr.OnChange(snap)
	}
}
