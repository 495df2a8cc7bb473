// Package watch composes the pieces end to end: submit a generation
// request, follow its progress channel, and return the final snapshot
// once the task reaches a terminal state.
package watch

import (
	"context"
	"fmt"
	"log"
	"sync"

	"coursegen/channel"
	"coursegen/client"
	"coursegen/config"
	"coursegen/progress"
)

type Watcher struct {
	cfg     *config.Config
	api     *client.Client
	tracker *progress.Tracker
}

func New(cfg *config.Config) *Watcher {
	return &Watcher{
		cfg:     cfg,
		api:     client.New(cfg),
		tracker: progress.NewTracker(),
	}
}

// Run submits the configured course request and blocks until the task
// terminates, the context is cancelled, or the configured watch timeout
// elapses. The returned snapshot is the tracker's final state either
// way; the error is non-nil only for submission failures and timeouts,
// never for a task that merely failed (that lives in the snapshot).
func (w *Watcher) Run(ctx context.Context) (progress.Snapshot, error) {
	resp, err := w.api.GenerateCourse(ctx, client.GenerateRequest{
		CourseConfig: client.CourseConfig{
			Name:     w.cfg.CourseName,
			Type:     w.cfg.CourseType,
			Audience: w.cfg.CourseAudience,
			Level:    w.cfg.CourseLevel,
			Duration: w.cfg.CourseDuration,
			Chapters: w.cfg.CourseChapters,
		},
	})
	if err != nil {
		return w.tracker.Snapshot(), fmt.Errorf("submit generation request: %w", err)
	}
	log.Printf("watch: generation accepted, task %s", resp.TaskID)

	done := make(chan struct{})
	var once sync.Once
	w.tracker.OnChange = func(s progress.Snapshot) {
		switch {
		case s.Status == progress.StatusRunning:
			log.Printf("watch: [%3d%%] %s: %s", s.Progress, s.Step, s.Message)
		case s.Status.Terminal():
			log.Printf("watch: task %s ended with status %s", s.TaskID, s.Status)
		}
		if s.Status.Terminal() {
			once.Do(func() { close(done) })
		}
	}
	if !w.tracker.Start(resp.TaskID) {
		return w.tracker.Snapshot(), fmt.Errorf("tracker rejected task id %q", resp.TaskID)
	}

	mgr, err := channel.NewManager(w.cfg, resp.TaskID, true, channel.Callbacks{
		OnProgress:   w.tracker.ApplyProgress,
		OnCompletion: w.tracker.ApplyCompletion,
		OnError:      w.tracker.ApplyError,
	})
	if err != nil {
		return w.tracker.Snapshot(), err
	}
	defer mgr.Dispose()
	mgr.Start()

	if w.cfg.WatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.WatchTimeout)
		defer cancel()
	}

	select {
	case <-done:
	case <-ctx.Done():
		return w.tracker.Snapshot(), fmt.Errorf("watch aborted: %w", ctx.Err())
	}

	snap := w.tracker.Snapshot()
	if snap.Status == progress.StatusCompleted && snap.ResultID != 0 {
		if course, err := w.api.GetCourse(ctx, snap.ResultID); err == nil {
			log.Printf("watch: course %d ready: %s (%d chapters)", course.ID, course.Title, course.Chapters)
		}
	}
	return snap, nil
}
