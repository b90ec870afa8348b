package processing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"motion-transfer-backend/internal/database"
	"motion-transfer-backend/internal/metrics"
	"motion-transfer-backend/internal/models"
)

type Options struct {
	Delay             time.Duration
	CompletionTimeout time.Duration
	Generator         Generator
	Metrics           *metrics.Metrics
}

// Trigger drives the project lifecycle: it moves a pending project to processing and
// schedules its completion as a cancellable task.
type Trigger struct {
	store     database.ProjectStore
	generator Generator
	delay     time.Duration
	timeout   time.Duration
	metrics   *metrics.Metrics
	log       logrus.FieldLogger

	mu     sync.Mutex
	tasks  map[int]*task
	closed bool
	wg     sync.WaitGroup
}

type task struct {
	timer *time.Timer
}

func NewTrigger(store database.ProjectStore, opts Options, log logrus.FieldLogger) *Trigger {
	if opts.CompletionTimeout <= 0 {
		opts.CompletionTimeout = 30 * time.Second
	}
	if opts.Generator == nil {
		opts.Generator = PlaceholderGenerator{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Trigger{
		store:     store,
		generator: opts.Generator,
		delay:     opts.Delay,
		timeout:   opts.CompletionTimeout,
		metrics:   opts.Metrics,
		log:       log.WithField("component", "processing"),
		tasks:     make(map[int]*task),
	}
}

// Start moves a pending project to processing, schedules its completion and returns the
// project as it is right now (still processing). Projects that are not pending are
// rejected with models.ErrInvalidTransition and keep any task already scheduled.
func (t *Trigger) Start(ctx context.Context, id int) (*models.Project, error) {
	project, err := t.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if project.Status != models.StatusPending {
		return nil, fmt.Errorf("project %d is %s: %w", id, project.Status, models.ErrInvalidTransition)
	}

	if _, err := t.store.UpdateProject(ctx, id, models.ProjectUpdate{
		Status: models.StatusPtr(models.StatusProcessing),
	}); err != nil {
		return nil, err
	}
	t.metrics.ProcessingStarted.Inc()
	t.schedule(id)

	t.log.WithFields(logrus.Fields{"project_id": id, "delay": t.delay.String()}).Info("processing started")

	return t.store.GetProject(ctx, id)
}

// Fail moves a processing project to failed and drops its scheduled completion.
func (t *Trigger) Fail(ctx context.Context, id int, reason string) error {
	t.Cancel(id)

	if _, err := t.store.UpdateProject(ctx, id, models.ProjectUpdate{
		Status: models.StatusPtr(models.StatusFailed),
	}); err != nil {
		return fmt.Errorf("failed to mark project %d failed: %w", id, err)
	}
	t.metrics.ProcessingFinished.WithLabelValues(string(models.StatusFailed)).Inc()
	t.log.WithFields(logrus.Fields{"project_id": id, "reason": reason}).Warn("processing failed")
	return nil
}

// Resume reschedules completion for projects left in processing by a previous run,
// whose timers died with that process.
func (t *Trigger) Resume(ctx context.Context) (int, error) {
	projects, err := t.store.ListProjectsByStatus(ctx, models.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to list processing projects: %w", err)
	}
	for _, p := range projects {
		t.schedule(p.ID)
	}
	if len(projects) > 0 {
		t.log.WithField("count", len(projects)).Info("resumed processing projects")
	}
	return len(projects), nil
}

// Cancel stops the scheduled completion for id. It reports whether a task was stopped
// before it fired.
func (t *Trigger) Cancel(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	tk, ok := t.tasks[id]
	if !ok {
		return false
	}
	return t.stopLocked(id, tk)
}

// Pending reports whether a completion is scheduled for id.
func (t *Trigger) Pending(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.tasks[id]
	return ok
}

// Shutdown stops every scheduled task and waits for completions already running.
func (t *Trigger) Shutdown() {
	t.mu.Lock()
	t.closed = true
	for id, tk := range t.tasks {
		t.stopLocked(id, tk)
	}
	t.mu.Unlock()

	t.wg.Wait()
}

func (t *Trigger) schedule(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	if existing, ok := t.tasks[id]; ok {
		t.stopLocked(id, existing)
	}

	tk := &task{}
	t.wg.Add(1)
	tk.timer = time.AfterFunc(t.delay, func() {
		defer t.wg.Done()
		t.run(id, tk)
	})
	t.tasks[id] = tk
	t.metrics.ScheduledJobs.Inc()
}

// stopLocked must be called with t.mu held.
func (t *Trigger) stopLocked(id int, tk *task) bool {
	delete(t.tasks, id)
	t.metrics.ScheduledJobs.Dec()
	if tk.timer.Stop() {
		t.wg.Done()
		return true
	}
	return false
}

func (t *Trigger) run(id int, tk *task) {
	t.mu.Lock()
	if t.tasks[id] != tk {
		t.mu.Unlock()
		return
	}
	delete(t.tasks, id)
	t.metrics.ScheduledJobs.Dec()
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	if err := t.complete(ctx, id); err != nil {
		t.log.WithError(err).WithField("project_id", id).Error("processing completion failed")
	}
}

func (t *Trigger) complete(ctx context.Context, id int) error {
	project, err := t.store.GetProject(ctx, id)
	if err != nil {
		return err
	}

	out, err := t.generator.Generate(ctx, *project)
	if err != nil {
		return t.Fail(ctx, id, err.Error())
	}

	if _, err := t.store.UpdateProject(ctx, id, models.ProjectUpdate{
		Status:            models.StatusPtr(models.StatusCompleted),
		IdentityFrameURL:  models.StringPtr(out.IdentityFrameURL),
		GeneratedVideoURL: models.StringPtr(out.GeneratedVideoURL),
	}); err != nil {
		return fmt.Errorf("failed to complete project %d: %w", id, err)
	}
	t.metrics.ProcessingFinished.WithLabelValues(string(models.StatusCompleted)).Inc()
	t.log.WithField("project_id", id).Info("processing completed")
	return nil
}
