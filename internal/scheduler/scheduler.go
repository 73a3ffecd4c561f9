package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/orelytics/docpipe/internal/common"
	"github.com/orelytics/docpipe/internal/telemetry"
)

// TaskFunc is the body of a scheduled task.
type TaskFunc func(ctx context.Context) error

// TaskConfig describes one named recurring task.
type TaskConfig struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run; zero means no per-run deadline.
	Timeout time.Duration
	// SkipThreshold is the consecutive-failure count after which due runs
	// are skipped with a failure-scaled backoff. Zero disables skipping.
	SkipThreshold int
}

// TaskStatus is a point-in-time snapshot of one task for operators.
type TaskStatus struct {
	Name                string        `json:"name"`
	Interval            time.Duration `json:"interval"`
	Running             bool          `json:"running"`
	Runs                int           `json:"runs"`
	Failures            int           `json:"failures"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastRunAt           *time.Time    `json:"last_run_at,omitempty"`
	LastError           string        `json:"last_error,omitempty"`
	NextEligibleAt      time.Time     `json:"next_eligible_at"`
}

type task struct {
	cfg TaskConfig
	fn  TaskFunc

	mu                  sync.Mutex
	running             bool
	runs                int
	failures            int
	consecutiveFailures int
	lastRunAt           time.Time
	lastErr             error
	nextEligible        time.Time
}

// Scheduler runs named tasks on fixed intervals from a single poll loop.
// Due tasks are dispatched asynchronously; a task never overlaps itself.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*task
	order  []string
	poll   time.Duration
	logger *slog.Logger
	wg     sync.WaitGroup
	now    func() time.Time
}

type Option func(*Scheduler)

// WithPollInterval sets the loop's tick; default one second.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.poll = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks:  make(map[string]*task),
		poll:   time.Second,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterTask adds a task. Names are unique; registering after Start is
// allowed and picked up on the next poll.
func (s *Scheduler) RegisterTask(cfg TaskConfig, fn TaskFunc) error {
	if cfg.Name == "" {
		return fmt.Errorf("task name required: %w", common.ErrInvalidInput)
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("task %q needs a positive interval: %w", cfg.Name, common.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[cfg.Name]; exists {
		return fmt.Errorf("task %q already registered: %w", cfg.Name, common.ErrDuplicate)
	}
	s.tasks[cfg.Name] = &task{cfg: cfg, fn: fn}
	s.order = append(s.order, cfg.Name)
	s.logger.Info("scheduler.task.registered", "task", cfg.Name, "interval", cfg.Interval)
	return nil
}

// Start runs the poll loop until ctx is canceled, then waits for in-flight
// task runs to return.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler.start", "poll", s.poll)
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	s.dispatchDue(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler.stop")
			s.wg.Wait()
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

func (s *Scheduler) dispatchDue(ctx context.Context) {
	s.mu.Lock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	s.mu.Unlock()

	now := s.now()
	for _, name := range names {
		s.mu.Lock()
		t := s.tasks[name]
		s.mu.Unlock()
		if t.tryClaim(now) {
			s.wg.Add(1)
			go s.runTask(ctx, t)
		}
	}
}

// tryClaim marks the task running if it is due, not already running and
// not inside a failure-backoff window. Claiming after the window elapses
// is the permitted retry: the failure count restarts so its next backoff
// is not inflated by failures the window already paid for.
func (t *task) tryClaim(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return false
	}
	if !t.lastRunAt.IsZero() && now.Sub(t.lastRunAt) < t.cfg.Interval {
		return false
	}
	if now.Before(t.nextEligible) {
		return false
	}
	if !t.nextEligible.IsZero() {
		t.consecutiveFailures = 0
		t.nextEligible = time.Time{}
	}
	t.running = true
	return true
}

func (s *Scheduler) runTask(ctx context.Context, t *task) {
	defer s.wg.Done()

	ctx = common.WithTaskName(ctx, t.cfg.Name)
	cancel := context.CancelFunc(func() {})
	if t.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
	}
	defer cancel()

	started := s.now()
	err := s.safeRun(ctx, t)
	s.settle(t, started, err)
}

// safeRun converts a panicking task into an error so one bad task cannot
// take the daemon down.
func (s *Scheduler) safeRun(ctx context.Context, t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return t.fn(ctx)
}

func (s *Scheduler) settle(t *task, started time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.lastRunAt = started
	t.runs++
	t.lastErr = err
	if err == nil {
		telemetry.SchedulerRuns.WithLabelValues(t.cfg.Name, "ok").Inc()
		t.consecutiveFailures = 0
		t.nextEligible = time.Time{}
		return
	}
	telemetry.SchedulerRuns.WithLabelValues(t.cfg.Name, "error").Inc()
	t.failures++
	t.consecutiveFailures++
	s.logger.Warn("scheduler.task.failed",
		"task", t.cfg.Name, "consecutive", t.consecutiveFailures, "error", err)
	if t.cfg.SkipThreshold > 0 && t.consecutiveFailures >= t.cfg.SkipThreshold {
		// Back off proportionally to how long the task has been failing.
		backoff := time.Duration(t.consecutiveFailures) * t.cfg.Interval
		t.nextEligible = s.now().Add(backoff)
		s.logger.Warn("scheduler.task.skipping",
			"task", t.cfg.Name, "until", t.nextEligible, "backoff", backoff)
	}
}

// Status snapshots every registered task in registration order.
func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	tasks := make([]*task, 0, len(names))
	for _, name := range names {
		tasks = append(tasks, s.tasks[name])
	}
	s.mu.Unlock()

	statuses := make([]TaskStatus, 0, len(tasks))
	for _, t := range tasks {
		t.mu.Lock()
		st := TaskStatus{
			Name:                t.cfg.Name,
			Interval:            t.cfg.Interval,
			Running:             t.running,
			Runs:                t.runs,
			Failures:            t.failures,
			ConsecutiveFailures: t.consecutiveFailures,
			NextEligibleAt:      t.nextEligible,
		}
		if !t.lastRunAt.IsZero() {
			lr := t.lastRunAt
			st.LastRunAt = &lr
		}
		if t.lastErr != nil {
			st.LastError = t.lastErr.Error()
		}
		t.mu.Unlock()
		statuses = append(statuses, st)
	}
	return statuses
}
