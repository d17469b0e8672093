// Package scheduler starts workflow executions on cron schedules. Schedules
// live in memory: they are part of host configuration, not execution state,
// so a restart re-registers them.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ExecutionStarter is the interface the scheduler uses to launch workflows.
// Satisfied by the engine (avoids import cycle).
type ExecutionStarter interface {
	StartExecution(ctx context.Context, workflowID string, seed map[string]any) (string, error)
}

// Schedule describes a recurring workflow launch.
type Schedule struct {
	ID         string
	WorkflowID string
	CronExpr   string
	Seed       map[string]any // initial context data for each launch
	Enabled    bool
	NextRunAt  time.Time
	LastRunAt  time.Time
	LastStatus string
}

// TickInterval is how often the scheduler checks for due schedules.
const TickInterval = 60 * time.Second

// Scheduler holds registered schedules and launches due executions.
type Scheduler struct {
	starter ExecutionStarter
	parser  cron.Parser
	logger  *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex

	schedMu   sync.Mutex
	schedules map[string]*Schedule

	inflightMu sync.Mutex
	inflight   map[string]struct{} // schedule IDs currently launching (dedup)
}

// NewScheduler creates a Scheduler.
func NewScheduler(starter ExecutionStarter, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		starter:   starter,
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:    logger,
		schedules: make(map[string]*Schedule),
		inflight:  make(map[string]struct{}),
	}
}

// Register validates a schedule's cron expression, stamps its first run
// time, and adds it. Registering an existing ID replaces the schedule.
func (s *Scheduler) Register(sched *Schedule) error {
	if sched.ID == "" || sched.WorkflowID == "" {
		return fmt.Errorf("schedule needs an id and a workflow id")
	}
	next, err := s.CalculateNextRun(sched.CronExpr, time.Now().UTC())
	if err != nil {
		return err
	}
	sched.NextRunAt = next

	s.schedMu.Lock()
	s.schedules[sched.ID] = sched
	s.schedMu.Unlock()
	return nil
}

// Remove deletes a schedule. Removing an unknown ID is a no-op.
func (s *Scheduler) Remove(scheduleID string) {
	s.schedMu.Lock()
	delete(s.schedules, scheduleID)
	s.schedMu.Unlock()
}

// Schedules returns a snapshot of all registered schedules.
func (s *Scheduler) Schedules() []Schedule {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()

	out := make([]Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, *sched)
	}
	return out
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick launches every enabled schedule that is due.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()

	for _, sched := range s.dueSchedules(now) {
		if !s.tryAcquire(sched.ID) {
			continue // previous launch still in flight
		}
		s.launch(ctx, sched, now)
		s.release(sched.ID)
	}
}

func (s *Scheduler) dueSchedules(now time.Time) []*Schedule {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()

	var due []*Schedule
	for _, sched := range s.schedules {
		if sched.Enabled && !sched.NextRunAt.After(now) {
			due = append(due, sched)
		}
	}
	return due
}

// launch starts one execution and advances the schedule's timestamps.
func (s *Scheduler) launch(ctx context.Context, sched *Schedule, now time.Time) {
	executionID, err := s.starter.StartExecution(ctx, sched.WorkflowID, sched.Seed)
	status := "success"
	if err != nil {
		status = "error"
		s.logger.Error("scheduled launch failed",
			slog.String("schedule_id", sched.ID),
			slog.String("workflow_id", sched.WorkflowID),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Info("scheduled execution started",
			slog.String("schedule_id", sched.ID),
			slog.String("workflow_id", sched.WorkflowID),
			slog.String("execution_id", executionID),
		)
	}

	next, nerr := s.CalculateNextRun(sched.CronExpr, now)
	if nerr != nil {
		// Expression was validated at Register; disable rather than spin.
		s.logger.Error("disabling schedule with unparseable cron expression",
			slog.String("schedule_id", sched.ID))
		next = time.Time{}
	}

	s.schedMu.Lock()
	sched.LastRunAt = now
	sched.LastStatus = status
	sched.NextRunAt = next
	sched.Enabled = sched.Enabled && nerr == nil
	s.schedMu.Unlock()
}

// tryAcquire marks a schedule in-flight, returning false if it already is.
func (s *Scheduler) tryAcquire(scheduleID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[scheduleID]; ok {
		return false
	}
	s.inflight[scheduleID] = struct{}{}
	return true
}

func (s *Scheduler) release(scheduleID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, scheduleID)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduling loop.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
