package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eargollo/songhash/internal/scan"
)

// Trigger starts a scan of every configured library. *scan.Manager
// satisfies it.
type Trigger interface {
	Start(ctx context.Context, triggeredBy string) (*scan.ActiveScan, error)
}

// Scheduler fires periodic rescans through a Trigger.
type Scheduler struct {
	mu        sync.RWMutex
	c         *cron.Cron
	entryID   cron.EntryID
	cronExpr  string
	lastFired time.Time
	skipped   int
}

// New creates a stopped Scheduler. Call Start to activate it.
func New() *Scheduler {
	return &Scheduler{
		c: cron.New(cron.WithLogger(cron.DiscardLogger)),
	}
}

// SetRescan installs the rescan schedule, replacing any previous one. An
// invalid expression leaves the previous schedule in place.
func (s *Scheduler) SetRescan(expr string, t Trigger) error {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("parse cron expression %q: %w", expr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entryID != 0 {
		s.c.Remove(s.entryID)
	}
	s.entryID = s.c.Schedule(sched, cron.FuncJob(func() { s.fire(t) }))
	s.cronExpr = expr
	slog.Info("scheduler: rescan set", "cron", expr)
	return nil
}

// fire starts a scheduled scan. A scan that is still running from the
// previous tick or from a manual trigger makes this tick a no-op.
func (s *Scheduler) fire(t Trigger) {
	s.mu.Lock()
	s.lastFired = time.Now()
	s.mu.Unlock()

	_, err := t.Start(context.Background(), "schedule")
	switch {
	case errors.Is(err, scan.ErrAlreadyRunning):
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		slog.Info("scheduled rescan skipped, scan already running")
	case errors.Is(err, scan.ErrNoJobs):
		slog.Warn("scheduled rescan skipped, no libraries configured")
	case err != nil:
		slog.Warn("scheduled rescan start", "error", err)
	default:
		slog.Info("scheduled rescan started")
	}
}

// ClearRescan removes the rescan schedule, if any.
func (s *Scheduler) ClearRescan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entryID != 0 {
		s.c.Remove(s.entryID)
		s.entryID = 0
		s.cronExpr = ""
	}
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the cron loop and waits for a firing tick to return.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

// NextRunAt returns the next scheduled time, or nil if no rescan is set or
// the scheduler is not running.
func (s *Scheduler) NextRunAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entryID == 0 {
		return nil
	}
	entry := s.c.Entry(s.entryID)
	if entry.ID == 0 || entry.Next.IsZero() {
		return nil
	}
	t := entry.Next
	return &t
}

// LastFiredAt returns when the rescan last fired, or nil if it never has.
func (s *Scheduler) LastFiredAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastFired.IsZero() {
		return nil
	}
	t := s.lastFired
	return &t
}

// Skipped counts ticks that found a scan already running.
func (s *Scheduler) Skipped() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.skipped
}

// CronExpr returns the current cron expression.
func (s *Scheduler) CronExpr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cronExpr
}
