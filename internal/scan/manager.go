package scan

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eargollo/songhash/internal/metrics"
)

// ErrAlreadyRunning is returned when a scan is started while one is in progress.
var ErrAlreadyRunning = errors.New("a scan is already in progress")

// ErrNoActiveScan is returned when cancel is called with no scan running.
var ErrNoActiveScan = errors.New("no scan is currently running")

// ErrNoJobs is returned when a scan is started with no libraries configured.
var ErrNoJobs = errors.New("no libraries configured")

// ActiveScan holds live information about the running scan.
type ActiveScan struct {
	StartedAt   time.Time
	TriggeredBy string
	Library     string // job currently being scanned
	Jobs        int
	Progress    *Progress

	done chan struct{}
}

// Done is closed once every job of the scan has finished.
func (a *ActiveScan) Done() <-chan struct{} { return a.done }

// Manager runs the configured jobs one after another and enforces a
// single-active-scan invariant, so two server-triggered scans never write the
// same database file. It is safe for concurrent use.
type Manager struct {
	mu   sync.Mutex
	jobs []Job
	cfg  Config

	active   *ActiveScan
	cancelFn context.CancelFunc
}

// NewManager creates a Manager.
func NewManager(jobs []Job, cfg Config) *Manager {
	return &Manager{jobs: jobs, cfg: cfg}
}

// UpdateConfig replaces the jobs/cfg used for future scans.
// It does NOT affect a currently running scan.
func (m *Manager) UpdateConfig(jobs []Job, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = jobs
	m.cfg = cfg
}

// Start launches an asynchronous scan of every job. Returns an ActiveScan
// snapshot or ErrAlreadyRunning if a scan is already in progress.
func (m *Manager) Start(parentCtx context.Context, triggeredBy string) (*ActiveScan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrAlreadyRunning
	}
	if len(m.jobs) == 0 {
		return nil, ErrNoJobs
	}

	jobs := append([]Job(nil), m.jobs...)
	cfg := m.cfg
	scanCtx, cancel := context.WithCancel(parentCtx)

	active := &ActiveScan{
		StartedAt:   time.Now(),
		TriggeredBy: triggeredBy,
		Jobs:        len(jobs),
		Progress:    &Progress{},
		done:        make(chan struct{}),
	}
	m.active = active
	m.cancelFn = cancel
	metrics.ScanInProgress.Set(1)

	go func() {
		defer close(active.done)
		defer cancel()

		for _, job := range jobs {
			if scanCtx.Err() != nil {
				break
			}
			progress := &Progress{}
			m.mu.Lock()
			active.Library = job.Name
			active.Progress = progress
			m.mu.Unlock()

			if _, err := New(job, cfg).Run(scanCtx, triggeredBy, progress); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("scan run error", "library", job.Name, "error", err)
			}
		}

		m.mu.Lock()
		m.active = nil
		m.cancelFn = nil
		m.mu.Unlock()
		metrics.ScanInProgress.Set(0)
	}()

	snap := *active
	return &snap, nil
}

// Cancel stops the currently running scan. Returns ErrNoActiveScan if idle.
func (m *Manager) Cancel() (*ActiveScan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil, ErrNoActiveScan
	}

	snap := *m.active
	m.cancelFn()
	return &snap, nil
}

// ActiveScan returns a snapshot of the running scan, or nil when idle.
func (m *Manager) ActiveScan() *ActiveScan {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	snap := *m.active
	return &snap
}
