package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/eargollo/songhash/internal/history"
	"github.com/eargollo/songhash/internal/scan"
	"github.com/eargollo/songhash/internal/scheduler"
)

// StatusHandler handles GET /api/status.
type StatusHandler struct {
	Manager *scan.Manager
	History *history.Store
	Sched   *scheduler.Scheduler
	Version string
}

type statusResponse struct {
	Version           string          `json:"version"`
	ActiveScan        *activeScanInfo `json:"active_scan"`
	Schedule          scheduleInfo    `json:"schedule"`
	LastCompletedScan *history.Entry  `json:"last_completed_scan"`
}

type activeScanInfo struct {
	StartedAt   time.Time        `json:"started_at"`
	TriggeredBy string           `json:"triggered_by"`
	Library     string           `json:"library"`
	Libraries   int              `json:"libraries"`
	Progress    scanProgressInfo `json:"progress"`
}

type scanProgressInfo struct {
	FilesDiscovered int64  `json:"files_discovered"`
	FilesStale      int64  `json:"files_stale"`
	FilesHashed     int64  `json:"files_hashed"`
	BytesRead       int64  `json:"bytes_read"`
	BytesReadHuman  string `json:"bytes_read_human"`
	Errors          int64  `json:"errors"`
}

type scheduleInfo struct {
	Cron        string     `json:"cron"`
	NextRunAt   *time.Time `json:"next_run_at"`
	LastFiredAt *time.Time `json:"last_fired_at"`
	Skipped     int        `json:"skipped"`
}

// ServeHTTP returns the system status as JSON.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:    h.Version,
		ActiveScan: h.activeScan(),
	}
	if h.Sched != nil {
		resp.Schedule = scheduleInfo{
			Cron:        h.Sched.CronExpr(),
			NextRunAt:   h.Sched.NextRunAt(),
			LastFiredAt: h.Sched.LastFiredAt(),
			Skipped:     h.Sched.Skipped(),
		}
	}
	if h.History != nil {
		last, err := h.History.LastCompleted(r.Context())
		if err != nil {
			slog.Error("status: query last scan", "error", err)
		}
		resp.LastCompletedScan = last
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StatusHandler) activeScan() *activeScanInfo {
	active := h.Manager.ActiveScan()
	if active == nil {
		return nil
	}
	p := active.Progress
	bytesRead := p.BytesRead.Load()
	return &activeScanInfo{
		StartedAt:   active.StartedAt.UTC(),
		TriggeredBy: active.TriggeredBy,
		Library:     active.Library,
		Libraries:   active.Jobs,
		Progress: scanProgressInfo{
			FilesDiscovered: p.FilesDiscovered.Load(),
			FilesStale:      p.FilesStale.Load(),
			FilesHashed:     p.FilesHashed.Load(),
			BytesRead:       bytesRead,
			BytesReadHuman:  humanize.Bytes(uint64(bytesRead)),
			Errors:          p.Errors.Load(),
		},
	}
}
