package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/eargollo/songhash/internal/api"
	"github.com/eargollo/songhash/internal/db"
	"github.com/eargollo/songhash/internal/history"
	"github.com/eargollo/songhash/internal/scan"
	"github.com/eargollo/songhash/internal/scheduler"
)

type fixture struct {
	srv     *httptest.Server
	mgr     *scan.Manager
	store   *history.Store
	library string
}

func newFixture(t *testing.T, withLibrary bool) *fixture {
	t.Helper()
	conn, err := db.OpenMigrated(":memory:")
	if err != nil {
		t.Fatalf("open history db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	store := history.New(conn)

	cfg := scan.DefaultConfig()
	cfg.Recorder = store

	var jobs []scan.Job
	root := t.TempDir()
	if withLibrary {
		music := filepath.Join(root, "music")
		if err := os.MkdirAll(filepath.Join(music, "album"), 0o755); err != nil {
			t.Fatal(err)
		}
		for _, name := range []string{"album/a.mp3", "album/b.m4a", "notes.txt"} {
			if err := os.WriteFile(filepath.Join(music, filepath.FromSlash(name)), []byte(name), 0o644); err != nil {
				t.Fatal(err)
			}
		}
		jobs = append(jobs, scan.Job{
			Name:         "music",
			Directory:    music,
			DatabaseFile: filepath.Join(root, "music.tsv"),
		})
	}
	mgr := scan.NewManager(jobs, cfg)

	sched := scheduler.New()
	if err := sched.SetRescan("0 3 * * *", mgr); err != nil {
		t.Fatal(err)
	}
	sched.Start()
	t.Cleanup(sched.Stop)

	srv := httptest.NewServer(api.NewRouter(mgr, store, sched, "test"))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, mgr: mgr, store: store, library: root}
}

func (f *fixture) do(t *testing.T, method, path string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	return resp, []byte(buf.String())
}

func (f *fixture) waitIdle(t *testing.T) {
	t.Helper()
	active := f.mgr.ActiveScan()
	if active == nil {
		return
	}
	select {
	case <-active.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("scan did not finish")
	}
}

func TestStatusIdle(t *testing.T) {
	f := newFixture(t, true)
	resp, body := f.do(t, http.MethodGet, "/api/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var got struct {
		Version    string          `json:"version"`
		ActiveScan json.RawMessage `json:"active_scan"`
		Schedule   struct {
			Cron      string     `json:"cron"`
			NextRunAt *time.Time `json:"next_run_at"`
		} `json:"schedule"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Version != "test" {
		t.Errorf("version = %q", got.Version)
	}
	if string(got.ActiveScan) != "null" {
		t.Errorf("active_scan = %s, want null", got.ActiveScan)
	}
	if got.Schedule.Cron != "0 3 * * *" {
		t.Errorf("cron = %q", got.Schedule.Cron)
	}
	if got.Schedule.NextRunAt == nil {
		t.Error("next_run_at missing")
	}
}

func TestCreateScanRecordsHistory(t *testing.T) {
	f := newFixture(t, true)

	resp, body := f.do(t, http.MethodPost, "/api/scans")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST status = %d, body %s", resp.StatusCode, body)
	}
	f.waitIdle(t)

	resp, body = f.do(t, http.MethodGet, "/api/scans")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d", resp.StatusCode)
	}
	var list struct {
		Items []history.Entry `json:"items"`
		Total int             `json:"total"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 1 || len(list.Items) != 1 {
		t.Fatalf("got %d entries (total %d), want 1", len(list.Items), list.Total)
	}
	e := list.Items[0]
	if e.Status != string(scan.StatusCompleted) {
		t.Errorf("status = %q, error %q", e.Status, e.Error)
	}
	if e.FilesHashed != 2 || e.Records != 2 || !e.DatabaseWritten {
		t.Errorf("entry = %+v", e)
	}
	if _, err := os.Stat(filepath.Join(f.library, "music.tsv")); err != nil {
		t.Errorf("database not written: %v", err)
	}

	resp, body = f.do(t, http.MethodGet, "/api/scans/"+strconv.FormatInt(e.ID, 10))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET by id status = %d, body %s", resp.StatusCode, body)
	}
}

func TestCreateScanWithoutLibraries(t *testing.T) {
	f := newFixture(t, false)
	resp, body := f.do(t, http.MethodPost, "/api/scans")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "NO_LIBRARIES") {
		t.Errorf("body = %s", body)
	}
}

func TestGetScanErrors(t *testing.T) {
	f := newFixture(t, false)
	cases := []struct {
		path string
		want int
	}{
		{"/api/scans/abc", http.StatusBadRequest},
		{"/api/scans/999", http.StatusNotFound},
	}
	for _, tc := range cases {
		resp, _ := f.do(t, http.MethodGet, tc.path)
		if resp.StatusCode != tc.want {
			t.Errorf("GET %s = %d, want %d", tc.path, resp.StatusCode, tc.want)
		}
	}
}

func TestCancelWhenIdle(t *testing.T) {
	f := newFixture(t, false)
	resp, body := f.do(t, http.MethodDelete, "/api/scans/current")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "NO_ACTIVE_SCAN") {
		t.Errorf("body = %s", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, false)
	resp, body := f.do(t, http.MethodGet, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "songhash_scan_in_progress") {
		t.Errorf("metrics output missing songhash_scan_in_progress")
	}
}
