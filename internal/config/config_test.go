package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eargollo/songhash/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "songhash.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "libraries:\n  - directory: /music\n    database_file: /data/music.tsv\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.QueueDepth != 8 {
		t.Errorf("QueueDepth = %d, want 8", cfg.QueueDepth)
	}
	if len(cfg.Extensions) != 2 || cfg.Extensions[0] != ".mp3" || cfg.Extensions[1] != ".m4a" {
		t.Errorf("Extensions = %v", cfg.Extensions)
	}
	if cfg.HTTPAddr == "" || cfg.LogLevel != "info" {
		t.Errorf("expected http_addr and log_level defaults, got %+v", cfg)
	}
	if cfg.Libraries[0].Name != "/music" {
		t.Errorf("library name should default to its directory, got %q", cfg.Libraries[0].Name)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load("/nonexistent/path/songhash.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Walkers != 4 {
		t.Errorf("Walkers = %d, want 4", cfg.Walkers)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.QueueDepth != 8 {
		t.Errorf("QueueDepth = %d, want 8", cfg.QueueDepth)
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":      "queue_dept: 4\n",
		"negative depth":     "queue_depth: -1\n",
		"library no db file": "libraries:\n  - directory: /music\n",
		"shared db file": "libraries:\n" +
			"  - {directory: /a, database_file: /d.tsv}\n" +
			"  - {directory: /b, database_file: /d.tsv}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := config.Load(writeConfig(t, body)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
