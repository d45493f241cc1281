package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration loaded from songhash.yaml.
type Config struct {
	LogLevel   string    `yaml:"log_level"   json:"log_level"`
	Extensions []string  `yaml:"extensions"  json:"extensions"`
	QueueDepth int       `yaml:"queue_depth" json:"queue_depth"`
	Walkers    int       `yaml:"walkers"     json:"walkers"`
	HistoryDB  string    `yaml:"history_db"  json:"-"`
	HTTPAddr   string    `yaml:"http_addr"   json:"-"`
	Schedule   string    `yaml:"schedule"    json:"schedule"`
	Libraries  []Library `yaml:"libraries"   json:"libraries"`
}

// Library is a directory tree the server scans into its database file.
type Library struct {
	Name          string `yaml:"name"           json:"name"`
	Directory     string `yaml:"directory"      json:"directory"`
	DatabaseFile  string `yaml:"database_file"  json:"database_file"`
	BaseDirectory string `yaml:"base_directory" json:"base_directory,omitempty"`
}

// applyDefaults fills zero/empty fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []string{".mp3", ".m4a"}
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = 8
	}
	if c.Walkers == 0 {
		c.Walkers = 4
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	for i := range c.Libraries {
		if c.Libraries[i].Name == "" {
			c.Libraries[i].Name = c.Libraries[i].Directory
		}
	}
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	if c.QueueDepth < 0 {
		return fmt.Errorf("queue_depth must be positive, got %d", c.QueueDepth)
	}
	if c.Walkers < 0 {
		return fmt.Errorf("walkers must be positive, got %d", c.Walkers)
	}
	seen := make(map[string]bool, len(c.Libraries))
	for i, l := range c.Libraries {
		if l.Directory == "" || l.DatabaseFile == "" {
			return fmt.Errorf("libraries[%d]: directory and database_file are required", i)
		}
		if seen[l.DatabaseFile] {
			return fmt.Errorf("libraries[%d]: database_file %q is used twice", i, l.DatabaseFile)
		}
		seen[l.DatabaseFile] = true
	}
	return nil
}

// Load reads and parses the YAML config file at path.
// If the file does not exist, Load returns a default Config so the CLI
// works without a config file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		var cfg Config
		cfg.applyDefaults()
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return &cfg, nil
}
