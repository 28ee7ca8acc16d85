// Package config loads storyfile settings.
//
// Values come from, in increasing precedence: built-in defaults, a YAML file,
// STORYFILE_* environment variables, then command line flags that were
// explicitly set.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/maruel/storyfile/internal/storage"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the data directory.
const FileName = "storyfile.yaml"

// Config holds all settings of the storyfile command.
type Config struct {
	// ConfigFile overrides <DataDir>/storyfile.yaml.
	ConfigFile string `yaml:"-" env:"STORYFILE_CONFIG"`
	DataDir    string `yaml:"-" env:"STORYFILE_DATA_DIR"`

	Backend     string        `yaml:"backend" env:"STORYFILE_BACKEND"`
	OutputDir   string        `yaml:"output_dir" env:"STORYFILE_OUTPUT_DIR"`
	Git         bool          `yaml:"git" env:"STORYFILE_GIT"`
	AuthorName  string        `yaml:"author_name" env:"STORYFILE_AUTHOR_NAME"`
	AuthorEmail string        `yaml:"author_email" env:"STORYFILE_AUTHOR_EMAIL"`
	Throttle    time.Duration `yaml:"throttle" env:"STORYFILE_THROTTLE"`
	Concurrency int           `yaml:"concurrency" env:"STORYFILE_CONCURRENCY"`
	LogLevel    string        `yaml:"log_level" env:"STORYFILE_LOG_LEVEL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:     "./data",
		Backend:     storage.BackendJSONL,
		Throttle:    2 * time.Second,
		Concurrency: 4,
		LogLevel:    "info",
	}
}

// RegisterFlags binds the configuration fields to fs.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "Configuration file (default <data-dir>/"+FileName+")")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "Data directory")
	fs.StringVar(&c.Backend, "backend", c.Backend, "Story store backend (jsonl, sqlite)")
	fs.StringVar(&c.OutputDir, "output-dir", c.OutputDir, "Directory receiving exported story files (default <data-dir>/export)")
	fs.BoolVar(&c.Git, "git", c.Git, "Record exported files in a git repository")
	fs.StringVar(&c.AuthorName, "author-name", c.AuthorName, "Git author name for export commits")
	fs.StringVar(&c.AuthorEmail, "author-email", c.AuthorEmail, "Git author email for export commits")
	fs.DurationVar(&c.Throttle, "throttle", c.Throttle, "Minimum interval between exports when watching")
	fs.IntVar(&c.Concurrency, "concurrency", c.Concurrency, "Projects exported in parallel")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
}

// Load applies the configuration file and the environment on top of c.
//
// fs must have been parsed; values of flags explicitly set on it win over both
// layers. A missing file is ignored unless it was named explicitly.
func (c *Config) Load(fs *flag.FlagSet) error {
	explicit := map[string]string{}
	if fs != nil {
		fs.Visit(func(f *flag.Flag) {
			explicit[f.Name] = f.Value.String()
		})
	}

	// The environment may relocate the file, so resolve it first.
	fromEnv := *c
	if err := env.Parse(&fromEnv); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	path := c.ConfigFile
	if _, ok := explicit["config"]; !ok && fromEnv.ConfigFile != "" {
		path = fromEnv.ConfigFile
	}
	required := path != ""
	if !required {
		dataDir := c.DataDir
		if _, ok := explicit["data-dir"]; !ok {
			dataDir = fromEnv.DataDir
		}
		path = filepath.Join(dataDir, FileName)
	}
	if err := c.loadFile(path, required); err != nil {
		return err
	}

	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	for name, value := range explicit {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("flag -%s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path) //nolint:gosec // User-specified config path
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data directory is required")
	}
	switch c.Backend {
	case storage.BackendJSONL, storage.BackendSQLite:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.Throttle <= 0 {
		return fmt.Errorf("throttle must be positive, got %s", c.Throttle)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// ExportDir returns the directory receiving exported story files.
func (c *Config) ExportDir() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return filepath.Join(c.DataDir, "export")
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", c.LogLevel)
	}
}
