// Package config handles linkrot configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BrowserConfig controls the Chrome session.
type BrowserConfig struct {
	// Remote is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via the rod launcher.
	Remote          string        `yaml:"remote"`
	Headless        bool          `yaml:"headless"`
	Width           int           `yaml:"width"`
	Height          int           `yaml:"height"`
	PageLoadTimeout time.Duration `yaml:"page_load_timeout"`
	ScriptTimeout   time.Duration `yaml:"script_timeout"`
}

// DirsConfig names the on-disk layout under BaseDir.
type DirsConfig struct {
	BaseDir       string `yaml:"base_dir"`
	ProjectSubdir string `yaml:"project_subdir"`
	PagesSubdir   string `yaml:"pages_subdir"`
	DataStore     string `yaml:"data_store"`
	Report        string `yaml:"report"`
	RunLog        string `yaml:"run_log"`
}

// Config is the top-level linkrot configuration.
type Config struct {
	// PDFPath and PDFURL locate the seed document; explicit URLs on the
	// command line take precedence over both.
	PDFPath string `yaml:"pdf_path"`
	PDFURL  string `yaml:"pdf_url"`

	// RetentionCap bounds each target's sample history.
	RetentionCap int `yaml:"retention_cap"`

	// DwellTime is the minimum settle time a page stays open between
	// navigation and capture.
	DwellTime time.Duration `yaml:"page_dwell_time"`

	// CompressionTolerance is the absolute window around the
	// compressed-size mode still considered matching.
	CompressionTolerance int `yaml:"compression_length_tolerance"`

	// ScreenshotConfidence is the minimum mode confidence (percent,
	// exclusive) before screenshot bit distance is consulted.
	ScreenshotConfidence int `yaml:"screenshot_diff_confidence"`

	// ScreenshotTolerance is the bit-distance bound (exclusive).
	ScreenshotTolerance int `yaml:"screenshot_diff_tolerance"`

	// KeepLocalRecords persists the captured HTML and screenshot of each
	// page under the pages directory.
	KeepLocalRecords bool `yaml:"keep_local_records"`

	// LocalPageCount is how many archived captures to keep per target.
	LocalPageCount int `yaml:"num_of_local_pages"`

	// Markers maps target URLs to substrings expected in their content.
	Markers map[string]string `yaml:"markers"`

	Browser BrowserConfig `yaml:"browser"`
	Dirs    DirsConfig    `yaml:"dirs"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadFile reads a YAML configuration file and applies defaults to any
// field left unset.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// WriteFile serializes the configuration to path. A first run uses this to
// drop a default file the operator can edit.
func (c *Config) WriteFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: serialize: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.RetentionCap <= 0 {
		c.RetentionCap = 5
	}
	if c.DwellTime <= 0 {
		c.DwellTime = 45 * time.Second
	}
	if c.CompressionTolerance <= 0 {
		c.CompressionTolerance = 300
	}
	if c.ScreenshotConfidence <= 0 {
		c.ScreenshotConfidence = 60
	}
	if c.ScreenshotTolerance <= 0 {
		c.ScreenshotTolerance = 3
	}
	if c.LocalPageCount <= 0 {
		c.LocalPageCount = 2
	}
	if c.Browser.Width <= 0 {
		c.Browser.Width = 1080
	}
	if c.Browser.Height <= 0 {
		c.Browser.Height = 2000
	}
	if c.Browser.PageLoadTimeout <= 0 {
		c.Browser.PageLoadTimeout = 15 * time.Second
	}
	if c.Browser.ScriptTimeout <= 0 {
		c.Browser.ScriptTimeout = 15 * time.Second
	}
	if c.Dirs.BaseDir == "" {
		c.Dirs.BaseDir = "data"
	}
	if c.Dirs.ProjectSubdir == "" {
		c.Dirs.ProjectSubdir = "linkrot"
	}
	if c.Dirs.PagesSubdir == "" {
		c.Dirs.PagesSubdir = "pages"
	}
	if c.Dirs.DataStore == "" {
		c.Dirs.DataStore = "store.json"
	}
	if c.Dirs.Report == "" {
		c.Dirs.Report = "report.html"
	}
	if c.Dirs.RunLog == "" {
		c.Dirs.RunLog = "runlog.db"
	}
}
