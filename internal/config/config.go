// Package config provides configuration management for the composer.
// Values come from defaults, then an optional TOML file, then environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultPort         = 8788
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "auto"
	DefaultDataDir      = ".heimdex-composer"
	DefaultFFProbe      = "ffprobe"
	DefaultProbeTimeout = 30 * time.Second
	DefaultBuildWorkers = 4
	DefaultWarmInterval = 5 * time.Second
	DefaultExportFPS    = 29.97

	EnvConfigFile   = "COMPOSER_CONFIG"
	EnvPort         = "COMPOSER_PORT"
	EnvLogLevel     = "COMPOSER_LOG_LEVEL"
	EnvLogFormat    = "COMPOSER_LOG_FORMAT"
	EnvDataDir      = "COMPOSER_DATA_DIR"
	EnvFFProbe      = "COMPOSER_FFPROBE"
	EnvBuildWorkers = "COMPOSER_BUILD_WORKERS"
	EnvWarmInterval = "COMPOSER_WARM_INTERVAL"

	DBFilename     = "composer.db"
	LockFilename   = "composer.lock"
	ConfigFilename = "composer.toml"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	LogFormat() string
	DataDir() string
	DBPath() string
	LockPath() string
	ExportDir() string
	FFProbePath() string
	ProbeTimeout() time.Duration
	BuildWorkers() int
	WarmInterval() time.Duration
	ExportFPS() float64
}

// fileConfig mirrors the TOML file layout. Zero values keep the default.
type fileConfig struct {
	Port         int     `toml:"port"`
	LogLevel     string  `toml:"log_level"`
	LogFormat    string  `toml:"log_format"`
	DataDir      string  `toml:"data_dir"`
	FFProbe      string  `toml:"ffprobe"`
	ProbeTimeout string  `toml:"probe_timeout"`
	BuildWorkers int     `toml:"build_workers"`
	WarmInterval string  `toml:"warm_interval"`
	ExportFPS    float64 `toml:"export_fps"`
}

// EnvConfig is the resolved configuration.
type EnvConfig struct {
	port         int
	logLevel     string
	logFormat    string
	dataDir      string
	ffprobe      string
	probeTimeout time.Duration
	buildWorkers int
	warmInterval time.Duration
	exportFPS    float64

	source string
}

// New resolves the configuration. path names a TOML file; when empty,
// COMPOSER_CONFIG and then <data dir>/composer.toml are tried. A missing
// default file is not an error, a missing explicit one is.
func New(path string) (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:         DefaultPort,
		logLevel:     DefaultLogLevel,
		logFormat:    DefaultLogFormat,
		dataDir:      defaultDataDir(),
		ffprobe:      DefaultFFProbe,
		probeTimeout: DefaultProbeTimeout,
		buildWorkers: DefaultBuildWorkers,
		warmInterval: DefaultWarmInterval,
		exportFPS:    DefaultExportFPS,
	}

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfigFile)
		explicit = path != ""
	}
	if !explicit {
		dd := os.Getenv(EnvDataDir)
		if dd == "" {
			dd = cfg.dataDir
		}
		path = filepath.Join(dd, ConfigFilename)
	}

	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) loadFile(path string, explicit bool) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var fc fileConfig
	if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	c.source = path

	if fc.Port != 0 {
		c.port = fc.Port
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if fc.LogFormat != "" {
		c.logFormat = fc.LogFormat
	}
	if fc.DataDir != "" {
		c.dataDir = expandHome(fc.DataDir)
	}
	if fc.FFProbe != "" {
		c.ffprobe = fc.FFProbe
	}
	if fc.ProbeTimeout != "" {
		d, err := time.ParseDuration(fc.ProbeTimeout)
		if err != nil {
			return fmt.Errorf("invalid probe_timeout: %w", err)
		}
		c.probeTimeout = d
	}
	if fc.BuildWorkers != 0 {
		c.buildWorkers = fc.BuildWorkers
	}
	if fc.WarmInterval != "" {
		d, err := time.ParseDuration(fc.WarmInterval)
		if err != nil {
			return fmt.Errorf("invalid warm_interval: %w", err)
		}
		c.warmInterval = d
	}
	if fc.ExportFPS != 0 {
		c.exportFPS = fc.ExportFPS
	}
	return nil
}

func (c *EnvConfig) loadEnv() error {
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}
	if lf := os.Getenv(EnvLogFormat); lf != "" {
		c.logFormat = lf
	}
	if dd := os.Getenv(EnvDataDir); dd != "" {
		c.dataDir = expandHome(dd)
	}
	if fp := os.Getenv(EnvFFProbe); fp != "" {
		c.ffprobe = fp
	}
	if w := os.Getenv(EnvBuildWorkers); w != "" {
		n, err := strconv.Atoi(w)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvBuildWorkers, err)
		}
		c.buildWorkers = n
	}
	if wi := os.Getenv(EnvWarmInterval); wi != "" {
		d, err := time.ParseDuration(wi)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvWarmInterval, err)
		}
		c.warmInterval = d
	}
	return nil
}

func (c *EnvConfig) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.port)
	}
	if c.buildWorkers < 1 {
		return fmt.Errorf("invalid build workers %d: must be at least 1", c.buildWorkers)
	}
	if c.warmInterval < 100*time.Millisecond {
		return fmt.Errorf("invalid warm interval %s: must be at least 100ms", c.warmInterval)
	}
	if c.probeTimeout <= 0 {
		return fmt.Errorf("invalid probe timeout %s", c.probeTimeout)
	}
	if c.exportFPS <= 0 {
		return fmt.Errorf("invalid export fps %v", c.exportFPS)
	}
	switch strings.ToLower(c.logFormat) {
	case "auto", "json", "text":
	default:
		return fmt.Errorf("invalid log format %q: want auto, json or text", c.logFormat)
	}
	return nil
}

func (c *EnvConfig) Port() int                   { return c.port }
func (c *EnvConfig) LogLevel() string            { return c.logLevel }
func (c *EnvConfig) LogFormat() string           { return c.logFormat }
func (c *EnvConfig) DataDir() string             { return c.dataDir }
func (c *EnvConfig) FFProbePath() string         { return c.ffprobe }
func (c *EnvConfig) ProbeTimeout() time.Duration { return c.probeTimeout }
func (c *EnvConfig) BuildWorkers() int           { return c.buildWorkers }
func (c *EnvConfig) WarmInterval() time.Duration { return c.warmInterval }
func (c *EnvConfig) ExportFPS() float64          { return c.exportFPS }

// Source returns the config file that was read, or "" when none was.
func (c *EnvConfig) Source() string { return c.source }

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// LockPath returns the path of the single-writer lock file.
func (c *EnvConfig) LockPath() string {
	return filepath.Join(c.dataDir, LockFilename)
}

// ExportDir returns the default directory for exported EDL files.
func (c *EnvConfig) ExportDir() string {
	return filepath.Join(c.dataDir, "exports")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
