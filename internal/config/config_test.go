package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvConfigFile, EnvPort, EnvLogLevel, EnvLogFormat, EnvDataDir,
		EnvFFProbe, EnvBuildWorkers, EnvWarmInterval,
	} {
		t.Setenv(key, "")
	}
}

func TestNew_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDataDir, t.TempDir())

	cfg, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.BuildWorkers() != DefaultBuildWorkers {
		t.Errorf("BuildWorkers() = %d, want %d", cfg.BuildWorkers(), DefaultBuildWorkers)
	}
	if cfg.WarmInterval() != DefaultWarmInterval {
		t.Errorf("WarmInterval() = %v, want %v", cfg.WarmInterval(), DefaultWarmInterval)
	}
	if cfg.Source() != "" {
		t.Errorf("Source() = %q, want empty without a config file", cfg.Source())
	}
	if !strings.HasSuffix(cfg.DBPath(), DBFilename) {
		t.Errorf("DBPath() = %q", cfg.DBPath())
	}
	if filepath.Dir(cfg.LockPath()) != cfg.DataDir() {
		t.Errorf("LockPath() = %q not in data dir %q", cfg.LockPath(), cfg.DataDir())
	}
}

func TestNew_FileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	data := `
port = 9000
log_level = "debug"
ffprobe = "/opt/ffmpeg/bin/ffprobe"
build_workers = 2
warm_interval = "30s"
export_fps = 25.0
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvPort, "9100")
	t.Setenv(EnvDataDir, dir)

	cfg, err := New(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9100 {
		t.Errorf("Port() = %d, want env override 9100", cfg.Port())
	}
	if cfg.LogLevel() != "debug" {
		t.Errorf("LogLevel() = %q, want debug", cfg.LogLevel())
	}
	if cfg.FFProbePath() != "/opt/ffmpeg/bin/ffprobe" {
		t.Errorf("FFProbePath() = %q", cfg.FFProbePath())
	}
	if cfg.BuildWorkers() != 2 {
		t.Errorf("BuildWorkers() = %d, want 2", cfg.BuildWorkers())
	}
	if cfg.WarmInterval() != 30*time.Second {
		t.Errorf("WarmInterval() = %v, want 30s", cfg.WarmInterval())
	}
	if cfg.ExportFPS() != 25 {
		t.Errorf("ExportFPS() = %v, want 25", cfg.ExportFPS())
	}
	if cfg.Source() != path {
		t.Errorf("Source() = %q, want %q", cfg.Source(), path)
	}
}

func TestNew_DefaultFileInDataDir(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	if err := os.WriteFile(filepath.Join(dir, ConfigFilename), []byte("build_workers = 8\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BuildWorkers() != 8 {
		t.Errorf("BuildWorkers() = %d, want 8", cfg.BuildWorkers())
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "bad port env", env: map[string]string{EnvPort: "abc"}},
		{name: "port out of range", env: map[string]string{EnvPort: "70000"}},
		{name: "zero workers", env: map[string]string{EnvBuildWorkers: "0"}},
		{name: "bad interval", env: map[string]string{EnvWarmInterval: "soon"}},
		{name: "tiny interval", env: map[string]string{EnvWarmInterval: "1ms"}},
		{name: "bad format", env: map[string]string{EnvLogFormat: "xml"}},
		{name: "unknown key", file: "colour = \"red\"\n"},
		{name: "malformed toml", file: "port = \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			t.Setenv(EnvDataDir, dir)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := ""
			if tt.file != "" {
				path = filepath.Join(dir, "bad.toml")
				if err := os.WriteFile(path, []byte(tt.file), 0o644); err != nil {
					t.Fatal(err)
				}
			}

			if _, err := New(path); err == nil {
				t.Fatalf("New() expected error for %s", tt.name)
			}
		})
	}
}

func TestNew_MissingExplicitFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDataDir, t.TempDir())

	if _, err := New(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("New() expected error for missing explicit config file")
	}
}
