package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fibpool/internal/config"
	"fibpool/internal/coordinator"
	"fibpool/internal/logger"
	"fibpool/internal/transport"
)

func TestBuildRunConfigDefault(t *testing.T) {
	cfg, fileConfig, err := buildRunConfig(options{set: map[string]bool{}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fileConfig != nil {
		t.Error("expected no file config")
	}
	if cfg.Name != "quick" || cfg.JobCount != 40 || cfg.WorkerCount != 8 {
		t.Errorf("expected the quick preset, got %+v", cfg)
	}
}

func TestBuildRunConfigPreset(t *testing.T) {
	cfg, _, err := buildRunConfig(options{preset: "tpl", set: map[string]bool{}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workload != 35 || cfg.Delay != 10*time.Millisecond {
		t.Errorf("expected the tpl preset, got %+v", cfg)
	}

	if _, _, err := buildRunConfig(options{preset: "nonexistent", set: map[string]bool{}}, nil); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestBuildRunConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	content := `
run:
  name: from-file
  jobs: 10
  workload: 20
  workers: 2
history:
  driver: sqlite
  dsn: file.db
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	workers := 4
	env := &config.Env{Workers: &workers, Transport: "inprocess"}
	o := options{
		configFile: path,
		preset:     "browser",
		jobs:       0,
		strategy:   "on-demand",
		failEvery:  3,
		set:        map[string]bool{"jobs": true},
	}

	cfg, fileConfig, err := buildRunConfig(o, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != "from-file" || cfg.Workload != 20 {
		t.Errorf("config file should win over the preset, got %+v", cfg)
	}
	if cfg.WorkerCount != 4 {
		t.Errorf("env should override the file, got %d workers", cfg.WorkerCount)
	}
	if cfg.JobCount != 0 {
		t.Errorf("explicit -jobs 0 should override the file, got %d", cfg.JobCount)
	}
	if cfg.Strategy != coordinator.StrategyOnDemand || cfg.Transport != transport.KindInProcess {
		t.Errorf("unexpected strategy/transport %s/%s", cfg.Strategy, cfg.Transport)
	}
	if !cfg.EnableChaos || cfg.Chaos.FailEvery != 3 {
		t.Errorf("expected chaos from flags, got %+v", cfg.Chaos)
	}

	driver, dsn := resolveHistory(o, env, fileConfig)
	if driver != "sqlite" || dsn != "file.db" {
		t.Errorf("expected history from the file, got %s %s", driver, dsn)
	}
}

func TestBuildRunConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		o    options
	}{
		{"zero workers", options{workers: 0, set: map[string]bool{"workers": true}}},
		{"bad strategy", options{strategy: "stealing", set: map[string]bool{}}},
		{"bad transport", options{transport: "pigeon", set: map[string]bool{}}},
		{"remote without urls", options{transport: "remote", set: map[string]bool{}}},
		{"missing file", options{configFile: "/nonexistent/run.yaml", set: map[string]bool{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := buildRunConfig(tt.o, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestResolveHistory(t *testing.T) {
	tests := []struct {
		name   string
		o      options
		env    *config.Env
		driver string
		dsn    string
	}{
		{"disabled", options{}, nil, "", ""},
		{"sqlite default path", options{historyDrv: "sqlite"}, nil, "sqlite", "fibpool.db"},
		{"flag wins", options{historyDrv: "postgres", historyDSN: "postgres://x"}, &config.Env{HistoryDriver: "sqlite"}, "postgres", "postgres://x"},
		{"env", options{}, &config.Env{HistoryDriver: "sqlite", HistoryDSN: "env.db"}, "sqlite", "env.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, dsn := resolveHistory(tt.o, tt.env, nil)
			if driver != tt.driver || dsn != tt.dsn {
				t.Errorf("expected %q %q, got %q %q", tt.driver, tt.dsn, driver, dsn)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" ws://a:1, ,ws://b:2 ")
	if len(got) != 2 || got[0] != "ws://a:1" || got[1] != "ws://b:2" {
		t.Errorf("unexpected list %v", got)
	}
}

func TestSetLogging(t *testing.T) {
	t.Cleanup(func() {
		logger.Default.SetLevel(logger.LevelInfo)
		logger.Default.SetFormat(logger.FormatText)
	})

	// フラグが環境変数より優先する
	if err := setLogging("debug", "error", "", "json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !logger.Default.Enabled(logger.LevelDebug) {
		t.Error("expected debug level from the flag")
	}

	if err := setLogging("", "", "xml", ""); err == nil {
		t.Error("expected error for unknown log format")
	}
	if err := setLogging("", "loud", "", ""); err == nil {
		t.Error("expected error for unknown log level")
	}
}
