package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fibpool/internal/chaos"
	"fibpool/internal/coordinator"
	"fibpool/internal/partition"
	"fibpool/internal/transport"

	"gopkg.in/yaml.v3"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Run     RunConfig     `yaml:"run" json:"run"`
	History HistoryConfig `yaml:"history" json:"history"`
}

// RunConfig は実行設定
// Jobs, Workload, Workers は明示の 0 を未指定と区別するためポインタにする
type RunConfig struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Jobs        *int   `yaml:"jobs" json:"jobs"`
	Workload    *int   `yaml:"workload" json:"workload"`
	Workers     *int   `yaml:"workers" json:"workers"`
	Function    string `yaml:"function" json:"function"`
	Strategy    string `yaml:"strategy" json:"strategy"`

	SinkCapacity int    `yaml:"sink_capacity" json:"sink_capacity"`
	Delay        string `yaml:"delay" json:"delay"`
	DelayJitter  string `yaml:"delay_jitter" json:"delay_jitter"`

	Transport  string   `yaml:"transport" json:"transport"`
	RemoteURLs []string `yaml:"remote_urls" json:"remote_urls"`

	Chaos ChaosConfig `yaml:"chaos" json:"chaos"`
}

// ChaosConfig はカオス設定
type ChaosConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	FailEvery  int    `yaml:"fail_every" json:"fail_every"`
	FailSeqs   []int  `yaml:"fail_seqs" json:"fail_seqs"`
	DelayEvery int    `yaml:"delay_every" json:"delay_every"`
	Delay      string `yaml:"delay" json:"delay"`
}

// HistoryConfig は実行履歴の保存先
type HistoryConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// ToRunConfig はFileConfigをcoordinator.Configに変換する
// 指定のない項目はデフォルト値のまま
func (f *FileConfig) ToRunConfig() (coordinator.Config, error) {
	rc := f.Run

	config := coordinator.DefaultConfig()

	if rc.Name != "" {
		config.Name = rc.Name
	}
	if rc.Description != "" {
		config.Description = rc.Description
	}
	if rc.Jobs != nil {
		config.JobCount = *rc.Jobs
	}
	if rc.Workload != nil {
		config.Workload = *rc.Workload
	}
	if rc.Workers != nil {
		config.WorkerCount = *rc.Workers
	}
	if rc.Function != "" {
		config.Function = rc.Function
	}
	if rc.Strategy != "" {
		strategy, err := coordinator.ParseStrategy(rc.Strategy)
		if err != nil {
			return config, err
		}
		config.Strategy = strategy
	}
	if rc.SinkCapacity > 0 {
		config.SinkCapacity = rc.SinkCapacity
	}
	if rc.Delay != "" {
		d, err := time.ParseDuration(rc.Delay)
		if err != nil {
			return config, fmt.Errorf("invalid delay: %w", err)
		}
		config.Delay = d
	}
	if rc.DelayJitter != "" {
		d, err := time.ParseDuration(rc.DelayJitter)
		if err != nil {
			return config, fmt.Errorf("invalid delay_jitter: %w", err)
		}
		config.DelayJitter = d
	}

	// Transport設定
	if rc.Transport != "" {
		kind, err := transport.ParseKind(rc.Transport)
		if err != nil {
			return config, err
		}
		config.Transport = kind
	}
	if len(rc.RemoteURLs) > 0 {
		config.RemoteURLs = append([]string(nil), rc.RemoteURLs...)
	}

	// Chaos設定
	config.EnableChaos = rc.Chaos.Enabled
	config.Chaos = chaos.Config{
		FailEvery:  rc.Chaos.FailEvery,
		FailSeqs:   append([]int(nil), rc.Chaos.FailSeqs...),
		DelayEvery: rc.Chaos.DelayEvery,
	}
	if rc.Chaos.Delay != "" {
		d, err := time.ParseDuration(rc.Chaos.Delay)
		if err != nil {
			return config, fmt.Errorf("invalid chaos delay: %w", err)
		}
		config.Chaos.Delay = d
		if config.Chaos.DelayEvery == 0 {
			config.Chaos.DelayEvery = 1
		}
	}

	return config, nil
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	rc := f.Run

	if rc.Jobs != nil && *rc.Jobs < 0 {
		return fmt.Errorf("jobs must be non-negative")
	}

	if rc.Workers != nil && *rc.Workers <= 0 {
		return fmt.Errorf("%w: workers %d", partition.ErrInvalidWorkerCount, *rc.Workers)
	}

	if rc.SinkCapacity < 0 {
		return fmt.Errorf("sink_capacity must be non-negative")
	}

	if rc.Chaos.FailEvery < 0 {
		return fmt.Errorf("chaos.fail_every must be non-negative")
	}

	if rc.Chaos.DelayEvery < 0 {
		return fmt.Errorf("chaos.delay_every must be non-negative")
	}

	switch f.History.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("history.driver must be sqlite or postgres, got %s", f.History.Driver)
	}

	return nil
}
