package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"fibpool/internal/coordinator"
	"fibpool/internal/transport"
)

// 環境変数名
const (
	EnvJobs          = "FIBPOOL_JOBS"
	EnvWorkload      = "FIBPOOL_WORKLOAD"
	EnvWorkers       = "FIBPOOL_WORKERS"
	EnvFunction      = "FIBPOOL_FUNCTION"
	EnvStrategy      = "FIBPOOL_STRATEGY"
	EnvSinkCapacity  = "FIBPOOL_SINK_CAPACITY"
	EnvDelay         = "FIBPOOL_DELAY"
	EnvTransport     = "FIBPOOL_TRANSPORT"
	EnvRemoteURLs    = "FIBPOOL_REMOTE_URLS"
	EnvLogLevel      = "FIBPOOL_LOG_LEVEL"
	EnvLogFormat     = "FIBPOOL_LOG_FORMAT"
	EnvHistoryDriver = "FIBPOOL_HISTORY_DRIVER"
	EnvHistoryDSN    = "FIBPOOL_HISTORY_DSN"
	EnvAddr          = "FIBPOOL_ADDR"
)

// Env は環境変数（と .env ファイル）から得た設定
// 未設定の項目は nil または空文字
type Env struct {
	Jobs         *int
	Workload     *int
	Workers      *int
	Function     string
	Strategy     string
	SinkCapacity *int
	Delay        *time.Duration
	Transport    string
	RemoteURLs   []string

	LogLevel      string
	LogFormat     string
	HistoryDriver string
	HistoryDSN    string
	Addr          string
}

// LoadEnv は環境変数を読み込む
// files を省略するとカレントディレクトリの .env を（あれば）使う
// プロセスの環境変数は .env の値より優先する
func LoadEnv(files ...string) (*Env, error) {
	fileVars := map[string]string{}
	if len(files) == 0 {
		if vars, err := godotenv.Read(); err == nil {
			fileVars = vars
		}
	} else {
		vars, err := godotenv.Read(files...)
		if err != nil {
			return nil, fmt.Errorf("failed to read env file: %w", err)
		}
		fileVars = vars
	}

	lookup := func(k string) string {
		if v, ok := os.LookupEnv(k); ok {
			return strings.TrimSpace(v)
		}
		return strings.TrimSpace(fileVars[k])
	}

	env := &Env{
		Function:      lookup(EnvFunction),
		Strategy:      lookup(EnvStrategy),
		Transport:     lookup(EnvTransport),
		LogLevel:      lookup(EnvLogLevel),
		LogFormat:     lookup(EnvLogFormat),
		HistoryDriver: lookup(EnvHistoryDriver),
		HistoryDSN:    lookup(EnvHistoryDSN),
		Addr:          lookup(EnvAddr),
	}

	var err error
	if env.Jobs, err = intVar(EnvJobs, lookup(EnvJobs)); err != nil {
		return nil, err
	}
	if env.Workload, err = intVar(EnvWorkload, lookup(EnvWorkload)); err != nil {
		return nil, err
	}
	if env.Workers, err = intVar(EnvWorkers, lookup(EnvWorkers)); err != nil {
		return nil, err
	}
	if env.SinkCapacity, err = intVar(EnvSinkCapacity, lookup(EnvSinkCapacity)); err != nil {
		return nil, err
	}
	if v := lookup(EnvDelay); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: %s=%q is not a valid duration: %w", EnvDelay, v, err)
		}
		env.Delay = &d
	}
	if v := lookup(EnvRemoteURLs); v != "" {
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				env.RemoteURLs = append(env.RemoteURLs, u)
			}
		}
	}

	return env, nil
}

func intVar(k, v string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("config: %s=%q is not an integer: %w", k, v, err)
	}
	return &n, nil
}

// Apply は設定済みの値で config を上書きする
func (e *Env) Apply(config *coordinator.Config) error {
	if e.Jobs != nil {
		config.JobCount = *e.Jobs
	}
	if e.Workload != nil {
		config.Workload = *e.Workload
	}
	if e.Workers != nil {
		config.WorkerCount = *e.Workers
	}
	if e.Function != "" {
		config.Function = e.Function
	}
	if e.Strategy != "" {
		strategy, err := coordinator.ParseStrategy(e.Strategy)
		if err != nil {
			return err
		}
		config.Strategy = strategy
	}
	if e.SinkCapacity != nil {
		config.SinkCapacity = *e.SinkCapacity
	}
	if e.Delay != nil {
		config.Delay = *e.Delay
	}
	if e.Transport != "" {
		kind, err := transport.ParseKind(e.Transport)
		if err != nil {
			return err
		}
		config.Transport = kind
	}
	if len(e.RemoteURLs) > 0 {
		config.RemoteURLs = append([]string(nil), e.RemoteURLs...)
	}
	return nil
}
