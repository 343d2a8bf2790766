package coordinator

import (
	"sort"
	"time"
)

// QuickPreset は動作確認用の軽い実行設定を返す
func QuickPreset() Config {
	return Config{
		Name:        "quick",
		Description: "Light workload for verification",
		JobCount:    40,
		Workload:    10,
		WorkerCount: 8,
		Strategy:    StrategyStatic,
	}
}

// TPLPreset はタスク並列版と同じ条件を返す
// 各ワーカーは1ジョブごとに10ms待機する
func TPLPreset() Config {
	return Config{
		Name:        "tpl",
		Description: "40 x fib(35) on 8 workers with a 10ms pause after each job",
		JobCount:    40,
		Workload:    35,
		WorkerCount: 8,
		Strategy:    StrategyStatic,
		Delay:       10 * time.Millisecond,
	}
}

// BrowserPreset はブラウザワーカー版と同じ条件を返す
func BrowserPreset() Config {
	return Config{
		Name:        "browser",
		Description: "40 x fib(38) on 8 workers",
		JobCount:    40,
		Workload:    38,
		WorkerCount: 8,
		Strategy:    StrategyStatic,
	}
}

// ThreadsPreset はスレッド版と同じ条件を返す
func ThreadsPreset() Config {
	return Config{
		Name:        "threads",
		Description: "50 x fib(32) on 10 workers",
		JobCount:    50,
		Workload:    32,
		WorkerCount: 10,
		Strategy:    StrategyStatic,
	}
}

// SequentialPreset は1ワーカーで元の順に処理する
func SequentialPreset() Config {
	return Config{
		Name:        "sequential",
		Description: "40 x fib(25) on a single worker",
		JobCount:    40,
		Workload:    25,
		WorkerCount: 1,
		Strategy:    StrategyStatic,
	}
}

var presets = map[string]func() Config{
	"quick":      QuickPreset,
	"tpl":        TPLPreset,
	"browser":    BrowserPreset,
	"threads":    ThreadsPreset,
	"sequential": SequentialPreset,
}

// GetPreset は名前からプリセットを取得する
func GetPreset(name string) (Config, bool) {
	if fn, ok := presets[name]; ok {
		return fn(), true
	}
	return Config{}, false
}

// ListPresets は利用可能なプリセット名を返す
func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
