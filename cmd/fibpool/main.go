// Package main is the entry point for fibpool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fibpool/internal/api"
	"fibpool/internal/compute"
	"fibpool/internal/config"
	"fibpool/internal/coordinator"
	"fibpool/internal/logger"
	"fibpool/internal/store"
	"fibpool/internal/transport"
)

var (
	version = "dev"
)

// options はコマンドラインフラグの値
// set には明示的に指定されたフラグ名が入る
type options struct {
	configFile   string
	preset       string
	jobs         int
	workload     int
	workers      int
	function     string
	strategy     string
	sinkCapacity int
	delay        time.Duration
	transport    string
	remote       string
	failEvery    int
	historyDrv   string
	historyDSN   string
	set          map[string]bool
}

func main() {
	var o options

	// フラグ定義
	flag.StringVar(&o.configFile, "config", "", "設定ファイルパス (YAML/JSON)")
	flag.StringVar(&o.preset, "preset", "", "プリセット名 (quick, tpl, browser, threads, sequential)")
	flag.IntVar(&o.jobs, "jobs", 0, "ジョブ数")
	flag.IntVar(&o.workload, "workload", 0, "各ジョブの入力値")
	flag.IntVar(&o.workers, "workers", 0, "ワーカー数")
	flag.StringVar(&o.function, "function", "", "計算関数 ("+strings.Join(compute.Names(), ", ")+")")
	flag.StringVar(&o.strategy, "strategy", "", "割り当て戦略 (static, on-demand)")
	flag.IntVar(&o.sinkCapacity, "sink-capacity", 0, "結果シンクの上限 (0で無制限)")
	flag.DurationVar(&o.delay, "delay", 0, "各ジョブ後の待機時間 (例: 10ms)")
	flag.StringVar(&o.transport, "transport", "", "計算経路 (inprocess, remote)")
	flag.StringVar(&o.remote, "remote", "", "リモートワーカーのURL (カンマ区切り, 例: ws://host:9001)")
	flag.IntVar(&o.failEvery, "chaos-fail-every", 0, "N件ごとにジョブを失敗させる (0で無効)")
	flag.StringVar(&o.historyDrv, "history", "", "実行履歴のドライバ (sqlite, postgres)")
	flag.StringVar(&o.historyDSN, "history-dsn", "", "実行履歴の接続先 (sqlite はファイルパス)")
	var (
		logLevel    = flag.String("log-level", "", "ログレベル (debug, info, warn, error)")
		logFormat   = flag.String("log-format", "", "ログ形式 (text, json)")
		showReport  = flag.Bool("report", false, "実行後にレポートを表示")
		listPresets = flag.Bool("list-presets", false, "利用可能なプリセットを表示")
		showVersion = flag.Bool("version", false, "バージョンを表示")
		serverMode  = flag.Bool("server", false, "Web UI サーバーモードで起動")
		serverAddr  = flag.String("addr", "", "サーバーアドレス (デフォルト :8080)")
		serveWorker = flag.String("serve-worker", "", "リモートワーカーとして待ち受けるアドレス (例: :9001)")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `fibpool - Bounded Worker Pool Runner

Usage:
  fibpool [options]

Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Environment:
  FIBPOOL_JOBS, FIBPOOL_WORKLOAD, FIBPOOL_WORKERS, FIBPOOL_FUNCTION,
  FIBPOOL_STRATEGY, FIBPOOL_SINK_CAPACITY, FIBPOOL_DELAY, FIBPOOL_TRANSPORT,
  FIBPOOL_REMOTE_URLS, FIBPOOL_LOG_LEVEL, FIBPOOL_LOG_FORMAT, FIBPOOL_HISTORY_DRIVER,
  FIBPOOL_HISTORY_DSN, FIBPOOL_ADDR (.env is read when present)

Examples:
  # プリセットを実行
  fibpool --preset tpl

  # 設定ファイルから実行
  fibpool --config run.yaml

  # フラグでカスタマイズ
  fibpool --jobs 40 --workload 10 --workers 8 --report

  # リモートワーカーを起動して使う
  fibpool --serve-worker :9001
  fibpool --transport remote --remote ws://localhost:9001

  # 実行履歴を SQLite に保存
  fibpool --preset quick --history sqlite --history-dsn runs.db

  # Web UIサーバーモードで起動
  fibpool --server --addr :3000
`)
	}

	flag.Parse()

	o.set = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	// バージョン表示
	if *showVersion {
		fmt.Printf("fibpool version %s\n", version)
		return
	}

	// プリセット一覧表示
	if *listPresets {
		printPresets()
		return
	}

	env, err := config.LoadEnv()
	if err != nil {
		logger.Error("", "環境変数エラー: %v", err)
		os.Exit(1)
	}

	if err := setLogging(*logLevel, env.LogLevel, *logFormat, env.LogFormat); err != nil {
		logger.Error("", "設定エラー: %v", err)
		os.Exit(1)
	}

	// リモートワーカーモード
	if *serveWorker != "" {
		if err := runWorkerServer(*serveWorker, o.function); err != nil {
			logger.Error("", "ワーカーサーバーエラー: %v", err)
			os.Exit(1)
		}
		return
	}

	// 実行設定の決定
	runConfig, fileConfig, err := buildRunConfig(o, env)
	if err != nil {
		logger.Error("", "設定エラー: %v", err)
		os.Exit(1)
	}

	driver, dsn := resolveHistory(o, env, fileConfig)
	var history *store.Store
	if driver != "" {
		history, err = store.Open(context.Background(), driver, dsn)
		if err != nil {
			logger.Error("", "履歴DBエラー: %v", err)
			os.Exit(1)
		}
		defer history.Close()
	}

	// Web UIサーバーモード
	if *serverMode {
		addr := firstNonEmpty(*serverAddr, env.Addr, ":8080")
		if err := runServer(addr, runConfig, history); err != nil {
			logger.Error("", "サーバーエラー: %v", err)
			os.Exit(1)
		}
		return
	}

	// 実行
	if err := runOnce(runConfig, history, *showReport); err != nil {
		logger.Error("", "実行エラー: %v", err)
		if history != nil {
			_ = history.Close()
		}
		os.Exit(1)
	}
}

// setLogging はフラグ、環境変数の順でログレベルと形式を決める
func setLogging(levelFlag, levelEnv, formatFlag, formatEnv string) error {
	if name := firstNonEmpty(levelFlag, levelEnv); name != "" {
		level, err := logger.ParseLevel(name)
		if err != nil {
			return err
		}
		logger.Default.SetLevel(level)
	}
	if name := firstNonEmpty(formatFlag, formatEnv); name != "" {
		format, err := logger.ParseFormat(name)
		if err != nil {
			return err
		}
		logger.Default.SetFormat(format)
	}
	return nil
}

// buildRunConfig は実行設定を構築する
// 設定ファイル、プリセット、デフォルトの順に土台を選び、環境変数、フラグの順に上書きする
func buildRunConfig(o options, env *config.Env) (coordinator.Config, *config.FileConfig, error) {
	var cfg coordinator.Config
	var fileConfig *config.FileConfig

	// 1. 設定ファイルから読み込み
	if o.configFile != "" {
		var err error
		fileConfig, err = config.LoadFile(o.configFile)
		if err != nil {
			return cfg, nil, fmt.Errorf("設定ファイル読み込みエラー: %w", err)
		}
		if err := fileConfig.Validate(); err != nil {
			return cfg, nil, fmt.Errorf("設定検証エラー: %w", err)
		}
		cfg, err = fileConfig.ToRunConfig()
		if err != nil {
			return cfg, nil, fmt.Errorf("設定変換エラー: %w", err)
		}
	} else if o.preset != "" {
		// 2. プリセットから読み込み
		preset, ok := coordinator.GetPreset(o.preset)
		if !ok {
			return cfg, nil, fmt.Errorf("不明なプリセット: %s (利用可能: %v)", o.preset, coordinator.ListPresets())
		}
		cfg = preset
	} else {
		// 3. デフォルト（quick）
		cfg = coordinator.DefaultConfig()
	}

	// 環境変数でオーバーライド
	if env != nil {
		if err := env.Apply(&cfg); err != nil {
			return cfg, nil, fmt.Errorf("環境変数エラー: %w", err)
		}
	}

	// フラグが明示的に指定された場合のみオーバーライド
	if o.set["jobs"] {
		cfg.JobCount = o.jobs
	}
	if o.set["workload"] {
		cfg.Workload = o.workload
	}
	if o.set["workers"] {
		cfg.WorkerCount = o.workers
	}
	if o.function != "" {
		cfg.Function = o.function
	}
	if o.strategy != "" {
		strategy, err := coordinator.ParseStrategy(o.strategy)
		if err != nil {
			return cfg, nil, err
		}
		cfg.Strategy = strategy
	}
	if o.set["sink-capacity"] {
		cfg.SinkCapacity = o.sinkCapacity
	}
	if o.set["delay"] {
		cfg.Delay = o.delay
	}
	if o.transport != "" {
		kind, err := transport.ParseKind(o.transport)
		if err != nil {
			return cfg, nil, err
		}
		cfg.Transport = kind
	}
	if o.remote != "" {
		cfg.RemoteURLs = splitList(o.remote)
	}
	if o.failEvery > 0 {
		cfg.EnableChaos = true
		cfg.Chaos.FailEvery = o.failEvery
	}

	if err := cfg.Validate(); err != nil {
		return cfg, nil, fmt.Errorf("設定検証エラー: %w", err)
	}
	return cfg, fileConfig, nil
}

// resolveHistory は履歴DBのドライバと接続先を決める（フラグ、環境変数、設定ファイルの順）
func resolveHistory(o options, env *config.Env, fileConfig *config.FileConfig) (string, string) {
	var fileDriver, fileDSN string
	if fileConfig != nil {
		fileDriver, fileDSN = fileConfig.History.Driver, fileConfig.History.DSN
	}
	var envDriver, envDSN string
	if env != nil {
		envDriver, envDSN = env.HistoryDriver, env.HistoryDSN
	}

	driver := firstNonEmpty(o.historyDrv, envDriver, fileDriver)
	if driver == "" {
		return "", ""
	}
	dsn := firstNonEmpty(o.historyDSN, envDSN, fileDSN)
	if dsn == "" && driver == store.DriverSQLite {
		dsn = "fibpool.db"
	}
	return driver, dsn
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// signalContext は SIGINT/SIGTERM でキャンセルされる context を返す
func signalContext(what string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintf(os.Stderr, "\n中断シグナルを受信、%sを終了中...\n", what)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// runOnce は1回実行して結果行と経過時間を出力する
func runOnce(cfg coordinator.Config, history *store.Store, showReport bool) error {
	logger.Info("", "Run: %s (%d jobs, %s(%d), %d workers, %s, %s)",
		cfg.Name, cfg.JobCount, functionName(cfg.Function), cfg.Workload, cfg.WorkerCount,
		strategyName(cfg.Strategy), transportName(cfg.Transport))

	ctx, cancel := signalContext("実行")
	defer cancel()

	engine := coordinator.New(cfg)
	engine.SetOutput(os.Stdout)
	result, runErr := engine.Run(ctx)
	if result == nil {
		return runErr
	}

	fmt.Println(result.ElapsedLine())

	if history != nil {
		if err := history.SaveRun(context.Background(), result); err != nil {
			logger.Error("", "履歴の保存に失敗: %v", err)
		} else {
			logger.Info("", "Saved run %s", result.RunID)
		}
	}

	// レポート出力
	if showReport {
		fmt.Println(result.Report())
	}

	return runErr
}

func functionName(name string) string {
	return firstNonEmpty(name, compute.DefaultName)
}

func strategyName(s coordinator.Strategy) string {
	return firstNonEmpty(string(s), string(coordinator.StrategyStatic))
}

func transportName(k transport.Kind) string {
	return firstNonEmpty(string(k), string(transport.KindInProcess))
}

// printPresets は利用可能なプリセットを表示する
func printPresets() {
	fmt.Println("利用可能なプリセット:")
	fmt.Println()

	for _, name := range coordinator.ListPresets() {
		p, _ := coordinator.GetPreset(name)
		suffix := ""
		if name == coordinator.DefaultConfig().Name {
			suffix = "（デフォルト）"
		}
		fmt.Printf("  %-12s %s%s\n", p.Name, p.Description, suffix)
	}

	fmt.Println()
	fmt.Println("使用例: fibpool --preset tpl")
}

// runWorkerServer はリモートワーカーとして待ち受ける
func runWorkerServer(addr, function string) error {
	fn, ok := compute.Lookup(function)
	if !ok {
		return fmt.Errorf("不明な計算関数: %s (利用可能: %v)", function, compute.Names())
	}

	ctx, cancel := signalContext("ワーカー")
	defer cancel()

	handler := transport.NewHandler(fn)
	server := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("", "Remote worker (%s) listening on ws://%s", functionName(function), addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("", "Remote worker stopped after %d jobs", handler.Served())
	return nil
}

// runServer はWeb UIサーバーを起動する
func runServer(addr string, base coordinator.Config, history *store.Store) error {
	fmt.Println("fibpool - Web UI Server")
	fmt.Println("=======================")
	fmt.Printf("Starting server on http://%s\n", addr)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ctx, cancel := signalContext("サーバー")
	defer cancel()

	server := api.NewServer(addr, base)
	if history != nil {
		server.SetHistory(history)
	}
	return server.Start(ctx)
}
