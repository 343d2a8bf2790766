package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"fibpool/internal/chaos"
	"fibpool/internal/collector"
	"fibpool/internal/compute"
	"fibpool/internal/events"
	"fibpool/internal/logger"
	"fibpool/internal/metrics"
	"fibpool/internal/partition"
	"fibpool/internal/progress"
	"fibpool/internal/sink"
	"fibpool/internal/transport"
	"fibpool/internal/worker"
)

var (
	// ErrAlreadyRunning は実行中のEngineに Run が呼ばれたことを表す
	ErrAlreadyRunning = errors.New("run is already in progress")
	// ErrUnknownFunction は未登録の計算関数名
	ErrUnknownFunction = errors.New("unknown compute function")
	// ErrUnknownStrategy は未知の割り当て戦略
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// Strategy はジョブの割り当て方
type Strategy string

const (
	// StrategyStatic は開始前に全ジョブをワーカーごとのリストに分ける
	StrategyStatic Strategy = "static"
	// StrategyOnDemand は同じラウンドロビン順のジョブを要求時に1件ずつ渡す
	StrategyOnDemand Strategy = "on-demand"
)

// ParseStrategy は文字列から Strategy を得る（空文字は static）
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyStatic:
		return StrategyStatic, nil
	case StrategyOnDemand:
		return StrategyOnDemand, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownStrategy, s)
	}
}

// State はコーディネータの状態
type State int

const (
	StateIdle State = iota
	StatePartitioning
	StateRunning
	StateClosing
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePartitioning:
		return "partitioning"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Config は1回の実行の設定
type Config struct {
	Name        string // 実行名
	Description string // 説明

	JobCount    int    // ジョブ数
	Workload    int    // 各ジョブの入力
	WorkerCount int    // ワーカー数
	Function    string // 計算関数名（空なら fibonacci）

	Strategy     Strategy // 割り当て戦略
	SinkCapacity int      // 結果シンクの上限（0以下で無制限）

	// ワーカーの待機設定
	Delay       time.Duration // 各ジョブ後の待機
	DelayJitter time.Duration // 待機に加えるランダム幅

	// 計算経路
	Transport  transport.Kind // inprocess / remote
	RemoteURLs []string       // remote 時の接続先

	// 障害注入
	EnableChaos bool
	Chaos       chaos.Config
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return QuickPreset()
}

// Validate は設定を検証する
func (c Config) Validate() error {
	if c.WorkerCount <= 0 {
		return fmt.Errorf("%w: %d", partition.ErrInvalidWorkerCount, c.WorkerCount)
	}
	if c.JobCount < 0 {
		return fmt.Errorf("job count must be non-negative, got %d", c.JobCount)
	}
	if c.Delay < 0 || c.DelayJitter < 0 {
		return fmt.Errorf("delay must be non-negative")
	}
	if _, ok := compute.Lookup(c.Function); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFunction, c.Function)
	}
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	kind, err := transport.ParseKind(string(c.Transport))
	if err != nil {
		return err
	}
	if kind == transport.KindRemote && len(c.RemoteURLs) == 0 {
		return transport.ErrNoRemoteAddrs
	}
	if c.EnableChaos {
		if err := c.Chaos.Validate(); err != nil {
			return fmt.Errorf("chaos: %w", err)
		}
	}
	return nil
}

// Engine は実行エンジン
type Engine struct {
	config    Config
	eventBus  *events.Bus
	out       io.Writer
	observers []progress.Observer
	delay     worker.Delay

	mu        sync.RWMutex
	running   bool
	state     State
	runID     string
	nextRunID string
	tracker   *progress.Tracker
	metrics   *metrics.Metrics
	results   *sink.Sink
	injectors []*chaos.Injector
}

// New は新しいEngineを作成する
func New(config Config) *Engine {
	return &Engine{
		config: config,
	}
}

// SetEventBus はイベントバスを設定する
func (e *Engine) SetEventBus(bus *events.Bus) {
	e.eventBus = bus
}

// SetOutput は結果行の出力先を設定する（nil で出力しない）
func (e *Engine) SetOutput(w io.Writer) {
	e.out = w
}

// AddObserver はジョブ完了通知の受け取り手を追加する
func (e *Engine) AddObserver(o progress.Observer) {
	if o != nil {
		e.observers = append(e.observers, o)
	}
}

// SetDelay は設定の Delay/DelayJitter の代わりに使う待機戦略を設定する
func (e *Engine) SetDelay(d worker.Delay) {
	e.delay = d
}

// Config は設定を返す
func (e *Engine) Config() Config {
	return e.config
}

// plan は Partitioning で用意するワーカー起動前の材料
type plan struct {
	fn       compute.Func
	sources  []partition.Source[worker.Job]
	assigned []int
	channels []worker.JobChannel
	closeFn  func()
}

// Run は1回の実行を行う
// ワーカーのエラーやキャンセルでも結果は出力済み分まで Result に残り、エラーと共に返る
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.running = true
	e.runID = e.nextRunID
	if e.runID == "" {
		e.runID = uuid.NewString()
	}
	e.nextRunID = ""
	e.state = StateIdle
	e.tracker = nil
	e.metrics = nil
	e.results = nil
	e.injectors = nil
	runID := e.runID
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	logger.Info("coordinator", "=== Run '%s' (%s) started ===", e.config.Name, runID)

	e.setState(StatePartitioning)
	p, err := e.partition(ctx)
	if err != nil {
		e.setState(StateIdle)
		logger.Error("coordinator", "partitioning failed: %v", err)
		return nil, err
	}
	defer p.closeFn()

	cfg := e.config
	tracker := progress.NewTracker(p.assigned)
	m := metrics.New()
	results := sink.New(cfg.SinkCapacity)

	result := &Result{
		RunID:     runID,
		Name:      cfg.Name,
		Jobs:      cfg.JobCount,
		Workload:  cfg.Workload,
		Workers:   cfg.WorkerCount,
		Function:  functionName(cfg.Function),
		Strategy:  strategyOf(cfg.Strategy),
		Transport: transportOf(cfg.Transport),
		Assigned:  p.assigned,
		Records:   make([]sink.Record, 0, cfg.JobCount),
	}

	opts := []collector.Option{
		collector.WithRecordHook(func(rec sink.Record) {
			result.Records = append(result.Records, rec)
			e.publish(events.NewJobCompletedEvent(runID, rec.WorkerID, rec.Seq, rec.Value, len(result.Records)))
		}),
		collector.WithObserver(tracker),
	}
	for _, o := range e.observers {
		opts = append(opts, collector.WithObserver(o))
	}
	col := collector.New(results, e.out, opts...)

	var injectors []*chaos.Injector
	workers := make([]*worker.Worker, cfg.WorkerCount)
	for id := range workers {
		channel := p.channels[id]
		if cfg.EnableChaos && cfg.Chaos.Enabled() {
			inj := chaos.Wrap(channel, cfg.Chaos)
			injectors = append(injectors, inj)
			channel = inj
		}
		workers[id] = worker.New(id, p.sources[id], channel, results,
			worker.WithDelay(e.workerDelay()),
			worker.WithRecorder(m),
		)
	}
	pool := worker.NewPool(workers...)

	e.mu.Lock()
	e.tracker = tracker
	e.metrics = m
	e.results = results
	e.injectors = injectors
	e.mu.Unlock()

	e.setState(StateRunning)
	result.StartTime = time.Now()
	e.publish(events.NewRunStartedEvent(runID, cfg.JobCount, cfg.WorkerCount))
	col.Start()
	pool.Start(ctx)

	runErr := pool.Wait()

	e.setState(StateClosing)
	results.Close()

	e.setState(StateDraining)
	result.Delivered = col.Wait()

	result.EndTime = time.Now()
	result.Elapsed = result.EndTime.Sub(result.StartTime)
	result.Metrics = m.Snapshot()
	result.TotalAttacks = sumAttacks(injectors)
	result.Err = runErr

	e.setState(StateDone)

	if runErr != nil {
		e.publish(events.NewRunFailedEvent(runID, result.Delivered, result.Elapsed, runErr))
		logger.Error("coordinator", "=== Run '%s' failed after %d results: %v ===", cfg.Name, result.Delivered, runErr)
		return result, runErr
	}

	e.publish(events.NewRunFinishedEvent(runID, result.Delivered, result.Elapsed))
	logger.Info("coordinator", "=== Run '%s' completed in %v ===", cfg.Name, result.Elapsed)
	return result, nil
}

// partition は設定を検証し、ジョブを分割し、計算経路を開く
// ここで失敗した場合ゴルーチンは1つも起動していない
func (e *Engine) partition(ctx context.Context) (*plan, error) {
	cfg := e.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fn, _ := compute.Lookup(cfg.Function)
	jobs := make([]worker.Job, cfg.JobCount)
	for i := range jobs {
		jobs[i] = worker.Job{Seq: i, Input: cfg.Workload}
	}

	p := &plan{fn: fn, sources: make([]partition.Source[worker.Job], cfg.WorkerCount)}

	switch strategyOf(cfg.Strategy) {
	case StrategyOnDemand:
		strided, err := partition.NewStrided(jobs, cfg.WorkerCount)
		if err != nil {
			return nil, err
		}
		for id := range p.sources {
			p.sources[id] = strided.For(id)
		}
		p.assigned = strided.Sizes()
	default:
		assignments, err := partition.RoundRobin(jobs, cfg.WorkerCount)
		if err != nil {
			return nil, err
		}
		for id, a := range assignments {
			p.sources[id] = partition.NewSliceSource(a)
		}
		p.assigned = partition.Sizes(assignments)
	}

	kind := transportOf(cfg.Transport)
	channels, closeFn, err := transport.Open(ctx, kind, fn, cfg.RemoteURLs, cfg.WorkerCount)
	if err != nil {
		return nil, fmt.Errorf("open %s transport: %w", kind, err)
	}
	p.channels = channels
	p.closeFn = closeFn

	logger.Info("coordinator", "Partitioned %d jobs across %d workers: %v", cfg.JobCount, cfg.WorkerCount, p.assigned)
	return p, nil
}

func (e *Engine) workerDelay() worker.Delay {
	switch {
	case e.delay != nil:
		return e.delay
	case e.config.DelayJitter > 0:
		return worker.Jitter(e.config.Delay, e.config.DelayJitter)
	case e.config.Delay > 0:
		return worker.Sleep(e.config.Delay)
	default:
		return worker.NoDelay()
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	runID := e.runID
	e.mu.Unlock()

	logger.Debug("coordinator", "state -> %s", s)
	e.publish(events.NewStateChangedEvent(runID, s.String()))
}

func (e *Engine) publish(event events.Event) {
	if e.eventBus != nil {
		e.eventBus.Publish(event)
	}
}

// State は現在の状態を返す
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// IsRunning は実行中かどうかを返す
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// ReserveRunID は次の Run が使う実行IDを先に決めて返す
// 実行前にイベントを実行IDで購読したい呼び出し側のためのもの
func (e *Engine) ReserveRunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.nextRunID == "" {
		e.nextRunID = uuid.NewString()
	}
	return e.nextRunID
}

// RunID は現在または直前の実行IDを返す
func (e *Engine) RunID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runID
}

// Progress は進捗のスナップショットを返す（未実行なら nil）
func (e *Engine) Progress() *progress.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.tracker == nil {
		return nil
	}
	snapshot := e.tracker.Snapshot()
	return &snapshot
}

// Metrics は計算メトリクスを返す（未実行なら nil）
func (e *Engine) Metrics() *metrics.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.metrics == nil {
		return nil
	}
	snapshot := e.metrics.Snapshot()
	return &snapshot
}

// SinkStats は結果シンクの統計を返す（未実行なら nil）
func (e *Engine) SinkStats() *sink.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.results == nil {
		return nil
	}
	stats := e.results.Stats()
	return &stats
}

// ChaosStats は障害注入の統計を返す（障害注入なしなら nil）
func (e *Engine) ChaosStats() *chaos.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.injectors) == 0 {
		return nil
	}
	total := chaos.Stats{ByType: make(map[string]uint64)}
	for _, inj := range e.injectors {
		s := inj.Stats()
		total.TotalAttacks += s.TotalAttacks
		for k, v := range s.ByType {
			total.ByType[k] += v
		}
	}
	return &total
}

func sumAttacks(injectors []*chaos.Injector) uint64 {
	var total uint64
	for _, inj := range injectors {
		total += inj.AttackCount()
	}
	return total
}

func functionName(name string) string {
	if name == "" {
		return compute.DefaultName
	}
	return name
}

// strategyOf と transportOf は Validate 済みの値を正規化する
func strategyOf(s Strategy) Strategy {
	strategy, _ := ParseStrategy(string(s))
	return strategy
}

func transportOf(k transport.Kind) transport.Kind {
	kind, _ := transport.ParseKind(string(k))
	return kind
}
