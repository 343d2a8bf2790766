package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Config はメトリクスの設定
type Config struct {
	MaxLatencySamples int // P99計算用に保持するサンプル数
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		MaxLatencySamples: 1000,
	}
}

// Metrics はジョブの計算メトリクスを収集する
type Metrics struct {
	totalJobs      atomic.Uint64
	successJobs    atomic.Uint64
	failedJobs     atomic.Uint64
	totalLatencyNs atomic.Uint64

	mu                sync.RWMutex
	startTime         time.Time
	latencies         []time.Duration // 直近 maxLatencySamples 件のリングバッファ
	nextSample        int
	maxLatencySamples int
	perWorker         map[int]uint64
}

// New は新しいメトリクスを作成する
func New() *Metrics {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig は設定を指定してメトリクスを作成する
func NewWithConfig(config Config) *Metrics {
	maxSamples := config.MaxLatencySamples
	if maxSamples <= 0 {
		maxSamples = DefaultConfig().MaxLatencySamples
	}
	return &Metrics{
		startTime:         time.Now(),
		latencies:         make([]time.Duration, 0, maxSamples),
		maxLatencySamples: maxSamples,
		perWorker:         make(map[int]uint64),
	}
}

// RecordSuccess は成功したジョブを記録する
func (m *Metrics) RecordSuccess(workerID int, latency time.Duration) {
	m.totalJobs.Add(1)
	m.successJobs.Add(1)
	m.totalLatencyNs.Add(uint64(latency.Nanoseconds()))

	m.mu.Lock()
	m.perWorker[workerID]++
	if len(m.latencies) < m.maxLatencySamples {
		m.latencies = append(m.latencies, latency)
	} else {
		m.latencies[m.nextSample] = latency
		m.nextSample = (m.nextSample + 1) % m.maxLatencySamples
	}
	m.mu.Unlock()
}

// RecordFailure は失敗したジョブを記録する
func (m *Metrics) RecordFailure(workerID int, latency time.Duration) {
	m.totalJobs.Add(1)
	m.failedJobs.Add(1)
	m.totalLatencyNs.Add(uint64(latency.Nanoseconds()))
}

// TotalJobs は総ジョブ数を返す
func (m *Metrics) TotalJobs() uint64 {
	return m.totalJobs.Load()
}

// SuccessJobs は成功ジョブ数を返す
func (m *Metrics) SuccessJobs() uint64 {
	return m.successJobs.Load()
}

// FailedJobs は失敗ジョブ数を返す
func (m *Metrics) FailedJobs() uint64 {
	return m.failedJobs.Load()
}

// JobsPerSecond は開始からの平均スループットを返す
func (m *Metrics) JobsPerSecond() float64 {
	m.mu.RLock()
	elapsed := time.Since(m.startTime).Seconds()
	m.mu.RUnlock()

	if elapsed == 0 {
		return 0
	}
	return float64(m.successJobs.Load()) / elapsed
}

// AverageLatency は平均計算時間を返す
func (m *Metrics) AverageLatency() time.Duration {
	total := m.totalJobs.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.totalLatencyNs.Load() / total)
}

// P99Latency は直近サンプルからP99計算時間を返す
func (m *Metrics) P99Latency() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ErrorRate はエラー率を返す（0.0〜1.0）
func (m *Metrics) ErrorRate() float64 {
	total := m.totalJobs.Load()
	if total == 0 {
		return 0
	}
	return float64(m.failedJobs.Load()) / float64(total)
}

// PerWorker はワーカー別の成功ジョブ数を返す
func (m *Metrics) PerWorker() map[int]uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int]uint64, len(m.perWorker))
	for id, n := range m.perWorker {
		out[id] = n
	}
	return out
}

// Reset は計測をやり直す
func (m *Metrics) Reset() {
	m.totalJobs.Store(0)
	m.successJobs.Store(0)
	m.failedJobs.Store(0)
	m.totalLatencyNs.Store(0)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.startTime = time.Now()
	m.latencies = m.latencies[:0]
	m.nextSample = 0
	m.perWorker = make(map[int]uint64)
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	TotalJobs      uint64         `json:"total_jobs"`
	SuccessJobs    uint64         `json:"success_jobs"`
	FailedJobs     uint64         `json:"failed_jobs"`
	JobsPerSecond  float64        `json:"jobs_per_second"`
	AverageLatency time.Duration  `json:"average_latency"`
	P99Latency     time.Duration  `json:"p99_latency"`
	ErrorRate      float64        `json:"error_rate"`
	PerWorker      map[int]uint64 `json:"per_worker"`
	Elapsed        time.Duration  `json:"elapsed"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	start := m.startTime
	m.mu.RUnlock()

	return Snapshot{
		TotalJobs:      m.TotalJobs(),
		SuccessJobs:    m.SuccessJobs(),
		FailedJobs:     m.FailedJobs(),
		JobsPerSecond:  m.JobsPerSecond(),
		AverageLatency: m.AverageLatency(),
		P99Latency:     m.P99Latency(),
		ErrorRate:      m.ErrorRate(),
		PerWorker:      m.PerWorker(),
		Elapsed:        time.Since(start),
	}
}
