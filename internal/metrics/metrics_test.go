package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestNewMetrics(t *testing.T) {
	m := New()

	if m.TotalJobs() != 0 {
		t.Errorf("expected 0 total jobs, got %d", m.TotalJobs())
	}
	if m.AverageLatency() != 0 || m.P99Latency() != 0 || m.ErrorRate() != 0 {
		t.Error("expected zero statistics for an empty metrics")
	}
}

func TestMetricsRecordSuccess(t *testing.T) {
	m := New()

	m.RecordSuccess(0, 10*time.Millisecond)
	m.RecordSuccess(1, 20*time.Millisecond)
	m.RecordSuccess(1, 30*time.Millisecond)

	if m.TotalJobs() != 3 || m.SuccessJobs() != 3 || m.FailedJobs() != 0 {
		t.Errorf("unexpected counts %d/%d/%d", m.TotalJobs(), m.SuccessJobs(), m.FailedJobs())
	}

	perWorker := m.PerWorker()
	if perWorker[0] != 1 || perWorker[1] != 2 {
		t.Errorf("unexpected per-worker counts %v", perWorker)
	}
}

func TestMetricsRecordFailure(t *testing.T) {
	m := New()

	m.RecordFailure(0, 10*time.Millisecond)
	m.RecordSuccess(0, 20*time.Millisecond)

	if m.TotalJobs() != 2 {
		t.Errorf("expected 2 total jobs, got %d", m.TotalJobs())
	}
	if m.FailedJobs() != 1 {
		t.Errorf("expected 1 failed job, got %d", m.FailedJobs())
	}
	if m.ErrorRate() != 0.5 {
		t.Errorf("expected error rate 0.5, got %f", m.ErrorRate())
	}
	if m.PerWorker()[0] != 1 {
		t.Error("expected failures not to count as completed jobs")
	}
}

func TestMetricsAverageLatency(t *testing.T) {
	m := New()

	m.RecordSuccess(0, 10*time.Millisecond)
	m.RecordSuccess(0, 20*time.Millisecond)
	m.RecordSuccess(0, 30*time.Millisecond)

	if avg := m.AverageLatency(); avg != 20*time.Millisecond {
		t.Errorf("expected average 20ms, got %v", avg)
	}
}

func TestMetricsP99Latency(t *testing.T) {
	m := New()

	for i := 1; i <= 100; i++ {
		m.RecordSuccess(0, time.Duration(i)*time.Millisecond)
	}

	if p99 := m.P99Latency(); p99 != 100*time.Millisecond {
		t.Errorf("expected P99 100ms, got %v", p99)
	}
}

func TestMetricsSampleLimit(t *testing.T) {
	m := NewWithConfig(Config{MaxLatencySamples: 2})
	m.RecordSuccess(0, time.Millisecond)
	m.RecordSuccess(0, 2*time.Millisecond)
	m.RecordSuccess(0, 50*time.Millisecond)

	// 上限を超えたら最も古いサンプルを上書きする
	if p99 := m.P99Latency(); p99 != 50*time.Millisecond {
		t.Errorf("expected the newest sample to be kept, got %v", p99)
	}
	m.RecordSuccess(0, time.Microsecond)
	m.RecordSuccess(0, time.Microsecond)
	if p99 := m.P99Latency(); p99 != time.Microsecond {
		t.Errorf("expected older samples to be replaced, got %v", p99)
	}
	if len(m.latencies) != 2 {
		t.Errorf("expected sample window of 2, got %d", len(m.latencies))
	}
	if m.SuccessJobs() != 5 {
		t.Errorf("expected counters to keep counting, got %d", m.SuccessJobs())
	}

	if NewWithConfig(Config{}).maxLatencySamples != DefaultConfig().MaxLatencySamples {
		t.Error("expected zero config to fall back to the default sample limit")
	}
}

func TestMetricsReset(t *testing.T) {
	m := New()
	m.RecordSuccess(0, time.Millisecond)
	m.RecordFailure(1, time.Millisecond)

	m.Reset()

	snap := m.Snapshot()
	if snap.TotalJobs != 0 || snap.FailedJobs != 0 || len(snap.PerWorker) != 0 {
		t.Errorf("expected empty snapshot after reset, got %+v", snap)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := New()
	m.RecordSuccess(2, 5*time.Millisecond)

	snap := m.Snapshot()
	if snap.TotalJobs != 1 || snap.SuccessJobs != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.PerWorker[2] != 1 {
		t.Errorf("expected worker 2 in snapshot, got %v", snap.PerWorker)
	}
	if snap.JobsPerSecond <= 0 {
		t.Error("expected positive throughput")
	}
}

func TestMetricsConcurrent(t *testing.T) {
	m := New()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				m.RecordSuccess(w, time.Microsecond)
			}
		}()
	}
	wg.Wait()

	if m.TotalJobs() != 800 {
		t.Errorf("expected 800 jobs, got %d", m.TotalJobs())
	}
	for w, n := range m.PerWorker() {
		if n != 100 {
			t.Errorf("worker %d: expected 100, got %d", w, n)
		}
	}
}
