package coordinator

import (
	"fmt"
	"strings"
	"time"

	"fibpool/internal/metrics"
	"fibpool/internal/sink"
	"fibpool/internal/transport"
)

// Result は実行結果
type Result struct {
	RunID     string
	Name      string
	StartTime time.Time
	EndTime   time.Time
	Elapsed   time.Duration

	// 実行条件
	Jobs      int
	Workload  int
	Workers   int
	Function  string
	Strategy  Strategy
	Transport transport.Kind
	Assigned  []int

	// コレクタが受け取った順の結果
	Records   []sink.Record
	Delivered int

	// メトリクス
	Metrics metrics.Snapshot

	// カオス統計
	TotalAttacks uint64

	// ワーカーが返した最初のエラー
	Err error
}

// Succeeded はエラーなく全ジョブの結果が揃ったかを返す
func (r *Result) Succeeded() bool {
	return r.Err == nil && r.Delivered == r.Jobs
}

// PerWorker はワーカーごとの結果数を返す
func (r *Result) PerWorker() []int {
	counts := make([]int, r.Workers)
	for _, rec := range r.Records {
		if rec.WorkerID >= 0 && rec.WorkerID < len(counts) {
			counts[rec.WorkerID]++
		}
	}
	return counts
}

// ElapsedLine は結果行の後に出力する経過時間の行を返す
func (r *Result) ElapsedLine() string {
	return fmt.Sprintf("Time elapsed: %v", r.Elapsed)
}

// Report は結果をフォーマットして返す
func (r *Result) Report() string {
	status := "OK"
	if r.Err != nil {
		status = "FAILED: " + r.Err.Error()
	}

	report := fmt.Sprintf(`
================================================================================
                         RUN REPORT: %s
================================================================================

EXECUTION SUMMARY
-----------------
  Run ID:         %s
  Start Time:     %s
  End Time:       %s
  Elapsed:        %v
  Status:         %s

WORKLOAD
--------
  Jobs:           %d
  Function:       %s(%d)
  Workers:        %d
  Strategy:       %s
  Transport:      %s

COMPUTE METRICS
---------------
  Delivered:        %d
  Success:          %d
  Failed:           %d
  Error Rate:       %.2f%%
  Jobs/sec:         %.2f
  Avg Latency:      %v
  P99 Latency:      %v

CHAOS STATISTICS
----------------
  Total Attacks:    %d

PER-WORKER RESULTS
------------------
`,
		r.Name,
		r.RunID,
		r.StartTime.Format("2006-01-02 15:04:05"),
		r.EndTime.Format("2006-01-02 15:04:05"),
		r.Elapsed.Round(time.Microsecond),
		status,
		r.Jobs,
		r.Function, r.Workload,
		r.Workers,
		r.Strategy,
		r.Transport,
		r.Delivered,
		r.Metrics.SuccessJobs,
		r.Metrics.FailedJobs,
		r.Metrics.ErrorRate*100,
		r.Metrics.JobsPerSecond,
		r.Metrics.AverageLatency.Round(time.Microsecond),
		r.Metrics.P99Latency.Round(time.Microsecond),
		r.TotalAttacks,
	)

	var b strings.Builder
	b.WriteString(report)
	for id, n := range r.PerWorker() {
		assigned := 0
		if id < len(r.Assigned) {
			assigned = r.Assigned[id]
		}
		fmt.Fprintf(&b, "  %-12s %d/%d\n", fmt.Sprintf("worker-%d:", id), n, assigned)
	}
	b.WriteString("\n================================================================================")

	return b.String()
}
