// Package metrics collects per-job compute statistics for a run.
//
// Metrics records how long each job's computation took, whether it
// succeeded, and which worker ran it. From that it derives throughput
// (jobs per second), average and P99 latency, the error rate and per-worker
// job counts. It is safe for concurrent use by every worker of a run.
//
// # Basic Usage
//
//	m := metrics.New()
//
//	start := time.Now()
//	value, err := compute(job)
//	if err != nil {
//	    m.RecordFailure(workerID, time.Since(start))
//	} else {
//	    m.RecordSuccess(workerID, time.Since(start))
//	}
//
//	snap := m.Snapshot()
//	fmt.Printf("jobs: %d, %.1f jobs/s, p99 %v\n",
//	    snap.TotalJobs, snap.JobsPerSecond, snap.P99Latency)
//
// # Configuration
//
// Use NewWithConfig for custom settings:
//
//	m := metrics.NewWithConfig(metrics.Config{
//	    MaxLatencySamples: 5000, // More samples for P99 accuracy
//	})
//
// # Thread Safety
//
// Counters are atomic; latency samples and per-worker counts are guarded by
// a mutex.
package metrics
