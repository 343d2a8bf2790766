// Package worker runs the per-worker job loop and the pool that joins them.
//
// A Worker pulls jobs from its own Source strictly in order, computes each
// one through a JobChannel, and hands the result to an Emitter (the result
// sink) right after the computation. An optional Delay strategy pauses the
// worker between items.
//
// # Basic Usage
//
//	w := worker.New(0, source, channel, resultSink,
//	    worker.WithDelay(worker.Sleep(10*time.Millisecond)),
//	)
//
//	pool := worker.NewPool(w0, w1, w2)
//	pool.Start(ctx)
//	if err := pool.Wait(); err != nil {
//	    // first worker error, every worker has returned
//	}
//
// # Failure
//
// A compute failure ends that worker with a *ComputeError and cancels the
// context shared by the pool, so the other workers stop pulling new jobs.
// Pool.Wait still waits for every worker before returning the first error.
package worker
