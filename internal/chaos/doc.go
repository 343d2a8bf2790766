// Package chaos injects faults into job computation.
//
// An Injector wraps a worker.JobChannel and, for selected jobs, either fails
// the computation with ErrInjected or delays it before passing the job on.
// Jobs are selected by their sequence number, so a given configuration
// always hits the same jobs regardless of which worker runs them.
//
// # Basic Usage
//
//	inj := chaos.Wrap(channel, chaos.Config{
//	    FailSeqs:   []int{7},             // fail job 7
//	    DelayEvery: 4,                    // slow down every 4th job
//	    Delay:      50 * time.Millisecond,
//	})
//	w := worker.New(id, source, inj, resultSink)
//
// # Attack Types
//
//   - Fail: the job returns ErrInjected; the worker reports a ComputeError
//     and the coordinator aborts the run after draining.
//   - Delay: the job sleeps before computing; results are unchanged.
package chaos
