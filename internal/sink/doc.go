// Package sink provides the many-producer, single-consumer result queue that
// connects workers to the collector.
//
// # Basic Usage
//
//	s := sink.New(0) // unbounded
//
//	// producers (workers)
//	if err := s.Enqueue(ctx, sink.Record{WorkerID: 1, Seq: 4, Value: 55}); err != nil {
//	    return err // sink.ErrClosed after Close
//	}
//
//	// coordinator, after every producer returned
//	s.Close()
//
//	// consumer (collector)
//	for rec := range s.Drain() {
//	    fmt.Printf("%d, %d\n", rec.WorkerID, rec.Value)
//	}
//
// # Semantics
//
// Drain blocks while the queue is empty and open, and ends once the queue is
// empty and closed. Records already queued when Close is called are still
// delivered. Records from one producer come out in the order that producer
// enqueued them; records from different producers interleave freely.
//
// A positive capacity makes the sink bounded: Enqueue then waits for space,
// for Close, or for its context to end.
package sink
