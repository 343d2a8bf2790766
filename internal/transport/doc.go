// Package transport provides the JobChannel implementations a worker can
// compute through.
//
// InProcess calls the compute function directly in the worker goroutine.
// Remote sends each job over a websocket connection to a worker process and
// waits for the reply; Handler is the server side of that exchange. Both
// satisfy worker.JobChannel, so the coordinator's join, close and drain
// protocol does not depend on which one is used.
//
// # Wire Format
//
// One JSON text message per job and one per reply:
//
//	-> {"seq": 3, "n": 30}
//	<- {"seq": 3, "result": 832040}
//	<- {"seq": 3, "error": "fibonacci(-1): negative input"}
//
// A connection carries one job at a time; a worker computes sequentially,
// so replies never need reordering.
package transport
