// Package async provides safe concurrent execution primitives for background work.
//
// # Key Functions
//
// SafeGo: run one function in a goroutine with panic recovery and a timeout
//
//	async.SafeGo(ctx, log, time.Minute, "initial sweep", func(ctx context.Context) error {
//		return sweep(ctx)
//	})
//
// WorkerPool: a fixed set of workers over a bounded queue
//
//	pool := async.NewWorkerPool(ctx, 4, 100, "staging", 20*time.Minute, log)
//	defer pool.Shutdown(30 * time.Second)
//
//	if err := pool.Submit(job); errors.Is(err, async.ErrQueueFull) {
//		// shed load
//	}
//
// Job errors and panics are logged with logrus and never stop a worker.
//
// # Related Packages
//
//   - pkg/service: queues asynchronous staging requests on a WorkerPool
//   - pkg/janitor: runs its startup sweep with SafeGo
package async
