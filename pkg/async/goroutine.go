package async

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrPoolClosed is returned by Submit after Shutdown
	ErrPoolClosed = errors.New("worker pool shut down")

	// ErrQueueFull is returned by Submit when every queue slot is taken
	ErrQueueFull = errors.New("worker pool queue full")
)

// Job is one unit of pool work
type Job func(ctx context.Context) error

// SafeGo executes fn in a goroutine with panic recovery and a timeout.
// Errors and panics are logged, never propagated.
//
// Example:
//
//	SafeGo(ctx, log, time.Minute, "initial sweep", func(ctx context.Context) error {
//	    return janitor.Sweep(ctx)
//	})
func SafeGo(parentCtx context.Context, log *logrus.Logger, timeout time.Duration, taskName string, fn Job) {
	if log == nil {
		log = logrus.New()
	}
	go func() {
		ctx, cancel := withTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.WithField("task", taskName).Errorf("panic: %v\n%s", r, debug.Stack())
			}
		}()

		if err := fn(ctx); err != nil {
			log.WithField("task", taskName).Warnf("Background task failed: %v", err)
		}
	}()
}

// WorkerPool runs queued jobs on a fixed number of workers. The queue is
// bounded: Submit rejects work instead of blocking when it is full.
type WorkerPool struct {
	name    string
	timeout time.Duration
	log     *logrus.Logger

	mu     sync.RWMutex
	closed bool
	workCh chan Job
	doneCh chan struct{}

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewWorkerPool starts workers goroutines draining a queue of queueSize
// jobs. Each job runs under a context derived from ctx and limited to
// timeout; a zero timeout means no limit.
//
// Example:
//
//	pool := NewWorkerPool(ctx, 4, 100, "staging", 20*time.Minute, log)
//	defer pool.Shutdown(30 * time.Second)
//
//	err := pool.Submit(func(ctx context.Context) error {
//	    return stage(ctx, req)
//	})
func NewWorkerPool(ctx context.Context, workers, queueSize int, name string, timeout time.Duration, log *logrus.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = logrus.New()
	}
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		name:    name,
		timeout: timeout,
		log:     log,
		workCh:  make(chan Job, queueSize),
		doneCh:  make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				pool.worker(id)
			}(i)
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues job. It fails with ErrQueueFull or ErrPoolClosed rather
// than waiting.
func (p *WorkerPool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.workCh <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Queued returns the number of jobs waiting for a worker
func (p *WorkerPool) Queued() int {
	return len(p.workCh)
}

// Shutdown stops accepting work and waits up to timeout for queued and
// running jobs to finish. Jobs still running after timeout have their
// context cancelled.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error

	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.workCh)
		p.mu.Unlock()

		select {
		case <-p.doneCh:
			p.cancel()
		case <-time.After(timeout):
			p.cancel()
			shutdownErr = errors.New("worker pool shutdown timed out after " + timeout.String())
		}
	})

	return shutdownErr
}

func (p *WorkerPool) worker(id int) {
	for job := range p.workCh {
		p.run(id, job)
	}
}

func (p *WorkerPool) run(id int, job Job) {
	ctx, cancel := withTimeout(p.ctx, p.timeout)
	defer cancel()

	log := p.log.WithFields(logrus.Fields{"pool": p.name, "worker": id})
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	if err := job(ctx); err != nil {
		log.Warnf("Job failed: %v", err)
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
