package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/axle/pkg/observability"
)

var logger atomic.Pointer[observability.Logger]

func init() {
	logger.Store(observability.NewLogger(observability.InfoLevel, nil))
}

// SetLogger routes task failures and panics through the given logger.
// Before it is called, a default JSON logger on stdout is used.
func SetLogger(l *observability.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

func activeLogger() *observability.Logger {
	return logger.Load()
}

// SafeGo runs fn in a goroutine with a timeout-bound context and panic
// recovery. Use it instead of a bare `go func()` for fire-and-forget work
// like payload archiving, where a panic must not take the server down.
//
// Example:
//
//	SafeGo(context.Background(), 30*time.Second, "webhook payload archive", func(ctx context.Context) error {
//	    return archiver.Upload(ctx, eventID, payload)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				activeLogger().WithFields(map[string]interface{}{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("Background task panicked")
			}
		}()

		if err := fn(ctx); err != nil {
			// Logged, never fatal. The task owner decides what failure means.
			activeLogger().WithError(err).WithField("task", taskName).Warn("Background task failed")
		}
	}()
}

// SafeGoNoError is SafeGo for functions with nothing to report.
//
// Example:
//
//	SafeGoNoError(ctx, 5*time.Second, "principal cache warm", func(ctx context.Context) {
//	    cache.Warm(ctx, hashes)
//	})
func SafeGoNoError(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// WorkerPool runs submitted tasks on a fixed set of workers, each task
// under its own timeout. Errors are collected on a buffered channel rather
// than failing the pool.
type WorkerPool struct {
	workers      int
	taskName     string
	timeout      time.Duration
	workCh       chan func(context.Context) error
	doneCh       chan struct{}
	errCh        chan error
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewWorkerPool starts workers immediately. taskName labels log entries
// and has no other effect.
//
// Example:
//
//	pool := NewWorkerPool(ctx, 4, "billing stats backfill", time.Minute)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//	    return aggregator.AggregateBillingStatsDaily(ctx, day)
//	})
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers:  workers,
		taskName: taskName,
		timeout:  timeout,
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		errCh:    make(chan error, workers*10),
		ctx:      ctx,
		cancel:   cancel,
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

// Submit queues a task, returning an error once the pool has shut down.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	select {
	case <-p.doneCh:
		return fmt.Errorf("worker pool shut down")
	default:
	}

	// Shutdown can close workCh between the check above and the send below.
	defer func() {
		recover()
	}()

	select {
	case p.workCh <- fn:
		return nil
	case <-p.doneCh:
		return fmt.Errorf("worker pool shut down")
	}
}

// Shutdown stops accepting work and waits up to timeout for queued tasks
// to drain. Safe to call more than once.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error

	p.shutdownOnce.Do(func() {
		// Close work channel so workers drain remaining tasks. Batch may
		// have closed it already.
		func() {
			defer func() {
				recover()
			}()
			close(p.workCh)
		}()

		select {
		case <-p.doneCh:
			p.cancel()
		case <-time.After(timeout):
			p.cancel()
			shutdownErr = fmt.Errorf("worker pool shutdown timed out after %v", timeout)
		}
	})

	return shutdownErr
}

// Errors exposes the collection channel. Drain it with a non-blocking
// select; workers drop errors once the buffer fills.
func (p *WorkerPool) Errors() <-chan error {
	return p.errCh
}

func (p *WorkerPool) worker(id int) {
	defer func() {
		if r := recover(); r != nil {
			activeLogger().WithFields(map[string]interface{}{
				"task":   p.taskName,
				"worker": id,
				"panic":  r,
				"stack":  string(debug.Stack()),
			}).Error("Worker panicked")
		}
	}()

	for {
		select {
		case <-p.ctx.Done():
			return
		case fn, ok := <-p.workCh:
			if !ok {
				return
			}
			p.runTask(fn)
		}
	}
}

// runTask executes one task under the pool timeout, turning panics into
// collected errors so the worker survives.
func (p *WorkerPool) runTask(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.report(fmt.Errorf("panic: %v", r))
		}
	}()

	if err := fn(ctx); err != nil {
		p.report(err)
	}
}

func (p *WorkerPool) report(err error) {
	select {
	case p.errCh <- err:
	default:
		activeLogger().WithError(err).WithField("task", p.taskName).Warn("Error channel full, dropping worker error")
	}
}

// Batch fans items out across a temporary pool and returns every error the
// tasks produced. Submission stops at the first pool failure.
//
// Example:
//
//	days := []time.Time{day1, day2, day3}
//	errs := Batch(ctx, days, 4, "billing stats backfill", time.Minute, func(ctx context.Context, day time.Time) error {
//	    return aggregator.AggregateBillingStatsDaily(ctx, day)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	pool := NewWorkerPool(ctx, workers, taskName, timeout)
	defer pool.Shutdown(5 * time.Second)

	for _, item := range items {
		item := item
		if err := pool.Submit(func(ctx context.Context) error {
			return fn(ctx, item)
		}); err != nil {
			return []error{err}
		}
	}

	// Closing the work channel lets workers drain every queued task before
	// doneCh closes.
	close(pool.workCh)
	<-pool.doneCh

	pool.cancel()

	var errs []error
	for {
		select {
		case err := <-pool.errCh:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}
