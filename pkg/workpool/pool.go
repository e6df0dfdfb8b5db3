// Package workpool provides a fixed-size pool for blocking I/O. Session
// goroutines hand store calls to the pool and suspend on the result, so a
// slow store never stalls broadcasts on unrelated destinations and no
// registry lock is ever held across an I/O call.
package workpool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Do once the pool has been shut down.
var ErrClosed = errors.New("workpool: closed")

type task struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Pool runs submitted tasks on a bounded set of worker goroutines.
type Pool struct {
	tasks    chan task
	quit     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	logger   *slog.Logger

	// mu orders submissions against shutdown: a task enqueued under the
	// read lock was enqueued before closed was set, so the workers are
	// still alive to drain it.
	mu     sync.RWMutex
	closed bool
}

// New starts a pool with the given number of workers and queue depth.
func New(workers, queue int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{
		tasks:  make(chan task, queue),
		quit:   make(chan struct{}),
		logger: logger.With(slog.String("component", "workpool")),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case t := <-p.tasks:
			p.run(t)
		case <-p.quit:
			// Drain tasks that were queued before shutdown.
			for {
				select {
				case t := <-p.tasks:
					p.run(t)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) run(t task) {
	select {
	case <-t.ctx.Done():
		t.done <- t.ctx.Err()
	default:
		t.done <- t.fn(t.ctx)
	}
}

// Do runs fn on a pool worker and waits for its result. The caller is
// unblocked early if ctx is cancelled while the task is still queued.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	t := task{ctx: ctx, fn: fn, done: make(chan error, 1)}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}
	select {
	case p.tasks <- t:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and waits for queued and in-flight tasks to
// finish. Submissions racing the shutdown either land before the workers
// are told to quit, and are drained, or observe the closed flag and get
// ErrClosed; none are stranded in the queue.
func (p *Pool) Close() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.quit)
	})
	p.wg.Wait()
	p.logger.Debug("workpool drained")
}
