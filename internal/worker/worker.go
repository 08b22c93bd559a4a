// Package worker runs background jobs such as search indexing off the request
// path.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is a function that represents a background job.
type Task func(ctx context.Context) error

type Pool struct {
	queue   chan job
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closing bool
	timeout time.Duration
	logger  zerolog.Logger
}

type job struct {
	name string
	run  Task
}

type Option func(*Pool)

// WithTimeout bounds how long a single task may run.
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) { p.timeout = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// NewPool starts size workers reading from a queue of the given capacity.
func NewPool(size, capacity int, opts ...Option) *Pool {
	if size < 1 {
		size = 1
	}
	if capacity < 0 {
		capacity = 0
	}
	p := &Pool{
		queue:   make(chan job, capacity),
		timeout: 30 * time.Second,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	for range size {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for j := range p.queue {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Str("task", j.name).Interface("panic", r).Msg("worker task panicked")
		}
	}()
	if err := j.run(ctx); err != nil {
		p.logger.Warn().Err(err).Str("task", j.name).Msg("worker task failed")
	}
}

// Submit enqueues a task. It returns false when the pool is shutting down or
// the queue is full; the task is dropped in both cases.
func (p *Pool) Submit(name string, t Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closing {
		p.logger.Warn().Str("task", name).Msg("task submitted during shutdown, dropping")
		return false
	}
	select {
	case p.queue <- job{name: name, run: t}:
		return true
	default:
		p.logger.Warn().Str("task", name).Msg("task queue full, dropping")
		return false
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return
	}
	p.closing = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}
