package post

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is the unit handed to a worker: the job to drive and what it asks for.
type Task struct {
	JobID   string  `json:"job_id"`
	Request Request `json:"request"`
}

type Handler func(ctx context.Context, t Task)

// Dispatcher moves tasks from request handlers to workers.
type Dispatcher interface {
	// Dispatch enqueues t without waiting for it to run.
	Dispatch(ctx context.Context, t Task) error
	// Run executes queued tasks with h until ctx is done.
	Run(ctx context.Context, h Handler) error
}

// Pool is an in-process Dispatcher: a bounded queue drained by a fixed number
// of worker goroutines.
type Pool struct {
	concurrency int
	log         *slog.Logger

	mu     sync.RWMutex
	closed bool
	tasks  chan Task
}

func NewPool(concurrency, queueSize int, log *slog.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = 2
	}
	if queueSize <= 0 {
		queueSize = concurrency * 2
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		concurrency: concurrency,
		log:         log,
		tasks:       make(chan Task, queueSize),
	}
}

func (p *Pool) Dispatch(_ context.Context, t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrDispatcherClosed
	}
	select {
	case p.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is done. Tasks already accepted
// are drained before Run returns; they run under a context that is not
// cancelled by shutdown.
func (p *Pool) Run(ctx context.Context, h Handler) error {
	jobCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(p.concurrency)
	for i := 0; i < p.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for t := range p.tasks {
				p.handle(jobCtx, workerID, h, t)
			}
		}(i)
	}

	p.log.Info("worker pool started", "concurrency", p.concurrency, "queue_size", cap(p.tasks))

	<-ctx.Done()
	p.log.Info("worker pool shutting down", "pending", len(p.tasks))

	p.mu.Lock()
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	wg.Wait()
	return nil
}

func (p *Pool) handle(ctx context.Context, workerID int, h Handler, t Task) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker recovered from panic", "worker", workerID, "job_id", t.JobID, "panic", r)
		}
	}()
	h(ctx, t)
	p.log.Debug("worker finished job", "worker", workerID, "job_id", t.JobID, "cost", time.Since(start))
}
