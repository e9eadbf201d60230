package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/suPer8Hu/postcrew/internal/common"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// GenerationTimeout bounds one generate call. Zero means no limit.
	GenerationTimeout time.Duration
	// SweepInterval is how often Run asks the store to evict old jobs. Zero
	// disables the sweeper.
	SweepInterval time.Duration
	Logger        *slog.Logger
	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() (string, error)
}

// Service drives generation jobs from creation to a terminal status.
type Service struct {
	store      Store
	gen        Generator
	dispatcher Dispatcher

	timeout       time.Duration
	sweepInterval time.Duration
	log           *slog.Logger
	now           func() time.Time
	newID         func() (string, error)
}

func NewService(store Store, gen Generator, dispatcher Dispatcher, opts Options) *Service {
	s := &Service{
		store:         store,
		gen:           gen,
		dispatcher:    dispatcher,
		timeout:       opts.GenerationTimeout,
		sweepInterval: opts.SweepInterval,
		log:           opts.Logger,
		now:           opts.Now,
		newID:         opts.NewID,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = common.NewULID
	}
	return s
}

// StartJob validates req, records a new job and hands it to the dispatcher.
// It returns as soon as the job is queued.
func (s *Service) StartJob(ctx context.Context, req Request) (string, error) {
	req, err := req.normalize()
	if err != nil {
		return "", err
	}

	jobID, err := s.newID()
	if err != nil {
		return "", &SchedulingError{Err: fmt.Errorf("new job id: %w", err)}
	}

	now := s.now()
	j := &Job{
		ID:        jobID,
		Status:    JobStarted,
		Progress:  progressInitializing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, j); err != nil {
		return "", &SchedulingError{JobID: jobID, Err: fmt.Errorf("create job: %w", err)}
	}

	if err := s.dispatcher.Dispatch(ctx, Task{JobID: jobID, Request: req}); err != nil {
		if delErr := s.store.Delete(context.WithoutCancel(ctx), jobID); delErr != nil {
			s.log.Error("rollback job after dispatch failure", "job_id", jobID, "err", delErr)
		}
		return "", &SchedulingError{JobID: jobID, Err: err}
	}

	s.log.Info("job started", "job_id", jobID, "topic", req.Topic)
	return jobID, nil
}

func (s *Service) GetStatus(ctx context.Context, jobID string) (*Job, error) {
	return s.store.Get(ctx, jobID)
}

// RunSync generates a post inline, without job bookkeeping.
func (s *Service) RunSync(ctx context.Context, req Request) (*Result, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	text, err := s.generate(ctx, newInputs(req, s.now()))
	if err != nil {
		return nil, err
	}
	return newResult(req, text, s.now()), nil
}

// Run consumes dispatched tasks and sweeps finished jobs until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.dispatcher.Run(gctx, s.execute)
	})
	if s.sweepInterval > 0 {
		g.Go(func() error {
			s.sweep(gctx)
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) sweep(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.Evict(ctx, s.now())
			if err != nil {
				s.log.Warn("evict jobs", "err", err)
				continue
			}
			if n > 0 {
				s.log.Info("evicted finished jobs", "count", n)
			}
		}
	}
}

// execute is the job body. Whatever happens inside generate, the job ends
// completed or failed.
func (s *Service) execute(ctx context.Context, t Task) {
	jobStart := time.Now()
	jobID := t.JobID

	err := s.store.Update(ctx, jobID, func(j *Job) {
		j.Status = JobRunning
		j.Progress = progressResearching
		j.UpdatedAt = s.now()
	})
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			s.log.Warn("dropping task for unknown job", "job_id", jobID)
			return
		}
		s.log.Error("mark job running", "job_id", jobID, "err", err)
		return
	}

	in := newInputs(t.Request, s.now())

	s.update(ctx, jobID, func(j *Job) {
		j.Progress = progressWriting
	})

	t0 := time.Now()
	text, genErr := s.generate(ctx, in)
	genCost := time.Since(t0)

	if genErr != nil {
		s.finish(ctx, jobID, func(j *Job) {
			markFailed(j, genErr.Error())
		})
		s.log.Error("job failed", "job_id", jobID, "gen", genCost, "total", time.Since(jobStart), "err", genErr)
		return
	}

	res := newResult(t.Request, text, s.now())
	s.finish(ctx, jobID, func(j *Job) {
		j.Status = JobCompleted
		j.Result = res
		j.Progress = progressSucceeded
	})
	s.log.Info("job completed", "job_id", jobID, "words", res.WordCount, "gen", genCost, "total", time.Since(jobStart))
}

func (s *Service) update(ctx context.Context, jobID string, fn func(*Job)) {
	err := s.store.Update(ctx, jobID, func(j *Job) {
		fn(j)
		j.UpdatedAt = s.now()
	})
	if err != nil {
		s.log.Error("update job", "job_id", jobID, "err", err)
	}
}

// finish writes the terminal update. A failed write is retried once; if that
// fails too, the job is marked failed with the store error so it never stays
// running.
func (s *Service) finish(ctx context.Context, jobID string, fn func(*Job)) {
	write := func(fn func(*Job)) error {
		return s.store.Update(ctx, jobID, func(j *Job) {
			fn(j)
			j.UpdatedAt = s.now()
		})
	}
	stop := func(err error) bool {
		return err == nil || errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrJobTerminal)
	}

	err := write(fn)
	if stop(err) {
		return
	}
	s.log.Warn("record job outcome, retrying", "job_id", jobID, "err", err)
	if err = write(fn); stop(err) {
		return
	}

	cause := err
	err = write(func(j *Job) {
		j.Result = nil
		markFailed(j, "record job outcome: "+cause.Error())
	})
	if !stop(err) {
		s.log.Error("job left unfinished", "job_id", jobID, "err", err, "cause", cause)
	}
}

func markFailed(j *Job, msg string) {
	j.Status = JobFailed
	j.Error = &msg
	j.Progress = "Failed: " + msg
}

// generate calls the collaborator with the configured timeout and turns both
// errors and panics into a GenerationError.
func (s *Service) generate(ctx context.Context, in Inputs) (text string, err error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		var o outcome
		defer func() {
			if r := recover(); r != nil {
				o.err = fmt.Errorf("generator panic: %v", r)
			}
			done <- o
		}()
		o.text, o.err = s.gen.Generate(ctx, in)
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return "", &GenerationError{Err: o.err}
		}
		return o.text, nil
	case <-ctx.Done():
		// the collaborator may ignore ctx; its late result is discarded
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &GenerationError{Err: fmt.Errorf("generation timed out after %s", s.timeout)}
		}
		return "", &GenerationError{Err: ctx.Err()}
	}
}
