package post

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("topic is required")
	ErrJobNotFound      = errors.New("job not found")
	ErrJobExists        = errors.New("job already exists")
	ErrJobTerminal      = errors.New("job already finished")
	ErrQueueFull        = errors.New("job queue is full")
	ErrDispatcherClosed = errors.New("dispatcher is closed")
)

// SchedulingError means a job could not be handed to a worker. No job record
// survives a scheduling failure.
type SchedulingError struct {
	JobID string
	Err   error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("schedule job %s: %v", e.JobID, e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }

// GenerationError wraps any failure of the generation collaborator. Its message
// is the collaborator's own so that job records show the provider's words.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return e.Err.Error() }

func (e *GenerationError) Unwrap() error { return e.Err }
