package email

import (
	"context"
	"errors"
	"sync"

	"github.com/healthapp/identity-service/internal/identity"
)

var (
	ErrQueueFull   = errors.New("email queue is full")
	ErrQueueClosed = errors.New("email queue is closed")
)

// JobKind selects the email a Job renders
type JobKind string

const (
	JobVerification  JobKind = "verification"
	JobPasswordReset JobKind = "password_reset"
	JobWelcome       JobKind = "welcome"
)

// Job is one pending email
type Job struct {
	Kind      JobKind       `json:"kind"`
	To        string        `json:"to"`
	Token     string        `json:"token,omitempty"`
	Role      identity.Role `json:"role,omitempty"`
	FirstName string        `json:"first_name,omitempty"`
}

// Queue buffers jobs between request handlers and dispatcher workers.
// Dequeue blocks until a job arrives, ctx ends, or the queue is closed and
// drained, in which case it returns ErrQueueClosed.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
	Close() error
}

// MemoryQueue is a bounded in-process queue. Jobs are lost on restart.
type MemoryQueue struct {
	mu     sync.RWMutex
	jobs   chan Job
	closed bool
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size < 1 {
		size = 1
	}
	return &MemoryQueue{jobs: make(chan Job, size)}
}

// Enqueue never blocks; a full queue rejects the job
func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case job, ok := <-q.jobs:
		if !ok {
			return Job{}, ErrQueueClosed
		}
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Close stops new jobs. Jobs already queued are still handed out.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}

// Len returns the number of jobs waiting
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}
