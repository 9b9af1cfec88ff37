package email

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/healthapp/identity-service/internal/identity"
	"github.com/healthapp/identity-service/internal/logging"
)

const (
	// retryDelay is the pause after a queue error so a broken backend does not spin
	retryDelay = time.Second

	defaultBufferSize  = 256
	defaultPushTimeout = 2 * time.Second
)

// Mailer renders and delivers a single email
type Mailer interface {
	SendVerificationEmail(ctx context.Context, toEmail, token string, role identity.Role) error
	SendPasswordResetEmail(ctx context.Context, toEmail, token string, role identity.Role) error
	SendWelcomeEmail(ctx context.Context, toEmail, firstName string) error
}

// Dispatcher queues emails from request handlers and delivers them on a
// pool of workers. Enqueue and delivery failures are logged, never returned.
//
// Request handlers only ever touch an in-process buffer. When the backing
// queue is remote, a forwarder moves jobs from the buffer to it so a slow
// backend never holds a request.
type Dispatcher struct {
	inbox   *MemoryQueue
	queue   Queue
	mailer  Mailer
	logger  *logging.Logger
	workers int

	forwarding  bool
	bufferSize  int
	pushTimeout time.Duration

	forwarderWG sync.WaitGroup
	wg          sync.WaitGroup
	cancel      context.CancelFunc
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithBufferSize sets the capacity of the in-process buffer in front of a
// remote queue
func WithBufferSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.bufferSize = n
		}
	}
}

// WithPushTimeout bounds each push to a remote queue
func WithPushTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.pushTimeout = timeout
		}
	}
}

func NewDispatcher(queue Queue, mailer Mailer, logger *logging.Logger, workers int, opts ...Option) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		queue:       queue,
		mailer:      mailer,
		logger:      logger,
		workers:     workers,
		bufferSize:  defaultBufferSize,
		pushTimeout: defaultPushTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}

	if mq, ok := queue.(*MemoryQueue); ok {
		d.inbox = mq
	} else {
		d.inbox = NewMemoryQueue(d.bufferSize)
		d.forwarding = true
	}

	return d
}

// Start launches the workers, and the forwarder for a remote queue. They
// run until Shutdown.
func (d *Dispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	if d.forwarding {
		d.forwarderWG.Add(1)
		go d.forward(ctx)
	}

	for i := range d.workers {
		d.wg.Add(1)
		go d.work(ctx, i)
	}

	d.logger.Info("email dispatcher started", "workers", d.workers, "forwarding", d.forwarding)
}

// Shutdown stops accepting emails and waits for the jobs already buffered
// to be handed on and delivered. If ctx ends first everything is cancelled.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if err := d.inbox.Close(); err != nil {
		d.logger.Warn("failed to close email buffer", "error", err.Error())
	}

	var err error
	if d.forwarding {
		err = d.wait(ctx, &d.forwarderWG)
		if closeErr := d.queue.Close(); closeErr != nil {
			d.logger.Warn("failed to close email queue", "error", closeErr.Error())
		}
	}

	if waitErr := d.wait(ctx, &d.wg); err == nil {
		err = waitErr
	}
	if err != nil {
		return err
	}

	d.logger.Info("email dispatcher stopped")
	return nil
}

func (d *Dispatcher) wait(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if d.cancel != nil {
			d.cancel()
		}
		<-done
		return fmt.Errorf("email dispatcher shutdown: %w", ctx.Err())
	}
}

func (d *Dispatcher) SendVerificationEmail(ctx context.Context, email, token string, role identity.Role) {
	d.enqueue(ctx, Job{Kind: JobVerification, To: email, Token: token, Role: role})
}

func (d *Dispatcher) SendPasswordResetEmail(ctx context.Context, email, token string, role identity.Role) {
	d.enqueue(ctx, Job{Kind: JobPasswordReset, To: email, Token: token, Role: role})
}

func (d *Dispatcher) SendWelcomeEmail(ctx context.Context, email, firstName string) {
	d.enqueue(ctx, Job{Kind: JobWelcome, To: email, FirstName: firstName})
}

// enqueue never blocks; a full buffer drops the job
func (d *Dispatcher) enqueue(ctx context.Context, job Job) {
	if err := d.inbox.Enqueue(ctx, job); err != nil {
		d.logger.Error("failed to queue email", "kind", job.Kind, "email", job.To, "error", err.Error())
	}
}

// forward moves buffered jobs to the remote queue until the buffer is
// closed and drained
func (d *Dispatcher) forward(ctx context.Context) {
	defer d.forwarderWG.Done()

	for {
		job, err := d.inbox.Dequeue(ctx)
		if err != nil {
			return
		}

		pushCtx, cancel := context.WithTimeout(ctx, d.pushTimeout)
		err = d.queue.Enqueue(pushCtx, job)
		cancel()
		if err != nil {
			d.logger.Error("dropped email job", "kind", job.Kind, "email", job.To, "error", err.Error())
		}
	}
}

func (d *Dispatcher) work(ctx context.Context, id int) {
	defer d.wg.Done()
	logger := d.logger.WithFields(map[string]any{"worker": id})

	for {
		job, err := d.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			logger.Warn("failed to read email queue", "error", err.Error())
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		if err := d.deliver(ctx, job); err != nil {
			logger.Warn("failed to send email", "kind", job.Kind, "email", job.To, "error", err.Error())
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, job Job) error {
	ctx = logging.WithLogger(ctx, d.logger)

	switch job.Kind {
	case JobVerification:
		return d.mailer.SendVerificationEmail(ctx, job.To, job.Token, job.Role)
	case JobPasswordReset:
		return d.mailer.SendPasswordResetEmail(ctx, job.To, job.Token, job.Role)
	case JobWelcome:
		return d.mailer.SendWelcomeEmail(ctx, job.To, job.FirstName)
	default:
		return fmt.Errorf("unknown email job kind %q", job.Kind)
	}
}
