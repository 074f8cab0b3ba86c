package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lernio/gatekeeper/mail"
)

var (
	ErrQueueFull   = errors.New("notification queue full")
	ErrQueueClosed = errors.New("notification queue closed")
)

// Sender delivers one message; *mail.Sender satisfies it.
type Sender interface {
	Send(ctx context.Context, msg mail.Message) error
}

// Job is one queued notification. Kind is a short label used in logs.
type Job struct {
	ID      string
	Kind    string
	Message mail.Message
}

// Config controls queue sizing.
type Config struct {
	Workers    int
	BufferSize int
	JobTimeout time.Duration
	DropIfFull bool
}

// Hooks observe delivery outcomes. Either may be nil.
type Hooks struct {
	OnDelivered func(Job)
	OnFailed    func(Job, error)
}

// Queue is a bounded in-memory notification queue.
type Queue struct {
	cfg    Config
	sender Sender
	hooks  Hooks
	log    *zap.Logger

	ch        chan Job
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	closeOnce sync.Once

	// mu orders Enqueue against Close: senders hold it shared, Close takes it
	// exclusively before closing done, so no job lands after the drain.
	mu     sync.RWMutex
	closed bool
}

func New(cfg Config, sender Sender, hooks Hooks, log *zap.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	q := &Queue{
		cfg:    cfg,
		sender: sender,
		hooks:  hooks,
		log:    log.Named("notify"),
		ch:     make(chan Job, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	q.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go q.run()
	}
	return q
}

func (q *Queue) run() {
	defer q.wg.Done()

	for {
		select {
		case job := <-q.ch:
			q.deliver(job)
		case <-q.done:
			for {
				select {
				case job := <-q.ch:
					q.deliver(job)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) deliver(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	err := q.sender.Send(ctx, job.Message)
	if err != nil {
		q.failed.Add(1)
		q.log.Error("notification failed",
			zap.String("job_id", job.ID),
			zap.String("kind", job.Kind),
			zap.Strings("to", job.Message.To),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		if q.hooks.OnFailed != nil {
			q.hooks.OnFailed(job, err)
		}
		return
	}

	q.delivered.Add(1)
	q.log.Info("notification delivered",
		zap.String("job_id", job.ID),
		zap.String("kind", job.Kind),
		zap.Duration("duration", time.Since(start)),
	)
	if q.hooks.OnDelivered != nil {
		q.hooks.OnDelivered(job)
	}
}

// Enqueue schedules job and returns its ID. With DropIfFull a full buffer
// fails fast with ErrQueueFull; otherwise Enqueue waits for room or ctx.
func (q *Queue) Enqueue(ctx context.Context, job Job) (string, error) {
	if q == nil {
		return "", ErrQueueClosed
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return "", ErrQueueClosed
	}
	if err := job.Message.Validate(); err != nil {
		return "", err
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	if q.cfg.DropIfFull {
		select {
		case q.ch <- job:
			return job.ID, nil
		default:
			q.dropped.Add(1)
			q.log.Warn("notification dropped", zap.String("kind", job.Kind), zap.Strings("to", job.Message.To))
			return "", ErrQueueFull
		}
	}

	select {
	case q.ch <- job:
		return job.ID, nil
	case <-ctx.Done():
		q.dropped.Add(1)
		return "", ctx.Err()
	}
}

// Close stops accepting jobs and waits until the buffer is drained. It waits
// for Enqueue calls already blocked on a full buffer.
func (q *Queue) Close() {
	if q == nil {
		return
	}
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.done)
		q.mu.Unlock()
		q.wg.Wait()
	})
}

// Stats reports lifetime counters.
func (q *Queue) Stats() (delivered, failed, dropped uint64) {
	if q == nil {
		return 0, 0, 0
	}
	return q.delivered.Load(), q.failed.Load(), q.dropped.Load()
}

// Pending reports how many jobs are buffered.
func (q *Queue) Pending() int {
	if q == nil {
		return 0
	}
	return len(q.ch)
}
