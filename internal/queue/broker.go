// Package queue implements the Queue Broker Adapter: the boundary
// between the Job Store and the worker pool. A Broker hands out
// opaque delivery tokens rather than raw job ids so that Ack/Nack can
// detect a job being redelivered to a second worker after its
// visibility window lapses.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by Enqueue/Dequeue once the broker has been
// stopped.
var ErrClosed = errors.New("broker: closed")

// ErrUnknownToken is returned by Ack/Nack when the token does not
// name an in-flight delivery, either because it was already
// acknowledged or because it never existed.
var ErrUnknownToken = errors.New("broker: unknown delivery token")

// Broker is the minimal durable-queue contract the worker pool needs.
// The in-process ChannelBroker below is the default; a Redis- or
// SQS-backed implementation would satisfy the same interface without
// the worker pool noticing the difference.
type Broker interface {
	// Enqueue makes jobID eligible for delivery and returns immediately.
	Enqueue(ctx context.Context, jobID string) error

	// Dequeue blocks until a job is available or ctx is done. The
	// returned token must be passed to Ack or Nack exactly once.
	Dequeue(ctx context.Context) (token string, jobID string, err error)

	// Ack confirms successful processing and discards the delivery.
	Ack(token string) error

	// Nack returns the job to the queue (requeue=true) or discards it
	// permanently (requeue=false, e.g. after exhausting retries).
	Nack(token string, requeue bool) error

	// Close stops delivery. Pending Dequeue calls return ErrClosed.
	Close()
}

type delivery struct {
	jobID       string
	deliveredAt time.Time
}

// ChannelBroker is an in-process Broker backed by a buffered Go
// channel, generalized from the teacher's TaskQueue. It gives
// at-least-once delivery: a job whose visibility timeout lapses
// before Ack is redelivered by the reaper goroutine.
type ChannelBroker struct {
	jobs              chan string
	visibilityTimeout time.Duration

	mu        sync.Mutex
	inFlight  map[string]delivery // token -> delivery
	closed    bool
	closeOnce sync.Once
	stopReap  chan struct{}
}

// NewChannelBroker builds a ChannelBroker with the given buffer
// capacity (how many jobs may wait before Enqueue blocks) and
// visibility timeout (how long a dequeued-but-unacked job is held
// before being redelivered).
func NewChannelBroker(capacity int, visibilityTimeout time.Duration) *ChannelBroker {
	b := &ChannelBroker{
		jobs:              make(chan string, capacity),
		visibilityTimeout: visibilityTimeout,
		inFlight:          make(map[string]delivery),
		stopReap:          make(chan struct{}),
	}
	go b.reap()
	return b
}

func (b *ChannelBroker) Enqueue(ctx context.Context, jobID string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.mu.Unlock()

	select {
	case b.jobs <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *ChannelBroker) Dequeue(ctx context.Context) (string, string, error) {
	select {
	case jobID, ok := <-b.jobs:
		if !ok {
			return "", "", ErrClosed
		}
		token := uuid.New().String()
		b.mu.Lock()
		b.inFlight[token] = delivery{jobID: jobID, deliveredAt: time.Now()}
		b.mu.Unlock()
		return token, jobID, nil
	case <-ctx.Done():
		return "", "", ctx.Err()
	}
}

func (b *ChannelBroker) Ack(token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inFlight[token]; !ok {
		return ErrUnknownToken
	}
	delete(b.inFlight, token)
	return nil
}

func (b *ChannelBroker) Nack(token string, requeue bool) error {
	b.mu.Lock()
	d, ok := b.inFlight[token]
	if !ok {
		b.mu.Unlock()
		return ErrUnknownToken
	}
	delete(b.inFlight, token)
	b.mu.Unlock()

	if !requeue {
		return nil
	}
	select {
	case b.jobs <- d.jobID:
		return nil
	default:
		// Queue is saturated; redeliver via the reaper's next pass
		// instead of blocking the caller.
		b.mu.Lock()
		b.inFlight[uuid.New().String()] = delivery{jobID: d.jobID, deliveredAt: time.Time{}}
		b.mu.Unlock()
		return nil
	}
}

// reap redelivers jobs whose visibility window has lapsed without an
// Ack, the same cooperative-timeout pattern the teacher's job scanner
// uses to catch work a crashed or wedged worker never finished.
func (b *ChannelBroker) reap() {
	ticker := time.NewTicker(b.visibilityTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.redeliverExpired()
		case <-b.stopReap:
			return
		}
	}
}

func (b *ChannelBroker) redeliverExpired() {
	now := time.Now()
	var expired []string

	b.mu.Lock()
	for token, d := range b.inFlight {
		if now.Sub(d.deliveredAt) >= b.visibilityTimeout {
			expired = append(expired, token)
		}
	}
	for _, token := range expired {
		d := b.inFlight[token]
		select {
		case b.jobs <- d.jobID:
			delete(b.inFlight, token)
		default:
			// Queue still saturated: keep the entry for the next pass.
		}
	}
	b.mu.Unlock()
}

// Close stops the reaper and closes the job channel. Safe to call once.
func (b *ChannelBroker) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.stopReap)
		close(b.jobs)
	})
}

// Depth reports the number of jobs waiting for a worker, for /health
// and diagnostics.
func (b *ChannelBroker) Depth() int {
	return len(b.jobs)
}

// InFlight reports the number of jobs dequeued but not yet acked.
func (b *ChannelBroker) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inFlight)
}
