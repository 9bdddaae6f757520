package pester

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
)

// MaxRetries is the number of rate-limited delivery attempts a queued
// message survives before it is dropped.
const MaxRetries = 3

// QueuedMessage is one pending outbound message. A message with an empty
// ThreadID is posted as a new root message; PR and Repo, when set on a root
// message, cause the resulting thread to be recorded in the thread store.
type QueuedMessage struct {
	Text     string
	ThreadID string
	PR       int
	Repo     string
	Retries  int
}

// DeliveryQueue is an ordered queue of outbound messages drained by a
// single-flight worker. Enqueue may be called at any time, including while a
// drain is in progress; at most one delivery attempt is ever in flight.
type DeliveryQueue struct {
	gateway ChatGateway
	threads ThreadStore
	logger  *slog.Logger

	mu       sync.Mutex
	items    []*QueuedMessage
	draining bool
}

func NewDeliveryQueue(gateway ChatGateway, threads ThreadStore, logger *slog.Logger) *DeliveryQueue {
	return &DeliveryQueue{
		gateway: gateway,
		threads: threads,
		logger:  logger,
	}
}

// Enqueue appends a message to the tail of the queue. It always succeeds.
func (q *DeliveryQueue) Enqueue(m *QueuedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, m)
}

// Len returns the number of pending messages.
func (q *DeliveryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain attempts delivery of the head message. It is a no-op when the queue
// is empty or another drain is in flight. A rate-limited attempt leaves the
// message at the head with its retry counter incremented, until MaxRetries
// attempts have failed and the message is dropped; any other failure drops
// the message immediately. Later messages always wait behind a retrying
// head message.
func (q *DeliveryQueue) Drain(ctx context.Context) {
	q.mu.Lock()
	if q.draining || len(q.items) == 0 {
		q.mu.Unlock()
		return
	}
	q.draining = true
	head := q.items[0]
	q.mu.Unlock()

	err := q.deliver(ctx, head)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.draining = false

	switch {
	case err == nil:
		q.items = q.items[1:]

	case errors.Is(err, ErrRateLimited):
		head.Retries++
		if head.Retries >= MaxRetries {
			q.logger.Error("dropping message after repeated rate limiting", "retries", head.Retries, "pr", head.PR)
			q.items = q.items[1:]
		} else {
			q.logger.Warn("delivery rate limited, leaving message at head", "retries", head.Retries, "pr", head.PR)
		}

	default:
		q.logger.Error("dropping undeliverable message", "err", err, "pr", head.PR)
		q.items = q.items[1:]
	}
}

func (q *DeliveryQueue) deliver(ctx context.Context, m *QueuedMessage) error {
	if m.ThreadID != "" {
		_, err := q.gateway.PostReply(ctx, m.ThreadID, m.Text)
		return errors.Wrap(err, "posting reply")
	}

	msgID, err := q.gateway.PostRoot(ctx, m.Text)
	if err != nil {
		return errors.Wrap(err, "posting root message")
	}
	threadID, err := q.gateway.CreateThread(ctx, msgID)
	if err != nil {
		return errors.Wrapf(err, "creating thread on message %s", msgID)
	}
	if m.PR != 0 && m.Repo != "" {
		err = q.threads.Put(ctx, m.PR, threadID, m.Repo)
		if err != nil {
			return errors.Wrapf(err, "recording thread %s for PR %d", threadID, m.PR)
		}
	}
	return nil
}
