package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/metrics"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("notification sink closed")

// ErrQueueFull is returned by Submit when the message was dropped.
var ErrQueueFull = errors.New("notification queue full")

type Options struct {
	QueueSize int
	Timeout   time.Duration
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

// Sink queues messages and delivers them on a single consumer goroutine.
// Producers never block: when the queue is full the message is dropped.
type Sink struct {
	store   Store
	pusher  Pusher
	timeout time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	done   chan struct{}
}

func NewSink(store Store, pusher Pusher, opts Options) *Sink {
	if opts.QueueSize < 1 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Sink{
		store:   store,
		pusher:  pusher,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		queue:   make(chan Message, opts.QueueSize),
		done:    make(chan struct{}),
	}
}

// Submit enqueues msg without blocking.
func (s *Sink) Submit(msg Message) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.queue <- msg:
		return nil
	default:
		s.metrics.Notification(metrics.NotifyDropped)
		s.logger.Warn().
			Str("recipient", msg.RecipientRef.String()).
			Str("related_kind", string(msg.Related.Kind)).
			Str("related_id", msg.Related.ID.String()).
			Msg("notification queue full, message dropped")
		return ErrQueueFull
	}
}

// Run consumes the queue until ctx is cancelled or the sink is closed and
// drained.
func (s *Sink) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.queue:
			if !ok {
				return
			}
			dctx, cancel := context.WithTimeout(ctx, s.timeout)
			if err := s.Deliver(dctx, msg); err != nil {
				s.logger.Error().Err(err).
					Str("recipient", msg.RecipientRef.String()).
					Str("related_kind", string(msg.Related.Kind)).
					Str("related_id", msg.Related.ID.String()).
					Msg("notification delivery failed")
			}
			cancel()
		}
	}
}

// Done is closed when Run returns.
func (s *Sink) Done() <-chan struct{} { return s.done }

// Close stops accepting messages. Run delivers what is already queued and
// then returns.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
}

// Deliver persists one row for msg and pushes it. A push failure is logged
// and leaves the row in place; only a failure to persist is returned.
func (s *Sink) Deliver(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		s.metrics.Notification(metrics.NotifyFailed)
		return &DeliveryError{Stage: "validate", Err: err}
	}

	n := &Notification{
		UserRef:     msg.RecipientRef,
		Title:       msg.Title,
		Message:     msg.Message,
		RelatedKind: msg.Related.Kind,
		RelatedID:   msg.Related.ID,
	}
	if err := s.store.Insert(ctx, n); err != nil {
		s.metrics.Notification(metrics.NotifyFailed)
		return &DeliveryError{Stage: "persist", Err: err}
	}

	if s.pusher != nil {
		if err := s.pusher.Push(ctx, n); err != nil {
			s.metrics.Notification(metrics.NotifyPushFailed)
			s.logger.Warn().Err(err).
				Str("notification_id", n.ID.String()).
				Str("recipient", n.UserRef.String()).
				Msg("notification push failed")
			return nil
		}
	}
	s.metrics.Notification(metrics.NotifyDelivered)
	return nil
}
