package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/observability"
)

// ErrForwarderStopped is returned by Publish after Stop.
var ErrForwarderStopped = errors.New("event forwarder stopped")

// Publisher is the downstream event sink, usually a Kafka topic.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// EventForwarder decouples request handling from the downstream publisher.
// Events are queued in memory and written by a single goroutine; when the
// queue is full new events are dropped and counted.
type EventForwarder struct {
	publisher    Publisher
	queue        chan events.Event
	writeTimeout time.Duration
	metrics      *observability.Metrics
	logger       *zap.Logger

	startOnce sync.Once
	done      chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewEventForwarder builds a forwarder with the given queue size.
func NewEventForwarder(publisher Publisher, queueSize int, metrics *observability.Metrics, logger *zap.Logger) *EventForwarder {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventForwarder{
		publisher:    publisher,
		queue:        make(chan events.Event, queueSize),
		writeTimeout: 10 * time.Second,
		metrics:      metrics,
		logger:       logger,
		done:         make(chan struct{}),
	}
}

// Publish enqueues event without blocking. Once the forwarder is stopped the
// event is dropped and ErrForwarderStopped is returned.
func (f *EventForwarder) Publish(_ context.Context, event events.Event) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		f.metrics.Inc(observability.CounterEventsDropped)
		f.logger.Warn("event forwarder stopped; dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID))
		return ErrForwarderStopped
	}
	select {
	case f.queue <- event:
	default:
		f.metrics.Inc(observability.CounterEventsDropped)
		f.logger.Warn("event queue full; dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID))
	}
	return nil
}

// Start launches the writer goroutine.
func (f *EventForwarder) Start() {
	f.startOnce.Do(func() {
		go f.run()
	})
}

// Stop drains queued events and waits for the writer, bounded by ctx.
func (f *EventForwarder) Stop(ctx context.Context) error {
	f.Start()
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.queue)
	}
	f.mu.Unlock()
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *EventForwarder) run() {
	defer close(f.done)
	for event := range f.queue {
		ctx, cancel := context.WithTimeout(context.Background(), f.writeTimeout)
		if err := f.publisher.Publish(ctx, event); err != nil {
			f.logger.Warn("event publish failed",
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
		}
		cancel()
	}
}
