package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/events"
)

// EventSink receives relayed lifecycle events.
type EventSink interface {
	Publish(ctx context.Context, event events.Event) error
}

// EventRelay logs lifecycle events and forwards them to an optional sink.
type EventRelay struct {
	dispatcher events.Dispatcher
	sink       EventSink
	logger     *zap.Logger
}

// NewEventRelay creates the relay. sink may be nil.
func NewEventRelay(dispatcher events.Dispatcher, sink EventSink, logger *zap.Logger) *EventRelay {
	return &EventRelay{
		dispatcher: dispatcher,
		sink:       sink,
		logger:     loggerOrNop(logger),
	}
}

// RegisterHandlers subscribes to every lifecycle event.
func (r *EventRelay) RegisterHandlers() {
	if r.dispatcher == nil {
		return
	}
	r.dispatcher.SubscribeAll(r.handle)
}

func (r *EventRelay) handle(ctx context.Context, event events.Event) error {
	r.logger.Info("ticket event",
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("status", string(event.Status)),
		zap.String("actor", event.Actor.Type))
	if r.sink == nil {
		return nil
	}
	if err := r.sink.Publish(ctx, event); err != nil {
		r.logger.Warn("event forward failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
	return nil
}
