package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/qr-ticket-service/internal/events"
)

// NotificationService logs ticket lifecycle events and forwards them to
// an external publisher when one is configured.
type NotificationService struct {
	dispatcher events.Dispatcher
	publisher  events.Publisher
	logger     *zap.Logger
}

// NewNotificationService creates the service. publisher may be nil.
func NewNotificationService(dispatcher events.Dispatcher, publisher events.Publisher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		n.dispatcher.Subscribe(eventType, n.handle)
	}
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("ticket_number", event.TicketNumber),
		zap.Any("payload", event.Payload))
	if n.publisher == nil {
		return nil
	}
	return n.publisher.Forward(ctx, event)
}
