package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/reactive-engine/internal/config"
	"github.com/spec-kit/reactive-engine/internal/events"
)

const (
	notificationQueueSize = 256
	notificationTimeout   = 5 * time.Second
)

// NotificationService forwards engine events to an outbound webhook so the
// help desk sidebar and on-call channels can react to them.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	queue      chan events.Event
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger.Named("notify"),
		cfg:        cfg,
		queue:      make(chan events.Event, notificationQueueSize),
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventMergeScheduled, n.handle)
	n.dispatcher.Subscribe(events.EventMergeExecuted, n.handle)
	n.dispatcher.Subscribe(events.EventMergeFailed, n.handle)
	n.dispatcher.Subscribe(events.EventOutboundBlocked, n.handle)
	n.dispatcher.Subscribe(events.EventLockContended, n.handle)
	n.dispatcher.Subscribe(events.EventReplyRedirected, n.handle)
}

// handle runs inside Publish, so webhook delivery is handed to Run.
func (n *NotificationService) handle(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type), zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return nil
	}
	select {
	case n.queue <- event:
	default:
		n.logger.Warn("notification queue full; dropping event",
			zap.String("event_type", string(event.Type)), zap.String("ticket_id", event.TicketID))
	}
	return nil
}

// Run delivers queued events until ctx is cancelled.
func (n *NotificationService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-n.queue:
			if err := n.sendWebhook(ctx, event); err != nil {
				n.logger.Warn("webhook notification failed",
					zap.String("event_type", string(event.Type)),
					zap.String("ticket_id", event.TicketID),
					zap.Error(err))
			}
		}
	}
}

func (n *NotificationService) sendWebhook(ctx context.Context, event events.Event) error {
	timeout := notificationTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	agent := fiber.Post(n.cfg.WebhookURL)
	agent.Timeout(timeout)
	agent.JSON(event)
	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
		return fmt.Errorf("webhook responded %d: %s", status, strings.TrimSpace(string(body)))
	}
	n.logger.Debug("webhook notification sent",
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID))
	return nil
}
