package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/reactive-engine/internal/events"
)

var (
	// ErrMissingField marks input rejected before any side effect.
	ErrMissingField = errors.New("missing required field")
	// ErrHistoryUnavailable is returned when no merge history store is configured.
	ErrHistoryUnavailable = errors.New("merge history is not configured")
)

func missing(fields ...string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(fields, ", "))
}

// publishEvent delivers event to its subscribers. Handler failures are
// logged and never fail the operation that produced the event.
func publishEvent(ctx context.Context, d events.Dispatcher, logger *zap.Logger, event events.Event) {
	if d == nil {
		return
	}
	if err := d.Publish(ctx, event); err != nil {
		logger.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}
