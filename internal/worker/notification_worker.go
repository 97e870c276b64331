package worker

import (
	"context"

	"github.com/spec-kit/reactive-engine/internal/service"
)

// StartNotificationWorker registers notification handlers and starts the
// delivery loop, which stops when ctx is cancelled.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
	go notificationService.Run(ctx)
}
