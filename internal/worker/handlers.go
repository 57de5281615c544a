package worker

import (
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/service"
)

// RegisterEventHandlers builds the relay's dispatch table. Storage handlers
// go first so a failing one aborts the batch before anything leaves the
// process.
func RegisterEventHandlers(dispatcher events.Dispatcher, revoker *service.SessionRevoker, notifications *service.NotificationService) {
	if revoker != nil {
		revoker.RegisterHandlers(dispatcher)
	}
	if notifications != nil {
		notifications.RegisterHandlers(dispatcher)
	}
}
