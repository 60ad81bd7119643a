package notifier

import (
	"context"

	"github.com/coursebeam/entitlesync/app/models"
	"github.com/coursebeam/entitlesync/app/repository"
)

// Emitter creates user-facing notifications as a fire-and-forget side effect.
// Callers are expected to log and swallow errors: a failed notification must
// never roll back or fail the state change that triggered it.
type Emitter interface {
	Notify(ctx context.Context, userID uint, title, message, notificationType string) error
}

type dbEmitter struct {
	notifications repository.NotificationRepository
}

// New creates an emitter that writes to the notifications table.
func New(notifications repository.NotificationRepository) Emitter {
	return &dbEmitter{notifications: notifications}
}

func (e *dbEmitter) Notify(ctx context.Context, userID uint, title, message, notificationType string) error {
	return e.notifications.Create(ctx, &models.Notification{
		UserID:  userID,
		Type:    notificationType,
		Title:   title,
		Message: message,
		IsRead:  false,
	})
}
