package handlers

import (
	"context"

	"github.com/heartwise/backend/internal/logging"
	"github.com/heartwise/backend/internal/models"
)

// notify records a moderator notification. Failures are logged and never
// fail the request that triggered them.
func notify(ctx context.Context, store NotificationStore, n models.AdminNotification) {
	if store == nil {
		return
	}
	if err := store.Create(ctx, n); err != nil {
		logging.FromContext(ctx).Error("create admin notification", "error", err, "type", n.Type)
	}
}
