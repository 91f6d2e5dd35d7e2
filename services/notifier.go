package services

import (
	"context"

	"edms/models"
)

// Notifier delivers a rendered notification summary to one destination
type Notifier interface {
	Name() string
	Notify(ctx context.Context, summary *models.NotificationSummary) error
}
