package services

import (
	"fmt"
	"strings"

	"edms/models"
)

// RenderNotificationSummary maps every entry to its primary reason's badge
func RenderNotificationSummary(entries []*models.NotificationEntry) []models.SummaryItem {
	items := make([]models.SummaryItem, 0, len(entries))
	for _, entry := range entries {
		primary, ok := entry.Primary()
		if !ok {
			continue
		}

		severity, icon, label := badgeFor(primary)
		items = append(items, models.SummaryItem{
			DeviceID:     entry.Device.ID,
			TypeName:     entry.Device.TypeName,
			SerialNumber: entry.Device.Serial(),
			RoomCode:     entry.Device.RoomCode,
			Reason:       primary.Reason,
			Days:         primary.Days,
			Severity:     severity,
			Icon:         icon,
			Label:        label,
			Inspectable:  strings.Contains(string(primary.Reason), "Inspection"),
		})
	}
	return items
}

func badgeFor(detail models.NotificationDetail) (models.Severity, string, string) {
	days := detail.DaysOrZero()
	switch detail.Reason {
	case models.ReasonInspectionFailed:
		return models.SeverityCritical, models.IconCritical, "Inspection Failed"
	case models.ReasonExpired:
		return models.SeverityCritical, models.IconCritical, fmt.Sprintf("Expired (%d days ago)", days)
	case models.ReasonInspectionDue:
		return models.SeverityCritical, models.IconCritical, fmt.Sprintf("Inspection Due (%d days ago)", days)
	case models.ReasonExpiringSoon:
		return models.SeverityWarning, models.IconWarning, fmt.Sprintf("Expires (in %d days)", days)
	case models.ReasonInspectionDueSoon:
		return models.SeverityWarning, models.IconWarning, fmt.Sprintf("Inspection Due (in %d days)", days)
	default:
		return models.SeverityWarning, models.IconWarning, string(detail.Reason)
	}
}
