package services

import (
	"testing"

	"edms/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderNotificationSummary_Badges(t *testing.T) {
	tests := []struct {
		reason      models.Reason
		days        *int
		severity    models.Severity
		icon        string
		label       string
		inspectable bool
	}{
		{models.ReasonInspectionFailed, nil, models.SeverityCritical, models.IconCritical, "Inspection Failed", true},
		{models.ReasonExpired, intPtr(5), models.SeverityCritical, models.IconCritical, "Expired (5 days ago)", false},
		{models.ReasonInspectionDue, intPtr(3), models.SeverityCritical, models.IconCritical, "Inspection Due (3 days ago)", true},
		{models.ReasonExpiringSoon, intPtr(12), models.SeverityWarning, models.IconWarning, "Expires (in 12 days)", false},
		{models.ReasonInspectionDueSoon, intPtr(1), models.SeverityWarning, models.IconWarning, "Inspection Due (in 1 days)", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			entry := &models.NotificationEntry{Device: models.Device{
				ID:           7,
				TypeName:     "Fire Extinguisher",
				SerialNumber: strPtr("FE-7"),
				RoomCode:     "C12",
			}}
			entry.AddReason(tt.reason, tt.days)

			items := RenderNotificationSummary([]*models.NotificationEntry{entry})

			require.Len(t, items, 1)
			item := items[0]
			assert.Equal(t, tt.severity, item.Severity)
			assert.Equal(t, tt.icon, item.Icon)
			assert.Equal(t, tt.label, item.Label)
			assert.Equal(t, tt.inspectable, item.Inspectable)
			assert.Equal(t, "FE-7", item.SerialNumber)
			assert.Equal(t, "C12", item.RoomCode)
		})
	}
}

func TestRenderNotificationSummary_UsesPrimaryReason(t *testing.T) {
	entry := &models.NotificationEntry{Device: models.Device{ID: 1, TypeName: "Emergency Light"}}
	entry.AddReason(models.ReasonInspectionDueSoon, intPtr(4))
	entry.AddReason(models.ReasonExpiringSoon, intPtr(9))

	empty := &models.NotificationEntry{Device: models.Device{ID: 2}}

	items := RenderNotificationSummary([]*models.NotificationEntry{entry, empty})

	require.Len(t, items, 1)
	assert.Equal(t, models.ReasonExpiringSoon, items[0].Reason)
	assert.Equal(t, "Expires (in 9 days)", items[0].Label)
	assert.Empty(t, items[0].SerialNumber)
}
