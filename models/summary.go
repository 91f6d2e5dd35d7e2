package models

import "time"

// Severity is the badge level shown for a notification
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

const (
	IconCritical = "exclamation-circle"
	IconWarning  = "exclamation-triangle"
)

// SummaryItem is the display structure for one notified device
type SummaryItem struct {
	DeviceID     int64    `json:"device_id"`
	TypeName     string   `json:"type_name"`
	SerialNumber string   `json:"serial_number"`
	RoomCode     string   `json:"room_code"`
	Reason       Reason   `json:"reason"`
	Days         *int     `json:"days,omitempty"`
	Severity     Severity `json:"severity"`
	Icon         string   `json:"icon"`
	Label        string   `json:"label"`
	Inspectable  bool     `json:"inspectable"`
}

// NotificationSummary is the rendered output of one pass
type NotificationSummary struct {
	PassID      string        `json:"pass_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Filter      DeviceFilter  `json:"filter"`
	Items       []SummaryItem `json:"items"`
}

// Counts returns the number of critical and warning items
func (s *NotificationSummary) Counts() (critical, warning int) {
	for _, item := range s.Items {
		switch item.Severity {
		case SeverityCritical:
			critical++
		case SeverityWarning:
			warning++
		}
	}
	return critical, warning
}

// Critical returns only the critical items, preserving order
func (s *NotificationSummary) Critical() []SummaryItem {
	var items []SummaryItem
	for _, item := range s.Items {
		if item.Severity == SeverityCritical {
			items = append(items, item)
		}
	}
	return items
}
