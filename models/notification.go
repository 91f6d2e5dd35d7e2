package models

// Reason explains why a device needs attention
type Reason string

const (
	ReasonInspectionFailed  Reason = "Inspection Failed"
	ReasonExpired           Reason = "Expired"
	ReasonInspectionDue     Reason = "Inspection Due"
	ReasonExpiringSoon      Reason = "Expiring Soon"
	ReasonInspectionDueSoon Reason = "Inspection Due Soon"
)

// lowestPriority ranks reasons outside the known set after every known one.
const lowestPriority = 5

// Rank returns the priority rank of the reason, lower is more urgent
func (r Reason) Rank() int {
	switch r {
	case ReasonInspectionFailed:
		return 0
	case ReasonExpired:
		return 1
	case ReasonInspectionDue:
		return 2
	case ReasonExpiringSoon:
		return 3
	case ReasonInspectionDueSoon:
		return 4
	default:
		return lowestPriority
	}
}

// NotificationDetail is one reason attached to a device, with an optional day count
type NotificationDetail struct {
	Reason Reason `json:"reason"`
	Days   *int   `json:"days"`
}

// DaysOrZero returns the day count, treating a missing count as zero
func (d NotificationDetail) DaysOrZero() int {
	if d.Days == nil {
		return 0
	}
	return *d.Days
}

// NotificationEntry groups every reason raised for one device in a pass
type NotificationEntry struct {
	Device  Device               `json:"device"`
	Details []NotificationDetail `json:"notification_details"`
}

// AddReason appends the reason unless the entry already carries it.
// Returns false for duplicates.
func (e *NotificationEntry) AddReason(reason Reason, days *int) bool {
	for _, detail := range e.Details {
		if detail.Reason == reason {
			return false
		}
	}
	e.Details = append(e.Details, NotificationDetail{Reason: reason, Days: days})
	return true
}

// Primary returns the highest-priority detail of the entry
func (e *NotificationEntry) Primary() (NotificationDetail, bool) {
	if len(e.Details) == 0 {
		return NotificationDetail{}, false
	}
	primary := e.Details[0]
	for _, detail := range e.Details[1:] {
		if detail.Reason.Rank() < primary.Reason.Rank() {
			primary = detail
		}
	}
	return primary, true
}

// HasReason reports whether the entry carries the given reason
func (e *NotificationEntry) HasReason(reason Reason) bool {
	for _, detail := range e.Details {
		if detail.Reason == reason {
			return true
		}
	}
	return false
}
