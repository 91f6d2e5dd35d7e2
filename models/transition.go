package models

import "time"

// TransitionRule names the date rule that moved a device to a new status
type TransitionRule string

const (
	RuleInspection TransitionRule = "inspection"
	RuleExpiry     TransitionRule = "expiry"
)

// StatusTransition records an automatic status change accepted by the backend
type StatusTransition struct {
	PassID   string         `json:"pass_id"`
	DeviceID int64          `json:"device_id"`
	From     DeviceStatus   `json:"from"`
	To       DeviceStatus   `json:"to"`
	Rule     TransitionRule `json:"rule"`
	At       time.Time      `json:"at"`
}
