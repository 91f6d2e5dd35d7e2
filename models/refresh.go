package models

import "time"

// RefreshRequest asks the monitor to run a notification pass immediately
type RefreshRequest struct {
	RequestID    string    `json:"request_id"`
	BuildingCode string    `json:"building_code,omitempty"`
	SiteID       string    `json:"site_id,omitempty"`
	RequestedBy  string    `json:"requested_by,omitempty"`
	RequestedAt  time.Time `json:"requested_at"`
}

// Filter returns the device filter the pass should use
func (r RefreshRequest) Filter() DeviceFilter {
	return DeviceFilter{BuildingCode: r.BuildingCode, SiteID: r.SiteID}
}
