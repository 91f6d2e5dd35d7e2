package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DeviceStatus is the persisted lifecycle status of an emergency device
type DeviceStatus string

const (
	StatusActive           DeviceStatus = "Active"
	StatusInactive         DeviceStatus = "Inactive"
	StatusExpired          DeviceStatus = "Expired"
	StatusInspectionDue    DeviceStatus = "Inspection Due"
	StatusInspectionFailed DeviceStatus = "Inspection Failed"
)

// Device represents an emergency device as served by the EDMS backend
type Device struct {
	ID                 int64        `json:"emergency_device_id"`
	TypeName           string       `json:"emergency_device_type_name"`
	SerialNumber       *string      `json:"serial_number,omitempty"`
	RoomCode           string       `json:"room_code"`
	BuildingCode       string       `json:"building_code,omitempty"`
	SiteID             int64        `json:"site_id,omitempty"`
	SiteName           string       `json:"site_name,omitempty"`
	Description        *string      `json:"description,omitempty"`
	Status             DeviceStatus `json:"status"`
	ExpireDate         *time.Time   `json:"expire_date,omitempty"`
	LastInspectionDate *time.Time   `json:"last_inspection_date,omitempty"`
	NextInspectionDate *time.Time   `json:"next_inspection_date,omitempty"`
}

// DeviceFilter narrows a device listing to a building and/or site
type DeviceFilter struct {
	BuildingCode string `json:"building_code,omitempty"`
	SiteID       string `json:"site_id,omitempty"`
}

func (f DeviceFilter) IsZero() bool {
	return f.BuildingCode == "" && f.SiteID == ""
}

// Serial returns the serial number or an empty string
func (d *Device) Serial() string {
	if d.SerialNumber == nil {
		return ""
	}
	return *d.SerialNumber
}

// deviceWire mirrors the backend payload, where nullable columns may arrive
// either as plain values or as {"Valid": bool, "String"|"Time"|"Int64": v}.
type deviceWire struct {
	ID                 nullInt64  `json:"emergency_device_id"`
	TypeName           string     `json:"emergency_device_type_name"`
	SerialNumber       nullString `json:"serial_number"`
	RoomCode           string     `json:"room_code"`
	BuildingCode       string     `json:"building_code"`
	SiteID             nullInt64  `json:"site_id"`
	SiteName           string     `json:"site_name"`
	Description        nullString `json:"description"`
	Status             nullString `json:"status"`
	ExpireDate         nullTime   `json:"expire_date"`
	LastInspectionDate nullTime   `json:"last_inspection_date"`
	NextInspectionDate nullTime   `json:"next_inspection_date"`
}

func (d *Device) UnmarshalJSON(data []byte) error {
	var w deviceWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*d = Device{
		TypeName:           w.TypeName,
		SerialNumber:       w.SerialNumber.value,
		RoomCode:           w.RoomCode,
		BuildingCode:       w.BuildingCode,
		SiteName:           w.SiteName,
		Description:        w.Description.value,
		ExpireDate:         w.ExpireDate.value,
		LastInspectionDate: w.LastInspectionDate.value,
		NextInspectionDate: w.NextInspectionDate.value,
	}
	if w.ID.value != nil {
		d.ID = *w.ID.value
	}
	if w.SiteID.value != nil {
		d.SiteID = *w.SiteID.value
	}
	if w.Status.value != nil {
		d.Status = DeviceStatus(*w.Status.value)
	}
	return nil
}

func isNull(b []byte) bool {
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}

func isObject(b []byte) bool {
	return len(b) > 0 && b[0] == '{'
}

type nullString struct{ value *string }

func (n *nullString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	n.value = nil
	if isNull(b) {
		return nil
	}
	if isObject(b) {
		var w struct {
			String string
			Valid  bool
		}
		if err := json.Unmarshal(b, &w); err != nil {
			return err
		}
		if w.Valid {
			n.value = &w.String
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	n.value = &s
	return nil
}

type nullInt64 struct{ value *int64 }

func (n *nullInt64) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	n.value = nil
	if isNull(b) {
		return nil
	}
	if isObject(b) {
		var w struct {
			Int64 int64
			Valid bool
		}
		if err := json.Unmarshal(b, &w); err != nil {
			return err
		}
		if w.Valid {
			n.value = &w.Int64
		}
		return nil
	}
	var i int64
	if err := json.Unmarshal(b, &i); err != nil {
		return err
	}
	n.value = &i
	return nil
}

type nullTime struct{ value *time.Time }

func (n *nullTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	n.value = nil
	if isNull(b) {
		return nil
	}

	raw := ""
	if isObject(b) {
		var w struct {
			Time  string
			Valid bool
		}
		if err := json.Unmarshal(b, &w); err != nil {
			return err
		}
		if !w.Valid {
			return nil
		}
		raw = w.Time
	} else if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	if raw == "" {
		return nil
	}
	t, err := ParseDate(raw)
	if err != nil {
		return err
	}
	n.value = &t
	return nil
}

// ParseDate accepts RFC 3339 timestamps, zone-less timestamps (local time)
// and bare dates (UTC midnight).
func ParseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", raw, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}
