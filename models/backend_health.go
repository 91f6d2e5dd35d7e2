package models

import (
	"time"
)

// BackendHealthStatus represents the reachability of the EDMS backend
type BackendHealthStatus string

const (
	BackendHealthy     BackendHealthStatus = "healthy"
	BackendUnreachable BackendHealthStatus = "unreachable"
)

// BackendHealth tracks the reachability of the EDMS backend
type BackendHealth struct {
	Status           BackendHealthStatus `json:"status"`
	LastSuccess      time.Time           `json:"last_success"`
	LastFailure      time.Time           `json:"last_failure,omitempty"`
	LastError        string              `json:"last_error,omitempty"`
	ConsecutiveFails int                 `json:"consecutive_fails"`
	UnreachableAt    time.Time           `json:"unreachable_at,omitempty"` // When the backend was declared unreachable
}
