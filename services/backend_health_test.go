package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"edms/models"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type recordingAlerter struct {
	mu          sync.Mutex
	unreachable []string
	recovered   []time.Duration
}

func (r *recordingAlerter) SendBackendUnreachableAlert(_ time.Time, _ time.Duration, lastErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unreachable = append(r.unreachable, lastErr)
	return nil
}

func (r *recordingAlerter) SendBackendRecoveryAlert(d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recovered = append(r.recovered, d)
	return nil
}

func TestBackendHealthService_UnreachableThenRecovered(t *testing.T) {
	alerter := &recordingAlerter{}
	h := NewBackendHealthService(5*time.Minute, alerter, zap.NewNop())

	now := testNow
	h.now = func() time.Time { return now }
	h.ObserveFetch(nil)

	now = now.Add(time.Minute)
	h.ObserveFetch(errors.New("connection refused"))
	h.checkTimeout()
	assert.Empty(t, alerter.unreachable, "still within timeout")

	now = now.Add(5 * time.Minute)
	h.ObserveFetch(errors.New("connection refused"))
	h.checkTimeout()
	h.checkTimeout()

	assert.Equal(t, []string{"connection refused"}, alerter.unreachable)
	health := h.Health()
	assert.Equal(t, models.BackendUnreachable, health.Status)
	assert.Equal(t, 2, health.ConsecutiveFails)

	now = now.Add(3 * time.Minute)
	h.ObserveFetch(nil)

	assert.Equal(t, []time.Duration{3 * time.Minute}, alerter.recovered)
	assert.Equal(t, models.BackendHealthy, h.Health().Status)
	assert.Zero(t, h.Health().ConsecutiveFails)
}

func TestBackendHealthService_IdleServiceStaysHealthy(t *testing.T) {
	alerter := &recordingAlerter{}
	h := NewBackendHealthService(time.Minute, alerter, zap.NewNop())
	h.now = func() time.Time { return time.Now().Add(time.Hour) }

	// No failed fetch yet, so a long gap between passes is not an outage
	h.checkTimeout()

	assert.Empty(t, alerter.unreachable)
	assert.Equal(t, models.BackendHealthy, h.Health().Status)
}

func TestBackendHealthService_NilAlerter(t *testing.T) {
	h := NewBackendHealthService(time.Minute, nil, zap.NewNop())
	now := testNow
	h.now = func() time.Time { return now }
	h.ObserveFetch(nil)

	now = now.Add(2 * time.Minute)
	h.ObserveFetch(errors.New("timeout"))
	h.checkTimeout()
	h.ObserveFetch(nil)

	assert.Equal(t, models.BackendHealthy, h.Health().Status)
}
