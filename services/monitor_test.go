package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"edms/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	name      string
	mu        sync.Mutex
	summaries []*models.NotificationSummary
	err       error
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Notify(_ context.Context, s *models.NotificationSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, s)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.summaries)
}

func monitorDevices() []models.Device {
	return []models.Device{
		{ID: 1, TypeName: "Fire Extinguisher", RoomCode: "A1", BuildingCode: "A", Status: models.StatusActive, ExpireDate: daysFromNow(-10)},
		{ID: 2, TypeName: "Emergency Light", RoomCode: "B1", BuildingCode: "B", Status: models.StatusActive, NextInspectionDate: daysFromNow(5)},
	}
}

func TestMonitor_RunAndNotifyFansOut(t *testing.T) {
	backend := newFakeBackend(monitorDevices()...)
	failing := &recordingNotifier{name: "failing", err: errors.New("boom")}
	ok := &recordingNotifier{name: "ok"}
	m := NewMonitor(newTestEngine(backend), zap.NewNop(), time.Hour, models.DeviceFilter{}, failing, ok)

	summary := m.RunAndNotify(context.Background(), models.DeviceFilter{})

	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, ok.count())
	require.Len(t, summary.Items, 2)
	assert.Equal(t, models.ReasonExpired, summary.Items[0].Reason)
	assert.Equal(t, models.StatusExpired, backend.statusOf(1))

	result, last := m.LastPass()
	require.NotNil(t, result)
	assert.Equal(t, summary, last)
	assert.Equal(t, result.PassID, last.PassID)
}

func TestMonitor_EvaluateWithOtherFilterKeepsLastPass(t *testing.T) {
	backend := newFakeBackend(monitorDevices()...)
	notifier := &recordingNotifier{name: "n"}
	m := NewMonitor(newTestEngine(backend), zap.NewNop(), time.Hour, models.DeviceFilter{}, notifier)

	_, summary := m.Evaluate(context.Background(), models.DeviceFilter{BuildingCode: "B"})

	require.Len(t, summary.Items, 1)
	assert.Equal(t, int64(2), summary.Items[0].DeviceID)
	assert.Zero(t, notifier.count())

	result, _ := m.LastPass()
	assert.Nil(t, result)
}

func TestMonitor_StartRunsOnRefresh(t *testing.T) {
	backend := newFakeBackend(monitorDevices()...)
	notifier := &recordingNotifier{name: "n"}
	m := NewMonitor(newTestEngine(backend), zap.NewNop(), time.Hour, models.DeviceFilter{}, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	refresh := make(chan models.RefreshRequest)
	done := make(chan struct{})
	go func() {
		m.Start(ctx, refresh)
		close(done)
	}()

	assert.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 5*time.Millisecond)

	refresh <- models.RefreshRequest{RequestID: "r-1", BuildingCode: "A"}
	assert.Eventually(t, func() bool { return notifier.count() == 2 }, time.Second, 5*time.Millisecond)

	notifier.mu.Lock()
	assert.Equal(t, "A", notifier.summaries[1].Filter.BuildingCode)
	notifier.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
