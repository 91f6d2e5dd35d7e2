package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"edms/models"
)

var testNow = time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func daysFromNow(days int) *time.Time {
	t := testNow.AddDate(0, 0, days)
	return &t
}

func strPtr(s string) *string { return &s }

type statusUpdate struct {
	DeviceID int64
	Status   models.DeviceStatus
}

// fakeBackend keeps devices in memory and persists accepted status updates
type fakeBackend struct {
	mu       sync.Mutex
	devices  []models.Device
	fetchErr error
	reject   map[int64]bool
	updates  []statusUpdate
	fetches  int
}

func newFakeBackend(devices ...models.Device) *fakeBackend {
	return &fakeBackend{devices: devices, reject: make(map[int64]bool)}
}

func (f *fakeBackend) FetchDevices(_ context.Context, filter models.DeviceFilter) ([]models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return []models.Device{}, f.fetchErr
	}
	out := make([]models.Device, 0, len(f.devices))
	for _, d := range f.devices {
		if filter.BuildingCode != "" && d.BuildingCode != filter.BuildingCode {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeBackend) UpdateDeviceStatus(_ context.Context, deviceID int64, status models.DeviceStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, statusUpdate{DeviceID: deviceID, Status: status})
	if f.reject[deviceID] {
		return errors.Join(ErrStatusRejected, errors.New("device locked"))
	}
	for i := range f.devices {
		if f.devices[i].ID == deviceID {
			f.devices[i].Status = status
		}
	}
	return nil
}

func (f *fakeBackend) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func (f *fakeBackend) statusOf(id int64) models.DeviceStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.devices {
		if d.ID == id {
			return d.Status
		}
	}
	return ""
}

type recordingSink struct {
	mu          sync.Mutex
	transitions []models.StatusTransition
	err         error
}

func (r *recordingSink) RecordTransition(_ context.Context, t models.StatusTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
	return r.err
}

type recordingObserver struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingObserver) ObserveFetch(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}
