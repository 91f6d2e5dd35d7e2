package services

import (
	"context"
	"math"
	"sort"
	"time"

	"edms/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// soonWindowDays is how far ahead expiry and inspection dates raise a warning
const soonWindowDays = 30

// DeviceBackend is the subset of the EDMS backend the engine depends on
type DeviceBackend interface {
	FetchDevices(ctx context.Context, filter models.DeviceFilter) ([]models.Device, error)
	UpdateDeviceStatus(ctx context.Context, deviceID int64, status models.DeviceStatus) error
}

// TransitionSink receives every status transition accepted by the backend
type TransitionSink interface {
	RecordTransition(ctx context.Context, transition models.StatusTransition) error
}

// FetchObserver is told about the outcome of every device fetch
type FetchObserver interface {
	ObserveFetch(err error)
}

// PassResult is the outcome of one notification pass
type PassResult struct {
	PassID            string                      `json:"pass_id"`
	StartedAt         time.Time                   `json:"started_at"`
	Filter            models.DeviceFilter         `json:"filter"`
	DeviceCount       int                         `json:"device_count"`
	Transitions       []models.StatusTransition   `json:"transitions"`
	FailedTransitions int                         `json:"failed_transitions"`
	Entries           []*models.NotificationEntry `json:"entries"`
}

// NotificationEngine derives device notifications and applies date-driven
// status transitions through the backend.
type NotificationEngine struct {
	backend  DeviceBackend
	logger   *zap.Logger
	now      func() time.Time
	workers  int
	sinks    []TransitionSink
	observer FetchObserver
}

type EngineOption func(*NotificationEngine)

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *NotificationEngine) { e.now = now }
}

// WithTransitionWorkers bounds how many devices are evaluated concurrently
func WithTransitionWorkers(n int) EngineOption {
	return func(e *NotificationEngine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithTransitionSinks(sinks ...TransitionSink) EngineOption {
	return func(e *NotificationEngine) { e.sinks = append(e.sinks, sinks...) }
}

func WithFetchObserver(observer FetchObserver) EngineOption {
	return func(e *NotificationEngine) { e.observer = observer }
}

func NewNotificationEngine(backend DeviceBackend, logger *zap.Logger, opts ...EngineOption) *NotificationEngine {
	e := &NotificationEngine{
		backend: backend,
		logger:  logger,
		now:     time.Now,
		workers: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FetchDevices returns the devices matching filter. Failures are logged and
// yield an empty slice.
func (e *NotificationEngine) FetchDevices(ctx context.Context, filter models.DeviceFilter) []models.Device {
	devices, err := e.backend.FetchDevices(ctx, filter)
	if e.observer != nil {
		e.observer.ObserveFetch(err)
	}
	if err != nil {
		e.logger.Error("Failed to fetch devices",
			zap.String("building_code", filter.BuildingCode),
			zap.String("site_id", filter.SiteID),
			zap.Error(err))
		return []models.Device{}
	}
	return devices
}

// DeriveAndApplyStatusTransitions moves overdue devices to Inspection Due or
// Expired. Devices are updated in place and the same slice is returned.
func (e *NotificationEngine) DeriveAndApplyStatusTransitions(ctx context.Context, devices []models.Device) []models.Device {
	e.applyTransitions(ctx, uuid.NewString(), devices, e.now())
	return devices
}

// GenerateNotifications runs a full pass and returns the sorted entries
func (e *NotificationEngine) GenerateNotifications(ctx context.Context, filter models.DeviceFilter) []*models.NotificationEntry {
	return e.RunPass(ctx, filter).Entries
}

// RunPass fetches devices, applies transitions and derives notifications
func (e *NotificationEngine) RunPass(ctx context.Context, filter models.DeviceFilter) *PassResult {
	now := e.now()
	result := &PassResult{
		PassID:    uuid.NewString(),
		StartedAt: now,
		Filter:    filter,
	}

	devices := e.FetchDevices(ctx, filter)
	result.DeviceCount = len(devices)

	result.Transitions, result.FailedTransitions = e.applyTransitions(ctx, result.PassID, devices, now)
	result.Entries = e.deriveNotifications(devices, now)

	e.logger.Info("Notification pass completed",
		zap.String("pass_id", result.PassID),
		zap.Int("devices", result.DeviceCount),
		zap.Int("transitions", len(result.Transitions)),
		zap.Int("failed_transitions", result.FailedTransitions),
		zap.Int("notifications", len(result.Entries)))

	return result
}

func (e *NotificationEngine) applyTransitions(ctx context.Context, passID string, devices []models.Device, now time.Time) ([]models.StatusTransition, int) {
	applied := make([]*models.StatusTransition, len(devices))
	failed := make([]int, len(devices))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range devices {
		g.Go(func() error {
			applied[i], failed[i] = e.evaluateDevice(gctx, passID, &devices[i], now)
			return nil
		})
	}
	_ = g.Wait()

	var transitions []models.StatusTransition
	failures := 0
	for i := range devices {
		if applied[i] != nil {
			transitions = append(transitions, *applied[i])
		}
		failures += failed[i]
	}
	return transitions, failures
}

// evaluateDevice applies the inspection rule, then the expiry rule. At most
// one transition succeeds per device.
func (e *NotificationEngine) evaluateDevice(ctx context.Context, passID string, device *models.Device, now time.Time) (*models.StatusTransition, int) {
	failures := 0
	if device.Status == models.StatusInactive {
		return nil, failures
	}

	inspectionOverdue := device.NextInspectionDate != nil && isDueOrPast(*device.NextInspectionDate, now)

	if inspectionOverdue &&
		device.Status != models.StatusInspectionFailed &&
		device.Status != models.StatusInspectionDue {
		if t := e.transition(ctx, passID, device, models.StatusInspectionDue, models.RuleInspection, now); t != nil {
			return t, failures
		}
		failures++
	}

	// An overdue inspection that already holds the device keeps the expiry
	// rule from flipping it back and forth between passes.
	inspectionHolds := inspectionOverdue &&
		(device.Status == models.StatusInspectionDue || device.Status == models.StatusInspectionFailed)

	if device.ExpireDate != nil &&
		isDueOrPast(*device.ExpireDate, now) &&
		device.Status != models.StatusExpired &&
		!inspectionHolds {
		if t := e.transition(ctx, passID, device, models.StatusExpired, models.RuleExpiry, now); t != nil {
			return t, failures
		}
		failures++
	}

	return nil, failures
}

func (e *NotificationEngine) transition(ctx context.Context, passID string, device *models.Device, to models.DeviceStatus, rule models.TransitionRule, now time.Time) *models.StatusTransition {
	if err := e.backend.UpdateDeviceStatus(ctx, device.ID, to); err != nil {
		e.logger.Error("Failed to update device status",
			zap.String("pass_id", passID),
			zap.Int64("device_id", device.ID),
			zap.String("from", string(device.Status)),
			zap.String("to", string(to)),
			zap.Error(err))
		return nil
	}

	t := &models.StatusTransition{
		PassID:   passID,
		DeviceID: device.ID,
		From:     device.Status,
		To:       to,
		Rule:     rule,
		At:       now,
	}
	device.Status = to

	e.logger.Info("Device status transitioned",
		zap.String("pass_id", passID),
		zap.Int64("device_id", device.ID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.String("rule", string(rule)))

	for _, sink := range e.sinks {
		if err := sink.RecordTransition(ctx, *t); err != nil {
			e.logger.Warn("Transition sink failed",
				zap.Int64("device_id", device.ID),
				zap.Error(err))
		}
	}
	return t
}

func (e *NotificationEngine) deriveNotifications(devices []models.Device, now time.Time) []*models.NotificationEntry {
	soonLimit := now.AddDate(0, 0, soonWindowDays)
	byDevice := make(map[int64]*models.NotificationEntry)
	var entries []*models.NotificationEntry

	add := func(device models.Device, reason models.Reason, days *int) {
		entry, ok := byDevice[device.ID]
		if !ok {
			entry = &models.NotificationEntry{Device: device}
			byDevice[device.ID] = entry
			entries = append(entries, entry)
		}
		entry.AddReason(reason, days)
	}

	for _, device := range devices {
		if device.Status == models.StatusInactive {
			continue
		}

		// Overdue reasons need the date that made them overdue
		switch {
		case device.Status == models.StatusInspectionFailed:
			add(device, models.ReasonInspectionFailed, nil)
		case device.Status == models.StatusInspectionDue && device.NextInspectionDate != nil:
			add(device, models.ReasonInspectionDue, daysSince(device.NextInspectionDate, now))
		case device.Status == models.StatusExpired && device.ExpireDate != nil:
			add(device, models.ReasonExpired, daysSince(device.ExpireDate, now))
		}

		if isSoon(device.ExpireDate, now, soonLimit) {
			add(device, models.ReasonExpiringSoon, daysUntil(*device.ExpireDate, now))
		}
		if isSoon(device.NextInspectionDate, now, soonLimit) {
			add(device, models.ReasonInspectionDueSoon, daysUntil(*device.NextInspectionDate, now))
		}
	}

	SortNotifications(entries)
	return entries
}

// SortNotifications orders entries by their most urgent reason, then by the
// day count of that reason, largest first.
func SortNotifications(entries []*models.NotificationEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, _ := entries[i].Primary()
		b, _ := entries[j].Primary()
		if a.Reason.Rank() != b.Reason.Rank() {
			return a.Reason.Rank() < b.Reason.Rank()
		}
		return a.DaysOrZero() > b.DaysOrZero()
	})
}

// isDueOrPast compares calendar dates in now's location, ignoring time of day
func isDueOrPast(date, now time.Time) bool {
	return !startOfDay(date.In(now.Location())).After(startOfDay(now))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func isSoon(date *time.Time, now, limit time.Time) bool {
	return date != nil && date.After(now) && !date.After(limit)
}

func daysSince(date *time.Time, now time.Time) *int {
	if date == nil {
		return nil
	}
	days := ceilDays(now.Sub(*date))
	return &days
}

func daysUntil(date, now time.Time) *int {
	days := ceilDays(date.Sub(now))
	return &days
}

func ceilDays(d time.Duration) int {
	return int(math.Ceil(d.Hours() / 24))
}
