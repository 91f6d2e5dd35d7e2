package services

import (
	"context"
	"sync"
	"time"

	"edms/models"

	"go.uber.org/zap"
)

// Monitor runs notification passes on a schedule and on request, and fans
// each summary out to the configured notifiers.
type Monitor struct {
	engine    *NotificationEngine
	logger    *zap.Logger
	interval  time.Duration
	filter    models.DeviceFilter
	notifiers []Notifier

	passMu sync.Mutex // serializes passes so status writes never interleave

	mu          sync.RWMutex
	lastResult  *PassResult
	lastSummary *models.NotificationSummary
}

func NewMonitor(engine *NotificationEngine, logger *zap.Logger, interval time.Duration, filter models.DeviceFilter, notifiers ...Notifier) *Monitor {
	return &Monitor{
		engine:    engine,
		logger:    logger,
		interval:  interval,
		filter:    filter,
		notifiers: notifiers,
	}
}

// Start runs a pass immediately, then every interval and whenever a refresh request arrives
func (m *Monitor) Start(ctx context.Context, refresh <-chan models.RefreshRequest) {
	m.logger.Info("Starting notification monitor",
		zap.Duration("interval", m.interval),
		zap.String("building_code", m.filter.BuildingCode),
		zap.String("site_id", m.filter.SiteID),
		zap.Int("notifiers", len(m.notifiers)))

	m.RunAndNotify(ctx, m.filter)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Notification monitor stopped")
			return
		case <-ticker.C:
			m.RunAndNotify(ctx, m.filter)
		case req, ok := <-refresh:
			if !ok {
				refresh = nil
				continue
			}
			filter := req.Filter()
			if filter.IsZero() {
				filter = m.filter
			}
			m.logger.Info("Running requested pass",
				zap.String("request_id", req.RequestID),
				zap.String("requested_by", req.RequestedBy))
			m.RunAndNotify(ctx, filter)
		}
	}
}

// Evaluate runs one pass for filter without notifying anyone
func (m *Monitor) Evaluate(ctx context.Context, filter models.DeviceFilter) (*PassResult, *models.NotificationSummary) {
	m.passMu.Lock()
	result := m.engine.RunPass(ctx, filter)
	m.passMu.Unlock()

	summary := &models.NotificationSummary{
		PassID:      result.PassID,
		GeneratedAt: result.StartedAt,
		Filter:      filter,
		Items:       RenderNotificationSummary(result.Entries),
	}

	if filter == m.filter {
		m.mu.Lock()
		m.lastResult = result
		m.lastSummary = summary
		m.mu.Unlock()
	}

	return result, summary
}

// RunAndNotify runs one pass and delivers its summary to every notifier.
// Notifier errors are logged and never stop the remaining notifiers.
func (m *Monitor) RunAndNotify(ctx context.Context, filter models.DeviceFilter) *models.NotificationSummary {
	_, summary := m.Evaluate(ctx, filter)

	for _, notifier := range m.notifiers {
		if err := notifier.Notify(ctx, summary); err != nil {
			m.logger.Error("Notifier failed",
				zap.String("notifier", notifier.Name()),
				zap.String("pass_id", summary.PassID),
				zap.Error(err))
		}
	}

	return summary
}

// LastPass returns the most recent pass for the default filter, if any
func (m *Monitor) LastPass() (*PassResult, *models.NotificationSummary) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastResult, m.lastSummary
}
