package services

import (
	"context"
	"sync"
	"time"

	"edms/models"

	"go.uber.org/zap"
)

// BackendAlerter is notified when the EDMS backend goes away and comes back
type BackendAlerter interface {
	SendBackendUnreachableAlert(lastSuccess time.Time, downFor time.Duration, lastErr string) error
	SendBackendRecoveryAlert(downDuration time.Duration) error
}

// BackendHealthService tracks device fetch outcomes and alerts when the backend stays unreachable
type BackendHealthService struct {
	alerter       BackendAlerter
	logger        *zap.Logger
	timeout       time.Duration
	checkInterval time.Duration
	now           func() time.Time
	health        models.BackendHealth
	mu            sync.RWMutex
}

// NewBackendHealthService creates a backend health monitor. alerter may be nil.
func NewBackendHealthService(timeout time.Duration, alerter BackendAlerter, logger *zap.Logger) *BackendHealthService {
	return &BackendHealthService{
		alerter:       alerter,
		logger:        logger,
		timeout:       timeout,
		checkInterval: 10 * time.Second,
		now:           time.Now,
		health: models.BackendHealth{
			Status:      models.BackendHealthy,
			LastSuccess: time.Now(),
		},
	}
}

// Start periodically checks whether the backend has been silent for longer than the timeout
func (h *BackendHealthService) Start(ctx context.Context) {
	ticker := time.NewTicker(h.checkInterval)
	defer ticker.Stop()

	h.logger.Info("Backend health checker started", zap.Duration("timeout", h.timeout))

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Backend health checker stopped")
			return
		case <-ticker.C:
			h.checkTimeout()
		}
	}
}

// ObserveFetch records the outcome of one device fetch
func (h *BackendHealthService) ObserveFetch(err error) {
	h.mu.Lock()
	now := h.now()

	if err != nil {
		h.health.LastFailure = now
		h.health.LastError = err.Error()
		h.health.ConsecutiveFails++
		fails := h.health.ConsecutiveFails
		h.mu.Unlock()

		h.logger.Debug("Backend fetch failure recorded",
			zap.Int("consecutive_fails", fails),
			zap.Error(err))
		return
	}

	wasUnreachable := h.health.Status == models.BackendUnreachable
	downDuration := now.Sub(h.health.UnreachableAt)

	h.health.Status = models.BackendHealthy
	h.health.LastSuccess = now
	h.health.LastError = ""
	h.health.ConsecutiveFails = 0
	h.mu.Unlock()

	if !wasUnreachable {
		return
	}

	h.logger.Info("Backend recovered", zap.Duration("down_duration", downDuration))

	if h.alerter != nil {
		if err := h.alerter.SendBackendRecoveryAlert(downDuration); err != nil {
			h.logger.Error("Failed to send backend recovery alert", zap.Error(err))
		}
	}
}

// checkTimeout declares the backend unreachable once no fetch has succeeded within the timeout
func (h *BackendHealthService) checkTimeout() {
	h.mu.Lock()

	if h.health.Status == models.BackendUnreachable || h.health.ConsecutiveFails == 0 {
		h.mu.Unlock()
		return
	}

	now := h.now()
	sinceSuccess := now.Sub(h.health.LastSuccess)
	if sinceSuccess <= h.timeout {
		h.mu.Unlock()
		return
	}

	h.health.Status = models.BackendUnreachable
	h.health.UnreachableAt = now
	lastSuccess := h.health.LastSuccess
	lastErr := h.health.LastError
	h.mu.Unlock()

	h.logger.Warn("Backend unreachable",
		zap.Time("last_success", lastSuccess),
		zap.Duration("time_since_success", sinceSuccess),
		zap.String("last_error", lastErr))

	if h.alerter != nil {
		if err := h.alerter.SendBackendUnreachableAlert(lastSuccess, sinceSuccess, lastErr); err != nil {
			h.logger.Error("Failed to send backend unreachable alert", zap.Error(err))
		}
	}
}

// Health returns a copy of the current backend health
func (h *BackendHealthService) Health() models.BackendHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.health
}
