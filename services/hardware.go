package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"edms/models"

	"go.uber.org/zap"
)

const hardwareAlertPath = "/api/v1/hardware-alert"

// HardwareAlertService drives the building's alert hardware from critical summaries
type HardwareAlertService struct {
	logger     *zap.Logger
	apiURL     string
	httpClient *http.Client
}

// HardwareAlertPayload represents the payload sent to hardware alert API
type HardwareAlertPayload struct {
	Severity  string               `json:"severity"`
	AlertType string               `json:"alert_type"`
	Critical  int                  `json:"critical"`
	Warning   int                  `json:"warning"`
	Items     []models.SummaryItem `json:"items"`
}

// NewHardwareAlertService creates a new hardware alert service
func NewHardwareAlertService(logger *zap.Logger, apiURL string) *HardwareAlertService {
	return &HardwareAlertService{
		logger: logger,
		apiURL: strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (h *HardwareAlertService) Name() string { return "hardware" }

// Notify posts the critical items of the summary; summaries without critical items are skipped
func (h *HardwareAlertService) Notify(ctx context.Context, summary *models.NotificationSummary) error {
	items := summary.Critical()
	if len(items) == 0 {
		return nil
	}

	critical, warning := summary.Counts()
	severity := determineSeverity(items)

	payload := HardwareAlertPayload{
		Severity:  severity,
		AlertType: "device_notification",
		Critical:  critical,
		Warning:   warning,
		Items:     items,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	endpoint := h.apiURL + hardwareAlertPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Error("Failed to send hardware alert",
			zap.Error(err),
			zap.String("pass_id", summary.PassID),
			zap.String("url", endpoint),
		)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		h.logger.Info("Hardware alert sent successfully",
			zap.String("pass_id", summary.PassID),
			zap.Int("critical_count", critical),
			zap.String("severity", severity),
			zap.Int("status_code", resp.StatusCode),
		)
		return nil
	}

	h.logger.Error("Hardware alert API returned error",
		zap.String("pass_id", summary.PassID),
		zap.Int("status_code", resp.StatusCode),
		zap.String("status", resp.Status),
	)
	return fmt.Errorf("hardware alert API error: %s", resp.Status)
}

// determineSeverity maps the worst reason among critical items to an alert level
func determineSeverity(items []models.SummaryItem) string {
	hasOverdueInspection := false
	for _, item := range items {
		switch item.Reason {
		case models.ReasonInspectionFailed, models.ReasonExpired:
			return "critical"
		case models.ReasonInspectionDue:
			hasOverdueInspection = true
		}
	}

	if hasOverdueInspection {
		return "high"
	}
	return "medium"
}
