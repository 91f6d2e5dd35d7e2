package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"edms/config"
	"edms/models"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

var (
	// ErrTransport covers network failures and unexpected HTTP statuses
	ErrTransport = errors.New("backend transport failure")
	// ErrMalformedResponse means the backend answered with an unexpected shape
	ErrMalformedResponse = errors.New("malformed backend response")
	// ErrStatusRejected means the backend answered a status update with an error payload
	ErrStatusRejected = errors.New("status update rejected")
)

const (
	devicesPath = "/api/emergency-device"
	userAgent   = "EDMS-Notifier/1.0"
)

// StatusUpdateResponse is the payload returned by PUT /api/emergency-device/{id}/status
type StatusUpdateResponse struct {
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
	RedirectURL string `json:"redirectURL,omitempty"`
}

// BackendClient talks to the EDMS REST backend
type BackendClient struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	logger        *zap.Logger
	fetchAttempts int
	retryDelay    time.Duration
}

// NewBackendClient creates a client for the configured EDMS backend
func NewBackendClient(cfg *config.Config, logger *zap.Logger) *BackendClient {
	timeout := cfg.BackendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := cfg.BackendFetchAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &BackendClient{
		baseURL: cfg.BackendURL,
		token:   cfg.BackendToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:        logger,
		fetchAttempts: attempts,
		retryDelay:    time.Second,
	}
}

// FetchDevices lists devices matching the filter, retrying transport failures
func (b *BackendClient) FetchDevices(ctx context.Context, filter models.DeviceFilter) ([]models.Device, error) {
	var devices []models.Device
	err := withRetry(ctx, b.fetchAttempts, b.retryDelay, func(attempt int) error {
		var err error
		devices, err = b.listDevices(ctx, filter)
		if errors.Is(err, ErrMalformedResponse) {
			// Another attempt would decode the same payload
			return backoff.Permanent(err)
		}
		if err != nil && attempt < b.fetchAttempts {
			b.logger.Warn("Device fetch failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", b.fetchAttempts),
				zap.Error(err))
		}
		return err
	})
	if err != nil {
		return []models.Device{}, err
	}
	return devices, nil
}

func (b *BackendClient) listDevices(ctx context.Context, filter models.DeviceFilter) ([]models.Device, error) {
	endpoint := b.baseURL + devicesPath
	params := url.Values{}
	if filter.BuildingCode != "" {
		params.Set("building_code", filter.BuildingCode)
	}
	if filter.SiteID != "" {
		params.Set("site_id", filter.SiteID)
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrTransport, err)
	}
	b.decorate(req)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s returned %s", ErrTransport, devicesPath, resp.Status)
	}

	var devices []models.Device
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if devices == nil {
		devices = []models.Device{}
	}

	b.logger.Debug("Fetched devices",
		zap.Int("count", len(devices)),
		zap.String("building_code", filter.BuildingCode),
		zap.String("site_id", filter.SiteID))

	return devices, nil
}

// UpdateDeviceStatus persists a new status for a device. It succeeds only
// when the backend acknowledges with a message payload.
func (b *BackendClient) UpdateDeviceStatus(ctx context.Context, deviceID int64, status models.DeviceStatus) error {
	body, err := json.Marshal(map[string]string{"status": string(status)})
	if err != nil {
		return fmt.Errorf("marshal status update: %w", err)
	}

	endpoint := fmt.Sprintf("%s%s/%d/status", b.baseURL, devicesPath, deviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	b.decorate(req)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	var payload StatusUpdateResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		if resp.StatusCode >= 400 {
			return fmt.Errorf("%w: PUT status returned %s", ErrTransport, resp.Status)
		}
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	switch {
	case payload.Error != "":
		return fmt.Errorf("%w: %s", ErrStatusRejected, payload.Error)
	case payload.Message != "":
		b.logger.Debug("Device status updated",
			zap.Int64("device_id", deviceID),
			zap.String("status", string(status)),
			zap.String("message", payload.Message))
		return nil
	default:
		return fmt.Errorf("%w: neither message nor error in status response", ErrMalformedResponse)
	}
}

func (b *BackendClient) decorate(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if b.token != "" {
		req.AddCookie(&http.Cookie{Name: "token", Value: b.token})
	}
}
