package services

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"edms/models"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// PassRunner runs notification passes for the HTTP API
type PassRunner interface {
	Evaluate(ctx context.Context, filter models.DeviceFilter) (*PassResult, *models.NotificationSummary)
	LastPass() (*PassResult, *models.NotificationSummary)
}

// HealthReporter exposes the backend health for /health
type HealthReporter interface {
	Health() models.BackendHealth
}

// APIRouter serves notifications over HTTP
type APIRouter struct {
	*mux.Router
	runner    PassRunner
	health    HealthReporter
	logger    *zap.Logger
	startedAt time.Time
	now       func() time.Time
}

// apiResponse is the envelope shared by every endpoint
type apiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

type healthMeta struct {
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Timestamp     time.Time             `json:"timestamp"`
	LastPass      *lastPassMeta         `json:"last_pass,omitempty"`
	Backend       *models.BackendHealth `json:"backend,omitempty"`
}

type lastPassMeta struct {
	PassID        string    `json:"pass_id"`
	StartedAt     time.Time `json:"started_at"`
	Devices       int       `json:"devices"`
	Notifications int       `json:"notifications"`
}

type summaryData struct {
	Count int                  `json:"count"`
	Items []models.SummaryItem `json:"items"`
}

// NewAPIRouter creates the HTTP router. health may be nil.
func NewAPIRouter(runner PassRunner, health HealthReporter, logger *zap.Logger) *APIRouter {
	r := &APIRouter{
		Router:    mux.NewRouter(),
		runner:    runner,
		health:    health,
		logger:    logger,
		startedAt: time.Now(),
		now:       time.Now,
	}

	r.HandleFunc("/health", r.healthCheck).Methods(http.MethodGet)

	api := r.PathPrefix("/api/notifications").Subrouter()
	api.HandleFunc("", r.listNotifications).Methods(http.MethodGet)
	api.HandleFunc("/summary", r.getSummary).Methods(http.MethodGet)

	return r
}

func (r *APIRouter) healthCheck(w http.ResponseWriter, req *http.Request) {
	now := r.now()
	meta := healthMeta{
		UptimeSeconds: int64(now.Sub(r.startedAt).Seconds()),
		Timestamp:     now,
	}

	if result, _ := r.runner.LastPass(); result != nil {
		meta.LastPass = &lastPassMeta{
			PassID:        result.PassID,
			StartedAt:     result.StartedAt,
			Devices:       result.DeviceCount,
			Notifications: len(result.Entries),
		}
	}

	message := "Service is healthy"
	if r.health != nil {
		backend := r.health.Health()
		meta.Backend = &backend
		if backend.Status == models.BackendUnreachable {
			message = "EDMS backend unreachable"
		}
	}

	respondJSON(w, http.StatusOK, apiResponse{Success: true, Message: message, Meta: meta})
}

func (r *APIRouter) listNotifications(w http.ResponseWriter, req *http.Request) {
	result, _ := r.runner.Evaluate(req.Context(), filterFromQuery(req))

	entries := result.Entries
	if entries == nil {
		entries = []*models.NotificationEntry{}
	}

	respondJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data:    entries,
		Meta:    map[string]interface{}{"pass_id": result.PassID, "count": len(entries)},
	})
}

func (r *APIRouter) getSummary(w http.ResponseWriter, req *http.Request) {
	_, summary := r.runner.Evaluate(req.Context(), filterFromQuery(req))

	items := summary.Items
	if items == nil {
		items = []models.SummaryItem{}
	}

	respondJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data:    summaryData{Count: len(items), Items: items},
		Meta:    map[string]interface{}{"pass_id": summary.PassID},
	})
}

func filterFromQuery(req *http.Request) models.DeviceFilter {
	q := req.URL.Query()
	return models.DeviceFilter{
		BuildingCode: q.Get("building_code"),
		SiteID:       q.Get("site_id"),
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
