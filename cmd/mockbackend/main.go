package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

var (
	port        = flag.Int("port", 8080, "Port to listen on")
	deviceCount = flag.Int("devices", 25, "Number of mock devices to generate")
	seed        = flag.Int64("seed", 0, "Random seed (0 = time based)")
	failRate    = flag.Float64("fail", 0.0, "Probability of answering a request with 500 (0.0-1.0)")
)

var (
	deviceTypes = []string{"Fire Extinguisher", "Emergency Light", "Smoke Detector", "Fire Blanket", "Exit Sign"}
	buildings   = []string{"A", "B", "C"}
	statuses    = []string{"Active", "Active", "Active", "Inactive", "Inspection Failed"}
)

type nullString struct {
	String string `json:"String"`
	Valid  bool   `json:"Valid"`
}

type nullTime struct {
	Time  time.Time `json:"Time"`
	Valid bool      `json:"Valid"`
}

// mockDevice uses the backend's nullable wrapper format
type mockDevice struct {
	ID                 int64      `json:"emergency_device_id"`
	TypeName           string     `json:"emergency_device_type_name"`
	SerialNumber       nullString `json:"serial_number"`
	RoomCode           string     `json:"room_code"`
	BuildingCode       string     `json:"building_code"`
	SiteID             int64      `json:"site_id"`
	SiteName           string     `json:"site_name"`
	Description        nullString `json:"description"`
	Status             nullString `json:"status"`
	ExpireDate         nullTime   `json:"expire_date"`
	LastInspectionDate nullTime   `json:"last_inspection_date"`
	NextInspectionDate nullTime   `json:"next_inspection_date"`
}

type MockBackend struct {
	mu       sync.Mutex
	devices  []*mockDevice
	rng      *rand.Rand
	failRate float64
	logger   *zap.Logger
}

func NewMockBackend(count int, rng *rand.Rand, failRate float64, logger *zap.Logger) *MockBackend {
	b := &MockBackend{rng: rng, failRate: failRate, logger: logger}
	for i := 1; i <= count; i++ {
		b.devices = append(b.devices, b.generateDevice(int64(i)))
	}
	return b
}

// generateDevice spreads dates from two months ago to two months ahead so every reason shows up
func (b *MockBackend) generateDevice(id int64) *mockDevice {
	today := time.Now().Truncate(24 * time.Hour)
	randomDate := func() nullTime {
		if b.rng.Float64() < 0.1 {
			return nullTime{}
		}
		return nullTime{Time: today.AddDate(0, 0, b.rng.Intn(120)-60), Valid: true}
	}

	building := buildings[b.rng.Intn(len(buildings))]
	return &mockDevice{
		ID:                 id,
		TypeName:           deviceTypes[b.rng.Intn(len(deviceTypes))],
		SerialNumber:       nullString{String: fmt.Sprintf("SN-%05d", id), Valid: b.rng.Float64() > 0.2},
		RoomCode:           fmt.Sprintf("%s%d", building, 100+b.rng.Intn(20)),
		BuildingCode:       building,
		SiteID:             1,
		SiteName:           "Main Campus",
		Status:             nullString{String: statuses[b.rng.Intn(len(statuses))], Valid: true},
		ExpireDate:         randomDate(),
		LastInspectionDate: nullTime{Time: today.AddDate(0, -6, 0), Valid: true},
		NextInspectionDate: randomDate(),
	}
}

func (b *MockBackend) shouldFail() bool {
	return b.failRate > 0 && b.rng.Float64() < b.failRate
}

func (b *MockBackend) listDevices(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shouldFail() {
		http.Error(w, `{"error": "simulated failure"}`, http.StatusInternalServerError)
		return
	}

	building := r.URL.Query().Get("building_code")
	site := r.URL.Query().Get("site_id")

	out := make([]*mockDevice, 0, len(b.devices))
	for _, d := range b.devices {
		if building != "" && d.BuildingCode != building {
			continue
		}
		if site != "" && strconv.FormatInt(d.SiteID, 10) != site {
			continue
		}
		out = append(out, d)
	}

	b.logger.Info("Served device list",
		zap.String("building_code", building),
		zap.String("site_id", site),
		zap.Int("count", len(out)))

	respondJSON(w, http.StatusOK, out)
}

func (b *MockBackend) updateStatus(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shouldFail() {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to update status", "redirectURL": "/dashboard"})
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid device ID"})
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid status"})
		return
	}

	for _, d := range b.devices {
		if d.ID != id {
			continue
		}
		from := d.Status.String
		d.Status = nullString{String: body.Status, Valid: true}

		b.logger.Info("Device status updated",
			zap.Int64("device_id", id),
			zap.String("from", from),
			zap.String("to", body.Status))

		respondJSON(w, http.StatusOK, map[string]string{"message": "Status updated successfully", "redirectURL": "/dashboard"})
		return
	}

	respondJSON(w, http.StatusNotFound, map[string]string{"error": "Device not found"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	backend := NewMockBackend(*deviceCount, rand.New(rand.NewSource(*seed)), *failRate, logger)

	r := mux.NewRouter()
	r.HandleFunc("/api/emergency-device", backend.listDevices).Methods(http.MethodGet)
	r.HandleFunc("/api/emergency-device/{id:[0-9]+}/status", backend.updateStatus).Methods(http.MethodPut)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Mock EDMS backend started",
		zap.String("addr", server.Addr),
		zap.Int("devices", *deviceCount),
		zap.Int64("seed", *seed),
		zap.Float64("fail_rate", *failRate))
	logger.Info("Press Ctrl+C to stop gracefully")

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Mock backend failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, stopping mock backend")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down", zap.Error(err))
	}
}
