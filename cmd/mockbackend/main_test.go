package main

import (
	"context"
	"math/rand"
	"net/http/httptest"
	"testing"
	"time"

	"edms/config"
	"edms/models"
	"edms/services"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, count int) *httptest.Server {
	t.Helper()

	backend := NewMockBackend(count, rand.New(rand.NewSource(7)), 0, zap.NewNop())
	r := mux.NewRouter()
	r.HandleFunc("/api/emergency-device", backend.listDevices).Methods("GET")
	r.HandleFunc("/api/emergency-device/{id:[0-9]+}/status", backend.updateStatus).Methods("PUT")

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func TestMockBackend_ServesClientCompatiblePayloads(t *testing.T) {
	server := newTestServer(t, 10)
	client := services.NewBackendClient(&config.Config{BackendURL: server.URL, BackendTimeout: time.Second}, zap.NewNop())

	devices, err := client.FetchDevices(context.Background(), models.DeviceFilter{})
	require.NoError(t, err)
	require.Len(t, devices, 10)

	require.NoError(t, client.UpdateDeviceStatus(context.Background(), devices[0].ID, models.StatusExpired))

	devices, err = client.FetchDevices(context.Background(), models.DeviceFilter{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, devices[0].Status)
}

func TestMockBackend_UnknownDeviceIsRejected(t *testing.T) {
	server := newTestServer(t, 1)
	client := services.NewBackendClient(&config.Config{BackendURL: server.URL, BackendTimeout: time.Second}, zap.NewNop())

	err := client.UpdateDeviceStatus(context.Background(), 999, models.StatusExpired)
	assert.ErrorIs(t, err, services.ErrStatusRejected)
}
