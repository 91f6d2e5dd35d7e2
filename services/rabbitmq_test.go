package services

import (
	"context"
	"testing"
	"time"

	"edms/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDecodeRefreshRequest(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		building string
		wantErr  bool
	}{
		{name: "filtered", body: `{"request_id": "r-1", "building_code": "B2", "requested_by": "dashboard"}`, building: "B2"},
		{name: "empty body", body: ``},
		{name: "empty object", body: `{}`},
		{name: "garbage", body: `refresh please`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := decodeRefreshRequest([]byte(tt.body), testNow)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.building, req.BuildingCode)
			assert.NotEmpty(t, req.RequestID)
			assert.Equal(t, testNow, req.RequestedAt)
		})
	}
}

func TestRabbitMQService_ProcessMessageForwards(t *testing.T) {
	r := &RabbitMQService{logger: zap.NewNop(), forwardTimeout: time.Second}
	out := make(chan models.RefreshRequest, 1)

	err := r.processMessage(context.Background(), []byte(`{"site_id": "4"}`), out)

	require.NoError(t, err)
	select {
	case req := <-out:
		assert.Equal(t, models.DeviceFilter{SiteID: "4"}, req.Filter())
	case <-time.After(time.Second):
		t.Fatal("refresh request not forwarded")
	}
}

func TestRabbitMQService_ProcessMessageHonoursContext(t *testing.T) {
	r := &RabbitMQService{logger: zap.NewNop(), forwardTimeout: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.processMessage(ctx, []byte(`{}`), make(chan models.RefreshRequest))

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, errMalformedRefresh, "a busy monitor must not drop a valid request")
}

func TestRabbitMQService_ProcessMessageBusyMonitorIsRequeued(t *testing.T) {
	r := &RabbitMQService{logger: zap.NewNop(), forwardTimeout: 10 * time.Millisecond}

	err := r.processMessage(context.Background(), []byte(`{"building_code": "A"}`), make(chan models.RefreshRequest))

	require.Error(t, err)
	assert.NotErrorIs(t, err, errMalformedRefresh)
}

func TestRabbitMQService_ProcessMessageMalformed(t *testing.T) {
	r := &RabbitMQService{logger: zap.NewNop(), forwardTimeout: time.Second}

	err := r.processMessage(context.Background(), []byte(`{"building_code": 7}`), make(chan models.RefreshRequest, 1))

	assert.ErrorIs(t, err, errMalformedRefresh)
}

func TestTransitionMessageID(t *testing.T) {
	id := transitionMessageID(models.StatusTransition{PassID: "p", DeviceID: 12, Rule: models.RuleInspection})
	assert.Equal(t, "p/12/inspection", id)
}
