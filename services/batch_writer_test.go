package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"edms/config"
	"edms/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTransitionWriter struct {
	mu      sync.Mutex
	batches [][]models.StatusTransition
	calls   int
	err     error
}

func (f *fakeTransitionWriter) WriteTransitions(_ context.Context, batch []models.StatusTransition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeTransitionWriter) written() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func (f *fakeTransitionWriter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestBatchWriter(writer TransitionWriter, size int, timeout time.Duration) *BatchWriterService {
	bw := NewBatchWriterService(&config.Config{FirebaseBatchSize: size, FirebaseBatchTimeout: 30}, writer, zap.NewNop())
	bw.batchTimeout = timeout
	bw.retryDelay = time.Millisecond
	return bw
}

func transitionFor(id int64) models.StatusTransition {
	return models.StatusTransition{
		PassID:   "pass-1",
		DeviceID: id,
		From:     models.StatusActive,
		To:       models.StatusExpired,
		Rule:     models.RuleExpiry,
		At:       testNow,
	}
}

func TestBatchWriterService_FlushesWhenFull(t *testing.T) {
	writer := &fakeTransitionWriter{}
	bw := newTestBatchWriter(writer, 2, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bw.Start(ctx)

	require.NoError(t, bw.RecordTransition(ctx, transitionFor(1)))
	require.NoError(t, bw.RecordTransition(ctx, transitionFor(2)))

	assert.Eventually(t, func() bool { return writer.written() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, writer.callCount())
}

func TestBatchWriterService_FlushesOnTimeout(t *testing.T) {
	writer := &fakeTransitionWriter{}
	bw := newTestBatchWriter(writer, 10, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bw.Start(ctx)

	require.NoError(t, bw.RecordTransition(ctx, transitionFor(1)))

	assert.Eventually(t, func() bool { return writer.written() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBatchWriterService_FlushesOnShutdown(t *testing.T) {
	writer := &fakeTransitionWriter{}
	bw := newTestBatchWriter(writer, 10, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go bw.Start(ctx)

	require.NoError(t, bw.RecordTransition(ctx, transitionFor(1)))
	require.NoError(t, bw.RecordTransition(ctx, transitionFor(2)))
	cancel()

	require.True(t, bw.WaitForShutdown(time.Second))
	assert.Equal(t, 2, writer.written())
	assert.Zero(t, bw.GetBufferSize())
}

func TestBatchWriterService_DropsAfterRetries(t *testing.T) {
	writer := &fakeTransitionWriter{err: errors.New("permission denied")}
	bw := newTestBatchWriter(writer, 1, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bw.Start(ctx)

	require.NoError(t, bw.RecordTransition(ctx, transitionFor(1)))

	assert.Eventually(t, func() bool { return writer.callCount() == 3 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return bw.GetBufferSize() == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, writer.written())
}
