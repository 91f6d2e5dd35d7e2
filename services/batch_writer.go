package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"edms/config"
	"edms/models"

	"go.uber.org/zap"
)

// TransitionWriter persists a batch of transitions
type TransitionWriter interface {
	WriteTransitions(ctx context.Context, batch []models.StatusTransition) error
}

// BatchWriterService buffers status transitions and writes them in batches
type BatchWriterService struct {
	writer       TransitionWriter
	logger       *zap.Logger
	input        chan models.StatusTransition
	buffer       []models.StatusTransition
	bufferMutex  sync.Mutex
	flushTimer   *time.Timer
	maxBatchSize int
	batchTimeout time.Duration
	maxRetries   int
	retryDelay   time.Duration
	shutdownChan chan bool
}

// NewBatchWriterService creates a new batch writer service
func NewBatchWriterService(cfg *config.Config, writer TransitionWriter, logger *zap.Logger) *BatchWriterService {
	size := cfg.FirebaseBatchSize
	if size <= 0 {
		size = 1
	}
	timeout := time.Duration(cfg.FirebaseBatchTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &BatchWriterService{
		writer:       writer,
		logger:       logger,
		input:        make(chan models.StatusTransition, size),
		buffer:       make([]models.StatusTransition, 0, size),
		maxBatchSize: size,
		batchTimeout: timeout,
		maxRetries:   3,
		retryDelay:   time.Second,
		shutdownChan: make(chan bool, 1),
	}
}

// RecordTransition queues a transition for the next batch
func (bw *BatchWriterService) RecordTransition(ctx context.Context, t models.StatusTransition) error {
	select {
	case bw.input <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout queueing transition for device %d", t.DeviceID)
	}
}

// Start begins the batch writer service
func (bw *BatchWriterService) Start(ctx context.Context) {
	bw.logger.Info("Starting batch writer service",
		zap.Int("max_batch_size", bw.maxBatchSize),
		zap.Duration("batch_timeout", bw.batchTimeout))

	bw.flushTimer = time.NewTimer(bw.batchTimeout)
	defer bw.flushTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			bw.logger.Info("Batch writer received shutdown signal")
			bw.drainInput()
			// The parent context is already cancelled, so the final flush gets its own
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			bw.flushBuffer(flushCtx)
			cancel()
			bw.shutdownChan <- true
			return

		case t := <-bw.input:
			currentSize := bw.add(t)

			bw.logger.Debug("Added transition to buffer",
				zap.Int64("device_id", t.DeviceID),
				zap.Int("buffer_size", currentSize),
				zap.Int("max_batch_size", bw.maxBatchSize))

			if currentSize >= bw.maxBatchSize {
				bw.logger.Info("Buffer full, flushing transitions",
					zap.Int("buffer_size", currentSize))

				if !bw.flushTimer.Stop() {
					select {
					case <-bw.flushTimer.C:
					default:
					}
				}

				bw.flushBuffer(ctx)
				bw.flushTimer.Reset(bw.batchTimeout)
			}

		case <-bw.flushTimer.C:
			if size := bw.GetBufferSize(); size > 0 {
				bw.logger.Info("Batch timeout reached, flushing transitions",
					zap.Int("buffer_size", size))
				bw.flushBuffer(ctx)
			}

			bw.flushTimer.Reset(bw.batchTimeout)
		}
	}
}

func (bw *BatchWriterService) add(t models.StatusTransition) int {
	bw.bufferMutex.Lock()
	defer bw.bufferMutex.Unlock()
	bw.buffer = append(bw.buffer, t)
	return len(bw.buffer)
}

// drainInput moves anything still queued into the buffer
func (bw *BatchWriterService) drainInput() {
	for {
		select {
		case t := <-bw.input:
			bw.add(t)
		default:
			return
		}
	}
}

// flushBuffer writes the current buffer and clears it
func (bw *BatchWriterService) flushBuffer(ctx context.Context) {
	bw.bufferMutex.Lock()

	if len(bw.buffer) == 0 {
		bw.bufferMutex.Unlock()
		return
	}

	batch := make([]models.StatusTransition, len(bw.buffer))
	copy(batch, bw.buffer)
	bw.buffer = bw.buffer[:0]

	bw.bufferMutex.Unlock()

	err := withRetry(ctx, bw.maxRetries, bw.retryDelay, func(attempt int) error {
		err := bw.writer.WriteTransitions(ctx, batch)
		if err != nil {
			bw.logger.Error("Failed to flush transitions",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", bw.maxRetries),
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
		}
		return err
	})
	if err == nil {
		bw.logger.Info("Successfully flushed transitions",
			zap.Int("batch_size", len(batch)))
		return
	}

	bw.logger.Error("Failed to flush transitions after all retries, data lost",
		zap.Int("batch_size", len(batch)),
		zap.Error(err))
}

// WaitForShutdown waits for the batch writer to complete shutdown
func (bw *BatchWriterService) WaitForShutdown(timeout time.Duration) bool {
	select {
	case <-bw.shutdownChan:
		return true
	case <-time.After(timeout):
		return false
	}
}

// GetBufferSize returns the current buffer size (for monitoring)
func (bw *BatchWriterService) GetBufferSize() int {
	bw.bufferMutex.Lock()
	defer bw.bufferMutex.Unlock()
	return len(bw.buffer)
}
