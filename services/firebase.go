package services

import (
	"context"
	"fmt"
	"time"

	"edms/config"
	"edms/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	latestSnapshotPath = "notifications/latest"
	transitionsPath    = "transitions"
)

type FirebaseService struct {
	client *db.Client
	logger *zap.Logger
}

func NewFirebaseService(cfg *config.Config, logger *zap.Logger) (*FirebaseService, error) {
	ctx := context.Background()

	// Parse the service account JSON from environment variable
	serviceAccountJSON := []byte(cfg.FirebaseServiceAccountJSON)

	conf := &firebase.Config{
		DatabaseURL: cfg.FirebaseDbUrl,
	}

	opt := option.WithCredentialsJSON(serviceAccountJSON)
	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}

	fs := &FirebaseService{
		client: client,
		logger: logger,
	}

	// Test Firebase connection with retry
	if err := fs.testConnection(ctx); err != nil {
		logger.Error("Firebase connection test failed", zap.Error(err))
		return nil, fmt.Errorf("firebase connection test failed: %w", err)
	}

	return fs, nil
}

// testConnection tests Firebase connection with retry logic
func (fs *FirebaseService) testConnection(ctx context.Context) error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		fs.logger.Info("Testing Firebase connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		var data interface{}
		err := fs.client.NewRef(latestSnapshotPath).Get(ctx, &data)
		if err == nil {
			fs.logger.Info("Firebase connection successful")
			return nil
		}

		fs.logger.Warn("Firebase connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Firebase after %d attempts", maxRetries)
}

func (fs *FirebaseService) Name() string { return "firebase" }

// Notify replaces the latest summary snapshot
func (fs *FirebaseService) Notify(ctx context.Context, summary *models.NotificationSummary) error {
	if err := fs.client.NewRef(latestSnapshotPath).Set(ctx, summary); err != nil {
		return fmt.Errorf("error writing summary snapshot: %w", err)
	}

	fs.logger.Debug("Summary snapshot written to Firebase",
		zap.String("pass_id", summary.PassID),
		zap.Int("items", len(summary.Items)))
	return nil
}

// WriteTransitions writes a batch of transitions in a single multi-path update
func (fs *FirebaseService) WriteTransitions(ctx context.Context, batch []models.StatusTransition) error {
	if len(batch) == 0 {
		return nil
	}

	if err := fs.client.NewRef(transitionsPath).Update(ctx, transitionUpdates(batch)); err != nil {
		return fmt.Errorf("error writing transitions: %w", err)
	}
	return nil
}

// transitionUpdates keys each transition by pass and device so a retried batch overwrites itself
func transitionUpdates(batch []models.StatusTransition) map[string]interface{} {
	updates := make(map[string]interface{}, len(batch))
	for _, t := range batch {
		updates[transitionKey(t)] = t
	}
	return updates
}

func transitionKey(t models.StatusTransition) string {
	return fmt.Sprintf("%s-%d-%s", t.PassID, t.DeviceID, t.Rule)
}

// GetLatestSnapshot reads the last summary written by Notify
func (fs *FirebaseService) GetLatestSnapshot(ctx context.Context) (*models.NotificationSummary, error) {
	var summary models.NotificationSummary
	if err := fs.client.NewRef(latestSnapshotPath).Get(ctx, &summary); err != nil {
		return nil, fmt.Errorf("error reading summary snapshot: %w", err)
	}

	if summary.PassID == "" {
		return nil, fmt.Errorf("no snapshot found")
	}

	return &summary, nil
}

// Close closes the Firebase connection
func (fs *FirebaseService) Close() error {
	fs.logger.Info("Closing Firebase service")
	// Firebase client doesn't require explicit closing but we log it
	return nil
}
