package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edms/config"
	"edms/log"
	"edms/models"
	"edms/services"

	"go.uber.org/zap"
)

func main() {
	// Initialize structured logger
	logger := log.GetInstance()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	log.SetLevel(cfg.LogLevel)

	// Day boundaries for due and expiry dates follow the local zone
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			logger.Fatal("Failed to load timezone", zap.String("timezone", cfg.Timezone), zap.Error(err))
		}
		time.Local = loc
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		notifiers []services.Notifier
		sinks     []services.TransitionSink
		alerter   services.BackendAlerter
	)

	var telegramService *services.TelegramService
	if cfg.TelegramEnabled() {
		telegramService, err = services.NewTelegramService(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram service", zap.Error(err))
		}
		notifiers = append(notifiers, telegramService)
		alerter = telegramService
	}

	if cfg.HardwareAlertURL != "" {
		notifiers = append(notifiers, services.NewHardwareAlertService(logger, cfg.HardwareAlertURL))
		logger.Info("Hardware alert service initialized", zap.String("url", cfg.HardwareAlertURL))
	}

	var mqttService *services.MQTTService
	if cfg.MQTTEnabled() {
		mqttService, err = services.NewMQTTService(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize MQTT service", zap.Error(err))
		}
		defer mqttService.Close()
		notifiers = append(notifiers, mqttService)
	}

	var batchWriter *services.BatchWriterService
	if cfg.FirebaseEnabled() {
		firebaseService, err := services.NewFirebaseService(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Firebase service", zap.Error(err))
		}
		defer firebaseService.Close()

		notifiers = append(notifiers, firebaseService)
		batchWriter = services.NewBatchWriterService(cfg, firebaseService, logger)
		sinks = append(sinks, batchWriter)
		go batchWriter.Start(ctx)
	}

	refreshChan := make(chan models.RefreshRequest, 10)

	var rabbitMQService *services.RabbitMQService
	if cfg.RabbitMQEnabled() {
		rabbitMQService, err = services.NewRabbitMQService(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize RabbitMQ service", zap.Error(err))
		}
		defer rabbitMQService.Close()
		sinks = append(sinks, rabbitMQService)

		go func() {
			if err := rabbitMQService.ConsumeRefreshRequests(ctx, refreshChan); err != nil {
				logger.Error("RabbitMQ consumer stopped", zap.Error(err))
			}
		}()
	}

	backendHealth := services.NewBackendHealthService(cfg.BackendHealthTimeout, alerter, logger)
	go backendHealth.Start(ctx)

	engine := services.NewNotificationEngine(
		services.NewBackendClient(cfg, logger),
		logger,
		services.WithTransitionWorkers(cfg.TransitionWorkers),
		services.WithTransitionSinks(sinks...),
		services.WithFetchObserver(backendHealth),
	)

	defaultFilter := models.DeviceFilter{BuildingCode: cfg.BuildingCode, SiteID: cfg.SiteID}
	monitor := services.NewMonitor(engine, logger, cfg.PollInterval, defaultFilter, notifiers...)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           services.NewAPIRouter(monitor, backendHealth, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP API listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	if telegramService != nil {
		if err := telegramService.SendStartupMessage(); err != nil {
			logger.Warn("Failed to send startup message", zap.Error(err))
		}
	}

	logger.Info("EDMS Notification Service started",
		zap.String("backend_url", cfg.BackendURL),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Int("transition_workers", cfg.TransitionWorkers),
		zap.Int("notifiers", len(notifiers)),
		zap.Int("transition_sinks", len(sinks)),
		zap.String("timezone", time.Local.String()),
	)

	go monitor.Start(ctx, refreshChan)

	// Set up graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received, stopping services")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", zap.Error(err))
	}

	if batchWriter != nil {
		if batchWriter.WaitForShutdown(5 * time.Second) {
			logger.Info("Batch writer flushed")
		} else {
			logger.Warn("Batch writer shutdown timeout")
		}
	}

	logger.Info("EDMS Notification Service stopped")
}
