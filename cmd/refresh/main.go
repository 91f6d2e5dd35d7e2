package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"edms/config"
	"edms/models"
	"edms/services"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	buildingCode = flag.String("building", "", "Building code to refresh (default: the service's configured filter)")
	siteID       = flag.String("site", "", "Site ID to refresh")
	requestedBy  = flag.String("by", "", "Requester name recorded in the service logs")
	rabbitMQURL  = flag.String("rabbitmq", "", "RabbitMQ URL (default from config)")
)

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	if *rabbitMQURL != "" {
		cfg.RabbitMQURL = *rabbitMQURL
	}
	if !cfg.RabbitMQEnabled() {
		logger.Fatal("RABBITMQ_URL is not set")
	}

	who := *requestedBy
	if who == "" {
		who, _ = os.Hostname()
	}

	rabbitMQService, err := services.NewRabbitMQService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rabbitMQService.Close()

	req := models.RefreshRequest{
		RequestID:    uuid.New().String(),
		BuildingCode: *buildingCode,
		SiteID:       *siteID,
		RequestedBy:  who,
		RequestedAt:  time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := rabbitMQService.PublishRefreshRequest(ctx, req); err != nil {
		logger.Fatal("Failed to publish refresh request", zap.Error(err))
	}

	sent, _ := json.MarshalIndent(req, "", "  ")
	logger.Info("Refresh request published",
		zap.String("request_id", req.RequestID),
		zap.String("exchange", cfg.RabbitMQExchange),
		zap.String("routing_key", services.RefreshRoutingKey))
	logger.Info("Sent data:\n" + string(sent))
}
