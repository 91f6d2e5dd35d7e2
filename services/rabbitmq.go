package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"edms/config"
	"edms/models"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RefreshRoutingKey routes refresh requests from the events exchange to the refresh queue
const RefreshRoutingKey = "notifications.refresh"

var errMalformedRefresh = errors.New("malformed refresh request")

// RabbitMQService publishes status transitions and consumes refresh requests
type RabbitMQService struct {
	config    *config.Config
	conn      *amqp.Connection
	channel   *amqp.Channel
	chanMu    sync.RWMutex
	logger    *zap.Logger
	reconnect chan bool
	isClosing atomic.Bool

	forwardTimeout time.Duration
}

// NewRabbitMQService creates a new RabbitMQ service instance
func NewRabbitMQService(cfg *config.Config, logger *zap.Logger) (*RabbitMQService, error) {
	service := &RabbitMQService{
		config:    cfg,
		logger:    logger,
		reconnect: make(chan bool, 1),

		forwardTimeout: 5 * time.Second,
	}

	if err := service.connect(); err != nil {
		return nil, err
	}

	return service, nil
}

// connect establishes connection to RabbitMQ and declares exchange and queue
func (r *RabbitMQService) connect() error {
	var (
		conn *amqp.Connection
		err  error
	)

	r.logger.Info("Connecting to RabbitMQ", zap.String("exchange", r.config.RabbitMQExchange))

	maxRetries := 5
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err = amqp.Dial(r.config.RabbitMQURL)
		if err == nil {
			break
		}

		r.logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
	}

	r.logger.Info("Connected to RabbitMQ successfully")

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := r.declareTopology(channel); err != nil {
		conn.Close()
		return err
	}

	r.chanMu.Lock()
	r.conn = conn
	r.channel = channel
	r.chanMu.Unlock()

	go r.handleReconnect(conn)

	return nil
}

func (r *RabbitMQService) declareTopology(channel *amqp.Channel) error {
	// Refresh requests are cheap but each one triggers a full pass
	if err := channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	err := channel.ExchangeDeclare(
		r.config.RabbitMQExchange, // name
		"topic",                   // type
		true,                      // durable
		false,                     // auto-deleted
		false,                     // internal
		false,                     // no-wait
		nil,                       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	r.logger.Info("Exchange declared", zap.String("exchange", r.config.RabbitMQExchange))

	queue, err := channel.QueueDeclare(
		r.config.RabbitMQRefreshQueue, // name
		true,                          // durable
		false,                         // delete when unused
		false,                         // exclusive
		false,                         // no-wait
		nil,                           // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	err = channel.QueueBind(
		queue.Name,                // queue name
		RefreshRoutingKey,         // routing key
		r.config.RabbitMQExchange, // exchange
		false,                     // no-wait
		nil,                       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	r.logger.Info("Refresh queue bound to exchange",
		zap.String("queue", queue.Name),
		zap.String("exchange", r.config.RabbitMQExchange),
		zap.String("routing_key", RefreshRoutingKey))

	return nil
}

// handleReconnect handles automatic reconnection when connection is lost
func (r *RabbitMQService) handleReconnect(conn *amqp.Connection) {
	closeErr := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if r.isClosing.Load() {
		r.logger.Info("RabbitMQ connection closed gracefully")
		return
	}

	r.logger.Error("RabbitMQ connection lost", zap.Error(closeErr))

	for !r.isClosing.Load() {
		r.logger.Info("Attempting to reconnect to RabbitMQ...")
		err := r.connect()
		if err == nil {
			r.logger.Info("Successfully reconnected to RabbitMQ")
			select {
			case r.reconnect <- true:
			default:
			}
			return
		}

		r.logger.Error("Failed to reconnect", zap.Error(err))
		time.Sleep(5 * time.Second)
	}
}

func (r *RabbitMQService) currentChannel() *amqp.Channel {
	r.chanMu.RLock()
	defer r.chanMu.RUnlock()
	return r.channel
}

// RecordTransition publishes a status transition event
func (r *RabbitMQService) RecordTransition(ctx context.Context, t models.StatusTransition) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}

	err = r.publish(ctx, r.config.RabbitMQTransitionKey, transitionMessageID(t), body)
	if err != nil {
		return fmt.Errorf("failed to publish transition: %w", err)
	}

	r.logger.Debug("Published status transition",
		zap.Int64("device_id", t.DeviceID),
		zap.String("to", string(t.To)))
	return nil
}

// PublishRefreshRequest asks a running service to run a pass
func (r *RabbitMQService) PublishRefreshRequest(ctx context.Context, req models.RefreshRequest) error {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh request: %w", err)
	}

	if err := r.publish(ctx, RefreshRoutingKey, req.RequestID, body); err != nil {
		return fmt.Errorf("failed to publish refresh request: %w", err)
	}
	return nil
}

func (r *RabbitMQService) publish(ctx context.Context, routingKey, messageID string, body []byte) error {
	return r.currentChannel().PublishWithContext(ctx,
		r.config.RabbitMQExchange, // exchange
		routingKey,                // routing key
		false,                     // mandatory
		false,                     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    messageID,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

func transitionMessageID(t models.StatusTransition) string {
	return fmt.Sprintf("%s/%d/%s", t.PassID, t.DeviceID, t.Rule)
}

// ConsumeRefreshRequests forwards refresh requests from the queue until ctx is done
func (r *RabbitMQService) ConsumeRefreshRequests(ctx context.Context, out chan<- models.RefreshRequest) error {
	for {
		msgs, err := r.currentChannel().Consume(
			r.config.RabbitMQRefreshQueue, // queue
			"edms-notifier",               // consumer tag
			false,                         // auto-ack
			false,                         // exclusive
			false,                         // no-local
			false,                         // no-wait
			nil,                           // args
		)
		if err != nil {
			return fmt.Errorf("failed to register consumer: %w", err)
		}

		r.logger.Info("Started consuming refresh requests",
			zap.String("queue", r.config.RabbitMQRefreshQueue))

	consumeLoop:
		for {
			select {
			case <-ctx.Done():
				r.logger.Info("Stopping RabbitMQ consumer")
				return nil

			case <-r.reconnect:
				r.logger.Info("Reconnection detected, restarting consumer")
				break consumeLoop

			case msg, ok := <-msgs:
				if !ok {
					r.logger.Warn("Message channel closed")
					select {
					case <-ctx.Done():
						return nil
					case <-r.reconnect:
					}
					break consumeLoop
				}

				if err := r.processMessage(ctx, msg.Body, out); err != nil {
					requeue := !errors.Is(err, errMalformedRefresh)
					r.logger.Error("Failed to process refresh request",
						zap.Error(err),
						zap.String("message_id", msg.MessageId),
						zap.Bool("requeue", requeue))

					// Malformed requests are dropped rather than requeued forever
					_ = msg.Nack(false, requeue)
				} else {
					_ = msg.Ack(false)
				}
			}
		}
	}
}

// processMessage parses a refresh request and forwards it to the monitor
func (r *RabbitMQService) processMessage(ctx context.Context, body []byte, out chan<- models.RefreshRequest) error {
	req, err := decodeRefreshRequest(body, time.Now())
	if err != nil {
		return err
	}

	r.logger.Info("Received refresh request",
		zap.String("request_id", req.RequestID),
		zap.String("building_code", req.BuildingCode),
		zap.String("site_id", req.SiteID),
		zap.String("requested_by", req.RequestedBy))

	select {
	case out <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.forwardTimeout):
		return fmt.Errorf("timeout sending to refresh channel")
	}
}

func decodeRefreshRequest(body []byte, now time.Time) (models.RefreshRequest, error) {
	var req models.RefreshRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return req, fmt.Errorf("%w: %v", errMalformedRefresh, err)
		}
	}

	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = now
	}
	return req, nil
}

// Close gracefully closes RabbitMQ connection
func (r *RabbitMQService) Close() error {
	r.isClosing.Store(true)

	r.logger.Info("Closing RabbitMQ connection")

	r.chanMu.Lock()
	defer r.chanMu.Unlock()

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Error("Error closing channel", zap.Error(err))
		}
	}

	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			r.logger.Error("Error closing connection", zap.Error(err))
			return err
		}
	}

	r.logger.Info("RabbitMQ connection closed")
	return nil
}
