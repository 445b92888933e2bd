package mq

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("mq: connection is not open yet")

type Config struct {
	URL               string
	Exchange          string
	ReconnectInterval time.Duration
	ConnectTimeout    time.Duration
}

// Queue keeps one AMQP connection alive and publishes to a topic exchange.
type Queue struct {
	config *Config
	mu     sync.Mutex
	conn   *amqp.Connection
	log    *zap.Logger
}

func New(config *Config, logger *zap.Logger) *Queue {
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = 5 * time.Second
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.Exchange == "" {
		config.Exchange = "recon.events"
	}
	return &Queue{
		config: config,
		log:    logger.Named("queue"),
	}
}

// Start runs the reconnect loop until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) error {
	q.log.Info("starting the queue manager")
	defer q.log.Info("stopping the queue manager")

	for {
		select {
		case <-ctx.Done():
			q.close()
			return ctx.Err()
		default:
		}

		if err := q.connect(); err != nil {
			q.log.Error("connection to rabbitmq failed", zap.Error(err))
			if !sleep(ctx, q.config.ReconnectInterval) {
				return ctx.Err()
			}
			continue
		}
		q.log.Info("connected to rabbitmq")

		connErrors := make(chan *amqp.Error, 1)
		q.mu.Lock()
		q.conn.NotifyClose(connErrors)
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			q.close()
			return ctx.Err()
		case err := <-connErrors:
			q.log.Error("rabbitmq connection closed", zap.Error(err))
		}

		q.mu.Lock()
		q.conn = nil
		q.mu.Unlock()
		if !sleep(ctx, q.config.ReconnectInterval) {
			return ctx.Err()
		}
	}
}

func (q *Queue) connect() error {
	conn, err := amqp.DialConfig(q.config.URL, amqp.Config{
		Dial: amqp.DefaultDial(q.config.ConnectTimeout),
	})
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(q.config.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return err
	}

	q.mu.Lock()
	q.conn = conn
	q.mu.Unlock()
	return nil
}

func (q *Queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.conn != nil {
		_ = q.conn.Close()
		q.conn = nil
	}
}

// Publish sends a persistent JSON message with the given routing key.
func (q *Queue) Publish(ctx context.Context, routingKey string, message []byte) error {
	q.mu.Lock()
	conn := q.conn
	q.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx,
		q.config.Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         message,
		},
	)
	if err != nil {
		q.log.Error("failed to publish", zap.String("routing_key", routingKey), zap.Error(err))
		return err
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
