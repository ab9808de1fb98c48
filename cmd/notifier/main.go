package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	mailadapter "github.com/robertarktes/tour-bookings/internal/adapters/mail"
	"github.com/robertarktes/tour-bookings/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/tour-bookings/internal/adapters/redis"
	"github.com/robertarktes/tour-bookings/internal/config"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/robertarktes/tour-bookings/internal/notification"
	"github.com/robertarktes/tour-bookings/internal/observability"
)

const queue = "notifier.booking-confirmed"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "tours-notifier")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)

	sender, err := mailadapter.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
	if err != nil {
		log.Fatalf("failed to create mail sender: %v", err)
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, queue, rabbit.RoutingBookingConfirmed, 8)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	worker := NewNotifierWorker(consumer, notification.NewDispatcher(sender, redisCache, logger), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := worker.Run(ctx); err != nil {
			logger.WithError(err).Error("notifier stopped")
		}
		cancel()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("Shutdown notifier")
}

type Handler interface {
	Handle(ctx context.Context, payload []byte) error
}

type NotifierWorker struct {
	consumer *rabbit.Consumer
	handler  Handler
	logger   observability.Logger
}

func NewNotifierWorker(consumer *rabbit.Consumer, handler Handler, logger observability.Logger) *NotifierWorker {
	return &NotifierWorker{consumer: consumer, handler: handler, logger: logger}
}

func (w *NotifierWorker) Run(ctx context.Context) error {
	deliveries, err := w.consumer.Consume(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			w.processWithRetry(ctx, d)
		}
	}
}

// processWithRetry retries transient failures a few times in place, then
// hands the message back to the broker. Undeliverable payloads are dropped.
func (w *NotifierWorker) processWithRetry(ctx context.Context, d amqp.Delivery) {
	log := w.logger.WithField("message_id", d.MessageId)
	maxRetries := 3
	var err error
	for i := 0; i < maxRetries; i++ {
		err = w.handler.Handle(ctx, d.Body)
		if err == nil {
			d.Ack(false)
			return
		}
		if errors.Is(err, domain.ErrInvalidInput) {
			log.WithError(err).Error("dropping undeliverable notification")
			d.Nack(false, false)
			return
		}
		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			d.Nack(false, true)
			return
		case <-time.After(backoff):
		}
	}
	log.WithError(err).Warn("notification failed after retries, requeueing")
	d.Nack(false, true)
}
