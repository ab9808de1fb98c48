package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/tour-bookings/internal/adapters/crdb"
	"github.com/robertarktes/tour-bookings/internal/adapters/rabbit"
	"github.com/robertarktes/tour-bookings/internal/config"
	"github.com/robertarktes/tour-bookings/internal/observability"
	"github.com/robertarktes/tour-bookings/internal/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "tours-outbox-publisher")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	defer rabbitPub.Close()

	publisher := outbox.NewPublisher(repo, rabbitPub, cfg.OutboxBatchSize, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(cfg.OutboxInterval),
		gocron.NewTask(func() {
			publisher.RunOnce(ctx)
		}),
		gocron.WithName("outbox-relay"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Fatalf("failed to schedule outbox relay: %v", err)
	}
	sched.Start()
	logger.WithField("interval", cfg.OutboxInterval.String()).Info("Outbox publisher started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()
	if err := sched.Shutdown(); err != nil {
		logger.WithError(err).Warn("scheduler shutdown")
	}
	logger.Info("Shutdown outbox publisher")
}
