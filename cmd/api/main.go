package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/tour-bookings/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/tour-bookings/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/tour-bookings/internal/adapters/redis"
	s3adapter "github.com/robertarktes/tour-bookings/internal/adapters/s3"
	"github.com/robertarktes/tour-bookings/internal/booking"
	"github.com/robertarktes/tour-bookings/internal/catalog"
	"github.com/robertarktes/tour-bookings/internal/config"
	httphandler "github.com/robertarktes/tour-bookings/internal/http"
	"github.com/robertarktes/tour-bookings/internal/idempotency"
	"github.com/robertarktes/tour-bookings/internal/observability"
	"github.com/robertarktes/tour-bookings/internal/rateLimit"
	"github.com/robertarktes/tour-bookings/internal/search"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg, "tours-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	crdbRepo := crdb.NewRepository(pool)
	if err := crdbRepo.Migrate(context.Background()); err != nil {
		log.Fatalf("failed to migrate crdb: %v", err)
	}

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database(cfg.MongoDB), logger)
	if err := audit.EnsureIndexes(context.Background()); err != nil {
		logger.WithError(err).Warn("failed to create audit indexes")
	}

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(rateLimit.NewRedisCounter(redisClient))

	var linker catalog.Linker
	if cfg.ImageBucket != "" {
		l, err := s3adapter.NewLinker(context.Background(), cfg.ImageBucket, cfg.ImageURLTTL)
		if err != nil {
			log.Fatalf("failed to load aws config: %v", err)
		}
		linker = l
	}

	hotels := catalog.NewService(crdbRepo, redisCache, linker, cfg.HotelCacheTTL, logger)
	engine := search.NewEngine(hotels, logger)
	orchestrator := booking.NewOrchestrator(crdbRepo, crdbRepo, audit, logger)

	handlers := httphandler.NewHandlers(cfg, engine, hotels, orchestrator, idemp, crdbRepo)

	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
