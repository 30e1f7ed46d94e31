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
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/auctionfold/fund-reservations/internal/adapters/crdb"
	mongoadapter "github.com/auctionfold/fund-reservations/internal/adapters/mongo"
	"github.com/auctionfold/fund-reservations/internal/adapters/rabbit"
	redisadapter "github.com/auctionfold/fund-reservations/internal/adapters/redis"
	"github.com/auctionfold/fund-reservations/internal/bidding"
	"github.com/auctionfold/fund-reservations/internal/config"
	httphandler "github.com/auctionfold/fund-reservations/internal/http"
	"github.com/auctionfold/fund-reservations/internal/idempotency"
	"github.com/auctionfold/fund-reservations/internal/observability"
	"github.com/auctionfold/fund-reservations/internal/outbox"
	"github.com/auctionfold/fund-reservations/internal/rateLimit"
	"github.com/auctionfold/fund-reservations/internal/reservation"
	"github.com/auctionfold/fund-reservations/internal/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
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
	repo := crdb.NewRepository(pool)
	wallets := crdb.NewWalletStore(repo)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("fundres"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	bidLock := redisadapter.NewBidLock(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(redisClient)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	notifier := outbox.NewNotifier(repo, logger)

	policy := reservation.Policy{
		DepositRate:        cfg.DepositRate,
		DepositFloor:       cfg.DepositFloor,
		MinimumAmountFloor: cfg.MinimumAmountFloor,
		MinDuration:        cfg.MinDuration,
		MaxDuration:        cfg.MaxDuration,
	}
	manager := reservation.NewManager(repo, wallets, policy, audit, notifier, logger)
	validator := bidding.NewValidator(manager, bidding.NewRabbitRecorder(rabbitPub), bidLock, cfg.BidLockTTL, logger)
	coordinator := settlement.NewCoordinator(repo, wallets, manager, audit, notifier, logger)

	handlers := httphandler.NewHandlers(cfg, manager, validator, coordinator, wallets, idemp)
	r := httphandler.SetupRouter(handlers, logger, rl, idemp)

	srv := &http.Server{
		Addr:    ":8080",
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
