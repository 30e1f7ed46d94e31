package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/auctionfold/fund-reservations/internal/adapters/crdb"
	mongoadapter "github.com/auctionfold/fund-reservations/internal/adapters/mongo"
	"github.com/auctionfold/fund-reservations/internal/config"
	"github.com/auctionfold/fund-reservations/internal/observability"
	"github.com/auctionfold/fund-reservations/internal/outbox"
	"github.com/auctionfold/fund-reservations/internal/reservation"
	"github.com/auctionfold/fund-reservations/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
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
	wallets := crdb.NewWalletStore(repo)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("fundres"), logger)

	notifier := outbox.NewNotifier(repo, logger)

	policy := reservation.Policy{
		DepositRate:        cfg.DepositRate,
		DepositFloor:       cfg.DepositFloor,
		MinimumAmountFloor: cfg.MinimumAmountFloor,
		MinDuration:        cfg.MinDuration,
		MaxDuration:        cfg.MaxDuration,
	}
	manager := reservation.NewManager(repo, wallets, policy, audit, notifier, logger)

	worker := sweeper.NewSweeper(manager, cfg.SweepBatch, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, cfg.SweepInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry sweeper")
}
