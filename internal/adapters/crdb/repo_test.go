package crdb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/auctionfold/fund-reservations/internal/adapters/crdb"
	"github.com/auctionfold/fund-reservations/internal/domain"
)

const testSchema = `
	CREATE DATABASE IF NOT EXISTS fundres;
	CREATE TABLE IF NOT EXISTS fundres.wallets (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		currency TEXT NOT NULL,
		available NUMERIC NOT NULL DEFAULT 0 CHECK (available >= 0),
		frozen NUMERIC NOT NULL DEFAULT 0 CHECK (frozen >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id)
	);
	CREATE TABLE IF NOT EXISTS fundres.frozen_funds (
		id UUID PRIMARY KEY,
		wallet_id UUID NOT NULL REFERENCES fundres.wallets (id),
		amount NUMERIC NOT NULL CHECK (amount > 0),
		remaining NUMERIC NOT NULL CHECK (remaining >= 0),
		reference TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('ACTIVE', 'RELEASED', 'CONSUMED')),
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS fundres.reservations (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		auction_id UUID NOT NULL,
		wallet_id UUID NOT NULL REFERENCES fundres.wallets (id),
		frozen_funds_id UUID NOT NULL REFERENCES fundres.frozen_funds (id),
		reserved_amount NUMERIC NOT NULL CHECK (reserved_amount > 0),
		minimum_amount NUMERIC NOT NULL,
		security_deposit NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('ACTIVE', 'RELEASED', 'USED', 'EXPIRED')),
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		released_at TIMESTAMPTZ,
		used_at TIMESTAMPTZ,
		final_bid_amount NUMERIC,
		transaction_id UUID,
		UNIQUE (user_id, auction_id) WHERE status = 'ACTIVE'
	);
	CREATE TABLE IF NOT EXISTS fundres.wallet_transactions (
		id UUID PRIMARY KEY,
		wallet_id UUID NOT NULL REFERENCES fundres.wallets (id),
		amount NUMERIC NOT NULL,
		description TEXT NOT NULL,
		reference TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
`

func setupRepo(t *testing.T) (*pgxpool.Pool, *crdb.Repository) {
	t.Helper()
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { crdbContainer.Terminate(ctx) })

	dsn, err := crdbContainer.Endpoint(ctx, "postgresql")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, dsn+"/fundres?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, testSchema); err != nil {
		t.Fatal(err)
	}
	return pool, crdb.NewRepository(pool)
}

func seedWallet(t *testing.T, pool *pgxpool.Pool, available float64) (uuid.UUID, uuid.UUID) {
	t.Helper()
	userID, walletID := uuid.New(), uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO wallets (id, user_id, currency, available, frozen) VALUES ($1, $2, 'USD', $3, 0)`,
		walletID, userID, available)
	if err != nil {
		t.Fatal(err)
	}
	return userID, walletID
}

func TestRepository_CreateReservation(t *testing.T) {
	pool, repo := setupRepo(t)
	wallets := crdb.NewWalletStore(repo)
	ctx := context.Background()

	userID, walletID := seedWallet(t, pool, 2000)
	auctionID := uuid.New()

	freezeID, err := wallets.Freeze(ctx, walletID, 1100, auctionID.String(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	res := domain.NewReservation(userID, auctionID, walletID, freezeID, 1000, 100, "USD", time.Hour)
	if err := repo.Create(ctx, res); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Second ACTIVE reservation for the same (user, auction) must be rejected.
	dup := domain.NewReservation(userID, auctionID, walletID, freezeID, 1000, 100, "USD", time.Hour)
	if err := repo.Create(ctx, dup); !errors.Is(err, domain.ErrDuplicateReservation) {
		t.Errorf("expected duplicate error, got %v", err)
	}

	// Once the first leaves ACTIVE, a new one is allowed.
	if _, err := repo.Terminate(ctx, res.ID, domain.ReservationReleased, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	again := domain.NewReservation(userID, auctionID, walletID, freezeID, 1000, 100, "USD", time.Hour)
	if err := repo.Create(ctx, again); err != nil {
		t.Errorf("expected no error after release, got %v", err)
	}
}

func TestRepository_TerminateGuard(t *testing.T) {
	pool, repo := setupRepo(t)
	wallets := crdb.NewWalletStore(repo)
	ctx := context.Background()

	userID, walletID := seedWallet(t, pool, 2000)
	auctionID := uuid.New()
	freezeID, err := wallets.Freeze(ctx, walletID, 1100, auctionID.String(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	res := domain.NewReservation(userID, auctionID, walletID, freezeID, 1000, 100, "USD", time.Hour)
	if err := repo.Create(ctx, res); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	ok, err := repo.Terminate(ctx, res.ID, domain.ReservationReleased, now)
	if err != nil || !ok {
		t.Fatalf("expected first terminate to claim the row, got ok=%v err=%v", ok, err)
	}
	ok, err = repo.Terminate(ctx, res.ID, domain.ReservationExpired, now)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected second terminate to be a no-op")
	}

	fetched, err := repo.Get(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Status != domain.ReservationReleased {
		t.Errorf("expected RELEASED, got %s", fetched.Status)
	}
}

func TestRepository_Settle(t *testing.T) {
	pool, repo := setupRepo(t)
	wallets := crdb.NewWalletStore(repo)
	ctx := context.Background()

	userID, walletID := seedWallet(t, pool, 2000)
	auctionID := uuid.New()
	freezeID, err := wallets.Freeze(ctx, walletID, 1100, auctionID.String(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	res := domain.NewReservation(userID, auctionID, walletID, freezeID, 1000, 100, "USD", time.Hour)
	if err := repo.Create(ctx, res); err != nil {
		t.Fatal(err)
	}

	txID := uuid.New()
	ok, err := repo.Settle(ctx, res.ID, 900, txID, time.Now().UTC())
	if err != nil || !ok {
		t.Fatalf("expected settle to claim the row, got ok=%v err=%v", ok, err)
	}
	ok, err = repo.Settle(ctx, res.ID, 900, uuid.New(), time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected second settle to be a no-op")
	}

	fetched, err := repo.Get(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Status != domain.ReservationUsed {
		t.Errorf("expected USED, got %s", fetched.Status)
	}
	if fetched.Meta.TransactionID == nil || *fetched.Meta.TransactionID != txID {
		t.Errorf("expected stored transaction %s, got %v", txID, fetched.Meta.TransactionID)
	}
	if fetched.Meta.FinalBidAmount == nil || *fetched.Meta.FinalBidAmount != 900 {
		t.Errorf("expected final bid 900, got %v", fetched.Meta.FinalBidAmount)
	}
}

func TestWalletStore_FreezeLifecycle(t *testing.T) {
	pool, repo := setupRepo(t)
	wallets := crdb.NewWalletStore(repo)
	ctx := context.Background()

	_, walletID := seedWallet(t, pool, 2000)
	expires := time.Now().Add(time.Hour)

	if _, err := wallets.Freeze(ctx, walletID, 5000, "auction-a", expires); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	freezeID, err := wallets.Freeze(ctx, walletID, 1100, "auction-a", expires)
	if err != nil {
		t.Fatal(err)
	}
	wallet, err := wallets.GetBalance(ctx, walletID)
	if err != nil {
		t.Fatal(err)
	}
	if wallet.Available != 900 || wallet.Frozen != 1100 {
		t.Fatalf("expected 900 available / 1100 frozen, got %v / %v", wallet.Available, wallet.Frozen)
	}

	if _, err := wallets.DebitFrozen(ctx, freezeID, 1000, "settlement"); err != nil {
		t.Fatal(err)
	}
	// The freeze is consumed as a claim token; a second debit must fail.
	if _, err := wallets.DebitFrozen(ctx, freezeID, 1000, "settlement"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected conflict on consumed freeze, got %v", err)
	}

	released, err := wallets.ReleaseFreeze(ctx, freezeID)
	if err != nil {
		t.Fatal(err)
	}
	if released != 100 {
		t.Errorf("expected 100 released, got %v", released)
	}
	// Releasing again is a no-op.
	released, err = wallets.ReleaseFreeze(ctx, freezeID)
	if err != nil {
		t.Fatal(err)
	}
	if released != 0 {
		t.Errorf("expected idempotent release, got %v", released)
	}

	wallet, err = wallets.GetBalance(ctx, walletID)
	if err != nil {
		t.Fatal(err)
	}
	if wallet.Available != 1000 || wallet.Frozen != 0 {
		t.Errorf("expected 1000 available / 0 frozen, got %v / %v", wallet.Available, wallet.Frozen)
	}
}
