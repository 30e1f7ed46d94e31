package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auctionfold/fund-reservations/internal/domain"
	"github.com/auctionfold/fund-reservations/internal/observability"
	"github.com/auctionfold/fund-reservations/internal/reservation"
)

const (
	SerializationFailureCode = "40001"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(domain.ErrStoreUnavailable, err.Error())
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	return tx.Commit(ctx)
}

const reservationColumns = `
	id, user_id, auction_id, wallet_id, frozen_funds_id,
	reserved_amount, minimum_amount, security_deposit, currency,
	status, created_at, expires_at, released_at, used_at,
	final_bid_amount, transaction_id`

// Create inserts an ACTIVE reservation. The partial unique index on
// (user_id, auction_id) WHERE status = 'ACTIVE' is what actually enforces
// the one-active-per-pair invariant under concurrency.
func (r *Repository) Create(ctx context.Context, res *domain.Reservation) error {
	result, err := r.pool.Exec(ctx, `
		INSERT INTO reservations (
			id, user_id, auction_id, wallet_id, frozen_funds_id,
			reserved_amount, minimum_amount, security_deposit, currency,
			status, created_at, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'ACTIVE', $10, $11)
		ON CONFLICT (user_id, auction_id) WHERE status = 'ACTIVE' DO NOTHING
	`, res.ID, res.UserID, res.AuctionID, res.WalletID, res.Meta.FrozenFundsID,
		res.ReservedAmount, res.Meta.MinimumAmount, res.Meta.SecurityDeposit, res.Currency,
		res.CreatedAt, res.ExpiresAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrDuplicateReservation
	}
	return nil
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var res domain.Reservation
	err := row.Scan(
		&res.ID, &res.UserID, &res.AuctionID, &res.WalletID, &res.Meta.FrozenFundsID,
		&res.ReservedAmount, &res.Meta.MinimumAmount, &res.Meta.SecurityDeposit, &res.Currency,
		&res.Status, &res.CreatedAt, &res.ExpiresAt, &res.ReleasedAt, &res.UsedAt,
		&res.Meta.FinalBidAmount, &res.Meta.TransactionID,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return scanReservation(r.pool.QueryRow(ctx, `
		SELECT `+reservationColumns+` FROM reservations WHERE id = $1
	`, id))
}

func (r *Repository) Active(ctx context.Context, userID, auctionID uuid.UUID) (*domain.Reservation, error) {
	return scanReservation(r.pool.QueryRow(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE user_id = $1 AND auction_id = $2 AND status = 'ACTIVE'
	`, userID, auctionID))
}

// Latest returns the newest reservation for the pair regardless of status,
// so settlement replays can find an already USED one.
func (r *Repository) Latest(ctx context.Context, userID, auctionID uuid.UUID) (*domain.Reservation, error) {
	return scanReservation(r.pool.QueryRow(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE user_id = $1 AND auction_id = $2
		ORDER BY created_at DESC LIMIT 1
	`, userID, auctionID))
}

func (r *Repository) List(ctx context.Context, f reservation.ListFilter) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE ($1::UUID IS NULL OR user_id = $1)
		  AND ($2::UUID IS NULL OR auction_id = $2)
		  AND ($3::TEXT IS NULL OR status = $3)
		ORDER BY created_at DESC
	`, f.UserID, f.AuctionID, f.Status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReservations(rows)
}

func (r *Repository) ActiveByAuction(ctx context.Context, auctionID uuid.UUID) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE auction_id = $1 AND status = 'ACTIVE'
	`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReservations(rows)
}

func (r *Repository) Expired(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE status = 'ACTIVE' AND expires_at <= $1
		ORDER BY expires_at ASC LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReservations(rows)
}

func collectReservations(rows pgx.Rows) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// Terminate moves an ACTIVE reservation to RELEASED or EXPIRED. The status
// guard in the WHERE clause makes terminal states immutable; a false return
// means someone else got there first.
func (r *Repository) Terminate(ctx context.Context, id uuid.UUID, to domain.ReservationStatus, at time.Time) (bool, error) {
	if to != domain.ReservationReleased && to != domain.ReservationExpired {
		return false, errors.Wrapf(domain.ErrInvalidInput, "cannot terminate to %s", to)
	}
	result, err := r.pool.Exec(ctx, `
		UPDATE reservations SET status = $2, released_at = $3
		WHERE id = $1 AND status = 'ACTIVE'
	`, id, to, at)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// Settle moves an ACTIVE reservation to USED and records the settlement
// figures. Same status-guard discipline as Terminate.
func (r *Repository) Settle(ctx context.Context, id uuid.UUID, finalBid float64, txID uuid.UUID, at time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE reservations
		SET status = 'USED', used_at = $2, final_bid_amount = $3, transaction_id = $4
		WHERE id = $1 AND status = 'ACTIVE'
	`, id, at, finalBid, txID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}
