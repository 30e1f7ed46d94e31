package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/auctionfold/fund-reservations/internal/domain"
)

// WalletStore is the Wallet Balance Store backed by the same CockroachDB
// cluster as the ledger. All balance mutations go through Freeze,
// ReleaseFreeze and DebitFrozen; every one of them locks the wallet row for
// the duration of its transaction.
type WalletStore struct {
	repo *Repository
}

func NewWalletStore(repo *Repository) *WalletStore {
	return &WalletStore{repo: repo}
}

func (s *WalletStore) GetBalance(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error) {
	var w domain.Wallet
	err := s.repo.pool.QueryRow(ctx, `
		SELECT id, user_id, currency, available, frozen, updated_at
		FROM wallets WHERE id = $1
	`, walletID).Scan(&w.ID, &w.UserID, &w.Currency, &w.Available, &w.Frozen, &w.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *WalletStore) WalletByUser(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	var w domain.Wallet
	err := s.repo.pool.QueryRow(ctx, `
		SELECT id, user_id, currency, available, frozen, updated_at
		FROM wallets WHERE user_id = $1
	`, userID).Scan(&w.ID, &w.UserID, &w.Currency, &w.Available, &w.Frozen, &w.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Freeze moves amount from available to frozen and records the freeze. Fails
// with ErrInsufficientFunds when the available balance cannot cover it; the
// FOR UPDATE on the wallet row makes concurrent freezes on one wallet
// single-writer.
func (s *WalletStore) Freeze(ctx context.Context, walletID uuid.UUID, amount float64, reference string, expiresAt time.Time) (uuid.UUID, error) {
	if amount <= 0 {
		return uuid.Nil, errors.Wrap(domain.ErrInvalidInput, "freeze amount must be positive")
	}

	freezeID := uuid.New()
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		var available float64
		err := tx.QueryRow(ctx, `
			SELECT available FROM wallets WHERE id = $1 FOR UPDATE
		`, walletID).Scan(&available)
		if err == pgx.ErrNoRows {
			return domain.ErrWalletNotFound
		}
		if err != nil {
			return err
		}
		if available < amount {
			return errors.Wrapf(domain.ErrInsufficientFunds, "available %.2f, need %.2f", available, amount)
		}

		_, err = tx.Exec(ctx, `
			UPDATE wallets SET available = available - $2, frozen = frozen + $2, updated_at = now()
			WHERE id = $1
		`, walletID, amount)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO frozen_funds (id, wallet_id, amount, remaining, reference, status, expires_at, created_at)
			VALUES ($1, $2, $3, $3, $4, 'ACTIVE', $5, now())
		`, freezeID, walletID, amount, reference, expiresAt)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}
	return freezeID, nil
}

// ReleaseFreeze returns whatever remains of a freeze to the available
// balance and reports the amount moved. Releasing a freeze that is already
// RELEASED or CONSUMED moves nothing and is not an error, so retries and
// sweepers stay simple.
func (s *WalletStore) ReleaseFreeze(ctx context.Context, freezeID uuid.UUID) (float64, error) {
	var released float64
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		released = 0

		var walletID uuid.UUID
		var remaining float64
		var status domain.FreezeStatus
		err := tx.QueryRow(ctx, `
			SELECT wallet_id, remaining, status FROM frozen_funds WHERE id = $1 FOR UPDATE
		`, freezeID).Scan(&walletID, &remaining, &status)
		if err == pgx.ErrNoRows {
			return errors.Wrapf(domain.ErrConflict, "unknown freeze %s", freezeID)
		}
		if err != nil {
			return err
		}
		if status != domain.FreezeActive {
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE frozen_funds SET remaining = 0, status = 'RELEASED' WHERE id = $1
		`, freezeID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			_, err = tx.Exec(ctx, `
				UPDATE wallets SET available = available + $2, frozen = frozen - $2, updated_at = now()
				WHERE id = $1
			`, walletID, remaining)
			if err != nil {
				return err
			}
		}
		released = remaining
		return nil
	})
	return released, err
}

// ExecuteSettlement debits the winning amount from the reservation's freeze,
// returns the remainder to the available balance, and marks the reservation
// USED, all inside one transaction. If any step cannot proceed the whole
// settlement rolls back and the reservation stays ACTIVE, so the caller can
// retry. Returns the wallet transaction ID and the remainder released.
func (s *WalletStore) ExecuteSettlement(ctx context.Context, res *domain.Reservation, debit, finalBid float64, description string, at time.Time) (uuid.UUID, float64, error) {
	if debit <= 0 {
		return uuid.Nil, 0, errors.Wrap(domain.ErrInvalidInput, "debit amount must be positive")
	}

	txID := uuid.New()
	var remainder float64
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		remainder = 0

		var walletID uuid.UUID
		var remaining float64
		var status domain.FreezeStatus
		err := tx.QueryRow(ctx, `
			SELECT wallet_id, remaining, status FROM frozen_funds WHERE id = $1 FOR UPDATE
		`, res.Meta.FrozenFundsID).Scan(&walletID, &remaining, &status)
		if err == pgx.ErrNoRows {
			return errors.Wrapf(domain.ErrConflict, "unknown freeze %s", res.Meta.FrozenFundsID)
		}
		if err != nil {
			return err
		}
		if status != domain.FreezeActive {
			return errors.Wrapf(domain.ErrConflict, "freeze %s is %s", res.Meta.FrozenFundsID, status)
		}
		if remaining < debit {
			return errors.Wrapf(domain.ErrConflict, "freeze remaining %.2f, debit %.2f", remaining, debit)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE reservations
			SET status = 'USED', used_at = $2, final_bid_amount = $3, transaction_id = $4, updated_at = now()
			WHERE id = $1 AND status = 'ACTIVE'
		`, res.ID, at, finalBid, txID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(domain.ErrConflict, "reservation %s is no longer ACTIVE", res.ID)
		}

		_, err = tx.Exec(ctx, `
			UPDATE frozen_funds SET remaining = 0, status = 'CONSUMED' WHERE id = $1
		`, res.Meta.FrozenFundsID)
		if err != nil {
			return err
		}

		remainder = remaining - debit
		_, err = tx.Exec(ctx, `
			UPDATE wallets SET available = available + $2, frozen = frozen - $3, updated_at = now()
			WHERE id = $1
		`, walletID, remainder, remaining)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO wallet_transactions (id, wallet_id, amount, description, reference, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
		`, txID, walletID, debit, description, res.Meta.FrozenFundsID.String())
		return err
	})
	if err != nil {
		return uuid.Nil, 0, err
	}
	return txID, remainder, nil
}

// DebitFrozen consumes amount out of an ACTIVE freeze and records a wallet
// transaction. The freeze row is the claim token: a second debit against a
// consumed freeze fails with ErrConflict instead of double-spending.
func (s *WalletStore) DebitFrozen(ctx context.Context, freezeID uuid.UUID, amount float64, description string) (uuid.UUID, error) {
	if amount <= 0 {
		return uuid.Nil, errors.Wrap(domain.ErrInvalidInput, "debit amount must be positive")
	}

	txID := uuid.New()
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		var walletID uuid.UUID
		var remaining float64
		var status domain.FreezeStatus
		err := tx.QueryRow(ctx, `
			SELECT wallet_id, remaining, status FROM frozen_funds WHERE id = $1 FOR UPDATE
		`, freezeID).Scan(&walletID, &remaining, &status)
		if err == pgx.ErrNoRows {
			return errors.Wrapf(domain.ErrConflict, "unknown freeze %s", freezeID)
		}
		if err != nil {
			return err
		}
		if status != domain.FreezeActive {
			return errors.Wrapf(domain.ErrConflict, "freeze %s is %s", freezeID, status)
		}
		if remaining < amount {
			return errors.Wrapf(domain.ErrConflict, "freeze remaining %.2f, debit %.2f", remaining, amount)
		}

		newStatus := domain.FreezeActive
		if remaining == amount {
			newStatus = domain.FreezeConsumed
		}
		_, err = tx.Exec(ctx, `
			UPDATE frozen_funds SET remaining = remaining - $2, status = $3 WHERE id = $1
		`, freezeID, amount, newStatus)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE wallets SET frozen = frozen - $2, updated_at = now() WHERE id = $1
		`, walletID, amount)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO wallet_transactions (id, wallet_id, amount, description, reference, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
		`, txID, walletID, amount, description, freezeID.String())
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}
	return txID, nil
}
