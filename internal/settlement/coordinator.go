package settlement

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/auctionfold/fund-reservations/internal/domain"
	"github.com/auctionfold/fund-reservations/internal/observability"
	"github.com/auctionfold/fund-reservations/internal/reservation"
)

// Releaser is the slice of the Reservation Manager the coordinator needs to
// hand losing reservations back.
type Releaser interface {
	Release(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
}

// SettlementStore commits a settlement atomically: debit the freeze, release
// the remainder to available, and move the reservation to USED, in one
// transaction. On error nothing has changed and the call can be retried.
type SettlementStore interface {
	ExecuteSettlement(ctx context.Context, res *domain.Reservation, debit, finalBid float64, description string, at time.Time) (uuid.UUID, float64, error)
}

// Result describes one settlement. Replayed is set when the call found the
// reservation already USED and returned the stored transaction instead of
// debiting again.
type Result struct {
	ReservationID  uuid.UUID
	TransactionID  uuid.UUID
	AmountDebited  float64
	AmountReleased float64
	Replayed       bool
}

// Coordinator turns a winner's frozen funds into a debit exactly once and
// releases every other reservation on the auction.
type Coordinator struct {
	ledger   reservation.Ledger
	store    SettlementStore
	releaser Releaser
	audit    reservation.Auditor
	notify   reservation.Notifier
	logger   observability.Logger
}

func NewCoordinator(ledger reservation.Ledger, store SettlementStore, releaser Releaser, audit reservation.Auditor, notify reservation.Notifier, logger observability.Logger) *Coordinator {
	return &Coordinator{
		ledger:   ledger,
		store:    store,
		releaser: releaser,
		audit:    audit,
		notify:   notify,
		logger:   logger,
	}
}

// SettleWinner debits finalBid+deposit from the winner's freeze, releases
// the remainder to available, and marks the reservation USED, all in one
// store transaction. Calling it again for a settled reservation returns the
// stored transaction id without touching the wallet; a failed call leaves
// the reservation ACTIVE and can be retried.
func (c *Coordinator) SettleWinner(ctx context.Context, auctionID, winnerID uuid.UUID, finalBid float64) (*Result, error) {
	if finalBid <= 0 {
		return nil, errors.Wrap(domain.ErrInvalidInput, "final bid must be positive")
	}

	res, err := c.ledger.Latest(ctx, winnerID, auctionID)
	if err != nil {
		return nil, err
	}

	if res.Status == domain.ReservationUsed {
		if res.Meta.TransactionID == nil {
			return nil, errors.Wrapf(domain.ErrConflict, "reservation %s settled without transaction record", res.ID)
		}
		debited := res.ReservedAmount
		if res.Meta.FinalBidAmount != nil {
			debited = *res.Meta.FinalBidAmount + res.Meta.SecurityDeposit
		}
		return &Result{
			ReservationID:  res.ID,
			TransactionID:  *res.Meta.TransactionID,
			AmountDebited:  debited,
			AmountReleased: res.ReservedAmount - debited,
			Replayed:       true,
		}, nil
	}
	if res.Status != domain.ReservationActive {
		return nil, errors.Wrapf(domain.ErrConflict, "reservation %s is %s", res.ID, res.Status)
	}

	debit := finalBid + res.Meta.SecurityDeposit
	if debit > res.ReservedAmount {
		return nil, errors.Wrapf(domain.ErrConflict,
			"final bid %.2f plus deposit %.2f exceeds reserved %.2f", finalBid, res.Meta.SecurityDeposit, res.ReservedAmount)
	}

	now := time.Now().UTC()
	desc := fmt.Sprintf("auction %s settlement", auctionID)
	txID, remainder, err := c.store.ExecuteSettlement(ctx, res, debit, finalBid, desc, now)
	if err != nil {
		return nil, err
	}

	res.Status = domain.ReservationUsed
	res.UsedAt = &now
	res.Meta.FinalBidAmount = &finalBid
	res.Meta.TransactionID = &txID

	observability.ReservationsSettled.Inc()
	c.audit.Record(ctx, "reservation.settled", res)
	c.notify.Notify(ctx, "reservation.settled", res, map[string]interface{}{
		"transaction_id":  txID,
		"amount_debited":  debit,
		"amount_released": remainder,
	})

	return &Result{
		ReservationID:  res.ID,
		TransactionID:  txID,
		AmountDebited:  debit,
		AmountReleased: remainder,
	}, nil
}

// ReleaseAll releases every ACTIVE reservation on the auction except the
// excluded user's (pass uuid.Nil to release them all, e.g. when an auction
// closes without bids). Failures are logged per reservation and do not stop
// the rest; the number actually released is returned.
func (c *Coordinator) ReleaseAll(ctx context.Context, auctionID, excludingUserID uuid.UUID) (int, error) {
	active, err := c.ledger.ActiveByAuction(ctx, auctionID)
	if err != nil {
		return 0, err
	}

	var released atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, res := range active {
		if res.UserID == excludingUserID {
			continue
		}
		res := res
		g.Go(func() error {
			if _, err := c.releaser.Release(gctx, res.ID); err != nil {
				c.logger.WithError(err).WithField("reservation_id", res.ID).Error("failed to release losing reservation")
				return nil
			}
			released.Add(1)
			return nil
		})
	}
	g.Wait()
	return int(released.Load()), nil
}

// CloseAuction composes settlement and release: settle the winner when there
// is one, then hand everyone else their funds back.
func (c *Coordinator) CloseAuction(ctx context.Context, auctionID uuid.UUID, winnerID *uuid.UUID, finalBid float64) (*Result, int, error) {
	if winnerID == nil {
		released, err := c.ReleaseAll(ctx, auctionID, uuid.Nil)
		return nil, released, err
	}

	result, err := c.SettleWinner(ctx, auctionID, *winnerID, finalBid)
	if err != nil {
		return nil, 0, err
	}
	released, err := c.ReleaseAll(ctx, auctionID, *winnerID)
	return result, released, err
}
