package bidding

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	redisadapter "github.com/auctionfold/fund-reservations/internal/adapters/redis"
	"github.com/auctionfold/fund-reservations/internal/domain"
	"github.com/auctionfold/fund-reservations/internal/observability"
)

// BidChecker is the slice of the Reservation Manager the validator consults.
type BidChecker interface {
	ValidateBid(ctx context.Context, userID, auctionID uuid.UUID, bidAmount float64) (*domain.BidDecision, error)
}

// BidRecorder is the external auction/bidding module. It records an accepted
// bid as the auction's new highest bid; it never touches funds.
type BidRecorder interface {
	RecordBid(ctx context.Context, userID, auctionID uuid.UUID, amount float64) error
}

// Validator runs validate-then-record as one step per (auction, user): the
// redis lock held across both closes the window where a second bid from the
// same user could be validated against headroom the first already claimed.
type Validator struct {
	checker  BidChecker
	recorder BidRecorder
	lock     *redisadapter.BidLock
	lockTTL  time.Duration
	logger   observability.Logger
}

func NewValidator(checker BidChecker, recorder BidRecorder, lock *redisadapter.BidLock, lockTTL time.Duration, logger observability.Logger) *Validator {
	return &Validator{
		checker:  checker,
		recorder: recorder,
		lock:     lock,
		lockTTL:  lockTTL,
		logger:   logger,
	}
}

func (v *Validator) SubmitBid(ctx context.Context, userID, auctionID uuid.UUID, amount float64) (*domain.BidDecision, error) {
	if amount <= 0 {
		return nil, errors.Wrap(domain.ErrInvalidInput, "bid amount must be positive")
	}

	ok, err := v.lock.Acquire(ctx, auctionID.String(), userID.String(), v.lockTTL)
	if err != nil {
		return nil, errors.Wrap(domain.ErrStoreUnavailable, err.Error())
	}
	if !ok {
		observability.BidValidations.WithLabelValues(string(domain.RejectBidInFlight)).Inc()
		return &domain.BidDecision{
			Accepted: false,
			Reason:   domain.RejectBidInFlight,
			Message:  "another bid is already in flight",
		}, nil
	}
	defer func() {
		if err := v.lock.Release(ctx, auctionID.String(), userID.String()); err != nil {
			v.logger.WithError(err).Warn("failed to release bid lock")
		}
	}()

	decision, err := v.checker.ValidateBid(ctx, userID, auctionID, amount)
	if err != nil {
		return nil, err
	}
	if !decision.Accepted {
		return decision, nil
	}

	if err := v.recorder.RecordBid(ctx, userID, auctionID, amount); err != nil {
		return nil, errors.Wrap(err, "bid validated but recording failed")
	}
	return decision, nil
}
