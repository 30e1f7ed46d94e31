package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/auctionfold/fund-reservations/internal/domain"
	"github.com/auctionfold/fund-reservations/internal/observability"
)

// Policy carries the business knobs for reservation creation. The deposit
// rule is max(minimum * DepositRate, DepositFloor).
type Policy struct {
	DepositRate        float64
	DepositFloor       float64
	MinimumAmountFloor float64
	MinDuration        time.Duration
	MaxDuration        time.Duration
}

// Manager owns the reservation state machine: it is the only component that
// creates reservations, moves them out of ACTIVE, and touches the wallet
// freezes backing them.
type Manager struct {
	ledger  Ledger
	wallets WalletStore
	policy  Policy
	audit   Auditor
	notify  Notifier
	logger  observability.Logger
}

func NewManager(ledger Ledger, wallets WalletStore, policy Policy, audit Auditor, notify Notifier, logger observability.Logger) *Manager {
	return &Manager{
		ledger:  ledger,
		wallets: wallets,
		policy:  policy,
		audit:   audit,
		notify:  notify,
		logger:  logger,
	}
}

// Reserve freezes minimum+deposit on the caller's wallet and persists an
// ACTIVE reservation for the auction. The freeze happens first; if the
// ledger write then fails the freeze is reversed, so no frozen funds are
// ever left without a reservation row pointing at them.
func (m *Manager) Reserve(ctx context.Context, userID, auctionID uuid.UUID, minimumAmount float64, duration time.Duration) (*domain.Reservation, error) {
	if minimumAmount < m.policy.MinimumAmountFloor {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "minimum amount must be at least %.2f", m.policy.MinimumAmountFloor)
	}
	if duration < m.policy.MinDuration || duration > m.policy.MaxDuration {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "duration must be between %s and %s", m.policy.MinDuration, m.policy.MaxDuration)
	}

	wallet, err := m.wallets.WalletByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Fast-path duplicate check; the ledger's unique constraint is the
	// authoritative one under concurrency.
	if _, err := m.ledger.Active(ctx, userID, auctionID); err == nil {
		return nil, domain.ErrDuplicateReservation
	} else if !errors.Is(err, domain.ErrReservationNotFound) {
		return nil, err
	}

	deposit := domain.SecurityDeposit(minimumAmount, m.policy.DepositRate, m.policy.DepositFloor)
	total := minimumAmount + deposit
	if wallet.Available < total {
		return nil, errors.Wrapf(domain.ErrInsufficientFunds, "available %.2f, need %.2f", wallet.Available, total)
	}

	expiresAt := time.Now().UTC().Add(duration)
	freezeID, err := m.wallets.Freeze(ctx, wallet.ID, total, auctionID.String(), expiresAt)
	if err != nil {
		return nil, err
	}

	res := domain.NewReservation(userID, auctionID, wallet.ID, freezeID, minimumAmount, deposit, wallet.Currency, duration)
	if err := m.ledger.Create(ctx, res); err != nil {
		// Compensate: the freeze must not outlive a failed ledger write.
		if _, relErr := m.wallets.ReleaseFreeze(ctx, freezeID); relErr != nil {
			m.logger.WithError(relErr).WithField("freeze_id", freezeID).Error("failed to reverse freeze after ledger write failure")
		}
		return nil, err
	}

	observability.ReservationsCreated.Inc()
	m.audit.Record(ctx, "reservation.created", res)
	m.logger.WithField("reservation_id", res.ID).WithField("auction_id", auctionID).Info("reservation created")
	return res, nil
}

// ValidateBid checks a proposed bid against the caller's ACTIVE reservation
// for the auction. A reservation found past its deadline is expired on the
// spot; the rejection reasons mirror what clients need to correct.
func (m *Manager) ValidateBid(ctx context.Context, userID, auctionID uuid.UUID, bidAmount float64) (*domain.BidDecision, error) {
	res, err := m.ledger.Latest(ctx, userID, auctionID)
	if errors.Is(err, domain.ErrReservationNotFound) {
		return m.reject(domain.RejectNoReservation, "no reservation for this auction", 0), nil
	}
	if err != nil {
		return nil, err
	}

	if res.Status != domain.ReservationActive {
		return m.reject(domain.RejectReservationInactive,
			fmt.Sprintf("reservation is %s", res.Status), res.MaxAllowedBid()), nil
	}

	if res.ExpiredBy(time.Now().UTC()) {
		if _, err := m.Expire(ctx, res.ID); err != nil {
			m.logger.WithError(err).WithField("reservation_id", res.ID).Error("lazy expiry failed")
		}
		return m.reject(domain.RejectReservationExpired, "reservation has expired", res.MaxAllowedBid()), nil
	}

	maxBid := res.MaxAllowedBid()
	if bidAmount > maxBid {
		return m.reject(domain.RejectExceedsReservation,
			fmt.Sprintf("exceeds reserved cap: max allowed %.2f, got %.2f", maxBid, bidAmount), maxBid), nil
	}
	if bidAmount < res.Meta.MinimumAmount {
		return m.reject(domain.RejectBelowMinimum,
			fmt.Sprintf("below minimum %.2f", res.Meta.MinimumAmount), maxBid), nil
	}

	observability.BidValidations.WithLabelValues("accepted").Inc()
	return &domain.BidDecision{Accepted: true, MaxAllowedBid: maxBid}, nil
}

func (m *Manager) reject(reason domain.BidRejectReason, msg string, maxBid float64) *domain.BidDecision {
	observability.BidValidations.WithLabelValues(string(reason)).Inc()
	return &domain.BidDecision{Accepted: false, Reason: reason, Message: msg, MaxAllowedBid: maxBid}
}

// Release returns the full frozen amount of an ACTIVE reservation to the
// wallet. Releasing an already-terminal reservation is a no-op, not an
// error, so retries and cleanup jobs stay simple.
func (m *Manager) Release(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return m.terminate(ctx, id, domain.ReservationReleased, "reservation.released")
}

// Expire is Release with EXPIRED as the terminal state; the sweeper and the
// lazy path in ValidateBid both come through here.
func (m *Manager) Expire(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return m.terminate(ctx, id, domain.ReservationExpired, "reservation.expired")
}

func (m *Manager) terminate(ctx context.Context, id uuid.UUID, to domain.ReservationStatus, event string) (*domain.Reservation, error) {
	res, err := m.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Status.Terminal() {
		// A prior attempt may have claimed the row and then failed to
		// release the freeze. ReleaseFreeze moves nothing once it has run,
		// so retrying here completes a half-finished release or expiry.
		if res.Status != domain.ReservationUsed {
			released, err := m.wallets.ReleaseFreeze(ctx, res.Meta.FrozenFundsID)
			if err != nil {
				return nil, errors.Wrapf(err, "reservation %s is %s but freeze release failed", id, res.Status)
			}
			if released > 0 {
				observability.AmountReleased.Add(released)
			}
		}
		return res, nil
	}

	now := time.Now().UTC()
	ok, err := m.ledger.Terminate(ctx, id, to, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race to another releaser; fetch the terminal row.
		return m.ledger.Get(ctx, id)
	}

	released, err := m.wallets.ReleaseFreeze(ctx, res.Meta.FrozenFundsID)
	if err != nil {
		return nil, errors.Wrapf(err, "reservation %s terminated but freeze release failed", id)
	}

	res.Status = to
	res.ReleasedAt = &now
	observability.ReservationsReleased.WithLabelValues(string(to)).Inc()
	observability.AmountReleased.Add(released)
	m.audit.Record(ctx, event, res)
	m.notify.Notify(ctx, event, res, map[string]interface{}{"released_amount": released})
	return res, nil
}

// CleanupExpired expires every ACTIVE reservation past its deadline, up to
// limit. One reservation failing does not stop the rest; the count of
// successful expiries is returned either way.
func (m *Manager) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	expired, err := m.ledger.Expired(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, res := range expired {
		if _, err := m.Expire(ctx, res.ID); err != nil {
			m.logger.WithError(err).WithField("reservation_id", res.ID).Error("failed to expire reservation")
			continue
		}
		cleaned++
	}
	return cleaned, nil
}

func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return m.ledger.Get(ctx, id)
}

// List returns matching reservations plus the aggregate stats the listing
// endpoint exposes.
func (m *Manager) List(ctx context.Context, f ListFilter) ([]domain.Reservation, Stats, error) {
	items, err := m.ledger.List(ctx, f)
	if err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{TotalReservations: len(items)}
	for _, res := range items {
		if res.Status == domain.ReservationActive {
			stats.ActiveReservations++
			stats.TotalAmountReserved += res.ReservedAmount
		}
	}
	return items, stats, nil
}
