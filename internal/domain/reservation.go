package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "ACTIVE"
	ReservationReleased ReservationStatus = "RELEASED"
	ReservationUsed     ReservationStatus = "USED"
	ReservationExpired  ReservationStatus = "EXPIRED"
)

// Terminal reports whether no further transition out of s is allowed.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationReleased || s == ReservationUsed || s == ReservationExpired
}

// ReservationMeta carries the figures fixed at creation time plus the
// settlement fields written when the reservation turns USED.
type ReservationMeta struct {
	MinimumAmount   float64
	SecurityDeposit float64
	FrozenFundsID   uuid.UUID
	FinalBidAmount  *float64
	TransactionID   *uuid.UUID
}

// Reservation freezes part of a wallet so the holder is guaranteed to be
// able to pay up to MaxAllowedBid if they win one auction. ReservedAmount
// and the metadata figures never change after creation; only Status and the
// released/used timestamps do.
type Reservation struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	AuctionID      uuid.UUID
	WalletID       uuid.UUID
	ReservedAmount float64
	Currency       string
	Status         ReservationStatus
	CreatedAt      time.Time
	ExpiresAt      time.Time
	ReleasedAt     *time.Time
	UsedAt         *time.Time
	Meta           ReservationMeta
}

// MaxAllowedBid is the bid cap: the reserved amount minus the part held
// back as security deposit.
func (r *Reservation) MaxAllowedBid() float64 {
	return r.ReservedAmount - r.Meta.SecurityDeposit
}

func (r *Reservation) ExpiredBy(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// NewReservation builds an ACTIVE reservation referencing an already
// completed wallet freeze of minimum+deposit.
func NewReservation(userID, auctionID, walletID, frozenFundsID uuid.UUID, minimum, deposit float64, currency string, duration time.Duration) *Reservation {
	now := time.Now().UTC()
	return &Reservation{
		ID:             uuid.New(),
		UserID:         userID,
		AuctionID:      auctionID,
		WalletID:       walletID,
		ReservedAmount: minimum + deposit,
		Currency:       currency,
		Status:         ReservationActive,
		CreatedAt:      now,
		ExpiresAt:      now.Add(duration),
		Meta: ReservationMeta{
			MinimumAmount:   minimum,
			SecurityDeposit: deposit,
			FrozenFundsID:   frozenFundsID,
		},
	}
}

// SecurityDeposit computes the deposit held on top of the minimum bid
// capacity: a rate slice of the minimum, never below the floor.
func SecurityDeposit(minimum, rate, floor float64) float64 {
	d := minimum * rate
	if d < floor {
		return floor
	}
	return d
}
