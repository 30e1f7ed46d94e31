package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/auctionfold/fund-reservations/internal/domain"
)

// ListFilter narrows List queries; nil fields match everything.
type ListFilter struct {
	UserID    *uuid.UUID
	AuctionID *uuid.UUID
	Status    *domain.ReservationStatus
}

// Stats aggregates a listing for the reservations endpoint.
type Stats struct {
	TotalReservations   int     `json:"total_reservations"`
	ActiveReservations  int     `json:"active_reservations"`
	TotalAmountReserved float64 `json:"total_amount_reserved"`
}

// Ledger is the durable reservation store. Terminate and Settle are
// conditional on the row still being ACTIVE; implementations must enforce
// that guard in storage so terminal states stay immutable across replicas.
type Ledger interface {
	Create(ctx context.Context, res *domain.Reservation) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	Active(ctx context.Context, userID, auctionID uuid.UUID) (*domain.Reservation, error)
	Latest(ctx context.Context, userID, auctionID uuid.UUID) (*domain.Reservation, error)
	List(ctx context.Context, f ListFilter) ([]domain.Reservation, error)
	ActiveByAuction(ctx context.Context, auctionID uuid.UUID) ([]domain.Reservation, error)
	Expired(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
	Terminate(ctx context.Context, id uuid.UUID, to domain.ReservationStatus, at time.Time) (bool, error)
	Settle(ctx context.Context, id uuid.UUID, finalBid float64, txID uuid.UUID, at time.Time) (bool, error)
}

// WalletStore is the external Wallet Balance Store. Only it mutates
// balances; freezes are claims that can be released or debited exactly once.
type WalletStore interface {
	GetBalance(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error)
	WalletByUser(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	Freeze(ctx context.Context, walletID uuid.UUID, amount float64, reference string, expiresAt time.Time) (uuid.UUID, error)
	ReleaseFreeze(ctx context.Context, freezeID uuid.UUID) (float64, error)
	DebitFrozen(ctx context.Context, freezeID uuid.UUID, amount float64, description string) (uuid.UUID, error)
}

// Auditor records lifecycle transitions for the audit trail. Best effort:
// implementations log failures instead of returning them.
type Auditor interface {
	Record(ctx context.Context, action string, res *domain.Reservation)
}

// Notifier hands lifecycle events to the notification layer. Fire and
// forget: a failed notification never rolls back the transition it reports.
type Notifier interface {
	Notify(ctx context.Context, eventType string, res *domain.Reservation, extra map[string]interface{})
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, string, *domain.Reservation) {}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, *domain.Reservation, map[string]interface{}) {}

// NopAuditor and NopNotifier satisfy the optional collaborators for tests
// and workers that do not report events.
var (
	NopAuditor  Auditor  = nopAuditor{}
	NopNotifier Notifier = nopNotifier{}
)
