package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is a balance snapshot from the Wallet Balance Store. Available and
// Frozen are mutated only by the store itself, through Freeze/Release/Debit.
type Wallet struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Currency  string
	Available float64
	Frozen    float64
	UpdatedAt time.Time
}

type FreezeStatus string

const (
	FreezeActive   FreezeStatus = "ACTIVE"
	FreezeReleased FreezeStatus = "RELEASED"
	FreezeConsumed FreezeStatus = "CONSUMED"
)

// FrozenFunds is one freeze operation on a wallet. Remaining starts equal to
// Amount and shrinks when the freeze is debited; whatever is left goes back
// to available on release.
type FrozenFunds struct {
	ID        uuid.UUID
	WalletID  uuid.UUID
	Amount    float64
	Remaining float64
	Reference string
	Status    FreezeStatus
	ExpiresAt time.Time
	CreatedAt time.Time
}
