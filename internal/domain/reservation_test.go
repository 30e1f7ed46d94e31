package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/auctionfold/fund-reservations/internal/domain"
)

func TestSecurityDeposit(t *testing.T) {
	// 10% of the minimum once that beats the floor.
	assert.Equal(t, 100.0, domain.SecurityDeposit(1000, 0.10, 50))
	// Floor wins for small minimums.
	assert.Equal(t, 50.0, domain.SecurityDeposit(100, 0.10, 50))
	assert.Equal(t, 50.0, domain.SecurityDeposit(500, 0.10, 50))
}

func TestNewReservation(t *testing.T) {
	userID := uuid.New()
	auctionID := uuid.New()
	walletID := uuid.New()
	freezeID := uuid.New()

	res := domain.NewReservation(userID, auctionID, walletID, freezeID, 1000, 100, "USD", 24*time.Hour)

	assert.Equal(t, domain.ReservationActive, res.Status)
	assert.Equal(t, 1100.0, res.ReservedAmount)
	assert.Equal(t, 1000.0, res.MaxAllowedBid())
	assert.Equal(t, freezeID, res.Meta.FrozenFundsID)
	assert.WithinDuration(t, res.CreatedAt.Add(24*time.Hour), res.ExpiresAt, time.Second)
	assert.Nil(t, res.ReleasedAt)
	assert.Nil(t, res.UsedAt)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, domain.ReservationActive.Terminal())
	assert.True(t, domain.ReservationReleased.Terminal())
	assert.True(t, domain.ReservationUsed.Terminal())
	assert.True(t, domain.ReservationExpired.Terminal())
}

func TestExpiredBy(t *testing.T) {
	res := domain.NewReservation(uuid.New(), uuid.New(), uuid.New(), uuid.New(), 1000, 100, "USD", time.Hour)
	assert.False(t, res.ExpiredBy(time.Now()))
	assert.True(t, res.ExpiredBy(time.Now().Add(2*time.Hour)))
}
