package bidding_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisadapter "github.com/auctionfold/fund-reservations/internal/adapters/redis"
	"github.com/auctionfold/fund-reservations/internal/bidding"
	"github.com/auctionfold/fund-reservations/internal/domain"
	"github.com/auctionfold/fund-reservations/internal/observability"
)

type stubChecker struct {
	decision *domain.BidDecision
	err      error
	calls    int
}

func (s *stubChecker) ValidateBid(ctx context.Context, userID, auctionID uuid.UUID, amount float64) (*domain.BidDecision, error) {
	s.calls++
	return s.decision, s.err
}

type stubRecorder struct {
	err   error
	calls int
}

func (s *stubRecorder) RecordBid(ctx context.Context, userID, auctionID uuid.UUID, amount float64) error {
	s.calls++
	return s.err
}

func lockKey(auctionID, userID uuid.UUID) string {
	return "bidlock:" + auctionID.String() + ":" + userID.String()
}

func TestSubmitBidAccepted(t *testing.T) {
	client, mock := redismock.NewClientMock()
	userID, auctionID := uuid.New(), uuid.New()
	ttl := 5 * time.Second

	mock.ExpectSetNX(lockKey(auctionID, userID), "1", ttl).SetVal(true)
	mock.ExpectDel(lockKey(auctionID, userID)).SetVal(1)

	checker := &stubChecker{decision: &domain.BidDecision{Accepted: true, MaxAllowedBid: 1000}}
	recorder := &stubRecorder{}
	v := bidding.NewValidator(checker, recorder, redisadapter.NewBidLock(client), ttl, observability.NewLogger())

	decision, err := v.SubmitBid(context.Background(), userID, auctionID, 900)
	require.NoError(t, err)
	assert.True(t, decision.Accepted)
	assert.Equal(t, 1, checker.calls)
	assert.Equal(t, 1, recorder.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitBidLockHeld(t *testing.T) {
	client, mock := redismock.NewClientMock()
	userID, auctionID := uuid.New(), uuid.New()
	ttl := 5 * time.Second

	mock.ExpectSetNX(lockKey(auctionID, userID), "1", ttl).SetVal(false)

	checker := &stubChecker{decision: &domain.BidDecision{Accepted: true}}
	recorder := &stubRecorder{}
	v := bidding.NewValidator(checker, recorder, redisadapter.NewBidLock(client), ttl, observability.NewLogger())

	decision, err := v.SubmitBid(context.Background(), userID, auctionID, 900)
	require.NoError(t, err)
	assert.False(t, decision.Accepted)
	assert.Equal(t, domain.RejectBidInFlight, decision.Reason)
	assert.Zero(t, checker.calls)
	assert.Zero(t, recorder.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitBidRejectedNotRecorded(t *testing.T) {
	client, mock := redismock.NewClientMock()
	userID, auctionID := uuid.New(), uuid.New()
	ttl := 5 * time.Second

	mock.ExpectSetNX(lockKey(auctionID, userID), "1", ttl).SetVal(true)
	mock.ExpectDel(lockKey(auctionID, userID)).SetVal(1)

	checker := &stubChecker{decision: &domain.BidDecision{
		Accepted:      false,
		Reason:        domain.RejectExceedsReservation,
		MaxAllowedBid: 1000,
	}}
	recorder := &stubRecorder{}
	v := bidding.NewValidator(checker, recorder, redisadapter.NewBidLock(client), ttl, observability.NewLogger())

	decision, err := v.SubmitBid(context.Background(), userID, auctionID, 1200)
	require.NoError(t, err)
	assert.False(t, decision.Accepted)
	assert.Zero(t, recorder.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitBidInvalidAmount(t *testing.T) {
	client, _ := redismock.NewClientMock()
	v := bidding.NewValidator(&stubChecker{}, &stubRecorder{}, redisadapter.NewBidLock(client), time.Second, observability.NewLogger())

	_, err := v.SubmitBid(context.Background(), uuid.New(), uuid.New(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSubmitBidRecordFailure(t *testing.T) {
	client, mock := redismock.NewClientMock()
	userID, auctionID := uuid.New(), uuid.New()
	ttl := 5 * time.Second

	mock.ExpectSetNX(lockKey(auctionID, userID), "1", ttl).SetVal(true)
	mock.ExpectDel(lockKey(auctionID, userID)).SetVal(1)

	checker := &stubChecker{decision: &domain.BidDecision{Accepted: true}}
	recorder := &stubRecorder{err: assert.AnError}
	v := bidding.NewValidator(checker, recorder, redisadapter.NewBidLock(client), ttl, observability.NewLogger())

	_, err := v.SubmitBid(context.Background(), userID, auctionID, 900)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
