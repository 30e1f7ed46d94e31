package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// BidLock serializes bid submissions per (auction, user) so two in-flight
// bids cannot both be validated against the same reservation headroom.
type BidLock struct {
	client *redis.Client
}

func NewBidLock(client *redis.Client) *BidLock {
	return &BidLock{client: client}
}

func (l *BidLock) Client() *redis.Client {
	return l.client
}

func key(auctionID, userID string) string {
	return "bidlock:" + auctionID + ":" + userID
}

func (l *BidLock) Acquire(ctx context.Context, auctionID, userID string, ttl time.Duration) (bool, error) {
	res := l.client.SetNX(ctx, key(auctionID, userID), "1", ttl)
	return res.Val(), res.Err()
}

func (l *BidLock) Release(ctx context.Context, auctionID, userID string) error {
	return l.client.Del(ctx, key(auctionID, userID)).Err()
}
