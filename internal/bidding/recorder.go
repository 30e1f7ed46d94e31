package bidding

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/auctionfold/fund-reservations/internal/adapters/rabbit"
)

// RabbitRecorder hands accepted bids to the auction/bidding module over the
// events exchange. Unlike notifications this publish is synchronous: a bid
// is not accepted until the auction module can learn about it.
type RabbitRecorder struct {
	pub *rabbit.Publisher
}

func NewRabbitRecorder(pub *rabbit.Publisher) *RabbitRecorder {
	return &RabbitRecorder{pub: pub}
}

func (r *RabbitRecorder) RecordBid(ctx context.Context, userID, auctionID uuid.UUID, amount float64) error {
	payload, err := json.Marshal(map[string]interface{}{
		"user_id":    userID,
		"auction_id": auctionID,
		"amount":     amount,
		"placed_at":  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return r.pub.Publish(ctx, "bid.accepted", amqp.Publishing{
		MessageId:   uuid.New().String(),
		ContentType: "application/json",
		Body:        payload,
	})
}
