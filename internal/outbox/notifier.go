package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/auctionfold/fund-reservations/internal/adapters/crdb"
	"github.com/auctionfold/fund-reservations/internal/domain"
	"github.com/auctionfold/fund-reservations/internal/observability"
)

// Notifier stages reservation lifecycle events in the outbox table; the
// publisher drains them to RabbitMQ. Insert failures are logged and
// swallowed so a broker or outbox problem never rolls back the state change
// it reports.
type Notifier struct {
	repo   *crdb.Repository
	logger observability.Logger
}

func NewNotifier(repo *crdb.Repository, logger observability.Logger) *Notifier {
	return &Notifier{repo: repo, logger: logger}
}

func (n *Notifier) Notify(ctx context.Context, eventType string, res *domain.Reservation, extra map[string]interface{}) {
	body := map[string]interface{}{
		"reservation_id": res.ID,
		"user_id":        res.UserID,
		"auction_id":     res.AuctionID,
		"status":         res.Status,
		"occurred_at":    time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		n.logger.WithError(err).Error("failed to encode notification payload")
		return
	}

	rec := crdb.OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "reservation",
		AggregateID:   res.ID,
		EventType:     eventType,
		Payload:       payload,
		DedupeKey:     uuid.New().String(),
	}
	if err := n.repo.InsertOutbox(ctx, rec); err != nil {
		n.logger.WithError(err).WithField("event_type", eventType).Error("failed to stage notification")
	}
}
