package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/auctionfold/fund-reservations/internal/domain"
	"github.com/auctionfold/fund-reservations/internal/observability"
)

// AuditLogger appends one document per reservation lifecycle transition.
// Best effort: a failed write is logged, never propagated, so the audit
// trail can lag but can never block a settlement or release.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("reservation_audit"),
		logger: logger,
	}
}

type AuditEntry struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    uuid.UUID `bson:"user_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) Record(ctx context.Context, action string, res *domain.Reservation) {
	entry := AuditEntry{
		ID:        uuid.New(),
		Action:    action,
		UserID:    res.UserID,
		Timestamp: time.Now().UTC(),
		Data: bson.M{
			"reservation_id":   res.ID,
			"auction_id":       res.AuctionID,
			"wallet_id":        res.WalletID,
			"reserved_amount":  res.ReservedAmount,
			"security_deposit": res.Meta.SecurityDeposit,
			"currency":         res.Currency,
			"status":           res.Status,
			"expires_at":       res.ExpiresAt.Format(time.RFC3339),
		},
	}
	if _, err := a.coll.InsertOne(ctx, entry); err != nil {
		a.logger.WithError(err).WithField("action", action).Error("failed to insert audit entry")
	}
}
