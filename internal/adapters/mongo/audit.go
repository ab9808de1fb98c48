package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/robertarktes/tour-bookings/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ActionBookingConfirmed = "booking.confirmed"
	ActionBookingRejected  = "booking.rejected"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    string    `bson:"user_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, userID string, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		UserID:    userID,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.WithField("action", action).WithError(err).Error("failed to insert audit log")
		return err
	}
	return nil
}

func (a *AuditLogger) LogBooking(ctx context.Context, b domain.BookedTour) error {
	data := map[string]interface{}{
		"booking_id":   b.ID.String(),
		"tour_id":      b.TourID,
		"hotel_id":     b.HotelID,
		"person_count": b.PersonCount,
		"total_price":  b.TotalPrice.StringFixed(2),
		"created_at":   b.CreatedAt.Format(time.RFC3339),
	}
	return a.LogEvent(ctx, ActionBookingConfirmed, b.UserID, data)
}

func (a *AuditLogger) LogRejection(ctx context.Context, userID string, reason string, data map[string]interface{}) error {
	doc := map[string]interface{}{"reason": reason}
	for k, v := range data {
		doc[k] = v
	}
	return a.LogEvent(ctx, ActionBookingRejected, userID, doc)
}

// History returns the newest audit entries for userID.
func (a *AuditLogger) History(ctx context.Context, userID string, limit int64) ([]AuditLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cur, err := a.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	var logs []AuditLog
	if err := cur.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// EnsureIndexes creates the user/time index History reads through.
func (a *AuditLogger) EnsureIndexes(ctx context.Context) error {
	_, err := a.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	return err
}
