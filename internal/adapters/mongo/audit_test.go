package mongo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	gomongo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/robertarktes/tour-bookings/internal/adapters/mongo"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/robertarktes/tour-bookings/internal/observability"
)

func TestAuditLogger_History(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer container.Terminate(ctx)

	endpoint, err := container.Endpoint(ctx, "mongodb")
	if err != nil {
		t.Fatal(err)
	}
	client, err := gomongo.Connect(ctx, options.Client().ApplyURI(endpoint))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Disconnect(ctx)

	audit := mongo.NewAuditLogger(client.Database("tours"), observability.NewDiscardLogger())
	if err := audit.EnsureIndexes(ctx); err != nil {
		t.Fatal(err)
	}

	b := domain.BookedTour{
		ID:          uuid.New(),
		UserID:      "u-1",
		TourID:      1,
		HotelID:     10,
		PersonCount: 2,
		TotalPrice:  decimal.RequireFromString("1260.00"),
		CreatedAt:   time.Now(),
	}
	if err := audit.LogBooking(ctx, b); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := audit.LogRejection(ctx, "u-1", "insufficient_capacity", map[string]interface{}{"persons": 9}); err != nil {
		t.Fatal(err)
	}

	logs, err := audit.History(ctx, "u-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(logs))
	}
	if logs[0].Action != mongo.ActionBookingRejected || logs[0].Data["reason"] != "insufficient_capacity" {
		t.Errorf("expected newest entry to be the rejection, got %+v", logs[0])
	}
	if logs[1].Data["total_price"] != "1260.00" {
		t.Errorf("unexpected booking entry %+v", logs[1])
	}
}
