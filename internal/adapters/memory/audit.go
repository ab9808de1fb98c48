package memory

import (
	"context"
	"sync"

	"github.com/robertarktes/tour-bookings/internal/domain"
)

type AuditEntry struct {
	Action string
	UserID string
	Data   map[string]interface{}
}

// AuditLog keeps audit entries in memory.
type AuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *AuditLog) LogBooking(ctx context.Context, b domain.BookedTour) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, AuditEntry{Action: "booking.confirmed", UserID: b.UserID, Data: map[string]interface{}{"booking_id": b.ID}})
	return nil
}

func (a *AuditLog) LogRejection(ctx context.Context, userID string, reason string, data map[string]interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry := map[string]interface{}{"reason": reason}
	for k, v := range data {
		entry[k] = v
	}
	a.entries = append(a.entries, AuditEntry{Action: "booking.rejected", UserID: userID, Data: entry})
	return nil
}

func (a *AuditLog) Entries() []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AuditEntry(nil), a.entries...)
}
