// Package matcher decides which waiting riders board a driver that reached a
// station and owns every mutation of the waitlist and seat state.
package matcher

import (
	"context"

	"github.com/example/station-matching/internal/models"
)

// Registrar creates the trip record for a match.
type Registrar interface {
	CreateTrip(ctx context.Context, req models.TripRequest) (string, error)
}

// Notifier delivers a best-effort message to a rider or driver.
type Notifier interface {
	Send(ctx context.Context, n models.Notification) error
}

// Publisher emits the outbound match event.
type Publisher interface {
	Publish(ctx context.Context, stream, key string, body []byte) error
}

// SelectRiders walks waiting in arrival order and admits riders whose
// destination equals destination until seats riders are picked. Riders going
// elsewhere are skipped. An empty destination matches nobody.
func SelectRiders(waiting []models.WaitingRider, destination string, seats int) []models.WaitingRider {
	if destination == "" || seats <= 0 {
		return nil
	}
	var picked []models.WaitingRider
	for _, r := range waiting {
		if len(picked) >= seats {
			break
		}
		if r.Destination == destination {
			picked = append(picked, r)
		}
	}
	return picked
}

func riderIDs(riders []models.WaitingRider) []string {
	ids := make([]string, len(riders))
	for i, r := range riders {
		ids[i] = r.RiderID
	}
	return ids
}
