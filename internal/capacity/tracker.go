package capacity

import (
	"sync"

	"github.com/example/station-matching/internal/models"
)

// Tracker holds the process-lifetime seat state of every driver seen so far.
type Tracker struct {
	mu      sync.RWMutex
	drivers map[string]models.DriverCapacity
}

func NewTracker() *Tracker {
	return &Tracker{drivers: make(map[string]models.DriverCapacity)}
}

// Observation describes what a proximity event did to the tracked state.
type Observation struct {
	Capacity  models.DriverCapacity
	Seeded    bool
	PrevSeats int
}

// ObserveProximity reconciles a driver with a proximity report. The report is
// authoritative: destination is always overwritten and seats are replaced
// whenever they differ from the tracked value.
func (t *Tracker) ObserveProximity(driverID string, declaredSeats int, destination string) Observation {
	if declaredSeats < 0 {
		declaredSeats = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.drivers[driverID]
	obs := Observation{Seeded: !ok, PrevSeats: cur.AvailableSeats}
	if !ok {
		cur = models.DriverCapacity{DriverID: driverID, AvailableSeats: declaredSeats}
	} else if cur.AvailableSeats != declaredSeats {
		cur.AvailableSeats = declaredSeats
	}
	cur.Destination = destination
	t.drivers[driverID] = cur
	obs.Capacity = cur
	return obs
}

// Reserve takes n seats from the driver, floored at zero, and returns what is left.
func (t *Tracker) Reserve(driverID string, n int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.drivers[driverID]
	cur.DriverID = driverID
	cur.AvailableSeats -= n
	if cur.AvailableSeats < 0 {
		cur.AvailableSeats = 0
	}
	t.drivers[driverID] = cur
	return cur.AvailableSeats
}

// Reset restores the driver's seats after a completed trip.
func (t *Tracker) Reset(driverID string, defaultSeats int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.drivers[driverID]
	cur.DriverID = driverID
	cur.AvailableSeats = defaultSeats
	t.drivers[driverID] = cur
}

func (t *Tracker) Get(driverID string) (models.DriverCapacity, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.drivers[driverID]
	return c, ok
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.drivers)
}
