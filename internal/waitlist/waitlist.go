package waitlist

import (
	"errors"
	"sync"

	"github.com/example/station-matching/internal/models"
)

var ErrDuplicateRider = errors.New("rider already waiting at station")

// Store keeps the riders waiting at each station in arrival order.
// Callers that need peek-then-drain atomicity hold the station lock from
// keylock; the internal mutex only protects the map itself.
type Store struct {
	mu               sync.RWMutex
	stations         map[string][]models.WaitingRider
	rejectDuplicates bool
}

type Option func(*Store)

// RejectDuplicates makes Enqueue refuse a rider id that is already queued at
// the same station.
func RejectDuplicates() Option {
	return func(s *Store) { s.rejectDuplicates = true }
}

func NewStore(opts ...Option) *Store {
	s := &Store{stations: make(map[string][]models.WaitingRider)}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Enqueue(stationID string, r models.WaitingRider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectDuplicates {
		for _, w := range s.stations[stationID] {
			if w.RiderID == r.RiderID {
				return ErrDuplicateRider
			}
		}
	}
	s.stations[stationID] = append(s.stations[stationID], r)
	return nil
}

// Peek returns a copy of the station's queue in arrival order.
func (s *Store) Peek(stationID string) []models.WaitingRider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := s.stations[stationID]
	if len(q) == 0 {
		return nil
	}
	out := make([]models.WaitingRider, len(q))
	copy(out, q)
	return out
}

// DrainMatched removes one entry per named rider id, earliest first, and
// returns how many were removed. Unknown ids are ignored.
func (s *Store) DrainMatched(stationID string, riderIDs []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.stations[stationID]
	if len(q) == 0 || len(riderIDs) == 0 {
		return 0
	}
	pending := make(map[string]int, len(riderIDs))
	for _, id := range riderIDs {
		pending[id]++
	}
	kept := make([]models.WaitingRider, 0, len(q))
	removed := 0
	for _, w := range q {
		if pending[w.RiderID] > 0 {
			pending[w.RiderID]--
			removed++
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		delete(s.stations, stationID)
	} else {
		s.stations[stationID] = kept
	}
	return removed
}

func (s *Store) Len(stationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stations[stationID])
}

// Total counts waiting riders across all stations.
func (s *Store) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, q := range s.stations {
		n += len(q)
	}
	return n
}

// Snapshot copies every non-empty station queue.
func (s *Store) Snapshot() map[string][]models.WaitingRider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]models.WaitingRider, len(s.stations))
	for id, q := range s.stations {
		cp := make([]models.WaitingRider, len(q))
		copy(cp, q)
		out[id] = cp
	}
	return out
}
