package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/station-matching/internal/capacity"
	"github.com/example/station-matching/internal/dedup"
	"github.com/example/station-matching/internal/keylock"
	"github.com/example/station-matching/internal/models"
	"github.com/example/station-matching/internal/observability"
	"github.com/example/station-matching/internal/waitlist"
)

// Options wires an Engine. Waitlist, Capacity and Publisher are required;
// the rest fall back to safe defaults. A nil DefaultSeats means 5; an explicit
// zero is kept.
type Options struct {
	Waitlist  *waitlist.Store
	Capacity  *capacity.Tracker
	Registrar Registrar
	Notifier  Notifier
	Publisher Publisher
	Guard     dedup.Guard

	MatchTopic       string
	DefaultSeats     *int
	RegistrarTimeout time.Duration
	PublishTimeout   time.Duration
	NotifyTimeout    time.Duration

	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Engine is the single authority over station waitlists and driver seats.
// Work on one driver or one station is serialized; different drivers and
// stations proceed in parallel. Locks are always taken driver first.
type Engine struct {
	waitlist  *waitlist.Store
	capacity  *capacity.Tracker
	registrar Registrar
	notifier  Notifier
	publisher Publisher
	guard     dedup.Guard

	matchTopic       string
	defaultSeats     int
	registrarTimeout time.Duration
	publishTimeout   time.Duration
	notifyTimeout    time.Duration

	drivers  *keylock.Map
	stations *keylock.Map

	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewEngine(o Options) (*Engine, error) {
	if o.Waitlist == nil || o.Capacity == nil || o.Publisher == nil {
		return nil, errors.New("matcher: waitlist, capacity and publisher are required")
	}
	e := &Engine{
		waitlist:         o.Waitlist,
		capacity:         o.Capacity,
		registrar:        o.Registrar,
		notifier:         o.Notifier,
		publisher:        o.Publisher,
		guard:            o.Guard,
		matchTopic:       o.MatchTopic,
		defaultSeats:     5,
		registrarTimeout: o.RegistrarTimeout,
		publishTimeout:   o.PublishTimeout,
		notifyTimeout:    o.NotifyTimeout,
		drivers:          keylock.New(),
		stations:         keylock.New(),
		logger:           o.Logger,
		now:              o.Now,
		newID:            o.NewID,
	}
	if e.guard == nil {
		e.guard = dedup.Nop{}
	}
	if e.matchTopic == "" {
		e.matchTopic = "match.found"
	}
	if o.DefaultSeats != nil {
		if *o.DefaultSeats < 0 {
			return nil, fmt.Errorf("matcher: default seats must be >= 0, got %d", *o.DefaultSeats)
		}
		e.defaultSeats = *o.DefaultSeats
	}
	if e.registrarTimeout <= 0 {
		e.registrarTimeout = 5 * time.Second
	}
	if e.publishTimeout <= 0 {
		e.publishTimeout = 5 * time.Second
	}
	if e.notifyTimeout <= 0 {
		e.notifyTimeout = 3 * time.Second
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e, nil
}

// HandleRiderRequest queues a rider at the requested station.
func (e *Engine) HandleRiderRequest(_ context.Context, r models.RiderRequest) error {
	if r.RequestID == "" {
		r.RequestID = "req-" + e.newID()
	}
	var arrival int64
	if r.ArrivalTime != nil {
		arrival = *r.ArrivalTime
	}
	rider := models.WaitingRider{
		RiderID:     r.RiderID,
		Destination: r.Destination,
		ArrivalTime: arrival,
		RequestID:   r.RequestID,
	}

	unlock := e.stations.Lock(r.StationID)
	err := e.waitlist.Enqueue(r.StationID, rider)
	unlock()
	if errors.Is(err, waitlist.ErrDuplicateRider) {
		e.logger.Info("rider already waiting, request ignored", "rider_id", r.RiderID, "station_id", r.StationID, "request_id", r.RequestID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue rider %s at %s: %w", r.RiderID, r.StationID, err)
	}
	e.updateGauges()
	e.logger.Info("rider waiting", "rider_id", r.RiderID, "station_id", r.StationID, "destination", r.Destination, "request_id", r.RequestID)
	return nil
}

// HandleProximity reconciles the driver's seats and boards the matching
// riders waiting at the station. It returns the published match, or nil when
// the event produced none. An error means nothing was changed and the event
// should be delivered again.
func (e *Engine) HandleProximity(ctx context.Context, p models.DriverProximity) (*models.MatchEvent, error) {
	key := ""
	if p.TS != 0 {
		key = dedup.ProximityKey(p.DriverID, p.StationID, p.TS)
		seen, err := e.guard.Seen(ctx, key)
		if err != nil {
			e.logger.Warn("dedup lookup failed", "driver_id", p.DriverID, "station_id", p.StationID, "error", err)
		} else if seen {
			observability.DuplicateEvents.Inc()
			e.logger.Info("duplicate proximity event skipped", "driver_id", p.DriverID, "station_id", p.StationID, "ts", p.TS)
			return nil, nil
		}
	}

	ev, err := e.match(ctx, p)
	if err != nil {
		return nil, err
	}
	if ev != nil {
		e.notifyMatch(ctx, *ev)
	}
	if key != "" {
		if err := e.guard.Mark(ctx, key); err != nil {
			e.logger.Warn("dedup mark failed", "driver_id", p.DriverID, "station_id", p.StationID, "error", err)
		}
	}
	return ev, nil
}

func (e *Engine) match(ctx context.Context, p models.DriverProximity) (*models.MatchEvent, error) {
	unlockDriver := e.drivers.Lock(p.DriverID)
	defer unlockDriver()
	unlockStation := e.stations.Lock(p.StationID)
	defer unlockStation()

	declared := e.defaultSeats
	if p.AvailableSeats != nil {
		declared = *p.AvailableSeats
	}
	obs := e.capacity.ObserveProximity(p.DriverID, declared, p.Destination)
	driver := obs.Capacity
	log := e.logger.With("driver_id", p.DriverID, "station_id", p.StationID)
	switch {
	case obs.Seeded:
		log.Info("driver seats initialised", "seats", driver.AvailableSeats)
	case obs.PrevSeats != driver.AvailableSeats:
		log.Info("driver seats updated", "from", obs.PrevSeats, "to", driver.AvailableSeats)
	}
	e.updateGauges()

	if driver.AvailableSeats <= 0 {
		log.Info("driver has no seats left")
		return nil, nil
	}
	waiting := e.waitlist.Peek(p.StationID)
	if len(waiting) == 0 {
		log.Info("no riders waiting")
		return nil, nil
	}
	picked := SelectRiders(waiting, driver.Destination, driver.AvailableSeats)
	if len(picked) == 0 {
		log.Info("no riders share the driver's destination", "destination", driver.Destination, "waiting", len(waiting))
		return nil, nil
	}

	start := e.now()
	ids := riderIDs(picked)
	tripID := e.createTrip(ctx, p.StationID, driver, ids)
	ev := models.MatchEvent{
		DriverID:    p.DriverID,
		RiderIDs:    ids,
		StationID:   p.StationID,
		TripID:      tripID,
		Destination: driver.Destination,
		TS:          models.EpochMillis(e.now()),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode match event: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, e.publishTimeout)
	err = e.publisher.Publish(pctx, e.matchTopic, p.DriverID, body)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("publish match for driver %s at %s: %w", p.DriverID, p.StationID, err)
	}

	e.waitlist.DrainMatched(p.StationID, ids)
	left := e.capacity.Reserve(p.DriverID, len(ids))
	e.updateGauges()

	observability.MatchesTotal.Inc()
	observability.RidersMatched.Add(float64(len(ids)))
	observability.MatchLatency.Observe(e.now().Sub(start).Seconds())
	log.Info("match created", "rider_ids", ids, "trip_id", tripID, "destination", driver.Destination, "seats_left", left)
	return &ev, nil
}

// createTrip asks the registrar for a trip id and falls back to a local one
// so a match is never dropped for registrar trouble.
func (e *Engine) createTrip(ctx context.Context, stationID string, driver models.DriverCapacity, ids []string) string {
	if e.registrar != nil {
		rctx, cancel := context.WithTimeout(ctx, e.registrarTimeout)
		tripID, err := e.registrar.CreateTrip(rctx, models.TripRequest{
			DriverID:      driver.DriverID,
			RiderIDs:      ids,
			OriginStation: stationID,
			Destination:   driver.Destination,
			Status:        models.TripStatusScheduled,
			SeatsReserved: len(ids),
			StartTime:     models.EpochMillis(e.now()),
		})
		cancel()
		if err == nil && tripID != "" {
			return tripID
		}
		e.logger.Warn("trip registrar failed, using local trip id", "driver_id", driver.DriverID, "station_id", stationID, "error", err)
	}
	observability.RegistrarFallbacks.Inc()
	return "trip-" + e.newID()
}

func (e *Engine) notifyMatch(ctx context.Context, ev models.MatchEvent) {
	if e.notifier == nil {
		return
	}
	for _, rid := range ev.RiderIDs {
		e.send(ctx, models.Notification{
			ToID:  rid,
			Title: "Ride Matched",
			Body:  fmt.Sprintf("Driver %s will pick you at %s", ev.DriverID, ev.StationID),
			Meta:  map[string]string{"trip_id": ev.TripID},
		})
	}
	e.send(ctx, models.Notification{
		ToID:  ev.DriverID,
		Title: "Riders Matched",
		Body:  "Riders: " + strings.Join(ev.RiderIDs, ","),
	})
}

func (e *Engine) send(ctx context.Context, n models.Notification) {
	n.Channel = "push"
	n.TS = models.EpochMillis(e.now())
	nctx, cancel := context.WithTimeout(ctx, e.notifyTimeout)
	defer cancel()
	if err := e.notifier.Send(nctx, n); err != nil {
		observability.NotifierFailures.Inc()
		e.logger.Warn("notification failed", "to_id", n.ToID, "title", n.Title, "error", err)
	}
}

// HandleTripUpdate resets a driver's seats once their trip completed. Other
// updates are ignored.
func (e *Engine) HandleTripUpdate(_ context.Context, u models.TripUpdate) error {
	if !u.Completed() {
		return nil
	}
	unlock := e.drivers.Lock(u.DriverID)
	e.capacity.Reset(u.DriverID, e.defaultSeats)
	unlock()
	e.updateGauges()
	e.logger.Info("trip completed, seats reset", "driver_id", u.DriverID, "trip_id", u.TripID, "seats", e.defaultSeats)
	return nil
}

func (e *Engine) updateGauges() {
	observability.RidersWaiting.Set(float64(e.waitlist.Total()))
	observability.DriversTracked.Set(float64(e.capacity.Len()))
}

// Waiting returns the riders queued at a station in arrival order.
func (e *Engine) Waiting(stationID string) []models.WaitingRider {
	return e.waitlist.Peek(stationID)
}

// Driver returns the tracked seat state of a driver.
func (e *Engine) Driver(driverID string) (models.DriverCapacity, bool) {
	return e.capacity.Get(driverID)
}
