package models

import "time"

// WaitingRider is a rider queued at a station until a driver heading to the
// same destination arrives.
type WaitingRider struct {
	RiderID     string `json:"rider_id"`
	Destination string `json:"destination"`
	ArrivalTime int64  `json:"arrival_time"` // epoch ms
	RequestID   string `json:"request_id"`
}

// DriverCapacity is the tracked seat budget and declared destination of a driver.
type DriverCapacity struct {
	DriverID       string `json:"driver_id"`
	AvailableSeats int    `json:"available_seats"`
	Destination    string `json:"destination"`
}

// RiderRequest is the rider.request payload.
type RiderRequest struct {
	RiderID     string `json:"rider_id"`
	StationID   string `json:"station_id"`
	ArrivalTime *int64 `json:"arrival_time"`
	Destination string `json:"destination"`
	RequestID   string `json:"request_id,omitempty"`
}

// DriverProximity is the driver.proximity payload. AvailableSeats is a pointer
// so an absent field can fall back to the configured default.
type DriverProximity struct {
	DriverID       string `json:"driver_id"`
	StationID      string `json:"station_id"`
	AvailableSeats *int   `json:"available_seats"`
	Destination    string `json:"destination"`
	TS             int64  `json:"ts"`
}

// TripUpdate is a message from the generic trip-update stream.
type TripUpdate struct {
	Event    string `json:"event"`
	Status   string `json:"status"`
	DriverID string `json:"driver_id"`
	TripID   string `json:"trip_id"`
}

const (
	TripEventUpdated    = "trip.updated"
	TripStatusScheduled = "scheduled"
	TripStatusCompleted = "completed"
)

// Completed reports whether the update closes a driver's trip.
func (u TripUpdate) Completed() bool {
	return u.Event == TripEventUpdated && u.Status == TripStatusCompleted && u.DriverID != ""
}

// MatchEvent is published on match.found once per match decision.
type MatchEvent struct {
	DriverID    string   `json:"driver_id"`
	RiderIDs    []string `json:"rider_ids"`
	StationID   string   `json:"station_id"`
	TripID      string   `json:"trip_id"`
	Destination string   `json:"destination"`
	TS          int64    `json:"ts"`
}

// TripRequest is what the matcher asks the trip registrar to persist.
type TripRequest struct {
	DriverID      string   `json:"driver_id"`
	RiderIDs      []string `json:"rider_ids"`
	OriginStation string   `json:"origin_station"`
	Destination   string   `json:"destination"`
	Status        string   `json:"status"`
	SeatsReserved int      `json:"seats_reserved"`
	StartTime     int64    `json:"start_time"`
}

// Notification is a single push message for a rider or a driver.
type Notification struct {
	ToID    string            `json:"to_id"`
	Channel string            `json:"channel"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Meta    map[string]string `json:"meta,omitempty"`
	TS      int64             `json:"ts"`
}

// EpochMillis converts t to milliseconds since the Unix epoch.
func EpochMillis(t time.Time) int64 { return t.UnixMilli() }
