package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEvent marks a payload that can never be processed. Transports
// discard such messages instead of redelivering them.
var ErrMalformedEvent = errors.New("malformed event")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedEvent, fmt.Sprintf(format, args...))
}

// DecodeRiderRequest parses and validates a rider.request payload.
func DecodeRiderRequest(b []byte) (RiderRequest, error) {
	var r RiderRequest
	if err := json.Unmarshal(b, &r); err != nil {
		return r, malformed("rider request: %v", err)
	}
	r.RiderID = strings.TrimSpace(r.RiderID)
	r.StationID = strings.TrimSpace(r.StationID)
	var missing []string
	if r.RiderID == "" {
		missing = append(missing, "rider_id")
	}
	if r.StationID == "" {
		missing = append(missing, "station_id")
	}
	if r.Destination == "" {
		missing = append(missing, "destination")
	}
	if r.ArrivalTime == nil {
		missing = append(missing, "arrival_time")
	}
	if len(missing) > 0 {
		return r, malformed("rider request missing %s", strings.Join(missing, ", "))
	}
	return r, nil
}

// DecodeDriverProximity parses and validates a driver.proximity payload.
func DecodeDriverProximity(b []byte) (DriverProximity, error) {
	var p DriverProximity
	if err := json.Unmarshal(b, &p); err != nil {
		return p, malformed("driver proximity: %v", err)
	}
	p.DriverID = strings.TrimSpace(p.DriverID)
	p.StationID = strings.TrimSpace(p.StationID)
	if p.DriverID == "" || p.StationID == "" {
		return p, malformed("driver proximity requires driver_id and station_id")
	}
	return p, nil
}

// DecodeTripUpdate parses a trip-update payload. Only unparsable JSON is an
// error; updates that are not completions are filtered by the caller.
func DecodeTripUpdate(b []byte) (TripUpdate, error) {
	var u TripUpdate
	if err := json.Unmarshal(b, &u); err != nil {
		return u, malformed("trip update: %v", err)
	}
	u.DriverID = strings.TrimSpace(u.DriverID)
	return u, nil
}
