package matcher

import (
	"context"

	"github.com/example/station-matching/internal/ingest"
	"github.com/example/station-matching/internal/models"
)

// Streams names the inbound streams the engine consumes.
type Streams struct {
	RiderRequest    string
	DriverProximity string
	TripUpdated     string
}

// Handlers binds each inbound stream to the decoder and handler for it.
func (e *Engine) Handlers(s Streams) map[string]ingest.Handler {
	return map[string]ingest.Handler{
		s.RiderRequest:    e.riderRequestHandler,
		s.DriverProximity: e.proximityHandler,
		s.TripUpdated:     e.tripUpdateHandler,
	}
}

func (e *Engine) riderRequestHandler(ctx context.Context, body []byte) error {
	r, err := models.DecodeRiderRequest(body)
	if err != nil {
		return err
	}
	return e.HandleRiderRequest(ctx, r)
}

func (e *Engine) proximityHandler(ctx context.Context, body []byte) error {
	p, err := models.DecodeDriverProximity(body)
	if err != nil {
		return err
	}
	_, err = e.HandleProximity(ctx, p)
	return err
}

func (e *Engine) tripUpdateHandler(ctx context.Context, body []byte) error {
	u, err := models.DecodeTripUpdate(body)
	if err != nil {
		return err
	}
	return e.HandleTripUpdate(ctx, u)
}
