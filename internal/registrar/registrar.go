// Package registrar creates trip records for successful matches. The trip
// service owns the records; these are thin clients with bounded latency.
package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/station-matching/internal/models"
)

// ErrRejected is returned when the trip service answers but refuses the trip.
var ErrRejected = errors.New("trip rejected by registrar")

// HTTPClient talks to the trip service's REST endpoint.
type HTTPClient struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Client:   &http.Client{Timeout: timeout},
	}
}

type createTripResponse struct {
	TripID string `json:"trip_id"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

func (c *HTTPClient) CreateTrip(ctx context.Context, req models.TripRequest) (string, error) {
	b, err := json.Marshal(map[string]any{"trip": req})
	if err != nil {
		return "", fmt.Errorf("encode trip: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/trips", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("create trip: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("create trip: unexpected status %d", resp.StatusCode)
	}
	var out createTripResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode trip response: %w", err)
	}
	if !out.OK || out.TripID == "" {
		return "", fmt.Errorf("%w: %s", ErrRejected, out.Reason)
	}
	return out.TripID, nil
}

// Unavailable is used when no trip service is configured; every match then
// falls back to a locally generated trip id.
type Unavailable struct{}

func (Unavailable) CreateTrip(context.Context, models.TripRequest) (string, error) {
	return "", errors.New("no trip registrar configured")
}
