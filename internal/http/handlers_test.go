package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/station-matching/internal/dispatch"
	"github.com/example/station-matching/internal/ingest"
	"github.com/example/station-matching/internal/logging"
	"github.com/example/station-matching/internal/models"
)

type fakeState struct {
	riders  map[string][]models.WaitingRider
	drivers map[string]models.DriverCapacity
}

func (f *fakeState) Waiting(stationID string) []models.WaitingRider { return f.riders[stationID] }

func (f *fakeState) Driver(driverID string) (models.DriverCapacity, bool) {
	c, ok := f.drivers[driverID]
	return c, ok
}

func newTestServer(checks ...Check) *Server {
	state := &fakeState{
		riders:  map[string][]models.WaitingRider{"S1": {{RiderID: "r1", Destination: "Downtown", ArrivalTime: 1, RequestID: "q1"}}},
		drivers: map[string]models.DriverCapacity{"d1": {DriverID: "d1", AvailableSeats: 3, Destination: "Downtown"}},
	}
	return NewServer(logging.Discard(), state, dispatch.NewWSRegistry(), checks...)
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := do(newTestServer(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReady(t *testing.T) {
	ok := Check{Name: "transport", Run: func(context.Context) error { return nil }}
	rec := do(newTestServer(ok), http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	bad := Check{Name: "redis", Run: func(context.Context) error { return errors.New("connection refused") }}
	rec = do(newTestServer(ok, bad), http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Ready  bool              `json:"ready"`
		Failed map[string]string `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Ready)
	assert.Equal(t, "connection refused", body.Failed["redis"])
	assert.NotContains(t, body.Failed, "transport")
}

func TestWaitlistAndDriverState(t *testing.T) {
	s := newTestServer()

	rec := do(s, http.MethodGet, "/internal/stations/S1/waitlist", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var wl struct {
		StationID string                `json:"station_id"`
		Riders    []models.WaitingRider `json:"riders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wl))
	assert.Equal(t, "S1", wl.StationID)
	require.Len(t, wl.Riders, 1)
	assert.Equal(t, "r1", wl.Riders[0].RiderID)

	rec = do(s, http.MethodGet, "/internal/stations/S9/waitlist", "")
	assert.Contains(t, rec.Body.String(), `"riders":[]`)

	rec = do(s, http.MethodGet, "/internal/drivers/d1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var c models.DriverCapacity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, 3, c.AvailableSeats)

	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/internal/drivers/nobody", "").Code)
}

func TestInjectEvents(t *testing.T) {
	s := newTestServer()
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodPost, "/internal/events/rider.requests", `{}`).Code)

	bus := ingest.NewMemory(logging.Discard())
	s.EnableInjection(bus, "rider.requests")
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodPost, "/internal/events/other", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/internal/events/rider.requests", `{`).Code)

	rec := do(s, http.MethodPost, "/internal/events/rider.requests", `{"rider_id":"r1"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, bus.Len("rider.requests"))
}

func TestWebSocketSessionReceivesNotifications(t *testing.T) {
	s := newTestServer()
	srv := httptest.NewServer(s)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/r1"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool { return s.WSReg.Connected("r1") }, time.Second, 10*time.Millisecond)
	require.NoError(t, s.WSReg.Send(context.Background(), models.Notification{ToID: "r1", Title: "Ride Matched"}))

	var got models.Notification
	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, client.ReadJSON(&got))
	assert.Equal(t, "Ride Matched", got.Title)

	require.NoError(t, client.Close())
	assert.Eventually(t, func() bool { return !s.WSReg.Connected("r1") }, time.Second, 10*time.Millisecond)
}
