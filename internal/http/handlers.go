// Package httpapi serves the operational surface of the matching engine:
// health, readiness, metrics, notification websockets and read-only state.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/station-matching/internal/dispatch"
	"github.com/example/station-matching/internal/models"
)

// StateReader exposes the engine state for inspection.
type StateReader interface {
	Waiting(stationID string) []models.WaitingRider
	Driver(driverID string) (models.DriverCapacity, bool)
}

// Injector publishes a raw event onto an inbound stream. Only set for the
// in-process transport.
type Injector interface {
	Publish(ctx context.Context, stream, key string, body []byte) error
}

// Check is a named readiness check.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

type Server struct {
	State    StateReader
	WSReg    *dispatch.WSRegistry
	Injector Injector
	Streams  []string
	Checks   []Check

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(logger *slog.Logger, state StateReader, ws *dispatch.WSRegistry, checks ...Check) *Server {
	s := &Server{State: state, WSReg: ws, Checks: checks, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

// EnableInjection accepts POSTed events for the given streams.
func (s *Server) EnableInjection(inj Injector, streams ...string) {
	s.Injector = inj
	s.Streams = streams
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) }).Methods("GET")
	s.mux.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
	s.mux.HandleFunc("/internal/stations/{station_id}/waitlist", s.handleWaitlist).Methods("GET")
	s.mux.HandleFunc("/internal/drivers/{driver_id}", s.handleDriver).Methods("GET")
	s.mux.HandleFunc("/internal/events/{stream}", s.handleInject).Methods("POST")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	failed := map[string]string{}
	for _, c := range s.Checks {
		if err := c.Run(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("readiness check failed", "failed", failed)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (s *Server) handleWaitlist(w http.ResponseWriter, r *http.Request) {
	station := mux.Vars(r)["station_id"]
	riders := s.State.Waiting(station)
	if riders == nil {
		riders = []models.WaitingRider{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"station_id": station, "riders": riders})
}

func (s *Server) handleDriver(w http.ResponseWriter, r *http.Request) {
	c, ok := s.State.Driver(mux.Vars(r)["driver_id"])
	if !ok {
		http.Error(w, "driver not tracked", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	stream := mux.Vars(r)["stream"]
	if s.Injector == nil || !slices.Contains(s.Streams, stream) {
		http.Error(w, "unknown stream", http.StatusNotFound)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "body is not valid json", http.StatusBadRequest)
		return
	}
	if err := s.Injector.Publish(r.Context(), stream, "", body); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

var upgrader = websocket.Upgrader{}

// handleWS registers a rider or driver for live match notifications.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "user_id", id, "error", err)
		return
	}
	s.WSReg.Add(id, conn)
	s.logger.Info("websocket session opened", "user_id", id)
	go func() {
		defer func() {
			s.WSReg.Remove(id, conn)
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
