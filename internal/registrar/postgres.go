package registrar

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/example/station-matching/internal/models"
)

const createTripsTable = `CREATE TABLE IF NOT EXISTS trips (
	trip_id TEXT PRIMARY KEY,
	driver_id TEXT,
	rider_ids TEXT,
	origin_station TEXT,
	destination TEXT,
	status TEXT,
	start_time BIGINT,
	end_time BIGINT,
	seats_reserved INT
)`

const insertTrip = `INSERT INTO trips(trip_id, driver_id, rider_ids, origin_station, destination, status, start_time, seats_reserved) VALUES($1,$2,$3,$4,$5,$6,$7,$8)`

// PostgresRegistrar writes scheduled trips straight into the trip service's
// table, for deployments where the matcher shares its database.
type PostgresRegistrar struct {
	db *sqlx.DB
}

func NewPostgresRegistrar(ctx context.Context, dsn string) (*PostgresRegistrar, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect trips db: %w", err)
	}
	return &PostgresRegistrar{db: db}, nil
}

// NewPostgresRegistrarFromDB wraps an existing handle.
func NewPostgresRegistrarFromDB(db *sqlx.DB) *PostgresRegistrar {
	return &PostgresRegistrar{db: db}
}

// Migrate creates the trips table if it does not exist yet.
func (p *PostgresRegistrar) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createTripsTable); err != nil {
		return fmt.Errorf("migrate trips: %w", err)
	}
	return nil
}

func (p *PostgresRegistrar) CreateTrip(ctx context.Context, req models.TripRequest) (string, error) {
	tripID := "trip-" + uuid.NewString()
	status := req.Status
	if status == "" {
		status = models.TripStatusScheduled
	}
	_, err := p.db.ExecContext(ctx, insertTrip,
		tripID, req.DriverID, strings.Join(req.RiderIDs, ","), req.OriginStation, req.Destination,
		status, req.StartTime, req.SeatsReserved)
	if err != nil {
		return "", fmt.Errorf("insert trip: %w", err)
	}
	return tripID, nil
}

func (p *PostgresRegistrar) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresRegistrar) Close() error {
	return p.db.Close()
}
