package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

var _ Store = (*SQLiteDB)(nil)

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// One connection: writes are serialized anyway, and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS stations (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			river_name TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			latitude REAL NOT NULL DEFAULT 0,
			longitude REAL NOT NULL DEFAULT 0,
			thresholds TEXT,
			base_population INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			station_code TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			water_level_m REAL NOT NULL,
			flow_rate_cms REAL,
			temperature_c REAL,
			source TEXT NOT NULL,
			quality_flag TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE (station_code, timestamp, source),
			FOREIGN KEY (station_code) REFERENCES stations(code)
		);

		CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			station_code TEXT NOT NULL,
			kind TEXT NOT NULL,
			severity INTEGER NOT NULL,
			status TEXT NOT NULL,
			risk_tier INTEGER NOT NULL,
			triggered_by_reading INTEGER,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			context TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			acknowledged_at INTEGER,
			acknowledged_by TEXT NOT NULL DEFAULT '',
			resolved_at INTEGER,
			resolved_by TEXT NOT NULL DEFAULT '',
			resolution_notes TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (station_code) REFERENCES stations(code)
		);

		CREATE TABLE IF NOT EXISTS station_state (
			station_code TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS notification_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			station_codes TEXT NOT NULL,
			min_severity INTEGER NOT NULL,
			channels TEXT NOT NULL,
			active INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_readings_station_ts ON readings(station_code, timestamp);
		CREATE INDEX IF NOT EXISTS idx_alerts_station ON alerts(station_code);
		CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_open
			ON alerts(station_code, kind) WHERE status IN ('active', 'acknowledged');
	`

	_, err := s.db.Exec(schema)
	return err
}

// Seed inserts the Sula valley stations unless they already exist.
func (s *SQLiteDB) Seed(ctx context.Context, now time.Time) error {
	for _, st := range SeedStations() {
		th, err := json.Marshal(st.Thresholds)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO stations
				(code, name, river_name, location, latitude, longitude, thresholds, base_population, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			st.Code, st.Name, st.RiverName, st.Location, st.Coordinates.Latitude, st.Coordinates.Longitude,
			string(th), st.BasePopulation, string(st.Status), toMillis(now), toMillis(now))
		if err != nil {
			return fmt.Errorf("failed to seed station %s: %w", st.Code, err)
		}
	}
	return nil
}

// SeedStations are the three gauges of the Ulúa and Chamelecón rivers.
func SeedStations() []models.Station {
	th := func() *models.ThresholdSet {
		return &models.ThresholdSet{Low: 2, Moderate: 4, High: 6, VeryHigh: 8, Critical: 12}
	}
	return []models.Station{
		{Code: "CHIH3", Name: "Ulúa en Chinda", RiverName: "Ulúa", Location: "Chinda",
			Coordinates: models.Coordinates{Latitude: 15.3847, Longitude: -87.9547},
			Thresholds:  th(), BasePopulation: 150000, Status: models.StationActive},
		{Code: "SANH3", Name: "Ulúa en Santiago", RiverName: "Ulúa", Location: "Santiago",
			Coordinates: models.Coordinates{Latitude: 15.2941, Longitude: -87.9234},
			Thresholds:  th(), BasePopulation: 180000, Status: models.StationActive},
		{Code: "RCHH3", Name: "Chamelecón en El Tablón", RiverName: "Chamelecón", Location: "El Tablón",
			Coordinates: models.Coordinates{Latitude: 15.4234, Longitude: -88.0123},
			Thresholds:  th(), BasePopulation: 120000, Status: models.StationActive},
	}
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// inClause renders "col IN (?, ?, ...)" and appends the values to args.
func inClause[T any](col string, values []T, args []any) (string, []any) {
	marks := make([]string, len(values))
	for i, v := range values {
		marks[i] = "?"
		args = append(args, v)
	}
	return fmt.Sprintf("%s IN (%s)", col, strings.Join(marks, ", ")), args
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
