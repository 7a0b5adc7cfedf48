package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

const stationColumns = `code, name, river_name, location, latitude, longitude, thresholds, base_population, status, created_at, updated_at`

// UpsertStation creates the station or replaces its mutable fields. The
// original creation time is kept.
func (s *SQLiteDB) UpsertStation(ctx context.Context, st *models.Station) error {
	var thresholds sql.NullString
	if st.Thresholds != nil {
		b, err := json.Marshal(st.Thresholds)
		if err != nil {
			return fmt.Errorf("failed to encode thresholds: %w", err)
		}
		thresholds = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stations (`+stationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			name = excluded.name,
			river_name = excluded.river_name,
			location = excluded.location,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			thresholds = excluded.thresholds,
			base_population = excluded.base_population,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		st.Code, st.Name, st.RiverName, st.Location, st.Coordinates.Latitude, st.Coordinates.Longitude,
		thresholds, st.BasePopulation, string(st.Status), toMillis(st.CreatedAt), toMillis(st.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert station %s: %w", st.Code, err)
	}
	return nil
}

func (s *SQLiteDB) GetStation(ctx context.Context, code string) (*models.Station, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stationColumns+` FROM stations WHERE code = ?`, code)
	st, err := scanStation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("station %s: %w", code, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get station %s: %w", code, err)
	}
	return st, nil
}

func (s *SQLiteDB) ListStations(ctx context.Context) ([]models.Station, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+stationColumns+` FROM stations ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	defer rows.Close()

	var out []models.Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan station: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStation(row scanner) (*models.Station, error) {
	var (
		st                   models.Station
		thresholds           sql.NullString
		status               string
		createdAt, updatedAt int64
	)
	err := row.Scan(&st.Code, &st.Name, &st.RiverName, &st.Location,
		&st.Coordinates.Latitude, &st.Coordinates.Longitude, &thresholds,
		&st.BasePopulation, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if thresholds.Valid && thresholds.String != "" && thresholds.String != "null" {
		st.Thresholds = decodeThresholds(st.Code, thresholds.String)
	}
	st.Status = models.StationStatus(status)
	st.CreatedAt = fromMillis(createdAt)
	st.UpdatedAt = fromMillis(updatedAt)
	return &st, nil
}

// decodeThresholds returns nil for a stored set that cannot be used, so the
// classifier falls back to the default tiers and flags the reading.
func decodeThresholds(code, raw string) *models.ThresholdSet {
	var ts models.ThresholdSet
	if err := json.Unmarshal([]byte(raw), &ts); err != nil {
		slog.Warn("ignoring corrupt station thresholds", "station", code, "error", err)
		return nil
	}
	if err := ts.Validate(); err != nil {
		slog.Warn("ignoring invalid station thresholds", "station", code, "error", err)
		return nil
	}
	return &ts
}
