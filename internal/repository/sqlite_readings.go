package repository

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

const readingColumns = `id, station_code, timestamp, water_level_m, flow_rate_cms, temperature_c, source, quality_flag, created_at`

func (s *SQLiteDB) InsertReading(ctx context.Context, r *models.Reading) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO readings
			(station_code, timestamp, water_level_m, flow_rate_cms, temperature_c, source, quality_flag, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.StationCode, toMillis(r.Timestamp), r.WaterLevelM, nullFloat(r.FlowRateCMS), nullFloat(r.TemperatureC),
		r.Source, string(r.Quality), toMillis(r.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert reading: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return false, err
		}
		r.ID = id
		return true, nil
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM readings WHERE station_code = ? AND timestamp = ? AND source = ?`,
		r.StationCode, toMillis(r.Timestamp), r.Source).Scan(&r.ID)
	if err != nil {
		return false, fmt.Errorf("failed to look up existing reading: %w", err)
	}
	return false, nil
}

func (s *SQLiteDB) ListReadings(ctx context.Context, f ReadingFilter) ([]models.Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM readings WHERE 1=1`
	var args []any

	if len(f.StationCodes) > 0 {
		var clause string
		clause, args = inClause("station_code", f.StationCodes, args)
		query += " AND " + clause
	}
	if f.From != nil {
		query += " AND timestamp >= ?"
		args = append(args, toMillis(*f.From))
	}
	if f.To != nil {
		query += " AND timestamp < ?"
		args = append(args, toMillis(*f.To))
	}

	if f.Ascending {
		query += " ORDER BY timestamp ASC, id ASC"
	} else {
		query += " ORDER BY timestamp DESC, id DESC"
	}
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	} else if f.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, f.Offset)
	}

	return s.queryReadings(ctx, query, args...)
}

func (s *SQLiteDB) LatestReadings(ctx context.Context) ([]models.Reading, error) {
	cols := strings.ReplaceAll(readingColumns, ", ", ", r.")
	query := `
		SELECT r.` + cols + `
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY station_code ORDER BY timestamp DESC, id DESC) AS rn
			FROM readings
		) r
		WHERE r.rn = 1
		ORDER BY r.station_code`
	return s.queryReadings(ctx, query)
}

func (s *SQLiteDB) RecentReadings(ctx context.Context, station string, since time.Time, limit int) ([]models.Reading, error) {
	if limit <= 0 {
		limit = -1
	}
	readings, err := s.queryReadings(ctx, `
		SELECT `+readingColumns+` FROM readings
		WHERE station_code = ? AND timestamp >= ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, station, toMillis(since), limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(readings)
	return readings, nil
}

func (s *SQLiteDB) queryReadings(ctx context.Context, query string, args ...any) ([]models.Reading, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var out []models.Reading
	for rows.Next() {
		var (
			r             models.Reading
			ts, createdAt int64
			flow, temp    sql.NullFloat64
			quality       string
		)
		if err := rows.Scan(&r.ID, &r.StationCode, &ts, &r.WaterLevelM, &flow, &temp,
			&r.Source, &quality, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.Timestamp = fromMillis(ts)
		r.CreatedAt = fromMillis(createdAt)
		r.FlowRateCMS = floatPtr(flow)
		r.TemperatureC = floatPtr(temp)
		r.Quality = models.QualityFlag(quality)
		out = append(out, r)
	}
	return out, rows.Err()
}
