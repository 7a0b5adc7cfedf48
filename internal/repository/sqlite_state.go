package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

func (s *SQLiteDB) GetState(ctx context.Context, station string) (*models.StationState, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM station_state WHERE station_code = ?`, station).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.StationState{StationCode: station}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state for %s: %w", station, err)
	}
	var st models.StationState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("corrupt state for %s: %w", station, err)
	}
	st.StationCode = station
	return &st, nil
}

func (s *SQLiteDB) SaveState(ctx context.Context, st *models.StationState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	var updated int64
	if st.LastProcessed != nil {
		updated = toMillis(*st.LastProcessed)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO station_state (station_code, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (station_code) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		st.StationCode, string(data), updated)
	if err != nil {
		return fmt.Errorf("failed to save state for %s: %w", st.StationCode, err)
	}
	return nil
}

func (s *SQLiteDB) CreateRule(ctx context.Context, r *models.NotificationRule) error {
	stations := r.StationCodes
	if stations == nil {
		stations = []string{}
	}
	stationJSON, err := json.Marshal(stations)
	if err != nil {
		return err
	}
	channelJSON, err := json.Marshal(r.Channels)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_rules (user_id, station_codes, min_severity, channels, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Subscriber, string(stationJSON), int(r.MinSeverity), string(channelJSON), r.Active, toMillis(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create notification rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

func (s *SQLiteDB) ListRules(ctx context.Context, activeOnly bool) ([]models.NotificationRule, error) {
	query := `SELECT id, user_id, station_codes, min_severity, channels, active, created_at FROM notification_rules`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification rules: %w", err)
	}
	defer rows.Close()

	var out []models.NotificationRule
	for rows.Next() {
		var (
			r                     models.NotificationRule
			stationJSON, chanJSON string
			sev                   int
			createdAt             int64
		)
		if err := rows.Scan(&r.ID, &r.Subscriber, &stationJSON, &sev, &chanJSON, &r.Active, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification rule: %w", err)
		}
		if err := json.Unmarshal([]byte(stationJSON), &r.StationCodes); err != nil {
			return nil, fmt.Errorf("rule %d has corrupt stations: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(chanJSON), &r.Channels); err != nil {
			return nil, fmt.Errorf("rule %d has corrupt channels: %w", r.ID, err)
		}
		r.MinSeverity = models.AlertSeverity(sev)
		r.CreatedAt = fromMillis(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
