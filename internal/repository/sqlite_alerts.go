package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

const alertColumns = `id, station_code, kind, severity, status, risk_tier, triggered_by_reading, title, message, context,
	created_at, updated_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by, resolution_notes`

func (s *SQLiteDB) CreateAlert(ctx context.Context, a *models.Alert) error {
	ctxJSON, err := encodeContext(a.Context)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts
			(station_code, kind, severity, status, risk_tier, triggered_by_reading, title, message, context,
			 created_at, updated_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by, resolution_notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.StationCode, string(a.Kind), int(a.Severity), string(a.Status), int(a.RiskTier),
		nullInt(a.TriggeredByReading), a.Title, a.Message, ctxJSON,
		toMillis(a.CreatedAt), toMillis(a.UpdatedAt), nullMillis(a.AcknowledgedAt), a.AcknowledgedBy,
		nullMillis(a.ResolvedAt), a.ResolvedBy, a.ResolutionNotes)
	if isUniqueViolation(err) {
		return fmt.Errorf("open %s alert for %s: %w", a.Kind, a.StationCode, models.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

func (s *SQLiteDB) UpdateAlert(ctx context.Context, a *models.Alert) error {
	ctxJSON, err := encodeContext(a.Context)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET
			severity = ?, status = ?, risk_tier = ?, triggered_by_reading = ?, title = ?, message = ?, context = ?,
			updated_at = ?, acknowledged_at = ?, acknowledged_by = ?, resolved_at = ?, resolved_by = ?, resolution_notes = ?
		WHERE id = ?`,
		int(a.Severity), string(a.Status), int(a.RiskTier), nullInt(a.TriggeredByReading), a.Title, a.Message, ctxJSON,
		toMillis(a.UpdatedAt), nullMillis(a.AcknowledgedAt), a.AcknowledgedBy, nullMillis(a.ResolvedAt),
		a.ResolvedBy, a.ResolutionNotes, a.ID)
	if err != nil {
		return fmt.Errorf("failed to update alert %d: %w", a.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("alert %d: %w", a.ID, models.ErrNotFound)
	}
	return nil
}

func (s *SQLiteDB) GetAlert(ctx context.Context, id int64) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert %d: %w", id, err)
	}
	return a, nil
}

func (s *SQLiteDB) OpenAlert(ctx context.Context, station string, kind models.AlertKind) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE station_code = ? AND kind = ? AND status IN ('active', 'acknowledged')`,
		station, string(kind))
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open alert: %w", err)
	}
	return a, nil
}

func (s *SQLiteDB) ListAlerts(ctx context.Context, f models.AlertFilter) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []any
	var clause string

	if len(f.StationCodes) > 0 {
		clause, args = inClause("station_code", f.StationCodes, args)
		query += " AND " + clause
	}
	if len(f.Kinds) > 0 {
		kinds := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			kinds[i] = string(k)
		}
		clause, args = inClause("kind", kinds, args)
		query += " AND " + clause
	}
	if len(f.Severities) > 0 {
		sevs := make([]int, len(f.Severities))
		for i, sev := range f.Severities {
			sevs[i] = int(sev)
		}
		clause, args = inClause("severity", sevs, args)
		query += " AND " + clause
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		clause, args = inClause("status", statuses, args)
		query += " AND " + clause
	}
	if f.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, toMillis(*f.Since))
	}

	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) CountAlerts(ctx context.Context) ([]AlertCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, severity, kind, COUNT(*) FROM alerts
		GROUP BY status, severity, kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	defer rows.Close()

	var out []AlertCount
	for rows.Next() {
		var (
			c            AlertCount
			status, kind string
			sev          int
		)
		if err := rows.Scan(&status, &sev, &kind, &c.Count); err != nil {
			return nil, err
		}
		c.Status = models.AlertStatus(status)
		c.Severity = models.AlertSeverity(sev)
		c.Kind = models.AlertKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanAlert(row scanner) (*models.Alert, error) {
	var (
		a                    models.Alert
		kind, status         string
		sev, tier            int
		reading              sql.NullInt64
		ctxJSON              sql.NullString
		createdAt, updatedAt int64
		ackAt, resolvedAt    sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.StationCode, &kind, &sev, &status, &tier, &reading, &a.Title, &a.Message, &ctxJSON,
		&createdAt, &updatedAt, &ackAt, &a.AcknowledgedBy, &resolvedAt, &a.ResolvedBy, &a.ResolutionNotes)
	if err != nil {
		return nil, err
	}
	a.Kind = models.AlertKind(kind)
	a.Severity = models.AlertSeverity(sev)
	a.Status = models.AlertStatus(status)
	a.RiskTier = models.RiskTier(tier)
	if reading.Valid {
		id := reading.Int64
		a.TriggeredByReading = &id
	}
	if ctxJSON.Valid && ctxJSON.String != "" {
		if err := json.Unmarshal([]byte(ctxJSON.String), &a.Context); err != nil {
			return nil, fmt.Errorf("alert %d has corrupt context: %w", a.ID, err)
		}
	}
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	a.AcknowledgedAt = timePtr(ackAt)
	a.ResolvedAt = timePtr(resolvedAt)
	return &a, nil
}

func encodeContext(c map[string]any) (sql.NullString, error) {
	if len(c) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode alert context: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
