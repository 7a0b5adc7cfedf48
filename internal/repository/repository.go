package repository

import (
	"context"
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

// ReadingFilter selects stored readings. Zero Limit means no limit.
type ReadingFilter struct {
	StationCodes []string
	From         *time.Time // inclusive
	To           *time.Time // exclusive
	Limit        int
	Offset       int
	Ascending    bool
}

// AlertCount is one row of the grouped alert tally used by the dashboard.
type AlertCount struct {
	Status   models.AlertStatus
	Severity models.AlertSeverity
	Kind     models.AlertKind
	Count    int
}

type StationRepository interface {
	UpsertStation(ctx context.Context, s *models.Station) error
	GetStation(ctx context.Context, code string) (*models.Station, error)
	ListStations(ctx context.Context) ([]models.Station, error)
}

type ReadingRepository interface {
	// InsertReading stores r unless a reading with the same station, timestamp
	// and source exists. r.ID is set either way; inserted reports which.
	InsertReading(ctx context.Context, r *models.Reading) (inserted bool, err error)
	ListReadings(ctx context.Context, f ReadingFilter) ([]models.Reading, error)
	// LatestReadings returns the newest reading of every station that has one.
	LatestReadings(ctx context.Context) ([]models.Reading, error)
	// RecentReadings returns up to limit readings at or after since, ascending.
	RecentReadings(ctx context.Context, station string, since time.Time, limit int) ([]models.Reading, error)
}

type AlertRepository interface {
	// CreateAlert fails with models.ErrDuplicate when an open alert of the
	// same kind already exists for the station.
	CreateAlert(ctx context.Context, a *models.Alert) error
	UpdateAlert(ctx context.Context, a *models.Alert) error
	GetAlert(ctx context.Context, id int64) (*models.Alert, error)
	// OpenAlert returns nil, nil when the station has no open alert of kind.
	OpenAlert(ctx context.Context, station string, kind models.AlertKind) (*models.Alert, error)
	ListAlerts(ctx context.Context, f models.AlertFilter) ([]models.Alert, error)
	CountAlerts(ctx context.Context) ([]AlertCount, error)
}

type StateRepository interface {
	GetState(ctx context.Context, station string) (*models.StationState, error)
	SaveState(ctx context.Context, st *models.StationState) error
}

type RuleRepository interface {
	CreateRule(ctx context.Context, r *models.NotificationRule) error
	ListRules(ctx context.Context, activeOnly bool) ([]models.NotificationRule, error)
}

// Store is everything the engine persists.
type Store interface {
	StationRepository
	ReadingRepository
	AlertRepository
	StateRepository
	RuleRepository
}
