package notify

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func event(alertID int64) models.NotificationEvent {
	return models.NotificationEvent{
		ID:          "ev",
		Type:        models.NotifyCreated,
		AlertID:     alertID,
		StationCode: "CHIH3",
		Kind:        models.AlertThresholdCrossing,
		Severity:    models.SeverityCritical,
		Status:      models.StatusActive,
	}
}
