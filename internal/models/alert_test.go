package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to AlertStatus
		ok       bool
	}{
		{StatusActive, StatusAcknowledged, true},
		{StatusActive, StatusResolved, true},
		{StatusActive, StatusCancelled, true},
		{StatusAcknowledged, StatusResolved, true},
		{StatusAcknowledged, StatusCancelled, true},
		{StatusAcknowledged, StatusActive, false},
		{StatusAcknowledged, StatusAcknowledged, false},
		{StatusResolved, StatusActive, false},
		{StatusResolved, StatusAcknowledged, false},
		{StatusCancelled, StatusResolved, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestAlert_Transition(t *testing.T) {
	at := time.Date(2025, 10, 3, 9, 0, 0, 0, time.UTC)
	a := &Alert{ID: 7, Status: StatusActive}

	require.NoError(t, a.Transition(StatusAcknowledged, "ops-1", "", at))
	assert.Equal(t, StatusAcknowledged, a.Status)
	assert.Equal(t, "ops-1", a.AcknowledgedBy)
	require.NotNil(t, a.AcknowledgedAt)

	require.NoError(t, a.Transition(StatusResolved, "ops-2", "river receded", at.Add(time.Hour)))
	assert.Equal(t, "river receded", a.ResolutionNotes)
	assert.Equal(t, at.Add(time.Hour), *a.ResolvedAt)

	err := a.Transition(StatusAcknowledged, "ops-1", "", at)
	var conflict *StateConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(7), conflict.AlertID)
	assert.ErrorIs(t, err, ErrStateConflict)
	assert.Equal(t, StatusResolved, a.Status, "a rejected transition must not change state")
}

func TestSeverityForTier(t *testing.T) {
	for tier, want := range map[RiskTier]AlertSeverity{
		RiskModerate: SeverityWarning,
		RiskHigh:     SeverityCritical,
		RiskVeryHigh: SeverityEmergency,
		RiskCritical: SeverityEmergency,
	} {
		got, ok := SeverityForTier(tier)
		assert.True(t, ok, tier.String())
		assert.Equal(t, want, got, tier.String())
	}
	for _, tier := range []RiskTier{RiskNormal, RiskLow} {
		_, ok := SeverityForTier(tier)
		assert.False(t, ok, tier.String())
	}
}

func TestAlert_JSONUsesNames(t *testing.T) {
	a := Alert{ID: 1, StationCode: "CHIH3", Kind: AlertRapidRise, Severity: SeverityCritical, Status: StatusActive, RiskTier: RiskHigh}
	data, err := json.Marshal(a)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "rapid_rise", raw["alert_type"])
	assert.Equal(t, "critical", raw["severity"])
	assert.Equal(t, "high", raw["risk_level"])
}

func TestThresholdSet_Validate(t *testing.T) {
	good := ThresholdSet{Low: 2, Moderate: 4, High: 6, VeryHigh: 8, Critical: 12}
	assert.NoError(t, good.Validate())

	for name, ts := range map[string]ThresholdSet{
		"zero low":     {Low: 0, Moderate: 4, High: 6, VeryHigh: 8, Critical: 12},
		"equal bounds": {Low: 2, Moderate: 4, High: 4, VeryHigh: 8, Critical: 12},
		"descending":   {Low: 2, Moderate: 4, High: 6, VeryHigh: 5, Critical: 12},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, ts.Validate(), ErrConfiguration)
		})
	}
}

func TestStation_Validate(t *testing.T) {
	s := Station{Code: "CHIH3", Name: "Chocolate Bayou", Status: StationActive}
	assert.NoError(t, s.Validate())

	s.Code = "CH"
	assert.ErrorIs(t, s.Validate(), ErrValidation)

	s.Code = "CHIH3"
	s.Coordinates.Latitude = 91
	assert.ErrorIs(t, s.Validate(), ErrValidation)
}

func TestNotificationRule_Matches(t *testing.T) {
	ev := NotificationEvent{StationCode: "CHIH3", Severity: SeverityCritical}

	rule := NotificationRule{Active: true, MinSeverity: SeverityWarning}
	assert.True(t, rule.Matches(ev), "empty station set matches every station")

	rule.StationCodes = []string{"SANH3"}
	assert.False(t, rule.Matches(ev))

	rule.StationCodes = []string{"SANH3", "CHIH3"}
	assert.True(t, rule.Matches(ev))

	rule.MinSeverity = SeverityEmergency
	assert.False(t, rule.Matches(ev))

	rule.MinSeverity = SeverityInfo
	rule.Active = false
	assert.False(t, rule.Matches(ev))
}

func TestNotificationRule_Validate(t *testing.T) {
	r := NotificationRule{Subscriber: "u-1", Channels: []NotificationChannel{ChannelEmail}}
	assert.NoError(t, r.Validate())

	r.Channels = []NotificationChannel{"pigeon"}
	assert.ErrorIs(t, r.Validate(), ErrValidation)

	r.Channels = nil
	assert.ErrorIs(t, r.Validate(), ErrValidation)
}

func TestParseQualityFlag(t *testing.T) {
	q, err := ParseQualityFlag("")
	require.NoError(t, err)
	assert.Equal(t, QualityGood, q)

	_, err = ParseQualityFlag("bogus")
	assert.Error(t, err)
}

func TestParseNotificationType(t *testing.T) {
	for _, in := range []string{"escalated", "alert.escalated", " Alert.Escalated "} {
		typ, err := ParseNotificationType(in)
		require.NoError(t, err, in)
		assert.Equal(t, NotifyEscalated, typ)
	}

	_, err := ParseNotificationType("alert.deleted")
	assert.Error(t, err)
}
