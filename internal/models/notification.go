package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type NotificationChannel string

const (
	ChannelBrowserPush NotificationChannel = "browser_push"
	ChannelEmail       NotificationChannel = "email"
	ChannelSMS         NotificationChannel = "sms"
	ChannelWebhook     NotificationChannel = "webhook"
)

func ParseNotificationChannel(s string) (NotificationChannel, error) {
	switch c := NotificationChannel(strings.ToLower(s)); c {
	case ChannelBrowserPush, ChannelEmail, ChannelSMS, ChannelWebhook:
		return c, nil
	default:
		return "", fmt.Errorf("unknown notification channel %q", s)
	}
}

// NotificationRule is read-only input to the dispatcher. An empty station set
// subscribes to every station.
type NotificationRule struct {
	ID           int64                 `json:"id"`
	Subscriber   string                `json:"user_id"`
	StationCodes []string              `json:"station_ids"`
	MinSeverity  AlertSeverity         `json:"severity_threshold"`
	Channels     []NotificationChannel `json:"channels"`
	Active       bool                  `json:"is_active"`
	CreatedAt    time.Time             `json:"created_at"`
}

func (r *NotificationRule) Validate() error {
	if strings.TrimSpace(r.Subscriber) == "" {
		return &ValidationError{Field: "user_id", Reason: "subscriber is required"}
	}
	if len(r.Channels) == 0 {
		return &ValidationError{Field: "channels", Reason: "at least one channel is required"}
	}
	for _, c := range r.Channels {
		if _, err := ParseNotificationChannel(string(c)); err != nil {
			return &ValidationError{Field: "channels", Reason: err.Error()}
		}
	}
	return nil
}

// Matches reports whether the rule wants to hear about the event.
func (r *NotificationRule) Matches(ev NotificationEvent) bool {
	if !r.Active {
		return false
	}
	if ev.Severity < r.MinSeverity {
		return false
	}
	if len(r.StationCodes) == 0 {
		return true
	}
	return slices.Contains(r.StationCodes, ev.StationCode)
}

type NotificationType string

const (
	NotifyCreated   NotificationType = "alert.created"
	NotifyEscalated NotificationType = "alert.escalated"
	NotifyResolved  NotificationType = "alert.resolved"
)

// ParseNotificationType accepts the full name or its short form, so
// "escalated" and "alert.escalated" are the same type.
func ParseNotificationType(s string) (NotificationType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(v, "alert.") {
		v = "alert." + v
	}
	switch t := NotificationType(v); t {
	case NotifyCreated, NotifyEscalated, NotifyResolved:
		return t, nil
	default:
		return "", fmt.Errorf("unknown notification type %q", s)
	}
}

// NotificationEvent is what the engine hands to the dispatch collaborator.
type NotificationEvent struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"event_type"`
	AlertID     int64            `json:"alert_id"`
	StationCode string           `json:"station_id"`
	Kind        AlertKind        `json:"alert_type"`
	Severity    AlertSeverity    `json:"severity"`
	Status      AlertStatus      `json:"status"`
	RiskTier    RiskTier         `json:"risk_level"`
	Title       string           `json:"title"`
	Timestamp   time.Time        `json:"timestamp"`
}

// Delivery is one (rule, channel) pair the transport should deliver.
type Delivery struct {
	Event      NotificationEvent   `json:"event"`
	RuleID     int64               `json:"rule_id"`
	Subscriber string              `json:"user_id"`
	Channel    NotificationChannel `json:"channel"`
}
