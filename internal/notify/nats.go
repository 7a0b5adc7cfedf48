package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

const closeFlushTimeout = 2 * time.Second

// envelope is the wire body published for each event.
type envelope struct {
	Event      models.NotificationEvent `json:"event"`
	Deliveries []models.Delivery        `json:"deliveries"`
}

// NATSSink publishes each event on <prefix>.<severity>.<station>.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

func NewNATSSink(url, prefix string) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("flood-alert"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	slog.Info("connected to NATS", "url", url, "prefix", prefix)
	return &NATSSink{conn: conn, prefix: prefix}, nil
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Publish(_ context.Context, ev models.NotificationEvent, deliveries []models.Delivery) error {
	data, err := json.Marshal(envelope{Event: ev, Deliveries: deliveries})
	if err != nil {
		return fmt.Errorf("serialize notification: %w", err)
	}
	return s.conn.Publish(subjectFor(s.prefix, ev), data)
}

func (s *NATSSink) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

// Close flushes what is buffered and disconnects. It returns once the
// connection is closed.
func (s *NATSSink) Close() {
	if s.conn == nil {
		return
	}
	if err := s.conn.FlushTimeout(closeFlushTimeout); err != nil {
		slog.Warn("nats flush on close failed", "error", err)
	}
	s.conn.Close()
	slog.Info("disconnected from NATS")
}

func subjectFor(prefix string, ev models.NotificationEvent) string {
	return fmt.Sprintf("%s.%s.%s", prefix, ev.Severity, strings.ToLower(ev.StationCode))
}
