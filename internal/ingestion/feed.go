package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

// feedResponse accepts either a bare array of readings or {"readings": [...]}.
type feedResponse struct {
	Readings []models.RawReading `json:"readings"`
}

func fetchFeed(ctx context.Context, url string) ([]models.RawReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := &http.Client{
		Timeout: 15 * time.Second,
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}
	return DecodeBatch(raw)
}

// DecodeBatch parses an ingestion batch in either accepted shape.
func DecodeBatch(raw json.RawMessage) ([]models.RawReading, error) {
	var list []models.RawReading
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped feedResponse
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("unrecognized feed payload: %w", err)
	}
	return wrapped.Readings, nil
}
