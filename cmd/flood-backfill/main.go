// Command flood-backfill ingests a JSON batch file through the same path the
// server uses. With -sweep it also runs one silence sweep afterwards. Pending
// notifications are delivered before it exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-flood-alerts/internal/app"
	"github.com/mr1hm/go-flood-alerts/internal/config"
	"github.com/mr1hm/go-flood-alerts/internal/ingestion"
	"github.com/mr1hm/go-flood-alerts/internal/logging"
	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
)

func main() {
	_ = godotenv.Load()

	path := flag.String("file", "", "JSON batch: an array of readings or {\"readings\": [...]}")
	sweep := flag.Bool("sweep", false, "run a silence sweep after ingesting")
	flag.Parse()
	if *path == "" {
		logging.Fatalf("usage: flood-backfill -file readings.json [-sweep]")
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	data, err := os.ReadFile(*path)
	if err != nil {
		logging.Fatalf("Failed to read batch: %v", err)
	}
	batch, err := ingestion.DecodeBatch(data)
	if err != nil {
		logging.Fatalf("Failed to decode batch: %v", err)
	}

	ctx := context.Background()
	engine, err := app.New(ctx, cfg, observability.NewMetrics(), clockwork.NewRealClock())
	if err != nil {
		logging.Fatalf("Failed to initialize engine: %v", err)
	}
	defer engine.Close()

	counts := map[models.IngestOutcome]int{}
	for _, r := range engine.Coordinator.Ingest(ctx, batch) {
		counts[r.Outcome]++
		if r.Outcome == models.OutcomeRejected {
			slog.Warn("reading rejected", "index", r.Index, "station", r.StationCode, "reason", r.Reason)
		}
	}

	if *sweep {
		if err := engine.Alerts.SweepSilence(ctx); err != nil {
			slog.Error("silence sweep failed", "error", err)
		}
	}

	fmt.Printf("accepted=%d duplicate=%d rejected=%d\n",
		counts[models.OutcomeAccepted], counts[models.OutcomeDuplicate], counts[models.OutcomeRejected])
}
