package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/hive-corporation/threatpulse/internal/adapter/provider"
	"github.com/hive-corporation/threatpulse/internal/adapter/repository"
	"github.com/hive-corporation/threatpulse/internal/adapter/resilient"
	"github.com/hive-corporation/threatpulse/internal/config"
	"github.com/hive-corporation/threatpulse/internal/core/domain"
	"github.com/hive-corporation/threatpulse/internal/core/ports"
	"github.com/hive-corporation/threatpulse/internal/metrics"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

// One-shot backfill: pulls every configured poll source once, stores the
// alerts in Postgres and relays everything onto NATS for running API
// replicas.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := log.Init(cfg.Logger.Zap())
	metrics.InitMetrics()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var repo ports.AlertRepository
	if cfg.Database.URL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatalf(ctx, "Error connecting to database: %v", err)
		}
		defer dbPool.Close()
		pg := repository.NewPostgresRepository(dbPool)
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatalf(ctx, "Error migrating database: %v", err)
		}
		repo = pg
	}

	var publisher *provider.NATSPublisher
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("threatpulse-ingester"))
		if err != nil {
			logger.Fatalf(ctx, "Error connecting to NATS: %v", err)
		}
		defer nc.Drain()
		publisher = provider.NewNATSPublisher(nc, cfg.NATS.Subject)
	}

	if repo == nil && publisher == nil {
		logger.Fatal(ctx, "Nothing to do: set DATABASE_URL and/or NATS_URL")
	}

	sources, err := config.LoadSources(cfg.Feed.SourcesFile)
	if err != nil {
		logger.Fatalf(ctx, "Error loading sources: %v", err)
	}
	if len(sources) == 0 {
		logger.Warnf(ctx, "No sources configured in %s", cfg.Feed.SourcesFile)
		return
	}

	alertChannel := make(chan domain.Alert, 2000)
	var wg sync.WaitGroup

	logger.Info(ctx, "Alert backfill started...")
	for _, s := range sources {
		src := provider.NewHTTPSource(s.Name, s.URL, s.APIKey, provider.Format(s.Format),
			resilient.New("source."+s.Name, cfg.Resilience.Client(), logger), logger)

		wg.Add(1)
		go func(src ports.AlertSource) {
			defer wg.Done()

			batch, err := src.Fetch(ctx)
			if err != nil {
				metrics.RecordFeedPoll(src.Name(), "error")
				logger.Errorf(ctx, "Failed to fetch %s: %v", src.Name(), err)
				return
			}
			metrics.RecordFeedPoll(src.Name(), "success")
			logger.Infof(ctx, "%s returned %d alerts and %d simulations", src.Name(), len(batch.Alerts), len(batch.Simulations))

			// Stable ids so the relayed copy and the stored copy dedupe together.
			for i := range batch.Alerts {
				if batch.Alerts[i].ID == "" {
					batch.Alerts[i].ID = uuid.NewString()
				}
			}

			if publisher != nil {
				if err := publisher.Publish(batch); err != nil {
					logger.Errorf(ctx, "Failed to relay %s: %v", src.Name(), err)
				}
			}

			for _, a := range batch.Alerts {
				select {
				case alertChannel <- a:
				case <-ctx.Done():
					return
				}
			}
		}(src)
	}

	go func() {
		wg.Wait()
		close(alertChannel)
	}()

	var batch []domain.Alert
	batchSize := 500
	totalSaved := 0

	flush := func(reason string) {
		if len(batch) == 0 || repo == nil {
			batch = nil
			return
		}
		if err := repo.SaveAlerts(ctx, batch); err != nil {
			logger.Errorf(ctx, "Error saving batch (%s): %v", reason, err)
		} else {
			totalSaved += len(batch)
			logger.Debugf(ctx, "Batch saved (%s): %d alerts (total %d)", reason, len(batch), totalSaved)
		}
		batch = nil
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

loop:
	for {
		select {
		case a, ok := <-alertChannel:
			if !ok {
				break loop
			}
			if !a.Severity.Valid() {
				logger.Warnf(ctx, "Skipping alert %q with unknown severity %q", a.ID, a.Severity)
				continue
			}
			if a.Status == "" {
				a.Status = domain.StatusNew
			}
			batch = append(batch, a)
			if len(batch) >= batchSize {
				flush("size")
			}

		case <-ticker.C:
			flush("time")
		}
	}
	flush("final")

	logger.Infof(ctx, "Alert backfill finished, %d alerts stored", totalSaved)
}
