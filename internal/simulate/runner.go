package simulate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/ascent/internal/domain/types"
	"github.com/okian/ascent/pkg/logger"
)

// Run executes the simulation: Days of generated activity for Users
// subjects, submitted concurrently, with an optional sweep between days and
// a final snapshot pass.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Get().Named("simulate")
	stats := &Stats{StartTime: time.Now()}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	users := generateUsers(cfg.Users)
	log.Info(ctx, "simulation starting",
		logger.Int("users", cfg.Users),
		logger.Int("days", cfg.Days),
		logger.String("baseURL", cfg.BaseURL),
	)

	// Anchor the run so the last simulated day is yesterday; sweeps for a
	// day run on the morning after it.
	firstDay := time.Now().UTC().AddDate(0, 0, -cfg.Days).Truncate(24 * time.Hour)

	for dayIdx := 0; dayIdx < cfg.Days; dayIdx++ {
		day := firstDay.AddDate(0, 0, dayIdx)

		var events []event
		for _, u := range users {
			if !u.actsOn(dayIdx) {
				continue
			}
			events = append(events, generateDay(u, day, cfg.MaxPerDay)...)
		}
		stats.EventsGenerated += len(events)

		if err := submitAll(ctx, c, cfg, events, stats); err != nil {
			return stats, err
		}

		if cfg.RunSweeps {
			sweepDay := types.DayOf(day.AddDate(0, 0, 1))
			for _, u := range users {
				if err := c.runSweep(ctx, u.id, sweepDay.String()); err != nil {
					if cfg.Verbose {
						log.Warn(ctx, "sweep failed", logger.String("user", u.id), logger.Error(err))
					}
					continue
				}
				stats.SweepsRun++
			}
		}

		if cfg.Verbose {
			log.Info(ctx, "day complete",
				logger.String("day", types.DayOf(day).String()),
				logger.Int("events", len(events)),
			)
		}
	}

	// Final snapshot pass.
	for _, u := range users {
		if _, err := c.fetchSnapshot(ctx, u.id); err != nil {
			if cfg.Verbose {
				log.Warn(ctx, "snapshot failed", logger.String("user", u.id), logger.Error(err))
			}
			continue
		}
		stats.SnapshotsFetched++
	}

	stats.EndTime = time.Now()
	log.Info(ctx, "simulation complete",
		logger.Int("generated", stats.EventsGenerated),
		logger.Int("successful", stats.EventsSuccessful),
		logger.Int("duplicate", stats.EventsDuplicate),
		logger.Int("failed", stats.EventsFailed),
		logger.Int("sweeps", stats.SweepsRun),
		logger.Int("snapshots", stats.SnapshotsFetched),
	)
	return stats, nil
}

// submitAll pushes events through a bounded worker pool.
func submitAll(ctx context.Context, c *client, cfg *Config, events []event, stats *Stats) error {
	var successful, duplicate, failed int64

	eventChan := make(chan event, cfg.Workers*2)
	var wg sync.WaitGroup

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range eventChan {
				select {
				case <-ctx.Done():
					return
				default:
				}
				switch c.submitEvent(ctx, ev) {
				case "success":
					atomic.AddInt64(&successful, 1)
				case "duplicate":
					atomic.AddInt64(&duplicate, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
			}
		}()
	}

	for _, ev := range events {
		select {
		case <-ctx.Done():
			close(eventChan)
			wg.Wait()
			return fmt.Errorf("submission cancelled: %w", ctx.Err())
		case eventChan <- ev:
		}
	}
	close(eventChan)
	wg.Wait()

	stats.EventsSubmitted += len(events)
	stats.EventsSuccessful += int(atomic.LoadInt64(&successful))
	stats.EventsDuplicate += int(atomic.LoadInt64(&duplicate))
	stats.EventsFailed += int(atomic.LoadInt64(&failed))
	return nil
}
