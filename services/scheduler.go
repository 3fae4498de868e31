// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
)

// StartAliasBackfill runs BackfillAliases once immediately and then every
// interval. The returned scheduler must be shut down by the caller.
func (s *GameService) StartAliasBackfill(interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, "create scheduler")
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()

			added, err := s.BackfillAliases(ctx)
			if err != nil {
				log.Printf("[Scheduler] alias backfill failed: %v", err)
				return
			}
			if added > 0 {
				log.Printf("✅ [Scheduler] registered %d missing game aliases", added)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, errors.Wrap(err, "schedule alias backfill")
	}

	sched.Start()
	return sched, nil
}
