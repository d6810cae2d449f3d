package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/tessera-ai/tessera/internal/domain"
)

// CronTrigger starts a full reindex run for every enabled source on a
// cron schedule. Sources with a run already in flight are skipped; they
// catch up on the next tick.
type CronTrigger struct {
	cron      *cron.Cron
	scheduler *Scheduler
	sources   SourceRepository
	spec      string
}

// NewCronTrigger creates a new CronTrigger instance
func NewCronTrigger(scheduler *Scheduler, sources SourceRepository, spec string) (*CronTrigger, error) {
	t := &CronTrigger{
		cron:      cron.New(),
		scheduler: scheduler,
		sources:   sources,
		spec:      spec,
	}
	if _, err := t.cron.AddFunc(spec, t.runAll); err != nil {
		return nil, fmt.Errorf("invalid reindex schedule %q: %w", spec, err)
	}
	return t, nil
}

// Start begins firing on the schedule
func (t *CronTrigger) Start() {
	t.cron.Start()
	log.Printf("Scheduled full reindex runs: %s", t.spec)
}

// Stop halts the schedule and waits for an in-progress tick to finish.
// Runs the tick already triggered keep going; Scheduler.Shutdown owns
// those.
func (t *CronTrigger) Stop() {
	<-t.cron.Stop().Done()
}

func (t *CronTrigger) runAll() {
	ctx := context.Background()
	sources, err := t.sources.ListEnabled(ctx)
	if err != nil {
		log.Printf("Scheduled reindex: listing sources failed: %v", err)
		return
	}

	for _, src := range sources {
		runID, err := t.scheduler.Trigger(ctx, TriggerInput{
			OrgID:    src.OrgID,
			SourceID: src.ID,
			Scope:    domain.RunScopeFull,
		})
		switch {
		case errors.Is(err, domain.ErrRunInFlight):
			log.Printf("Scheduled reindex: source %s has a run in flight, skipping", src.ID)
		case err != nil:
			log.Printf("Scheduled reindex: source %s failed to start: %v", src.ID, err)
		default:
			log.Printf("Scheduled reindex: source %s run %s started", src.ID, runID)
		}
	}
}
