/*
scheduler.go - Periodic provider sync scheduler

PURPOSE:
  Runs the full provider sync on a cron schedule so staged data stays
  fresh without manual POST /api/sync calls.

DESIGN:
  - cron/v3 drives the schedule; one job, never overlapping (a run that
    is still going when the next tick fires is skipped)
  - Each triggered sync is recorded as a SyncRun like a manual one,
    with triggered_by = "scheduler"

CONFIGURATION:
  - Schedule: cron expression (default: every 6 hours)
  - Empty schedule disables the scheduler entirely

USAGE:
  sched := NewSyncScheduler(syncService, cronExpr) // e.g. every 6 hours
  sched.Start()
  // ... later
  sched.Stop()

SEE ALSO:
  - syncer: FullSync, the job body
  - handlers.go: manual sync endpoints
*/
package api

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/plancharge/engine/syncer"
)

// DefaultSyncSchedule runs four times a day.
const DefaultSyncSchedule = "0 */6 * * *"

// SyncScheduler triggers full syncs on a cron schedule.
type SyncScheduler struct {
	Syncer   *syncer.Service
	Schedule string

	cron    *cron.Cron
	running atomic.Bool
}

// NewSyncScheduler builds a scheduler. An empty schedule disables it.
func NewSyncScheduler(sync *syncer.Service, schedule string) *SyncScheduler {
	return &SyncScheduler{Syncer: sync, Schedule: schedule}
}

// Start registers the cron job and begins ticking.
func (s *SyncScheduler) Start() error {
	if s.Schedule == "" || s.Syncer == nil {
		log.Println("[Scheduler] Disabled, not starting")
		return nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.Schedule, s.tick); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("[Scheduler] Started with schedule %q", s.Schedule)
	return nil
}

// Stop halts the ticker and waits for a running job to finish.
func (s *SyncScheduler) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("[Scheduler] Stopped")
}

func (s *SyncScheduler) tick() {
	if !s.running.CompareAndSwap(false, true) {
		log.Println("[Scheduler] Previous sync still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if _, err := s.Syncer.FullSync(ctx, "scheduler"); err != nil {
		log.Printf("[Scheduler] Scheduled sync failed: %v", err)
	}
}
