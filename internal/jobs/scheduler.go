package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"smartcrop/api/internal/queue"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, task queue.Task) (string, error)
}

type Scheduler struct {
	cron        *cron.Cron
	queue       Enqueuer
	cleanupSpec string
	log         zerolog.Logger
}

// NewScheduler schedules retention cleanup on cleanupSpec, a six-field cron
// expression with seconds.
func NewScheduler(queue Enqueuer, cleanupSpec string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:        cron.New(cron.WithSeconds()),
		queue:       queue,
		cleanupSpec: cleanupSpec,
		log:         log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil || s.cleanupSpec == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.cleanupSpec, s.enqueueCleanup); err != nil {
		return fmt.Errorf("schedule cleanup %q: %w", s.cleanupSpec, err)
	}

	s.cron.Start()
	s.log.Info().Str("spec", s.cleanupSpec).Msg("cleanup scheduled")
	return nil
}

// Stop halts the scheduler and waits up to five seconds for a running job.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueueCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.queue.Enqueue(ctx, queue.Task{Type: queue.TaskCleanup}); err != nil {
		s.log.Error().Err(err).Msg("enqueue cleanup failed")
	}
}
