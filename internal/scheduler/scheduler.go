package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs periodic maintenance jobs (rate-window compaction).
type Scheduler struct {
	cron        *cron.Cron
	ctx         context.Context
	cancel      context.CancelFunc
	maintenance func(ctx context.Context) error
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetMaintenanceFunc sets the job executed on every tick.
func (s *Scheduler) SetMaintenanceFunc(f func(ctx context.Context) error) {
	s.maintenance = f
}

// Start registers the hourly maintenance job and starts the cron loop.
func (s *Scheduler) Start() error {
	if s.maintenance == nil {
		log.Println("maintenance function not set, scheduler will not run")
		return nil
	}

	_, err := s.cron.AddFunc("@hourly", func() {
		if err := s.maintenance(s.ctx); err != nil {
			log.Printf("maintenance run failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	log.Println("scheduler started - maintenance runs hourly")
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	log.Println("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
