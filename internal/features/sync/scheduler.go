package sync

import (
	"context"
	"fmt"

	"go-kobo-connect/internal/config"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler periodically sweeps all auto-sync forms on the configured schedule.
type Scheduler struct {
	service  SyncService
	schedule string
	logger   *zap.Logger

	cron *cron.Cron
}

func NewScheduler(service SyncService, cfg *config.Config, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		service:  service,
		schedule: cfg.SyncSchedule,
		logger:   logger,
	}
}

func (s *Scheduler) Start() error {
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", s.schedule, err)
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.service.SyncAllEligible(context.Background())
	}); err != nil {
		return fmt.Errorf("registering sync sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Sync scheduler started", zap.String("schedule", s.schedule))
	return nil
}

func (s *Scheduler) Stop() error {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	s.logger.Info("Sync scheduler stopped")
	return nil
}
