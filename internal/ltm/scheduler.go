package ltm

import (
	"context"
	"time"

	"mnemo/internal/config"
	"mnemo/internal/keys"
	"mnemo/internal/models"
	"mnemo/pkg/logger"
)

// Scheduler drives periodic maintenance and the daily API key usage reset
// from background goroutines. Stop it by cancelling the context passed to
// Start.
type Scheduler struct {
	manager  *Manager
	keys     *keys.Manager
	log      *logger.Logger
	cfg      config.MaintenanceConfig
	interval time.Duration
}

// NewScheduler builds a scheduler running maintenance every
// cfg.IntervalHours. The key manager may be nil when the embedding provider
// does not rotate keys.
func NewScheduler(m *Manager, km *keys.Manager, log *logger.Logger, cfg config.MaintenanceConfig) *Scheduler {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{manager: m, keys: km, log: log, cfg: cfg, interval: interval}
}

// Start launches the background loops and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	go s.maintenanceLoop(ctx)
	if s.keys != nil {
		go s.keyResetLoop(ctx)
	}
}

func (s *Scheduler) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithPayload(map[string]interface{}{"interval": s.interval.String()}).Info("maintenance scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("maintenance scheduler stopped")
			return
		case <-ticker.C:
			report, err := s.manager.PerformMaintenance(ctx, s.cfg)
			if err != nil {
				s.log.WithError(models.ErrorInfo{Message: err.Error()}).Error("scheduled maintenance failed")
				continue
			}
			s.log.WithPayload(map[string]interface{}{
				"total_deleted":      report.TotalDeleted,
				"updated_importance": report.UpdatedImportance,
			}).Info("scheduled maintenance finished")
		}
	}
}

func (s *Scheduler) keyResetLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.keys.Reset()
			s.log.Info("daily API key usage counters reset")
		}
	}
}
