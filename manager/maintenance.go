package manager

import (
	"context"
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// maintenanceOpTimeout bounds one maintenance pass over one queue.
const maintenanceOpTimeout = 30 * time.Second

// maintenance runs the periodic background passes: delayed-job
// promotion, retention cleanup, and stale-lease recovery. One instance
// per Manager, started with the first worker pool.
type maintenance struct {
	cron *cronlib.Cron
}

func (mt *maintenance) stop() {
	<-mt.cron.Stop().Done()
}

// startMaintenance starts the cron loop once. Entries use @every
// specs derived from the process config.
func (m *Manager) startMaintenance() {
	m.maintOnce.Do(func() {
		c := cronlib.New()

		entries := []struct {
			name     string
			interval time.Duration
			fn       func()
		}{
			{"promote", m.cfg.PromoteInterval, m.promotePass},
			{"cleanup", m.cfg.CleanupInterval, m.cleanupPass},
			{"stale-sweep", m.cfg.StallTimeout, m.stalePass},
		}
		for _, e := range entries {
			if e.interval <= 0 {
				continue
			}
			if _, err := c.AddFunc("@every "+e.interval.String(), e.fn); err != nil {
				m.logger.Error("maintenance entry rejected",
					slog.String("entry", e.name),
					slog.String("error", err.Error()),
				)
			}
		}

		c.Start()
		m.maint = &maintenance{cron: c}
		m.logger.Info("maintenance started",
			slog.Duration("promote_interval", m.cfg.PromoteInterval),
			slog.Duration("cleanup_interval", m.cfg.CleanupInterval),
			slog.Duration("stale_sweep_interval", m.cfg.StallTimeout),
		)
	})
}

// promotePass moves due delayed jobs to waiting on every queue.
func (m *Manager) promotePass() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceOpTimeout)
	defer cancel()

	for _, name := range m.registry.Names() {
		n, err := m.broker.PromoteDue(ctx, name, time.Now().UTC())
		if err != nil {
			m.logger.Error("promotion pass failed",
				slog.String("queue", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if n > 0 {
			m.logger.Debug("promoted delayed jobs",
				slog.String("queue", name),
				slog.Int("count", n),
			)
		}
	}
}

// cleanupPass removes terminal jobs past the configured grace.
func (m *Manager) cleanupPass() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceOpTimeout)
	defer cancel()

	for _, name := range m.registry.Names() {
		n, err := m.CleanQueue(ctx, name, m.cfg.CleanupGrace)
		if err != nil {
			m.logger.Error("cleanup pass failed",
				slog.String("queue", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if n > 0 {
			m.logger.Info("cleaned terminal jobs",
				slog.String("queue", name),
				slog.Int("count", n),
			)
		}
	}
}

// stalePass recovers jobs whose lease expired mid-run, on every queue.
// Any process in the cluster can recover another process's jobs.
func (m *Manager) stalePass() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceOpTimeout)
	defer cancel()

	for _, name := range m.registry.Names() {
		if _, err := m.recoverStale(ctx, name); err != nil {
			m.logger.Error("stale sweep failed",
				slog.String("queue", name),
				slog.String("error", err.Error()),
			)
		}
	}
}
