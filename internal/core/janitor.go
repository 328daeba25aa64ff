package core

// janitor.go closes document sessions nobody is using.
//
// Sessions hold their whole row store in memory, so an abandoned tab or a
// crashed client would otherwise pin it until shutdown. The janitor runs
// for the lifetime of the server and stops with its context.

import (
	"context"
	"time"
)

// JanitorConfig holds the idle-session sweep settings.
type JanitorConfig struct {
	Interval    time.Duration // How often to sweep (default: 1m)
	IdleTimeout time.Duration // Unused sessions older than this are closed (default: 30m)
}

// StartJanitor sweeps idle sessions every Interval until ctx is cancelled.
func (s *Service) StartJanitor(ctx context.Context, cfg JanitorConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	s.logger.Info("session janitor started",
		"interval", cfg.Interval,
		"idle_timeout", cfg.IdleTimeout,
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session janitor stopped")
			return
		case <-ticker.C:
			s.runSweep(cfg)
		}
	}
}

func (s *Service) runSweep(cfg JanitorConfig) {
	start := time.Now()
	n := s.Sweep(cfg.IdleTimeout)
	if n > 0 {
		s.logger.Info("closed idle sessions",
			"sessions_closed", n,
			"sessions_open", s.Len(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	s.logger.Debug("janitor sweep found nothing", "sessions_open", s.Len())
}
