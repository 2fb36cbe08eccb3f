package core

// scheduler.go runs background maintenance for open sessions.
//
// The session janitor periodically flushes and closes sessions that have not
// been used for ServiceConfig.SessionTTL, so a long-running server does not
// keep every village it ever opened in memory. A session whose flush fails is
// kept and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultJanitorInterval is used when StartJanitor receives a zero interval.
const DefaultJanitorInterval = time.Minute

// StartJanitor closes idle sessions every interval until ctx is cancelled.
// It blocks; run it in its own goroutine.
func (s *Service) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	slog.Info("session janitor started",
		"interval", interval.String(),
		"session_ttl", s.cfg.SessionTTL.String(),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session janitor stopped")
			return
		case <-ticker.C:
			s.runJanitor(ctx)
		}
	}
}

// runJanitor performs one sweep.
func (s *Service) runJanitor(ctx context.Context) {
	start := time.Now()
	closed := s.closeIdle(ctx, s.cfg.SessionTTL)
	if closed > 0 {
		slog.Info("closed idle sessions",
			"sessions_closed", closed,
			"sessions_open", s.SessionCount(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
