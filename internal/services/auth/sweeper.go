package auth

import (
	"context"
	"log/slog"
	"time"
)

// SweepExpired removes sessions past their deadline from the session store
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.clock.Now()
	removed, err := s.sessions.DeleteExpiredSessions(ctx, now)
	if err != nil {
		return 0, unavailable(err)
	}
	// limiter entries cannot outlive the longest pending flow
	s.limiter.prune(now.Add(-s.cfg.FlowTimeout))
	s.metrics.SessionsSwept(removed)
	return removed, nil
}

// RunSweeper sweeps every interval until ctx is cancelled
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(interval):
			removed, err := s.SweepExpired(ctx)
			if err != nil {
				s.logger.WarnContext(ctx, "session sweep failed", slog.String("error", err.Error()))
				continue
			}
			if removed > 0 {
				s.logger.InfoContext(ctx, "swept expired sessions", slog.Int("removed", removed))
			}
		}
	}
}
