package game

import (
	"context"
	"log/slog"
	"time"
)

// TurnScheduler drives the day/night turn clock off wall time. Ticks
// that cannot keep up coalesce: the ticker drops missed beats, and each
// pass runs against the current instant. The engine never replays
// turns it missed.
type TurnScheduler struct {
	g     *GameStateStore
	every time.Duration
	log   *slog.Logger
}

func NewTurnScheduler(g *GameStateStore, log *slog.Logger) *TurnScheduler {
	if log == nil {
		log = slog.Default()
	}
	return &TurnScheduler{g: g, every: g.opts.TurnDuration, log: log}
}

// Run blocks until ctx is cancelled.
func (s *TurnScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	s.log.Info("turn scheduler started", "turn_every", s.every.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("turn scheduler stopped")
			return
		case <-ticker.C:
			if err := s.g.Tick(ctx); err != nil {
				s.log.Error("turn tick failed", "err", err)
			}
		}
	}
}
