package realtime

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper periodically evicts sessions whose heartbeat has gone stale.
type Reaper struct {
	hub             *Hub
	interval        time.Duration
	staleAfter      time.Duration
	reapControllers bool
	logger          *zap.Logger
}

// NewReaper creates a liveness reaper over the given hub.
func NewReaper(hub *Hub, interval, staleAfter time.Duration, reapControllers bool, logger *zap.Logger) *Reaper {
	return &Reaper{
		hub:             hub,
		interval:        interval,
		staleAfter:      staleAfter,
		reapControllers: reapControllers,
		logger:          logger,
	}
}

// Run sweeps on a fixed period until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			r.hub.Do(func() { r.sweep(now) })
		case <-ctx.Done():
			return
		}
	}
}

// sweep runs one eviction pass on the hub loop.
func (r *Reaper) sweep(now time.Time) {
	evicted := r.hub.EvictStale(now, r.staleAfter, r.reapControllers)
	if len(evicted) == 0 {
		return
	}
	r.logger.Info("stale sessions reaped", zap.Int("count", len(evicted)))
	r.hub.BroadcastCounts()
}
