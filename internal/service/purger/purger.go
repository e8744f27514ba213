package purger

import (
	"context"
	"time"

	"github.com/nkiryanov/authkeeper/internal/logger"
)

const defaultInterval = 10 * time.Minute

// Anything that can drop records expired before now
type Purgeable interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type Target struct {
	Name string
	Repo Purgeable
}

// Purger periodically removes expired revocations and reset tokens
// Removing is safe any time: records expired are never consulted again
type Purger struct {
	interval time.Duration
	now      func() time.Time
	targets  []Target
	logger   logger.Logger
}

func New(interval time.Duration, l logger.Logger, targets ...Target) *Purger {
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Purger{
		interval: interval,
		now:      time.Now,
		targets:  targets,
		logger:   l,
	}
}

// Start purging on every tick until ctx done
// Returned channel is closed when purger stopped
func (p *Purger) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting purger", "interval", p.interval, "targets", len(p.targets))

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Purger stopped by context")
				return

			case <-ticker.C:
				p.PurgeOnce(ctx)
			}
		}
	}()

	return idleStopped
}

// Run every target once. Failed target doesn't stop others
// Returns total records removed
func (p *Purger) PurgeOnce(ctx context.Context) int64 {
	now := p.now()
	var total int64

	for _, t := range p.targets {
		purged, err := t.Repo.PurgeExpired(ctx, now)
		if err != nil {
			p.logger.Error("Failed to purge expired records", "target", t.Name, "error", err)
			continue
		}

		if purged > 0 {
			p.logger.Info("Expired records purged", "target", t.Name, "count", purged)
		}
		total += purged
	}

	return total
}
