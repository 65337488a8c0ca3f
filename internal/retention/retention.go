// Package retention purges expired tombstones and redacted messages on a
// cron schedule.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/lalith-99/portalchat/internal/repository"
	"go.uber.org/zap"
)

type Config struct {
	Cron         string
	TombstoneTTL time.Duration
	RedactedTTL  time.Duration
}

type Result struct {
	Tombstones int64
	Redacted   int64
}

type Purger struct {
	cfg        Config
	messages   repository.MessageRepository
	tombstones repository.TombstoneRepository
	logger     *zap.Logger
	now        func() time.Time
}

func NewPurger(cfg Config, messages repository.MessageRepository, tombstones repository.TombstoneRepository, logger *zap.Logger) (*Purger, error) {
	if !gronx.IsValid(cfg.Cron) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}
	return &Purger{
		cfg:        cfg,
		messages:   messages,
		tombstones: tombstones,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// RunOnce deletes tombstones older than TombstoneTTL and messages redacted
// more than RedactedTTL ago. A zero TTL skips that half.
func (p *Purger) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	now := p.now().UTC()

	if p.cfg.TombstoneTTL > 0 {
		n, err := p.tombstones.PurgeBefore(ctx, now.Add(-p.cfg.TombstoneTTL))
		if err != nil {
			return res, fmt.Errorf("purge tombstones: %w", err)
		}
		res.Tombstones = n
	}
	if p.cfg.RedactedTTL > 0 {
		n, err := p.messages.PurgeRedacted(ctx, now.Add(-p.cfg.RedactedTTL))
		if err != nil {
			return res, fmt.Errorf("purge redacted messages: %w", err)
		}
		res.Redacted = n
	}

	p.logger.Info("retention run finished",
		zap.Int64("tombstones", res.Tombstones),
		zap.Int64("redacted", res.Redacted),
	)
	return res, nil
}

// Run sleeps until each cron tick and purges, until ctx is cancelled.
func (p *Purger) Run(ctx context.Context) {
	p.logger.Info("retention scheduler started", zap.String("cron", p.cfg.Cron))
	for {
		next, err := gronx.NextTickAfter(p.cfg.Cron, p.now().UTC(), false)
		if err != nil {
			p.logger.Error("compute next retention tick", zap.Error(err))
			next = p.now().Add(time.Minute)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("retention scheduler stopping")
			return
		case <-timer.C:
		}

		if _, err := p.RunOnce(ctx); err != nil {
			p.logger.Error("retention run failed", zap.Error(err))
		}
	}
}
