package worker

import (
	"context"
	"log/slog"
	"time"
)

type TombstoneStore interface {
	PurgeTombstones(ctx context.Context, before time.Time) (int64, error)
}

// TombstonePurger drops search tombstones once no late content.created for
// their post can plausibly still arrive.
type TombstonePurger struct {
	store     TombstoneStore
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewTombstonePurger(store TombstoneStore, retention time.Duration, logger *slog.Logger) *TombstonePurger {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TombstonePurger{store: store, retention: retention, now: time.Now, logger: logger}
}

func (p *TombstonePurger) Purge(ctx context.Context) error {
	n, err := p.store.PurgeTombstones(ctx, p.now().Add(-p.retention))
	if err != nil {
		return err
	}
	if n > 0 {
		p.logger.Info("purged search tombstones", "count", n)
	}
	return nil
}
