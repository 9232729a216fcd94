package authcore

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/avenide/authcore/audit"
)

// StartPurge launches the background loop that removes expired and
// long-revoked token rows. Safe to call at most once; Close stops it.
func (e *Engine) StartPurge(ctx context.Context) {
	ctx, e.purgeCancel = context.WithCancel(ctx)

	e.purgeWG.Add(1)
	go func() {
		defer e.purgeWG.Done()

		ticker := time.NewTicker(e.cfg.Cleanup.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.purgeOnce(ctx)
			}
		}
	}()
}

// purgeOnce runs one scheduled cycle. Errors are logged and the loop
// keeps its schedule.
func (e *Engine) purgeOnce(ctx context.Context) {
	if _, err := e.PurgeNow(ctx); err != nil {
		e.logger.Error("token purge failed", zap.Error(err))
	}
}

// PurgeNow runs one cleanup cycle immediately and reports rows deleted.
func (e *Engine) PurgeNow(ctx context.Context) (int64, error) {
	deleted, err := e.tokens.Purge(ctx, e.cfg.Cleanup.KeepRevokedFor)
	if err != nil {
		e.metrics.PurgeFailure(ctx)
		return 0, err
	}
	e.metrics.PurgedTokens(ctx, deleted)
	if deleted > 0 {
		e.logger.Info("token purge completed", zap.Int64("deleted", deleted))
		e.auditor.Emit(ctx, audit.Event{
			Action:   audit.ActionTokenPurge,
			Success:  true,
			Metadata: map[string]string{"deleted": strconv.FormatInt(deleted, 10)},
		})
	}
	return deleted, nil
}
