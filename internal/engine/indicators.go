package engine

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// updateIndicators folds the bar into the tracker and persists the
// resulting snapshot. A failed write is logged and ignored: the
// in-memory snapshot stays valid for this tick and there is no retry.
func (e *Engine) updateIndicators(ctx context.Context, bar domain.Bar) domain.IndicatorSnapshot {
	snap := e.tracker.Update(bar)

	if err := e.store.SaveIndicator(ctx, snap); err != nil {
		slog.Warn("engine: persist indicator snapshot failed",
			"symbol", e.cfg.Symbol, "ts", snap.Timestamp, "err", err)
	}

	return snap
}
