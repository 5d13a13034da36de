package engine

import (
	"context"
	"log/slog"
	"sort"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// manageGrid runs the per-bar ladder maintenance: initialize on first
// use, otherwise soft-adjust spacing and evaluate the recenter triggers.
// While awaiting hedge clearance the ladder is frozen; the deferred
// rebuild is driven from the hedge exit evaluation instead.
func (e *Engine) manageGrid(ctx context.Context, ts int64, price float64, snap domain.IndicatorSnapshot) {
	if e.grid == nil {
		e.initGrid(ctx, price, snap.ATR14)
		return
	}

	if e.phase == PhaseAwaitingHedgeClearance {
		return
	}

	adjusted := domain.SoftSpacing(e.grid.Spacing, snap.ATR14, snap.ATR28,
		e.cfg.ATRMultiplier, e.cfg.VolUpRatio, e.cfg.VolDownRatio)
	if adjusted != e.grid.Spacing {
		slog.Info("grid: spacing adjusted",
			"symbol", e.cfg.Symbol,
			"from", e.grid.Spacing,
			"to", adjusted,
			"atr14", snap.ATR14,
			"atr28", snap.ATR28)
		e.grid.Spacing = adjusted
	}

	e.maybeRecenter(ctx, ts, price, snap)
}

// initGrid builds the first lower-only ladder around the current price.
func (e *Engine) initGrid(ctx context.Context, basePrice, atr14 float64) {
	spacing := atr14 * e.cfg.ATRMultiplier
	if atr14 <= 0 {
		spacing = basePrice * 0.03
	}

	group := domain.NewGridGroup(e.cfg.Symbol, basePrice, spacing, e.cfg.GridLevels)
	e.grid = &group
	e.phase = PhaseActive

	if err := e.store.SaveGridGroup(ctx, group); err != nil {
		slog.Warn("grid: persist new group failed", "group", group.ID, "err", err)
	}

	slog.Info("grid: initialized",
		"symbol", e.cfg.Symbol,
		"group", group.ID,
		"base", basePrice,
		"spacing", spacing,
		"levels", len(group.Levels))
}

// maybeRecenter checks the hard-rebuild triggers and dispatches to the
// trend-specific procedure.
func (e *Engine) maybeRecenter(ctx context.Context, ts int64, price float64, snap domain.IndicatorSnapshot) {
	g := e.grid
	spacing := g.ObservedSpacing()
	if spacing <= 0 && snap.ATR14 > 0 {
		spacing = snap.ATR14 * e.cfg.ATRMultiplier
	}
	if spacing <= 0 {
		return
	}

	var reason string
	switch {
	case price > g.Highest()+spacing*e.cfg.DriftK:
		reason = "price above window"
	case price < g.Lowest()-spacing*e.cfg.DriftK:
		reason = "price below window"
	case g.FillRatio() > fillRatioRecenter:
		reason = "fill ratio exceeded"
	default:
		return
	}

	trend := domain.ClassifyTrend(price, snap.EMA14, snap.EMA50, snap.EMA200)
	slog.Info("grid: recenter triggered",
		"symbol", e.cfg.Symbol,
		"group", g.ID,
		"reason", reason,
		"trend", string(trend),
		"price", price,
		"fill_ratio", g.FillRatio())

	switch trend {
	case domain.TrendDown:
		e.recenterDowntrend(ctx, ts, price)
	case domain.TrendUp:
		e.recenterUptrend(ctx, ts, price, snap)
	default:
		e.recenterSideways(ctx, ts, price, snap)
	}
}

// recenterDowntrend trims the worst half of the inventory, hedges the
// remainder in full, and defers the ladder rebuild until the hedge pnl
// turns non-negative.
func (e *Engine) recenterDowntrend(ctx context.Context, ts int64, price float64) {
	if err := e.store.CancelOpenOrders(ctx, e.cfg.Symbol, e.grid.ID); err != nil {
		slog.Warn("grid: cancel open buys failed", "group", e.grid.ID, "err", err)
	}

	total := domain.NetQty(e.positions)
	target := total * 0.5

	// Worst positions first: highest entry carries the deepest loss.
	ordered := make([]domain.Position, len(e.positions))
	copy(ordered, e.positions)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].EntryPrice > ordered[j].EntryPrice })

	sold := 0.0
	for _, pos := range ordered {
		if sold >= target {
			break
		}
		if e.sellPosition(ctx, ts, pos, price, "downtrend recenter trim") {
			sold += pos.Qty
		}
	}

	remaining := domain.NetQty(e.positions)
	if remaining > 0 {
		e.ensureHedgeRatio(ctx, ts, 1.0, price, remaining, "downtrend recenter")
	}

	e.phase = PhaseAwaitingHedgeClearance
	e.parkedAt = ts
	slog.Info("grid: downtrend recenter parked, awaiting hedge clearance",
		"symbol", e.cfg.Symbol,
		"sold_qty", sold,
		"remaining_qty", remaining)

	e.emitBalanceSnapshots(ctx, ts, price, "downtrend recenter")
}

// recenterUptrend locks in profit and rebuilds immediately: a
// non-losing hedge is closed first, winners are sold, losers ride into
// the new ladder.
func (e *Engine) recenterUptrend(ctx context.Context, ts int64, price float64, snap domain.IndicatorSnapshot) {
	if e.hedge != nil && e.hedge.PnL(price) >= 0 {
		e.closeHedge(ctx, ts, price, "uptrend recenter")
	}

	for _, pos := range snapshotPositions(e.positions) {
		if pos.UnrealizedPnL(price) > 0 {
			e.sellPosition(ctx, ts, pos, price, "uptrend recenter profit lock")
		}
	}

	e.rebuildLadder(ctx, ts, price, snap, "uptrend recenter")
}

// recenterSideways is the guarded fallback: it refuses to act while a
// losing hedge is open, otherwise flattens everything and rebuilds.
func (e *Engine) recenterSideways(ctx context.Context, ts int64, price float64, snap domain.IndicatorSnapshot) {
	if e.hedge != nil && e.hedge.PnL(price) < 0 {
		slog.Info("grid: sideways recenter skipped, hedge underwater",
			"symbol", e.cfg.Symbol, "hedge_pnl", e.hedge.PnL(price))
		return
	}
	e.executeFullRecenter(ctx, ts, price, snap, "sideways recenter")
}

// executeFullRecenter closes a non-losing hedge (rebalancing with its
// profit), force-liquidates the remaining inventory, retires the old
// group and builds a fresh ladder. Also the deferred downtrend rebuild.
func (e *Engine) executeFullRecenter(ctx context.Context, ts int64, price float64, snap domain.IndicatorSnapshot, reason string) {
	if e.hedge != nil && e.hedge.PnL(price) >= 0 {
		profit := e.hedge.PnL(price)
		e.closeHedge(ctx, ts, price, reason)
		if profit > 0 {
			e.rebalanceSpotAfterHedge(ctx, ts, profit, price)
		}
	}

	for _, pos := range snapshotPositions(e.positions) {
		e.sellPosition(ctx, ts, pos, price, reason+" liquidation")
	}

	e.rebuildLadder(ctx, ts, price, snap, reason)
}

// rebuildLadder deactivates the active group and creates its successor
// with spacing from the current volatility regime.
func (e *Engine) rebuildLadder(ctx context.Context, ts int64, price float64, snap domain.IndicatorSnapshot, reason string) {
	old := e.grid
	if old != nil {
		if err := e.store.CancelOpenOrders(ctx, e.cfg.Symbol, old.ID); err != nil {
			slog.Warn("grid: cancel open orders failed", "group", old.ID, "err", err)
		}
		if err := e.store.DeactivateGroup(ctx, e.cfg.Symbol, old.ID, reason); err != nil {
			slog.Warn("grid: deactivate group failed", "group", old.ID, "err", err)
		}
	}

	prevSpacing := 0.0
	if old != nil {
		prevSpacing = old.ObservedSpacing()
	}
	spacing := domain.RegimeSpacing(price, snap.ATR14, snap.ATR28,
		e.cfg.ATRMultiplier, e.cfg.VolUpRatio, e.cfg.VolDownRatio, prevSpacing)

	group := domain.NewGridGroup(e.cfg.Symbol, price, spacing, e.cfg.GridLevels)
	e.grid = &group
	e.phase = PhaseActive

	if err := e.store.SaveGridGroup(ctx, group); err != nil {
		slog.Warn("grid: persist rebuilt group failed", "group", group.ID, "err", err)
	}

	slog.Info("grid: recentered",
		"symbol", e.cfg.Symbol,
		"group", group.ID,
		"base", price,
		"spacing", spacing,
		"reason", reason)

	e.emitBalanceSnapshots(ctx, ts, price, reason)
}

// snapshotPositions copies the slice so sells can mutate e.positions
// while iterating.
func snapshotPositions(positions []domain.Position) []domain.Position {
	out := make([]domain.Position, len(positions))
	copy(out, positions)
	return out
}
