package engine

import (
	"context"
	"log/slog"
	"sort"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// scaleInDangerRatio is the hedge ratio opened inside the danger zone,
// before a full breakdown confirms.
const scaleInDangerRatio = 0.3

// ensureHedgeRatio brings the short up to ratio * netQty. The hedge only
// ever grows: a target below the current size is a no-op, never a
// partial close. Entry price is volume-weighted across scale-ins.
func (e *Engine) ensureHedgeRatio(ctx context.Context, ts int64, ratio, price, netQty float64, reason string) {
	target := netQty * ratio
	current := 0.0
	if e.hedge != nil {
		current = e.hedge.Qty
	}
	addQty := target - current
	if addQty <= 0 {
		return
	}

	notional := addQty * price
	if notional < e.cfg.MinHedgeNotional {
		slog.Debug("hedge: scale-in below min notional",
			"add_qty", addQty, "notional", notional)
		return
	}
	margin := notional / float64(e.cfg.HedgeLeverage)
	if margin > e.ledger.FuturesAvailableMargin {
		slog.Warn("hedge: insufficient futures margin",
			"needed", margin, "available", e.ledger.FuturesAvailableMargin, "reason", reason)
		return
	}

	fillPrice, err := e.broker.OpenHedgeShort(ctx, ts, addQty, price, reason)
	if err != nil {
		slog.Warn("hedge: open short failed", "qty", addQty, "err", err)
		return
	}

	orderRef, err := e.store.SaveHedgeOpen(ctx, e.cfg.FuturesSymbol, addQty, fillPrice, e.cfg.HedgeLeverage)
	if err != nil {
		slog.Warn("hedge: persist open failed", "err", err)
	}

	e.ledger.DebitMargin(margin)
	if e.hedge == nil {
		e.hedge = &domain.HedgeState{
			Symbol:       e.cfg.FuturesSymbol,
			Qty:          addQty,
			EntryPrice:   fillPrice,
			LockedMargin: margin,
			OpenedAt:     ts,
			OrderRef:     orderRef,
		}
	} else {
		e.hedge.Extend(addQty, fillPrice, margin)
		if orderRef != "" {
			e.hedge.OrderRef = orderRef
		}
	}

	slog.Info("hedge: short opened",
		"symbol", e.cfg.FuturesSymbol,
		"add_qty", addQty,
		"entry", e.hedge.EntryPrice,
		"total_qty", e.hedge.Qty,
		"locked_margin", e.hedge.LockedMargin,
		"reason", reason)
}

// maybeScaleInHedge opens or grows the short when price threatens the
// bottom of the ladder. A confirmed breakdown below the lowest rung
// minus openKATR*ATR hedges at the configured size ratio; merely
// entering the band between the two lowest rungs with a soft downtrend
// hedges a smaller share.
func (e *Engine) maybeScaleInHedge(ctx context.Context, ts int64, price float64, snap domain.IndicatorSnapshot) {
	if e.grid == nil || e.phase != PhaseActive {
		return
	}
	netQty := domain.NetQty(e.positions)
	if netQty <= 0 {
		return
	}

	strongDown := domain.ClassifyTrend(price, snap.EMA14, snap.EMA50, snap.EMA200) == domain.TrendDown
	// The danger-zone trigger only needs a bearish EMA slope: price can
	// sit just above the fast EMA and still be grinding into the floor.
	softDown := snap.EMA14 < snap.EMA50

	breakdown := e.grid.Lowest() - e.cfg.HedgeOpenKATR*snap.ATR14
	switch {
	case price < breakdown && strongDown:
		e.ensureHedgeRatio(ctx, ts, e.cfg.HedgeSizeRatio, price, netQty, "breakdown below grid")
	case price >= e.grid.Lowest() && price <= e.grid.SecondLowest() && softDown:
		e.ensureHedgeRatio(ctx, ts, scaleInDangerRatio, price, netQty, "danger zone")
	}
}

// manageHedgeExit evaluates the exit rules in strict priority order.
// Only one action fires per bar. Thresholds are sized against the spot
// book: the hedge exists to cover those unrealized losses, so its
// exits are framed in the same currency.
func (e *Engine) manageHedgeExit(ctx context.Context, ts int64, price float64, snap domain.IndicatorSnapshot) {
	// A parked downtrend recenter clears once a later bar reports the
	// hedge no longer losing (or gone because the open never went
	// through). The entry bar itself never clears: the hedge just
	// opened at its price, so pnl is trivially zero there.
	if e.phase == PhaseAwaitingHedgeClearance && ts > e.parkedAt &&
		(e.hedge == nil || e.hedge.PnL(price) >= 0) {
		slog.Info("hedge: clearance reached, running deferred recenter",
			"symbol", e.cfg.Symbol)
		e.executeFullRecenter(ctx, ts, price, snap, "deferred downtrend recenter")
		return
	}

	if e.hedge == nil {
		return
	}

	pnl := e.hedge.PnL(price)
	spotUnrealized := domain.TotalUnrealizedPnL(e.positions, price)
	spotScale := spotUnrealized
	if spotScale < 0 {
		spotScale = -spotScale
	}
	lossToCover := 0.0
	if spotUnrealized < 0 {
		lossToCover = -spotUnrealized
	}

	if pnl <= -spotScale*e.cfg.HedgeMaxLossRatio {
		e.closeHedge(ctx, ts, price, "max loss stop")
		return
	}

	if pnl >= lossToCover*e.cfg.HedgeTPRatio {
		e.closeHedge(ctx, ts, price, "take profit")
		if pnl > 0 {
			e.rebalanceSpotAfterHedge(ctx, ts, pnl, price)
		}
		return
	}

	reversal := price > snap.EMA14 && snap.EMA14 > snap.EMA50
	if reversal && pnl <= -spotScale*e.cfg.HedgeSLRatio {
		e.closeHedge(ctx, ts, price, "reversal stop")
		return
	}

	if reversal && pnl < 0 && ts-e.hedge.OpenedAt >= e.cfg.HedgeMinHoldMs {
		e.closeHedge(ctx, ts, price, "reversal cut")
	}
}

// closeHedge flattens the short and settles the ledger: the locked
// margin plus pnl flows back to the futures account (never below zero),
// and in the simulated modes a profit is also made spendable on spot so
// the rebalance pass can use it.
func (e *Engine) closeHedge(ctx context.Context, ts int64, price float64, reason string) {
	if e.hedge == nil {
		return
	}
	pnl := e.hedge.PnL(price)

	if err := e.broker.CloseHedge(ctx, ts, e.hedge.Qty, price, reason); err != nil {
		slog.Warn("hedge: close failed, retrying next bar",
			"qty", e.hedge.Qty, "err", err)
		return
	}

	release := e.hedge.LockedMargin + pnl
	if release < 0 {
		release = 0
	}
	e.ledger.CreditMargin(release)
	if e.cfg.Mode.Paper() && pnl > 0 {
		e.ledger.CreditSpot(pnl)
	}
	e.ledger.RealizedHedgeProfit += pnl

	if err := e.store.CloseHedgeOrder(ctx, e.hedge.OrderRef, price, pnl); err != nil {
		slog.Warn("hedge: persist close failed", "ref", e.hedge.OrderRef, "err", err)
	}

	slog.Info("hedge: closed",
		"symbol", e.hedge.Symbol,
		"qty", e.hedge.Qty,
		"entry", e.hedge.EntryPrice,
		"exit", price,
		"pnl", pnl,
		"released_margin", release,
		"reason", reason)

	e.hedge = nil
	// Any close clears a parked recenter; a max-loss exit must not leave
	// the engine waiting on a hedge that no longer exists.
	if e.phase == PhaseAwaitingHedgeClearance {
		e.phase = PhaseActive
	}
	e.emitBalanceSnapshots(ctx, ts, price, "hedge close: "+reason)
}

// rebalanceSpotAfterHedge spends hedge profit on cleaning up the worst
// spot lots: positions are visited highest entry first and a losing lot
// is sold only while its loss still fits inside the remaining buffer.
func (e *Engine) rebalanceSpotAfterHedge(ctx context.Context, ts int64, profit, price float64) {
	if profit <= 0 || len(e.positions) == 0 {
		return
	}

	ordered := snapshotPositions(e.positions)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].EntryPrice > ordered[j].EntryPrice })

	remaining := profit
	for _, pos := range ordered {
		loss := -pos.UnrealizedPnL(price)
		if loss <= 0 || loss > remaining {
			continue
		}
		if e.sellPosition(ctx, ts, pos, price, "hedge profit rebalance") {
			remaining -= loss
		}
	}

	if remaining < profit {
		slog.Info("hedge: spot rebalanced with profit",
			"symbol", e.cfg.Symbol,
			"profit", profit,
			"spent", profit-remaining)
	}
}
