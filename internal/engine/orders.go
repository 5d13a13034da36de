package engine

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// processBuyGrid walks the ladder bottom-up and fills every rung the bar
// traded through. Sizing splits the tradable capital (minus the safety
// buffer) across the remaining unfilled rungs so one deep bar cannot
// exhaust the account on the first level.
func (e *Engine) processBuyGrid(ctx context.Context, ts int64, price float64) {
	if e.grid == nil || e.phase != PhaseActive {
		return
	}

	bought := false
	for i := range e.grid.Levels {
		level := &e.grid.Levels[i]
		if level.Filled || price > level.Price {
			continue
		}

		unfilled := e.grid.UnfilledCount()
		if unfilled == 0 {
			return
		}
		tradable := e.ledger.AvailableCapital * (1 - capitalSafetyBuffer)
		sizeUSDT := e.cfg.OrderSizeUSDT
		if perLevel := tradable / float64(unfilled); perLevel < sizeUSDT {
			sizeUSDT = perLevel
		}
		if sizeUSDT < minOrderNotional {
			slog.Debug("orders: buy skipped, below dust threshold",
				"level", level.Price, "size_usdt", sizeUSDT)
			continue
		}

		qty := sizeUSDT / level.Price
		rec, err := e.broker.PlaceSpotBuy(ctx, ts, level.Price, qty, e.grid.ID)
		if err != nil {
			slog.Warn("orders: spot buy failed",
				"symbol", e.cfg.Symbol, "level", level.Price, "qty", qty, "err", err)
			continue
		}

		cost := qty * level.Price * (1 + e.cfg.SpotFeeRate)
		e.ledger.DebitSpot(cost)
		level.Filled = true
		if err := e.store.MarkLevelFilled(ctx, e.cfg.Symbol, e.grid.ID, level.Price, true); err != nil {
			slog.Warn("orders: mark level filled failed", "level", level.Price, "err", err)
		}
		if err := e.store.SaveSpotOrder(ctx, rec); err != nil {
			slog.Warn("orders: save buy order failed", "order", rec.OrderID, "err", err)
		}

		bought = true
		e.positions = append(e.positions, domain.Position{
			ID:          uuid.NewString(),
			Symbol:      e.cfg.Symbol,
			EntryPrice:  level.Price,
			Qty:         qty,
			GridPrice:   level.Price,
			TargetPrice: level.Price + e.sellSpacing(),
			OpenedAt:    ts,
			GroupID:     e.grid.ID,
		})

		slog.Info("orders: grid buy filled",
			"symbol", e.cfg.Symbol,
			"level", level.Price,
			"qty", qty,
			"cost", cost,
			"target", level.Price+e.sellSpacing(),
			"available", e.ledger.AvailableCapital)
	}

	if bought {
		e.emitBalanceSnapshots(ctx, ts, price, "buy pass")
	}
}

// processSellGrid closes every lot whose target the bar reached. Fills
// happen at the bar close: a bar gapping past the target realizes the
// extra move, not just the target.
func (e *Engine) processSellGrid(ctx context.Context, ts int64, price float64) {
	sold := false
	for _, pos := range snapshotPositions(e.positions) {
		if price < pos.TargetPrice {
			continue
		}
		if e.sellPosition(ctx, ts, pos, price, "target reached") {
			sold = true
		}
	}
	if sold {
		e.emitBalanceSnapshots(ctx, ts, price, "sell pass")
	}
}

// sellPosition liquidates one lot at the given price. On broker failure
// nothing is mutated and the lot is retried on the next bar. Returns
// whether the sell went through.
func (e *Engine) sellPosition(ctx context.Context, ts int64, pos domain.Position, sellPrice float64, reason string) bool {
	rec, err := e.broker.PlaceSpotSell(ctx, ts, pos, sellPrice)
	if err != nil {
		slog.Warn("orders: spot sell failed",
			"symbol", pos.Symbol, "entry", pos.EntryPrice, "qty", pos.Qty, "err", err)
		return false
	}

	proceeds := pos.Qty * sellPrice * (1 - e.cfg.SpotFeeRate)
	pnl := proceeds - pos.Qty*pos.EntryPrice
	if e.cfg.Mode.Paper() {
		e.ledger.CreditSpot(proceeds)
	}
	e.ledger.RealizedGridProfit += pnl

	if e.grid != nil && pos.GroupID == e.grid.ID && e.grid.SetFilled(pos.GridPrice, false) {
		if err := e.store.MarkLevelFilled(ctx, e.cfg.Symbol, e.grid.ID, pos.GridPrice, false); err != nil {
			slog.Warn("orders: unmark level failed", "level", pos.GridPrice, "err", err)
		}
	}
	if err := e.store.SaveSpotOrder(ctx, rec); err != nil {
		slog.Warn("orders: save sell order failed", "order", rec.OrderID, "err", err)
	}

	e.removePosition(pos)

	slog.Info("orders: grid sell executed",
		"symbol", pos.Symbol,
		"entry", pos.EntryPrice,
		"exit", sellPrice,
		"qty", pos.Qty,
		"pnl", pnl,
		"reason", reason)
	return true
}

// sellSpacing is the distance from a filled rung to its sell target.
func (e *Engine) sellSpacing() float64 {
	if e.grid != nil {
		if s := e.grid.ObservedSpacing(); s > 0 {
			return s
		}
	}
	if e.lastClose > 0 {
		return e.lastClose * 0.02
	}
	return 0
}

// removePosition deletes the exact lot that was sold. Engine-created
// lots carry a unique ID, so whole-value equality never picks a sibling.
func (e *Engine) removePosition(target domain.Position) {
	for i, pos := range e.positions {
		if pos == target {
			e.positions = append(e.positions[:i], e.positions[i+1:]...)
			return
		}
	}
}
