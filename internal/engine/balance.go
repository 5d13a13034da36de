package engine

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// emitBalanceSnapshots records SPOT, FUTURES and COMBINED balance rows
// after a state-changing event. Live mode skips this: balances come from
// the exchange, not the simulated ledger.
func (e *Engine) emitBalanceSnapshots(ctx context.Context, ts int64, price float64, notes string) {
	if !e.cfg.Mode.Paper() {
		return
	}

	spotValue := 0.0
	for _, p := range e.positions {
		spotValue += p.Qty * price
	}
	spotEnd := e.ledger.AvailableCapital + spotValue

	hedgeUnrealized := 0.0
	lockedMargin := 0.0
	if e.hedge != nil {
		hedgeUnrealized = e.hedge.PnL(price)
		lockedMargin = e.hedge.LockedMargin
	}
	futuresEnd := e.ledger.FuturesAvailableMargin + lockedMargin + hedgeUnrealized

	rows := []domain.BalanceSnapshot{
		{
			AccountType:   domain.AccountSpot,
			Symbol:        e.cfg.Symbol,
			Timestamp:     ts,
			StartBalance:  e.ledger.TotalCapital - e.ledger.ReserveCapital,
			EndBalance:    spotEnd,
			RealizedPnL:   e.ledger.RealizedGridProfit,
			UnrealizedPnL: domain.TotalUnrealizedPnL(e.positions, price),
			Notes:         notes,
		},
		{
			AccountType:   domain.AccountFutures,
			Symbol:        e.cfg.FuturesSymbol,
			Timestamp:     ts,
			StartBalance:  e.ledger.ReserveCapital,
			EndBalance:    futuresEnd,
			RealizedPnL:   e.ledger.RealizedHedgeProfit,
			UnrealizedPnL: hedgeUnrealized,
			Notes:         notes,
		},
		{
			AccountType:   domain.AccountCombined,
			Symbol:        e.cfg.Symbol,
			Timestamp:     ts,
			StartBalance:  e.ledger.TotalCapital,
			EndBalance:    spotEnd + futuresEnd,
			RealizedPnL:   e.ledger.RealizedGridProfit + e.ledger.RealizedHedgeProfit,
			UnrealizedPnL: domain.TotalUnrealizedPnL(e.positions, price) + hedgeUnrealized,
			Notes:         notes,
		},
	}

	for _, row := range rows {
		if err := e.store.SaveBalanceSnapshot(ctx, row); err != nil {
			slog.Warn("engine: save balance snapshot failed",
				"account", string(row.AccountType), "err", err)
		}
	}
}
