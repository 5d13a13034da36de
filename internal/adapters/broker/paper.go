package broker

// paper.go — instant-fill simulated broker for backtest and paper modes.
// Every order fills fully at the requested price; the engine's ledger is
// the only account.

import (
	"context"

	"github.com/google/uuid"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// Paper simulates order execution in memory.
type Paper struct {
	symbol        string
	futuresSymbol string
}

// NewPaper builds a simulated broker for one spot/futures symbol pair.
func NewPaper(symbol, futuresSymbol string) *Paper {
	return &Paper{symbol: symbol, futuresSymbol: futuresSymbol}
}

// PlaceSpotBuy fills the limit buy immediately at the grid price.
func (p *Paper) PlaceSpotBuy(_ context.Context, timestampMs int64, price, qty float64, gridID string) (domain.OrderRecord, error) {
	return domain.OrderRecord{
		OrderID:     uuid.NewString(),
		Symbol:      p.symbol,
		Side:        domain.SideBuy,
		Type:        "LIMIT",
		Status:      "FILLED",
		Price:       price,
		Qty:         qty,
		ExecutedQty: qty,
		QuoteQty:    qty * price,
		GridID:      gridID,
		Timestamp:   timestampMs,
	}, nil
}

// PlaceSpotSell fills the sell immediately at the requested price.
func (p *Paper) PlaceSpotSell(_ context.Context, timestampMs int64, position domain.Position, sellPrice float64) (domain.OrderRecord, error) {
	return domain.OrderRecord{
		OrderID:     uuid.NewString(),
		Symbol:      position.Symbol,
		Side:        domain.SideSell,
		Type:        "LIMIT",
		Status:      "FILLED",
		Price:       sellPrice,
		Qty:         position.Qty,
		ExecutedQty: position.Qty,
		QuoteQty:    position.Qty * sellPrice,
		GridID:      position.GroupID,
		Timestamp:   timestampMs,
	}, nil
}

// OpenHedgeShort fills the short at the requested price, no slippage.
func (p *Paper) OpenHedgeShort(_ context.Context, _ int64, _, price float64, _ string) (float64, error) {
	return price, nil
}

// CloseHedge always succeeds in simulation.
func (p *Paper) CloseHedge(_ context.Context, _ int64, _, _ float64, _ string) error {
	return nil
}

// RefreshBalances is a no-op: the engine ledger is authoritative.
func (p *Paper) RefreshBalances(_ context.Context, _ *domain.CapitalLedger) error {
	return nil
}
