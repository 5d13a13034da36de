package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCapitalLedgerSplit(t *testing.T) {
	l := NewCapitalLedger(10000, 0.3)

	assert.Equal(t, 10000.0, l.TotalCapital)
	assert.Equal(t, 3000.0, l.ReserveCapital)
	assert.Equal(t, 7000.0, l.AvailableCapital)
	assert.Equal(t, 3000.0, l.FuturesAvailableMargin)
}

func TestLedgerDebitsClampAtZero(t *testing.T) {
	l := NewCapitalLedger(1000, 0.3)

	l.DebitSpot(5000)
	assert.Zero(t, l.AvailableCapital)

	l.DebitMargin(5000)
	assert.Zero(t, l.FuturesAvailableMargin)

	l.CreditMargin(-100)
	assert.Zero(t, l.FuturesAvailableMargin)
}

func TestLedgerEquity(t *testing.T) {
	l := NewCapitalLedger(10000, 0.3)
	positions := []Position{
		{EntryPrice: 98, Qty: 1},
		{EntryPrice: 96, Qty: 2},
	}

	// Equity marks inventory to the given price, reserve included.
	assert.InDelta(t, 7000+3000+3*100, l.Equity(positions, 100), 1e-9)
	assert.InDelta(t, 10000, l.Equity(nil, 100), 1e-9)
}

func TestHedgeStatePnLAndExtend(t *testing.T) {
	h := &HedgeState{Qty: 2, EntryPrice: 100, LockedMargin: 100}

	// Short convention: profit when price drops.
	assert.InDelta(t, 20.0, h.PnL(90), 1e-9)
	assert.InDelta(t, -20.0, h.PnL(110), 1e-9)

	// Scale-in volume-weights the entry.
	h.Extend(2, 90, 90)
	assert.InDelta(t, 95.0, h.EntryPrice, 1e-9)
	assert.Equal(t, 4.0, h.Qty)
	assert.Equal(t, 190.0, h.LockedMargin)
}

func TestPositionAggregates(t *testing.T) {
	positions := []Position{
		{EntryPrice: 98, Qty: 1},
		{EntryPrice: 102, Qty: 1},
	}

	assert.Equal(t, 2.0, NetQty(positions))
	// (100-98) + (100-102) = 0
	assert.InDelta(t, 0.0, TotalUnrealizedPnL(positions, 100), 1e-9)
	assert.InDelta(t, 2.0, positions[0].UnrealizedPnL(100), 1e-9)
}
