package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrueRange(t *testing.T) {
	tests := []struct {
		name      string
		high, low float64
		prevClose float64
		hasPrev   bool
		want      float64
	}{
		{"first bar uses high-low", 105, 95, 0, false, 10},
		{"plain range dominates", 105, 95, 100, true, 10},
		{"gap up dominates", 120, 115, 100, true, 20},
		{"gap down dominates", 85, 80, 100, true, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TrueRange(tt.high, tt.low, tt.prevClose, tt.hasPrev), 1e-9)
		})
	}
}

func TestNextEMA(t *testing.T) {
	// Seeds at close without history.
	assert.Equal(t, 50.0, NextEMA(50, 0, 14, false))

	// alpha = 2/15; ema = alpha*close + (1-alpha)*prev
	alpha := 2.0 / 15.0
	got := NextEMA(60, 50, 14, true)
	assert.InDelta(t, alpha*60+(1-alpha)*50, got, 1e-9)
}

func TestTrackerConstantSeries(t *testing.T) {
	tr := NewTracker("BTCUSDT")

	var snap IndicatorSnapshot
	for i := 0; i < 40; i++ {
		snap = tr.Update(Bar{
			Timestamp: int64(i) * 60000,
			Open:      100, High: 100, Low: 100, Close: 100, Volume: 1,
		})
	}

	// A flat series has zero range and EMAs pinned at the price.
	assert.Zero(t, snap.TR)
	assert.Zero(t, snap.ATR14)
	assert.Zero(t, snap.ATR28)
	assert.InDelta(t, 100.0, snap.EMA14, 1e-9)
	assert.InDelta(t, 100.0, snap.EMA200, 1e-9)
}

func TestTrackerConstantRange(t *testing.T) {
	tr := NewTracker("BTCUSDT")

	var snap IndicatorSnapshot
	for i := 0; i < 40; i++ {
		snap = tr.Update(Bar{
			Timestamp: int64(i) * 60000,
			Open:      100, High: 101, Low: 99, Close: 100, Volume: 1,
		})
	}

	// Every bar ranges 2 with no gaps, so both ATRs converge on 2.
	assert.InDelta(t, 2.0, snap.ATR14, 1e-9)
	assert.InDelta(t, 2.0, snap.ATR28, 1e-9)
}

func TestTrackerATRRampsUp(t *testing.T) {
	tr := NewTracker("BTCUSDT")

	// With fewer bars than the period the ATR averages what exists.
	snap := tr.Update(Bar{Timestamp: 0, Open: 100, High: 104, Low: 100, Close: 102})
	assert.InDelta(t, 4.0, snap.ATR14, 1e-9)

	snap = tr.Update(Bar{Timestamp: 60000, Open: 102, High: 102, Low: 100, Close: 101})
	assert.InDelta(t, 3.0, snap.ATR14, 1e-9) // mean of [4, 2]
}

func TestTrackerSeedRestoresState(t *testing.T) {
	// Run one tracker, persist-style copy its snapshots into a fresh one.
	first := NewTracker("BTCUSDT")
	var history []IndicatorSnapshot
	for i := 0; i < 35; i++ {
		history = append(history, first.Update(Bar{
			Timestamp: int64(i) * 60000,
			Open:      100, High: 101, Low: 99, Close: 100, Volume: 1,
		}))
	}

	second := NewTracker("BTCUSDT")
	second.Seed(history)

	next := Bar{Timestamp: 35 * 60000, Open: 100, High: 102, Low: 99, Close: 101, Volume: 1}
	want := first.Update(next)
	got := second.Update(next)

	require.Equal(t, want.TR, got.TR)
	assert.InDelta(t, want.ATR14, got.ATR14, 1e-9)
	assert.InDelta(t, want.ATR28, got.ATR28, 1e-9)
	assert.InDelta(t, want.EMA14, got.EMA14, 1e-9)
	assert.InDelta(t, want.EMA200, got.EMA200, 1e-9)
}
