package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGridGroupLadder(t *testing.T) {
	g := NewGridGroup("BTCUSDT", 100, 2, 3)

	require.Len(t, g.Levels, 3)
	assert.Equal(t, 94.0, g.Levels[0].Price)
	assert.Equal(t, 96.0, g.Levels[1].Price)
	assert.Equal(t, 98.0, g.Levels[2].Price)
	assert.Equal(t, 94.0, g.Lowest())
	assert.Equal(t, 96.0, g.SecondLowest())
	assert.Equal(t, 98.0, g.Highest())
	assert.NotEmpty(t, g.ID)

	// Every level sits strictly below the base price.
	for _, l := range g.Levels {
		assert.Less(t, l.Price, g.BasePrice)
		assert.False(t, l.Filled)
	}
}

func TestGridFillTracking(t *testing.T) {
	g := NewGridGroup("BTCUSDT", 100, 2, 4)

	assert.Zero(t, g.FillRatio())
	assert.Equal(t, 4, g.UnfilledCount())

	require.True(t, g.SetFilled(98, true))
	require.True(t, g.SetFilled(96, true))
	require.True(t, g.SetFilled(94, true))
	assert.False(t, g.SetFilled(123, true), "unknown price must not match")

	assert.InDelta(t, 0.75, g.FillRatio(), 1e-9)
	assert.Equal(t, 1, g.UnfilledCount())

	require.True(t, g.SetFilled(96, false))
	assert.InDelta(t, 0.5, g.FillRatio(), 1e-9)
}

func TestObservedSpacing(t *testing.T) {
	g := NewGridGroup("BTCUSDT", 100, 2.5, 3)
	assert.Equal(t, 2.5, g.ObservedSpacing())

	// Derived from adjacent rungs when the stored value is gone.
	g.Spacing = 0
	assert.InDelta(t, 2.5, g.ObservedSpacing(), 1e-9)
}

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		name                        string
		price, fast, mid, slow      float64
		want                        Trend
	}{
		{"full bearish stack", 90, 92, 95, 99, TrendDown},
		{"price above fast above mid", 105, 103, 100, 98, TrendUp},
		{"slow ema irrelevant for up", 105, 103, 100, 120, TrendUp},
		{"mixed stack is sideways", 95, 92, 95, 99, TrendSideways},
		{"price between emas is sideways", 94, 92, 95, 99, TrendSideways},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyTrend(tt.price, tt.fast, tt.mid, tt.slow))
		})
	}
}

func TestRegimeSpacing(t *testing.T) {
	// Neutral regime: plain atr * mult.
	assert.InDelta(t, 2.0, RegimeSpacing(100, 2, 2, 1.0, 1.5, 0.7, 0), 1e-9)

	// Hot short ATR widens by 1.3.
	assert.InDelta(t, 3.9, RegimeSpacing(100, 3, 2, 1.0, 1.5, 0.7, 0), 1e-9)

	// Cold short ATR tightens by 0.8.
	assert.InDelta(t, 0.8, RegimeSpacing(100, 1, 2, 1.0, 1.5, 0.7, 0), 1e-9)

	// No ATR: previous spacing, then the 3% fallback.
	assert.Equal(t, 2.5, RegimeSpacing(100, 0, 0, 1.0, 1.5, 0.7, 2.5))
	assert.InDelta(t, 3.0, RegimeSpacing(100, 0, 0, 1.0, 1.5, 0.7, 0), 1e-9)
}

func TestSoftSpacingHysteresis(t *testing.T) {
	// Hot regime doubles the base spacing.
	assert.InDelta(t, 8.0, SoftSpacing(2, 4, 2, 1.0, 1.5, 0.7), 1e-9)

	// Cooling down returns to 1x base.
	assert.InDelta(t, 1.0, SoftSpacing(4, 1, 2, 1.0, 1.5, 0.7), 1e-9)

	// Changes under 20% are ignored: hot target is 8.0 but the move
	// from 7.8 is only ~2.6%.
	assert.Equal(t, 7.8, SoftSpacing(7.8, 4, 2, 1.0, 1.5, 0.7))

	// Missing ATR leaves the spacing alone.
	assert.Equal(t, 2.0, SoftSpacing(2, 0, 2, 1.0, 1.5, 0.7))
}
