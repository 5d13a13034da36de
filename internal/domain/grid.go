package domain

import (
	"math"

	"github.com/google/uuid"
)

// GridLevel is one rung of the buy ladder.
type GridLevel struct {
	Price  float64
	Filled bool
}

// GridGroup is one generation of the ladder. Exactly one group is active
// per symbol; a recenter deactivates the old group and creates a new one.
type GridGroup struct {
	ID        string
	Symbol    string
	BasePrice float64
	Spacing   float64
	Levels    []GridLevel // ascending, all strictly below BasePrice
}

// NewGridGroup builds a lower-only ladder: levels at
// base − spacing*(i+1) for i in [0, levels), sorted ascending.
func NewGridGroup(symbol string, basePrice, spacing float64, levels int) GridGroup {
	g := GridGroup{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		BasePrice: basePrice,
		Spacing:   spacing,
		Levels:    make([]GridLevel, 0, levels),
	}
	for i := levels; i >= 1; i-- {
		g.Levels = append(g.Levels, GridLevel{Price: round4(basePrice - spacing*float64(i))})
	}
	return g
}

// Lowest returns the bottom rung price, or 0 for an empty ladder.
func (g *GridGroup) Lowest() float64 {
	if len(g.Levels) == 0 {
		return 0
	}
	return g.Levels[0].Price
}

// Highest returns the top rung price, or 0 for an empty ladder.
func (g *GridGroup) Highest() float64 {
	if len(g.Levels) == 0 {
		return 0
	}
	return g.Levels[len(g.Levels)-1].Price
}

// SecondLowest returns the rung above the bottom one; the band between
// the two is the hedge "danger zone".
func (g *GridGroup) SecondLowest() float64 {
	if len(g.Levels) < 2 {
		return g.Lowest()
	}
	return g.Levels[1].Price
}

// FillRatio is filled rungs over total rungs.
func (g *GridGroup) FillRatio() float64 {
	if len(g.Levels) == 0 {
		return 0
	}
	filled := 0
	for _, l := range g.Levels {
		if l.Filled {
			filled++
		}
	}
	return float64(filled) / float64(len(g.Levels))
}

// UnfilledCount counts rungs still open for a buy.
func (g *GridGroup) UnfilledCount() int {
	n := 0
	for _, l := range g.Levels {
		if !l.Filled {
			n++
		}
	}
	return n
}

// SetFilled flips the fill flag on the rung at the given price.
// Returns false when no rung matches.
func (g *GridGroup) SetFilled(price float64, filled bool) bool {
	for i := range g.Levels {
		if g.Levels[i].Price == price {
			g.Levels[i].Filled = filled
			return true
		}
	}
	return false
}

// ObservedSpacing derives spacing from adjacent rungs when the stored
// value is missing (e.g. a group restored from an older schema).
func (g *GridGroup) ObservedSpacing() float64 {
	if g.Spacing > 0 {
		return g.Spacing
	}
	if len(g.Levels) >= 2 {
		return g.Levels[1].Price - g.Levels[0].Price
	}
	return 0
}

// Trend is the EMA-stack market regime at recenter time.
type Trend string

const (
	TrendUp       Trend = "up"
	TrendDown     Trend = "down"
	TrendSideways Trend = "sideways"
)

// ClassifyTrend orders price against the fast/mid/slow EMAs:
// a full bearish stack is down, price above fast above mid is up,
// anything else is sideways.
func ClassifyTrend(price, emaFast, emaMid, emaSlow float64) Trend {
	if price < emaFast && emaFast < emaMid && emaMid < emaSlow {
		return TrendDown
	}
	if price > emaFast && emaFast > emaMid {
		return TrendUp
	}
	return TrendSideways
}

// RegimeSpacing picks the spacing for a rebuilt ladder from the current
// volatility regime: base atr14*mult, widened 1.3x when atr14/atr28 is
// above volUp, tightened 0.8x below volDown. With no usable ATR it keeps
// the previous spacing, falling back to 3% of price.
func RegimeSpacing(price, atr14, atr28, mult, volUp, volDown, prevSpacing float64) float64 {
	if atr14 <= 0 {
		if prevSpacing > 0 {
			return prevSpacing
		}
		return price * 0.03
	}
	base := atr14 * mult
	if atr28 > 0 {
		ratio := atr14 / atr28
		if ratio >= volUp {
			return base * 1.3
		}
		if ratio <= volDown {
			return base * 0.8
		}
	}
	return base
}

// SoftSpacing is the per-bar spacing adjustment: widen to 2x base when
// short ATR runs hot against long ATR, narrow to 1x when it cools, and
// ignore changes under 20% to avoid churn.
func SoftSpacing(current, atr14, atr28, mult, volUp, volDown float64) float64 {
	if atr14 <= 0 || atr28 <= 0 {
		return current
	}
	if current <= 0 {
		current = atr14 * mult
	}

	next := current
	switch {
	case atr14 > atr28*volUp:
		next = atr14 * mult * 2.0
	case atr14 < atr28*volDown:
		next = atr14 * mult * 1.0
	}

	if math.Abs(next-current)/current < 0.2 {
		return current
	}
	return next
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
