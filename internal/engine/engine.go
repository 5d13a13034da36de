package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
)

// Mode selects how fills and balances are handled.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModePaper    Mode = "paper"
	ModeLive     Mode = "live"
)

// Paper reports whether fills are simulated and settled in memory.
func (m Mode) Paper() bool { return m != ModeLive }

// Phase is the grid life-cycle state. A downtrend recenter parks the
// engine in PhaseAwaitingHedgeClearance until the hedge pnl turns
// non-negative, at which point the deferred full recenter runs.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseActive
	PhaseAwaitingHedgeClearance
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseAwaitingHedgeClearance:
		return "awaiting_hedge_clearance"
	default:
		return "uninitialized"
	}
}

// Config carries every tuning parameter of the decision engine.
type Config struct {
	Symbol        string
	FuturesSymbol string
	Mode          Mode

	InitialCapital float64
	ReserveRatio   float64
	OrderSizeUSDT  float64
	SpotFeeRate    float64
	FuturesFeeRate float64

	GridLevels    int
	ATRMultiplier float64
	DriftK        float64
	VolUpRatio    float64
	VolDownRatio  float64

	HedgeLeverage     int
	HedgeSizeRatio    float64
	HedgeOpenKATR     float64
	HedgeTPRatio      float64
	HedgeSLRatio      float64
	HedgeMaxLossRatio float64
	HedgeMinHoldMs    int64
	MinHedgeNotional  float64
}

const (
	// capitalSafetyBuffer is the share of available capital held back
	// from the buy pass each bar.
	capitalSafetyBuffer = 0.10

	// minOrderNotional is the dust threshold below which a buy is
	// skipped instead of placed.
	minOrderNotional = 10.0

	// fillRatioRecenter triggers a hard rebuild once this share of the
	// ladder is consumed.
	fillRatioRecenter = 0.7

	// indicatorSeedRows is how much history is loaded on start to
	// resume the TR window and EMA chain.
	indicatorSeedRows = 200
)

// Engine is the single-symbol grid decision engine. All state is owned
// by the goroutine calling OnBar; the caller must serialize bars.
type Engine struct {
	cfg    Config
	broker ports.Broker
	store  ports.Storage

	tracker   *domain.Tracker
	ledger    domain.CapitalLedger
	grid      *domain.GridGroup
	positions []domain.Position
	hedge     *domain.HedgeState
	phase     Phase
	parkedAt  int64 // bar that entered PhaseAwaitingHedgeClearance

	lastTimestamp int64
	lastClose     float64
}

// New builds an engine with a fresh ledger. Call Start before the first
// bar to restore persisted state.
func New(cfg Config, broker ports.Broker, store ports.Storage) *Engine {
	return &Engine{
		cfg:     cfg,
		broker:  broker,
		store:   store,
		tracker: domain.NewTracker(cfg.Symbol),
		ledger:  domain.NewCapitalLedger(cfg.InitialCapital, cfg.ReserveRatio),
		phase:   PhaseUninitialized,
	}
}

// Start restores indicator history and the active grid group from
// storage. Only a missing store is fatal; empty state is a normal
// first run.
func (e *Engine) Start(ctx context.Context) error {
	if e.store == nil {
		return fmt.Errorf("engine.Start: storage is required")
	}

	rows, err := e.store.LoadRecentIndicators(ctx, e.cfg.Symbol, indicatorSeedRows)
	if err != nil {
		slog.Warn("engine: could not load indicator history, starting cold",
			"symbol", e.cfg.Symbol, "err", err)
	} else if len(rows) > 0 {
		// Rows arrive most-recent-first; the tracker wants chronological.
		reverse(rows)
		e.tracker.Seed(rows)
		e.lastClose = rows[len(rows)-1].Close
		slog.Info("engine: indicator history restored",
			"symbol", e.cfg.Symbol, "rows", len(rows))
	}

	group, err := e.store.LoadActiveGridGroup(ctx, e.cfg.Symbol)
	if err != nil {
		slog.Warn("engine: could not load grid state", "symbol", e.cfg.Symbol, "err", err)
	} else if group != nil {
		e.grid = group
		e.phase = PhaseActive
		slog.Info("engine: active grid restored",
			"symbol", e.cfg.Symbol,
			"group", group.ID,
			"levels", len(group.Levels),
			"spacing", group.Spacing)
	}

	if e.cfg.Mode == ModeLive {
		if err := e.broker.RefreshBalances(ctx, &e.ledger); err != nil {
			return fmt.Errorf("engine.Start: refresh live balances: %w", err)
		}
		slog.Info("engine: live balances fetched",
			"available", e.ledger.AvailableCapital,
			"futures_margin", e.ledger.FuturesAvailableMargin)
	}

	return nil
}

// Warmup folds history bars into the indicator tracker without trading.
// Backtests feed their leading CSV rows through here.
func (e *Engine) Warmup(bars []domain.Bar) {
	for _, b := range bars {
		e.tracker.Update(b)
		e.lastClose = b.Close
	}
}

// OnBar processes one closed bar end to end: indicators, grid
// management, buys, sells, then the hedge evaluation. Collaborator
// failures are logged and skipped; they never abort the bar.
func (e *Engine) OnBar(ctx context.Context, bar domain.Bar) error {
	if bar.Timestamp < e.lastTimestamp {
		return fmt.Errorf("engine.OnBar: bar timestamp %d precedes %d", bar.Timestamp, e.lastTimestamp)
	}
	e.lastTimestamp = bar.Timestamp
	e.lastClose = bar.Close
	price := bar.Close

	snap := e.updateIndicators(ctx, bar)

	e.manageGrid(ctx, bar.Timestamp, price, snap)

	e.processBuyGrid(ctx, bar.Timestamp, price)
	e.processSellGrid(ctx, bar.Timestamp, price)

	e.manageHedgeExit(ctx, bar.Timestamp, price, snap)
	e.maybeScaleInHedge(ctx, bar.Timestamp, price, snap)

	if e.cfg.Mode == ModeLive {
		if err := e.broker.RefreshBalances(ctx, &e.ledger); err != nil {
			slog.Warn("engine: refresh balances failed", "err", err)
		}
	}

	return nil
}

// Summary is the end-of-run report used by the backtest driver.
type Summary struct {
	FinalEquity         float64
	AvailableCapital    float64
	ReserveCapital      float64
	FuturesMargin       float64
	RealizedGridProfit  float64
	RealizedHedgeProfit float64
	UnrealizedPnL       float64
	OpenPositions       int
	FilledLevels        int
	HedgeOpen           bool
}

// Summary marks the current state to the last seen close.
func (e *Engine) Summary() Summary {
	filled := 0
	if e.grid != nil {
		filled = len(e.grid.Levels) - e.grid.UnfilledCount()
	}
	return Summary{
		FinalEquity:         e.ledger.Equity(e.positions, e.lastClose),
		AvailableCapital:    e.ledger.AvailableCapital,
		ReserveCapital:      e.ledger.ReserveCapital,
		FuturesMargin:       e.ledger.FuturesAvailableMargin,
		RealizedGridProfit:  e.ledger.RealizedGridProfit,
		RealizedHedgeProfit: e.ledger.RealizedHedgeProfit,
		UnrealizedPnL:       domain.TotalUnrealizedPnL(e.positions, e.lastClose),
		OpenPositions:       len(e.positions),
		FilledLevels:        filled,
		HedgeOpen:           e.hedge != nil,
	}
}

func reverse(rows []domain.IndicatorSnapshot) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}
