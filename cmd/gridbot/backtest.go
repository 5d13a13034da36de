package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/gridbot/config"
	"github.com/alejandrodnm/gridbot/internal/adapters/feed"
	"github.com/alejandrodnm/gridbot/internal/adapters/notify"
	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/engine"
)

// progressEvery controls how often the backtest prints a status line.
const progressEvery = 10000

// runBacktest replays the configured CSV through the engine. The first
// warmup_bars rows only feed the indicators.
func runBacktest(ctx context.Context, cfg *config.Config, eng *engine.Engine, notifier *notify.Console) error {
	if cfg.Backtest.CSVPath == "" {
		return fmt.Errorf("backtest needs backtest.csv_path (or OHLCV_FILE)")
	}

	slog.Info("backtest starting",
		"file", cfg.Backtest.CSVPath,
		"warmup_bars", cfg.Backtest.WarmupBars)

	src := feed.NewCSVFeed(cfg.Backtest.CSVPath)
	feedErr := make(chan error, 1)
	go func() { feedErr <- src.Run(ctx) }()

	var warmup []domain.Bar
	bars := 0
	for bar := range src.Bars() {
		if len(warmup) < cfg.Backtest.WarmupBars {
			warmup = append(warmup, bar)
			if len(warmup) == cfg.Backtest.WarmupBars {
				eng.Warmup(warmup)
				slog.Info("warmup complete", "bars", len(warmup))
			}
			continue
		}

		if err := eng.OnBar(ctx, bar); err != nil {
			return fmt.Errorf("bar %d: %w", bars+1, err)
		}
		bars++

		if bars%progressEvery == 0 {
			s := eng.Summary()
			notifier.PrintProgress(bars, bar.Close, s.FinalEquity)
		}
	}

	if err := <-feedErr; err != nil && ctx.Err() == nil {
		return fmt.Errorf("csv feed: %w", err)
	}

	// Short files: seed whatever warmup we collected before reporting.
	if len(warmup) > 0 && len(warmup) < cfg.Backtest.WarmupBars {
		slog.Warn("file shorter than warmup, no bars traded",
			"rows", len(warmup), "warmup_bars", cfg.Backtest.WarmupBars)
	}

	notifier.PrintSummary(cfg.Bot.Symbol, cfg.Bot.InitialCapital, bars, eng.Summary())
	return nil
}
