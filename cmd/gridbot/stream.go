package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/gridbot/config"
	"github.com/alejandrodnm/gridbot/internal/adapters/feed"
	"github.com/alejandrodnm/gridbot/internal/adapters/notify"
	"github.com/alejandrodnm/gridbot/internal/engine"
)

// runStream drives paper and live mode from the websocket kline feed
// until the context is canceled.
func runStream(ctx context.Context, cfg *config.Config, eng *engine.Engine, notifier *notify.Console) error {
	src := feed.NewWSFeed(cfg.Exchange.WSBase, cfg.Bot.Symbol, cfg.Exchange.Interval)

	feedErr := make(chan error, 1)
	go func() { feedErr <- src.Run(ctx) }()

	bars := 0
	for bar := range src.Bars() {
		if err := eng.OnBar(ctx, bar); err != nil {
			// A stale bar after a reconnect replay is skipped, not fatal.
			slog.Warn("bar rejected", "ts", bar.Timestamp, "err", err)
			continue
		}
		bars++
	}

	if err := <-feedErr; err != nil && ctx.Err() == nil {
		return fmt.Errorf("kline feed: %w", err)
	}

	notifier.PrintSummary(cfg.Bot.Symbol, cfg.Bot.InitialCapital, bars, eng.Summary())
	return nil
}
