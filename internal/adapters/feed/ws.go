package feed

// ws.go — live kline stream over the exchange websocket. Only closed
// candles are forwarded; a dropped connection is redialed after a fixed
// pause until the context ends.

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

const reconnectWait = 5 * time.Second

// WSFeed streams closed klines for one symbol and interval.
type WSFeed struct {
	base     string
	symbol   string
	interval string
	bars     chan domain.Bar
}

// NewWSFeed builds a feed for e.g. ("wss://stream.binance.com:9443",
// "BTCUSDT", "1m").
func NewWSFeed(base, symbol, interval string) *WSFeed {
	return &WSFeed{
		base:     base,
		symbol:   symbol,
		interval: interval,
		bars:     make(chan domain.Bar, 16),
	}
}

// Bars returns the bar channel; closed when Run returns.
func (f *WSFeed) Bars() <-chan domain.Bar {
	return f.bars
}

// Run dials the stream and pushes closed bars until the context ends.
// Read errors trigger a redial, never a shutdown.
func (f *WSFeed) Run(ctx context.Context) error {
	defer close(f.bars)

	url := fmt.Sprintf("%s/ws/%s@kline_%s",
		f.base, strings.ToLower(f.symbol), f.interval)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			slog.Warn("feed: dial failed, retrying",
				"url", url, "wait", reconnectWait, "err", err)
			if !sleepCtx(ctx, reconnectWait) {
				return nil
			}
			continue
		}
		slog.Info("feed: stream connected", "symbol", f.symbol, "interval", f.interval)

		if err := f.readLoop(ctx, conn); err != nil {
			slog.Warn("feed: stream dropped, reconnecting", "err", err)
		}
		conn.Close()

		if !sleepCtx(ctx, reconnectWait) {
			return nil
		}
	}
}

type klineEvent struct {
	Kline struct {
		StartTime int64  `json:"t"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

func (f *WSFeed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	// Unblock ReadJSON when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var event klineEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read kline: %w", err)
		}
		if !event.Kline.Closed {
			continue
		}

		bar := domain.Bar{
			Timestamp: event.Kline.StartTime,
			Open:      mustFloat(event.Kline.Open),
			High:      mustFloat(event.Kline.High),
			Low:       mustFloat(event.Kline.Low),
			Close:     mustFloat(event.Kline.Close),
			Volume:    mustFloat(event.Kline.Volume),
		}

		select {
		case f.bars <- bar:
		case <-ctx.Done():
			return nil
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func mustFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
