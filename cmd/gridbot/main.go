package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alejandrodnm/gridbot/config"
	"github.com/alejandrodnm/gridbot/internal/adapters/broker"
	"github.com/alejandrodnm/gridbot/internal/adapters/notify"
	"github.com/alejandrodnm/gridbot/internal/adapters/storage"
	"github.com/alejandrodnm/gridbot/internal/engine"
	"github.com/alejandrodnm/gridbot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	mode := flag.String("mode", "backtest", "run mode: backtest|paper|live")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	runMode := engine.Mode(*mode)
	switch runMode {
	case engine.ModeBacktest, engine.ModePaper, engine.ModeLive:
	default:
		slog.Error("unknown mode", "mode", *mode)
		os.Exit(1)
	}

	slog.Info("gridbot starting",
		"config", *configPath,
		"mode", *mode,
		"symbol", cfg.Bot.Symbol,
		"capital", cfg.Bot.InitialCapital,
		"levels", cfg.Grid.Levels,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	var brk ports.Broker
	if runMode == engine.ModeLive {
		if cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "" {
			slog.Error("live mode needs EXCHANGE_API_KEY and EXCHANGE_API_SECRET")
			os.Exit(1)
		}
		brk = broker.NewBinance(cfg.Exchange.RESTBase,
			cfg.Exchange.APIKey, cfg.Exchange.APISecret,
			cfg.Bot.Symbol, cfg.Bot.FuturesSymbol)
	} else {
		brk = broker.NewPaper(cfg.Bot.Symbol, cfg.Bot.FuturesSymbol)
	}

	eng := engine.New(engineConfig(cfg, runMode), brk, store)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		slog.Error("engine start failed", "err", err)
		os.Exit(1)
	}

	notifier := notify.NewConsole()

	var runErr error
	if runMode == engine.ModeBacktest {
		runErr = runBacktest(ctx, cfg, eng, notifier)
	} else {
		runErr = runStream(ctx, cfg, eng, notifier)
	}
	if runErr != nil {
		slog.Error("gridbot exited with error", "err", runErr)
		os.Exit(1)
	}

	slog.Info("gridbot stopped cleanly")
}

func engineConfig(cfg *config.Config, mode engine.Mode) engine.Config {
	return engine.Config{
		Symbol:        cfg.Bot.Symbol,
		FuturesSymbol: cfg.Bot.FuturesSymbol,
		Mode:          mode,

		InitialCapital: cfg.Bot.InitialCapital,
		ReserveRatio:   cfg.Bot.ReserveRatio,
		OrderSizeUSDT:  cfg.Bot.OrderSizeUSDT,
		SpotFeeRate:    cfg.Bot.SpotFeeRate,
		FuturesFeeRate: cfg.Bot.FuturesFeeRate,

		GridLevels:    cfg.Grid.Levels,
		ATRMultiplier: cfg.Grid.ATRMultiplier,
		DriftK:        cfg.Grid.DriftK,
		VolUpRatio:    cfg.Grid.VolUpRatio,
		VolDownRatio:  cfg.Grid.VolDownRatio,

		HedgeLeverage:     cfg.Hedge.Leverage,
		HedgeSizeRatio:    cfg.Hedge.SizeRatio,
		HedgeOpenKATR:     cfg.Hedge.OpenKATR,
		HedgeTPRatio:      cfg.Hedge.TPRatio,
		HedgeSLRatio:      cfg.Hedge.SLRatio,
		HedgeMaxLossRatio: cfg.Hedge.MaxLossRatio,
		HedgeMinHoldMs:    cfg.Hedge.MinHoldMs,
		MinHedgeNotional:  cfg.Hedge.MinNotional,
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if cfg.Output != "" && cfg.Output != "stdout" {
		out = &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
}
