package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"v3backtester/internal/backtest"
	"v3backtester/internal/config"
	"v3backtester/internal/model"
	"v3backtester/internal/report"
	"v3backtester/internal/storage"
	"v3backtester/internal/storage/postgres"
	"v3backtester/internal/stream"
)

func main() {
	root := &cobra.Command{
		Use:          "backtester",
		Short:        "Concentrated-liquidity AMM backtester",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one strategy over an event stream",
		RunE:  runBacktest,
	}
	addRunFlags(runCmd)
	root.AddCommand(runCmd)

	compareCmd := &cobra.Command{
		Use:   "compare",
		Short: "Run every strategy over the same event stream",
		RunE:  runCompare,
	}
	addRunFlags(compareCmd)
	root.AddCommand(compareCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize an event stream",
		RunE:  runStats,
	}
	statsCmd.Flags().String("data-path", "", "event stream JSONL path")
	statsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(statsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("data-path", "", "event stream JSONL path")
	flags.String("out-dir", "./out", "report output directory")
	flags.Uint64("initial-capital", 10_000_000_000, "starting capital in quote raw units")
	flags.Int64("start-ts", 0, "inclusive start timestamp (unix seconds)")
	flags.Int64("end-ts", 0, "inclusive end timestamp (unix seconds)")
	flags.Uint64("start-block", 0, "inclusive start block")
	flags.Uint64("end-block", 0, "inclusive end block")
	flags.String("strategy", "hold", "strategy: hold, passive_range, atr, alpha_vault, fixed_width, bollinger")
	flags.Uint32("fee-tier", 3000, "pool fee tier in hundredths of a bip")
	flags.Int("tick-spacing", 0, "pool tick spacing, 0 derives from fee tier")
	flags.Int("decimals0", 8, "token0 decimals (display only)")
	flags.Int("decimals1", 6, "token1 decimals (display only)")
	flags.Uint32("rebalance-cost-bps", 100, "rebalance friction in bps of notional")
	flags.Int64("bar-interval", 60, "indicator bar width in seconds")
	flags.Float64("price-range-pct", 0.10, "passive range width")
	flags.Int("tick-lower", 0, "explicit passive range lower tick")
	flags.Int("tick-upper", 0, "explicit passive range upper tick")
	flags.Int("atr-period", 14, "ATR period in bars")
	flags.Float64("atr-multiplier", 2.0, "ATR range multiplier")
	flags.Int64("rebalance-interval", 180, "minimum seconds between ATR rebalances")
	flags.Float64("deviation-threshold", 0.03, "ATR rebalance price deviation threshold")
	flags.Int("base-threshold", 600, "dual-order base half-width in ticks")
	flags.Int("limit-threshold", 1200, "dual-order limit width in ticks")
	flags.Int64("alpha-rebalance-interval", 48*3600, "dual-order cadence in seconds")
	flags.Int("position-width-ticks", 600, "fixed-width position width")
	flags.Int("rebalance-threshold-bps", 500, "fixed-width recenter threshold")
	flags.Int("sma-period", 20, "bollinger SMA period in bars")
	flags.Float64("std-multiplier", 2.0, "bollinger band width in standard deviations")
	flags.Int("min-width-ticks", 120, "bollinger minimum range width")
	flags.String("pg-dsn", "", "optional Postgres DSN for result storage")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	cfg, logger, records, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	opts := driverOptions(cfg)
	strat, err := backtest.NewStrategy(opts)
	if err != nil {
		return err
	}

	result, err := backtest.NewDriver(opts, logger).Run(records, strat)
	if err != nil {
		return err
	}

	if err := report.Write(cfg.OutDir, result); err != nil {
		return err
	}
	if err := writeLedger(cfg.OutDir, result); err != nil {
		return err
	}
	if err := persist(cmd.Context(), cfg, logger, result); err != nil {
		return err
	}

	logger.Info("backtest finished",
		zap.String("strategy", result.Summary.Strategy),
		zap.Float64("total_return", result.Summary.TotalReturn),
		zap.Int("rebalances", result.Summary.RebalanceCount),
		zap.Int("warnings", len(result.Discrepancies)))
	return nil
}

func runCompare(cmd *cobra.Command, _ []string) error {
	cfg, logger, records, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	opts := driverOptions(cfg)
	results := backtest.Compare(records, opts, backtest.AllStrategies(), logger)

	summaries := make([]backtest.Summary, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			return res.Err
		}
		if err := report.Write(cfg.OutDir, res.Result); err != nil {
			return err
		}
		if err := writeLedger(cfg.OutDir, res.Result); err != nil {
			return err
		}
		if err := persist(cmd.Context(), cfg, logger, res.Result); err != nil {
			return err
		}
		summaries = append(summaries, res.Result.Summary)
	}

	data, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal comparison: %w", err)
	}
	comparePath := filepath.Join(cfg.OutDir, "comparison.json")
	if err := os.WriteFile(comparePath, data, 0o644); err != nil {
		return fmt.Errorf("write comparison: %w", err)
	}

	logger.Info("comparison finished", zap.Int("strategies", len(summaries)), zap.String("out", comparePath))
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	dataPath, _ := cmd.Flags().GetString("data-path")
	if dataPath == "" {
		return fmt.Errorf("data-path is required")
	}
	level, _ := cmd.Flags().GetString("log-level")
	logger, err := newLogger(level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	stats, err := stream.Collect(dataPath, logger)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func setup(cmd *cobra.Command) (config.Config, *zap.Logger, []model.Record, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	records, err := stream.Load(cfg.DataPath, stream.Filter{
		StartBlock:     cfg.StartBlock,
		EndBlock:       cfg.EndBlock,
		StartTimestamp: cfg.StartTimestamp,
		EndTimestamp:   cfg.EndTimestamp,
	}, logger)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	return cfg, logger, records, nil
}

func driverOptions(cfg config.Config) backtest.Options {
	return backtest.Options{
		Strategy:            cfg.Strategy,
		InitialCapitalQuote: cfg.InitialCapitalQuote,
		FeeTier:             cfg.FeeTier,
		TickSpacing:         cfg.TickSpacing,
		RebalanceCostBps:    cfg.RebalanceCostBps,
		BarIntervalSeconds:  cfg.BarIntervalSeconds,
		Decimals0:           cfg.Decimals0,
		Decimals1:           cfg.Decimals1,

		PriceRangePct:    cfg.PriceRangePct,
		TickLower:        cfg.TickLower,
		TickUpper:        cfg.TickUpper,
		UseExplicitTicks: cfg.UseExplicitTicks(),

		ATRPeriod:          cfg.ATRPeriod,
		ATRMultiplier:      cfg.ATRMultiplier,
		RebalanceIntervalS: cfg.RebalanceIntervalS,
		DeviationThreshold: cfg.DeviationThreshold,

		BaseThreshold:           cfg.BaseThreshold,
		LimitThreshold:          cfg.LimitThreshold,
		AlphaRebalanceIntervalS: cfg.AlphaRebalanceIntervalS,

		PositionWidthTicks:    cfg.PositionWidthTicks,
		RebalanceThresholdBps: cfg.RebalanceThresholdBps,

		SMAPeriod:     cfg.SMAPeriod,
		StdMultiplier: cfg.StdMultiplier,
		MinWidthTicks: cfg.MinWidthTicks,
	}
}

// writeLedger appends the run's replay discrepancies to a JSONL ledger so
// data-quality issues stay inspectable after the run.
func writeLedger(outDir string, result *backtest.Result) error {
	if len(result.Discrepancies) == 0 {
		return nil
	}
	sink := storage.NewJsonlSink(filepath.Join(outDir, result.Summary.Strategy+"_discrepancies.jsonl"))
	records := make([]any, 0, len(result.Discrepancies))
	for _, d := range result.Discrepancies {
		records = append(records, d)
	}
	return sink.PutBatch(records)
}

func persist(ctx context.Context, cfg config.Config, logger *zap.Logger, result *backtest.Result) error {
	if cfg.PgDSN == "" {
		return nil
	}
	store, err := postgres.NewStore(ctx, cfg.PgDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := report.ForResult(result)
	runID, err := store.InsertRun(ctx, cfg.DataPath, result.Summary, metrics)
	if err != nil {
		return err
	}
	if err := store.InsertSeries(ctx, runID, result.ValueSeries, result.PriceSeries); err != nil {
		return err
	}
	if err := store.InsertActions(ctx, runID, result.Actions); err != nil {
		return err
	}
	logger.Info("run persisted", zap.Int64("run_id", runID), zap.String("strategy", result.Summary.Strategy))
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
