package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds one immutable backtest run configuration, merged from
// config file, environment, and flags.
type Config struct {
	DataPath            string
	OutDir              string
	InitialCapitalQuote uint64
	StartTimestamp      int64
	EndTimestamp        int64
	StartBlock          uint64
	EndBlock            uint64

	Strategy string

	FeeTier            uint32
	TickSpacing        int
	Decimals0          int
	Decimals1          int
	RebalanceCostBps   uint32
	BarIntervalSeconds int64

	PriceRangePct float64
	TickLower     int
	TickUpper     int

	ATRPeriod          int
	ATRMultiplier      float64
	RebalanceIntervalS int64
	DeviationThreshold float64

	BaseThreshold           int
	LimitThreshold          int
	AlphaRebalanceIntervalS int64

	PositionWidthTicks    int
	RebalanceThresholdBps int

	SMAPeriod     int
	StdMultiplier float64
	MinWidthTicks int

	PgDSN    string
	LogLevel string
}

// canonical fee tier to tick spacing pairs.
var tickSpacings = map[uint32]int{
	500:   10,
	3000:  60,
	10000: 200,
}

// Strategies enumerates the accepted strategy names.
var Strategies = []string{"hold", "passive_range", "atr", "alpha_vault", "fixed_width", "bollinger"}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BACKTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("out-dir", "./out")
	v.SetDefault("initial-capital", uint64(10_000_000_000))
	v.SetDefault("strategy", "hold")
	v.SetDefault("fee-tier", uint32(3000))
	v.SetDefault("tick-spacing", 0)
	v.SetDefault("decimals0", 8)
	v.SetDefault("decimals1", 6)
	v.SetDefault("rebalance-cost-bps", uint32(100))
	v.SetDefault("bar-interval", int64(60))
	v.SetDefault("price-range-pct", 0.10)
	v.SetDefault("atr-period", 14)
	v.SetDefault("atr-multiplier", 2.0)
	v.SetDefault("rebalance-interval", int64(180))
	v.SetDefault("deviation-threshold", 0.03)
	v.SetDefault("base-threshold", 600)
	v.SetDefault("limit-threshold", 1200)
	v.SetDefault("alpha-rebalance-interval", int64(48*3600))
	v.SetDefault("position-width-ticks", 600)
	v.SetDefault("rebalance-threshold-bps", 500)
	v.SetDefault("sma-period", 20)
	v.SetDefault("std-multiplier", 2.0)
	v.SetDefault("min-width-ticks", 120)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		DataPath:            v.GetString("data-path"),
		OutDir:              v.GetString("out-dir"),
		InitialCapitalQuote: v.GetUint64("initial-capital"),
		StartTimestamp:      v.GetInt64("start-ts"),
		EndTimestamp:        v.GetInt64("end-ts"),
		StartBlock:          v.GetUint64("start-block"),
		EndBlock:            v.GetUint64("end-block"),

		Strategy: v.GetString("strategy"),

		FeeTier:            v.GetUint32("fee-tier"),
		TickSpacing:        v.GetInt("tick-spacing"),
		Decimals0:          v.GetInt("decimals0"),
		Decimals1:          v.GetInt("decimals1"),
		RebalanceCostBps:   v.GetUint32("rebalance-cost-bps"),
		BarIntervalSeconds: v.GetInt64("bar-interval"),

		PriceRangePct: v.GetFloat64("price-range-pct"),
		TickLower:     v.GetInt("tick-lower"),
		TickUpper:     v.GetInt("tick-upper"),

		ATRPeriod:          v.GetInt("atr-period"),
		ATRMultiplier:      v.GetFloat64("atr-multiplier"),
		RebalanceIntervalS: v.GetInt64("rebalance-interval"),
		DeviationThreshold: v.GetFloat64("deviation-threshold"),

		BaseThreshold:           v.GetInt("base-threshold"),
		LimitThreshold:          v.GetInt("limit-threshold"),
		AlphaRebalanceIntervalS: v.GetInt64("alpha-rebalance-interval"),

		PositionWidthTicks:    v.GetInt("position-width-ticks"),
		RebalanceThresholdBps: v.GetInt("rebalance-threshold-bps"),

		SMAPeriod:     v.GetInt("sma-period"),
		StdMultiplier: v.GetFloat64("std-multiplier"),
		MinWidthTicks: v.GetInt("min-width-ticks"),

		PgDSN:    v.GetString("pg-dsn"),
		LogLevel: v.GetString("log-level"),
	}

	if cfg.TickSpacing == 0 {
		spacing, ok := tickSpacings[cfg.FeeTier]
		if !ok {
			return Config{}, fmt.Errorf("unknown fee tier %d and no explicit tick spacing", cfg.FeeTier)
		}
		cfg.TickSpacing = spacing
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.DataPath == "" {
		return fmt.Errorf("data-path is required")
	}
	if c.TickSpacing <= 0 {
		return fmt.Errorf("tick spacing must be positive")
	}
	valid := false
	for _, name := range Strategies {
		if c.Strategy == name {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown strategy %q (want one of %s)", c.Strategy, strings.Join(Strategies, ", "))
	}
	if c.StartTimestamp != 0 && c.EndTimestamp != 0 && c.EndTimestamp < c.StartTimestamp {
		return fmt.Errorf("end-ts before start-ts")
	}
	if c.StartBlock != 0 && c.EndBlock != 0 && c.EndBlock < c.StartBlock {
		return fmt.Errorf("end-block before start-block")
	}
	if c.TickLower != 0 || c.TickUpper != 0 {
		if c.TickLower >= c.TickUpper {
			return fmt.Errorf("tick-lower must be below tick-upper")
		}
	}
	return nil
}

// UseExplicitTicks reports whether the passive range was pinned by flag.
func (c *Config) UseExplicitTicks() bool {
	return c.TickLower != 0 || c.TickUpper != 0
}
