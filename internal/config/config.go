// Package config defines the trading engine configuration and validation
// helpers. Fields are populated from a TOML file and then optionally
// overridden by MOMBOT_* environment variables.
package config

import (
	"fmt"
	"math"
)

// defaultBundlerProgram is the single default entry of bundler_programs.
const defaultBundlerProgram = "BundLrDeploy11111111111111111111111111111111"

// Config is the root configuration structure.
type Config struct {
	RPCEndpoint  string `toml:"rpc_endpoint"`
	WSEndpoint   string `toml:"ws_endpoint"`
	PostgresDSN  string `toml:"postgres_dsn"`
	RedisAddr    string `toml:"redis_addr"`
	MetricsAddr  string `toml:"metrics_addr"`
	DebugFilters bool   `toml:"debug_filters"`

	Admission AdmissionConfig `toml:"admission"`
	Entry     EntryConfig     `toml:"entry"`
	Exit      ExitConfig      `toml:"exit"`
	ML        MLConfig        `toml:"ml"`
	Logging   LoggingConfig   `toml:"logging"`
}

// AdmissionConfig gates which pool events become tracked tokens.
type AdmissionConfig struct {
	TokenMaxAgeSec         int64    `toml:"token_max_age"`
	MinInitialMcap         float64  `toml:"min_initial_mcap"`
	MaxInitialLiquiditySol float64  `toml:"max_initial_liquidity_sol"`
	NoTradeTimeoutSec      int64    `toml:"no_trade_timeout_sec"`
	SkipDevSameTicker      bool     `toml:"skip_dev_same_ticker"`
	EnableTaxBundlerFilter bool     `toml:"enable_tax_bundler_filter"`
	MaxTransferFeeBps      int      `toml:"max_transfer_fee_bps"`
	AllowBundler           bool     `toml:"allow_bundler"`
	BundlerPrograms        []string `toml:"bundler_programs"`
}

// EntryConfig controls the rolling window, indicators and buy gates.
type EntryConfig struct {
	MinRuntimeMcapSol      float64 `toml:"min_runtime_mcap_sol"`
	TPSWindowMs            int64   `toml:"tps_window_ms"`
	EMAShortMs             int64   `toml:"ema_short_ms"`
	EMALongMs              int64   `toml:"ema_long_ms"`
	ATRWindowSec           int64   `toml:"atr_window_sec"`
	MinTPS                 float64 `toml:"min_tps"`
	MinUniqueWallets       int     `toml:"min_unique_wallets"`
	MaxAvgSolPerTx         float64 `toml:"max_avg_sol_per_tx"`
	MinLiquiditySol        float64 `toml:"min_liquidity_sol"`
	MinVolumeSol           float64 `toml:"min_volume_sol"`
	ExceptionalMomentumPct float64 `toml:"exceptional_momentum_pct"`
	TradeSizeSol           float64 `toml:"trade_size_sol"`
	DevBlacklistSec        int64   `toml:"dev_blacklist_sec"`
	RequireDevSold         bool    `toml:"require_dev_sold"`
	SkipDevFirstToken      bool    `toml:"skip_dev_first_token"`
}

// ExitConfig controls the sell paths.
type ExitConfig struct {
	RugLiquidityDropPct  float64  `toml:"rug_liquidity_drop_pct"`
	MigrateFillPct       float64  `toml:"migrate_fill_pct"`
	TakeProfit           *float64 `toml:"take_profit"`
	BaseTrailDD          float64  `toml:"base_trail_dd"`
	TPSTrailScale        float64  `toml:"tps_trail_scale"`
	ATRMult              float64  `toml:"atr_mult"`
	DisableEMATPSGainPct float64  `toml:"disable_ema_tps_gain_pct"`
	ExitTPS              *float64 `toml:"exit_tps"`
}

// MLConfig wires the optional GBM models.
type MLConfig struct {
	Enabled       bool    `toml:"lgbm_enabled"`
	ModelDir      string  `toml:"lgbm_model_dir"`
	ThresholdBuy  float64 `toml:"lgbm_threshold_buy"`
	ThresholdSell float64 `toml:"lgbm_threshold_sell"`
	PureML        bool    `toml:"pure_ml"`
}

// LoggingConfig controls the append-only feature/prediction sinks.
type LoggingConfig struct {
	FeatureLogging bool   `toml:"feature_logging"`
	FeatureLogPath string `toml:"feature_log_path"`
	PredLogging    bool   `toml:"pred_logging"`
	PredLogPath    string `toml:"pred_log_path"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		MetricsAddr: ":9090",
		Admission: AdmissionConfig{
			TokenMaxAgeSec:         600,
			MinInitialMcap:         0,
			MaxInitialLiquiditySol: math.Inf(1),
			NoTradeTimeoutSec:      60,
			SkipDevSameTicker:      false,
			EnableTaxBundlerFilter: true,
			MaxTransferFeeBps:      0,
			AllowBundler:           false,
			BundlerPrograms:        []string{defaultBundlerProgram},
		},
		Entry: EntryConfig{
			MinRuntimeMcapSol:      30,
			TPSWindowMs:            4000,
			ATRWindowSec:           20,
			MinTPS:                 5,
			MinUniqueWallets:       0,
			MaxAvgSolPerTx:         2,
			ExceptionalMomentumPct: 2.0,
			TradeSizeSol:           0.5,
			DevBlacklistSec:        3600,
			RequireDevSold:         true,
			SkipDevFirstToken:      true,
		},
		Exit: ExitConfig{
			RugLiquidityDropPct:  0.4,
			MigrateFillPct:       0.97,
			BaseTrailDD:          0.2,
			TPSTrailScale:        0.04,
			ATRMult:              3,
			DisableEMATPSGainPct: 0.3,
		},
		ML: MLConfig{
			ModelDir:      "models",
			ThresholdBuy:  0.5,
			ThresholdSell: 0.5,
		},
		Logging: LoggingConfig{
			FeatureLogPath: "data/features.log",
			PredLogPath:    "data/predictions.log",
		},
	}
}

// EffectiveExitTPS resolves the collapse-exit TPS floor, defaulting to
// max(1, min_tps/2) when exit_tps is not set.
func (c *Config) EffectiveExitTPS() float64 {
	if c.Exit.ExitTPS != nil {
		return *c.Exit.ExitTPS
	}
	return math.Max(1, c.Entry.MinTPS/2)
}

// Validate checks the configuration for values the engine cannot run with.
// A non-nil error is fatal at startup.
func (c *Config) Validate() error {
	if c.Admission.TokenMaxAgeSec <= 0 {
		return fmt.Errorf("config: token_max_age must be positive, got %d", c.Admission.TokenMaxAgeSec)
	}
	if c.Admission.NoTradeTimeoutSec <= 0 {
		return fmt.Errorf("config: no_trade_timeout_sec must be positive, got %d", c.Admission.NoTradeTimeoutSec)
	}
	if c.Admission.MaxTransferFeeBps < 0 {
		return fmt.Errorf("config: max_transfer_fee_bps must be >= 0, got %d", c.Admission.MaxTransferFeeBps)
	}
	if c.Entry.TPSWindowMs <= 0 {
		return fmt.Errorf("config: tps_window_ms must be positive, got %d", c.Entry.TPSWindowMs)
	}
	if c.Entry.ATRWindowSec <= 0 {
		return fmt.Errorf("config: atr_window_sec must be positive, got %d", c.Entry.ATRWindowSec)
	}
	if c.Entry.EMAShortMs < 0 || c.Entry.EMALongMs < 0 {
		return fmt.Errorf("config: ema horizons must be >= 0")
	}
	if c.Entry.TradeSizeSol <= 0 {
		return fmt.Errorf("config: trade_size_sol must be positive, got %v", c.Entry.TradeSizeSol)
	}
	if c.Exit.RugLiquidityDropPct <= 0 || c.Exit.RugLiquidityDropPct >= 1 {
		return fmt.Errorf("config: rug_liquidity_drop_pct must be in (0,1), got %v", c.Exit.RugLiquidityDropPct)
	}
	if c.Exit.MigrateFillPct <= 0 || c.Exit.MigrateFillPct > 1 {
		return fmt.Errorf("config: migrate_fill_pct must be in (0,1], got %v", c.Exit.MigrateFillPct)
	}
	if c.Exit.TakeProfit != nil && *c.Exit.TakeProfit <= 0 {
		return fmt.Errorf("config: take_profit must be positive when set, got %v", *c.Exit.TakeProfit)
	}
	if c.ML.Enabled {
		if c.ML.ModelDir == "" {
			return fmt.Errorf("config: lgbm_model_dir required when lgbm_enabled")
		}
		if c.ML.ThresholdBuy < 0 || c.ML.ThresholdBuy > 1 || c.ML.ThresholdSell < 0 || c.ML.ThresholdSell > 1 {
			return fmt.Errorf("config: lgbm thresholds must be within [0,1]")
		}
	}
	if c.ML.PureML && !c.ML.Enabled {
		return fmt.Errorf("config: pure_ml requires lgbm_enabled")
	}
	if c.Logging.FeatureLogging && c.Logging.FeatureLogPath == "" {
		return fmt.Errorf("config: feature_log_path required when feature_logging")
	}
	if c.Logging.PredLogging && c.Logging.PredLogPath == "" {
		return fmt.Errorf("config: pred_log_path required when pred_logging")
	}
	return nil
}
