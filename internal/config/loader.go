package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MOMBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MOMBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject endpoints and secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.RPCEndpoint, "MOMBOT_RPC_ENDPOINT")
	setStr(&cfg.WSEndpoint, "MOMBOT_WS_ENDPOINT")
	setStr(&cfg.PostgresDSN, "MOMBOT_POSTGRES_DSN")
	setStr(&cfg.RedisAddr, "MOMBOT_REDIS_ADDR")
	setStr(&cfg.MetricsAddr, "MOMBOT_METRICS_ADDR")
	setBool(&cfg.DebugFilters, "MOMBOT_DEBUG_FILTERS")

	setStr(&cfg.ML.ModelDir, "MOMBOT_LGBM_MODEL_DIR")
	setBool(&cfg.ML.Enabled, "MOMBOT_LGBM_ENABLED")

	setStr(&cfg.Logging.FeatureLogPath, "MOMBOT_FEATURE_LOG_PATH")
	setStr(&cfg.Logging.PredLogPath, "MOMBOT_PRED_LOG_PATH")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
