// Package config loads the system's runtime configuration from a YAML file,
// an optional .env file, and environment variables, in that order of
// increasing precedence (a .env entry never overrides a variable already set
// in the environment), using viper and godotenv the way the wider example
// corpus does (§6.6 Configuration).
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// Config is the fully resolved runtime configuration for the whole system.
type Config struct {
	Engine    types.EngineConfig    `mapstructure:"engine"`
	Agent     types.AgentConfig     `mapstructure:"agent"`
	Strategy  types.Strategy        `mapstructure:"strategy"`
	Risk      types.RiskLimits      `mapstructure:"risk"`
	Server    types.ServerConfig    `mapstructure:"server"`
	Providers []types.ProviderSpec  `mapstructure:"providers"`

	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
	RedisURL string `mapstructure:"redis_url"`
}

// Load reads configuration from (in increasing precedence) built-in
// defaults, a YAML file at path (if it exists), a .env file in the working
// directory (if present), and NOVA_-prefixed environment variables.
//
// A missing config file is not an error — the system runs on defaults plus
// environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional; ignored if absent

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("nova-trader")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("NOVA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.Engine.SigningKeyPresent = v.GetString("signing_key") != ""
	cfg.Server.JWTSigningKey = v.GetString("jwt_signing_key")
	for i := range cfg.Providers {
		cfg.Providers[i].Credentials = v.GetString("provider_credentials_" + cfg.Providers[i].Name)
	}

	if len(cfg.Providers) == 0 {
		cfg.Providers = DefaultProviders()
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	engine := types.DefaultEngineConfig()
	agent := types.DefaultAgentConfig()
	strategy := types.DefaultStrategy()
	risk := types.DefaultRiskLimits()
	server := types.DefaultServerConfig()

	v.SetDefault("engine.mode", string(engine.Mode))
	v.SetDefault("engine.scan_interval_ms", engine.ScanInterval)
	v.SetDefault("engine.monitor_interval_ms", engine.MonitorInterval)
	v.SetDefault("engine.use_database", engine.UseDatabase)
	v.SetDefault("engine.use_ai_analysis", engine.UseAIAnalysis)
	v.SetDefault("engine.use_jito", engine.UseJito)
	v.SetDefault("engine.backoff_base", engine.BackoffBase)
	v.SetDefault("engine.backoff_max", engine.BackoffMax)
	v.SetDefault("engine.loop_drain_timeout", engine.LoopDrainTimeout)

	v.SetDefault("agent.learning_rate", agent.LearningRate)
	v.SetDefault("agent.discount_factor", agent.DiscountFactor)
	v.SetDefault("agent.exploration_rate", agent.ExplorationRate)
	v.SetDefault("agent.min_exploration_rate", agent.MinExploration)
	v.SetDefault("agent.exploration_decay", agent.ExplorationDecay)

	v.SetDefault("strategy.entry.min_liquidity", strategy.Entry.MinLiquidity.String())
	v.SetDefault("strategy.entry.max_market_cap", strategy.Entry.MaxMarketCap.String())
	v.SetDefault("strategy.entry.min_volume_24h", strategy.Entry.MinVolume24h.String())
	v.SetDefault("strategy.entry.max_token_age_sec", strategy.Entry.MaxAgeSec)
	v.SetDefault("strategy.entry.min_holders", strategy.Entry.MinHolders)
	v.SetDefault("strategy.entry.require_verified", strategy.Entry.RequireVerified)
	v.SetDefault("strategy.exit.stop_loss_frac", strategy.Exit.StopLossFrac.String())
	v.SetDefault("strategy.exit.take_profit_frac", strategy.Exit.TakeProfitFrac.String())
	v.SetDefault("strategy.exit.trailing_stop_frac", strategy.Exit.TrailingStopFrac.String())
	v.SetDefault("strategy.exit.max_hold_min", strategy.Exit.MaxHoldMinutes)
	v.SetDefault("strategy.sizing.base_amount_sol", strategy.Sizing.BaseAmountSOL.String())
	v.SetDefault("strategy.sizing.max_positions", strategy.Sizing.MaxPositions)
	v.SetDefault("strategy.sizing.risk_per_trade", strategy.Sizing.RiskPerTrade.String())

	v.SetDefault("risk.maxdailyloss", risk.MaxDailyLoss.String())
	v.SetDefault("risk.maxconsecutivelosses", risk.MaxConsecutiveLosses)
	v.SetDefault("risk.cooldownperiod", risk.CooldownPeriod)

	v.SetDefault("server.host", server.Host)
	v.SetDefault("server.port", server.Port)
	v.SetDefault("server.read_timeout", server.ReadTimeout)
	v.SetDefault("server.write_timeout", server.WriteTimeout)
	v.SetDefault("server.enable_metrics", server.EnableMetrics)

	v.SetDefault("data_dir", "./data")
	v.SetDefault("log_level", "info")
	v.SetDefault("redis_url", "redis://localhost:6379/0")
}

// DefaultProviders returns the ranked provider list C1 falls back through
// when no providers.* config section is present.
func DefaultProviders() []types.ProviderSpec {
	return []types.ProviderSpec{
		{Name: "coinmarketcap", Tier: types.TierPrimary, IsFree: false},
		{Name: "coingecko", Tier: types.TierOptional, IsFree: true},
		{Name: "cryptocompare", Tier: types.TierOptional, IsFree: true},
	}
}
