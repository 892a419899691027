// Package types provides configuration types for the trading core.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryThresholds are the admission filters of §4.2.3 step 4.
type EntryThresholds struct {
	MinLiquidity    decimal.Decimal `json:"minLiquidity" mapstructure:"min_liquidity"`
	MaxMarketCap    decimal.Decimal `json:"maxMarketCap" mapstructure:"max_market_cap"`
	MinVolume24h    decimal.Decimal `json:"minVolume24h" mapstructure:"min_volume_24h"`
	MaxAgeSec       float64         `json:"maxAgeSec" mapstructure:"max_token_age_sec"`
	MinHolders      int             `json:"minHolders" mapstructure:"min_holders"`
	RequireVerified bool            `json:"requireVerified" mapstructure:"require_verified"`
}

// ExitBands are the exit fractions of §4.2.5.
type ExitBands struct {
	StopLossFrac     decimal.Decimal `json:"stopLossFrac" mapstructure:"stop_loss_frac"`
	TakeProfitFrac   decimal.Decimal `json:"takeProfitFrac" mapstructure:"take_profit_frac"`
	TrailingStopFrac decimal.Decimal `json:"trailingStopFrac" mapstructure:"trailing_stop_frac"`
	MaxHoldMinutes   float64         `json:"maxHoldMinutes" mapstructure:"max_hold_min"`
}

// Sizing are the position-sizing knobs of §3 Strategy.
type Sizing struct {
	BaseAmountSOL decimal.Decimal `json:"baseAmountSol" mapstructure:"base_amount_sol"`
	MaxPositions  int             `json:"maxPositions" mapstructure:"max_positions"`
	RiskPerTrade  decimal.Decimal `json:"riskPerTrade" mapstructure:"risk_per_trade"`
}

// Strategy is the mutable declarative policy C3 tunes (§3).
type Strategy struct {
	Entry  EntryThresholds `json:"entry"`
	Exit   ExitBands       `json:"exit"`
	Sizing Sizing          `json:"sizing"`
}

// DefaultStrategy returns a conservative starting strategy.
func DefaultStrategy() Strategy {
	return Strategy{
		Entry: EntryThresholds{
			MinLiquidity:    decimal.NewFromInt(5),
			MaxMarketCap:    decimal.NewFromInt(200),
			MinVolume24h:    decimal.NewFromInt(1),
			MaxAgeSec:       3600,
			MinHolders:      20,
			RequireVerified: false,
		},
		Exit: ExitBands{
			StopLossFrac:     decimal.NewFromFloat(0.25),
			TakeProfitFrac:   decimal.NewFromFloat(1.0),
			TrailingStopFrac: decimal.NewFromFloat(0.15),
			MaxHoldMinutes:   60,
		},
		Sizing: Sizing{
			BaseAmountSOL: decimal.NewFromFloat(0.1),
			MaxPositions:  5,
			RiskPerTrade:  decimal.NewFromFloat(0.02),
		},
	}
}

// EngineMode selects between simulated and on-chain execution (§4.2.2).
type EngineMode string

const (
	ModeSimulation EngineMode = "simulation"
	ModeLive       EngineMode = "live"
)

// EngineConfig configures C2 (§6.6).
type EngineConfig struct {
	Mode              EngineMode    `json:"mode" mapstructure:"mode"`
	Platforms         []Platform    `json:"platforms" mapstructure:"platforms"`
	ScanInterval      time.Duration `json:"scanInterval" mapstructure:"scan_interval_ms"`
	MonitorInterval   time.Duration `json:"monitorInterval" mapstructure:"monitor_interval_ms"`
	UseDatabase       bool          `json:"useDatabase" mapstructure:"use_database"`
	UseAIAnalysis     bool          `json:"useAiAnalysis" mapstructure:"use_ai_analysis"`
	UseJito           bool          `json:"useJito" mapstructure:"use_jito"`
	SigningKeyPresent bool          `json:"-" mapstructure:"-"`
	BackoffBase       time.Duration `json:"backoffBase" mapstructure:"backoff_base"`
	BackoffMax        time.Duration `json:"backoffMax" mapstructure:"backoff_max"`
	LoopDrainTimeout  time.Duration `json:"loopDrainTimeout" mapstructure:"loop_drain_timeout"`
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Mode:             ModeSimulation,
		Platforms:        []Platform{PlatformPumpFun, PlatformBonkFun},
		ScanInterval:     5 * time.Second,
		MonitorInterval:  2 * time.Second,
		UseDatabase:      false,
		UseAIAnalysis:    true,
		UseJito:          false,
		BackoffBase:      5 * time.Second,
		BackoffMax:       60 * time.Second,
		LoopDrainTimeout: 5 * time.Second,
	}
}

// AgentConfig configures C3 (§6.6).
type AgentConfig struct {
	LearningRate     float64 `json:"learningRate" mapstructure:"learning_rate"`
	DiscountFactor   float64 `json:"discountFactor" mapstructure:"discount_factor"`
	ExplorationRate  float64 `json:"explorationRate" mapstructure:"exploration_rate"`
	MinExploration   float64 `json:"minExplorationRate" mapstructure:"min_exploration_rate"`
	ExplorationDecay float64 `json:"explorationDecay" mapstructure:"exploration_decay"`
}

// DefaultAgentConfig returns sensible defaults.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		LearningRate:     0.1,
		DiscountFactor:   0.95,
		ExplorationRate:  1.0,
		MinExploration:   0.05,
		ExplorationDecay: 0.995,
	}
}

// ProviderSpec declares one provider in C1's priority list (§6.6).
type ProviderSpec struct {
	Name        string       `json:"name" mapstructure:"name"`
	Tier        ProviderTier `json:"tier" mapstructure:"tier"`
	IsFree      bool         `json:"isFree" mapstructure:"is_free"`
	Credentials string       `json:"-" mapstructure:"credentials"`
	Model       string       `json:"model,omitempty" mapstructure:"model"`
}

// RiskLimits is the ambient safety net layered under the spec's per-position
// exit rules (never overriding I2/I3).
type RiskLimits struct {
	MaxDailyLoss         decimal.Decimal `json:"maxDailyLoss"`
	MaxConsecutiveLosses int             `json:"maxConsecutiveLosses"`
	CooldownPeriod       time.Duration   `json:"cooldownPeriod"`
}

// DefaultRiskLimits returns conservative defaults.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxDailyLoss:         decimal.NewFromInt(5),
		MaxConsecutiveLosses: 6,
		CooldownPeriod:       15 * time.Minute,
	}
}

// ServerConfig configures the ambient HTTP/WS status surface.
type ServerConfig struct {
	Host          string        `json:"host" mapstructure:"host"`
	Port          int           `json:"port" mapstructure:"port"`
	ReadTimeout   time.Duration `json:"readTimeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `json:"writeTimeout" mapstructure:"write_timeout"`
	EnableMetrics bool          `json:"enableMetrics" mapstructure:"enable_metrics"`
	JWTSigningKey string        `json:"-" mapstructure:"jwt_signing_key"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:          "localhost",
		Port:          8080,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		EnableMetrics: true,
	}
}
