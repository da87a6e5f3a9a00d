// Package config loads the satellite's single typed configuration object
// (spec §9 "Configuration" design note) from YAML plus environment
// overrides, and supports an atomic Reload so components can pick up a new
// snapshot on their next tick without a restart.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/brdgsat/satellite/pkg/errs"
	"gopkg.in/yaml.v2"
)

type atomicConfigPtr = atomic.Pointer[Config]

// ChainConfig describes one configured chain (spec §3 ChainConfig).
type ChainConfig struct {
	ID              string        `yaml:"id"`
	Name            string        `yaml:"name"`
	RPCEndpoint     string        `yaml:"rpc_endpoint"`
	GasToken        string        `yaml:"gas_token"`
	BlockTime       time.Duration `yaml:"block_time"`
	FinalityDepth   int           `yaml:"finality_depth"`
	NativeDecimals  int32         `yaml:"native_decimals"`
}

// BridgeConfig describes one configured bridge (spec §3 BridgeConfig).
type BridgeConfig struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	SupportedChains   []string `yaml:"supported_chains"`
	SupportedAssets   []string `yaml:"supported_assets"`
	FeeBase           float64  `yaml:"fee_base"`
	FeeVariable       float64  `yaml:"fee_variable"`
	PrivateSubmission bool     `yaml:"private_submission"`
}

// ArbitrageConfig is spec §6's `arbitrage` surface. EnabledChains is
// intentionally distinct from the top-level Chains list — per the spec's
// flagged open question, "enabled chains" for arbitrage is a subset of
// "configured chains", never conflated (see DESIGN.md open question #1).
type ArbitrageConfig struct {
	MinProfitThreshold     float64       `yaml:"min_profit_threshold"`
	MaxRiskScore           float64       `yaml:"max_risk_score"`
	MaxExecutionTime       time.Duration `yaml:"max_execution_time"`
	EnabledChains          []string      `yaml:"enabled_chains"`
	ReferenceTradeSizeUSD  float64       `yaml:"reference_trade_size_usd"`
}

// AlertThresholds is the risk sub-score alert configuration.
type AlertThresholds struct {
	Safety      float64 `yaml:"safety"`
	Liquidity   float64 `yaml:"liquidity"`
	Reliability float64 `yaml:"reliability"`
}

// RiskConfig is spec §6's `risk` surface.
type RiskConfig struct {
	UpdateInterval  time.Duration   `yaml:"update_interval"`
	AlertThresholds AlertThresholds `yaml:"alert_thresholds"`
}

// LiquidityConfig is spec §6's `liquidity` surface. The four concentration/
// exposure fields map one-to-one onto liquidity.Constraints (spec §4.10);
// they are independent knobs, not aliases of the utilization band.
type LiquidityConfig struct {
	RebalanceThreshold      float64            `yaml:"rebalance_threshold"`
	MinUtilization          float64            `yaml:"min_utilization"`
	MaxUtilization          float64            `yaml:"max_utilization"`
	MaxChainConcentration   float64            `yaml:"max_chain_concentration"`
	MaxAssetConcentration   float64            `yaml:"max_asset_concentration"`
	MinAssetLiquidityFrac   float64            `yaml:"min_asset_liquidity_frac"`
	MaxCrossBridgeExposure  float64            `yaml:"max_cross_bridge_exposure"`
	TargetDistribution      map[string]float64 `yaml:"target_distribution"`
}

// MonitoringConfig is spec §6's `monitoring` surface.
type MonitoringConfig struct {
	UpdateInterval    time.Duration `yaml:"update_interval"`
	AlertRetention    time.Duration `yaml:"alert_retention"`
	PerformanceWindow time.Duration `yaml:"performance_window"`
}

// ValidationConfig is spec §6's `validation` surface.
type ValidationConfig struct {
	MaxSlippageTolerance      float64       `yaml:"max_slippage_tolerance"`
	MinLiquidityUSD           float64       `yaml:"min_liquidity_usd"`
	MaxPriceAge               time.Duration `yaml:"max_price_age"`
	MEVProtectionThresholdUSD float64       `yaml:"mev_protection_threshold_usd"`
	SimulationGasBuffer       float64       `yaml:"simulation_gas_buffer"`
}

// SecurityConfig is spec §6's `security` surface.
type SecurityConfig struct {
	EnableAuditLogging          bool    `yaml:"enable_audit_logging"`
	RequireMultisig              bool    `yaml:"require_multisig"`
	MaxTransactionValueUSD       float64 `yaml:"max_transaction_value_usd"`
	SuspiciousActivityThreshold float64 `yaml:"suspicious_activity_threshold"`
}

// LoggingConfig configures pkg/logx.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// RedisConfig configures the optional shared-cache layer.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuditLogConfig configures pkg/auditlog sinks.
type AuditLogConfig struct {
	FilePath     string   `yaml:"file_path"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// Coordinator mirrors the concurrency ceiling and queue depth from spec
// §4.12/§5.
type CoordinatorConfig struct {
	MaxConcurrentTransactions int `yaml:"max_concurrent_transactions"`
	QueueCapacity             int `yaml:"queue_capacity"`
}

// MetricsConfig configures the Prometheus exposition endpoint pkg/metrics
// registers its collectors against.
type MetricsConfig struct {
	Port int `yaml:"port"`
}

// SyncConfig configures CrossChainSynchronizer's polling cadence and
// consensus thresholds (spec §4.13).
type SyncConfig struct {
	Interval              time.Duration `yaml:"interval"`
	MinChainsForOperation int           `yaml:"min_chains_for_operation"`
	MinConsensusThreshold float64       `yaml:"min_consensus_threshold"`
}

// Config is the single typed configuration object every component reads
// from. Components re-read it on their next tick after Reload swaps the
// active pointer (spec §9).
type Config struct {
	Chains       []ChainConfig     `yaml:"chains"`
	Bridges      []BridgeConfig    `yaml:"bridges"`
	Arbitrage    ArbitrageConfig   `yaml:"arbitrage"`
	Risk         RiskConfig        `yaml:"risk"`
	Liquidity    LiquidityConfig   `yaml:"liquidity"`
	Monitoring   MonitoringConfig  `yaml:"monitoring"`
	Validation   ValidationConfig  `yaml:"validation"`
	Security     SecurityConfig    `yaml:"security"`
	Coordinator  CoordinatorConfig `yaml:"coordinator"`
	Logging      LoggingConfig     `yaml:"logging"`
	Redis        RedisConfig       `yaml:"redis"`
	AuditLog     AuditLogConfig    `yaml:"audit_log"`
	Metrics      MetricsConfig     `yaml:"metrics"`
	Sync         SyncConfig        `yaml:"sync"`
}

// Default returns a Config populated with the spec's §6 defaults.
func Default() *Config {
	return &Config{
		Arbitrage: ArbitrageConfig{
			MinProfitThreshold:    0.001,
			MaxRiskScore:          70,
			MaxExecutionTime:      300 * time.Second,
			ReferenceTradeSizeUSD: 100_000,
		},
		Risk: RiskConfig{
			UpdateInterval: 60 * time.Second,
			AlertThresholds: AlertThresholds{
				Safety:      80,
				Liquidity:   70,
				Reliability: 85,
			},
		},
		Liquidity: LiquidityConfig{
			RebalanceThreshold:     0.1,
			MinUtilization:        0.1,
			MaxUtilization:        0.8,
			MaxChainConcentration:  0.6,
			MaxAssetConcentration:  0.7,
			MinAssetLiquidityFrac:  0.05,
			MaxCrossBridgeExposure: 0.5,
		},
		Monitoring: MonitoringConfig{
			UpdateInterval:    30 * time.Second,
			AlertRetention:    time.Hour,
			PerformanceWindow: 5 * time.Minute,
		},
		Validation: ValidationConfig{
			MaxSlippageTolerance:      0.02,
			MinLiquidityUSD:           100_000,
			MaxPriceAge:               30 * time.Second,
			MEVProtectionThresholdUSD: 100,
			SimulationGasBuffer:       1.2,
		},
		Security: SecurityConfig{
			EnableAuditLogging:          true,
			RequireMultisig:             true,
			MaxTransactionValueUSD:      10_000_000,
			SuspiciousActivityThreshold: 0.1,
		},
		Coordinator: CoordinatorConfig{
			MaxConcurrentTransactions: 3,
			QueueCapacity:             64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
		Sync: SyncConfig{
			Interval:              30 * time.Second,
			MinChainsForOperation: 2,
			MinConsensusThreshold: 0.67,
		},
	}
}

// Load reads a YAML file at path onto the defaults and applies any
// SATELLITE_-prefixed environment overrides (only the handful of scalar
// knobs that operators commonly tune at deploy time).
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SATELLITE_ARBITRAGE_MIN_PROFIT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Arbitrage.MinProfitThreshold = f
		}
	}
	if v := os.Getenv("SATELLITE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SATELLITE_ARBITRAGE_ENABLED_CHAINS"); v != "" {
		cfg.Arbitrage.EnabledChains = strings.Split(v, ",")
	}
}

// Validate checks the invariants the spec assumes configuration upholds,
// most importantly that enabled_chains ⊆ configured chains (DESIGN.md open
// question #1).
func Validate(cfg *Config) error {
	configured := make(map[string]bool, len(cfg.Chains))
	for _, c := range cfg.Chains {
		configured[c.ID] = true
	}
	for _, id := range cfg.Arbitrage.EnabledChains {
		if !configured[id] {
			return errs.New(errs.ConfigInvalid, fmt.Sprintf("enabled chain %q is not in the configured chain set", id))
		}
	}
	if cfg.Liquidity.MinUtilization > cfg.Liquidity.MaxUtilization {
		return errs.New(errs.ConfigInvalid, "liquidity.min_utilization > liquidity.max_utilization")
	}
	if cfg.Coordinator.MaxConcurrentTransactions <= 0 {
		return errs.New(errs.ConfigInvalid, "coordinator.max_concurrent_transactions must be positive")
	}
	return nil
}

// Store holds the active Config behind an atomically-swapped pointer so
// Reload never races readers (spec §9).
type Store struct {
	active atomicConfigPtr
}

// NewStore wraps an initial Config in a Store.
func NewStore(initial *Config) *Store {
	s := &Store{}
	s.active.Store(initial)
	return s
}

// Get returns the currently active Config snapshot.
func (s *Store) Get() *Config {
	return s.active.Load()
}

// Reload atomically swaps in a new Config snapshot after validating it.
func (s *Store) Reload(next *Config) error {
	if err := Validate(next); err != nil {
		return err
	}
	s.active.Store(next)
	return nil
}
