package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	StrategyConfig StrategyConfig `json:"strategy"`
	FeedConfig     FeedConfig     `json:"feed"`
	BusConfig      BusConfig      `json:"bus"`
	DatabaseConfig DatabaseConfig `json:"database"`
	SnapshotConfig SnapshotConfig `json:"snapshot"`
	ServerConfig   ServerConfig   `json:"server"`
	LoggingConfig  LoggingConfig  `json:"logging"`
}

// StrategyConfig holds the strategy parameters. Immutable for a run.
type StrategyConfig struct {
	Symbols              []string `json:"symbols"`
	MAPeriod             int      `json:"ma_period"`              // candles included in MA (default 100)
	CandlePeriodSec      int      `json:"candle_period"`          // seconds per candle (default 60)
	MomentumWindow       int      `json:"momentum_window"`        // candles for momentum (default 3)
	MomentumThreshold    float64  `json:"momentum_threshold"`     // absolute mom3 threshold
	MAThresholdEff       float64  `json:"ma_thr_eff"`             // MA deviation threshold
	MaxLots              int      `json:"max_lots"`               // cap on book size (default 4)
	InitWindowSec        int      `json:"init_window"`            // INIT2/INIT3 eligibility (default 900)
	ScaleInCooldownSec   int      `json:"scale_in_cooldown"`      // default 1800
	ScaleOutCooldownSec  int      `json:"scaleout_cooldown"`
	NearTouchWindowSec   int      `json:"near_touch_window_sec"`
	NearTouchEps         float64  `json:"near_touch_eps"`         // fractional MA proximity
	RiskControlThreshold float64  `json:"risk_control_threshold"` // favourable-gap fraction (default 0.003)
	IntentPendingSec     int      `json:"intent_pending_timeout"` // default 60
	LotSize              float64  `json:"lot_size"`               // size per entry order
}

// FeedConfig holds the market-data feed connection settings
type FeedConfig struct {
	URL              string `json:"url"`
	ReconnectMaxSec  int    `json:"reconnect_max_sec"`
	ReadTimeoutSec   int    `json:"read_timeout_sec"`
}

// BusConfig holds the Redis signal-bus settings
type BusConfig struct {
	Address          string `json:"address"`
	Password         string `json:"password"`
	DB               int    `json:"db"`
	PoolSize         int    `json:"pool_size"`
	StreamPrefix     string `json:"stream_prefix"`      // e.g. "meanrev"
	Group            string `json:"group"`              // executor consumer group
	Consumer         string `json:"consumer"`           // consumer name within the group
	DedupeWindowSec  int    `json:"dedupe_window_sec"`  // default 300
	ClaimIntervalSec int    `json:"claim_interval_sec"` // default 30
	BlockSec         int    `json:"block_sec"`          // consumer read block
	RetentionDays    int    `json:"retention_days"`     // stream trim horizon
}

// DatabaseConfig holds the optional Postgres trade-history settings
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// SnapshotConfig controls periodic state snapshots
type SnapshotConfig struct {
	IntervalSec int `json:"interval_sec"`
}

// ServerConfig holds the ops HTTP server configuration
type ServerConfig struct {
	Port           int    `json:"port"`
	Host           string `json:"host"`
	AllowedOrigins string `json:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // DEBUG, INFO, WARN, ERROR
	Output string `json:"output"` // stdout, stderr, or file path
}

// ClaimIdleThreshold is the idle time after which a pending entry may be
// re-claimed by another consumer (2x the claim interval).
func (b BusConfig) ClaimIdleThreshold() time.Duration {
	return 2 * time.Duration(b.ClaimIntervalSec) * time.Second
}

func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	s := &cfg.StrategyConfig
	if s.MAPeriod == 0 {
		s.MAPeriod = 100
	}
	if s.CandlePeriodSec == 0 {
		s.CandlePeriodSec = 60
	}
	if s.MomentumWindow == 0 {
		s.MomentumWindow = 3
	}
	if s.MaxLots == 0 {
		s.MaxLots = 4
	}
	if s.InitWindowSec == 0 {
		s.InitWindowSec = 900
	}
	if s.ScaleInCooldownSec == 0 {
		s.ScaleInCooldownSec = 1800
	}
	if s.ScaleOutCooldownSec == 0 {
		s.ScaleOutCooldownSec = 1800
	}
	if s.NearTouchWindowSec == 0 {
		s.NearTouchWindowSec = 3600
	}
	if s.RiskControlThreshold == 0 {
		s.RiskControlThreshold = 0.003
	}
	if s.IntentPendingSec == 0 {
		s.IntentPendingSec = 60
	}
	if s.LotSize == 0 {
		s.LotSize = 1.0
	}

	f := &cfg.FeedConfig
	if f.ReconnectMaxSec == 0 {
		f.ReconnectMaxSec = 30
	}
	if f.ReadTimeoutSec == 0 {
		f.ReadTimeoutSec = 60
	}

	b := &cfg.BusConfig
	if b.StreamPrefix == "" {
		b.StreamPrefix = "meanrev"
	}
	if b.Group == "" {
		b.Group = "executors"
	}
	if b.DedupeWindowSec == 0 {
		b.DedupeWindowSec = 300
	}
	if b.ClaimIntervalSec == 0 {
		b.ClaimIntervalSec = 30
	}
	if b.BlockSec == 0 {
		b.BlockSec = 5
	}
	if b.RetentionDays == 0 {
		b.RetentionDays = 10
	}

	if cfg.SnapshotConfig.IntervalSec == 0 {
		cfg.SnapshotConfig.IntervalSec = 60
	}
}

func applyEnvOverrides(cfg *Config) {
	if syms := getEnvOrDefault("STRATEGY_SYMBOLS", ""); syms != "" {
		cfg.StrategyConfig.Symbols = splitSymbols(syms)
	}
	cfg.StrategyConfig.MAPeriod = getEnvIntOrDefault("STRATEGY_MA_PERIOD", cfg.StrategyConfig.MAPeriod)
	cfg.StrategyConfig.CandlePeriodSec = getEnvIntOrDefault("STRATEGY_CANDLE_PERIOD", cfg.StrategyConfig.CandlePeriodSec)
	cfg.StrategyConfig.MomentumWindow = getEnvIntOrDefault("STRATEGY_MOMENTUM_WINDOW", cfg.StrategyConfig.MomentumWindow)
	cfg.StrategyConfig.MomentumThreshold = getEnvFloatOrDefault("STRATEGY_MOMENTUM_THRESHOLD", cfg.StrategyConfig.MomentumThreshold)
	cfg.StrategyConfig.MAThresholdEff = getEnvFloatOrDefault("STRATEGY_MA_THR_EFF", cfg.StrategyConfig.MAThresholdEff)
	cfg.StrategyConfig.MaxLots = getEnvIntOrDefault("STRATEGY_MAX_LOTS", cfg.StrategyConfig.MaxLots)
	cfg.StrategyConfig.InitWindowSec = getEnvIntOrDefault("STRATEGY_INIT_WINDOW", cfg.StrategyConfig.InitWindowSec)
	cfg.StrategyConfig.ScaleInCooldownSec = getEnvIntOrDefault("STRATEGY_SCALE_IN_COOLDOWN", cfg.StrategyConfig.ScaleInCooldownSec)
	cfg.StrategyConfig.ScaleOutCooldownSec = getEnvIntOrDefault("STRATEGY_SCALEOUT_COOLDOWN", cfg.StrategyConfig.ScaleOutCooldownSec)
	cfg.StrategyConfig.NearTouchWindowSec = getEnvIntOrDefault("STRATEGY_NEAR_TOUCH_WINDOW_SEC", cfg.StrategyConfig.NearTouchWindowSec)
	cfg.StrategyConfig.NearTouchEps = getEnvFloatOrDefault("STRATEGY_NEAR_TOUCH_EPS", cfg.StrategyConfig.NearTouchEps)
	cfg.StrategyConfig.RiskControlThreshold = getEnvFloatOrDefault("STRATEGY_RISK_CONTROL_THRESHOLD", cfg.StrategyConfig.RiskControlThreshold)
	cfg.StrategyConfig.IntentPendingSec = getEnvIntOrDefault("STRATEGY_INTENT_PENDING_TIMEOUT", cfg.StrategyConfig.IntentPendingSec)
	cfg.StrategyConfig.LotSize = getEnvFloatOrDefault("STRATEGY_LOT_SIZE", cfg.StrategyConfig.LotSize)

	cfg.FeedConfig.URL = getEnvOrDefault("FEED_URL", cfg.FeedConfig.URL)
	cfg.FeedConfig.ReconnectMaxSec = getEnvIntOrDefault("FEED_RECONNECT_MAX_SEC", cfg.FeedConfig.ReconnectMaxSec)
	cfg.FeedConfig.ReadTimeoutSec = getEnvIntOrDefault("FEED_READ_TIMEOUT_SEC", cfg.FeedConfig.ReadTimeoutSec)

	cfg.BusConfig.Address = getEnvOrDefault("REDIS_ADDRESS", defaultString(cfg.BusConfig.Address, "localhost:6379"))
	cfg.BusConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.BusConfig.Password)
	cfg.BusConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.BusConfig.DB)
	cfg.BusConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.BusConfig.PoolSize, 10))
	cfg.BusConfig.StreamPrefix = getEnvOrDefault("BUS_STREAM_PREFIX", cfg.BusConfig.StreamPrefix)
	cfg.BusConfig.Group = getEnvOrDefault("BUS_GROUP", cfg.BusConfig.Group)
	cfg.BusConfig.Consumer = getEnvOrDefault("BUS_CONSUMER", defaultString(cfg.BusConfig.Consumer, hostnameConsumer()))
	cfg.BusConfig.DedupeWindowSec = getEnvIntOrDefault("BUS_DEDUPE_WINDOW_SEC", cfg.BusConfig.DedupeWindowSec)
	cfg.BusConfig.ClaimIntervalSec = getEnvIntOrDefault("BUS_CLAIM_INTERVAL_SEC", cfg.BusConfig.ClaimIntervalSec)
	cfg.BusConfig.RetentionDays = getEnvIntOrDefault("BUS_RETENTION_DAYS", cfg.BusConfig.RetentionDays)

	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DB_ENABLED", boolString(cfg.DatabaseConfig.Enabled)) == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultString(cfg.DatabaseConfig.SSLMode, "disable"))

	cfg.SnapshotConfig.IntervalSec = getEnvIntOrDefault("SNAPSHOT_INTERVAL_SEC", cfg.SnapshotConfig.IntervalSec)

	cfg.ServerConfig.Port = getEnvIntOrDefault("OPS_PORT", defaultInt(cfg.ServerConfig.Port, 8090))
	cfg.ServerConfig.Host = getEnvOrDefault("OPS_HOST", defaultString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("OPS_ALLOWED_ORIGINS", defaultString(cfg.ServerConfig.AllowedOrigins, "*"))

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultString(cfg.LoggingConfig.Output, "stdout"))
}

// Validate enforces startup invariants. A failure here aborts the process.
func (c *Config) Validate() error {
	s := c.StrategyConfig
	if len(s.Symbols) == 0 {
		return fmt.Errorf("config: at least one symbol is required")
	}
	if s.MAPeriod <= 0 {
		return fmt.Errorf("config: ma_period must be positive, got %d", s.MAPeriod)
	}
	if s.CandlePeriodSec <= 0 {
		return fmt.Errorf("config: candle_period must be positive, got %d", s.CandlePeriodSec)
	}
	if s.MomentumWindow <= 0 {
		return fmt.Errorf("config: momentum_window must be positive, got %d", s.MomentumWindow)
	}
	if s.MAThresholdEff <= 0 {
		return fmt.Errorf("config: ma_thr_eff must be positive, got %v", s.MAThresholdEff)
	}
	if s.MomentumThreshold <= 0 {
		return fmt.Errorf("config: momentum_threshold must be positive, got %v", s.MomentumThreshold)
	}
	if s.MaxLots <= 0 {
		return fmt.Errorf("config: max_lots must be positive, got %d", s.MaxLots)
	}
	if s.NearTouchEps < 0 {
		return fmt.Errorf("config: near_touch_eps must not be negative, got %v", s.NearTouchEps)
	}
	if c.BusConfig.Address == "" {
		return fmt.Errorf("config: redis address is required")
	}
	if c.BusConfig.Group == "" {
		return fmt.Errorf("config: consumer group name is required")
	}
	return nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func splitSymbols(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}

func hostnameConsumer() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "executor-1"
	}
	return host
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
