package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Logger     Logger     `mapstructure:"logger" json:"logger"`
	Server     Server     `mapstructure:"server" json:"server"`
	Database   Database   `mapstructure:"database" json:"database"`
	MarketData MarketData `mapstructure:"market_data" json:"market_data"`
	Universe   Universe   `mapstructure:"universe" json:"universe"`
	Scanner    Scanner    `mapstructure:"scanner" json:"scanner"`
	Trading    Trading    `mapstructure:"trading" json:"trading"`
	Broadcast  Broadcast  `mapstructure:"broadcast" json:"broadcast"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level" json:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" json:"format" default:"console" validate:"oneof=json console"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port" json:"port" default:"8080" validate:"min=1,max=65535"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn" json:"dsn" default:"signals.db" validate:"required"`
}

// MarketData configures where quotes and per-symbol snapshots come from.
type MarketData struct {
	Provider       string        `mapstructure:"provider" json:"provider" default:"simulated" validate:"oneof=simulated rest"`
	BaseURL        string        `mapstructure:"base_url" json:"base_url" validate:"required_if=Provider rest"`
	ApiKey         string        `mapstructure:"api_key" json:"-"`
	RateLimit      float64       `mapstructure:"rate_limit" json:"rate_limit" default:"10" validate:"gt=0"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst" json:"rate_limit_burst" default:"5" validate:"min=1"`
	Timeout        time.Duration `mapstructure:"timeout" json:"timeout" default:"10s" validate:"min=1ms"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl" json:"cache_ttl" default:"30s"`
}

// Universe describes the candidate symbol set scanned each cycle.
type Universe struct {
	Symbols []string `mapstructure:"symbols" json:"symbols"`
	Size    int      `mapstructure:"size" json:"size" default:"500" validate:"min=1,max=5000"`
}

// Tiers holds the confidence thresholds for each signal tier.
type Tiers struct {
	Platinum float64 `mapstructure:"platinum" json:"platinum" default:"90" validate:"lte=100"`
	Gold     float64 `mapstructure:"gold" json:"gold" default:"75" validate:"ltfield=Platinum"`
	Silver   float64 `mapstructure:"silver" json:"silver" default:"60" validate:"ltfield=Gold"`
	Bronze   float64 `mapstructure:"bronze" json:"bronze" default:"45" validate:"gte=0,ltfield=Silver"`
}

// MarketSessions selects which sessions the scheduled loop is allowed to scan in.
type MarketSessions struct {
	Premarket  bool `mapstructure:"premarket" json:"premarket"`
	Regular    bool `mapstructure:"regular" json:"regular"`
	Afterhours bool `mapstructure:"afterhours" json:"afterhours"`
}

// Cooldown policies.
const (
	CooldownStrict   = "strict"
	CooldownOverride = "override"
)

// Scanner holds the configuration for scan cycles and signal scoring.
type Scanner struct {
	Interval       time.Duration      `mapstructure:"interval" json:"interval" default:"60s" validate:"min=1s"`
	Workers        int                `mapstructure:"workers" json:"workers" default:"10" validate:"min=1,max=256"`
	FetchTimeout   time.Duration      `mapstructure:"fetch_timeout" json:"fetch_timeout" default:"5s" validate:"min=1ms"`
	Cooldown       time.Duration      `mapstructure:"cooldown" json:"cooldown" default:"30m"`
	CooldownPolicy string             `mapstructure:"cooldown_policy" json:"cooldown_policy" default:"strict" validate:"oneof=strict override"`
	OverrideDelta  float64            `mapstructure:"override_delta" json:"override_delta" default:"10" validate:"gte=0,lte=100"`
	SignalTTL      time.Duration      `mapstructure:"signal_ttl" json:"signal_ttl" default:"4h"`
	Tiers          Tiers              `mapstructure:"tiers" json:"tiers"`
	MarketSessions MarketSessions     `mapstructure:"market_sessions" json:"market_sessions"`
	ModuleWeights  map[string]float64 `mapstructure:"module_weights" json:"module_weights" validate:"dive,gte=0"`
	ModuleEnabled  map[string]bool    `mapstructure:"module_enabled" json:"module_enabled"`
}

// CooldownTTL is the suppression window for repeated signals on one symbol.
// It is never shorter than a single scan interval.
func (s Scanner) CooldownTTL() time.Duration {
	if s.Cooldown < s.Interval {
		return s.Interval
	}
	return s.Cooldown
}

// Trading holds the configuration for the paper broker and position sizing.
type Trading struct {
	MinConfidence       float64       `mapstructure:"min_confidence" json:"min_confidence" default:"60" validate:"gte=0,lte=100"`
	MaxPositions        int           `mapstructure:"max_positions" json:"max_positions" default:"10" validate:"min=1,max=50"`
	DefaultPositionSize float64       `mapstructure:"default_position_size" json:"default_position_size" default:"1000" validate:"gt=0"`
	MaxPositionSize     float64       `mapstructure:"max_position_size" json:"max_position_size" default:"5000" validate:"gtefield=DefaultPositionSize"`
	RiskPerTrade        float64       `mapstructure:"risk_per_trade" json:"risk_per_trade" default:"0.02" validate:"gt=0,lte=1"`
	InitialCapital      float64       `mapstructure:"initial_capital" json:"initial_capital" default:"100000" validate:"gt=0"`
	SlippageBps         float64       `mapstructure:"slippage_bps" json:"slippage_bps" validate:"gte=0,lte=1000"`
	StopLossPct         float64       `mapstructure:"stop_loss_pct" json:"stop_loss_pct" default:"0.05" validate:"gt=0,lt=1"`
	TakeProfitPct       float64       `mapstructure:"take_profit_pct" json:"take_profit_pct" default:"0.15" validate:"gt=0"`
	TrailingStopPct     float64       `mapstructure:"trailing_stop_pct" json:"trailing_stop_pct" validate:"gte=0,lt=1"`
	AutoTrade           bool          `mapstructure:"auto_trade" json:"auto_trade"`
	MonitorInterval     time.Duration `mapstructure:"monitor_interval" json:"monitor_interval" default:"15s" validate:"min=1s"`
}

// Broadcast holds the configuration for the real-time event hub.
type Broadcast struct {
	Heartbeat time.Duration `mapstructure:"heartbeat" json:"heartbeat" default:"30s" validate:"min=1ms"`
	QueueSize int           `mapstructure:"queue_size" json:"queue_size" default:"64" validate:"min=1"`
}

// DefaultUniverse is scanned when no symbols are configured.
var DefaultUniverse = []string{
	"AAPL", "TSLA", "NVDA", "AMD", "MSFT", "GME", "AMC", "SPY",
	"QQQ", "AMZN", "META", "GOOGL", "NFLX", "ROKU", "PLTR",
}

// Default returns a fully populated, valid configuration.
func Default() Config {
	cfg := Config{
		Scanner: Scanner{
			MarketSessions: MarketSessions{Premarket: true, Regular: true},
		},
		Trading: Trading{SlippageBps: 10},
	}
	if err := defaults.Set(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	applyDefaults(&cfg)
	return cfg
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and environment are used instead.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Zero is a meaningful value for these, so they are not covered by struct tags.
	v.SetDefault("trading.slippage_bps", 10)
	v.SetDefault("trading.trailing_stop_pct", 0)
	v.SetDefault("trading.auto_trade", false)
	v.SetDefault("scanner.market_sessions.premarket", true)
	v.SetDefault("scanner.market_sessions.regular", true)
	v.SetDefault("scanner.market_sessions.afterhours", false)

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := defaults.Set(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if len(cfg.Universe.Symbols) == 0 {
		cfg.Universe.Symbols = append([]string(nil), DefaultUniverse...)
	}
	for i, s := range cfg.Universe.Symbols {
		cfg.Universe.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	if cfg.Scanner.ModuleWeights == nil {
		cfg.Scanner.ModuleWeights = map[string]float64{}
	}
	if cfg.Scanner.ModuleEnabled == nil {
		cfg.Scanner.ModuleEnabled = map[string]bool{}
	}
}

// Clone returns a deep copy so callers can mutate maps and slices freely.
func (c Config) Clone() Config {
	out := c
	out.Universe.Symbols = append([]string(nil), c.Universe.Symbols...)
	out.Scanner.ModuleWeights = make(map[string]float64, len(c.Scanner.ModuleWeights))
	for k, v := range c.Scanner.ModuleWeights {
		out.Scanner.ModuleWeights[k] = v
	}
	out.Scanner.ModuleEnabled = make(map[string]bool, len(c.Scanner.ModuleEnabled))
	for k, v := range c.Scanner.ModuleEnabled {
		out.Scanner.ModuleEnabled[k] = v
	}
	return out
}
