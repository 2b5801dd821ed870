package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the application configuration, assembled from the environment.
type Config struct {
	Exchange   ExchangeConfig   `envconfig:"EXCHANGE"`
	Database   DatabaseConfig   `envconfig:"DATABASE"`
	ClickHouse ClickHouseConfig `envconfig:"CLICKHOUSE"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	Telegram   TelegramConfig   `envconfig:"TELEGRAM"`
	Logging    LoggingConfig    `envconfig:"LOGGING"`
	Health     HealthConfig     `envconfig:"HEALTH"`
	Pipeline   PipelineConfig   `envconfig:"PIPELINE"`
	Portfolio  PortfolioConfig  `envconfig:"PORTFOLIO"`
	Regime     RegimeConfig     `envconfig:"REGIME"`
}

// ExchangeConfig is the exchange REST client's connection parameters.
type ExchangeConfig struct {
	BaseURL           string        `envconfig:"BASE_URL" default:"https://api.binance.com"`
	MinVolumeUSDT     float64       `envconfig:"MIN_VOLUME_USDT" default:"1000000"`
	RequestsPerSecond float64       `envconfig:"REQUESTS_PER_SECOND" default:"10"`
	MaxRetries        int           `envconfig:"MAX_RETRIES" default:"3"`
	Timeout           time.Duration `envconfig:"TIMEOUT" default:"10s"`
}

// PipelineConfig drives C6's per-timeframe scheduling cadences.
type PipelineConfig struct {
	Cadence15m time.Duration `envconfig:"CADENCE_15M" default:"5m"`
	Cadence30m time.Duration `envconfig:"CADENCE_30M" default:"10m"`
	Cadence1h  time.Duration `envconfig:"CADENCE_1H" default:"15m"`
	Cadence4h  time.Duration `envconfig:"CADENCE_4H" default:"1h"`
	Cadence1d  time.Duration `envconfig:"CADENCE_1D" default:"4h"`
	Cadence1w  time.Duration `envconfig:"CADENCE_1W" default:"24h"`
	LockTTL    time.Duration `envconfig:"LOCK_TTL" default:"2m"`
}

// PortfolioConfig carries the C8 invariant bounds (spec §6).
type PortfolioConfig struct {
	TradingFeePct          float64 `envconfig:"TRADING_FEE_PCT" default:"0.001"`
	MaxPositionSizePct     float64 `envconfig:"MAX_POSITION_SIZE_PCT" default:"0.25"`
	MaxConcurrentPositions int     `envconfig:"MAX_CONCURRENT_POSITIONS" default:"5"`
	DrawdownAlertPct       float64 `envconfig:"DRAWDOWN_ALERT_PCT" default:"20"`
}

// RegimeConfig carries C7's classification thresholds (spec §6).
type RegimeConfig struct {
	BandwidthThreshold float64 `envconfig:"BANDWIDTH_THRESHOLD" default:"10"`
	ADXThreshold        float64 `envconfig:"ADX_THRESHOLD" default:"25"`
	BullScoreThreshold  float64 `envconfig:"BULL_SCORE_THRESHOLD" default:"0.60"`
	BearScoreThreshold  float64 `envconfig:"BEAR_SCORE_THRESHOLD" default:"0.40"`
}

// DatabaseConfig is the Postgres connection.
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Name     string `envconfig:"DB_NAME" default:"pulsetrader"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" required:"false" default:""`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
}

// GetDSN returns the libpq connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// ClickHouseConfig is the candle/indicator-archive connection.
type ClickHouseConfig struct {
	Host     string `envconfig:"CH_HOST" default:"localhost"`
	Database string `envconfig:"CH_DATABASE" default:"pulsetrader"`
	User     string `envconfig:"CH_USER" default:"default"`
	Password string `envconfig:"CH_PASSWORD" default:""`
	Port     int    `envconfig:"CH_PORT" default:"9000"`
	Enabled  bool   `envconfig:"CH_ENABLED" default:"false"`
}

// GetDSN returns the ClickHouse connection string.
func (c *ClickHouseConfig) GetDSN() string {
	return fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig is the per-timeframe advisory lock's backing store.
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Password string `envconfig:"REDIS_PASSWORD" required:"false" default:""`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// TelegramConfig is the outbound Telegram notifier's credentials.
type TelegramConfig struct {
	BotToken      string `envconfig:"TELEGRAM_BOT_TOKEN" required:"false"`
	AlertOnTrades bool   `envconfig:"TELEGRAM_ALERT_ON_TRADES" default:"true"`
	AlertOnErrors bool   `envconfig:"TELEGRAM_ALERT_ON_ERRORS" default:"true"`
	AdminChatID   int64  `envconfig:"TELEGRAM_ADMIN_CHAT_ID" default:"0"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE" default:"logs/pulsetrader.log"`
}

// HealthConfig is the health-check HTTP server's bind port.
type HealthConfig struct {
	Port string `envconfig:"HEALTH_PORT" default:"8080"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate enforces the numeric bounds spec §6 requires of the core.
func (c *Config) Validate() error {
	if c.Exchange.MinVolumeUSDT <= 0 {
		return fmt.Errorf("exchange min_volume_usdt must be positive")
	}
	if c.Portfolio.TradingFeePct < 0 || c.Portfolio.TradingFeePct > 1 {
		return fmt.Errorf("portfolio trading_fee_pct must be between 0 and 1")
	}
	if c.Portfolio.MaxPositionSizePct <= 0 || c.Portfolio.MaxPositionSizePct > 1 {
		return fmt.Errorf("portfolio max_position_size_pct must be between 0 and 1")
	}
	if c.Portfolio.MaxConcurrentPositions < 1 {
		return fmt.Errorf("portfolio max_concurrent_positions must be at least 1")
	}
	if c.Regime.ADXThreshold <= 0 {
		return fmt.Errorf("regime adx_threshold must be positive")
	}
	if c.Regime.BullScoreThreshold <= c.Regime.BearScoreThreshold {
		return fmt.Errorf("regime bull_score_threshold must exceed bear_score_threshold")
	}
	return nil
}
