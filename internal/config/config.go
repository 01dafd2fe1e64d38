package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"skinarb/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig          `mapstructure:"app"`
	Logging     logging.Config     `mapstructure:"logging"`
	Database    DatabaseConfig     `mapstructure:"database"`
	Collector   CollectorConfig    `mapstructure:"collector"`
	Buff        BuffConfig         `mapstructure:"buff"`
	CSGOMarket  CatalogConfig      `mapstructure:"csgomarket"`
	Skinport    CatalogConfig      `mapstructure:"skinport"`
	FX          FXConfig           `mapstructure:"fx"`
	Cache       CacheConfig        `mapstructure:"cache"`
	Alerts      LoopConfig         `mapstructure:"alerts"`
	Portfolio   LoopConfig         `mapstructure:"portfolio"`
	Credentials CredentialsConfig  `mapstructure:"credentials"`
	Fees        map[string]float64 `mapstructure:"fees"`
	Telegram    TelegramConfig     `mapstructure:"telegram"`
	Export      ExportConfig       `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CollectorConfig governs the price collection cycle.
type CollectorConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	AlignToBucket    bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey  int64         `mapstructure:"advisory_lock_key"`
	StartupDelay     time.Duration `mapstructure:"startup_delay"`
	MaxPages         int           `mapstructure:"max_pages"`
	PageDelay        time.Duration `mapstructure:"page_delay"`
	ThrottleCooldown time.Duration `mapstructure:"throttle_cooldown"`
}

// BuffConfig covers the authenticated Buff.163 source.
type BuffConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Category       string        `mapstructure:"category"`
	PageSize       int           `mapstructure:"page_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// CatalogConfig covers an unauthenticated bulk catalog source.
type CatalogConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// FXConfig covers the CNY/USD reference rate source.
type FXConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	TTL            time.Duration `mapstructure:"ttl"`
	FallbackRate   float64       `mapstructure:"fallback_rate"`
}

// CacheConfig governs bulk source cache freshness.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// LoopConfig parameterises a plain evaluation loop.
type LoopConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// CredentialsConfig governs the session freshness monitor.
type CredentialsConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	MaxAgeDays int           `mapstructure:"max_age_days"`
}

// TelegramConfig 描述 Telegram 通知参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SKINARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "skinarb")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("collector.interval", "5m")
	v.SetDefault("collector.align_to_bucket", true)
	v.SetDefault("collector.advisory_lock_key", int64(0x736b6172))
	v.SetDefault("collector.startup_delay", "0s")
	v.SetDefault("collector.max_pages", 4)
	v.SetDefault("collector.page_delay", "2s")
	v.SetDefault("collector.throttle_cooldown", "60s")

	v.SetDefault("buff.base_url", "https://buff.163.com")
	v.SetDefault("buff.category", "knife")
	v.SetDefault("buff.page_size", 50)
	v.SetDefault("buff.request_timeout", "15s")
	v.SetDefault("buff.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	v.SetDefault("csgomarket.base_url", "https://market.csgo.com")
	v.SetDefault("csgomarket.request_timeout", "20s")

	v.SetDefault("skinport.base_url", "https://api.skinport.com")
	v.SetDefault("skinport.request_timeout", "30s")

	v.SetDefault("fx.base_url", "https://open.er-api.com/v6/latest/CNY")
	v.SetDefault("fx.request_timeout", "10s")
	v.SetDefault("fx.ttl", "1h")
	v.SetDefault("fx.fallback_rate", 0.138)

	v.SetDefault("cache.ttl", "5m")

	v.SetDefault("alerts.interval", "1m")
	v.SetDefault("portfolio.interval", "1h")

	v.SetDefault("credentials.interval", "24h")
	v.SetDefault("credentials.max_age_days", 10)

	v.SetDefault("fees", map[string]float64{
		"cgm":      0.07,
		"skinport": 0.12,
		"steam":    0.15,
		"csfloat":  0.02,
	})

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Collector.Interval <= 0 {
		return fmt.Errorf("collector.interval must be greater than zero")
	}
	if c.Collector.MaxPages <= 0 {
		return fmt.Errorf("collector.max_pages must be greater than zero")
	}
	if c.Alerts.Interval <= 0 {
		return fmt.Errorf("alerts.interval must be greater than zero")
	}
	if c.Portfolio.Interval <= 0 {
		return fmt.Errorf("portfolio.interval must be greater than zero")
	}
	if c.Credentials.Interval <= 0 {
		return fmt.Errorf("credentials.interval must be greater than zero")
	}
	if c.Credentials.MaxAgeDays <= 0 {
		return fmt.Errorf("credentials.max_age_days must be greater than zero")
	}
	if c.FX.FallbackRate <= 0 {
		return fmt.Errorf("fx.fallback_rate must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	for market, fee := range c.Fees {
		if fee < 0 || fee >= 1 {
			return fmt.Errorf("fees.%s must be within [0, 1)", market)
		}
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token 必须配置")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
