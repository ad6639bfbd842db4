package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"token-alerts/internal/logging"
)

const (
	envPrefix = "TOKENALERTS"

	// DevModeEnv is the only way to enable dev mode. It is never read from a config file.
	DevModeEnv = envPrefix + "_DEV_MODE"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Enrich   EnrichConfig   `mapstructure:"enrich"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Export   ExportConfig   `mapstructure:"export"`

	// DevMode disables webhook signature checks and forces debug logging.
	DevMode bool `mapstructure:"-"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// RedisConfig locates the key-value store backing the queues.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// QueueConfig governs the retry contract.
type QueueConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	PopTimeout time.Duration `mapstructure:"pop_timeout"`
	ErrorPause time.Duration `mapstructure:"error_pause"`
}

// WebhookConfig covers the inbound gateway and event recognition.
type WebhookConfig struct {
	ListenAddr                string        `mapstructure:"listen_addr"`
	Path                      string        `mapstructure:"path"`
	Secret                    string        `mapstructure:"secret"`
	ReadTimeout               time.Duration `mapstructure:"read_timeout"`
	LockABIName               string        `mapstructure:"lock_abi_name"`
	LockSelector              string        `mapstructure:"lock_selector"`
	OwnershipTransferredTopic string        `mapstructure:"ownership_transferred_topic"`
	PairCreatedTopic          string        `mapstructure:"pair_created_topic"`
	BurnAddresses             []string      `mapstructure:"burn_addresses"`
	QuoteTokens               []string      `mapstructure:"quote_tokens"`
}

// ChainConfig covers on-chain data access. RPCURLs is keyed by chain id ("0x1").
type ChainConfig struct {
	RPCURLs        map[string]string `mapstructure:"rpc_urls"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
}

// EnrichConfig configures the enrichment collaborators.
type EnrichConfig struct {
	Etherscan          EtherscanConfig `mapstructure:"etherscan"`
	GoPlus             GoPlusConfig    `mapstructure:"goplus"`
	RateLimitAttempts  int             `mapstructure:"rate_limit_attempts"`
	RateLimitBaseDelay time.Duration   `mapstructure:"rate_limit_base_delay"`
	ReverifyOn         []string        `mapstructure:"reverify_on"`
}

// EtherscanConfig captures the source verification API.
type EtherscanConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// GoPlusConfig captures the security audit API.
type GoPlusConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	AccessToken    string        `mapstructure:"access_token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// NotifyConfig defines fanout behaviour.
type NotifyConfig struct {
	Consumers     int           `mapstructure:"consumers"`
	BufferSize    int           `mapstructure:"buffer_size"`
	RatePerSecond int           `mapstructure:"rate_per_second"`
	Limiter       string        `mapstructure:"limiter"`
	SendAttempts  int           `mapstructure:"send_attempts"`
	SendBaseDelay time.Duration `mapstructure:"send_base_delay"`
	CacheRefresh  time.Duration `mapstructure:"cache_refresh"`
	// CacheStartupDelay holds back the first reload, for staggering notifiers that start together.
	CacheStartupDelay time.Duration  `mapstructure:"cache_startup_delay"`
	CacheLockKey      int64          `mapstructure:"cache_lock_key"`
	StateLogInterval  time.Duration  `mapstructure:"state_log_interval"`
	Telegram          TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 推送参数。
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
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

	devMode, err := devModeFromEnv()
	if err != nil {
		return nil, err
	}
	cfg.DevMode = devMode
	if cfg.DevMode {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func devModeFromEnv() (bool, error) {
	raw := strings.TrimSpace(os.Getenv(DevModeEnv))
	if raw == "" {
		return false, nil
	}
	on, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", DevModeEnv, err)
	}
	return on, nil
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
	v.SetDefault("app.name", "tokenalerts")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 14)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "")
	v.SetDefault("redis.dial_timeout", "5s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.retry_delay", "60s")
	v.SetDefault("queue.pop_timeout", "5s")
	v.SetDefault("queue.error_pause", "1s")

	v.SetDefault("webhook.listen_addr", ":8080")
	v.SetDefault("webhook.path", "/process")
	v.SetDefault("webhook.read_timeout", "15s")
	v.SetDefault("webhook.lock_abi_name", "LockLPToken")
	// Unicrypt lockLPToken(address,uint256,uint256,address,bool,address)
	v.SetDefault("webhook.lock_selector", "0x8af416f6")
	v.SetDefault("webhook.ownership_transferred_topic", "0x8be0079c531659141344cd1fd0a4f28419497f9722a3daafe3b4186f6b6457e0")
	v.SetDefault("webhook.pair_created_topic", "0x0d3648bd0f6ba80134a33ba9275ac585d9d315f0ad8355cddefde31afa28d0e9")
	v.SetDefault("webhook.burn_addresses", []string{
		"0x0000000000000000000000000000000000000000",
		"0x000000000000000000000000000000000000dEaD",
	})
	v.SetDefault("webhook.quote_tokens", []string{
		"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"0xdAC17F958D2ee523a2206206994597C13D831ec7",
	})

	v.SetDefault("chain.request_timeout", "10s")

	v.SetDefault("enrich.etherscan.base_url", "https://api.etherscan.io/v2/api")
	v.SetDefault("enrich.etherscan.request_timeout", "10s")
	v.SetDefault("enrich.goplus.base_url", "https://api.gopluslabs.io")
	v.SetDefault("enrich.goplus.request_timeout", "15s")
	v.SetDefault("enrich.rate_limit_attempts", 3)
	v.SetDefault("enrich.rate_limit_base_delay", "1s")
	v.SetDefault("enrich.reverify_on", []string{"new_pair", "lock_lp"})

	v.SetDefault("notify.consumers", 3)
	v.SetDefault("notify.buffer_size", 100)
	v.SetDefault("notify.rate_per_second", 30)
	v.SetDefault("notify.limiter", "redis")
	v.SetDefault("notify.send_attempts", 3)
	v.SetDefault("notify.send_base_delay", "1s")
	v.SetDefault("notify.cache_refresh", "10m")
	v.SetDefault("notify.cache_startup_delay", "0s")
	v.SetDefault("notify.cache_lock_key", int64(0x746b6e73))
	v.SetDefault("notify.state_log_interval", "5m")
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("notify.telegram.request_timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)
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

// IsProduction reports whether the configured environment is production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.App.Environment))
	return env == "production" || env == "prod"
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.DevMode && c.IsProduction() {
		return fmt.Errorf("%s cannot be enabled when app.environment is production", DevModeEnv)
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.max_retries cannot be negative")
	}
	if c.Queue.RetryDelay <= 0 {
		return fmt.Errorf("queue.retry_delay must be greater than zero")
	}
	if c.Queue.PopTimeout < time.Second {
		return fmt.Errorf("queue.pop_timeout must be at least 1s")
	}
	if !strings.HasPrefix(c.Webhook.Path, "/") {
		return fmt.Errorf("webhook.path must start with /")
	}
	if c.Notify.Consumers <= 0 {
		return fmt.Errorf("notify.consumers must be greater than zero")
	}
	if c.Notify.RatePerSecond <= 0 {
		return fmt.Errorf("notify.rate_per_second must be greater than zero")
	}
	switch c.Notify.Limiter {
	case "redis", "local":
	default:
		return fmt.Errorf("notify.limiter must be redis or local, got %q", c.Notify.Limiter)
	}
	if c.Notify.SendAttempts <= 0 {
		return fmt.Errorf("notify.send_attempts must be greater than zero")
	}
	if c.Notify.CacheStartupDelay < 0 {
		return fmt.Errorf("notify.cache_startup_delay must not be negative")
	}
	if c.Enrich.RateLimitAttempts <= 0 {
		return fmt.Errorf("enrich.rate_limit_attempts must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
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
