// Package config provides configuration management using viper.
// It supports loading from YAML files, a local .env file and environment variable overrides.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"maze-rewards/internal/payout"
)

// Config holds all application configuration.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Platform    PlatformConfig    `mapstructure:"platform"`
	Admin       AdminConfig       `mapstructure:"admin"`
	Bot         BotConfig         `mapstructure:"bot"`
	Rewards     RewardsConfig     `mapstructure:"rewards"`
	Consumables ConsumablesConfig `mapstructure:"consumables"`
	Monthly     MonthlyConfig     `mapstructure:"monthly"`
	Online      OnlineConfig      `mapstructure:"online"`
	Payout      payout.Policy     `mapstructure:"payout"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	Name             string        `mapstructure:"name"`
	SSLMode          string        `mapstructure:"sslmode"`
	PoolSize         int           `mapstructure:"pool_size"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	LockTimeout      time.Duration `mapstructure:"lock_timeout"`
}

// PlatformConfig points at the external identity platform.
type PlatformConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	CacheSize int           `mapstructure:"cache_size"`
}

// AdminConfig holds admin authentication configuration.
type AdminConfig struct {
	PasswordHash string        `mapstructure:"password_hash"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	TelegramIDs  []int64       `mapstructure:"telegram_ids"`
}

// BotConfig holds the Telegram admin console configuration.
// An empty token disables the console.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// RewardsConfig holds reward amounts.
type RewardsConfig struct {
	DailyLogin    int64    `mapstructure:"daily_login"`
	LevelComplete int64    `mapstructure:"level_complete"`
	Invite        int64    `mapstructure:"invite"`
	Ad            AdConfig `mapstructure:"ad"`
}

// AdConfig holds the ad-watch reward curve.
type AdConfig struct {
	Mode            string `mapstructure:"mode"` // flat or decay
	FlatAmount      int64  `mapstructure:"flat_amount"`
	BaseAmount      int64  `mapstructure:"base_amount"`
	Floor           int64  `mapstructure:"floor"`
	CooldownSeconds int    `mapstructure:"cooldown_seconds"`
}

// ConsumablesConfig holds free allowances and coin prices for skip/hint/restart.
type ConsumablesConfig struct {
	FreeCap int64 `mapstructure:"free_cap"`
	Cost    int64 `mapstructure:"cost"`
}

// MonthlyConfig holds month-close settings.
type MonthlyConfig struct {
	CloseWorkers int `mapstructure:"close_workers"`
}

// OnlineConfig controls the online-user window.
type OnlineConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	return u.String()
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	// A missing .env is fine outside local development
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. DATABASE_HOST, REWARDS_DAILY_LOGIN, ADMIN_JWT_SECRET
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Payout = cfg.Payout.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints viper cannot express.
func (c *Config) Validate() error {
	switch c.Rewards.Ad.Mode {
	case "flat", "decay":
	default:
		return fmt.Errorf("invalid rewards.ad.mode %q: want flat or decay", c.Rewards.Ad.Mode)
	}
	if c.Rewards.Ad.Floor < 0 || c.Rewards.Ad.BaseAmount < c.Rewards.Ad.Floor {
		return fmt.Errorf("invalid ad curve: base %d must be >= floor %d >= 0", c.Rewards.Ad.BaseAmount, c.Rewards.Ad.Floor)
	}
	if c.Consumables.FreeCap < 0 || c.Consumables.Cost <= 0 {
		return fmt.Errorf("invalid consumables config: free_cap=%d cost=%d", c.Consumables.FreeCap, c.Consumables.Cost)
	}
	if c.Platform.Timeout <= 0 {
		return fmt.Errorf("platform.timeout must be positive")
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "maze")
	v.SetDefault("database.name", "maze")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.statement_timeout", "5s")
	v.SetDefault("database.lock_timeout", "3s")

	v.SetDefault("platform.base_url", "https://api.minepi.com")
	v.SetDefault("platform.timeout", "5s")
	v.SetDefault("platform.cache_ttl", "1m")
	v.SetDefault("platform.cache_size", 4096)

	v.SetDefault("admin.token_ttl", "12h")

	v.SetDefault("rewards.daily_login", 5)
	v.SetDefault("rewards.level_complete", 1)
	v.SetDefault("rewards.invite", 10)
	v.SetDefault("rewards.ad.mode", "decay")
	v.SetDefault("rewards.ad.flat_amount", 10)
	v.SetDefault("rewards.ad.base_amount", 50)
	v.SetDefault("rewards.ad.floor", 2)
	v.SetDefault("rewards.ad.cooldown_seconds", 0)

	v.SetDefault("consumables.free_cap", 3)
	v.SetDefault("consumables.cost", 50)

	v.SetDefault("monthly.close_workers", 8)

	v.SetDefault("online.window", "5m")

	v.SetDefault("payout.base", payout.DefaultPolicy().Base)
}

// IsTelegramAdmin checks if a Telegram user ID is in the admin list.
func (c *Config) IsTelegramAdmin(userID int64) bool {
	for _, id := range c.Admin.TelegramIDs {
		if id == userID {
			return true
		}
	}
	return false
}
