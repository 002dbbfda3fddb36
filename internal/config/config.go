package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultEnvFile = "configs/.env"

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	TwitterUsername string `mapstructure:"twitter_username"`
	TwitterEmail    string `mapstructure:"twitter_email"`
	TwitterPassword string `mapstructure:"twitter_password"`

	Headless               bool          `mapstructure:"headless"`
	ChromeBin              string        `mapstructure:"chrome_bin"`
	Proxy                  string        `mapstructure:"proxy"`
	UserAgent              string        `mapstructure:"user_agent"`
	SearchBaseURL          string        `mapstructure:"search_base_url"`
	LoginURL               string        `mapstructure:"login_url"`
	PageLoadTimeoutSeconds int64         `mapstructure:"page_load_timeout_seconds"`
	PageLoadTimeout        time.Duration `mapstructure:"-"`
	NavigateRetries        int           `mapstructure:"navigate_retries"`
	NavigateWaitSeconds    int64         `mapstructure:"navigate_wait_seconds"`
	NavigateWait           time.Duration `mapstructure:"-"`
	NavigateRatePerMinute  int           `mapstructure:"navigate_rate_per_minute"`
	RateLimitWaitSeconds   int64         `mapstructure:"rate_limit_wait_seconds"`
	RateLimitWait          time.Duration `mapstructure:"-"`

	LoginAttempts       int           `mapstructure:"login_attempts"`
	LoginPauseSeconds   int64         `mapstructure:"login_pause_seconds"`
	LoginPause          time.Duration `mapstructure:"-"`
	RestartDelaySeconds int64         `mapstructure:"restart_delay_seconds"`
	RestartDelay        time.Duration `mapstructure:"-"`
	RestartBackoff      string        `mapstructure:"restart_backoff"`
	RestartMaxSeconds   int64         `mapstructure:"restart_max_delay_seconds"`
	RestartMaxDelay     time.Duration `mapstructure:"-"`

	UserIDLookupURL string `mapstructure:"userid_lookup_url"`
	UserIDCacheSize int    `mapstructure:"userid_cache_size"`

	PublishersFile string `mapstructure:"publishers_file"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	StorageTTLSeconds      int64         `mapstructure:"storage_ttl_seconds"`
	StorageCleanupSeconds  int64         `mapstructure:"storage_cleanup_interval_seconds"`
	StorageTTL             time.Duration `mapstructure:"-"`
	StorageCleanupInterval time.Duration `mapstructure:"-"`
}

// Credentials are redacted when the config is logged.
func (c Config) Redacted() Config {
	if c.TwitterPassword != "" {
		c.TwitterPassword = "***"
	}
	return c
}

// Load reads configuration from an optional dotenv file and environment variables.
func Load(envFile string) (*Config, error) {
	if strings.TrimSpace(envFile) == "" {
		_ = godotenv.Load(defaultEnvFile)
	} else if err := godotenv.Load(envFile); err != nil {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	v := viper.New()

	v.SetDefault("app_name", "tweet-harvester")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("twitter_username", "")
	v.SetDefault("twitter_email", "")
	v.SetDefault("twitter_password", "")

	v.SetDefault("headless", true)
	v.SetDefault("chrome_bin", "")
	v.SetDefault("proxy", "")
	v.SetDefault("user_agent", "")
	v.SetDefault("search_base_url", "https://twitter.com/search")
	v.SetDefault("login_url", "https://twitter.com/i/flow/login")
	v.SetDefault("page_load_timeout_seconds", 100)
	v.SetDefault("navigate_retries", 3)
	v.SetDefault("navigate_wait_seconds", 10)
	v.SetDefault("navigate_rate_per_minute", 20)
	v.SetDefault("rate_limit_wait_seconds", 60)

	v.SetDefault("login_attempts", 5)
	v.SetDefault("login_pause_seconds", 2)
	v.SetDefault("restart_delay_seconds", 60)
	v.SetDefault("restart_backoff", "constant")
	v.SetDefault("restart_max_delay_seconds", 900)

	v.SetDefault("userid_lookup_url", "https://tweeterid.com/ajax.php")
	v.SetDefault("userid_cache_size", 1000)

	v.SetDefault("publishers_file", "")

	v.SetDefault("storage_type", "none")
	v.SetDefault("bbolt_path", "./data/seen.db")
	v.SetDefault("storage_ttl_seconds", int64((30*24*time.Hour)/time.Second))
	v.SetDefault("storage_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	positive := []struct {
		key string
		val int64
	}{
		{"page_load_timeout_seconds", c.PageLoadTimeoutSeconds},
		{"navigate_wait_seconds", c.NavigateWaitSeconds},
		{"rate_limit_wait_seconds", c.RateLimitWaitSeconds},
		{"restart_delay_seconds", c.RestartDelaySeconds},
		{"storage_ttl_seconds", c.StorageTTLSeconds},
		{"storage_cleanup_interval_seconds", c.StorageCleanupSeconds},
	}
	for _, p := range positive {
		if p.val <= 0 {
			return fmt.Errorf("invalid %s (must be positive seconds)", p.key)
		}
	}
	if c.LoginPauseSeconds < 0 {
		return fmt.Errorf("invalid login_pause_seconds (must not be negative)")
	}
	if c.NavigateRetries <= 0 {
		return fmt.Errorf("invalid navigate_retries (must be positive)")
	}
	if c.LoginAttempts <= 0 {
		return fmt.Errorf("invalid login_attempts (must be positive)")
	}

	c.RestartBackoff = strings.ToLower(strings.TrimSpace(c.RestartBackoff))
	switch c.RestartBackoff {
	case "", "constant":
		c.RestartBackoff = "constant"
	case "exponential":
	default:
		return fmt.Errorf("unsupported restart_backoff %q", c.RestartBackoff)
	}
	if c.RestartMaxSeconds < c.RestartDelaySeconds {
		c.RestartMaxSeconds = c.RestartDelaySeconds
	}

	c.PageLoadTimeout = time.Duration(c.PageLoadTimeoutSeconds) * time.Second
	c.NavigateWait = time.Duration(c.NavigateWaitSeconds) * time.Second
	c.RateLimitWait = time.Duration(c.RateLimitWaitSeconds) * time.Second
	c.LoginPause = time.Duration(c.LoginPauseSeconds) * time.Second
	c.RestartDelay = time.Duration(c.RestartDelaySeconds) * time.Second
	c.RestartMaxDelay = time.Duration(c.RestartMaxSeconds) * time.Second
	c.StorageTTL = time.Duration(c.StorageTTLSeconds) * time.Second
	c.StorageCleanupInterval = time.Duration(c.StorageCleanupSeconds) * time.Second
	return nil
}
