// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Store    StoreConfig    `mapstructure:"store"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Git      GitConfig      `mapstructure:"git"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the read API server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// BrowserConfig governs the automated browser session.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless"`
	UserAgent      string        `mapstructure:"user_agent"`
	ViewportWidth  int64         `mapstructure:"viewport_width"`
	ViewportHeight int64         `mapstructure:"viewport_height"`
	NavTimeout     time.Duration `mapstructure:"nav_timeout"`
}

// ScraperConfig governs the two-phase crawl behavior.
type ScraperConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Limit           int           `mapstructure:"limit"`
	CountryAttempts int           `mapstructure:"country_attempts"`
	LocatorTimeout  time.Duration `mapstructure:"locator_timeout"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	RetryPauseMin   time.Duration `mapstructure:"retry_pause_min"`
	RetryPauseMax   time.Duration `mapstructure:"retry_pause_max"`
	SettleMin       time.Duration `mapstructure:"settle_min"`
	SettleMax       time.Duration `mapstructure:"settle_max"`
	SectionMin      time.Duration `mapstructure:"section_min"`
	SectionMax      time.Duration `mapstructure:"section_max"`
	LetterMin       time.Duration `mapstructure:"letter_min"`
	LetterMax       time.Duration `mapstructure:"letter_max"`
	CountryPauseMin time.Duration `mapstructure:"country_pause_min"`
	CountryPauseMax time.Duration `mapstructure:"country_pause_max"`
}

// StoreConfig controls access to the relational database.
type StoreConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	DSN               string   `mapstructure:"dsn"`
	MaxConns          int32    `mapstructure:"max_conns"`
	ExcludedCountries []string `mapstructure:"excluded_countries"`
}

// SnapshotConfig sets the location of dated crawl artifacts.
type SnapshotConfig struct {
	Dir string `mapstructure:"dir"`
}

// ScheduleConfig controls the recurring scrape trigger. The concrete weekday
// and hour are randomized once per process within the configured hour window.
type ScheduleConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	WindowStartHour int  `mapstructure:"window_start_hour"`
	WindowEndHour   int  `mapstructure:"window_end_hour"`
}

// GitConfig controls the optional post-run data sync.
type GitConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	UserName  string `mapstructure:"user_name"`
	UserEmail string `mapstructure:"user_email"`
	Branch    string `mapstructure:"branch"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GEOSCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.nav_timeout", "45s")
	v.SetDefault("scraper.base_url", "https://www.weather-forecast.com")
	v.SetDefault("scraper.limit", 0)
	v.SetDefault("scraper.country_attempts", 2)
	v.SetDefault("scraper.locator_timeout", "3s")
	v.SetDefault("scraper.probe_timeout", "2s")
	v.SetDefault("scraper.retry_pause_min", "2s")
	v.SetDefault("scraper.retry_pause_max", "4s")
	v.SetDefault("scraper.settle_min", "1s")
	v.SetDefault("scraper.settle_max", "4s")
	v.SetDefault("scraper.section_min", "1s")
	v.SetDefault("scraper.section_max", "4s")
	v.SetDefault("scraper.letter_min", "1s")
	v.SetDefault("scraper.letter_max", "3s")
	v.SetDefault("scraper.country_pause_min", "1s")
	v.SetDefault("scraper.country_pause_max", "4s")
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.excluded_countries", []string{"Israel"})
	v.SetDefault("snapshot.dir", "data/snapshots")
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.window_start_hour", 2)
	v.SetDefault("schedule.window_end_hour", 5)
	v.SetDefault("git.enabled", false)
	v.SetDefault("git.branch", "main")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.BaseURL == "" {
		return fmt.Errorf("scraper.base_url is required")
	}
	if c.Scraper.CountryAttempts <= 0 {
		return fmt.Errorf("scraper.country_attempts must be > 0")
	}
	if c.Scraper.Limit < 0 {
		return fmt.Errorf("scraper.limit must be >= 0")
	}
	if c.Store.Enabled && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn must be set when store is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Schedule.WindowStartHour < 0 || c.Schedule.WindowStartHour > 23 ||
		c.Schedule.WindowEndHour < 0 || c.Schedule.WindowEndHour > 23 {
		return fmt.Errorf("schedule hour window must be within 0-23")
	}
	if c.Schedule.WindowEndHour < c.Schedule.WindowStartHour {
		return fmt.Errorf("schedule.window_end_hour must be >= schedule.window_start_hour")
	}
	return nil
}
