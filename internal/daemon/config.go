// Package daemon assembles the simulation host: engine, persistence,
// real-time scheduler, and the HTTP API under one lifecycle.
package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

// Config is the on-disk daemon configuration, one TOML section per
// subsystem. Durations and money amounts are strings in the file ("2s",
// "1000") and parsed at wiring time with forgiving fallbacks.
type Config struct {
	Engine  EngineConfig  `toml:"engine"`
	Deals   DealsConfig   `toml:"deals"`
	Market  MarketConfig  `toml:"market"`
	Credit  CreditConfig  `toml:"credit"`
	Clock   ClockConfig   `toml:"clock"`
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	Catalog CatalogConfig `toml:"catalog"`
	Notify  NotifyConfig  `toml:"notify"`
	Log     LogConfig     `toml:"log"`
}

type EngineConfig struct {
	// HoursPerMonth sets the month boundary interval in simulated hours.
	HoursPerMonth int `toml:"hours_per_month"`
}

type DealsConfig struct {
	MinDealAmount         string  `toml:"min_deal_amount"`
	BaseAnnualRate        float64 `toml:"base_annual_rate"`
	LeaseResidualFraction float64 `toml:"lease_residual_fraction"`
	DefaultThreshold      int     `toml:"default_threshold"`
}

type MarketConfig struct {
	OfferExpiryHours  int     `toml:"offer_expiry_hours"`
	MaxOfferRetries   int     `toml:"max_offer_retries"`
	EarlySearchChance float64 `toml:"early_search_chance"`
}

type CreditConfig struct {
	TrendWindow int `toml:"trend_window"`
}

type ClockConfig struct {
	// Enabled starts the real-time scheduler. Disabled hosts only advance
	// through the admin tick endpoint.
	Enabled     bool   `toml:"enabled"`
	Interval    string `toml:"interval"`
	FireTimeout string `toml:"fire_timeout"`
}

type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`

	// JWTSecret signs bearer tokens. Empty leaves the player routes
	// answering 401, which is the safe default for a fresh install.
	JWTSecret      string `toml:"jwt_secret"`
	AdminKey       string `toml:"admin_key"`
	TokenTTL       string `toml:"token_ttl"`
	RequestTimeout string `toml:"request_timeout"`
	Metrics        bool   `toml:"metrics"`
}

type StorageConfig struct {
	// Path is the sqlite database file. Empty runs fully in memory.
	Path string `toml:"path"`
}

type CatalogConfig struct {
	// Path is an equipment catalog XML. Empty runs without a catalog;
	// searches then require an explicit base price.
	Path string `toml:"path"`
}

type NotifyConfig struct {
	Email    EmailNotifyConfig    `toml:"email"`
	Telegram TelegramNotifyConfig `toml:"telegram"`
}

type EmailNotifyConfig struct {
	Enabled  bool   `toml:"enabled"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
}

type TelegramNotifyConfig struct {
	Enabled bool   `toml:"enabled"`
	Token   string `toml:"token"`
	ChatID  int64  `toml:"chat_id"`
}

type LogConfig struct {
	Level  string `toml:"level"`  // trace|debug|info|warn|error
	Format string `toml:"format"` // text|json
}

// DefaultConfig returns the settings a fresh install runs with.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{HoursPerMonth: 720},
		Deals: DealsConfig{
			MinDealAmount:         "1000",
			BaseAnnualRate:        0.06,
			LeaseResidualFraction: 0.30,
			DefaultThreshold:      3,
		},
		Market: MarketConfig{
			OfferExpiryHours:  48,
			MaxOfferRetries:   3,
			EarlySearchChance: 0.10,
		},
		Clock: ClockConfig{
			Enabled:     true,
			Interval:    "2s",
			FireTimeout: "30s",
		},
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8466,
			TokenTTL:       "24h",
			RequestTimeout: "60s",
			Metrics:        true,
		},
		Storage: StorageConfig{Path: filepath.Join(HomeDir(), "usedplus.db")},
		Notify: NotifyConfig{
			Email: EmailNotifyConfig{
				Host: "localhost",
				Port: 25,
				From: "noreply@usedplus.example",
			},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a TOML file over the defaults. A missing file is not an error;
// first runs simply get DefaultConfig.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// HomeDir is where the daemon keeps its database and config by default.
// USEDPLUS_HOME overrides ~/.usedplus.
func HomeDir() string {
	if env := os.Getenv("USEDPLUS_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".usedplus")
}

// DefaultConfigPath is the config file consulted when --config is not given.
func DefaultConfigPath() string {
	return filepath.Join(HomeDir(), "config.toml")
}

// ─── Parse Helpers ──────────────────────────────────────────────────────────

// parseDuration reads a config duration string, falling back when the value
// is empty, malformed, or non-positive.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// parseMoney reads a config decimal string, falling back when the value is
// empty or malformed.
func parseMoney(s string, fallback decimal.Decimal) decimal.Decimal {
	if s == "" {
		return fallback
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fallback
	}
	return d
}
