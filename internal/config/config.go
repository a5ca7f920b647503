// Package config
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

/*
YAML config example:
mode: "live"
exchange: "namebase"
symbol: "HNSBTC"
base_asset: "HNS"
quote_asset: "BTC"
api_key: "..."
api_secret: "..."
number_orders: 10
min_distance_from_center: 0.00000005
update_period: 5s
base:
  zero: 100
  maximum_risk: 0.5
  ratio: 0.5
quote:
  zero: 0.001
  maximum_risk: 0.5
  ratio: 0.5
db_conn_str: "postgres://..."
balance_log_path: "balances.csv"
telegram_token: "..."
telegram_chat_id: "..."
metrics_addr: ":9102"
*/

// Duration is a time.Duration that unmarshals from YAML strings like "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// AssetConfig sets the per-asset risk envelope. Zero is the untouchable
// floor, MaximumRisk the fraction of the tradable balance a trend position
// may commit, and Ratio the portfolio share beyond which the book is
// considered heavy on this asset.
type AssetConfig struct {
	Zero        float64 `yaml:"zero"`
	MaximumRisk float64 `yaml:"maximum_risk"`
	Ratio       float64 `yaml:"ratio"`
}

type Config struct {
	Mode     string `yaml:"mode"`     // live or paper
	Exchange string `yaml:"exchange"` // namebase, wallex or paper

	Symbol     string `yaml:"symbol"`
	BaseAsset  string `yaml:"base_asset"`
	QuoteAsset string `yaml:"quote_asset"`

	APIKey      string `yaml:"api_key"`
	APISecret   string `yaml:"api_secret"`
	NamebaseURL string `yaml:"namebase_url"`

	NumberOrders          int      `yaml:"number_orders"`
	MinDistanceFromCenter float64  `yaml:"min_distance_from_center"`
	UpdatePeriod          Duration `yaml:"update_period"`

	// Percent moves of the book bottom / nearest wall below these are noise
	// and do not force a ladder rebuild.
	CenterChangeThreshold     float64 `yaml:"center_change_threshold"`
	ResistanceChangeThreshold float64 `yaml:"resistance_change_threshold"`

	Base  AssetConfig `yaml:"base"`
	Quote AssetConfig `yaml:"quote"`

	DBConnStr      string `yaml:"db_conn_str"`
	DBMaxOpen      int    `yaml:"db_max_open"`
	DBMaxIdle      int    `yaml:"db_max_idle"`
	BalanceLogPath string `yaml:"balance_log_path"`

	TelegramToken       string        `yaml:"telegram_token"`
	TelegramChatID      string        `yaml:"telegram_chat_id"`
	NotificationRetries int           `yaml:"notification_retries"`
	NotificationDelay   Duration      `yaml:"notification_delay"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// Load parses flags and, when -config points at a YAML file, overlays the
// file on top of the flag values.
func Load() (Config, error) {
	mode := flag.String("mode", "paper", "Mode: live or paper")
	exchangeName := flag.String("exchange", "namebase", "Exchange: namebase, wallex or paper")
	symbol := flag.String("symbol", "HNSBTC", "Trading symbol")
	baseAsset := flag.String("base-asset", "HNS", "Base asset")
	quoteAsset := flag.String("quote-asset", "BTC", "Quote asset")
	namebaseURL := flag.String("namebase-url", "https://www.namebase.io/api/v0", "Namebase API base URL")
	numberOrders := flag.Int("number-orders", 10, "Orders per ladder side")
	minDistance := flag.Float64("min-distance", 0.00000005, "Minimum order distance from the book center")
	updatePeriod := flag.Duration("update-period", 5*time.Second, "Delay before a non-priority ladder update runs")
	centerThreshold := flag.Float64("center-threshold", 10, "Percent move of the book bottom that forces a rebuild")
	resistanceThreshold := flag.Float64("resistance-threshold", 10, "Percent move of the nearest wall that forces a rebuild")
	baseZero := flag.Float64("base-zero", 0, "Base asset floor that is never traded")
	baseRisk := flag.Float64("base-risk", 0.5, "Fraction of tradable base a trend position may commit")
	baseRatio := flag.Float64("base-ratio", 0.5, "Portfolio share beyond which the book is heavy on base")
	quoteZero := flag.Float64("quote-zero", 0, "Quote asset floor that is never traded")
	quoteRisk := flag.Float64("quote-risk", 0.5, "Fraction of tradable quote a trend position may commit")
	quoteRatio := flag.Float64("quote-ratio", 0.5, "Portfolio share beyond which the book is heavy on quote")
	balanceLogPath := flag.String("balance-log", "", "CSV file for balance history (used when no database is configured)")
	telegramToken := flag.String("telegram-token", "", "Telegram bot token for notifications")
	telegramChatID := flag.String("telegram-chat", "", "Telegram chat ID for notifications")
	notificationRetries := flag.Int("notification-retries", 3, "Number of notification send attempts")
	notificationDelay := flag.Duration("notification-delay", 5*time.Second, "Delay between notification retries (e.g., 5s)")
	metricsAddr := flag.String("metrics-addr", "", "Listen address for Prometheus metrics (empty disables)")
	configFile := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg := Config{
		Mode:                      *mode,
		Exchange:                  *exchangeName,
		Symbol:                    *symbol,
		BaseAsset:                 *baseAsset,
		QuoteAsset:                *quoteAsset,
		APIKey:                    os.Getenv("EXCHANGE_API_KEY"),
		APISecret:                 os.Getenv("EXCHANGE_API_SECRET"),
		NamebaseURL:               *namebaseURL,
		NumberOrders:              *numberOrders,
		MinDistanceFromCenter:     *minDistance,
		UpdatePeriod:              Duration(*updatePeriod),
		CenterChangeThreshold:     *centerThreshold,
		ResistanceChangeThreshold: *resistanceThreshold,
		Base:                      AssetConfig{Zero: *baseZero, MaximumRisk: *baseRisk, Ratio: *baseRatio},
		Quote:                     AssetConfig{Zero: *quoteZero, MaximumRisk: *quoteRisk, Ratio: *quoteRatio},
		DBConnStr:                 os.Getenv("DB_CONN_STR"),
		DBMaxOpen:                 10,
		DBMaxIdle:                 5,
		BalanceLogPath:            *balanceLogPath,
		TelegramToken:             *telegramToken,
		TelegramChatID:            *telegramChatID,
		NotificationRetries:       *notificationRetries,
		NotificationDelay:         Duration(*notificationDelay),
		MetricsAddr:               *metricsAddr,
	}

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return cfg, cfg.Validate()
}

// Validate rejects settings the trading loop cannot run with.
func (c Config) Validate() error {
	if c.NumberOrders < 1 {
		return fmt.Errorf("number_orders must be at least 1, got %d", c.NumberOrders)
	}
	if c.MinDistanceFromCenter < 0 {
		return fmt.Errorf("min_distance_from_center must not be negative")
	}
	if c.UpdatePeriod <= 0 {
		return fmt.Errorf("update_period must be positive")
	}
	for _, pair := range []struct {
		name  string
		asset AssetConfig
	}{{"base", c.Base}, {"quote", c.Quote}} {
		if pair.asset.MaximumRisk < 0 || pair.asset.MaximumRisk > 1 {
			return fmt.Errorf("%s maximum_risk must be in [0, 1], got %v", pair.name, pair.asset.MaximumRisk)
		}
		if pair.asset.Ratio < 0 || pair.asset.Ratio > 1 {
			return fmt.Errorf("%s ratio must be in [0, 1], got %v", pair.name, pair.asset.Ratio)
		}
		if pair.asset.Zero < 0 {
			return fmt.Errorf("%s zero must not be negative", pair.name)
		}
	}
	switch c.Mode {
	case "live", "paper":
	default:
		return fmt.Errorf("mode must be live or paper, got %q", c.Mode)
	}
	switch c.Exchange {
	case "namebase", "wallex", "paper":
	default:
		return fmt.Errorf("exchange must be namebase, wallex or paper, got %q", c.Exchange)
	}
	return nil
}
