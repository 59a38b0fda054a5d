package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fxlab/papertrader/market"
	"github.com/fxlab/papertrader/paper"
	"github.com/fxlab/papertrader/risk"
)

// Config is the complete engine configuration.
type Config struct {
	Account    AccountConfig    `json:"account" yaml:"account"`
	Friction   FrictionConfig   `json:"friction" yaml:"friction"`
	Risk       risk.Settings    `json:"risk" yaml:"risk"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Simulation SimulationConfig `json:"simulation,omitempty" yaml:"simulation,omitempty"`
}

// AccountConfig contains account initialization parameters.
type AccountConfig struct {
	ID       string  `json:"id" yaml:"id"`
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
}

// FrictionConfig contains the simulated market frictions.
type FrictionConfig struct {
	SlippageMinPips  float64 `json:"slippage_min_pips" yaml:"slippage_min_pips"`
	SlippageMaxPips  float64 `json:"slippage_max_pips" yaml:"slippage_max_pips"`
	SpreadPips       float64 `json:"spread_pips" yaml:"spread_pips"`
	CommissionPerLot float64 `json:"commission_per_lot" yaml:"commission_per_lot"`
	SwapPerLotDay    float64 `json:"swap_per_lot_day" yaml:"swap_per_lot_day"`
	Leverage         float64 `json:"leverage" yaml:"leverage"`
}

// JournalConfig contains journaling parameters.
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// ServerConfig contains the websocket listener parameters.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// SimulationConfig scripts price movement for the run command.
type SimulationConfig struct {
	Symbol       string      `json:"symbol" yaml:"symbol"`
	InitialPrice float64     `json:"initial_price" yaml:"initial_price"`
	LotSize      float64     `json:"lot_size" yaml:"lot_size"`
	StopPips     float64     `json:"stop_pips" yaml:"stop_pips"`
	TargetPips   float64     `json:"target_pips" yaml:"target_pips"`
	PriceSteps   []PriceStep `json:"price_steps,omitempty" yaml:"price_steps,omitempty"`
}

// PriceStep is one scripted tick.
type PriceStep struct {
	Price float64 `json:"price" yaml:"price"`
	Delay string  `json:"delay,omitempty" yaml:"delay,omitempty"` // e.g. "1h", "30m", "1s"
}

// ParseDuration converts the delay string to a time.Duration.
func (ps PriceStep) ParseDuration() (time.Duration, error) {
	if ps.Delay == "" {
		return 0, nil
	}
	return time.ParseDuration(ps.Delay)
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv lets a .env file (or the process environment) override the
// deployment-specific fields. godotenv is loaded by the CLI before this runs.
func (c *Config) applyEnv() {
	if v := os.Getenv("PAPERTRADER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("PAPERTRADER_DB"); v != "" {
		c.Journal.Type = "sqlite"
		c.Journal.DBPath = v
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}
	if c.Friction.SlippageMinPips < 0 || c.Friction.SlippageMaxPips < c.Friction.SlippageMinPips {
		return fmt.Errorf("friction slippage range is invalid")
	}
	if c.Friction.SpreadPips < 0 {
		return fmt.Errorf("friction.spread_pips must not be negative")
	}
	if c.Friction.Leverage <= 0 {
		return fmt.Errorf("friction.leverage must be positive")
	}
	if c.Risk.MaxOpenPositions <= 0 {
		return fmt.Errorf("risk.max_open_positions must be positive")
	}
	if c.Risk.MaxDailyDrawdown <= 0 {
		return fmt.Errorf("risk.max_daily_drawdown must be positive")
	}
	switch c.Journal.Type {
	case "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}
	if c.Simulation.Symbol != "" && !market.Known(c.Simulation.Symbol) && !strings.HasSuffix(c.Simulation.Symbol, "JPY") {
		// Unknown non-JPY symbols still work with the default pip size, but
		// a scripted simulation almost certainly meant a known pair.
		return fmt.Errorf("unknown simulation symbol: %s", c.Simulation.Symbol)
	}
	return nil
}

// SaveToFile writes the configuration as YAML or JSON based on extension.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	fr := paper.DefaultFriction()
	return &Config{
		Account: AccountConfig{
			ID:       "PAPER-001",
			Currency: "USD",
			Balance:  10000,
		},
		Friction: FrictionConfig{
			SlippageMinPips:  fr.SlippageMinPips,
			SlippageMaxPips:  fr.SlippageMaxPips,
			SpreadPips:       fr.SpreadPips,
			CommissionPerLot: fr.CommissionPerLot,
			SwapPerLotDay:    fr.SwapPerLotDay,
			Leverage:         fr.Leverage,
		},
		Risk: risk.DefaultSettings(),
		Journal: JournalConfig{
			Type: "none",
		},
		Server: ServerConfig{
			Addr: ":4000",
		},
		Simulation: SimulationConfig{
			Symbol:       "EURUSD",
			InitialPrice: 1.0850,
			LotSize:      0.1,
			StopPips:     20,
			TargetPips:   40,
		},
	}
}
