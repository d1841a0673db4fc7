package app

import (
	"errors"
	"strings"
	"time"

	"github.com/m3rciful/marketbot/core/cmd"
	coreconfig "github.com/m3rciful/marketbot/core/config"
)

// Defaults applied by Normalize.
const (
	DefaultCurrency          = "ETB"
	DefaultBrowseLimit       = 10
	DefaultBroadcastInterval = 50
	DefaultBroadcastBurst    = 1
)

// MarketConfig configures the marketplace itself.
type MarketConfig struct {
	// ChannelID receives approved listings. Zero disables publication.
	ChannelID int64  `yaml:"channel_id" envconfig:"CHANNEL_ID"`
	Currency  string `yaml:"currency" envconfig:"MARKET_CURRENCY" validate:"omitempty,len=3,uppercase"`
	// BroadcastIntervalMS paces fan-out deliveries; 0 -> default, -1 -> no pacing.
	BroadcastIntervalMS int  `yaml:"broadcast_interval_ms" envconfig:"BROADCAST_INTERVAL_MS" validate:"gte=-1"`
	BroadcastBurst      int  `yaml:"broadcast_burst" envconfig:"BROADCAST_BURST" validate:"gte=0"`
	BrowseLimit         int  `yaml:"browse_limit" envconfig:"BROWSE_LIMIT" validate:"gte=0,lte=50"`
	Maintenance         bool `yaml:"maintenance" envconfig:"MAINTENANCE"`
}

// PacingInterval is the gap between fan-out deliveries. Zero means unpaced.
func (m MarketConfig) PacingInterval() time.Duration {
	if m.BroadcastIntervalMS < 0 {
		return 0
	}
	return time.Duration(m.BroadcastIntervalMS) * time.Millisecond
}

// Config is the marketbot configuration: the reusable core plus the market section.
type Config struct {
	coreconfig.Config `yaml:",inline"`
	Market            MarketConfig `yaml:"market"`
}

var _ cmd.ConfigCarrier = (*Config)(nil)

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Load reads the YAML file at path, overlays the environment and normalizes the result.
func Load(path string) (cmd.ConfigCarrier, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig is Load with the concrete type.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.ReadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the core and market sections and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	m := &cfg.Market
	m.Currency = strings.ToUpper(strings.TrimSpace(m.Currency))
	if err := coreconfig.Validate("market", m); err != nil {
		return err
	}

	if m.Currency == "" {
		m.Currency = DefaultCurrency
	}
	if m.BrowseLimit == 0 {
		m.BrowseLimit = DefaultBrowseLimit
	}
	if m.BroadcastIntervalMS == 0 {
		m.BroadcastIntervalMS = DefaultBroadcastInterval
	}
	if m.BroadcastBurst == 0 {
		m.BroadcastBurst = DefaultBroadcastBurst
	}
	return nil
}
