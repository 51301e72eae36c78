package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"masterclock/clock/node"
	"masterclock/clock/protocol"
	"masterclock/helper/timer"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// Config represents the configuration for the masterclock application
type Config struct {
	// Default config file location
	configFile string

	Network struct {
		ListenAddress string   `json:"listen"`      // UDP address to bind
		Slaves        []string `json:"slaves"`      // Slaves known before they introduce themselves
		Wire          string   `json:"wire"`        // "json" or "cbor"
		BufferSize    int      `json:"buffer_size"` // Receive buffer, bytes
	} `json:"network"`

	Sync struct {
		Interval        Duration `json:"interval"`
		Jitter          Duration `json:"jitter"`
		ExchangeTimeout Duration `json:"exchange_timeout"`
		StaleThreshold  Duration `json:"stale_threshold"`
		SweepInterval   Duration `json:"sweep_interval"`
		Parallelism     int      `json:"parallelism"`
		AdjustPolicy    string   `json:"adjust_policy"` // "always" or "latency"
	} `json:"sync"`

	Discovery struct {
		UseMDNS  bool   `json:"mdns"`
		Instance string `json:"instance"`
		Service  string `json:"service"`
	} `json:"discovery"`

	DataStore struct {
		JournalPath   string `json:"journal"` // Empty disables the cycle journal
		JournalRetain uint64 `json:"journal_retain"`
	} `json:"datastore"`

	Metrics struct {
		ListenAddress string `json:"listen"` // Empty disables the metrics endpoint
	} `json:"metrics"`

	Events struct {
		NatsURL string `json:"nats_url"` // Empty disables publishing
		Subject string `json:"subject"`
	} `json:"events"`
}

// NewEmptyConfig generates a new configuration with default settings
func NewEmptyConfig(configFile string) *Config {
	cfg := &Config{}

	cfg.configFile = configFile

	cfg.Network.ListenAddress = "0.0.0.0:7400"
	cfg.Network.Wire = "json"
	cfg.Network.BufferSize = 1024

	defaults := node.DefaultSettings()
	cfg.Sync.Interval = Duration(defaults.SyncInterval.Duration)
	cfg.Sync.Jitter = Duration(defaults.SyncInterval.Jitter)
	cfg.Sync.ExchangeTimeout = Duration(defaults.ExchangeTimeout)
	cfg.Sync.StaleThreshold = Duration(defaults.StaleThreshold)
	cfg.Sync.SweepInterval = Duration(defaults.SweepInterval.Duration)
	cfg.Sync.Parallelism = defaults.Parallelism
	cfg.Sync.AdjustPolicy = string(defaults.AdjustPolicy)

	cfg.Discovery.UseMDNS = false

	cfg.DataStore.JournalPath = "/tmp/masterclock/journal"
	cfg.DataStore.JournalRetain = 10000

	return cfg
}

func NewConfigFromFile(configFile string) (*Config, error) {
	cfg := NewEmptyConfig(configFile)
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to a file
func (c *Config) Save() error {
	log.Infof("Saving config to %s", c.configFile)

	// We'll marshall our structure to JSON and write it into a file
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.configFile, data, 0644)
}

func (c *Config) Load() error {
	log.Infof("Loading config from %s", c.configFile)
	data, err := os.ReadFile(c.configFile)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", c.configFile, err)
	}

	return nil
}

// SyncSettings converts the sync section into coordinator settings.
func (c *Config) SyncSettings() node.Settings {
	return node.Settings{
		SyncInterval:    timer.Interval{Duration: c.Sync.Interval.Std(), Jitter: c.Sync.Jitter.Std()},
		SweepInterval:   timer.Interval{Duration: c.Sync.SweepInterval.Std()},
		ExchangeTimeout: c.Sync.ExchangeTimeout.Std(),
		StaleThreshold:  c.Sync.StaleThreshold.Std(),
		Parallelism:     c.Sync.Parallelism,
		AdjustPolicy:    node.AdjustPolicy(c.Sync.AdjustPolicy),
	}
}

func (c *Config) Validate() error {
	if c.Network.ListenAddress == "" {
		return fmt.Errorf("network.listen must be set")
	}
	if _, err := protocol.CodecByName(c.Network.Wire); err != nil {
		return fmt.Errorf("network.wire: %w", err)
	}
	if c.Network.BufferSize < 64 {
		return fmt.Errorf("network.buffer_size must be at least 64 bytes, got %d", c.Network.BufferSize)
	}

	s := c.SyncSettings()
	if err := s.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if s.ExchangeTimeout >= s.SyncInterval.Duration {
		log.Warnf("sync.exchange_timeout (%v) is not shorter than sync.interval (%v)", s.ExchangeTimeout, s.SyncInterval.Duration)
	}
	if s.StaleThreshold < time.Second {
		return fmt.Errorf("sync.stale_threshold must be at least 1s, got %v", s.StaleThreshold)
	}

	return nil
}
