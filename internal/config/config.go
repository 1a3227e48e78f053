package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvDiscordToken = "HEARTWATCH_DISCORD_TOKEN"
	EnvNotifyToken  = "HEARTWATCH_NOTIFY_TOKEN"
)

type Config struct {
	LogLevel  string        `json:"log_level" yaml:"log_level"`
	LogFormat string        `json:"log_format" yaml:"log_format"`
	Discord   DiscordConfig `json:"discord" yaml:"discord"`
	Poll      PollConfig    `json:"poll" yaml:"poll"`
	Ingest    IngestConfig  `json:"ingest" yaml:"ingest"`
	Engine    EngineConfig  `json:"engine" yaml:"engine"`
	Notify    NotifyConfig  `json:"notify" yaml:"notify"`
	API       APIConfig     `json:"api" yaml:"api"`
	Storage   StorageConfig `json:"storage" yaml:"storage"`
	Alerts    AlertsConfig  `json:"alerts" yaml:"alerts"`
}

type DiscordConfig struct {
	Token       string        `json:"token" yaml:"token"`
	BotAuthorID string        `json:"bot_author_id" yaml:"bot_author_id"`
	Channels    []string      `json:"channels" yaml:"channels"`
	Gateway     GatewayConfig `json:"gateway" yaml:"gateway"`
}

type GatewayConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

type PollConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Interval  time.Duration `json:"interval" yaml:"interval"`
	BatchSize int           `json:"batch_size" yaml:"batch_size"`
}

type IngestConfig struct {
	ChannelBuffer int         `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig  `json:"rest" yaml:"rest"`
	Kafka         KafkaConfig `json:"kafka" yaml:"kafka"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type EngineConfig struct {
	Capacity      int           `json:"capacity" yaml:"capacity"`
	ExpiryWindow  time.Duration `json:"expiry_window" yaml:"expiry_window"`
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	Tiers         []TierConfig  `json:"tiers" yaml:"tiers"`
}

// TierConfig bounds are exclusive; a nil bound is open.
type TierConfig struct {
	Name     string `json:"name" yaml:"name"`
	Above    *int64 `json:"above,omitempty" yaml:"above,omitempty"`
	Below    *int64 `json:"below,omitempty" yaml:"below,omitempty"`
	Audience string `json:"audience" yaml:"audience"`
	Priority string `json:"priority,omitempty" yaml:"priority,omitempty"`
}

type NotifyConfig struct {
	Provider  string        `json:"provider" yaml:"provider"`
	BaseURL   string        `json:"base_url" yaml:"base_url"`
	Token     string        `json:"token" yaml:"token"`
	MinGap    time.Duration `json:"min_gap" yaml:"min_gap"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
	QueueSize int           `json:"queue_size" yaml:"queue_size"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type AlertsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Discord: DiscordConfig{
			Gateway: GatewayConfig{Enabled: true},
		},
		Poll: PollConfig{Enabled: true, Interval: 30 * time.Second, BatchSize: 50},
		Ingest: IngestConfig{
			ChannelBuffer: 1024,
			REST:          RESTConfig{Enabled: false, Addr: ":8080"},
			Kafka:         KafkaConfig{Enabled: false},
		},
		Engine: EngineConfig{
			Capacity:      250,
			ExpiryWindow:  15 * time.Minute,
			SweepInterval: time.Minute,
		},
		Notify: NotifyConfig{
			Provider:  "ntfy",
			BaseURL:   "https://ntfy.sh",
			MinGap:    time.Second,
			Timeout:   10 * time.Second,
			QueueSize: 256,
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:heartwatch.db?_pragma=busy_timeout(5000)"},
		Alerts:  AlertsConfig{StoreLimit: 500},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return Parse(content)
}

// Parse decodes YAML or JSON config content on top of DefaultConfig.
func Parse(content []byte) (*Config, error) {
	cfg := DefaultConfig()
	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode config: %w", decodeErr)
	}
	applyDefaults(cfg)
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Engine.Capacity <= 0 {
		cfg.Engine.Capacity = 250
	}
	if cfg.Engine.SweepInterval <= 0 {
		cfg.Engine.SweepInterval = time.Minute
	}
	if cfg.Poll.Interval <= 0 {
		cfg.Poll.Interval = 30 * time.Second
	}
	if cfg.Poll.BatchSize <= 0 {
		cfg.Poll.BatchSize = 50
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 1024
	}
	if cfg.Notify.Provider == "" {
		cfg.Notify.Provider = "ntfy"
	}
	if cfg.Notify.Timeout <= 0 {
		cfg.Notify.Timeout = 10 * time.Second
	}
	if cfg.Notify.QueueSize <= 0 {
		cfg.Notify.QueueSize = 256
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 500
	}
	for i := range cfg.Engine.Tiers {
		if cfg.Engine.Tiers[i].Priority == "" {
			cfg.Engine.Tiers[i].Priority = "default"
		}
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvDiscordToken)); v != "" {
		cfg.Discord.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvNotifyToken)); v != "" {
		cfg.Notify.Token = v
	}
}

func Validate(cfg *Config) error {
	if len(cfg.Engine.Tiers) == 0 {
		return errors.New("engine.tiers must declare at least one tier")
	}
	seen := make(map[string]struct{}, len(cfg.Engine.Tiers))
	for i, tier := range cfg.Engine.Tiers {
		if strings.TrimSpace(tier.Name) == "" {
			return fmt.Errorf("engine.tiers[%d].name required", i)
		}
		if _, dup := seen[tier.Name]; dup {
			return fmt.Errorf("engine.tiers[%d].name %q is duplicated", i, tier.Name)
		}
		seen[tier.Name] = struct{}{}
		if strings.TrimSpace(tier.Audience) == "" {
			return fmt.Errorf("engine.tiers[%d].audience required", i)
		}
		if tier.Above != nil && tier.Below != nil && *tier.Below-*tier.Above < 2 {
			return fmt.Errorf("engine.tiers[%d] range (%d, %d) matches no value", i, *tier.Above, *tier.Below)
		}
	}
	if cfg.Engine.ExpiryWindow < 0 {
		return errors.New("engine.expiry_window must be >= 0")
	}
	if cfg.Poll.BatchSize > 100 {
		return errors.New("poll.batch_size must be <= 100")
	}
	if (cfg.Discord.Gateway.Enabled || cfg.Poll.Enabled) && cfg.Discord.Token == "" {
		return fmt.Errorf("discord.token (or %s) required when gateway or poll is enabled", EnvDiscordToken)
	}
	if cfg.Poll.Enabled && len(cfg.Discord.Channels) == 0 {
		return errors.New("discord.channels required when poll.enabled is true")
	}
	if cfg.Notify.MinGap < 0 {
		return errors.New("notify.min_gap must be >= 0")
	}
	switch strings.ToLower(cfg.Notify.Provider) {
	case "ntfy":
		if cfg.Notify.BaseURL == "" {
			return errors.New("notify.base_url required for ntfy provider")
		}
	case "webhook", "log":
	default:
		return fmt.Errorf("unsupported notify.provider %q", cfg.Notify.Provider)
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	return nil
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
