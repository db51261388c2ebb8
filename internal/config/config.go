package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment overrides; nested keys use "__",
// e.g. PIXORA__POLLER__MAX_ATTEMPTS.
const EnvPrefix = "PIXORA__"

const (
	defaultPort           = 8080
	defaultDataDir        = "data"
	defaultMaxAttempts    = 60
	defaultInterval       = 5 * time.Second
	defaultRequestTimeout = 10 * time.Second
	defaultHistorySize    = 3
	defaultFreeLimit      = 3
	defaultProLimit       = 1000
	defaultKafkaTopic     = "pixora.jobs"
)

// Usage gate modes.
const (
	UsageLedger = "ledger"
	UsageRemote = "remote"
	UsageOff    = "off"
)

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

type PollerConfig struct {
	MaxAttempts    int           `koanf:"max_attempts"`
	Interval       time.Duration `koanf:"interval"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type UsageConfig struct {
	Mode      string `koanf:"mode"`
	DBPath    string `koanf:"db_path"`
	RemoteURL string `koanf:"remote_url"`
	FreeLimit int    `koanf:"free_limit"`
	ProLimit  int    `koanf:"pro_limit"`
}

// KafkaConfig enables job event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

// Config describes runtime configuration for the service.
type Config struct {
	Port        int          `koanf:"port"`
	DataDir     string       `koanf:"data_dir"`
	CatalogFile string       `koanf:"catalog_file"`
	HistorySize int          `koanf:"history_size"`
	Log         LogConfig    `koanf:"log"`
	Poller      PollerConfig `koanf:"poller"`
	Usage       UsageConfig  `koanf:"usage"`
	Kafka       KafkaConfig  `koanf:"kafka"`
}

func Default() Config {
	return Config{
		Port:        defaultPort,
		DataDir:     defaultDataDir,
		HistorySize: defaultHistorySize,
		Log:         LogConfig{Level: "info"},
		Poller: PollerConfig{
			MaxAttempts:    defaultMaxAttempts,
			Interval:       defaultInterval,
			RequestTimeout: defaultRequestTimeout,
		},
		Usage: UsageConfig{
			Mode:      UsageLedger,
			FreeLimit: defaultFreeLimit,
			ProLimit:  defaultProLimit,
		},
		Kafka: KafkaConfig{Topic: defaultKafkaTopic},
	}
}

// Load merges YAML at path (if present) over the defaults, then applies
// PIXORA__ environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Default(), fmt.Errorf("read config: %w", err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, "__", envKey), nil); err != nil {
		return Default(), fmt.Errorf("read env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

func normalize(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	if cfg.Usage.Mode == "" {
		cfg.Usage.Mode = UsageLedger
	}
	cfg.Usage.Mode = strings.ToLower(strings.TrimSpace(cfg.Usage.Mode))
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = defaultKafkaTopic
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
}

// splitList flattens comma separated entries, which is how brokers arrive
// from the environment.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.Poller.MaxAttempts < 1 {
		return fmt.Errorf("invalid poller.max_attempts: %d (must be >= 1)", c.Poller.MaxAttempts)
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("invalid poller.interval: %s (must be > 0)", c.Poller.Interval)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("invalid history_size: %d (must be >= 1)", c.HistorySize)
	}
	switch c.Usage.Mode {
	case UsageLedger, UsageOff:
	case UsageRemote:
		if c.Usage.RemoteURL == "" {
			return errors.New("usage.remote_url is required when usage.mode is remote")
		}
	default:
		return fmt.Errorf("invalid usage.mode: %q", c.Usage.Mode)
	}
	return nil
}

// UsageDBPath is where the ledger lives unless configured explicitly.
func (c Config) UsageDBPath() string {
	if c.Usage.DBPath != "" {
		return c.Usage.DBPath
	}
	return filepath.Join(c.DataDir, "usage.db")
}
