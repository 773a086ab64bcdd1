package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the agent runtime settings. Zero values fall back to the
// defaults from DefaultConfig.
type Config struct {
	Queue    QueueConfig    `yaml:"queue"`
	Resolver ResolverConfig `yaml:"resolver"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

type ResolverConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"ratePerSecond"`
	Burst         int           `yaml:"burst"`
	IdleTTL       time.Duration `yaml:"idleTTL"`
	StaticPeers   []StaticPeer  `yaml:"staticPeers"`
}

// StaticPeer pre-seeds the resolver with a known counterpart.
type StaticPeer struct {
	Did      string `yaml:"did"`
	Verkey   string `yaml:"verkey"`
	Endpoint string `yaml:"endpoint"`
}

type WalletConfig struct {
	Path   string `yaml:"path"`
	Secret string `yaml:"secret"`
}

type MetricsConfig struct {
	ListenAddress string `yaml:"listenAddress"`
}

func DefaultConfig() Config {
	return Config{
		Queue: QueueConfig{Capacity: 256},
		Resolver: ResolverConfig{
			Timeout:       10 * time.Second,
			RatePerSecond: 5,
			Burst:         10,
			IdleTTL:       10 * time.Minute,
		},
		Metrics: MetricsConfig{ListenAddress: "127.0.0.1:9464"},
	}
}

// LoadFromPath reads the first readable candidate config file, merges it over
// the defaults and applies environment overrides. A missing or unparsable
// file falls back to defaults rather than failing startup.
func LoadFromPath(configPath string) Config {
	cfg := DefaultConfig()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"configs/agent.yaml",
			"agent.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}

		merged := cfg
		Merge(&merged, parsed)
		ApplyEnvOverrides(&merged)
		return merged
	}

	ApplyEnvOverrides(&cfg)
	return cfg
}

func Merge(dst *Config, src Config) {
	if src.Queue.Capacity != 0 {
		dst.Queue.Capacity = src.Queue.Capacity
	}
	if src.Resolver.Timeout != 0 {
		dst.Resolver.Timeout = src.Resolver.Timeout
	}
	if src.Resolver.RatePerSecond != 0 {
		dst.Resolver.RatePerSecond = src.Resolver.RatePerSecond
	}
	if src.Resolver.Burst != 0 {
		dst.Resolver.Burst = src.Resolver.Burst
	}
	if src.Resolver.IdleTTL != 0 {
		dst.Resolver.IdleTTL = src.Resolver.IdleTTL
	}
	if src.Resolver.StaticPeers != nil {
		dst.Resolver.StaticPeers = src.Resolver.StaticPeers
	}
	if src.Wallet.Path != "" {
		dst.Wallet.Path = src.Wallet.Path
	}
	if src.Wallet.Secret != "" {
		dst.Wallet.Secret = src.Wallet.Secret
	}
	if src.Metrics.ListenAddress != "" {
		dst.Metrics.ListenAddress = src.Metrics.ListenAddress
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if raw := strings.TrimSpace(os.Getenv("AEGIS_QUEUE_CAPACITY")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			cfg.Queue.Capacity = v
		}
	}
	if raw := strings.TrimSpace(os.Getenv("AEGIS_RESOLVER_TIMEOUT")); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil && v > 0 {
			cfg.Resolver.Timeout = v
		}
	}
	if raw := strings.TrimSpace(os.Getenv("AEGIS_RESOLVER_RPS")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 {
			cfg.Resolver.RatePerSecond = v
		}
	}
	if raw := strings.TrimSpace(os.Getenv("AEGIS_RESOLVER_BURST")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			cfg.Resolver.Burst = v
		}
	}
	if raw := strings.TrimSpace(os.Getenv("AEGIS_WALLET_PATH")); raw != "" {
		cfg.Wallet.Path = raw
	}
	if raw := os.Getenv("AEGIS_WALLET_SECRET"); raw != "" {
		cfg.Wallet.Secret = raw
	}
	if raw := strings.TrimSpace(os.Getenv("AEGIS_METRICS_ADDR")); raw != "" {
		cfg.Metrics.ListenAddress = raw
	}
}
