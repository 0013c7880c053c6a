// Package config loads runtime configuration and agent definitions.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	RPC    RPCConfig    `mapstructure:"rpc"`
	Market MarketConfig `mapstructure:"market"`
	Wallet WalletConfig `mapstructure:"wallet"`
	Agents AgentsConfig `mapstructure:"agents"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name      string `mapstructure:"name"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // json or console
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// RPCConfig contains the Solana RPC settings. Endpoints (comma
// separated) takes precedence over the single URL.
type RPCConfig struct {
	Endpoints             string `mapstructure:"endpoints"`
	URL                   string `mapstructure:"url"`
	MaxRetries            int    `mapstructure:"max_retries"`
	BaseDelayMs           int    `mapstructure:"base_delay_ms"`
	HealthCheckIntervalMs int    `mapstructure:"health_check_interval_ms"`
}

// MarketConfig contains the market provider settings. DemoMode keeps
// the provider fully simulated; otherwise live prices are fetched with
// simulated fallback.
type MarketConfig struct {
	DemoMode bool   `mapstructure:"demo_mode"`
	PriceURL string `mapstructure:"price_url"`
	Seed     int64  `mapstructure:"seed"`
}

// WalletConfig contains the wallet settings. The seed is sensitive and
// must never be logged.
type WalletConfig struct {
	Seed string `mapstructure:"seed"`
}

// AgentsConfig locates the agent definition files.
type AgentsConfig struct {
	Dir string `mapstructure:"dir"`
}

// EndpointList resolves the ordered RPC endpoint pool: the
// comma-separated list when present, else the single URL, else empty
// (the client falls back to its default endpoint).
func (c *RPCConfig) EndpointList() []string {
	var out []string
	for _, e := range strings.Split(c.Endpoints, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	if len(out) > 0 {
		return out
	}
	if url := strings.TrimSpace(c.URL); url != "" {
		return []string{url}
	}
	return nil
}

// Load reads configuration from an optional YAML file and the
// environment. An empty configPath searches ./configs and the working
// directory; a missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("AUTARCH")

	// Well-known bare environment names.
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("rpc.url", "RPC_URL")
	_ = v.BindEnv("rpc.endpoints", "RPC_ENDPOINTS")
	_ = v.BindEnv("market.demo_mode", "DEMO_MODE")
	_ = v.BindEnv("wallet.seed", "AUTARCH_SEED")
	_ = v.BindEnv("app.log_level", "AUTARCH_LOG_LEVEL")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("server port %d out of range", cfg.Server.Port)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "Autarch")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	v.SetDefault("server.port", 3000)

	v.SetDefault("rpc.max_retries", 3)
	v.SetDefault("rpc.base_delay_ms", 1000)
	v.SetDefault("rpc.health_check_interval_ms", 30000)

	v.SetDefault("market.demo_mode", true)
	v.SetDefault("market.seed", 0)

	v.SetDefault("agents.dir", "./configs/agents")
}
