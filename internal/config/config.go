package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type PushMode string

const (
	PushModeOff       PushMode = "off"
	PushModeGRPC      PushMode = "grpc"
	PushModeWebSocket PushMode = "websocket"
)

// ServerConfig is one management endpoint plus its credentials. Either a
// username/password pair or an API token must be set. Servers are a list, not
// a map, so polling and reporting order stays deterministic.
type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TokenID     string `mapstructure:"token_id"`
	TokenSecret string `mapstructure:"token_secret"`
	InsecureTLS bool   `mapstructure:"insecure_tls"`
}

// FetchConfig tunes the resilient fetcher and the per-server worker pool.
type FetchConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BaseDelay     time.Duration `mapstructure:"base_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
}

// ThresholdConfig holds the per-resource severity boundaries.
type ThresholdConfig struct {
	Warning  float64 `mapstructure:"warning"`
	Critical float64 `mapstructure:"critical"`
}

// PushConfig configures the optional report push to a central backend.
type PushConfig struct {
	Mode       PushMode      `mapstructure:"mode"`
	GRPCAddr   string        `mapstructure:"grpc_addr"`
	GRPCMethod string        `mapstructure:"grpc_method"`
	WSURL      string        `mapstructure:"ws_url"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Servers    []ServerConfig  `mapstructure:"servers"`
	Fetch      FetchConfig     `mapstructure:"fetch"`
	Thresholds ThresholdConfig `mapstructure:"thresholds"`
	Push       PushConfig      `mapstructure:"push"`
	LogLevel   string          `mapstructure:"log_level"`
	LogJSON    bool            `mapstructure:"log_json"`
}

// Load reads the YAML config. An explicit path wins; otherwise pvescope.yaml
// is searched in the working directory, ~/.pvescope and /etc/pvescope.
// PVESCOPE_* environment variables override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pvescope")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.pvescope")
		v.AddConfigPath("/etc/pvescope")
	}

	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.base_delay", 2*time.Second)
	v.SetDefault("fetch.max_delay", 30*time.Second)
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.max_concurrent", 4)
	v.SetDefault("thresholds.warning", 0.75)
	v.SetDefault("thresholds.critical", 0.90)
	v.SetDefault("push.mode", string(PushModeOff))
	v.SetDefault("push.timeout", 8*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	v.SetEnvPrefix("PVESCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if len(c.Servers) == 0 {
		return errors.New("at least one server must be configured")
	}
	for i, s := range c.Servers {
		if strings.TrimSpace(s.Host) == "" {
			return fmt.Errorf("servers[%d]: host is required", i)
		}
		hasPassword := s.Username != "" && s.Password != ""
		hasToken := s.TokenID != "" && s.TokenSecret != ""
		if !hasPassword && !hasToken {
			return fmt.Errorf("servers[%d] (%s): username/password or token_id/token_secret is required", i, s.Host)
		}
	}
	if c.Fetch.MaxAttempts <= 0 {
		return errors.New("fetch.max_attempts must be > 0")
	}
	if c.Fetch.BaseDelay <= 0 || c.Fetch.MaxDelay < c.Fetch.BaseDelay {
		return errors.New("fetch delays must satisfy 0 < base_delay <= max_delay")
	}
	if c.Fetch.MaxConcurrent <= 0 {
		return errors.New("fetch.max_concurrent must be > 0")
	}
	if c.Thresholds.Warning <= 0 || c.Thresholds.Critical <= c.Thresholds.Warning {
		return errors.New("thresholds must satisfy 0 < warning < critical")
	}
	switch c.Push.Mode {
	case PushModeOff:
	case PushModeGRPC:
		if strings.TrimSpace(c.Push.GRPCAddr) == "" {
			return errors.New("push.grpc_addr is required for grpc mode")
		}
	case PushModeWebSocket:
		if strings.TrimSpace(c.Push.WSURL) == "" {
			return errors.New("push.ws_url is required for websocket mode")
		}
	default:
		return fmt.Errorf("unsupported push mode %q", c.Push.Mode)
	}
	return nil
}

// APIPort returns the configured API port, defaulting to 8006.
func (s ServerConfig) APIPort() int {
	if s.Port > 0 {
		return s.Port
	}
	return 8006
}

// ShortName is the first label of the host FQDN; nodes are attributed to a
// server by matching their name against it.
func (s ServerConfig) ShortName() string {
	host, _, ok := strings.Cut(s.Host, ".")
	if !ok {
		return s.Host
	}
	return host
}
