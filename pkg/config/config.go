// Package config loads the service configuration from YAML or JSON, applies
// environment overrides, validates it and watches it for feature changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fluxorio/todochaos/pkg/observability/otel"
	"github.com/fluxorio/todochaos/pkg/tasks"
	"github.com/fluxorio/todochaos/pkg/web"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "TODOCHAOS_"

// AppConfig is the whole service configuration
type AppConfig struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Dashboard DashboardConfig `json:"dashboard" yaml:"dashboard"`
	Docstore  DocstoreConfig  `json:"docstore" yaml:"docstore"`
	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	Chaos     ChaosConfig     `json:"chaos" yaml:"chaos"`
	Features  tasks.Features  `json:"features" yaml:"features"`
	Boundary  BoundaryConfig  `json:"boundary" yaml:"boundary"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Tracing   otel.Config     `json:"tracing" yaml:"tracing"`
}

// ServerConfig configures the API server
type ServerConfig struct {
	web.FastHTTPServerConfig `yaml:",inline"`
	RequestTimeout           time.Duration `json:"requestTimeout" yaml:"request_timeout" validate:"gte=0"`
	CORSOrigins              []string      `json:"corsOrigins" yaml:"cors_origins"`
}

// DashboardConfig configures the observability server
type DashboardConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr" validate:"required_if=Enabled true"`
}

// DocstoreConfig selects the task backend
type DocstoreConfig struct {
	Driver string `json:"driver" yaml:"driver" validate:"oneof=sqlite sqlite3 postgres pgx"`
	DSN    string `json:"dsn" yaml:"dsn" validate:"required"`
}

// AuthConfig configures sessions
type AuthConfig struct {
	Secret string        `json:"secret" yaml:"secret" validate:"required,min=16"`
	Issuer string        `json:"issuer" yaml:"issuer"`
	TTL    time.Duration `json:"ttl" yaml:"ttl" validate:"gte=0"`
	// Accounts maps display names to bcrypt hashes; any name may sign in
	// when empty
	Accounts   map[string]string `json:"accounts" yaml:"accounts"`
	LoginRate  float64           `json:"loginRate" yaml:"login_rate" validate:"gte=0"`
	LoginBurst int               `json:"loginBurst" yaml:"login_burst" validate:"gte=0"`
	// APIKeys maps operator keys to their roles
	APIKeys map[string][]string `json:"apiKeys" yaml:"api_keys"`
}

// ChaosConfig configures the fault injector
type ChaosConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	LatencyDelay time.Duration `json:"latencyDelay" yaml:"latency_delay" validate:"gte=0"`
}

// BoundaryConfig configures the crash boundary
type BoundaryConfig struct {
	ResetDelay time.Duration `json:"resetDelay" yaml:"reset_delay" validate:"gt=0"`
}

// LoggingConfig configures process logs and log store sinks
type LoggingConfig struct {
	JSON     bool   `json:"json" yaml:"json"`
	Level    string `json:"level" yaml:"level" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Capacity int    `json:"capacity" yaml:"capacity" validate:"gte=0"`
	// Console mirrors log store entries to stdout/stderr
	Console bool       `json:"console" yaml:"console"`
	NATS    NATSConfig `json:"nats" yaml:"nats"`
}

// NATSConfig forwards log store entries to NATS when URL is set
type NATSConfig struct {
	URL     string `json:"url" yaml:"url" validate:"omitempty,url"`
	Subject string `json:"subject" yaml:"subject"`
}

// Default returns a configuration that runs locally without a file. The
// auth secret still has to be provided.
func Default() *AppConfig {
	server := web.DefaultFastHTTPServerConfig(":8080")
	tracing := otel.DefaultConfig()
	return &AppConfig{
		Server: ServerConfig{
			FastHTTPServerConfig: *server,
			RequestTimeout:       10 * time.Second,
		},
		Dashboard: DashboardConfig{Enabled: true, Addr: ":9090"},
		Docstore:  DocstoreConfig{Driver: "sqlite", DSN: "todochaos.db"},
		Auth: AuthConfig{
			Issuer:     "todochaos",
			TTL:        24 * time.Hour,
			LoginRate:  5,
			LoginBurst: 10,
		},
		Chaos:    ChaosConfig{Enabled: false},
		Features: tasks.Features{ShowTimestamp: true, EnableDelete: true},
		Boundary: BoundaryConfig{ResetDelay: 3 * time.Second},
		Logging: LoggingConfig{
			Level:   "INFO",
			Console: true,
			NATS:    NATSConfig{Subject: "sre.logs"},
		},
		Tracing: tracing,
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path loads defaults and environment only.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *AppConfig) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path, cfg)
	case ".json":
		return LoadJSON(path, cfg)
	default:
		return fmt.Errorf("unsupported config format: %s", path)
	}
}

// ApplyEnv overrides the settings most often injected by a deployment
func ApplyEnv(cfg *AppConfig, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
		return nil
	}

	str("ADDR", &cfg.Server.Addr)
	str("DASHBOARD_ADDR", &cfg.Dashboard.Addr)
	str("DOCSTORE_DRIVER", &cfg.Docstore.Driver)
	str("DOCSTORE_DSN", &cfg.Docstore.DSN)
	str("AUTH_SECRET", &cfg.Auth.Secret)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("NATS_URL", &cfg.Logging.NATS.URL)
	str("TRACING_EXPORTER", &cfg.Tracing.Exporter)
	str("TRACING_ENDPOINT", &cfg.Tracing.Endpoint)

	return errors.Join(
		boolean("CHAOS_ENABLED", &cfg.Chaos.Enabled),
		boolean("LOG_JSON", &cfg.Logging.JSON),
	)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and cross-field rules
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("invalid config: tracing: %w", err)
	}
	for key, roles := range c.Auth.APIKeys {
		if len(key) < 16 {
			return fmt.Errorf("invalid config: api key %q... is shorter than 16 characters", key[:min(4, len(key))])
		}
		if len(roles) == 0 {
			return errors.New("invalid config: api key without roles")
		}
	}
	return nil
}

// APIKeyClaims converts the api key table to the middleware's claims form
func (c *AppConfig) APIKeyClaims() map[string]map[string]interface{} {
	if len(c.Auth.APIKeys) == 0 {
		return nil
	}
	out := make(map[string]map[string]interface{}, len(c.Auth.APIKeys))
	for key, roles := range c.Auth.APIKeys {
		out[key] = map[string]interface{}{"roles": append([]string(nil), roles...)}
	}
	return out
}
