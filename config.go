package instrumentz

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadConfigFromEnv.
const EnvPrefix = "INSTRUMENTZ"

// DefaultFlushInterval is how often buffered traces are reported.
const DefaultFlushInterval = 60 * time.Second

// TokenValidator checks the authentication token at startup. Returning an
// error wrapping ErrInvalidToken aborts startup; any other error is logged
// and startup continues.
type TokenValidator func(ctx context.Context, token string) error

// TraceInfo resolves the endpoint of the trace open on an execution context.
type TraceInfo interface {
	Endpoint(ctx context.Context) (Endpoint, bool)
}

// TraceInfoFunc adapts a function to TraceInfo.
type TraceInfoFunc func(ctx context.Context) (Endpoint, bool)

// Endpoint calls f.
func (f TraceInfoFunc) Endpoint(ctx context.Context) (Endpoint, bool) {
	return f(ctx)
}

// Config holds everything the engine consumes at startup.
//
//nolint:govet // Field order follows the configuration file layout
type Config struct {
	Token                 string        `yaml:"token" envconfig:"TOKEN"`
	IgnoredEndpoint       string        `yaml:"ignored_endpoint" envconfig:"IGNORED_ENDPOINT"`
	IgnoredEndpoints      EndpointList  `yaml:"ignored_endpoints" envconfig:"IGNORED_ENDPOINTS"`
	MaxUniqueDescriptions int           `yaml:"max_unique_descriptions" envconfig:"MAX_UNIQUE_DESCRIPTIONS" default:"100"`
	MaxTracesPerEndpoint  int           `yaml:"max_traces_per_endpoint" envconfig:"MAX_TRACES_PER_ENDPOINT" default:"0"`
	FlushInterval         time.Duration `yaml:"flush_interval" envconfig:"FLUSH_INTERVAL" default:"60s"`
	Log                   LogConfig     `yaml:"log"`

	// Collaborators. None of these are read from the environment or files.
	Logger         *zap.Logger           `yaml:"-" ignored:"true"`
	Clock          Clock                 `yaml:"-" ignored:"true"`
	TokenValidator TokenValidator        `yaml:"-" ignored:"true"`
	TraceInfo      TraceInfo             `yaml:"-" ignored:"true"`
	UUID           UUIDFunc              `yaml:"-" ignored:"true"`
	Transport      Transport             `yaml:"-" ignored:"true"`
	Registerer     prometheus.Registerer `yaml:"-" ignored:"true"`
}

// DefaultConfig returns the built-in defaults. Token is left empty.
func DefaultConfig() Config {
	return Config{
		MaxUniqueDescriptions: DefaultMaxUniqueDescriptions,
		FlushInterval:         DefaultFlushInterval,
		Log:                   DefaultLogConfig(),
	}
}

// LoadConfigFromEnv reads INSTRUMENTZ_* environment variables over the defaults.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, &ConfigError{Msg: fmt.Sprintf("failed to load config: %v", err)}
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML configuration file over base.
func LoadConfigFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, &ConfigError{Msg: fmt.Sprintf("read config %s: %v", path, err)}
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, &ConfigError{Msg: fmt.Sprintf("parse config %s: %v", path, err)}
	}
	return cfg, nil
}

// Validate checks the configuration and returns a *ConfigError.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return &ConfigError{Field: "token", Msg: "is required"}
	}
	if c.MaxUniqueDescriptions < 0 {
		return &ConfigError{Field: "max_unique_descriptions", Msg: "must not be negative"}
	}
	if c.MaxTracesPerEndpoint < 0 {
		return &ConfigError{Field: "max_traces_per_endpoint", Msg: "must not be negative"}
	}
	if c.FlushInterval < 0 {
		return &ConfigError{Field: "flush_interval", Msg: "must not be negative"}
	}
	return nil
}

// IgnoredEndpointSet merges IgnoredEndpoint and IgnoredEndpoints.
// IgnoredEndpoint is a single name and is never split.
func (c *Config) IgnoredEndpointSet() map[Endpoint]struct{} {
	set := make(map[Endpoint]struct{})
	if name := strings.TrimSpace(c.IgnoredEndpoint); name != "" {
		set[name] = struct{}{}
	}
	for _, name := range c.IgnoredEndpoints {
		if name = strings.TrimSpace(name); name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

// EndpointList is a list of endpoint names. It decodes from a YAML sequence,
// a YAML scalar, or an environment string; strings are split on commas and
// each entry is trimmed.
type EndpointList []Endpoint

// ParseEndpointList splits each value on commas, trims entries and drops
// empty ones.
func ParseEndpointList(values ...string) EndpointList {
	var list EndpointList
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				list = append(list, part)
			}
		}
	}
	return list
}

// Decode implements envconfig.Decoder.
func (l *EndpointList) Decode(value string) error {
	*l = ParseEndpointList(value)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *EndpointList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var value string
		if err := node.Decode(&value); err != nil {
			return err
		}
		*l = ParseEndpointList(value)
	case yaml.SequenceNode:
		var values []string
		if err := node.Decode(&values); err != nil {
			return err
		}
		*l = ParseEndpointList(values...)
	default:
		return fmt.Errorf("ignored endpoints: unsupported YAML node at line %d", node.Line)
	}
	return nil
}
