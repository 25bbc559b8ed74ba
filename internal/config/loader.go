package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix    = "UVDISPATCH_"
	configEnvVar = "UVDISPATCH_CONFIG_PATH"
)

// Loader layers config sources: defaults, then an optional YAML file, then
// environment variables.
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"config.yaml",
			"config/config.yaml",
			"/etc/uvdispatch/config.yaml",
		},
		envPrefix: envPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type LoaderOption func(*Loader)

func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) { l.configPaths = paths }
}

func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) { l.envPrefix = prefix }
}

// Load layers defaults, file, env, unmarshals and validates, in that
// priority order (env wins).
func (l *Loader) Load() (*Config, error) {
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if err := l.loadConfigFile(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// The endpoint keys sit one level below "bus" in koanf's nested map,
	// which the dotted "endpoint.eN" struct tags cannot reach on unmarshal.
	cfg.Bus.EndpointE1 = l.k.String("bus.endpoint.e1")
	cfg.Bus.EndpointE2 = l.k.String("bus.endpoint.e2")
	cfg.Bus.EndpointE3 = l.k.String("bus.endpoint.e3")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) loadDefaults() error {
	defaults := map[string]any{
		"log.level":  "info",
		"log.format": "json",

		"db.host":     "localhost",
		"db.port":     5432,
		"db.user":     "uvdispatch",
		"db.password": "",
		"db.name":     "uvdispatch",
		"db.sslmode":  "disable",
		"db.poolsize": 10,

		"kv.host":     "localhost",
		"kv.port":     6379,
		"kv.password": "",
		"kv.db":       0,
		"kv.poolsize": 10,

		"bus.brokers":       []string{"localhost:9092"},
		"bus.groupid":       "uvdispatch",
		"bus.endpoint.e1":   "vehicle_orders",
		"bus.endpoint.e2":   "order_update",
		"bus.endpoint.e3":   "order_log_task",
		"bus.maxqueuesize":  10000,
		"bus.sendtimeoutms": 200,
		"bus.batchsize":     50,

		"claim.lockttlms": 1000,

		"cache.orderttlsec": 1800,

		"deadletter.expiresec":  300,
		"deadletter.archivedir": "/var/deadletter/",

		"partition.lookaheadmonths": 3,

		"geocode.baseurl":   "",
		"geocode.timeoutms": int((3 * time.Second).Milliseconds()),
	}
	return l.k.Load(confmap.Provider(defaults, "."), nil)
}

func (l *Loader) loadConfigFile() error {
	if p := os.Getenv(configEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return l.k.Load(file.Provider(p), yaml.Parser())
		}
	}
	for _, p := range l.configPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if _, err := os.Stat(abs); err == nil {
			return l.k.Load(file.Provider(abs), yaml.Parser())
		}
	}
	return fmt.Errorf("config file not found in paths: %v", l.configPaths)
}

func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(l.envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, l.envPrefix)), "_", ".")
	}), nil)
}

// MustLoad loads the configuration or panics, for the cmd/ entrypoints'
// startup path where a config error is unrecoverable.
func MustLoad(opts ...LoaderOption) *Config {
	cfg, err := NewLoader(opts...).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

func Load() (*Config, error) {
	return NewLoader().Load()
}
