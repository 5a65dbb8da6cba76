// Package config loads service configuration from defaults, an optional
// file, BOOKQUERY_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. BOOKQUERY_DB_PATH.
const EnvPrefix = "BOOKQUERY"

// Config is the complete service configuration
type Config struct {
	DB      DBConfig      `mapstructure:"db"`
	GRPC    GRPCConfig    `mapstructure:"grpc"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
	Seed    SeedConfig    `mapstructure:"seed"`
	Server  ServerConfig  `mapstructure:"server"`
}

type DBConfig struct {
	Path       string `mapstructure:"path"`       // SQLite file or ":memory:"
	Collection string `mapstructure:"collection"` // Table holding the books
}

type GRPCConfig struct {
	Port int `mapstructure:"port"`
}

type MetricsConfig struct {
	Port int `mapstructure:"port"` // 0 disables the observability server
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type SeedConfig struct {
	File string `mapstructure:"file"` // YAML dataset; empty uses the embedded one
}

type ServerConfig struct {
	MaxDocuments int `mapstructure:"max_documents"` // Cap on documents per gRPC response
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"db":            "db.path",
	"collection":    "db.collection",
	"grpc-port":     "grpc.port",
	"metrics-port":  "metrics.port",
	"log-level":     "log.level",
	"log-pretty":    "log.pretty",
	"seed-file":     "seed.file",
	"max-documents": "server.max_documents",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.path", "bookquery.db")
	v.SetDefault("db.collection", "books")
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("seed.file", "")
	v.SetDefault("server.max_documents", 1000)
}

// Options controls where Load looks for settings
type Options struct {
	File  string         // Explicit config file; missing is an error
	Flags *pflag.FlagSet // Flags that override every other source
}

// Load resolves the configuration. Precedence, highest first: flags set on
// the command line, environment, config file, defaults.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", opts.File, err)
		}
	} else {
		v.SetConfigName("bookquery")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: %w", err)
			}
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values Load cannot type-check.
func (c *Config) Validate() error {
	if c.DB.Path == "" {
		return errors.New("config: db.path is required")
	}
	if c.GRPC.Port <= 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("config: grpc.port %d out of range", c.GRPC.Port)
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("config: metrics.port %d out of range", c.Metrics.Port)
	}
	if c.Server.MaxDocuments < 0 {
		return fmt.Errorf("config: server.max_documents must be non-negative, got %d", c.Server.MaxDocuments)
	}
	return nil
}
