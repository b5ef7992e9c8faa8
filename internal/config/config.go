// Package config loads the term-forge configuration from a YAML file,
// TERMFORGE_* environment variables and command line flags, via viper.
package config

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/spf13/viper"

	"term-forge/internal/ontology"
)

// StoreType selects where commits go.
type StoreType string

const (
	// FileStore commits straight into each ontology's source file.
	FileStore StoreType = "file"
	// PostgreSQLStore records change sets in Postgres.
	PostgreSQLStore StoreType = "postgresql"
)

// DefaultConnectionString is used for local development when no connection
// string is configured.
const DefaultConnectionString = "postgres://localhost:5432/postgres?sslmode=disable"

// ErrInvalidConfig is returned when the loaded configuration cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// OntologyConfig describes one managed ontology.
type OntologyConfig struct {
	Name     string   `mapstructure:"name"`
	Source   string   `mapstructure:"source"`
	Support  []string `mapstructure:"support"`
	Branch   string   `mapstructure:"branch"`
	BranchID string   `mapstructure:"branch_id"`
	// Branches maps branch names used by template fields to root ids.
	// Viper lowercases map keys, so branch lookups ignore case.
	Branches map[string]string `mapstructure:"branches"`
	// Imports names the ontologies merged in through Support.
	Imports []string `mapstructure:"imports"`
	// IDPrefix is the prefix of newly allocated ids; defaults to Name.
	IDPrefix       string        `mapstructure:"id_prefix"`
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
	Watch          bool          `mapstructure:"watch"`
}

// Descriptor returns the load descriptor of the ontology.
func (o OntologyConfig) Descriptor() ontology.Descriptor {
	return ontology.Descriptor{
		Name:     o.Name,
		Branch:   o.Branch,
		BranchID: o.BranchID,
		Branches: maps.Clone(o.Branches),
		Source:   o.Source,
		Support:  append([]string(nil), o.Support...),
		Imports:  append([]string(nil), o.Imports...),
	}
}

// StoreConfig selects the commit backend.
type StoreConfig struct {
	Type             StoreType `mapstructure:"type"`
	ConnectionString string    `mapstructure:"connection_string"`
}

// Config holds all runtime configuration.
type Config struct {
	LogLevel        string           `mapstructure:"log_level"`
	TemplatesDir    string           `mapstructure:"templates_dir"`
	CredentialsFile string           `mapstructure:"credentials_file"`
	MetricsAddr     string           `mapstructure:"metrics_addr"`
	GeminiAPIKey    string           `mapstructure:"gemini_api_key"`
	Ontologies      []OntologyConfig `mapstructure:"ontologies"`
	Store           StoreConfig      `mapstructure:"store"`
}

// SetDefaults registers the built-in defaults on the global viper instance.
func SetDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("templates_dir", "templates")
	viper.SetDefault("credentials_file", "")
	viper.SetDefault("metrics_addr", ":9090")
	viper.SetDefault("gemini_api_key", "")
	viper.SetDefault("store.type", string(FileStore))
	viper.SetDefault("store.connection_string", "")
}

// BindEnv maps TERMFORGE_* environment variables onto config keys; nested
// keys use underscores (TERMFORGE_STORE_TYPE).
func BindEnv() {
	viper.SetEnvPrefix("TERMFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment or flags, and validates it.
func Load() (Config, error) {
	SetDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	switch strings.ToLower(string(c.Store.Type)) {
	case "", "file":
		c.Store.Type = FileStore
	case "postgresql", "postgres", "db":
		c.Store.Type = PostgreSQLStore
		if c.Store.ConnectionString == "" {
			c.Store.ConnectionString = DefaultConnectionString
		}
	default:
		return fmt.Errorf("%w: unknown store type %q", ErrInvalidConfig, c.Store.Type)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}

	seen := make(map[string]bool, len(c.Ontologies))
	for i := range c.Ontologies {
		o := &c.Ontologies[i]
		switch {
		case o.Name == "":
			return fmt.Errorf("%w: ontology %d has no name", ErrInvalidConfig, i)
		case seen[o.Name]:
			return fmt.Errorf("%w: ontology %s is configured twice", ErrInvalidConfig, o.Name)
		case o.Source == "":
			return fmt.Errorf("%w: ontology %s has no source", ErrInvalidConfig, o.Name)
		case o.ReloadInterval < 0:
			return fmt.Errorf("%w: ontology %s has a negative reload interval", ErrInvalidConfig, o.Name)
		case o.Branch != "" && o.BranchID == "":
			return fmt.Errorf("%w: ontology %s branch %s has no branch_id", ErrInvalidConfig, o.Name, o.Branch)
		}
		for branch, root := range o.Branches {
			if root == "" {
				return fmt.Errorf("%w: ontology %s branch %s has no root id", ErrInvalidConfig, o.Name, branch)
			}
		}
		seen[o.Name] = true
		if o.IDPrefix == "" {
			o.IDPrefix = o.Name
		}
	}
	return nil
}

// Ontology returns the configuration of a named ontology.
func (c Config) Ontology(name string) (OntologyConfig, bool) {
	for _, o := range c.Ontologies {
		if o.Name == name {
			return o, true
		}
	}
	return OntologyConfig{}, false
}
