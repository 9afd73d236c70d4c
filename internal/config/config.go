// Package config loads the application configuration from a config file, the
// environment and an optional .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Debug     bool            `mapstructure:"debug"`
}

// DatabaseConfig contains the PostgreSQL connection settings
type DatabaseConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	Database       string        `mapstructure:"database"`
	SSLMode        string        `mapstructure:"sslmode"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MetadataTTL    time.Duration `mapstructure:"metadata_ttl"`
}

// GeneratorConfig controls the relation source generator
type GeneratorConfig struct {
	OutputDir string   `mapstructure:"output_dir"`
	Package   string   `mapstructure:"package"`
	Schemas   []string `mapstructure:"schemas"`
}

// ConnectionString builds the PostgreSQL connection string
func (c DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
		int(c.ConnectTimeout.Seconds()),
	)
}

// Load reads the configuration from relata.yaml (working directory or
// $HOME/.relata), environment variables prefixed with RELATA_, and an
// optional .env file. Environment variables take precedence.
func Load() (*Config, error) {
	// Load .env if present; real environment variables win.
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded .env file")
	}

	v := viper.New()
	v.SetConfigName("relata")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.relata")

	v.SetEnvPrefix("RELATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Loaded config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "postgres")
	v.SetDefault("database.sslmode", "prefer")
	v.SetDefault("database.connect_timeout", 10*time.Second)
	v.SetDefault("database.metadata_ttl", 5*time.Minute)
	v.SetDefault("generator.output_dir", ".")
	v.SetDefault("generator.package", "")
	v.SetDefault("generator.schemas", []string{"public"})
	v.SetDefault("debug", false)
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database.host must not be empty")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port %d is out of range", c.Database.Port)
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database.database must not be empty")
	}
	return nil
}
