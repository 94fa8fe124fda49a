package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is looked up in the home directory when no path is given.
	ConfigFileName = ".hitcall"
	// ConfigFileExtension is the extension of the default config file.
	ConfigFileExtension = ".yaml"
	// EnvPrefix prefixes every environment override, e.g. HITCALL_TIMEOUT.
	EnvPrefix = "HITCALL"
)

// Config represents the hitcall configuration
type Config struct {
	Timeout         time.Duration     `mapstructure:"timeout"`
	FollowRedirects bool              `mapstructure:"followRedirects"`
	MaxRedirects    int               `mapstructure:"maxRedirects"`
	Headers         map[string]string `mapstructure:"headers"` // sent under descriptor headers
	NoColor         bool              `mapstructure:"noColor"`
	Verbose         bool              `mapstructure:"verbose"`
	StrictAuth      bool              `mapstructure:"strictAuth"`
	Output          string            `mapstructure:"output"`
	LogLevel        string            `mapstructure:"logLevel"`

	// File is the config file that was read, empty when none was found.
	File string
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Timeout:         30 * time.Second,
		FollowRedirects: true,
		MaxRedirects:    10,
		Output:          "console",
		LogLevel:        "warn",
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("followRedirects", d.FollowRedirects)
	v.SetDefault("maxRedirects", d.MaxRedirects)
	v.SetDefault("headers", map[string]string{})
	v.SetDefault("noColor", d.NoColor)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("strictAuth", d.StrictAuth)
	v.SetDefault("output", d.Output)
	v.SetDefault("logLevel", d.LogLevel)
}

// DefaultPath returns the config file used when none is given.
func DefaultPath(home string) string {
	return filepath.Join(home, ConfigFileName+ConfigFileExtension)
}

// Load reads configuration from path, or from the default file in home when
// path is empty. A missing default file is not an error; a missing explicit
// file is. Environment variables prefixed with HITCALL_ override the file.
func Load(path, home string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	if err := v.BindEnv("logLevel", EnvPrefix+"_LOG_LEVEL"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("strictAuth", EnvPrefix+"_STRICT_AUTH"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("noColor", EnvPrefix+"_NO_COLOR"); err != nil {
		return nil, err
	}

	file := ""
	if path != "" {
		v.SetConfigFile(path)
	} else if home != "" {
		v.AddConfigPath(home)
		v.SetConfigName(ConfigFileName)
		v.SetConfigType("yaml")
	}

	if path != "" || home != "" {
		err := v.ReadInConfig()
		var notFound viper.ConfigFileNotFoundError
		switch {
		case err == nil:
			file = v.ConfigFileUsed()
		case errors.As(err, &notFound):
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.File = file
	return cfg, nil
}

// LoadDotEnv loads dir/.env into the process environment when it exists.
// Variables already set are not overridden.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}
