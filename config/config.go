package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. HTMLCSV_INPUT.
const EnvPrefix = "HTMLCSV"

// Config holds converter configuration.
type Config struct {
	InputPath       string        `mapstructure:"input" validate:"required"`
	OutputPath      string        `mapstructure:"output" validate:"required"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries      int           `mapstructure:"max_retries" validate:"gte=0"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff" validate:"gte=0"`
	RetryBackoffMax time.Duration `mapstructure:"retry_backoff_max" validate:"gte=0"`
	UserAgent       string        `mapstructure:"user_agent" validate:"required"`
	CacheSize       int           `mapstructure:"cache_size" validate:"gt=0"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	Verbose         bool          `mapstructure:"verbose"`
}

// DefaultConfig returns the defaults, which reproduce the fixed
// kansas_schools_raw.html -> kansas_schools_raw.csv conversion.
func DefaultConfig() *Config {
	return &Config{
		InputPath:       "kansas_schools_raw.html",
		OutputPath:      "kansas_schools_raw.csv",
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		RetryBackoff:    200 * time.Millisecond,
		RetryBackoffMax: 2 * time.Second,
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		CacheSize:       16,
		MetricsAddr:     "",
		Verbose:         false,
	}
}

// Load builds a Config from defaults, an optional YAML file and HTMLCSV_*
// environment variables, in increasing order of precedence. When configFile
// is empty, .htmlcsv.yaml in the working directory is used if present.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(".htmlcsv")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("input", cfg.InputPath)
	v.SetDefault("output", cfg.OutputPath)
	v.SetDefault("timeout", cfg.Timeout)
	v.SetDefault("max_retries", cfg.MaxRetries)
	v.SetDefault("retry_backoff", cfg.RetryBackoff)
	v.SetDefault("retry_backoff_max", cfg.RetryBackoffMax)
	v.SetDefault("user_agent", cfg.UserAgent)
	v.SetDefault("cache_size", cfg.CacheSize)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("verbose", cfg.Verbose)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%s failed %q validation (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("validate config: %w", err)
	}

	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if !IsURL(c.InputPath) && filepath.Clean(c.InputPath) == filepath.Clean(c.OutputPath) {
		return fmt.Errorf("input and output cannot be the same file: %s", c.InputPath)
	}

	return nil
}

// IsURL reports whether location names an http or https resource rather
// than a filesystem path.
func IsURL(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
