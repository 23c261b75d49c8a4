// Package config loads configuration of the relay-fetch command.
//
// Values are read in the following order, a later source wins:
// flag defaults, the YAML config file, the .env file, environment variables (RELAY_ prefix), flags set by the user.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "RELAY"

	FlagConfig  = "config"
	FlagEnvFile = "env-file"
)

// Config of the relay-fetch command, the mapstructure tag is the flag name.
type Config struct {
	Endpoint    string        `mapstructure:"endpoint" validate:"required,url"`
	Token       string        `mapstructure:"token"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
	HTTP2       bool          `mapstructure:"http2"`
	RetryCount  int           `mapstructure:"retry-count" validate:"gte=0,lte=20"`
	Cache       bool          `mapstructure:"cache"`
	CacheTTL    time.Duration `mapstructure:"cache-ttl" validate:"gte=0"`
	RedisAddr   string        `mapstructure:"redis-addr" validate:"omitempty,hostname_port"`
	RedisPrefix string        `mapstructure:"redis-prefix"`
	LogLevel    string        `mapstructure:"log-level" validate:"oneof=trace debug info warn error"`
	LogFormat   string        `mapstructure:"log-format" validate:"oneof=json pretty"`
	Verbose     bool          `mapstructure:"verbose"`
}

// Flags returns the flag set with all configuration keys.
func Flags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("relay-fetch", pflag.ContinueOnError)
	flags.String(FlagConfig, "", "path to a YAML config file")
	flags.String(FlagEnvFile, ".env", "path to a .env file, it is ignored if it does not exist")
	flags.String("endpoint", "", "GraphQL endpoint URL")
	flags.String("token", "", "bearer token")
	flags.Duration("timeout", 60*time.Second, "timeout of one request")
	flags.Bool("http2", false, "force HTTP/2, the endpoint must use TLS")
	flags.Int("retry-count", 5, "maximum number of retries")
	flags.Bool("cache", false, "cache query responses")
	flags.Duration("cache-ttl", 5*time.Minute, "time to live of cached responses")
	flags.String("redis-addr", "", "address of Redis used as the cache store, an in-memory store is used if empty")
	flags.String("redis-prefix", "relay:cache", "prefix of Redis keys")
	flags.String("log-level", "info", "log level: trace, debug, info, warn, error")
	flags.String("log-format", "pretty", "log format: json, pretty")
	flags.BoolP("verbose", "v", false, "log each HTTP request")
	return flags
}

// Load reads the configuration, the flags must be already parsed.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if envFile, _ := flags.GetString(FlagEnvFile); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf(`cannot load env file "%s": %w`, envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("cannot bind flags: %w", err)
	}

	if path, _ := flags.GetString(FlagConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf(`cannot read config file "%s": %w`, path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults sets values missing in the config.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "pretty"
	}
	if c.RedisPrefix == "" {
		c.RedisPrefix = "relay:cache"
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
}

// Validate checks the config values.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		return field.Tag.Get("mapstructure")
	})

	err := validate.Struct(c)
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	messages := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		messages = append(messages, fmt.Sprintf(`"%s" %s`, e.Field(), validationMessage(e)))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(messages, ", "))
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "hostname_port":
		return "must be in the host:port format"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	default:
		return fmt.Sprintf(`failed on the "%s" rule`, e.Tag())
	}
}
