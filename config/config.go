// Package config loads runtime settings from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "SCOREVERA"

type Config struct {
	HTTP     HTTP
	Database Database
	Auth     Auth
	Rounds   Rounds
	Analyzer Analyzer
	Letters  Letters
	Redis    Redis
	Kafka    Kafka
	Outbox   Outbox
	Logging  Logging
}

type HTTP struct {
	Addr string
}

type Database struct {
	URL      string
	MaxConns int32
}

type Auth struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type Rounds struct {
	WindowDays int
	Max        int
	UrgentDays int
}

type Analyzer struct {
	URL      string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type Letters struct {
	Timeout      time.Duration
	GeminiAPIKey string
	Model        string
}

type Redis struct {
	URL string
}

type Kafka struct {
	Brokers []string
	Topic   string
}

type Outbox struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

type Logging struct {
	Level  string
	Format string
}

// SetDefaults registers every key so that environment overrides resolve even
// without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("rounds.window_days", 30)
	v.SetDefault("rounds.max", 3)
	v.SetDefault("rounds.urgent_days", 7)
	v.SetDefault("analyzer.url", "")
	v.SetDefault("analyzer.timeout", 60*time.Second)
	v.SetDefault("analyzer.cache_ttl", 24*time.Hour)
	v.SetDefault("letters.timeout", 30*time.Second)
	v.SetDefault("letters.gemini_api_key", "")
	v.SetDefault("letters.model", "gemini-2.0-flash")
	v.SetDefault("redis.url", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "scorevera.disputes")
	v.SetDefault("outbox.interval", 2*time.Second)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_attempts", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Init wires the environment binding and reads the optional config file.
// A missing file at the default search path is not an error.
func Init(v *viper.Viper, file string) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("scorevera")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/scorevera")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("config: read: %w", err)
		}
	}
	return nil
}

// Load materializes a Config from v. It does not validate.
func Load(v *viper.Viper) Config {
	return Config{
		HTTP:     HTTP{Addr: v.GetString("http.addr")},
		Database: Database{URL: v.GetString("database.url"), MaxConns: v.GetInt32("database.max_conns")},
		Auth:     Auth{JWTSecret: v.GetString("auth.jwt_secret"), TokenTTL: v.GetDuration("auth.token_ttl")},
		Rounds: Rounds{
			WindowDays: v.GetInt("rounds.window_days"),
			Max:        v.GetInt("rounds.max"),
			UrgentDays: v.GetInt("rounds.urgent_days"),
		},
		Analyzer: Analyzer{
			URL:      v.GetString("analyzer.url"),
			Timeout:  v.GetDuration("analyzer.timeout"),
			CacheTTL: v.GetDuration("analyzer.cache_ttl"),
		},
		Letters: Letters{
			Timeout:      v.GetDuration("letters.timeout"),
			GeminiAPIKey: v.GetString("letters.gemini_api_key"),
			Model:        v.GetString("letters.model"),
		},
		Redis: Redis{URL: v.GetString("redis.url")},
		Kafka: Kafka{Brokers: splitList(v.GetStringSlice("kafka.brokers")), Topic: v.GetString("kafka.topic")},
		Outbox: Outbox{
			Interval:    v.GetDuration("outbox.interval"),
			BatchSize:   v.GetInt("outbox.batch_size"),
			MaxAttempts: v.GetInt("outbox.max_attempts"),
		},
		Logging: Logging{Level: v.GetString("logging.level"), Format: v.GetString("logging.format")},
	}
}

// splitList accepts both YAML lists and a comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks the settings every command depends on. Database and
// secret checks are skipped in memory mode.
func (c Config) Validate(memory bool) error {
	var errs []error
	if c.Rounds.WindowDays <= 0 {
		errs = append(errs, fmt.Errorf("rounds.window_days must be positive, got %d", c.Rounds.WindowDays))
	}
	if c.Rounds.Max < 0 {
		errs = append(errs, fmt.Errorf("rounds.max must not be negative, got %d", c.Rounds.Max))
	}
	if c.Rounds.UrgentDays < 0 {
		errs = append(errs, fmt.Errorf("rounds.urgent_days must not be negative, got %d", c.Rounds.UrgentDays))
	}
	if c.Auth.JWTSecret == "" && !memory {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Database.URL == "" && !memory {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Outbox.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("outbox.batch_size must be positive, got %d", c.Outbox.BatchSize))
	}
	if c.Outbox.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("outbox.max_attempts must be positive, got %d", c.Outbox.MaxAttempts))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
