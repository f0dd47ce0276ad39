// Package config loads the policy service configuration from a YAML file.
// Every key can be overridden by an environment variable of the same name.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultPath is used when CONFIG_PATH is unset.
var DefaultPath = filepath.Join("internal", "policy", "config", "config.yaml")

// Config struct for YAML configuration
type Config struct {
	GRPCPort int `yaml:"GRPC_PORT"`
	HTTPPort int `yaml:"HTTP_PORT"`

	DBDriver   string `yaml:"DB_DRIVER"`
	DBHost     string `yaml:"DB_HOST"`
	DBPort     int    `yaml:"DB_PORT"`
	DBUser     string `yaml:"DB_USER"`
	DBPassword string `yaml:"DB_PASSWORD"`
	DBName     string `yaml:"DB_NAME"`
	DBSSLMode  string `yaml:"DB_SSLMODE"`
	DBPath     string `yaml:"DB_PATH"`

	KafkaBrokers       []string `yaml:"KAFKA_BROKERS"`
	EventsTopic        string   `yaml:"EVENTS_TOPIC"`
	NotificationsTopic string   `yaml:"NOTIFICATIONS_TOPIC"`
	RedisURL           string   `yaml:"REDIS_URL"`

	JWTSecret string `yaml:"JWT_SECRET"`

	ReminderDailyAt     string `yaml:"REMINDER_DAILY_AT"`
	ReminderWeeklyAt    string `yaml:"REMINDER_WEEKLY_AT"`
	ReminderHorizonDays int    `yaml:"REMINDER_HORIZON_DAYS"`
	Timezone            string `yaml:"TIMEZONE"`

	SeedDemo    bool   `yaml:"SEED_DEMO"`
	Environment string `yaml:"ENVIRONMENT"`
}

// Path returns the configuration file location.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the file at path, applies environment overrides and defaults,
// and validates the result. A missing file is allowed so the service can be
// configured from the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config
	file, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides every field whose yaml key is set in the environment.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Tag.Get("yaml")
		raw, ok := lookup(key)
		if !ok {
			continue
		}
		field := v.Field(i)
		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Int:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("%s: %q is not an integer", key, raw)
			}
			field.SetInt(int64(n))
		case reflect.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %q is not a boolean", key, raw)
			}
			field.SetBool(b)
		case reflect.Slice:
			var items []string
			for _, item := range strings.Split(raw, ",") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
			field.Set(reflect.ValueOf(items))
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.GRPCPort == 0 {
		c.GRPCPort = 50051
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = 8080
	}
	if c.DBDriver == "" {
		c.DBDriver = DriverPostgres
	}
	if c.DBPort == 0 {
		c.DBPort = 5432
	}
	if c.DBSSLMode == "" {
		c.DBSSLMode = "disable"
	}
	if c.DBDriver == DriverSQLite && c.DBPath == "" {
		c.DBPath = "insurecrm.db"
	}
	if c.EventsTopic == "" {
		c.EventsTopic = "policy.events"
	}
	if c.NotificationsTopic == "" {
		c.NotificationsTopic = "policy.notifications"
	}
	if c.ReminderDailyAt == "" {
		c.ReminderDailyAt = "09:00"
	}
	if c.ReminderWeeklyAt == "" {
		c.ReminderWeeklyAt = "MON 08:00"
	}
	if c.ReminderHorizonDays == 0 {
		c.ReminderHorizonDays = 30
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// Validate reports every missing or malformed setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.DBDriver {
	case DriverPostgres:
		if c.DBHost == "" {
			errs = append(errs, errors.New("DB_HOST is required"))
		}
		if c.DBUser == "" {
			errs = append(errs, errors.New("DB_USER is required"))
		}
		if c.DBName == "" {
			errs = append(errs, errors.New("DB_NAME is required"))
		}
	case DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DBDriver))
	}
	for key, port := range map[string]int{"GRPC_PORT": c.GRPCPort, "HTTP_PORT": c.HTTPPort, "DB_PORT": c.DBPort} {
		if port < 1 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s must be a valid port, got %d", key, port))
		}
	}
	if c.ReminderHorizonDays < 1 {
		errs = append(errs, errors.New("REMINDER_HORIZON_DAYS must be positive"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location is the time zone the reminder schedules run in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
