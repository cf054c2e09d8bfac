// Package config is the errwatch daemon's Configuration per spec.md §6: a
// YAML-loaded, validated, immutable-after-construction value. Load mirrors
// the teacher's Load/validate/loadFromEnv triple, generalized to this
// daemon's fields and layered with struct-tag validation and optional
// hot-reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	apperrors "github.com/triagectl/errwatch/internal/errors"
)

// Config is the full daemon configuration accepted by the core at
// construction (spec.md §6).
type Config struct {
	PollIntervalSeconds           int           `yaml:"poll_interval_seconds" validate:"gt=0"`
	ErrorLookbackMinutes          int           `yaml:"error_lookback_minutes" validate:"gt=0"`
	PollBatchSize                 int           `yaml:"poll_batch_size" validate:"gt=0"`
	MinOccurrenceForInvestigation int           `yaml:"min_occurrence_for_investigation" validate:"gt=0"`
	EventsPerFingerprint          int           `yaml:"events_per_fingerprint" validate:"gt=0"`
	IgnoreTags                    []string      `yaml:"ignore_tags"`
	MaxConcurrentInvestigations   int           `yaml:"max_concurrent_investigations" validate:"gte=1"`
	PerDiagnosisBudgetUsd         float64       `yaml:"per_diagnosis_budget_usd" validate:"gt=0"`
	DailyBudgetUsd                float64       `yaml:"daily_budget_usd" validate:"gt=0"`
	CodebasePath                  string        `yaml:"codebase_path"`
	Services                     []string      `yaml:"services"`

	Timeouts Timeouts `yaml:"timeouts"`
	Logging  Logging  `yaml:"logging"`
	Store    Store    `yaml:"store"`
	Diagnosis Diagnosis `yaml:"diagnosis"`
	Notification Notification `yaml:"notification"`
	Telemetry Telemetry `yaml:"telemetry"`
	Webhook  Webhook  `yaml:"webhook"`
	Triage   Triage   `yaml:"triage"`
}

// Triage configures the optional per-cycle Rego policy evaluation that
// widens triage.Config's ignore-tag set with team/tier signals the static
// config doesn't carry (SPEC_FULL.md §4.13). Disabled by default: the
// Scheduler then runs on MinOccurrenceForInvestigation/IgnoreTags alone.
type Triage struct {
	PolicyEnabled bool            `yaml:"policy_enabled"`
	Services      []TriageService `yaml:"services"`
}

// TriageService names one service's ownership metadata for policy
// evaluation: which team owns it and its declared tier.
type TriageService struct {
	Name string `yaml:"name"`
	Team string `yaml:"team"`
	Tier string `yaml:"tier"`
}

// Telemetry configures the observability backend the otel adapter queries
// (SPEC_FULL.md §4.11).
type Telemetry struct {
	BaseURL string `yaml:"base_url"`
}

// Timeouts holds the per-call deadlines of spec.md §5.
type Timeouts struct {
	TelemetrySeconds    int `yaml:"telemetry_seconds" validate:"gt=0"`
	DiagnosisSeconds    int `yaml:"diagnosis_seconds" validate:"gt=0"`
	NotificationSeconds int `yaml:"notification_seconds" validate:"gt=0"`
	StoreSeconds        int `yaml:"store_seconds" validate:"gt=0"`
}

func (t Timeouts) Telemetry() time.Duration    { return time.Duration(t.TelemetrySeconds) * time.Second }
func (t Timeouts) Diagnosis() time.Duration    { return time.Duration(t.DiagnosisSeconds) * time.Second }
func (t Timeouts) Notification() time.Duration { return time.Duration(t.NotificationSeconds) * time.Second }
func (t Timeouts) Store() time.Duration        { return time.Duration(t.StoreSeconds) * time.Second }

// Logging configures the zap-backed logger (SPEC_FULL.md §2.1).
type Logging struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// Store configures the Postgres adapter (SPEC_FULL.md §4.8).
type Store struct {
	DSN             string `yaml:"dsn"`
	MigrationsPath  string `yaml:"migrations_path"`
	RedisAddr       string `yaml:"redis_addr"`
}

// Diagnosis selects and configures the diagnosis adapter (SPEC_FULL.md §4.10).
type Diagnosis struct {
	Provider  string `yaml:"provider" validate:"oneof=anthropic bedrock"`
	Model     string `yaml:"model"`
	AWSRegion string `yaml:"aws_region"`
}

// Webhook configures the optional HTTP surface (SPEC_FULL.md §6.1).
type Webhook struct {
	Port    string `yaml:"port"`
	Enabled bool   `yaml:"enabled"`
}

// Notification selects and configures the alert sink (SPEC_FULL.md §4.12).
type Notification struct {
	Provider string `yaml:"provider" validate:"oneof=slack issuetracker stdout markdown"`

	Slack struct {
		BotToken string `yaml:"bot_token"`
		Channel  string `yaml:"channel"`
	} `yaml:"slack"`

	IssueTracker struct {
		BaseURL      string `yaml:"base_url"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		TokenURL     string `yaml:"token_url"`
		Project      string `yaml:"project"`
	} `yaml:"issue_tracker"`

	OutputDir string `yaml:"output_dir"`
}

func defaults() Config {
	return Config{
		PollIntervalSeconds:           60,
		ErrorLookbackMinutes:          15,
		PollBatchSize:                 100,
		MinOccurrenceForInvestigation: 5,
		EventsPerFingerprint:          20,
		MaxConcurrentInvestigations:   1,
		PerDiagnosisBudgetUsd:         1.0,
		DailyBudgetUsd:                20.0,
		Timeouts: Timeouts{
			TelemetrySeconds:    30,
			DiagnosisSeconds:    300,
			NotificationSeconds: 30,
			StoreSeconds:        10,
		},
		Logging: Logging{Level: "info", Format: "json"},
		Diagnosis: Diagnosis{Provider: "anthropic"},
		Notification: Notification{Provider: "stdout"},
	}
}

// Load reads path, merges it over defaults, applies environment overrides,
// and validates. Invalid configuration fails fast with InvalidConfig.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrorTypeInvalidConfig, "failed to read config file %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrorTypeInvalidConfig, "failed to parse config file %s", path)
	}
	if err := loadFromEnv(&cfg); err != nil {
		return nil, err
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var tagValidator = validator.New()

func validateConfig(cfg *Config) error {
	if err := tagValidator.Struct(cfg); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInvalidConfig, "config validation failed")
	}
	return nil
}

// loadFromEnv overlays a small set of operational knobs from the
// environment, mirroring the teacher's env-override pattern for fields an
// operator commonly wants to set without editing the YAML file.
func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("ERRWATCH_POLL_INTERVAL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrorTypeInvalidConfig, "ERRWATCH_POLL_INTERVAL_SECONDS must be an integer")
		}
		cfg.PollIntervalSeconds = n
	}
	if v := os.Getenv("ERRWATCH_DAILY_BUDGET_USD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrorTypeInvalidConfig, "ERRWATCH_DAILY_BUDGET_USD must be a float")
		}
		cfg.DailyBudgetUsd = f
	}
	if v := os.Getenv("ERRWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ERRWATCH_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	return nil
}

// Watch invokes onChange whenever path is rewritten, reloading and
// validating it first; invalid reloads are logged to stderr and ignored so
// a bad edit never tears down a running daemon. What a valid reload changes
// is up to onChange; errwatchd passes a callback that discards the reloaded
// Config, so the daemon keeps the configuration it started with.
func Watch(path string, onChange func(*Config)) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to create config watcher")
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, apperrors.Wrapf(err, apperrors.ErrorTypeInternal, "failed to watch config file %s", path)
	}
	go func() {
		for event := range watcher.Events {
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "errwatch: config reload from %s failed, keeping previous config: %v\n", path, err)
				continue
			}
			onChange(cfg)
		}
	}()
	return watcher, nil
}
