package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/recipes/pkg/deploy"
	"github.com/openfroyo/recipes/pkg/inbox"
	"github.com/openfroyo/recipes/pkg/stores"
	"github.com/openfroyo/recipes/pkg/telemetry"
)

// Environment variables that override the configuration file.
const (
	EnvDatabase = "RECIPES_DB"
	EnvLogLevel = "RECIPES_LOG_LEVEL"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "recipes.yaml"

// Config is the complete recipes configuration.
type Config struct {
	Store     StoreConfig           `yaml:"store"`
	AppData   AppDataConfig         `yaml:"app_data"`
	Media     MediaConfig           `yaml:"media"`
	Scripts   ScriptConfig          `yaml:"scripts"`
	Scheduler SchedulerConfig       `yaml:"scheduler"`
	Inbox     inbox.Config          `yaml:"inbox"`
	Targets   []deploy.TargetConfig `yaml:"targets" validate:"unique=Name,dive"`
	Telemetry telemetry.Config      `yaml:"telemetry"`
}

// StoreConfig configures the SQLite database.
type StoreConfig struct {
	// Path is the database file, or ":memory:".
	Path string `yaml:"path" validate:"required"`

	MaxOpenConns    int           `yaml:"max_open_conns" validate:"min=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" validate:"min=0"`
	BusyTimeout     time.Duration `yaml:"busy_timeout" validate:"min=0"`
}

// AppDataConfig locates files bundled with recipes.
type AppDataConfig struct {
	// Root is the app data directory. Submission files paths are relative
	// to it.
	Root string `yaml:"root" validate:"required"`
}

// MediaConfig configures where Media steps copy files.
type MediaConfig struct {
	Root string `yaml:"root" validate:"required"`
}

// ScriptConfig configures Script steps.
type ScriptConfig struct {
	// Timeout bounds a single script.
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
}

// SchedulerConfig configures the background driver of recipes serve.
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval is the time between ticks. Each tick runs one step of every
	// active execution.
	Interval time.Duration `yaml:"interval" validate:"min=0"`

	// ClaimTimeout is how long a step may stay claimed before serve
	// startup makes it pending again.
	ClaimTimeout time.Duration `yaml:"claim_timeout" validate:"min=0"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path:            "recipes.db",
			MaxOpenConns:    8,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		AppData: AppDataConfig{Root: "app_data"},
		Media:   MediaConfig{Root: "media"},
		Scripts: ScriptConfig{Timeout: 30 * time.Second},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			Interval:     time.Second,
			ClaimTimeout: 10 * time.Minute,
		},
		Inbox: inbox.Config{
			Enabled:  false,
			Dir:      "inbox",
			Debounce: inbox.DefaultDebounce,
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Load reads the configuration file at path on top of the defaults and
// applies environment overrides. A missing file is only an error when path
// was given explicitly; an empty path tries DefaultPath.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// ApplyEnv applies environment overrides using lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDatabase); ok && v != "" {
		c.Store.Path = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Telemetry.Logging.Level = strings.ToLower(v)
	}
}

// Validate checks struct tags, then each section's semantic rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid configuration: %w", validationError(verrs))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry configuration: %w", err)
	}

	for _, t := range c.Targets {
		if t.Type == deploy.TypeSFTP && t.SSH != nil {
			if err := t.SSH.Validate(); err != nil {
				return fmt.Errorf("invalid target %s: %w", t.Name, err)
			}
		}
	}

	return nil
}

// Database returns the SQLite store configuration.
func (c *Config) Database() stores.Config {
	return stores.Config{
		Path:            c.Store.Path,
		MaxOpenConns:    c.Store.MaxOpenConns,
		MaxIdleConns:    c.Store.MaxIdleConns,
		ConnMaxLifetime: c.Store.ConnMaxLifetime,
		BusyTimeout:     c.Store.BusyTimeout,
	}
}

// Target returns the deployment target called name.
func (c *Config) Target(name string) (deploy.TargetConfig, error) {
	for _, t := range c.Targets {
		if t.Name == name {
			return t, nil
		}
	}
	return deploy.TargetConfig{}, fmt.Errorf("unknown deployment target %q", name)
}

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields []FieldError
}

// FieldError is one failed validation rule.
type FieldError struct {
	// Path is the field's YAML-ish path, e.g. "Config.Store.Path".
	Path string

	// Rule is the failed validator tag.
	Rule string

	Param string
}

func validationError(verrs validator.ValidationErrors) *ValidationError {
	e := &ValidationError{}
	for _, fe := range verrs {
		e.Fields = append(e.Fields, FieldError{
			Path:  fe.Namespace(),
			Rule:  fe.Tag(),
			Param: fe.Param(),
		})
	}
	return e
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Param != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", f.Path, f.Rule, f.Param))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", f.Path, f.Rule))
	}
	return strings.Join(msgs, "; ")
}
