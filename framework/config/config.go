package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the typed configuration of the overlay runtime.
type Config struct {
	App         AppConfig
	Log         LogConfig
	Events      EventsConfig
	Container   ContainerConfig
	Content     ContentConfig
	Diagnostics DiagnosticsConfig
}

type AppConfig struct {
	Name  string `validate:"required"`
	Env   string `validate:"oneof=local production testing"`
	Debug bool
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
}

type EventsConfig struct {
	// Default EnsureService timeout.
	EnsureTimeout time.Duration `validate:"gt=0"`
}

type ContainerConfig struct {
	InitAllTimeout time.Duration `validate:"gt=0"`
	Parallel       bool
}

type ContentConfig struct {
	UseCache     bool
	CacheSize    int           `validate:"gt=0"`
	FactoryWait  time.Duration `validate:"gt=0"`
	DefaultTheme string        `validate:"required"`
}

type DiagnosticsConfig struct {
	Enabled bool
	Addr    string `validate:"required_if=Enabled true"`
}

// Load reads the given env files (default .env) and populates a Config from
// environment variables. Files that do not exist are skipped; any other
// read or parse failure is returned.
// Call once at bootstrap: cfg, err := config.Load()
func Load(envFiles ...string) (*Config, error) {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// Non-fatal: .env may not exist in production
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: loading %s: %w", f, err)
		}
	}

	return &Config{
		App: AppConfig{
			Name:  env("APP_NAME", "overlay"),
			Env:   env("APP_ENV", "local"),
			Debug: envBool("APP_DEBUG", false),
		},
		Log: LogConfig{
			Level:  env("LOG_LEVEL", "info"),
			Format: env("LOG_FORMAT", "console"),
		},
		Events: EventsConfig{
			EnsureTimeout: envDuration("EVENTS_ENSURE_TIMEOUT", 5*time.Second),
		},
		Container: ContainerConfig{
			InitAllTimeout: envDuration("CONTAINER_INIT_ALL_TIMEOUT", 30*time.Second),
			Parallel:       envBool("CONTAINER_PARALLEL", false),
		},
		Content: ContentConfig{
			UseCache:     envBool("CONTENT_USE_CACHE", true),
			CacheSize:    envInt("CONTENT_CACHE_SIZE", 100),
			FactoryWait:  envDuration("CONTENT_FACTORY_WAIT", time.Second),
			DefaultTheme: env("CONTENT_DEFAULT_THEME", "light"),
		},
		Diagnostics: DiagnosticsConfig{
			Enabled: envBool("DIAGNOSTICS_ENABLED", true),
			Addr:    env("DIAGNOSTICS_ADDR", "127.0.0.1:8787"),
		},
	}, nil
}

// ── Validation ───────────────────────────────────────────────────────────────

var validate = validator.New()

// Validate checks the configuration. All problems are reported in one
// error, one "section.field" message per offending field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	// Namespace is "Config.Section.Field".
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	field = strings.ToLower(field)

	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// ── Environment ──────────────────────────────────────────────────────────────

func (a AppConfig) IsProduction() bool { return a.Env == "production" }

// Get returns a raw env value, falling back to defaultVal.
func Get(key, defaultVal string) string {
	return env(key, defaultVal)
}

// GetInt returns an int env value.
func GetInt(key string, defaultVal int) int {
	return envInt(key, defaultVal)
}

// GetBool returns a bool env value.
func GetBool(key string, defaultVal bool) bool {
	return envBool(key, defaultVal)
}

// GetDuration returns a duration env value.
func GetDuration(key string, defaultVal time.Duration) time.Duration {
	return envDuration(key, defaultVal)
}

// ── helpers ─────────────────────────────────────────────────────────────────

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

// envDuration accepts Go durations ("1500ms") or a bare number of
// milliseconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
