package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// AuthConfig holds feed credentials. Method is "basic" or "bearer";
// bearer auth uses Pass as the token.
type AuthConfig struct {
	Method string `yaml:"method" json:"method"`
	User   string `yaml:"user,omitempty" json:"user,omitempty"`
	Pass   string `yaml:"pass,omitempty" json:"-"`
}

// CalendarConfig describes a single ICS subscription source.
type CalendarConfig struct {
	// ID is an internal identifier used for de-dup and logging. Sources
	// configured without one get a generated ID at Normalize time.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// URL is the ICS endpoint.
	URL string `yaml:"url" json:"url"`
	// PollSeconds is the poll cadence for this source.
	PollSeconds int `yaml:"poll_seconds" json:"poll_seconds"`
	// Auth, if non-nil, is applied to every poll request.
	Auth *AuthConfig `yaml:"auth,omitempty" json:"auth,omitempty"`
}

// PollInterval returns the source's poll cadence as a duration.
func (c CalendarConfig) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// WeekStart controls week numbering in date info:
	//   - "monday" (ISO 8601, default)
	//   - "sunday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron rolls the query window forward and re-expands cached
	// feeds on a cron schedule (e.g. "*/15 * * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LookbackDays / HorizonDays bound the expansion window around now.
	LookbackDays int `yaml:"lookback_days" json:"lookback_days"`
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days"`

	// MaxIterations caps recurrence expansion per rule.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`

	// UserAgent is sent on every feed request.
	UserAgent string `yaml:"user_agent" json:"user_agent"`

	// Failure cooldowns applied by the fetch scheduler, in seconds.
	AuthFailureCooldownSeconds int `yaml:"auth_failure_cooldown_seconds" json:"auth_failure_cooldown_seconds"`
	RateLimitCooldownSeconds   int `yaml:"rate_limit_cooldown_seconds" json:"rate_limit_cooldown_seconds"`
	ClientErrorCooldownSeconds int `yaml:"client_error_cooldown_seconds" json:"client_error_cooldown_seconds"`

	// Calendars is the list of subscribed ICS sources.
	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// API endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

func (c *Config) AuthFailureCooldown() time.Duration {
	return time.Duration(c.AuthFailureCooldownSeconds) * time.Second
}

func (c *Config) RateLimitCooldown() time.Duration {
	return time.Duration(c.RateLimitCooldownSeconds) * time.Second
}

func (c *Config) ClientErrorCooldown() time.Duration {
	return time.Duration(c.ClientErrorCooldownSeconds) * time.Second
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:                     "127.0.0.1:8080",
		WeekStart:                  "monday",
		RefreshCron:                "*/15 * * * *",
		LookbackDays:               7,
		HorizonDays:                30,
		MaxIterations:              1000,
		UserAgent:                  "calext/1.0",
		AuthFailureCooldownSeconds: 7200,
		RateLimitCooldownSeconds:   900,
		ClientErrorCooldownSeconds: 3600,
		Calendars:                  []CalendarConfig{},
		BasicAuth:                  nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	switch c.WeekStart {
	case "monday", "sunday":
		// ok
	default:
		c.WeekStart = "monday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = 7
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 30
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 1000
	}
	if c.UserAgent == "" {
		c.UserAgent = "calext/1.0"
	}
	if c.AuthFailureCooldownSeconds <= 0 {
		c.AuthFailureCooldownSeconds = 7200
	}
	if c.RateLimitCooldownSeconds <= 0 {
		c.RateLimitCooldownSeconds = 900
	}
	if c.ClientErrorCooldownSeconds <= 0 {
		c.ClientErrorCooldownSeconds = 3600
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
	for i := range c.Calendars {
		cal := &c.Calendars[i]
		if cal.ID == "" {
			cal.ID = uuid.NewString()
		}
		if cal.PollSeconds <= 0 {
			cal.PollSeconds = 300
		}
		if cal.Auth != nil {
			cal.Auth.Method = strings.ToLower(cal.Auth.Method)
		}
	}
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (0600)
// and returned; otherwise the file is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with
// 0600 permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calext-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
