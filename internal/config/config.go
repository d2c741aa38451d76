// Package config loads console and reference-backend settings. Sources are
// applied in order: built-in defaults, an optional YAML profile, an optional
// .env file, then process environment. The result is validated before use.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	profileEnvVariable = "BRD_PROFILE"
	defaultEnvFile     = ".env"
)

// API describes how the console reaches the backend.
type API struct {
	BaseURL   string        `yaml:"base_url" env:"BRD_API_BASE_URL" validate:"required,url"`
	AuthURL   string        `yaml:"auth_url" env:"BRD_API_AUTH_URL" validate:"omitempty,url"`
	Timeout   time.Duration `yaml:"timeout" env:"BRD_API_TIMEOUT" validate:"gte=0"`
	UserAgent string        `yaml:"user_agent" env:"BRD_API_USER_AGENT"`
}

// Session controls where remembered logins are persisted.
type Session struct {
	File string `yaml:"file" env:"BRD_SESSION_FILE"`
}

// Log controls the shared logger.
type Log struct {
	Level string `yaml:"level" env:"BRD_LOG_LEVEL" validate:"omitempty,oneof=trace debug info warn error disabled"`
}

// Mock configures the reference backend.
type Mock struct {
	Addr         string        `yaml:"addr" env:"BRD_MOCK_ADDR" validate:"required"`
	GRPCAddr     string        `yaml:"grpc_addr" env:"BRD_MOCK_GRPC_ADDR"`
	PGDSN        string        `yaml:"pg_dsn" env:"BRD_MOCK_PG_DSN"`
	AuthSecret   string        `yaml:"auth_secret" env:"BRD_AUTH_SECRET"`
	AccessTTL    time.Duration `yaml:"access_ttl" env:"BRD_MOCK_ACCESS_TTL" validate:"gt=0"`
	RefreshTTL   time.Duration `yaml:"refresh_ttl" env:"BRD_MOCK_REFRESH_TTL" validate:"gtfield=AccessTTL"`
	RateBurst    int           `yaml:"rate_burst" env:"BRD_MOCK_RATE_BURST" validate:"gt=0"`
	RatePerSec   int           `yaml:"rate_per_sec" env:"BRD_MOCK_RATE_PER_SEC" validate:"gt=0"`
	SeedEmail    string        `yaml:"seed_email" env:"BRD_MOCK_SEED_EMAIL" validate:"omitempty,email"`
	SeedPassword string        `yaml:"seed_password" env:"BRD_MOCK_SEED_PASSWORD"`
}

// Config is the full settings tree.
type Config struct {
	API     API     `yaml:"api"`
	Session Session `yaml:"session"`
	Log     Log     `yaml:"log"`
	Mock    Mock    `yaml:"mock"`
}

// Options points Load at non-default sources.
type Options struct {
	// ProfilePath is a YAML file; BRD_PROFILE is used when empty.
	ProfilePath string
	// EnvFile is a dotenv file; ".env" in the working directory when empty.
	EnvFile string
}

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid configuration")

// Defaults returns the settings used when nothing else is configured.
func Defaults() Config {
	return Config{
		API: API{
			BaseURL:   "http://localhost:8000/api/v1/",
			Timeout:   30 * time.Second,
			UserAgent: "brdadmin",
		},
		Session: Session{File: defaultSessionFile()},
		Log:     Log{Level: "info"},
		Mock: Mock{
			Addr:       ":8000",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 24 * time.Hour,
			RateBurst:  50,
			RatePerSec: 20,
		},
	}
}

// Load resolves the configuration from every source.
func Load(opts Options) (Config, error) {
	cfg := Defaults()

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	profile := opts.ProfilePath
	if profile == "" {
		profile = strings.TrimSpace(os.Getenv(profileEnvVariable))
	}
	if profile != "" {
		if err := loadProfile(profile, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadProfile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read profile: %w", err)
	}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse profile %s: %w", path, err)
	}
	return nil
}

func (c *Config) normalize() {
	c.API.BaseURL = withTrailingSlash(strings.TrimSpace(c.API.BaseURL))
	c.API.AuthURL = strings.TrimSpace(c.API.AuthURL)
	if c.API.AuthURL == "" {
		c.API.AuthURL = deriveAuthURL(c.API.BaseURL)
	}
	c.API.AuthURL = withTrailingSlash(c.API.AuthURL)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
}

// Validate checks the struct tags of every section.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// deriveAuthURL maps ".../api/v1/" onto ".../api/", where the token
// endpoints live.
func deriveAuthURL(base string) string {
	trimmed := strings.TrimSuffix(base, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		last := trimmed[i+1:]
		if len(last) > 1 && last[0] == 'v' && strings.Trim(last[1:], "0123456789") == "" {
			return trimmed[:i+1]
		}
	}
	return base
}

func withTrailingSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "brdadmin", "session.json")
}
