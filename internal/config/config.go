// Package config loads the yaml configuration file, overlays environment
// variables, and serves live snapshots so flag flips take effect without a
// restart.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/technosupport/ts-tracker/internal/ratelimit"
	"github.com/technosupport/ts-tracker/internal/tracker"
)

type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	Secrets struct {
		Cookie string `yaml:"cookie"`
		APIKey string `yaml:"api_key"`
	} `yaml:"secrets"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	NATS struct {
		Enabled    bool   `yaml:"enabled"`
		URL        string `yaml:"url"`
		Subject    string `yaml:"subject"`
		MaxRetries int    `yaml:"max_retries"`
	} `yaml:"nats"`

	RateLimit struct {
		PerIP      WindowLimit `yaml:"per_ip"`
		PerUser    WindowLimit `yaml:"per_user"`
		Exceptions []string    `yaml:"exceptions"`
	} `yaml:"rate_limit"`

	Site struct {
		PerfHeaders   bool `yaml:"perf_headers"`
		LoginRequired bool `yaml:"login_required"`
	} `yaml:"site"`
}

// WindowLimit is the yaml shape of a rate limit; seconds rather than a
// duration string keeps the file friendly to ops tooling.
type WindowLimit struct {
	Rate          int `yaml:"rate"`
	WindowSeconds int `yaml:"window_seconds"`
}

func (w WindowLimit) Limit() ratelimit.Limit {
	return ratelimit.Limit{Rate: w.Rate, Window: time.Duration(w.WindowSeconds) * time.Second}
}

func defaults() *Config {
	cfg := &Config{ListenAddr: ":8080"}
	cfg.Redis.Addr = "localhost:6379"
	cfg.NATS.Subject = "tracker.requests"
	cfg.NATS.MaxRetries = 3
	cfg.RateLimit.PerIP = WindowLimit{Rate: 200, WindowSeconds: 10}
	cfg.RateLimit.PerUser = WindowLimit{Rate: 400, WindowSeconds: 10}
	return cfg
}

// Load reads the yaml file at path and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	overlayEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayEnv lets deployment secrets stay out of the yaml file.
func overlayEnv(cfg *Config) {
	if v := os.Getenv("TRACKER_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("TRACKER_COOKIE_SECRET"); v != "" {
		cfg.Secrets.Cookie = v
	}
	if v := os.Getenv("TRACKER_API_KEY_SECRET"); v != "" {
		cfg.Secrets.APIKey = v
	}
	if v := os.Getenv("TRACKER_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TRACKER_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TRACKER_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("TRACKER_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("TRACKER_NATS_URL"); v != "" {
		cfg.NATS.URL = v
		cfg.NATS.Enabled = true
	}
}

func (c *Config) validate() error {
	if c.Secrets.Cookie == "" {
		return fmt.Errorf("config: secrets.cookie is required (or TRACKER_COOKIE_SECRET)")
	}
	if c.RateLimit.PerIP.Rate < 0 || c.RateLimit.PerUser.Rate < 0 {
		return fmt.Errorf("config: rate_limit rates must be >= 0")
	}
	return nil
}

// Store holds the live config. Readers get a consistent snapshot; Reload
// swaps the whole pointer so a half-parsed file can never be observed.
type Store struct {
	path string
	cur  atomic.Pointer[Config]
}

func NewStore(path string, cfg *Config) *Store {
	s := &Store{path: path}
	s.cur.Store(cfg)
	return s
}

func (s *Store) Current() *Config {
	return s.cur.Load()
}

// Settings is the snapshot function the tracker middleware consumes.
func (s *Store) Settings() tracker.Settings {
	c := s.Current()
	return tracker.Settings{
		PerfHeaders:   c.Site.PerfHeaders,
		LoginRequired: c.Site.LoginRequired,
	}
}

// Reload re-reads the file. On any error the previous config stays active.
func (s *Store) Reload() error {
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}
	s.cur.Store(cfg)
	return nil
}
