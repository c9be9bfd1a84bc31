package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrNoDatabase is returned alongside an otherwise usable Config when
// DATABASE_URL is unset. Callers may fall back to the in-memory store.
var ErrNoDatabase = errors.New("DATABASE_URL not set")

type Config struct {
	Env         string
	ListenAddr  string
	DatabaseURL string
	LogLevel    string
	LogFile     string
	ScanWorkers int

	FreeDailyScans   int
	QuotaResetPeriod time.Duration
	// StaleScanAfter is how long a scan may sit in processing before startup
	// recovery fails it.
	StaleScanAfter time.Duration

	Rescan  Rescan
	Sources Sources
}

type Rescan struct {
	// Interval between sweeps; zero disables scheduled rescans.
	Interval         time.Duration
	Cooldown         time.Duration
	RateLimitRetries int
	RateLimitBackoff time.Duration
}

type Sources struct {
	HIBPKey                string
	HIBPTimeout            time.Duration
	BreachDirectoryKey     string
	BreachDirectoryTimeout time.Duration
	GoogleAPIKey           string
	GoogleCSEID            string
	PastebinTimeout        time.Duration
	GitHubToken            string
	GitHubTimeout          time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first without overriding variables already set, and
// CONFIG_FILE may name a YAML file of KEY: value pairs used for any key the
// environment leaves empty.
func Load() (Config, error) {
	_ = godotenv.Load()

	src := source{env: os.Getenv}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		file, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		src.file = file
	}
	return src.load()
}

type source struct {
	env  func(string) string
	file map[string]string
	errs []error
}

func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}

func (s *source) load() (Config, error) {
	cfg := Config{
		Env:         s.getenv("APP_ENV", "development"),
		ListenAddr:  s.getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL: s.getenv("DATABASE_URL", ""),
		LogLevel:    s.getenv("LOG_LEVEL", "info"),
		LogFile:     s.getenv("LOG_FILE", ""),
		ScanWorkers: s.getenvInt("SCAN_WORKERS", 4),

		FreeDailyScans:   s.getenvInt("FREE_DAILY_SCANS", 5),
		QuotaResetPeriod: s.getenvDuration("QUOTA_RESET_PERIOD", 24*time.Hour),
		StaleScanAfter:   s.getenvDuration("STALE_SCAN_AFTER", 10*time.Minute),

		Rescan: Rescan{
			Interval:         s.getenvDuration("RESCAN_INTERVAL", 0),
			Cooldown:         s.getenvDuration("RESCAN_COOLDOWN", 24*time.Hour),
			RateLimitRetries: s.getenvInt("RESCAN_RATE_LIMIT_RETRIES", 0),
			RateLimitBackoff: s.getenvDuration("RESCAN_RATE_LIMIT_BACKOFF", 2*time.Second),
		},
		Sources: Sources{
			HIBPKey:                s.getenv("HIBP_API_KEY", ""),
			HIBPTimeout:            s.getenvDuration("HIBP_TIMEOUT", 10*time.Second),
			BreachDirectoryKey:     s.getenv("BREACH_DIRECTORY_API_KEY", ""),
			BreachDirectoryTimeout: s.getenvDuration("BREACH_DIRECTORY_TIMEOUT", 15*time.Second),
			GoogleAPIKey:           s.getenv("GOOGLE_API_KEY", ""),
			GoogleCSEID:            s.getenv("GOOGLE_CSE_ID", ""),
			PastebinTimeout:        s.getenvDuration("PASTEBIN_TIMEOUT", 10*time.Second),
			GitHubToken:            s.getenv("GITHUB_TOKEN", ""),
			GitHubTimeout:          s.getenvDuration("GITHUB_TIMEOUT", 10*time.Second),
		},
	}

	if cfg.ScanWorkers < 1 {
		s.errs = append(s.errs, fmt.Errorf("SCAN_WORKERS must be at least 1, got %d", cfg.ScanWorkers))
	}
	if cfg.FreeDailyScans < 0 {
		s.errs = append(s.errs, fmt.Errorf("FREE_DAILY_SCANS must not be negative, got %d", cfg.FreeDailyScans))
	}
	if cfg.Rescan.RateLimitRetries < 0 {
		s.errs = append(s.errs, fmt.Errorf("RESCAN_RATE_LIMIT_RETRIES must not be negative, got %d", cfg.Rescan.RateLimitRetries))
	}
	if err := errors.Join(s.errs...); err != nil {
		return cfg, err
	}
	if cfg.DatabaseURL == "" {
		return cfg, ErrNoDatabase
	}
	return cfg, nil
}

func (s *source) lookup(key string) string {
	if v := s.env(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s *source) getenv(key, def string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return def
}

func (s *source) getenvInt(key string, def int) int {
	v := s.lookup(key)
	if v == "" {
		return def
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return out
}

func (s *source) getenvDuration(key string, def time.Duration) time.Duration {
	v := s.lookup(key)
	if v == "" {
		return def
	}
	out, err := time.ParseDuration(v)
	if err != nil || out < 0 {
		s.errs = append(s.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return out
}
