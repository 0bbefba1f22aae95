// Package config loads runtime settings from a .env file and the environment.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting.
type Config struct {
	// Strava credentials and endpoints
	ClientID     string
	ClientSecret string
	RefreshToken string
	BaseURL      string
	TokenURL     string
	UserAgent    string

	// Collection
	Concurrency int
	DaysAhead   int
	FilterCity  string
	ClubConfig  string

	// Logging
	Debug     bool
	LogPretty bool

	// Output and serving
	OutputDir string
	PublicDir string
	Port      int

	// Optional infrastructure; empty disables the feature.
	RedisURL        string
	ArchivePath     string
	CollectSchedule string
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		BaseURL:     "https://www.strava.com/api/v3",
		TokenURL:    "https://www.strava.com/oauth/token",
		UserAgent:   "club-rides/1.0",
		Concurrency: 3,
		DaysAhead:   7,
		FilterCity:  "berlin",
		ClubConfig:  "clubs.yaml",
		LogPretty:   true,
		OutputDir:   "output",
		PublicDir:   "public",
		Port:        3000,
	}
}

// Load reads .env (when present) and the process environment.
func Load() Config {
	_ = godotenv.Load(".env")
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from a variable lookup function. Unset or
// unparsable values keep their defaults.
func FromLookup(lookup func(string) (string, bool)) Config {
	cfg := Default()

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = b
			}
		}
	}

	str("STRAVA_CLIENT_ID", &cfg.ClientID)
	str("STRAVA_CLIENT_SECRET", &cfg.ClientSecret)
	str("STRAVA_REFRESH_TOKEN", &cfg.RefreshToken)
	str("STRAVA_BASE_URL", &cfg.BaseURL)
	str("STRAVA_TOKEN_URL", &cfg.TokenURL)
	str("USER_AGENT", &cfg.UserAgent)
	num("CONCURRENCY", &cfg.Concurrency)
	num("DAYS_AHEAD", &cfg.DaysAhead)
	str("FILTER_CITY", &cfg.FilterCity)
	str("CLUB_CONFIG", &cfg.ClubConfig)
	flag("DEBUG", &cfg.Debug)
	flag("LOG_PRETTY", &cfg.LogPretty)
	str("OUTPUT_DIR", &cfg.OutputDir)
	str("PUBLIC_DIR", &cfg.PublicDir)
	num("PORT", &cfg.Port)
	str("REDIS_URL", &cfg.RedisURL)
	str("ARCHIVE_PATH", &cfg.ArchivePath)
	str("COLLECT_SCHEDULE", &cfg.CollectSchedule)

	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.DaysAhead < 0 {
		cfg.DaysAhead = Default().DaysAhead
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = Default().Port
	}
	cfg.FilterCity = strings.ToLower(cfg.FilterCity)

	return cfg
}
