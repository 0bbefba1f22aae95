// Package selector narrows the athlete's clubs down to the ones to collect.
package selector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/Sternrassler/club-rides/pkg/client"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config is the club selection file.
type Config struct {
	// UseWhitelist selects Include mode; otherwise Exclude mode applies.
	UseWhitelist bool     `yaml:"use_whitelist"`
	Include      []string `yaml:"include"`
	Exclude      []string `yaml:"exclude"`
}

// DefaultConfig is used when no selection file exists.
func DefaultConfig() Config {
	return Config{
		UseWhitelist: true,
		Include: []string{
			"8bar Community",
			"Rapha Berlin",
			"Standert Bicycles",
			"CYKEL BUTIK",
			"Trek Bicycle Berlin",
			"Ryzon - Performance Apparel",
		},
		Exclude: []string{},
	}
}

// Load reads a selection file. A missing file yields DefaultConfig.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("path", path).Msg("No club selection file, using defaults")
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("read club selection: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("parse club selection %s: %w", path, err)
	}
	return c, nil
}

// Save writes cfg to path, creating parent directories.
func Save(path string, cfg Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal club selection: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write club selection: %w", err)
	}
	return nil
}

// FromClubs returns a whitelist config including exactly clubs.
func FromClubs(clubs []client.Club, base Config) Config {
	names := make([]string, 0, len(clubs))
	for _, c := range clubs {
		names = append(names, c.Name)
	}
	base.UseWhitelist = true
	base.Include = names
	return base
}

// Filter keeps clubs by exact name match. In whitelist mode only included
// clubs remain; otherwise every club not excluded remains. Order is kept.
func Filter(clubs []client.Club, cfg Config) []client.Club {
	out := make([]client.Club, 0, len(clubs))
	for _, c := range clubs {
		if cfg.UseWhitelist {
			if slices.Contains(cfg.Include, c.Name) {
				out = append(out, c)
			}
			continue
		}
		if !slices.Contains(cfg.Exclude, c.Name) {
			out = append(out, c)
		}
	}

	if cfg.UseWhitelist {
		log.Info().Int("clubs", len(out)).Msg("Using clubs from configuration whitelist")
	} else {
		log.Info().Int("excluded", len(clubs)-len(out)).Msg("Excluded clubs based on configuration blacklist")
	}
	return out
}
