package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Sternrassler/club-rides/pkg/client"
	"github.com/rs/zerolog/log"
)

// Occurrence is one (event, occurrence) pair as stored on disk.
type Occurrence struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
	StartTime     string   `json:"start_time"`
	ClubID        int64    `json:"club_id"`
	ClubName      string   `json:"club_name"`
	Distance      string   `json:"distance"`
	ElevationGain *float64 `json:"elevation_gain,omitempty"`
	Address       string   `json:"address,omitempty"`
	Link          string   `json:"link"`
}

// Flatten expands events into occurrences sorted by start_date. The end
// date is an estimate: one day after the start.
func Flatten(evts []client.ClubEvent) ([]Occurrence, error) {
	out := make([]Occurrence, 0, len(evts))
	for _, ev := range evts {
		for _, occ := range ev.UpcomingOccurrences {
			start, err := ParseOccurrence(occ)
			if err != nil {
				return nil, fmt.Errorf("event %d: parse occurrence %q: %w", ev.ID, occ, err)
			}
			out = append(out, Occurrence{
				ID:            ev.ID,
				Title:         ev.Title,
				Description:   ev.Description,
				StartDate:     occ,
				EndDate:       start.UTC().AddDate(0, 0, 1).Format(endDateLayout),
				StartTime:     start.Format(timeLayout),
				ClubID:        ev.ClubID,
				ClubName:      ClubLabel(ev),
				Distance:      FormatDistance(ev.Distance),
				ElevationGain: ev.ElevationGain,
				Address:       ev.Address,
				Link:          Link(ev.ClubID, ev.ID),
			})
		}
	}
	slices.SortStableFunc(out, func(a, b Occurrence) int {
		return strings.Compare(a.StartDate, b.StartDate)
	})
	return out, nil
}

// Marshal encodes occurrences as a two-space indented JSON array.
func Marshal(occs []Occurrence) ([]byte, error) {
	if occs == nil {
		occs = []Occurrence{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(occs); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SaveEventsToFile writes one record per (event, occurrence) to path,
// creating parent directories and replacing any existing file. Failures are
// logged and reported as false.
func SaveEventsToFile(evts []client.ClubEvent, path string) bool {
	logger := log.With().Str("path", path).Logger()
	logger.Info().Int("events", len(evts)).Msg("Saving events to file")

	occs, err := Flatten(evts)
	if err != nil {
		logger.Error().Err(err).Msg("Error saving events to file")
		return false
	}
	data, err := Marshal(occs)
	if err != nil {
		logger.Error().Err(err).Msg("Error saving events to file")
		return false
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Error creating output directory")
		return false
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Error().Err(err).Msg("Error saving events to file")
		return false
	}

	logger.Info().Int("occurrences", len(occs)).Msg("Saved event occurrences")
	return true
}

// LoadOccurrences reads a file written by SaveEventsToFile.
func LoadOccurrences(path string) ([]Occurrence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var occs []Occurrence
	if err := json.Unmarshal(data, &occs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return occs, nil
}
