package events

import (
	"strings"
	"time"

	"github.com/Sternrassler/club-rides/pkg/client"
	"github.com/rs/zerolog/log"
)

// ParseOccurrence parses an upcoming_occurrences entry. Timestamps without
// an offset and bare dates are read in the local time zone.
func ParseOccurrence(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04", time.DateOnly} {
		if lt, lerr := time.ParseInLocation(layout, s, time.Local); lerr == nil {
			return lt, nil
		}
	}
	return time.Time{}, err
}

// FilterByCity keeps events that have at least one occurrence within
// [now, now+daysAhead] and whose description or address mentions city,
// compared case-insensitively. Input order is kept.
func FilterByCity(evts []client.ClubEvent, city string, daysAhead int, now time.Time) []client.ClubEvent {
	city = strings.ToLower(city)
	end := now.AddDate(0, 0, daysAhead)

	log.Info().
		Int("events", len(evts)).
		Str("city", city).
		Str("from", now.Format(time.DateOnly)).
		Str("to", end.Format(time.DateOnly)).
		Msg("Filtering events by city and date range")

	out := make([]client.ClubEvent, 0, len(evts))
	for _, ev := range evts {
		if len(ev.UpcomingOccurrences) == 0 {
			continue
		}
		if !mentions(ev, city) {
			continue
		}
		if !hasOccurrenceWithin(ev, now, end) {
			continue
		}
		out = append(out, ev)
	}

	log.Info().Int("events", len(out)).Str("city", city).Int("days_ahead", daysAhead).Msg("Filtered events")
	for _, ev := range out {
		log.Debug().
			Int64("club_id", ev.ClubID).
			Str("title", ev.Title).
			Str("distance", FormatDistance(ev.Distance)).
			Msg("Matching event")
	}
	return out
}

func mentions(ev client.ClubEvent, city string) bool {
	if city == "" {
		return true
	}
	return strings.Contains(strings.ToLower(ev.Description), city) ||
		strings.Contains(strings.ToLower(ev.Address), city)
}

func hasOccurrenceWithin(ev client.ClubEvent, from, to time.Time) bool {
	for _, occ := range ev.UpcomingOccurrences {
		t, err := ParseOccurrence(occ)
		if err != nil {
			continue
		}
		if !t.Before(from) && !t.After(to) {
			return true
		}
	}
	return false
}
