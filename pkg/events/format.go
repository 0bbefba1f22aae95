package events

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Sternrassler/club-rides/pkg/client"
	"github.com/rs/zerolog/log"
)

const (
	dayHeaderLayout = "Monday, January 2, 2006"
	timeLayout      = "15:04"
	endDateLayout   = "2006-01-02T15:04:05Z"
)

// FormatDistance renders metres as kilometres with one decimal.
func FormatDistance(metres *float64) string {
	if metres == nil || *metres == 0 {
		return "Distance not specified"
	}
	return fmt.Sprintf("%.1f km", *metres/1000)
}

// ClubLabel is the club name, or "Club #<id>" when the name is unknown.
func ClubLabel(ev client.ClubEvent) string {
	if ev.ClubName != "" {
		return ev.ClubName
	}
	return fmt.Sprintf("Club #%d", ev.ClubID)
}

// Link points at the event page on strava.com.
func Link(clubID, eventID int64) string {
	return fmt.Sprintf("https://www.strava.com/clubs/%d/group_events/%d", clubID, eventID)
}

type listing struct {
	title    string
	time     string
	distance string
	club     string
	link     string
}

// Format renders events grouped by occurrence day in chronological order.
// Within a day entries keep input order. Unparseable occurrences are skipped.
func Format(evts []client.ClubEvent) string {
	byDay := make(map[string][]listing)
	days := make(map[string]time.Time)

	for _, ev := range evts {
		for _, occ := range ev.UpcomingOccurrences {
			t, err := ParseOccurrence(occ)
			if err != nil {
				log.Error().Err(err).Int64("event_id", ev.ID).Str("occurrence", occ).Msg("Skipping unparseable occurrence")
				continue
			}
			key := t.Format(time.DateOnly)
			if _, ok := days[key]; !ok {
				days[key] = t
			}
			byDay[key] = append(byDay[key], listing{
				title:    ev.Title,
				time:     t.Format(timeLayout),
				distance: FormatDistance(ev.Distance),
				club:     ClubLabel(ev),
				link:     Link(ev.ClubID, ev.ID),
			})
		}
	}

	keys := make([]string, 0, len(byDay))
	for k := range byDay {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "\n===== %s =====\n\n", days[k].Format(dayHeaderLayout))
		for _, l := range byDay[k] {
			fmt.Fprintf(&b, "%s\nTime: %s\nDistance: %s\nClub: %s\nLink: %s\n\n",
				l.title, l.time, l.distance, l.club, l.link)
		}
	}
	log.Debug().Int("days", len(keys)).Msg("Formatted events")
	return b.String()
}
