package client

// Club is a Strava club the authenticated athlete is a member of.
type Club struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	ProfileMedium string `json:"profile_medium,omitempty"`
	Description   string `json:"description,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	Country       string `json:"country,omitempty"`
	MemberCount   int    `json:"member_count"`
	URL           string `json:"url,omitempty"`
}

// Athlete is the organizer of a group event.
type Athlete struct {
	ID        int64  `json:"id"`
	Name      string `json:"name,omitempty"`
	FirstName string `json:"firstname,omitempty"`
	LastName  string `json:"lastname,omitempty"`
}

// Route is a route attached to a group event.
type Route struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Distance      float64 `json:"distance"`
	ElevationGain float64 `json:"elevation_gain"`
}

// ClubEvent is a group event as returned by GET /clubs/{id}/group_events.
// UpcomingOccurrences holds ISO-8601 timestamps.
type ClubEvent struct {
	ID                  int64    `json:"id"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	ClubID              int64    `json:"club_id"`
	ClubName            string   `json:"club_name,omitempty"`
	RouteID             *int64   `json:"route_id,omitempty"`
	OrganizingAthlete   *Athlete `json:"organizing_athlete,omitempty"`
	SportType           string   `json:"sport_type,omitempty"`
	Distance            *float64 `json:"distance,omitempty"`
	ElevationGain       *float64 `json:"elevation_gain,omitempty"`
	TerrainType         string   `json:"terrain_type,omitempty"`
	UpcomingOccurrences []string `json:"upcoming_occurrences"`
	Address             string   `json:"address,omitempty"`
	Routes              []Route  `json:"routes,omitempty"`
}
