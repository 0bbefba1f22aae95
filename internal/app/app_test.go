package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/club-rides/internal/testutil"
	"github.com/Sternrassler/club-rides/pkg/auth"
	"github.com/Sternrassler/club-rides/pkg/archive"
	"github.com/Sternrassler/club-rides/pkg/config"
	"github.com/Sternrassler/club-rides/pkg/events"
	"github.com/Sternrassler/club-rides/pkg/selector"
)

var fixedNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func testConfig(t *testing.T, mock *testutil.MockStrava) config.Config {
	t.Helper()
	dir := t.TempDir()

	clubFile := filepath.Join(dir, "clubs.yaml")
	if err := selector.Save(clubFile, selector.Config{UseWhitelist: false, Exclude: []string{"Ignored Club"}}); err != nil {
		t.Fatalf("save selection: %v", err)
	}

	cfg := config.Default()
	cfg.ClientID = "12345"
	cfg.ClientSecret = "secret"
	cfg.RefreshToken = "refresh"
	cfg.BaseURL = mock.URL()
	cfg.TokenURL = mock.TokenURL()
	cfg.Concurrency = 2
	cfg.ClubConfig = clubFile
	cfg.OutputDir = filepath.Join(dir, "output")
	cfg.ArchivePath = filepath.Join(dir, "runs.db")
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config) (*App, *bytes.Buffer) {
	t.Helper()
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })

	var out bytes.Buffer
	a.out = &out
	a.now = func() time.Time { return fixedNow }
	a.fetcher.SetSleep(func(time.Duration) {})
	return a, &out
}

func TestRun(t *testing.T) {
	mock := testutil.NewMockStrava()
	defer mock.Close()

	mock.SetToken("access-token")
	mock.SetClubs([]map[string]any{
		{"id": 1, "name": "Kreuzberg Riders", "member_count": 120},
		{"id": 2, "name": "Brandenburg Gravel", "member_count": 40},
		{"id": 3, "name": "Ignored Club", "member_count": 5},
	})
	mock.SetClubEvents(1, testutil.NewHealthyResponse(`[
		{"id": 11, "title": "Sunday Coffee Ride", "club_id": 1, "distance": 62000,
		 "address": "Tempelhofer Feld, Berlin",
		 "upcoming_occurrences": ["2024-05-03T08:00:00Z", "2024-06-20T08:00:00Z"]},
		{"id": 12, "title": "Potsdam Loop", "club_id": 1, "address": "Potsdam",
		 "upcoming_occurrences": ["2024-05-02T17:00:00Z"]}
	]`))
	mock.SetClubEvents(2, testutil.NewServerErrorResponse())

	a, out := newTestApp(t, testConfig(t, mock))

	res, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Clubs != 2 {
		t.Errorf("Clubs = %d, want 2", res.Clubs)
	}
	if res.Events != 2 {
		t.Errorf("Events = %d, want 2", res.Events)
	}
	if res.FilteredEvents != 1 {
		t.Errorf("FilteredEvents = %d, want 1", res.FilteredEvents)
	}
	if got := mock.PathCount(testutil.ClubEventsPath(2)); got != 3 {
		t.Errorf("failing club fetched %d times, want 3", got)
	}
	if got := mock.PathCount(testutil.ClubEventsPath(3)); got != 0 {
		t.Errorf("excluded club fetched %d times, want 0", got)
	}
	if got := mock.LastAuthorization(); got != "Bearer access-token" {
		t.Errorf("Authorization = %q", got)
	}

	if !strings.Contains(out.String(), "=== BERLIN RIDES FOR THE NEXT 7 DAYS ===") {
		t.Errorf("missing heading in output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "Sunday Coffee Ride\nTime: ") {
		t.Errorf("missing event in output:\n%s", out.String())
	}

	if filepath.Base(res.AllFile) != "all-events-2024-05-01.json" {
		t.Errorf("AllFile = %q", res.AllFile)
	}
	all, err := events.LoadOccurrences(res.AllFile)
	if err != nil {
		t.Fatalf("load all events: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all-events records = %d, want 3", len(all))
	}

	if filepath.Base(res.CityFile) != "berlin-events-2024-05-01.json" {
		t.Errorf("CityFile = %q", res.CityFile)
	}
	city, err := events.LoadOccurrences(res.CityFile)
	if err != nil {
		t.Fatalf("load city events: %v", err)
	}
	if len(city) != 2 || city[0].ClubName != "Kreuzberg Riders" {
		t.Errorf("city records = %+v", city)
	}

	runs, err := a.runs.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("archived runs = %d, want 1", len(runs))
	}
	want := archive.Run{City: "berlin", Clubs: 2, Events: 2, FilteredEvents: 1,
		AllFile: "all-events-2024-05-01.json", CityFile: "berlin-events-2024-05-01.json"}
	got := runs[0]
	if got.City != want.City || got.Clubs != want.Clubs || got.Events != want.Events ||
		got.FilteredEvents != want.FilteredEvents || got.AllFile != want.AllFile || got.CityFile != want.CityFile {
		t.Errorf("archived run = %+v, want %+v", got, want)
	}
}

func TestRunNoCityEvents(t *testing.T) {
	mock := testutil.NewMockStrava()
	defer mock.Close()

	mock.SetToken("access-token")
	mock.SetClubs([]map[string]any{{"id": 1, "name": "Kreuzberg Riders"}})

	cfg := testConfig(t, mock)
	cfg.ArchivePath = ""
	a, out := newTestApp(t, cfg)

	res, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.CityFile != "" {
		t.Errorf("CityFile = %q, want none", res.CityFile)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output:\n%s", out.String())
	}

	b, err := os.ReadFile(res.AllFile)
	if err != nil {
		t.Fatalf("read all events: %v", err)
	}
	if string(b) != "[]" {
		t.Errorf("all-events = %q, want []", b)
	}
}

func TestRunAuthFailure(t *testing.T) {
	mock := testutil.NewMockStrava()
	defer mock.Close()

	a, _ := newTestApp(t, testConfig(t, mock))

	_, err := a.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var authErr *auth.Error
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want *auth.Error", err)
	}
	if authErr.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", authErr.StatusCode)
	}
	if mock.PathCount("/athlete/clubs") != 0 {
		t.Error("clubs should not be requested without a token")
	}
}

func TestRunClubListFailure(t *testing.T) {
	mock := testutil.NewMockStrava()
	defer mock.Close()

	mock.SetToken("access-token")
	mock.SetResponse("/athlete/clubs", testutil.MockResponse{
		StatusCode: 401,
		Body:       `{"message":"Authorization Error"}`,
	})

	a, _ := newTestApp(t, testConfig(t, mock))

	if _, err := a.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewInvalidRedisURL(t *testing.T) {
	mock := testutil.NewMockStrava()
	defer mock.Close()

	cfg := testConfig(t, mock)
	cfg.RedisURL = "not a url"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for invalid REDIS_URL")
	}
}

func TestSaveClubSelection(t *testing.T) {
	mock := testutil.NewMockStrava()
	defer mock.Close()

	mock.SetToken("access-token")
	mock.SetClubs([]map[string]any{
		{"id": 1, "name": "Kreuzberg Riders"},
		{"id": 2, "name": "Brandenburg Gravel"},
	})

	cfg := testConfig(t, mock)
	a, _ := newTestApp(t, cfg)

	n, err := a.SaveClubSelection(context.Background())
	if err != nil {
		t.Fatalf("SaveClubSelection() error = %v", err)
	}
	if n != 2 {
		t.Errorf("saved %d clubs, want 2", n)
	}

	sel, err := selector.Load(cfg.ClubConfig)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !sel.UseWhitelist {
		t.Error("selection should switch to whitelist mode")
	}
	if len(sel.Include) != 2 || sel.Include[0] != "Kreuzberg Riders" {
		t.Errorf("Include = %v", sel.Include)
	}
	if len(sel.Exclude) != 1 || sel.Exclude[0] != "Ignored Club" {
		t.Errorf("Exclude = %v, want existing exclusions kept", sel.Exclude)
	}
}
