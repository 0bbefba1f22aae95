package collector

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/club-rides/internal/testutil"
	"github.com/Sternrassler/club-rides/pkg/client"
	"github.com/Sternrassler/club-rides/pkg/events"
)

// stubFetcher returns one event per club unless the club is marked failing.
type stubFetcher struct {
	mu       sync.Mutex
	failing  map[int64]bool
	calls    []int64
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *stubFetcher) Fetch(_ context.Context, _ string, club client.Club) []client.ClubEvent {
	cur := s.inFlight.Add(1)
	for {
		prev := s.maxSeen.Load()
		if cur <= prev || s.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	s.inFlight.Add(-1)

	s.mu.Lock()
	s.calls = append(s.calls, club.ID)
	s.mu.Unlock()

	if s.failing[club.ID] {
		return []client.ClubEvent{}
	}
	return []client.ClubEvent{{ID: club.ID * 100, ClubID: club.ID}}
}

func clubs(n int) []client.Club {
	out := make([]client.Club, n)
	for i := range out {
		out[i] = client.Club{ID: int64(i + 1), Name: "club"}
	}
	return out
}

func TestCollect_FailingClubIsSkipped(t *testing.T) {
	f := &stubFetcher{failing: map[int64]bool{3: true}}
	p := New(f, 2)

	got := p.Collect(context.Background(), "tok", clubs(5))

	want := []int64{1, 2, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("len(events) = %d, want %d", len(got), len(want))
	}
	for i, ev := range got {
		if ev.ClubID != want[i] {
			t.Errorf("events[%d].ClubID = %d, want %d", i, ev.ClubID, want[i])
		}
	}
	if len(f.calls) != 5 {
		t.Errorf("fetch called %d times, want 5", len(f.calls))
	}
	if f.maxSeen.Load() > 2 {
		t.Errorf("max in flight = %d, want <= 2", f.maxSeen.Load())
	}
}

func TestCollect_Empty(t *testing.T) {
	got := New(&stubFetcher{}, 3).Collect(context.Background(), "tok", nil)
	if len(got) != 0 {
		t.Errorf("Collect(nil) = %v, want empty", got)
	}
}

func TestNew_ConcurrencyNormalised(t *testing.T) {
	if got := New(&stubFetcher{}, 0).Concurrency(); got != 1 {
		t.Errorf("Concurrency() = %d, want 1", got)
	}
}

// End to end against the mock API: club 3 always fails and is retried
// three times, everything else is returned in club order.
func TestCollect_AgainstMockAPI(t *testing.T) {
	mock := testutil.NewMockStrava()
	defer mock.Close()

	all := []client.Club{
		{ID: 1, Name: "Rapha Berlin"},
		{ID: 2, Name: "8bar Community"},
		{ID: 3, Name: "CYKEL BUTIK"},
		{ID: 4, Name: "Standert Bicycles"},
		{ID: 5, Name: "Trek Bicycle Berlin"},
	}
	mock.SetClubs(all)
	for _, c := range all {
		if c.ID == 3 {
			mock.SetClubEvents(c.ID, testutil.NewServerErrorResponse())
			continue
		}
		mock.SetClubEvents(c.ID, testutil.NewHealthyResponse(
			`[{"id": `+itoa(c.ID*10)+`, "title": "Ride", "club_id": `+itoa(c.ID)+`, "club_name": "stale",
			   "upcoming_occurrences": ["2024-05-0`+itoa(6-c.ID)+`T09:00:00Z"]}]`))
	}

	cfg := client.DefaultConfig()
	cfg.BaseURL = mock.URL()
	cfg.RequestsPerSecond = 0
	c, err := client.New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	listed, err := c.ListClubs(ctx, "tok")
	if err != nil {
		t.Fatalf("ListClubs() error = %v", err)
	}

	var waits []time.Duration
	var mu sync.Mutex
	fetcher := client.NewEventFetcher(c, c.Directory())
	fetcher.SetSleep(func(d time.Duration) {
		mu.Lock()
		waits = append(waits, d)
		mu.Unlock()
	})

	p := New(fetcher, 2)
	run := func() []byte {
		evts := p.Collect(ctx, "tok", listed)
		path := filepath.Join(t.TempDir(), "all.json")
		if !events.SaveEventsToFile(evts, path) {
			t.Fatal("SaveEventsToFile() = false")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}

	first := run()
	if got := mock.PathCount(testutil.ClubEventsPath(3)); got != client.MaxAttempts {
		t.Errorf("club 3 requested %d times, want %d", got, client.MaxAttempts)
	}
	if len(waits) != 2 || waits[0] != time.Second || waits[1] != 2*time.Second {
		t.Errorf("waits = %v, want [1s 2s]", waits)
	}

	occs, err := events.LoadOccurrences(writeTemp(t, first))
	if err != nil {
		t.Fatal(err)
	}
	if len(occs) != 4 {
		t.Fatalf("len(occurrences) = %d, want 4", len(occs))
	}
	for _, o := range occs {
		if o.ClubID == 3 {
			t.Error("failing club must contribute nothing")
		}
		if o.ClubName == "stale" {
			t.Errorf("club_name of club %d not taken from the directory", o.ClubID)
		}
	}
	// sorted by start date: club 5 first
	if occs[0].ClubID != 5 || occs[0].ClubName != "Trek Bicycle Berlin" {
		t.Errorf("first occurrence = %+v", occs[0])
	}

	second := run()
	if !bytes.Equal(first, second) {
		t.Error("two runs against the same API produced different files")
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "copy.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
