package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/Iron-Ham/teambot/internal/errors"
	"github.com/Iron-Ham/teambot/internal/metrics"
	"github.com/Iron-Ham/teambot/internal/teams"
)

// fakeClock is a settable clock shared by a test and the store under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingMetrics records the calls the store makes.
type countingMetrics struct {
	metrics.NopMetrics
	mu              sync.Mutex
	pruned          int
	persistFailures int
}

func (m *countingMetrics) RecordPruned(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned += n
}

func (m *countingMetrics) RecordPersistFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistFailures++
}

func newTestStore(t *testing.T, clock *fakeClock, opts ...Option) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(path, opts...), path
}

func sampleAssignment() teams.Assignment {
	return teams.Assignment{
		Red:  []snowflake.ID{11, 12, 13},
		Blue: []snowflake.ID{21, 22},
	}
}

func readSnapshot(t *testing.T, path string) Snapshot {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("failed to parse snapshot: %v", err)
	}
	return snap
}

func TestStore_CommitAndGet(t *testing.T) {
	clock := newFakeClock()
	store, path := newTestStore(t, clock)

	store.CommitAssignment(100, sampleAssignment())

	got, ok := store.Assignment(100)
	if !ok {
		t.Fatal("expected assignment to be present")
	}
	if got.Origin != 100 {
		t.Errorf("Origin = %v, want 100", got.Origin)
	}
	if !slices.Equal(got.Red, sampleAssignment().Red) || !slices.Equal(got.Blue, sampleAssignment().Blue) {
		t.Errorf("Assignment() = %+v, want %+v", got, sampleAssignment())
	}

	// Mutating the returned value must not leak into the store.
	got.Red[0] = 999
	again, _ := store.Assignment(100)
	if again.Red[0] != 11 {
		t.Error("Assignment() returned a slice aliasing store state")
	}

	if _, ok := store.Assignment(200); ok {
		t.Error("expected no assignment for unknown origin")
	}

	snap := readSnapshot(t, path)
	if snap.Version != FormatVersion {
		t.Errorf("Version = %d, want %d", snap.Version, FormatVersion)
	}
	entry, ok := snap.Assignments["100"]
	if !ok {
		t.Fatalf("snapshot missing assignment: %+v", snap)
	}
	if !slices.Equal(entry.RedMemberIDs, []int64{11, 12, 13}) || !slices.Equal(entry.BlueMemberIDs, []int64{21, 22}) {
		t.Errorf("snapshot entry = %+v", entry)
	}
	if entry.UpdatedAt != 1_700_000_000 {
		t.Errorf("UpdatedAt = %v, want 1700000000", entry.UpdatedAt)
	}
}

func TestStore_CommitOverwrites(t *testing.T) {
	clock := newFakeClock()
	store, _ := newTestStore(t, clock)

	store.CommitAssignment(100, sampleAssignment())
	clock.Advance(DefaultTTL - time.Hour)
	store.CommitAssignment(100, teams.Assignment{Red: []snowflake.ID{1}, Blue: []snowflake.ID{2}})

	// The refreshed timestamp keeps it alive past the original expiry.
	clock.Advance(2 * time.Hour)
	got, ok := store.Assignment(100)
	if !ok {
		t.Fatal("expected refreshed assignment to be present")
	}
	if !slices.Equal(got.Red, []snowflake.ID{1}) {
		t.Errorf("Red = %v, want [1]", got.Red)
	}
}

func TestStore_ExpiryWithoutPrune(t *testing.T) {
	clock := newFakeClock()
	m := &countingMetrics{}
	store, path := newTestStore(t, clock, WithMetrics(m))

	store.CommitAssignment(100, sampleAssignment())
	store.CommitDestinations(100, teams.Destinations{Red: 501, Blue: 502})

	clock.Advance(DefaultTTL)
	if _, ok := store.Assignment(100); !ok {
		t.Fatal("record exactly TTL old should still be valid")
	}

	clock.Advance(time.Second)
	if _, ok := store.Assignment(100); ok {
		t.Error("expected expired assignment to be absent")
	}
	if _, ok := store.Destinations(100); ok {
		t.Error("expected expired destinations to be absent")
	}
	if m.pruned != 2 {
		t.Errorf("pruned = %d, want 2", m.pruned)
	}

	snap := readSnapshot(t, path)
	if len(snap.Assignments) != 0 || len(snap.Destinations) != 0 {
		t.Errorf("lazy purge was not persisted: %+v", snap)
	}
}

func TestStore_Destinations(t *testing.T) {
	clock := newFakeClock()
	store, path := newTestStore(t, clock)

	store.CommitDestinations(100, teams.Destinations{Origin: 999, Red: 501, Blue: 502})

	got, ok := store.Destinations(100)
	if !ok {
		t.Fatal("expected destinations to be present")
	}
	want := teams.Destinations{Origin: 100, Red: 501, Blue: 502}
	if got != want {
		t.Errorf("Destinations() = %+v, want %+v", got, want)
	}

	entry := readSnapshot(t, path).Destinations["100"]
	if entry.RedTarget != 501 || entry.BlueTarget != 502 {
		t.Errorf("snapshot entry = %+v", entry)
	}
}

func TestStore_PruneExpired(t *testing.T) {
	clock := newFakeClock()
	m := &countingMetrics{}
	store, path := newTestStore(t, clock, WithMetrics(m))

	store.CommitAssignment(1, sampleAssignment())
	store.CommitDestinations(1, teams.Destinations{Red: 5, Blue: 6})
	clock.Advance(3 * 24 * time.Hour)
	store.CommitAssignment(2, sampleAssignment())

	t.Run("nothing expired does not write", func(t *testing.T) {
		// Make any rewrite observable through the modification time.
		old := time.Unix(1_600_000_000, 0)
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatal(err)
		}

		if n := store.PruneExpired(clock.Now()); n != 0 {
			t.Errorf("PruneExpired() = %d, want 0", n)
		}

		after, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if !after.ModTime().Equal(old) {
			t.Error("snapshot was rewritten although nothing expired")
		}
	})

	t.Run("removes only expired records", func(t *testing.T) {
		now := clock.Now().Add(5 * 24 * time.Hour)
		if n := store.PruneExpired(now); n != 2 {
			t.Errorf("PruneExpired() = %d, want 2", n)
		}
		if m.pruned != 2 {
			t.Errorf("pruned metric = %d, want 2", m.pruned)
		}

		snap := readSnapshot(t, path)
		if _, ok := snap.Assignments["1"]; ok {
			t.Error("expired assignment still persisted")
		}
		if _, ok := snap.Assignments["2"]; !ok {
			t.Error("fresh assignment was pruned")
		}
		if len(snap.Destinations) != 0 {
			t.Error("expired destinations still persisted")
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		if n := store.PruneExpired(clock.Now().Add(5 * 24 * time.Hour)); n != 0 {
			t.Errorf("second PruneExpired() = %d, want 0", n)
		}
	})
}

func TestStore_RoundTrip(t *testing.T) {
	clock := newFakeClock()
	store, path := newTestStore(t, clock)

	store.CommitAssignment(100, sampleAssignment())
	clock.Advance(1500 * time.Millisecond)
	store.CommitDestinations(100, teams.Destinations{Red: 501, Blue: 502})
	store.CommitAssignment(200, teams.Assignment{Red: []snowflake.ID{7}, Blue: []snowflake.ID{}})

	reloaded := New(path, WithClock(clock.Now))
	result := reloaded.Load()
	if result.Ignored != nil {
		t.Fatalf("Load() ignored snapshot: %v", result.Ignored)
	}
	if result.Assignments != 2 || result.Destinations != 1 || result.Dropped != 0 || result.Expired != 0 {
		t.Errorf("Load() = %+v", result)
	}

	want := store.Contents()
	got := reloaded.Contents()
	for origin, rec := range want.Assignments {
		g, ok := got.Assignments[origin]
		if !ok {
			t.Fatalf("assignment %v missing after reload", origin)
		}
		if !slices.Equal(g.Value.Red, rec.Value.Red) || !slices.Equal(g.Value.Blue, rec.Value.Blue) || g.Value.Origin != origin {
			t.Errorf("assignment %v = %+v, want %+v", origin, g.Value, rec.Value)
		}
		if !g.UpdatedAt.Equal(rec.UpdatedAt) {
			t.Errorf("assignment %v UpdatedAt = %v, want %v", origin, g.UpdatedAt, rec.UpdatedAt)
		}
	}
	for origin, rec := range want.Destinations {
		g, ok := got.Destinations[origin]
		if !ok {
			t.Fatalf("destinations %v missing after reload", origin)
		}
		if g.Value != rec.Value || !g.UpdatedAt.Equal(rec.UpdatedAt) {
			t.Errorf("destinations %v = %+v, want %+v", origin, g, rec)
		}
	}
}

func TestStore_LoadDropsMalformedEntries(t *testing.T) {
	clock := newFakeClock()
	now := float64(clock.Now().Unix())
	doc := map[string]any{
		"version": 1,
		"assignments": map[string]any{
			"100":    map[string]any{"redMemberIds": []int{1, 2}, "blueMemberIds": []int{3}, "updatedAt": now},
			"not-id": map[string]any{"redMemberIds": []int{1}, "blueMemberIds": []int{2}, "updatedAt": now},
			"101":    map[string]any{"redMemberIds": []int{1}, "updatedAt": now},
			"102":    map[string]any{"redMemberIds": []string{"x"}, "blueMemberIds": []int{2}, "updatedAt": now},
			"103":    "garbage",
			"104":    map[string]any{"redMemberIds": []int{1}, "blueMemberIds": []int{2}, "updatedAt": now - 8*24*3600},
			"-5":     map[string]any{"redMemberIds": []int{1}, "blueMemberIds": []int{2}, "updatedAt": now},
		},
		"destinations": map[string]any{
			"100": map[string]any{"redTarget": 10, "blueTarget": 11, "updatedAt": now},
			"101": map[string]any{"redTarget": 10, "updatedAt": now},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), DefaultFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	store := New(path, WithClock(clock.Now))
	result := store.Load()

	if result.Ignored != nil {
		t.Fatalf("Load() ignored the file: %v", result.Ignored)
	}
	if result.Assignments != 1 || result.Destinations != 1 {
		t.Errorf("accepted %d assignments, %d destinations; want 1, 1", result.Assignments, result.Destinations)
	}
	if result.Dropped != 6 {
		t.Errorf("Dropped = %d, want 6", result.Dropped)
	}
	if result.Expired != 1 {
		t.Errorf("Expired = %d, want 1", result.Expired)
	}

	if _, ok := store.Assignment(100); !ok {
		t.Error("valid sibling entry was discarded")
	}

	snap := readSnapshot(t, path)
	if len(snap.Assignments) != 1 || len(snap.Destinations) != 1 {
		t.Errorf("cleaned snapshot not written back: %+v", snap)
	}
}

func TestStore_LoadIgnoresWholeFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"version mismatch", `{"version": 2, "assignments": {"1": {"redMemberIds": [1], "blueMemberIds": [2], "updatedAt": 1700000000}}}`, errors.ErrFormatMismatch},
		{"missing version", `{"assignments": {}}`, errors.ErrFormatMismatch},
		{"corrupt", `{"version": 1, "assignments": `, errors.ErrCorruptSnapshot},
		{"not an object", `[1, 2, 3]`, errors.ErrCorruptSnapshot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), DefaultFileName)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			store := New(path, WithClock(newFakeClock().Now))
			result := store.Load()
			if !errors.Is(result.Ignored, tt.want) {
				t.Errorf("Ignored = %v, want %v", result.Ignored, tt.want)
			}
			if c := store.Contents(); len(c.Assignments) != 0 || len(c.Destinations) != 0 {
				t.Errorf("expected empty store, got %+v", c)
			}

			// The ignored file is left untouched.
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.content {
				t.Error("ignored snapshot was rewritten")
			}
		})
	}
}

func TestStore_LoadMissingFile(t *testing.T) {
	store, path := newTestStore(t, newFakeClock())
	result := store.Load()
	if result != (LoadResult{}) {
		t.Errorf("Load() = %+v, want zero result", result)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Load() should not create a snapshot for a missing file")
	}
}

func TestStore_WriteFailureIsAbsorbed(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := &countingMetrics{}
	store := New(filepath.Join(blocker, DefaultFileName), WithClock(newFakeClock().Now), WithMetrics(m))

	store.CommitAssignment(100, sampleAssignment())

	if _, ok := store.Assignment(100); !ok {
		t.Error("in-memory state should survive a failed write")
	}
	if m.persistFailures != 1 {
		t.Errorf("persistFailures = %d, want 1", m.persistFailures)
	}
}

func TestStore_MemoryOnly(t *testing.T) {
	clock := newFakeClock()
	store := New("", WithClock(clock.Now))

	store.CommitAssignment(100, sampleAssignment())
	if _, ok := store.Assignment(100); !ok {
		t.Error("expected assignment in memory-only store")
	}
	if result := store.Load(); result != (LoadResult{}) {
		t.Errorf("Load() on memory-only store = %+v", result)
	}
}

func TestStore_ConcurrentCommitsAndPrunes(t *testing.T) {
	clock := newFakeClock()
	store, path := newTestStore(t, clock)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func(origin snowflake.ID) {
			defer wg.Done()
			store.CommitAssignment(origin, sampleAssignment())
			store.CommitDestinations(origin, teams.Destinations{Red: 1, Blue: 2})
		}(snowflake.ID(i + 1))
		go func() {
			defer wg.Done()
			store.PruneExpired(clock.Now())
		}()
	}
	wg.Wait()

	snap := readSnapshot(t, path)
	if len(snap.Assignments) != 20 || len(snap.Destinations) != 20 {
		t.Errorf("snapshot has %d assignments, %d destinations; want 20 each",
			len(snap.Assignments), len(snap.Destinations))
	}

	// No temp files are left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only the snapshot in the directory, found %v", names)
	}
}
