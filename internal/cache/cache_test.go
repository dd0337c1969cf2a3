package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"hwtrack-backend/internal/components/chrono"
	"hwtrack-backend/internal/components/telemetry"
	"hwtrack-backend/internal/homework"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func (c *clock) Location() *time.Location {
	return c.now.Location()
}

var _ chrono.API = &clock{}

func newTestStore(t *testing.T) (*Store, *clock, *telemetry.MemoryAPI) {
	c := &clock{now: time.Date(2024, time.October, 15, 12, 0, 0, 0, time.UTC)}
	mem := &telemetry.MemoryAPI{}
	return NewStore(filepath.Join(t.TempDir(), "cache"), c, mem), c, mem
}

func sampleResult(at time.Time) homework.Result {
	due := at.Add(48 * time.Hour)
	days := 2
	return homework.Result{
		Assignments: []homework.Assignment{{
			ID:         "1",
			Title:      "Lab 1",
			CourseName: "Networks",
			DueAt:      &due,
			DaysLeft:   &days,
			IsUrgent:   true,
			Status:     homework.StatusUnsubmitted,
			Kind:       homework.KindExperiment,
		}},
		Summary:   homework.Summary{Total: 1, Unsubmitted: 1, Urgent: 1},
		TermCode:  "2024202501",
		FetchedAt: at,
	}
}

func TestRoundTrip(t *testing.T) {
	store, c, _ := newTestStore(t)

	_, ok := store.Get("22301001")
	require.False(t, ok)
	require.True(t, store.IsExpired("22301001", time.Hour))

	result := sampleResult(c.now)
	require.NoError(t, store.Save("22301001", result))

	entry, ok := store.Get("22301001")
	require.True(t, ok)
	require.Equal(t, "22301001", entry.AccountID)
	require.Equal(t, c.now.UnixMilli(), entry.FetchedAt)
	if diff := cmp.Diff(result, entry.Result()); diff != "" {
		t.Fatal(diff)
	}

	_, err := os.Stat(filepath.Join(store.Dir(), "homework_"+Key("22301001")+".json"))
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(store.Dir(), "*.tmp"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestAgeAndExpiry(t *testing.T) {
	store, c, _ := newTestStore(t)
	require.NoError(t, store.Save("a", sampleResult(c.now)))

	c.now = c.now.Add(2 * time.Hour)
	age, ok := store.Age("a")
	require.True(t, ok)
	require.Equal(t, 2*time.Hour, age)

	require.False(t, store.IsExpired("a", 2*time.Hour))
	require.True(t, store.IsExpired("a", time.Hour))
}

func TestSaveOverwrites(t *testing.T) {
	store, c, _ := newTestStore(t)
	require.NoError(t, store.Save("a", sampleResult(c.now)))

	// memoized read, then an overwrite must be visible
	_, ok := store.Get("a")
	require.True(t, ok)

	next := sampleResult(c.now.Add(time.Hour))
	next.TermCode = "2024202502"
	next.Assignments = nil
	next.Summary = homework.Summary{}
	require.NoError(t, store.Save("a", next))

	entry, ok := store.Get("a")
	require.True(t, ok)
	require.Equal(t, "2024202502", entry.TermCode)
	require.Empty(t, entry.Assignments)
	require.NotNil(t, entry.Assignments)
}

func TestCorruptFile(t *testing.T) {
	store, c, mem := newTestStore(t)
	require.NoError(t, store.Save("a", sampleResult(c.now)))

	err := os.WriteFile(filepath.Join(store.Dir(), "homework_"+Key("a")+".json"), []byte("{not json"), 0o644)
	require.NoError(t, err)

	_, ok := store.Get("a")
	require.False(t, ok)
	require.True(t, store.IsExpired("a", time.Hour))
	require.Len(t, mem.Reports("warning"), 1)
}

func TestDeleteListClear(t *testing.T) {
	store, c, _ := newTestStore(t)

	listing, err := store.ListAll()
	require.NoError(t, err)
	require.Empty(t, listing)
	require.NoError(t, store.Delete("missing"))

	require.NoError(t, store.Save("a", sampleResult(c.now.Add(-time.Hour))))
	require.NoError(t, store.Save("b", sampleResult(c.now)))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("keep"), 0o644))

	listing, err = store.ListAll()
	require.NoError(t, err)
	require.Len(t, listing, 2)
	require.Equal(t, "b", listing[0].AccountID)
	require.Equal(t, "a", listing[1].AccountID)
	require.Equal(t, time.Hour, listing[1].Age)

	require.NoError(t, store.Delete("a"))
	_, ok := store.Get("a")
	require.False(t, ok)

	require.NoError(t, store.ClearAll())
	_, ok = store.Get("b")
	require.False(t, ok)

	_, err = os.Stat(filepath.Join(store.Dir(), "notes.txt"))
	require.NoError(t, err)
}
