package runlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	log, err := Open(ctx, filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer log.Close()

	empty, err := log.Recent(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, empty)

	start := time.UnixMilli(1728993600000)
	first := Run{
		AccountKey:  "abc",
		StartedAt:   start,
		Duration:    1500 * time.Millisecond,
		Outcome:     OutcomeOK,
		TermCode:    "2024202501",
		Total:       7,
		Unsubmitted: 3,
	}
	id, err := log.Record(ctx, first)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	first.ID = id

	second := Run{
		ID:         "fixed",
		AccountKey: "abc",
		StartedAt:  start.Add(time.Hour),
		Duration:   time.Second,
		Outcome:    OutcomeFailed,
		Error:      "authentication failed",
	}
	_, err = log.Record(ctx, second)
	require.NoError(t, err)

	runs, err := log.Recent(ctx, 10)
	require.NoError(t, err)
	if diff := cmp.Diff([]Run{second, first}, runs); diff != "" {
		t.Fatal(diff)
	}

	runs, err = log.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "fixed", runs[0].ID)

	_, err = log.Record(ctx, second)
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	_, err := Open(context.Background(), "")
	require.Error(t, err)

	log, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	require.NoError(t, log.Close())

	require.True(t, isRemote("libsql://db.example.turso.io"))
	require.True(t, isRemote("http://127.0.0.1:8080"))
	require.False(t, isRemote("./runs.db"))
}
