package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListSweeps_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for i, id := range []string{"sw-a", "sw-b", "sw-c"} {
		fp := "fp-1"
		if id == "sw-c" {
			fp = "fp-2"
		}
		require.NoError(t, s.BeginSweep(ctx, createTestAggregate(id, fp, testStart.Add(time.Duration(i)*time.Hour))))
	}

	rows, err := s.ListSweeps(ctx, SweepFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"sw-c", "sw-b", "sw-a"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})
	assert.Equal(t, "p51", rows[0].Program)
	assert.True(t, rows[2].StartedAt.Equal(testStart))
	assert.True(t, rows[2].FinishedAt.IsZero())

	rows, err = s.ListSweeps(ctx, SweepFilter{Fingerprint: "fp-1"})
	require.NoError(t, err)
	assert.Len(t, rows, 2, "repeated sweeps correlate by fingerprint")

	rows, err = s.ListSweeps(ctx, SweepFilter{Program: "p51", Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "sw-c", rows[0].ID)

	rows, err = s.ListSweeps(ctx, SweepFilter{Program: "p104"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGetSweep_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetSweep(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSweepRuns_Empty(t *testing.T) {
	s := createTestStore(t)
	runs, err := s.SweepRuns(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, runs)
}
