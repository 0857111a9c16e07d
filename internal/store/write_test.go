package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfemlab/pfemrun/internal/runner"
	"github.com/pfemlab/pfemrun/internal/sweep"
)

func TestRecordRun_UpdatesCounters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	agg := createTestAggregate("sw-1", "fp-1", testStart)
	require.NoError(t, s.BeginSweep(ctx, agg))

	require.NoError(t, s.RecordRun(ctx, "sw-1", sweep.RunRecord{
		Index:      2,
		Name:       "p51_1_run2",
		Assignment: map[string]string{"E": "1e6"},
		Status:     sweep.StatusFailed,
		ExitCode:   3,
		Error:      "exit status 3",
	}))
	require.NoError(t, s.RecordRun(ctx, "sw-1", sweep.RunRecord{
		Index:      1,
		Name:       "p51_1_run1",
		Assignment: map[string]string{"E": "1e5"},
		Status:     sweep.StatusSucceeded,
		Success:    true,
		Outputs:    []string{"p51_1_run1.res"},
		Summary:    &runner.ResultSummary{Equations: 18, SkylineStorage: 142},
		StartedAt:  testStart,
		FinishedAt: testStart.Add(time.Second),
	}))

	row, err := s.GetSweep(ctx, "sw-1")
	require.NoError(t, err)
	assert.Equal(t, 1, row.Succeeded)
	assert.Equal(t, 1, row.Failed)
	assert.False(t, row.Complete)

	runs, err := s.SweepRuns(ctx, "sw-1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 1, runs[0].Index, "runs ordered by index")
	assert.Equal(t, map[string]string{"E": "1e5"}, runs[0].Assignment)
	assert.Equal(t, []string{"p51_1_run1.res"}, runs[0].Outputs)
	assert.Equal(t, &runner.ResultSummary{Equations: 18, SkylineStorage: 142}, runs[0].Summary)
	assert.Equal(t, "exit status 3", runs[1].Error)
	assert.Nil(t, runs[1].Summary)
	assert.Empty(t, runs[1].Outputs)
}

func TestRecordRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BeginSweep(ctx, createTestAggregate("sw-1", "fp", testStart)))

	rec := sweep.RunRecord{Index: 1, Name: "r1", Status: sweep.StatusFailed, ExitCode: 1}
	require.NoError(t, s.RecordRun(ctx, "sw-1", rec))
	rec.Status = sweep.StatusSucceeded
	rec.ExitCode = 0
	require.NoError(t, s.RecordRun(ctx, "sw-1", rec))

	runs, err := s.SweepRuns(ctx, "sw-1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "succeeded", runs[0].Status)

	row, err := s.GetSweep(ctx, "sw-1")
	require.NoError(t, err)
	assert.Equal(t, 1, row.Succeeded)
	assert.Zero(t, row.Failed)
}

func TestRecordRun_RequiresSweep(t *testing.T) {
	s := createTestStore(t)
	err := s.RecordRun(context.Background(), "missing", sweep.RunRecord{Index: 1, Name: "r1", Status: sweep.StatusFailed})
	assert.Error(t, err, "foreign key enforced")
}

func TestFinishSweep(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	agg := createTestAggregate("sw-1", "fp", testStart)
	require.NoError(t, s.BeginSweep(ctx, agg))
	require.NoError(t, s.BeginSweep(ctx, agg), "begin is idempotent")

	agg.Succeeded, agg.Failed, agg.Skipped = 1, 0, 1
	agg.Complete = true
	agg.FinishedAt = testStart.Add(time.Minute)
	require.NoError(t, s.FinishSweep(ctx, agg))

	row, err := s.GetSweep(ctx, "sw-1")
	require.NoError(t, err)
	assert.True(t, row.Complete)
	assert.Equal(t, 1, row.Skipped)
	assert.True(t, row.FinishedAt.Equal(testStart.Add(time.Minute)))

	err = s.FinishSweep(ctx, createTestAggregate("other", "fp", testStart))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRecordCaseRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ok := &runner.RunResult{
		Case:       runner.Case{Chapter: "chap05", Program: "p51", Basename: "p51_1"},
		Outputs:    []string{"/x/p51_1.res"},
		Summary:    &runner.ResultSummary{Equations: 18, SkylineStorage: 142},
		StartedAt:  testStart,
		FinishedAt: testStart.Add(2 * time.Second),
	}
	bad := &runner.RunResult{
		Case:       runner.Case{Chapter: "chap05", Program: "p104", Basename: "p104"},
		ExitCode:   2,
		StartedAt:  testStart,
		FinishedAt: testStart.Add(time.Second),
	}
	require.NoError(t, s.RecordCaseRun(ctx, ok))
	require.NoError(t, s.RecordCaseRun(ctx, bad))

	all, err := s.ListCaseRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "p104", all[0].Program, "newest first")
	assert.False(t, all[0].Success)
	assert.True(t, all[1].Success)
	assert.Equal(t, 18, all[1].Summary.Equations)
	assert.True(t, all[1].FinishedAt.Equal(testStart.Add(2*time.Second)))

	p51, err := s.ListCaseRuns(ctx, "p51", 10)
	require.NoError(t, err)
	assert.Len(t, p51, 1)
}
