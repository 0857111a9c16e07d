package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfemlab/pfemrun/internal/testutil"
)

func TestHistoryListsSweeps(t *testing.T) {
	h := testutil.NewHarness(t)
	_, err := executeSweep(t, h, nil, "text", "chap05", "p51", "p51_1", "--param", "E=r2.f1:1e5,2e5")
	require.NoError(t, err)

	out, err := execute(t, h, nil, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "sweep-0001 chap05/p51 p51_1: 2 runs, 2 succeeded, 0 failed, 0 skipped (complete)")

	out, err = execute(t, h, nil, "history", "--program", "p104")
	require.NoError(t, err)
	assert.Contains(t, out, "no sweeps recorded")
}

func TestHistoryShowsSweepRuns(t *testing.T) {
	h := testutil.NewHarness(t)
	_, err := executeSweep(t, h, nil, "text", "chap05", "p51", "p51_1", "--param", "E=r2.f1:1e5,2e5")
	require.NoError(t, err)

	out, err := execute(t, h, nil, "--format", "json", "history", "--runs", "sweep-0001")
	require.NoError(t, err)

	var summary HistorySummary
	decodeData(t, out, &summary)
	require.NotNil(t, summary.Sweep)
	assert.Equal(t, "sweep-0001", summary.Sweep.ID)
	require.Len(t, summary.Sweep.Runs, 2)
	assert.Equal(t, "p51_1_run2", summary.Sweep.Runs[1].Name)
	assert.Equal(t, map[string]string{"E": "2e5"}, summary.Sweep.Runs[1].Assignment)
}

func TestHistoryListsCaseRuns(t *testing.T) {
	h := testutil.NewHarness(t)
	_, err := execute(t, h, nil, "run", "chap05", "p51", "p51_1")
	require.NoError(t, err)
	_, err = execute(t, h, nil, "run", "chap05", "p104", "p104")
	require.NoError(t, err)

	out, err := execute(t, h, nil, "history", "--cases", "--program", "p51")
	require.NoError(t, err)
	assert.Contains(t, out, "chap05/p51 p51_1: ok")
	assert.NotContains(t, out, "p104")
}

func TestHistoryUnknownSweep(t *testing.T) {
	h := testutil.NewHarness(t)

	out, err := execute(t, h, nil, "--format", "json", "history", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	e := decodeError(t, out)
	assert.Equal(t, CodeLedger, e.Code)
	assert.Contains(t, e.Message, "not found")
}

func TestHistoryLedgerDisabled(t *testing.T) {
	h := testutil.NewHarness(t)
	testutil.WriteFile(t, h.Path("pfemrun.yaml"), "ledger: \"\"\n")

	_, err := execute(t, h, nil, "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger disabled")
}
