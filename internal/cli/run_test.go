package cli

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfemlab/pfemrun/internal/store"
	"github.com/pfemlab/pfemrun/internal/testutil"
)

func TestRunCaseSucceeds(t *testing.T) {
	h := testutil.NewHarness(t)

	out, err := execute(t, h, nil, "run", "chap05", "p51", "p51_1")
	require.NoError(t, err)
	assert.Contains(t, out, "chap05/p51 p51_1: ok")
	assert.Contains(t, out, "equations: 18  skyline storage: 142")
	assert.FileExists(t, h.Path("executable", "chap05", "p51_1.res"))
	assert.FileExists(t, h.Path("executable", "chap05", "p51_1.msh"))
	assert.NoFileExists(t, h.Path("executable", "chap05", "p51_2.res"))
}

func TestRunCaseJSON(t *testing.T) {
	h := testutil.NewHarness(t)

	out, err := execute(t, h, nil, "--format", "json", "run", "chap05", "p51", "p51_2")
	require.NoError(t, err)

	var summary RunSummary
	decodeData(t, out, &summary)
	assert.True(t, summary.Success)
	assert.Equal(t, "p51", summary.Case.Program)
	assert.Equal(t, h.Path("executable", "chap05", "p51_2.dat"), summary.Case.InputPath)
	assert.Equal(t, []string{
		h.Path("executable", "chap05", "p51_2.res"),
		h.Path("executable", "chap05", "p51_2.msh"),
	}, summary.Outputs)
	require.NotNil(t, summary.Summary)
	assert.Equal(t, 18, summary.Summary.Equations)
	assert.Empty(t, summary.Output)
}

func TestRunCaseRecordsLedger(t *testing.T) {
	h := testutil.NewHarness(t)

	_, err := execute(t, h, nil, "run", "chap05", "p51", "p51_1")
	require.NoError(t, err)

	st, err := store.Open(h.Path(".pfemrun", "ledger.db"))
	require.NoError(t, err)
	defer st.Close()
	rows, err := st.ListCaseRuns(context.Background(), "p51", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p51_1", rows[0].Basename)
	assert.True(t, rows[0].Success)
}

func TestRunCaseNoLedger(t *testing.T) {
	h := testutil.NewHarness(t)

	_, err := execute(t, h, nil, "run", "--no-ledger", "chap05", "p51", "p51_1")
	require.NoError(t, err)
	assert.NoFileExists(t, h.Path(".pfemrun", "ledger.db"))
}

func TestRunCaseFailureExitsOne(t *testing.T) {
	h := testutil.NewHarness(t)
	fake := &testutil.FakeToolchain{Program: testutil.FailingProgram}

	out, err := execute(t, h, fake, "run", "chap05", "p51", "p51_1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, out, "FAILED (exit status 3)")
	assert.Contains(t, out, "matrix not positive definite")
}

func TestRunCaseMissingInput(t *testing.T) {
	h := testutil.NewHarness(t)

	out, err := execute(t, h, nil, "--format", "json", "run", "chap05", "p51", "p51_9")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	e := decodeError(t, out)
	assert.Equal(t, CodeRun, e.Code)
	assert.Contains(t, e.Message, "input file not found")
}

func TestRunCaseMissingProgram(t *testing.T) {
	h := testutil.NewHarness(t)

	out, err := execute(t, h, nil, "--format", "json", "run", "chap05", "p77", "p77_1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, CodeLink, decodeError(t, out).Code)
}

func TestRunCaseRebuild(t *testing.T) {
	h := testutil.NewHarness(t)
	fake := &testutil.FakeToolchain{}

	_, err := execute(t, h, fake, "run", "chap05", "p51", "p51_1")
	require.NoError(t, err)
	_, err = execute(t, h, fake, "run", "chap05", "p51", "p51_1")
	require.NoError(t, err)
	assert.Len(t, fake.CompiledUnits(), 3)
	assert.Len(t, fake.Linked, 1, "up-to-date executable is reused")

	_, err = execute(t, h, fake, "run", "--rebuild", "chap05", "p51", "p51_1")
	require.NoError(t, err)
	assert.Len(t, fake.CompiledUnits(), 6)
	assert.Len(t, fake.Linked, 2)
}

func TestRunCaseRequiresThreeArgs(t *testing.T) {
	h := testutil.NewHarness(t)
	_, err := execute(t, h, nil, "run", "chap05", "p51")
	require.Error(t, err)
}

func TestRunCaseRebuildsAfterLibraryChange(t *testing.T) {
	h := testutil.NewHarness(t)
	fake := &testutil.FakeToolchain{}

	_, err := execute(t, h, fake, "run", "chap05", "p51", "p51_1")
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(h.Path("build", "libpfem.a"), past, past))

	_, err = execute(t, h, fake, "run", "chap05", "p51", "p51_1")
	require.NoError(t, err)
	assert.Len(t, fake.CompiledUnits(), 6)
	assert.Len(t, fake.Linked, 2, "relinked against the new archive")
}
