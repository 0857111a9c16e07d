package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfemlab/pfemrun/internal/bundle"
	"github.com/pfemlab/pfemrun/internal/testutil"
)

func TestCollectRunsEveryCase(t *testing.T) {
	h := testutil.NewHarness(t)

	out, err := execute(t, h, nil, "--format", "json", "collect", "--run")
	require.NoError(t, err)

	var summary CollectSummary
	decodeData(t, out, &summary)
	assert.Equal(t, h.Path("pfem_yaml_bundle"), summary.BundleDir)
	assert.Equal(t, 4, summary.Attempted)
	require.Len(t, summary.Collected, 3)
	assert.Equal(t, []bundle.Skip{{Chapter: "chap05", Case: "p99_1", Reason: "no matching program source"}}, summary.Skipped)
	assert.Empty(t, summary.Failures)

	p51 := summary.Collected[1]
	assert.Equal(t, "p51_1", p51.Case)
	assert.Equal(t, "p51", p51.Program)
	require.NotNil(t, p51.Summary)
	assert.Equal(t, 142, p51.Summary.SkylineStorage)
	assert.FileExists(t, h.Path("pfem_yaml_bundle", "cases", "chap05", "p51_1", "schema.yaml"))
}

func TestCollectReportsFailuresAndExitsZero(t *testing.T) {
	h := testutil.NewHarness(t)
	fake := &testutil.FakeToolchain{Program: testutil.FailingProgram}

	out, err := execute(t, h, fake, "collect", "--run", "chap05")
	require.NoError(t, err)
	assert.Contains(t, out, "collected 0 of 4 cases")
	assert.Contains(t, out, "failed 3:")
	assert.Contains(t, out, "chap05/p51_1:")
	assert.Contains(t, out, "skipped 1:")
}

func TestCollectSingleArchive(t *testing.T) {
	h := testutil.NewHarness(t)

	out, err := execute(t, h, nil, "collect", "--run", "--single-archive")
	require.NoError(t, err)
	archive := h.Path("pfem_yaml_bundle", "pfem_yaml_bundle.tar.gz")
	assert.Contains(t, out, "archive: "+archive)
	assert.FileExists(t, archive)
}

func TestCollectMissingChapterIsFatal(t *testing.T) {
	h := testutil.NewHarness(t)

	_, err := execute(t, h, nil, "collect", "chap99")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "chapter directory not found")
}
