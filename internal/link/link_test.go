package link

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfemlab/pfemrun/internal/config"
	"github.com/pfemlab/pfemrun/internal/modgraph"
	"github.com/pfemlab/pfemrun/internal/testutil"
)

func setup(t *testing.T) (*testutil.Harness, config.Config, *testutil.FakeToolchain) {
	t.Helper()
	h := testutil.NewHarness(t)
	cfg := config.Default(h.Root)
	fake := &testutil.FakeToolchain{}
	_, err := modgraph.NewBuilder(cfg, fake, nil).Build(context.Background(), false)
	require.NoError(t, err)
	return h, cfg, fake
}

func TestLinkProducesExecutable(t *testing.T) {
	h, cfg, fake := setup(t)

	res, err := New(cfg, fake, nil).Link(context.Background(), "chap05", "p51", false)
	require.NoError(t, err)
	assert.True(t, res.Linked)
	assert.Equal(t, h.Path("executable", "chap05", "p51"), res.Executable)
	assert.Equal(t, h.Path("source", "chap05", "p51.f03"), res.Entry)
	assert.FileExists(t, res.Executable)
	assert.Equal(t, []string{"p51.f03"}, fake.Linked)
}

func TestLinkReusesUpToDateExecutable(t *testing.T) {
	_, cfg, fake := setup(t)
	l := New(cfg, fake, nil)

	_, err := l.Link(context.Background(), "chap05", "p51", false)
	require.NoError(t, err)
	res, err := l.Link(context.Background(), "chap05", "p51", false)
	require.NoError(t, err)
	assert.False(t, res.Linked)
	assert.Len(t, fake.Linked, 1)

	res, err = l.Link(context.Background(), "chap05", "p51", true)
	require.NoError(t, err)
	assert.True(t, res.Linked)
	assert.Len(t, fake.Linked, 2)
}

func TestLinkRelinksWhenEntryChanges(t *testing.T) {
	h, cfg, fake := setup(t)
	l := New(cfg, fake, nil)

	res, err := l.Link(context.Background(), "chap05", "p51", false)
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(res.Executable, past, past))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(h.Path("source", "chap05", "p51.f03"), future, future))

	res, err = l.Link(context.Background(), "chap05", "p51", false)
	require.NoError(t, err)
	assert.True(t, res.Linked)
}

func TestLinkMissingEntrySource(t *testing.T) {
	h, cfg, fake := setup(t)

	_, err := New(cfg, fake, nil).Link(context.Background(), "chap05", "p77", false)
	require.Error(t, err)
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, err.Error(), h.Path("source", "chap05", "p77.f03"))
	assert.Empty(t, fake.Linked)
}

func TestLinkFindsAlternateExtension(t *testing.T) {
	h, cfg, fake := setup(t)
	testutil.WriteFile(t, h.Path("source", "chap06", "p61.f90"), "PROGRAM p61\nEND PROGRAM p61\n")

	res, err := New(cfg, fake, nil).Link(context.Background(), "chap06", "p61", false)
	require.NoError(t, err)
	assert.Equal(t, h.Path("source", "chap06", "p61.f90"), res.Entry)
}

func TestLinkRequiresArchive(t *testing.T) {
	h := testutil.NewHarness(t)
	cfg := config.Default(h.Root)

	_, err := New(cfg, &testutil.FakeToolchain{}, nil).Link(context.Background(), "chap05", "p51", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArchiveMissing)
	assert.Contains(t, err.Error(), cfg.ArchivePath())
}

func TestLinkRejectsStaleArchive(t *testing.T) {
	h, cfg, fake := setup(t)
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(h.Path("library", "geom", "geom.f03"), future, future))

	_, err := New(cfg, fake, nil).Link(context.Background(), "chap05", "p51", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArchiveStale)
	assert.Contains(t, err.Error(), "geom.f03")
}

func TestLinkFailureReportsDiagnostics(t *testing.T) {
	h, cfg, fake := setup(t)
	fake.FailOn = map[string]string{"p51.f03": "undefined reference to `formnf_'"}

	_, err := New(cfg, fake, nil).Link(context.Background(), "chap05", "p51", false)
	require.Error(t, err)
	var le *LinkError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, err.Error(), "undefined reference")
	assert.NoFileExists(t, h.Path("executable", "chap05", "p51"))
}
