package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// PFEMProgram behaves like a chapter program: it reads the case basename
// from stdin, opens <basename>.dat in the working directory and writes a
// results file whose header reports the system size, followed by the input
// it read, plus a mesh file.
const PFEMProgram = `read name
if [ ! -f "$name.dat" ]; then
  echo "cannot open $name.dat"
  exit 2
fi
echo " There are 18 equations and the skyline storage is 142" > "$name.res"
cat "$name.dat" >> "$name.res"
echo "mesh for $name" > "$name.msh"
echo "solved $name"
`

// FailingProgram exits non-zero after writing a partial results file.
const FailingProgram = `read name
echo "partial" > "$name.res"
echo "matrix not positive definite" >&2
exit 3
`

// SleepingProgram blocks long enough to trip any short timeout.
const SleepingProgram = `read name
sleep 30
echo done > "$name.res"
`

// WriteProgram writes an executable /bin/sh script with the given body.
func WriteProgram(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
