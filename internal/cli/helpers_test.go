package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pfemlab/pfemrun/internal/testutil"
)

// execute runs the root command against the harness and returns stdout.
func execute(t *testing.T, h *testutil.Harness, fake *testutil.FakeToolchain, args ...string) (string, error) {
	t.Helper()
	if fake == nil {
		fake = &testutil.FakeToolchain{}
	}
	opts := &RootOptions{Toolchain: fake, LogWriter: io.Discard}
	cmd := newRootCommand(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--root", h.Root}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// decodeData unmarshals the data member of a JSON success response.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// decodeError unmarshals a JSON error response.
func decodeError(t *testing.T, out string) CLIError {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	require.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	return *resp.Error
}
