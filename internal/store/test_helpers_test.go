package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pfemlab/pfemrun/internal/inputrec"
	"github.com/pfemlab/pfemrun/internal/sweep"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger", "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testStart = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

// createTestAggregate creates a sweep aggregate with minimal required fields.
func createTestAggregate(id, fingerprint string, started time.Time) *sweep.Aggregate {
	return &sweep.Aggregate{
		SweepID:     id,
		Fingerprint: fingerprint,
		Chapter:     "chap05",
		Program:     "p51",
		BaseCase:    "p51_1",
		OutDir:      "/tmp/sweeps/" + id,
		Params: []sweep.Param{
			{Name: "E", Path: inputrec.FieldPath{Record: 2, Field: 1}, Values: []string{"1e5", "1e6"}},
		},
		Total:     2,
		StartedAt: started,
	}
}
