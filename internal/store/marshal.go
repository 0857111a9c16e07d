package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pfemlab/pfemrun/internal/canonical"
	"github.com/pfemlab/pfemrun/internal/runner"
	"github.com/pfemlab/pfemrun/internal/sweep"
)

const timeLayout = time.RFC3339Nano

func marshalParams(params []sweep.Param) (string, error) {
	list := make([]any, len(params))
	for i, p := range params {
		list[i] = map[string]any{
			"name":   p.Name,
			"path":   p.Path.String(),
			"values": p.Values,
		}
	}
	data, err := canonical.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	return string(data), nil
}

func marshalAssignment(a map[string]string) (string, error) {
	if a == nil {
		a = map[string]string{}
	}
	data, err := canonical.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("marshal assignment: %w", err)
	}
	return string(data), nil
}

func marshalOutputs(outputs []string) (string, error) {
	if outputs == nil {
		outputs = []string{}
	}
	data, err := canonical.Marshal(outputs)
	if err != nil {
		return "", fmt.Errorf("marshal outputs: %w", err)
	}
	return string(data), nil
}

// summaryColumns splits an optional result summary into nullable columns.
func summaryColumns(s *runner.ResultSummary) (sql.NullInt64, sql.NullInt64) {
	if s == nil {
		return sql.NullInt64{}, sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(s.Equations), Valid: true},
		sql.NullInt64{Int64: int64(s.SkylineStorage), Valid: true}
}

func summaryFromColumns(neq, sky sql.NullInt64) *runner.ResultSummary {
	if !neq.Valid || !sky.Valid {
		return nil
	}
	return &runner.ResultSummary{Equations: int(neq.Int64), SkylineStorage: int(sky.Int64)}
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s.String)
}

func unmarshalJSON(column, text string, v any) error {
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("decode %s: %w", column, err)
	}
	return nil
}
