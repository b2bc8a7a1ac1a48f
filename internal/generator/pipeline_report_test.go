package generator

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineReport_Save(t *testing.T) {
	r := NewPipelineReport("generate", "src", "docs/reference")

	st := r.BeginStage("scan")
	r.EndStage(st, "ok", map[string]float64{"modules": 2, " ": 5}, []string{"", "note"}, nil)
	st = r.BeginStage("write")
	r.EndStage(st, "ok", nil, nil, errors.New("disk full"))

	r.AddDocument(DocumentMetric{Source: "a.py", Kind: KindModule, Status: StatusWritten})
	r.AddDocument(DocumentMetric{Source: "b.py", Kind: KindModule, Status: StatusUnchanged})
	r.AddDocument(DocumentMetric{Source: "c.py", Kind: KindModule, Status: StatusFailed, Error: "boom"})
	r.AddDocument(DocumentMetric{})

	r.AddSignal("file_skipped", "scan", "Warning", "c.py failed to parse", 1)
	r.AddSignal("write_failed", "write", "critical", "c.md could not be written", 1)
	r.AddSignal("", "scan", "info", "dropped", 0)

	path := filepath.Join(t.TempDir(), "out", "report.json")
	require.NoError(t, r.Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got PipelineReport
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.Equal(t, 2, got.Summary.StageCount)
	assert.Equal(t, 1, got.Summary.FailedStages)
	assert.Equal(t, "error", got.Stages[1].Status)
	assert.Equal(t, map[string]float64{"modules": 2}, got.Stages[0].Counters)
	assert.Equal(t, []string{"note"}, got.Stages[0].Notes)

	assert.Equal(t, 3, got.Summary.DocumentCount)
	assert.Equal(t, 1, got.Summary.Written)
	assert.Equal(t, 1, got.Summary.Unchanged)
	assert.Equal(t, 1, got.Summary.Failed)

	require.Len(t, got.Signals, 2)
	assert.Equal(t, "write_failed", got.Signals[0].Code, "critical signals sort first")
	assert.Equal(t, "warning", got.Signals[1].Severity)
	assert.Equal(t, 1, got.Summary.SignalsBySeverity["critical"])
}

func TestPipelineReport_NilIsSafe(t *testing.T) {
	var r *PipelineReport
	r.AddSignal("x", "y", "info", "z", 0)
	r.AddDocument(DocumentMetric{Source: "a.py"})
	r.Finalize()
	assert.NoError(t, r.Save(filepath.Join(t.TempDir(), "r.json")))
}
