package generator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	perrors "py2md/internal/errors"
)

type ReportSignal struct {
	Code     string  `json:"code"`
	Stage    string  `json:"stage"`
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
	Value    float64 `json:"value,omitempty"`
}

type StageMetric struct {
	Name       string             `json:"name"`
	Status     string             `json:"status"`
	StartedAt  string             `json:"started_at"`
	FinishedAt string             `json:"finished_at"`
	DurationMS int64              `json:"duration_ms"`
	Counters   map[string]float64 `json:"counters,omitempty"`
	Notes      []string           `json:"notes,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type DocumentMetric struct {
	Source  string      `json:"source"`
	Output  string      `json:"output,omitempty"`
	Module  string      `json:"module,omitempty"`
	Kind    Kind        `json:"kind"`
	Status  WriteStatus `json:"status"`
	Classes int         `json:"classes,omitempty"`
	Funcs   int         `json:"functions,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type ReportSummary struct {
	StageCount        int            `json:"stage_count"`
	FailedStages      int            `json:"failed_stages"`
	DocumentCount     int            `json:"document_count"`
	Written           int            `json:"written"`
	Unchanged         int            `json:"unchanged"`
	Failed            int            `json:"failed"`
	SignalsBySeverity map[string]int `json:"signals_by_severity"`
}

// PipelineReport records what one run did, stage by stage.
type PipelineReport struct {
	Version     string           `json:"version"`
	Mode        string           `json:"mode"`
	GeneratedAt string           `json:"generated_at"`
	SourceRoot  string           `json:"source_root"`
	OutputDir   string           `json:"output_dir"`
	Stages      []StageMetric    `json:"stages"`
	Documents   []DocumentMetric `json:"documents,omitempty"`
	Signals     []ReportSignal   `json:"signals,omitempty"`
	Summary     ReportSummary    `json:"summary"`
}

type StageHandle struct {
	name    string
	started time.Time
}

func NewPipelineReport(mode, sourceRoot, outputDir string) *PipelineReport {
	return &PipelineReport{
		Version:     "v1",
		Mode:        mode,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		SourceRoot:  sourceRoot,
		OutputDir:   outputDir,
		Stages:      []StageMetric{},
		Documents:   []DocumentMetric{},
		Signals:     []ReportSignal{},
	}
}

func (r *PipelineReport) BeginStage(name string) StageHandle {
	return StageHandle{name: strings.TrimSpace(name), started: time.Now().UTC()}
}

func (r *PipelineReport) EndStage(h StageHandle, status string, counters map[string]float64, notes []string, err error) {
	if r == nil || strings.TrimSpace(h.name) == "" {
		return
	}
	if strings.TrimSpace(status) == "" {
		status = "ok"
	}
	finished := time.Now().UTC()
	m := StageMetric{
		Name:       h.name,
		Status:     status,
		StartedAt:  h.started.Format(time.RFC3339Nano),
		FinishedAt: finished.Format(time.RFC3339Nano),
		DurationMS: finished.Sub(h.started).Milliseconds(),
		Counters:   cleanCounters(counters),
		Notes:      cleanNotes(notes),
	}
	if err != nil {
		m.Error = err.Error()
		if status == "ok" {
			m.Status = "error"
		}
	}
	r.Stages = append(r.Stages, m)
}

func (r *PipelineReport) AddSignal(code, stage, severity, message string, value float64) {
	if r == nil {
		return
	}
	s := ReportSignal{
		Code:     strings.TrimSpace(code),
		Stage:    strings.TrimSpace(stage),
		Severity: strings.ToLower(strings.TrimSpace(severity)),
		Message:  strings.TrimSpace(message),
		Value:    value,
	}
	if s.Code == "" || s.Stage == "" || s.Severity == "" || s.Message == "" {
		return
	}
	r.Signals = append(r.Signals, s)
}

func (r *PipelineReport) AddDocument(m DocumentMetric) {
	if r == nil || strings.TrimSpace(m.Source) == "" {
		return
	}
	r.Documents = append(r.Documents, m)
}

func (r *PipelineReport) Finalize() {
	if r == nil {
		return
	}
	r.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	severityCount := map[string]int{
		"critical": 0,
		"warning":  0,
		"info":     0,
	}
	sort.Slice(r.Signals, func(i, j int) bool {
		pi := signalPriority(r.Signals[i].Severity)
		pj := signalPriority(r.Signals[j].Severity)
		if pi == pj {
			if r.Signals[i].Stage == r.Signals[j].Stage {
				return r.Signals[i].Code < r.Signals[j].Code
			}
			return r.Signals[i].Stage < r.Signals[j].Stage
		}
		return pi > pj
	})
	for _, s := range r.Signals {
		severityCount[s.Severity]++
	}

	failedStages := 0
	for _, st := range r.Stages {
		if st.Status != "ok" {
			failedStages++
		}
	}

	summary := ReportSummary{
		StageCount:        len(r.Stages),
		FailedStages:      failedStages,
		DocumentCount:     len(r.Documents),
		SignalsBySeverity: severityCount,
	}
	for _, d := range r.Documents {
		switch d.Status {
		case StatusWritten:
			summary.Written++
		case StatusUnchanged:
			summary.Unchanged++
		case StatusFailed:
			summary.Failed++
		}
	}
	r.Summary = summary
}

func (r *PipelineReport) Save(path string) error {
	if r == nil {
		return nil
	}
	r.Finalize()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return perrors.Wrap(err, perrors.ErrIO, path, "failed to create report directory")
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return perrors.Wrap(err, perrors.ErrIO, path, "failed to write pipeline report")
	}
	return nil
}

func cleanCounters(raw map[string]float64) map[string]float64 {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		out[key] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cleanNotes(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, n := range raw {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func signalPriority(severity string) int {
	switch severity {
	case "critical":
		return 3
	case "warning":
		return 2
	default:
		return 1
	}
}
