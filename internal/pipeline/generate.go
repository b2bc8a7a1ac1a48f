package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"py2md/internal/config"
	"py2md/internal/crawler"
	perrors "py2md/internal/errors"
	"py2md/internal/extractor"
	"py2md/internal/generator"
	"py2md/internal/git"
	"py2md/internal/logging"
	"py2md/internal/navigation"
	"py2md/internal/notebook"
	"py2md/internal/storage"
)

// Summary describes a completed run. Per-document failures do not abort a
// run; they are collected in Failed.
type Summary struct {
	RunID      string
	Documents  []*generator.Document // everything now listed in the navigation
	Written    int
	Unchanged  int
	Failed     []error
	Skipped    []error // sources that failed to parse in skip mode
	Dropped    int     // stale navigation entries removed
	APIChanged []string
	Revision   *git.Revision
	Label      string
	Duration   time.Duration
}

// Err folds the per-document failures into one error, nil when there are none.
func (s *Summary) Err() error {
	var m perrors.Multi
	for _, err := range s.Failed {
		m.Add(err)
	}
	return m.ErrOrNil()
}

// Generate runs scan → render → write → merge for one configuration.
type Generate struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func NewGenerate(cfg *config.Config) *Generate {
	return &Generate{cfg: cfg, logger: logging.GetLogger("pipeline")}
}

type scanResult struct {
	modules   []*extractor.Module
	notebooks []string
	skipped   []error
}

// Run executes one pass. Errors returned here are fatal: a malformed site
// configuration, a source that fails to parse in abort mode, or a failed
// configuration write. In the first two cases nothing has been written.
func (g *Generate) Run(ctx context.Context) (summary *Summary, retErr error) {
	start := time.Now()
	cfg := g.cfg
	run := storage.NewRun(cfg.SourceRoot, cfg.OutputRoot)
	report := generator.NewPipelineReport("generate", cfg.SourceRoot, cfg.OutputRoot)
	summary = &Summary{RunID: run.ID, Label: cfg.Label()}

	defer func() {
		if retErr != nil {
			report.AddSignal("generate_failed", "pipeline", "critical", retErr.Error(), 1)
		}
		if cfg.ReportPath == "" {
			return
		}
		if err := report.Save(cfg.ReportPath); err != nil {
			g.logger.Warn().Err(err).Msg("Failed to write pipeline report")
		}
	}()

	nav, err := g.loadNavStage(report)
	if err != nil {
		return nil, err
	}

	scanned, err := g.scanStage(report)
	if err != nil {
		return nil, err
	}
	summary.Skipped = scanned.skipped

	docs := g.writeStage(report, scanned.modules, summary)
	if cfg.Notebooks.Enabled {
		docs = append(docs, g.notebookStage(ctx, report, scanned.notebooks, summary)...)
	}
	docs = g.dedupeByPath(report, docs)
	summary.Documents = docs

	bySource := make(map[string]*generator.Document, len(docs))
	for _, d := range docs {
		bySource[d.Source] = d
	}

	if err := g.mergeStage(report, nav, docs, summary); err != nil {
		return nil, err
	}

	summary.Revision = g.revision()
	if cfg.ModelPath != "" {
		if err := g.modelStage(report, scanned.modules, bySource, summary); err != nil {
			summary.Failed = append(summary.Failed, err)
		}
	}
	if cfg.HistoryDB != "" {
		if err := g.historyStage(ctx, report, run, scanned.modules, bySource, summary); err != nil {
			summary.Failed = append(summary.Failed, err)
		}
	}

	summary.Duration = time.Since(start)
	g.logger.Info().Int("documents", len(docs)).Int("written", summary.Written).
		Int("unchanged", summary.Unchanged).Int("failed", len(summary.Failed)).
		Dur("duration", summary.Duration).Msg("Generation finished")
	return summary, nil
}

func (g *Generate) loadNavStage(report *generator.PipelineReport) (*navigation.Config, error) {
	stage := report.BeginStage("load_navigation")
	nav, err := navigation.Load(g.cfg.MkDocsPath)
	if err != nil {
		report.EndStage(stage, "error", nil, nil, err)
		return nil, err
	}
	report.EndStage(stage, "ok", nil, nil, nil)
	return nav, nil
}

// scanStage collects every module before anything is written, so an abort
// leaves the output tree and the site configuration untouched.
func (g *Generate) scanStage(report *generator.PipelineReport) (*scanResult, error) {
	stage := report.BeginStage("scan")

	ext, err := extractor.NewExtractor("python", extractor.WithComments(g.cfg.IncludeComments))
	if err != nil {
		report.EndStage(stage, "error", nil, nil, err)
		return nil, err
	}
	cr := crawler.NewCrawler(ext, crawler.SkipParseErrors(g.cfg.OnParseError == config.OnParseErrorSkip))

	res := &scanResult{}
	crawled, err := cr.ScanProject(g.cfg.SourceRoot, func(m *extractor.Module) error {
		res.modules = append(res.modules, m)
		return nil
	})
	if err != nil {
		report.EndStage(stage, "error", nil, nil, err)
		return nil, err
	}
	res.notebooks = crawled.Notebooks
	res.skipped = crawled.Skipped

	for _, skipErr := range crawled.Skipped {
		report.AddSignal("source_skipped", "scan", "warning", skipErr.Error(), 1)
	}
	report.EndStage(stage, "ok", map[string]float64{
		"modules":   float64(len(res.modules)),
		"notebooks": float64(len(res.notebooks)),
		"skipped":   float64(len(res.skipped)),
	}, nil, nil)
	return res, nil
}

func (g *Generate) writeStage(report *generator.PipelineReport, modules []*extractor.Module, summary *Summary) []*generator.Document {
	stage := report.BeginStage("write_documents")
	w := generator.NewWriter()

	docs := make([]*generator.Document, 0, len(modules))
	for _, m := range modules {
		content := generator.RenderModule(m, g.cfg.IncludeComments)
		doc := generator.NewDocument(g.cfg.OutputRoot, generator.OutputRelPath(g.cfg.Layout, m.RelPath), generator.KindModule, []byte(content))
		doc.Module = m.Name
		doc.Source = m.RelPath

		status, err := w.Write(doc)
		metric := generator.DocumentMetric{
			Source:  m.RelPath,
			Output:  doc.RelPath,
			Module:  m.Name,
			Kind:    generator.KindModule,
			Status:  status,
			Classes: len(m.Classes),
			Funcs:   len(m.Functions),
		}
		if err != nil {
			metric.Error = err.Error()
			report.AddDocument(metric)
			report.AddSignal("write_failed", "write_documents", "critical", err.Error(), 1)
			summary.Failed = append(summary.Failed, err)
			g.logger.Error().Err(err).Str("module", m.Name).Msg("Failed to write document")
			continue
		}
		report.AddDocument(metric)
		g.count(summary, status)
		docs = append(docs, doc)
	}

	report.EndStage(stage, "ok", map[string]float64{
		"written":   float64(summary.Written),
		"unchanged": float64(summary.Unchanged),
		"failed":    float64(len(summary.Failed)),
	}, nil, nil)
	return docs
}

// dedupeByPath keeps one document per output path. Two sources can map to the
// same path (flat layout, or a module and a notebook sharing a stem); the file
// on disk holds whichever was written last, so that one is kept.
func (g *Generate) dedupeByPath(report *generator.PipelineReport, docs []*generator.Document) []*generator.Document {
	last := make(map[string]int, len(docs))
	for i, d := range docs {
		last[d.RelPath] = i
	}
	if len(last) == len(docs) {
		return docs
	}
	out := make([]*generator.Document, 0, len(last))
	for i, d := range docs {
		if last[d.RelPath] != i {
			winner := docs[last[d.RelPath]]
			msg := fmt.Sprintf("%s and %s both map to %s; keeping %s", d.Source, winner.Source, d.RelPath, winner.Source)
			g.logger.Warn().Str("output", d.RelPath).Str("overwritten", d.Source).Str("kept", winner.Source).Msg("Output path collision")
			report.AddSignal("output_collision", "write_documents", "warning", msg, 1)
			continue
		}
		out = append(out, d)
	}
	return out
}

func (g *Generate) notebookStage(ctx context.Context, report *generator.PipelineReport, notebooks []string, summary *Summary) []*generator.Document {
	stage := report.BeginStage("convert_notebooks")
	conv := notebook.NewConverter(g.cfg.Notebooks.Command, g.cfg.Notebooks.Timeout)

	var docs []*generator.Document
	failed := 0
	for _, nb := range notebooks {
		doc, err := g.convertNotebook(ctx, conv, nb)
		metric := generator.DocumentMetric{Source: nb, Kind: generator.KindNotebook, Status: generator.StatusWritten}
		if err != nil {
			failed++
			metric.Status = generator.StatusFailed
			metric.Error = err.Error()
			report.AddDocument(metric)
			report.AddSignal("notebook_failed", "convert_notebooks", "warning", err.Error(), 1)
			summary.Failed = append(summary.Failed, err)
			g.logger.Error().Err(err).Str("notebook", nb).Msg("Failed to convert notebook")
			continue
		}
		metric.Output = doc.RelPath
		report.AddDocument(metric)
		g.count(summary, generator.StatusWritten)
		docs = append(docs, doc)
	}

	report.EndStage(stage, "ok", map[string]float64{
		"notebooks": float64(len(notebooks)),
		"failed":    float64(failed),
	}, nil, nil)
	return docs
}

func (g *Generate) convertNotebook(ctx context.Context, conv *notebook.Converter, nbPath string) (*generator.Document, error) {
	rel, err := filepath.Rel(g.cfg.SourceRoot, nbPath)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.ErrIO, nbPath, "notebook is outside the source root")
	}
	rel = filepath.ToSlash(rel)
	outRel := generator.OutputRelPath(g.cfg.Layout, rel)
	outPath := filepath.Join(g.cfg.OutputRoot, filepath.FromSlash(outRel))

	written, err := conv.Convert(ctx, nbPath, filepath.Dir(outPath), strings.TrimSuffix(filepath.Base(outPath), ".md"))
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(written)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.ErrIO, written, "failed to read converted notebook")
	}
	doc := generator.NewDocument(g.cfg.OutputRoot, outRel, generator.KindNotebook, content)
	doc.Source = rel
	return doc, nil
}

func (g *Generate) mergeStage(report *generator.PipelineReport, nav *navigation.Config, docs []*generator.Document, summary *Summary) error {
	stage := report.BeginStage("merge_navigation")

	paths := make([]string, 0, len(docs))
	for _, d := range docs {
		paths = append(paths, d.Path)
	}
	rel, err := navigation.RelativePaths(paths, g.cfg.NavBase())
	if err != nil {
		report.EndStage(stage, "error", nil, nil, err)
		return err
	}

	summary.Dropped = nav.Merge(rel, g.cfg.Section, g.cfg.SubgroupName())
	if err := nav.Save(); err != nil {
		report.EndStage(stage, "error", nil, nil, err)
		return err
	}
	if summary.Dropped > 0 {
		report.AddSignal("stale_entries_removed", "merge_navigation", "info",
			fmt.Sprintf("%d navigation entries under %s no longer have a document", summary.Dropped, g.cfg.Label()), float64(summary.Dropped))
	}
	report.EndStage(stage, "ok", map[string]float64{
		"entries": float64(len(rel)),
		"dropped": float64(summary.Dropped),
	}, nil, nil)
	return nil
}

func (g *Generate) modelStage(report *generator.PipelineReport, modules []*extractor.Module, bySource map[string]*generator.Document, summary *Summary) error {
	stage := report.BeginStage("module_model")
	if g.cfg.HistoryDB == "" {
		summary.APIChanged = g.changedSinceModel(modules, bySource)
	}

	model := generator.NewModuleModel(g.cfg.SourceRoot)
	if summary.Revision != nil {
		model.Commit = summary.Revision.Commit
	}
	for _, m := range modules {
		model.Add(m, bySource[m.RelPath])
	}
	if err := generator.SaveModuleModel(g.cfg.ModelPath, model); err != nil {
		report.EndStage(stage, "error", nil, nil, err)
		return err
	}
	report.EndStage(stage, "ok", map[string]float64{"modules": float64(len(model.Modules))}, nil, nil)
	return nil
}

// changedSinceModel compares fingerprints against the model left by the
// previous run. It stands in for history when no database is configured.
func (g *Generate) changedSinceModel(modules []*extractor.Module, bySource map[string]*generator.Document) []string {
	prev, err := generator.LoadModuleModel(g.cfg.ModelPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			g.logger.Warn().Err(err).Msg("Previous module model unreadable, skipping API comparison")
		}
		return nil
	}
	previous := make(map[string]string, len(prev.Modules))
	for _, pm := range prev.Modules {
		previous[pm.Name] = pm.Fingerprint
	}

	var changed []string
	seen := make(map[string]bool)
	for _, m := range modules {
		if _, ok := bySource[m.RelPath]; !ok || seen[m.Name] {
			continue
		}
		if old, ok := previous[m.Name]; ok && old != extractor.Fingerprint(m) {
			seen[m.Name] = true
			changed = append(changed, m.Name)
		}
	}
	return changed
}

func (g *Generate) historyStage(ctx context.Context, report *generator.PipelineReport, run *storage.Run, modules []*extractor.Module, bySource map[string]*generator.Document, summary *Summary) error {
	stage := report.BeginStage("record_history")

	store, err := storage.NewSQLiteStore(g.cfg.HistoryDB)
	if err != nil {
		report.EndStage(stage, "error", nil, nil, err)
		return err
	}
	defer store.Close()

	previous, err := store.LatestFingerprints(ctx, g.cfg.SourceRoot)
	if err != nil {
		report.EndStage(stage, "error", nil, nil, err)
		return fmt.Errorf("failed to read previous run: %w", err)
	}

	// One record per listed document; sources whose output was overwritten
	// by a colliding source are not recorded.
	records := make([]storage.DocumentRecord, 0, len(summary.Documents))
	changed := make(map[string]bool)
	for _, m := range modules {
		doc, ok := bySource[m.RelPath]
		if !ok {
			continue
		}
		fp := extractor.Fingerprint(m)
		if old, ok := previous[m.Name]; ok && old != fp && !changed[m.Name] {
			changed[m.Name] = true
			summary.APIChanged = append(summary.APIChanged, m.Name)
		}
		records = append(records, storage.DocumentRecord{
			Module:      m.Name,
			SourcePath:  m.RelPath,
			DocPath:     doc.RelPath,
			Kind:        string(doc.Kind),
			ContentHash: doc.Hash,
			Fingerprint: fp,
		})
	}
	for _, d := range summary.Documents {
		if d.Kind == generator.KindNotebook {
			records = append(records, storage.DocumentRecord{SourcePath: d.Source, DocPath: d.RelPath, Kind: string(d.Kind), ContentHash: d.Hash})
		}
	}

	run.FinishedAt = time.Now().UTC()
	run.Section = g.cfg.Section
	run.Subgroup = g.cfg.SubgroupName()
	run.Documents = len(summary.Documents)
	run.Failed = len(summary.Failed)
	run.Status = "ok"
	if run.Failed > 0 {
		run.Status = "partial"
	}
	if summary.Revision != nil {
		run.Commit = summary.Revision.Commit
		run.Dirty = summary.Revision.Dirty
	}

	if err := store.SaveRun(ctx, run, records); err != nil {
		report.EndStage(stage, "error", nil, nil, err)
		return fmt.Errorf("failed to record run: %w", err)
	}
	report.EndStage(stage, "ok", map[string]float64{
		"documents":   float64(len(records)),
		"api_changed": float64(len(summary.APIChanged)),
	}, nil, nil)
	return nil
}

func (g *Generate) revision() *git.Revision {
	rev, err := git.HeadRevision(g.cfg.SourceRoot)
	if err != nil {
		g.logger.Debug().Err(err).Msg("Could not resolve source revision")
		return nil
	}
	return rev
}

func (g *Generate) count(summary *Summary, status generator.WriteStatus) {
	switch status {
	case generator.StatusWritten:
		summary.Written++
	case generator.StatusUnchanged:
		summary.Unchanged++
	}
}
