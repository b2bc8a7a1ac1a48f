package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"py2md/internal/config"
	perrors "py2md/internal/errors"
	"py2md/internal/generator"
	"py2md/internal/navigation"
	"py2md/internal/storage"
)

const mkdocsWithGuides = `site_name: Demo
nav:
  - Home: index.md
  - Guides:
      - Intro: guides/intro.md
`

type project struct {
	dir    string
	src    string
	out    string
	mkdocs string
}

func newProject(t *testing.T, files map[string]string) *project {
	t.Helper()
	dir := t.TempDir()
	p := &project{
		dir:    dir,
		src:    filepath.Join(dir, "src"),
		out:    filepath.Join(dir, "docs"),
		mkdocs: filepath.Join(dir, "mkdocs.yml"),
	}
	require.NoError(t, os.MkdirAll(p.src, 0755))
	for rel, content := range files {
		path := filepath.Join(p.src, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return p
}

func (p *project) config() *config.Config {
	cfg := config.Default()
	cfg.SourceRoot = p.src
	cfg.OutputRoot = p.out
	cfg.MkDocsPath = p.mkdocs
	return cfg
}

func (p *project) read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func navOf(t *testing.T, data string) []any {
	t.Helper()
	var v map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(data), &v))
	nav, _ := v["nav"].([]any)
	return nav
}

func TestGenerate_TotalsModule(t *testing.T) {
	p := newProject(t, map[string]string{
		"calc/totals.py": "\"Computes totals.\"\n\ndef add(x, y=1):\n    return x + y\n\ndef _helper():\n    pass\n",
	})
	require.NoError(t, os.WriteFile(p.mkdocs, []byte(mkdocsWithGuides), 0644))

	summary, err := NewGenerate(p.config()).Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, summary.Err())
	assert.Equal(t, 1, summary.Written)
	require.Len(t, summary.Documents, 1)

	doc := p.read(t, filepath.Join(p.out, "calc", "totals.md"))
	assert.Contains(t, doc, "# `calc.totals`")
	assert.Contains(t, doc, "## Overview\n\nComputes totals.")
	assert.Contains(t, doc, "### `add(x, y=1)`")
	assert.Contains(t, doc, "from calc.totals import add")
	assert.NotContains(t, doc, "_helper")

	assert.Equal(t, []any{
		map[string]any{"Home": "index.md"},
		map[string]any{"Guides": []any{map[string]any{"Intro": "guides/intro.md"}}},
		map[string]any{"Reference": []any{
			map[string]any{"API": []any{
				map[string]any{"Totals": "calc/totals.md"},
			}},
		}},
	}, navOf(t, p.read(t, p.mkdocs)))
}

func TestGenerate_Idempotent(t *testing.T) {
	p := newProject(t, map[string]string{
		"pkg/__init__.py": "",
		"pkg/a.py":        "def a():\n    \"\"\"A.\"\"\"\n",
		"pkg/b.py":        "class B:\n    def run(self):\n        pass\n",
	})
	require.NoError(t, os.WriteFile(p.mkdocs, []byte(mkdocsWithGuides), 0644))

	first, err := NewGenerate(p.config()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, first.Written)
	navAfterFirst := p.read(t, p.mkdocs)
	docAfterFirst := p.read(t, filepath.Join(p.out, "pkg", "b.md"))

	second, err := NewGenerate(p.config()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Written)
	assert.Equal(t, 3, second.Unchanged)
	assert.Equal(t, 0, second.Dropped)
	assert.Equal(t, navAfterFirst, p.read(t, p.mkdocs))
	assert.Equal(t, docAfterFirst, p.read(t, filepath.Join(p.out, "pkg", "b.md")))
}

func TestGenerate_MalformedSourceAborts(t *testing.T) {
	p := newProject(t, map[string]string{
		"good.py": "def ok():\n    pass\n",
		"bad.py":  "def broken(:\n    pass\n",
	})
	require.NoError(t, os.WriteFile(p.mkdocs, []byte(mkdocsWithGuides), 0644))

	_, err := NewGenerate(p.config()).Run(context.Background())
	require.Error(t, err)
	assert.True(t, perrors.IsCode(err, perrors.ErrScanParse))

	assert.Equal(t, mkdocsWithGuides, p.read(t, p.mkdocs))
	_, statErr := os.Stat(p.out)
	assert.True(t, os.IsNotExist(statErr), "nothing is written on abort")
}

func TestGenerate_SkipParseErrors(t *testing.T) {
	p := newProject(t, map[string]string{
		"good.py": "def ok():\n    pass\n",
		"bad.py":  "def broken(:\n    pass\n",
	})
	cfg := p.config()
	cfg.OnParseError = config.OnParseErrorSkip

	summary, err := NewGenerate(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, summary.Skipped, 1)
	require.Len(t, summary.Documents, 1)
	assert.Equal(t, "good.md", summary.Documents[0].RelPath)
}

func TestGenerate_MalformedConfigAborts(t *testing.T) {
	p := newProject(t, map[string]string{"mod.py": "x = 1\n"})
	broken := "nav: [unclosed\n"
	require.NoError(t, os.WriteFile(p.mkdocs, []byte(broken), 0644))

	_, err := NewGenerate(p.config()).Run(context.Background())
	require.Error(t, err)
	assert.True(t, perrors.IsCode(err, perrors.ErrConfigParse))
	assert.Equal(t, broken, p.read(t, p.mkdocs))
	_, statErr := os.Stat(p.out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestGenerate_DropsRemovedModules(t *testing.T) {
	p := newProject(t, map[string]string{
		"keep.py": "x = 1\n",
		"gone.py": "y = 2\n",
	})
	cfg := p.config()
	_, err := NewGenerate(cfg).Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(p.src, "gone.py")))
	summary, err := NewGenerate(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Dropped)
	assert.NotContains(t, p.read(t, p.mkdocs), "gone.md")
}

func TestGenerate_FlatLayoutWithoutSubgroup(t *testing.T) {
	p := newProject(t, map[string]string{"pkg/util.py": "def f():\n    pass\n"})
	cfg := p.config()
	cfg.Layout = config.LayoutFlat
	cfg.SetSubgroup("")
	cfg.Section = "Code"

	_, err := NewGenerate(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(p.out, "pkg.util.md"))
	assert.Equal(t, []any{
		map[string]any{"Code": []any{map[string]any{"Pkg.Util": "pkg.util.md"}}},
	}, navOf(t, p.read(t, p.mkdocs)))
}

func TestGenerate_NavRootOutsideOutput(t *testing.T) {
	p := newProject(t, map[string]string{"mod.py": "x = 1\n"})
	cfg := p.config()
	cfg.OutputRoot = filepath.Join(p.dir, "docs", "api")
	cfg.NavRoot = filepath.Join(p.dir, "docs")

	_, err := NewGenerate(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, p.read(t, p.mkdocs), "api/mod.md")
}

func TestGenerate_Artifacts(t *testing.T) {
	p := newProject(t, map[string]string{"shop/cart.py": "def total(items):\n    pass\n"})
	cfg := p.config()
	cfg.ReportPath = filepath.Join(p.dir, "out", "report.json")
	cfg.ModelPath = filepath.Join(p.dir, "out", "model.json")
	cfg.HistoryDB = filepath.Join(p.dir, "out", "history.db")

	first, err := NewGenerate(cfg).Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.Err())
	assert.Empty(t, first.APIChanged)
	assert.FileExists(t, cfg.ReportPath)

	model, err := generator.LoadModuleModel(cfg.ModelPath)
	require.NoError(t, err)
	require.Len(t, model.Modules, 1)
	assert.Equal(t, "shop.cart", model.Modules[0].Name)

	// Changing a signature shows up as an API change on the next run.
	require.NoError(t, os.WriteFile(filepath.Join(p.src, "shop", "cart.py"), []byte("def total(items, tax=0):\n    pass\n"), 0644))
	second, err := NewGenerate(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"shop.cart"}, second.APIChanged)

	store, err := storage.NewSQLiteStore(cfg.HistoryDB)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID, runs[0].ID)

	docs, err := store.RunDocuments(context.Background(), second.RunID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "shop/cart.md", docs[0].DocPath)
}

func TestGenerate_Notebooks(t *testing.T) {
	p := newProject(t, map[string]string{
		"mod.py":           "x = 1\n",
		"notes/demo.ipynb": "{}",
	})
	// Stand-in for jupyter: writes <output-dir>/<output>.md.
	script := filepath.Join(p.dir, "fake-jupyter")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
out=""; dir=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output) out="$2"; shift ;;
    --output-dir) dir="$2"; shift ;;
  esac
  shift
done
mkdir -p "$dir"
printf '# Demo\n' > "$dir/$out.md"
`), 0755))

	cfg := p.config()
	cfg.Notebooks.Enabled = true
	cfg.Notebooks.Command = script

	summary, err := NewGenerate(cfg).Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, summary.Err())
	require.Len(t, summary.Documents, 2)
	assert.Equal(t, generator.KindNotebook, summary.Documents[1].Kind)
	assert.Equal(t, "# Demo\n", p.read(t, filepath.Join(p.out, "notes", "demo.md")))
	assert.Contains(t, p.read(t, p.mkdocs), "notes/demo.md")
}

func TestGenerate_DocumentWriteFailureContinues(t *testing.T) {
	p := newProject(t, map[string]string{
		"a.py": "def a():\n    pass\n",
		"b.py": "def b():\n    pass\n",
	})
	// A directory where a.md should go makes that one write fail.
	require.NoError(t, os.MkdirAll(filepath.Join(p.out, "a.md"), 0755))

	summary, err := NewGenerate(p.config()).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Failed, 1)
	assert.True(t, perrors.IsCode(summary.Failed[0], perrors.ErrIO))
	assert.Contains(t, summary.Failed[0].Error(), filepath.Join(p.out, "a.md"))
	assert.Error(t, summary.Err())

	require.Len(t, summary.Documents, 1)
	assert.Equal(t, "b.md", summary.Documents[0].RelPath)
	assert.Equal(t, []any{
		map[string]any{"Reference": []any{
			map[string]any{"API": []any{map[string]any{"B": "b.md"}}},
		}},
	}, navOf(t, p.read(t, p.mkdocs)))
}

func TestGenerate_ConfigWriteFailureAborts(t *testing.T) {
	p := newProject(t, map[string]string{"pkg.py": "def f():\n    pass\n"})
	cfg := p.config()
	cfg.Layout = config.LayoutFlat
	// The configuration lives in a directory that the generated pkg.md
	// document then occupies as a file, so only the final save fails.
	cfg.MkDocsPath = filepath.Join(p.out, "pkg.md", "mkdocs.yml")
	cfg.NavRoot = p.dir

	_, err := NewGenerate(cfg).Run(context.Background())
	require.Error(t, err)
	assert.True(t, perrors.IsCode(err, perrors.ErrIO))
	assert.Contains(t, err.Error(), cfg.MkDocsPath)
}

func TestGenerate_OutputCollisionKeepsLastWriter(t *testing.T) {
	p := newProject(t, map[string]string{
		"pkg/mod.py": "def nested():\n    pass\n",
		"pkg.mod.py": "def dotted():\n    pass\n",
	})
	cfg := p.config()
	cfg.Layout = config.LayoutFlat
	cfg.HistoryDB = filepath.Join(p.dir, "history.db")

	for run := 0; run < 2; run++ {
		summary, err := NewGenerate(cfg).Run(context.Background())
		require.NoError(t, err)
		require.NoError(t, summary.Err())
		require.Len(t, summary.Documents, 1)
		assert.Equal(t, "pkg.mod.py", summary.Documents[0].Source)
	}

	assert.Contains(t, p.read(t, filepath.Join(p.out, "pkg.mod.md")), "dotted")

	nav, err := navigation.Load(p.mkdocs)
	require.NoError(t, err)
	assert.Equal(t, []navigation.Entry{{Title: "Pkg.Mod", Path: "pkg.mod.md"}}, nav.Entries("Reference", "API"))

	store, err := storage.NewSQLiteStore(cfg.HistoryDB)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "ok", runs[0].Status)
	docs, err := store.RunDocuments(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "pkg.mod.py", docs[0].SourcePath)
}

func TestGenerate_APIChangesFromPreviousModel(t *testing.T) {
	p := newProject(t, map[string]string{
		"shop/cart.py":  "def total(items):\n    pass\n",
		"shop/stock.py": "def count():\n    pass\n",
	})
	cfg := p.config()
	cfg.ModelPath = filepath.Join(p.dir, "model.json")

	first, err := NewGenerate(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, first.APIChanged)

	require.NoError(t, os.WriteFile(filepath.Join(p.src, "shop", "cart.py"), []byte("def total(items, tax=0):\n    pass\n"), 0644))
	second, err := NewGenerate(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"shop.cart"}, second.APIChanged)
}
