// Package verify checks that a navigation subtree points at real, well-formed
// generated documents.
package verify

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"py2md/internal/navigation"
)

// ProblemKind classifies a failed check.
type ProblemKind string

const (
	ProblemMissing   ProblemKind = "missing"
	ProblemNoHeading ProblemKind = "no_heading"
	ProblemDuplicate ProblemKind = "duplicate"
	ProblemEmpty     ProblemKind = "empty"
)

type Problem struct {
	Kind   ProblemKind
	Title  string
	Path   string
	Detail string
}

func (p Problem) String() string {
	if p.Path == "" {
		return fmt.Sprintf("%s: %s", p.Kind, p.Detail)
	}
	return fmt.Sprintf("%s: %s (%s) %s", p.Kind, p.Title, p.Path, p.Detail)
}

// Result lists what a check found. Orphans are documents under the output
// root that no entry references; they are reported but do not fail a check.
type Result struct {
	Checked  int
	Problems []Problem
	Orphans  []string
}

func (r *Result) OK() bool { return len(r.Problems) == 0 }

// Check validates every entry of section (→ subgroup). Entry paths resolve
// against navRoot. When outputRoot is non-empty, Markdown files below it that
// are not referenced are listed as orphans.
func Check(cfg *navigation.Config, navRoot, outputRoot, section, subgroup string) (*Result, error) {
	entries := cfg.Entries(section, subgroup)
	res := &Result{Checked: len(entries)}
	if len(entries) == 0 {
		res.Problems = append(res.Problems, Problem{Kind: ProblemEmpty, Detail: fmt.Sprintf("no entries under %s", label(section, subgroup))})
	}

	md := goldmark.New()
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.Path] {
			res.Problems = append(res.Problems, Problem{Kind: ProblemDuplicate, Title: e.Title, Path: e.Path, Detail: "listed more than once"})
			continue
		}
		seen[e.Path] = true

		full := filepath.Join(navRoot, filepath.FromSlash(e.Path))
		body, err := os.ReadFile(full)
		if err != nil {
			detail := err.Error()
			if errors.Is(err, fs.ErrNotExist) {
				detail = "file does not exist"
			}
			res.Problems = append(res.Problems, Problem{Kind: ProblemMissing, Title: e.Title, Path: e.Path, Detail: detail})
			continue
		}
		if !startsWithTitle(md, body) {
			res.Problems = append(res.Problems, Problem{Kind: ProblemNoHeading, Title: e.Title, Path: e.Path, Detail: "does not start with a level-1 heading"})
		}
	}

	if outputRoot != "" {
		orphans, err := findOrphans(outputRoot, navRoot, seen)
		if err != nil {
			return nil, err
		}
		res.Orphans = orphans
	}
	return res, nil
}

// startsWithTitle reports whether the first block of a Markdown body is an h1.
func startsWithTitle(md goldmark.Markdown, body []byte) bool {
	root := md.Parser().Parse(text.NewReader(body))
	first := root.FirstChild()
	h, ok := first.(*gmast.Heading)
	return ok && h.Level == 1
}

func findOrphans(outputRoot, navRoot string, referenced map[string]bool) ([]string, error) {
	var orphans []string
	err := filepath.WalkDir(outputRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == outputRoot {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(navRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !referenced[rel] {
			orphans = append(orphans, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan output root: %w", err)
	}
	sort.Strings(orphans)
	return orphans, nil
}

func label(section, subgroup string) string {
	if subgroup == "" {
		return fmt.Sprintf("'%s'", section)
	}
	return fmt.Sprintf("'%s' → '%s'", section, subgroup)
}
