package extractor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	perrors "py2md/internal/errors"
)

// Extractor orchestrates the extraction process using language-specific extractors.
type Extractor struct {
	langExtractor   LanguageExtractor
	langName        string
	includeComments bool
}

// Option tweaks an Extractor.
type Option func(*Extractor)

// WithComments makes the extractor collect every line comment of a file.
func WithComments(enabled bool) Option {
	return func(e *Extractor) { e.includeComments = enabled }
}

// NewExtractor creates a new extractor for a given language.
func NewExtractor(lang string, opts ...Option) (*Extractor, error) {
	var langExt LanguageExtractor
	switch lang {
	case "python", "py":
		langExt = &PythonExtractor{}
		lang = "python"
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
	e := &Extractor{langExtractor: langExt, langName: lang}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// FileExtension is the suffix of files this extractor understands.
func (e *Extractor) FileExtension() string {
	return e.langExtractor.FileExtension()
}

// ExtractFromFile parses a single source file below root into a Module.
func (e *Extractor) ExtractFromFile(path, root string) (*Module, error) {
	sourceCode, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.ErrIO, path, "failed to read source file")
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.ErrIO, path, "file is not below the source root")
	}
	m, err := e.ExtractSource(context.Background(), sourceCode, filepath.ToSlash(rel))
	if err != nil {
		return nil, err
	}
	m.Filepath = path
	return m, nil
}

// ExtractSource parses source text. relPath is slash-separated and relative to the
// source root; it determines the dotted module name.
func (e *Extractor) ExtractSource(ctx context.Context, sourceCode []byte, relPath string) (*Module, error) {
	sourceCode = normalizeNewlines(bytes.TrimPrefix(sourceCode, []byte("\xef\xbb\xbf")))

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(e.langExtractor.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, sourceCode)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.ErrScanParse, relPath, "failed to parse file")
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		line, snippet := firstError(root, sourceCode)
		return nil, perrors.Newf(perrors.ErrScanParse, relPath, "invalid syntax near %q", snippet).WithLine(line)
	}
	if line, msg := e.langExtractor.CheckSyntax(root, sourceCode); msg != "" {
		return nil, perrors.Newf(perrors.ErrScanParse, relPath, "invalid syntax: %s", msg).WithLine(line)
	}

	m := &Module{
		Name:      ModuleNameFromPath(relPath, e.langExtractor.FileExtension()),
		Filepath:  relPath,
		RelPath:   relPath,
		Doc:       e.langExtractor.ModuleDoc(root, sourceCode),
		Classes:   []Class{},
		Functions: []Function{},
	}

	query, err := sitter.NewQuery([]byte(e.langExtractor.GetQuery()), e.langExtractor.GetLanguage())
	if err != nil {
		return nil, fmt.Errorf("failed to create query: %w", err)
	}
	defer query.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, root)

	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range match.Captures {
			e.langExtractor.ExtractUnit(query.CaptureNameForId(c.Index), c.Node, sourceCode, m)
		}
	}

	if e.includeComments {
		m.Comments = collectComments(root, sourceCode)
	}

	sort.SliceStable(m.Classes, func(i, j int) bool {
		return strings.ToLower(m.Classes[i].Name) < strings.ToLower(m.Classes[j].Name)
	})
	sort.SliceStable(m.Functions, func(i, j int) bool {
		return strings.ToLower(m.Functions[i].Name) < strings.ToLower(m.Functions[j].Name)
	})

	return m, nil
}

// normalizeNewlines turns CRLF and lone CR line endings into LF.
func normalizeNewlines(src []byte) []byte {
	if !bytes.ContainsRune(src, '\r') {
		return src
	}
	src = bytes.ReplaceAll(src, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(src, []byte("\r"), []byte("\n"))
}

// ModuleNameFromPath turns "pkg/sub/mod.py" into "pkg.sub.mod".
func ModuleNameFromPath(relPath, ext string) string {
	p := strings.TrimSuffix(filepath.ToSlash(relPath), ext)
	p = strings.Trim(p, "/")
	return strings.ReplaceAll(p, "/", ".")
}

// firstError returns the 1-based line and a short excerpt of the first error or
// missing node in document order.
func firstError(root *sitter.Node, sourceCode []byte) (int, string) {
	var found *sitter.Node
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if found != nil || n == nil {
			return
		}
		if isErrorNode(n) {
			found = n
			return
		}
		if !n.HasError() {
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(root)
	if found == nil {
		return int(root.StartPoint().Row) + 1, ""
	}
	if found.IsMissing() {
		return int(found.StartPoint().Row) + 1, "missing " + found.Type()
	}
	snippet := strings.TrimSpace(found.Content(sourceCode))
	if i := strings.IndexByte(snippet, '\n'); i >= 0 {
		snippet = snippet[:i]
	}
	if len(snippet) > 40 {
		snippet = snippet[:40]
	}
	return int(found.StartPoint().Row) + 1, snippet
}

func isErrorNode(n *sitter.Node) bool {
	return n.Type() == "ERROR" || n.IsMissing()
}

// collectComments gathers every comment token in source order.
func collectComments(root *sitter.Node, sourceCode []byte) []Comment {
	comments := []Comment{}
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n.Type() == "comment" {
			text := strings.TrimSpace(strings.TrimLeft(n.Content(sourceCode), "#"))
			if text != "" {
				comments = append(comments, Comment{Line: int(n.StartPoint().Row) + 1, Text: text})
			}
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(root)
	sort.SliceStable(comments, func(i, j int) bool { return comments[i].Line < comments[j].Line })
	return comments
}
