package extractor

import sitter "github.com/smacker/go-tree-sitter"

// Module describes one source file: its dotted path, summary and public API.
// Values are built once per scan and never mutated afterwards.
type Module struct {
	Name      string     `json:"name"`      // dotted module path, e.g. "pkg.sub.mod"
	Filepath  string     `json:"filepath"`  // path as found on disk
	RelPath   string     `json:"rel_path"`  // slash-separated path relative to the source root
	Doc       string     `json:"doc,omitempty"`
	Classes   []Class    `json:"classes"`
	Functions []Function `json:"functions"`
	Comments  []Comment  `json:"comments,omitempty"`
}

// Class is a public top-level class and its directly defined public methods.
type Class struct {
	Name     string     `json:"name"`
	QualName string     `json:"qualname"`
	Doc      string     `json:"doc,omitempty"`
	Line     int        `json:"line"`
	Methods  []Function `json:"methods"`
}

// Function is a public function or method.
type Function struct {
	Name      string `json:"name"`
	QualName  string `json:"qualname"`
	Signature string `json:"signature"` // rendered parameter list, e.g. "(x, y=1) -> int"
	Doc       string `json:"doc,omitempty"`
	Line      int    `json:"line"`
	Async     bool   `json:"async,omitempty"`
}

// Comment is a single line comment with its leading '#' removed.
type Comment struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

// LanguageExtractor defines the interface that each language parser must implement.
type LanguageExtractor interface {
	GetLanguage() *sitter.Language
	GetQuery() string
	FileExtension() string
	ModuleDoc(root *sitter.Node, sourceCode []byte) string
	ExtractUnit(captureName string, node *sitter.Node, sourceCode []byte, module *Module)
	// CheckSyntax reports the first construct the grammar accepts but the
	// language rejects, as a 1-based line and a message. msg is "" when clean.
	CheckSyntax(root *sitter.Node, sourceCode []byte) (line int, msg string)
}

// IsPublic reports whether a name is part of the documented surface.
func IsPublic(name string) bool {
	return name != "" && name[0] != '_'
}
