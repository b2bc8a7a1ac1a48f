package generator

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// Kind tells which producer a document came from.
type Kind string

const (
	KindModule   Kind = "module"
	KindNotebook Kind = "notebook"
)

// Document is one generated Markdown file.
type Document struct {
	Path    string `json:"path"`     // location on disk
	RelPath string `json:"rel_path"` // slash-separated, relative to the output root
	Module  string `json:"module,omitempty"`
	Source  string `json:"source"`
	Kind    Kind   `json:"kind"`
	Hash    string `json:"hash"`

	Content []byte `json:"-"`
}

// NewDocument places content at relPath under outputRoot and hashes it.
func NewDocument(outputRoot, relPath string, kind Kind, content []byte) *Document {
	return &Document{
		Path:    filepath.Join(outputRoot, filepath.FromSlash(relPath)),
		RelPath: relPath,
		Kind:    kind,
		Hash:    ContentHash(content),
		Content: content,
	}
}

// ContentHash is the hex sha256 of a document body.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
