package generator

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	perrors "py2md/internal/errors"
	"py2md/internal/logging"
)

// WriteStatus is the outcome of writing one document.
type WriteStatus string

const (
	StatusWritten   WriteStatus = "written"
	StatusUnchanged WriteStatus = "unchanged"
	StatusFailed    WriteStatus = "failed"
)

// Writer persists documents. Files whose bytes already match are not touched,
// which keeps mtimes stable for static site rebuilds.
type Writer struct {
	log zerolog.Logger
}

func NewWriter() *Writer {
	return &Writer{log: logging.GetLogger("writer")}
}

// Write creates parent directories as needed and writes doc.Content to doc.Path.
// Failures come back as IO errors naming the document path.
func (w *Writer) Write(doc *Document) (WriteStatus, error) {
	existing, err := os.ReadFile(doc.Path)
	switch {
	case err == nil && bytes.Equal(existing, doc.Content):
		w.log.Debug().Str("path", doc.Path).Msg("Document unchanged")
		return StatusUnchanged, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		w.log.Debug().Err(err).Str("path", doc.Path).Msg("Existing document unreadable, rewriting")
	}

	if err := os.MkdirAll(filepath.Dir(doc.Path), 0755); err != nil {
		return StatusFailed, perrors.Wrap(err, perrors.ErrIO, doc.Path, "failed to create output directory")
	}
	if err := os.WriteFile(doc.Path, doc.Content, 0644); err != nil {
		return StatusFailed, perrors.Wrap(err, perrors.ErrIO, doc.Path, "failed to write document")
	}
	w.log.Debug().Str("path", doc.Path).Int("bytes", len(doc.Content)).Msg("Document written")
	return StatusWritten, nil
}
