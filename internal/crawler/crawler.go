package crawler

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	perrors "py2md/internal/errors"
	"py2md/internal/extractor"
	"py2md/internal/logging"
)

// NotebookExtension marks Jupyter notebooks, which are handed to the notebook converter.
const NotebookExtension = ".ipynb"

// IgnoredDirs are directory names never descended into: bytecode caches,
// virtual environments and build output.
var IgnoredDirs = []string{"__pycache__", "venv", ".venv", "build", "dist", "site", ".git"}

// Crawler scans a directory for source files.
type Crawler struct {
	extractor     *extractor.Extractor
	ignored       []string
	skipBadSource bool
	log           zerolog.Logger
}

// Option tweaks a Crawler.
type Option func(*Crawler)

// SkipParseErrors makes the crawler log and skip files that fail to parse instead of aborting.
func SkipParseErrors(skip bool) Option {
	return func(c *Crawler) { c.skipBadSource = skip }
}

// NewCrawler creates a new crawler instance.
func NewCrawler(ext *extractor.Extractor, opts ...Option) *Crawler {
	c := &Crawler{
		extractor: ext,
		ignored:   IgnoredDirs,
		log:       logging.GetLogger("crawler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result summarizes one scan.
type Result struct {
	Modules   int
	Skipped   []error  // parse failures tolerated in skip mode
	Notebooks []string // notebook paths found along the way
}

// IsIgnoredDir reports whether a directory name is never scanned.
func (c *Crawler) IsIgnoredDir(name string) bool {
	for _, ign := range c.ignored {
		if name == ign {
			return true
		}
	}
	return false
}

// ScanProject walks the root directory and processes all relevant files.
// It uses a callback to stream modules, preventing large memory buildup.
// Walk order is lexical, so callbacks arrive in a deterministic order. A
// callback error stops the walk and is returned as is.
func (c *Crawler) ScanProject(root string, onModule func(*extractor.Module) error) (*Result, error) {
	res := &Result{}
	ext := c.extractor.FileExtension()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return perrors.Wrap(err, perrors.ErrIO, path, "failed to walk source tree")
		}

		// Skip ignored directories
		if d.IsDir() {
			if path != root && c.IsIgnoredDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		switch {
		case strings.HasSuffix(d.Name(), NotebookExtension):
			res.Notebooks = append(res.Notebooks, path)
			return nil
		case !strings.HasSuffix(d.Name(), ext):
			return nil
		}

		m, err := c.extractor.ExtractFromFile(path, root)
		if err != nil {
			if c.skipBadSource && perrors.IsCode(err, perrors.ErrScanParse) {
				c.log.Warn().Err(err).Str("file", path).Msg("Skipping file that failed to parse")
				res.Skipped = append(res.Skipped, err)
				return nil
			}
			return err
		}

		c.log.Debug().Str("file", path).Str("module", m.Name).
			Int("classes", len(m.Classes)).Int("functions", len(m.Functions)).
			Msg("Extracted module")
		res.Modules++
		return onModule(m)
	})
	if err != nil {
		return res, err
	}
	return res, nil
}
