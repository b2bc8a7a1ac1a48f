package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	perrors "py2md/internal/errors"
)

// DefaultConfigFile is looked up in the working directory when no --config is given.
const DefaultConfigFile = "py2md.yaml"

// Layout selects where generated documents are placed under the output root.
type Layout string

const (
	// LayoutMirror keeps the source tree's directory structure.
	LayoutMirror Layout = "mirror"
	// LayoutFlat puts every document directly under the output root, named by dotted module path.
	LayoutFlat Layout = "flat"
)

// ParseErrorPolicy decides what a syntactically invalid source file does to the run.
type ParseErrorPolicy string

const (
	OnParseErrorAbort ParseErrorPolicy = "abort"
	OnParseErrorSkip  ParseErrorPolicy = "skip"
)

type Config struct {
	SourceRoot      string           `yaml:"source_root"`
	OutputRoot      string           `yaml:"output_root"`
	MkDocsPath      string           `yaml:"mkdocs_path"`
	Section         string           `yaml:"section"`
	Subgroup        *string          `yaml:"subgroup"` // nil = default, "" = no subgrouping
	IncludeComments bool             `yaml:"include_comments"`
	Layout          Layout           `yaml:"layout"`
	OnParseError    ParseErrorPolicy `yaml:"on_parse_error"`
	NavRoot         string           `yaml:"nav_root"`

	Notebooks struct {
		Enabled bool          `yaml:"enabled"`
		Command string        `yaml:"command"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"notebooks"`

	ReportPath string `yaml:"report_path"`
	ModelPath  string `yaml:"model_path"`
	HistoryDB  string `yaml:"history_db"`

	Watch struct {
		Debounce time.Duration `yaml:"debounce"`
	} `yaml:"watch"`
}

const (
	DefaultMkDocsPath      = "mkdocs.yml"
	DefaultSection         = "Reference"
	DefaultSubgroup        = "API"
	DefaultNotebookCommand = "jupyter"
	DefaultNotebookTimeout = 2 * time.Minute
	DefaultWatchDebounce   = 500 * time.Millisecond
)

// Default returns a config with every optional field at its default.
func Default() *Config {
	cfg := &Config{
		MkDocsPath:   DefaultMkDocsPath,
		Section:      DefaultSection,
		Layout:       LayoutMirror,
		OnParseError: OnParseErrorAbort,
	}
	sub := DefaultSubgroup
	cfg.Subgroup = &sub
	cfg.Notebooks.Command = DefaultNotebookCommand
	cfg.Notebooks.Timeout = DefaultNotebookTimeout
	cfg.Watch.Debounce = DefaultWatchDebounce
	return cfg
}

// LoadConfig reads an optional YAML file over the defaults, then applies .env and
// PY2MD_* environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := Default()

	// 2. Load YAML config
	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, perrors.Wrap(err, perrors.ErrConfigInvalid, path, "failed to parse config file")
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, perrors.Wrap(err, perrors.ErrIO, path, "failed to read config file")
	}

	// 3. Override with Environment Variables if present
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PY2MD_SRC"); v != "" {
		cfg.SourceRoot = v
	}
	if v := os.Getenv("PY2MD_OUT"); v != "" {
		cfg.OutputRoot = v
	}
	if v := os.Getenv("PY2MD_MKDOCS"); v != "" {
		cfg.MkDocsPath = v
	}
	if v := os.Getenv("PY2MD_SECTION"); v != "" {
		cfg.Section = v
	}
	if v, ok := os.LookupEnv("PY2MD_GROUP"); ok {
		cfg.Subgroup = &v
	}
	if v := os.Getenv("PY2MD_LAYOUT"); v != "" {
		cfg.Layout = Layout(v)
	}
	if v := os.Getenv("PY2MD_HISTORY_DB"); v != "" {
		cfg.HistoryDB = v
	}
	if v := os.Getenv("PY2MD_INCLUDE_COMMENTS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return perrors.Newf(perrors.ErrConfigInvalid, "", "PY2MD_INCLUDE_COMMENTS: %v", err)
		}
		cfg.IncludeComments = b
	}
	return nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.MkDocsPath == "" {
		c.MkDocsPath = d.MkDocsPath
	}
	if c.Section == "" {
		c.Section = d.Section
	}
	if c.Subgroup == nil {
		c.Subgroup = d.Subgroup
	}
	if c.Layout == "" {
		c.Layout = d.Layout
	}
	if c.OnParseError == "" {
		c.OnParseError = d.OnParseError
	}
	if c.Notebooks.Command == "" {
		c.Notebooks.Command = d.Notebooks.Command
	}
	if c.Notebooks.Timeout <= 0 {
		c.Notebooks.Timeout = d.Notebooks.Timeout
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = d.Watch.Debounce
	}
}

// SubgroupName returns the configured subgroup, "" when subgrouping is disabled.
func (c *Config) SubgroupName() string {
	if c.Subgroup == nil {
		return DefaultSubgroup
	}
	return strings.TrimSpace(*c.Subgroup)
}

// SetSubgroup sets the subgroup; "" disables subgrouping.
func (c *Config) SetSubgroup(name string) {
	c.Subgroup = &name
}

// NavBase is the directory navigation paths are made relative to.
func (c *Config) NavBase() string {
	if c.NavRoot != "" {
		return c.NavRoot
	}
	return c.OutputRoot
}

// Validate checks that the config can drive a generate run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SourceRoot) == "" {
		return perrors.New(perrors.ErrConfigInvalid, "", "source root is required (--src)")
	}
	if strings.TrimSpace(c.OutputRoot) == "" {
		return perrors.New(perrors.ErrConfigInvalid, "", "output root is required (--out)")
	}
	if strings.TrimSpace(c.Section) == "" {
		return perrors.New(perrors.ErrConfigInvalid, "", "section must not be empty")
	}
	switch c.Layout {
	case LayoutMirror, LayoutFlat:
	default:
		return perrors.Newf(perrors.ErrConfigInvalid, "", "unknown layout %q (want %q or %q)", c.Layout, LayoutMirror, LayoutFlat)
	}
	switch c.OnParseError {
	case OnParseErrorAbort, OnParseErrorSkip:
	default:
		return perrors.Newf(perrors.ErrConfigInvalid, "", "unknown parse error policy %q (want %q or %q)", c.OnParseError, OnParseErrorAbort, OnParseErrorSkip)
	}
	info, err := os.Stat(c.SourceRoot)
	if err != nil {
		return perrors.Wrap(err, perrors.ErrConfigInvalid, c.SourceRoot, "source root is not accessible")
	}
	if !info.IsDir() {
		return perrors.New(perrors.ErrConfigInvalid, c.SourceRoot, "source root is not a directory")
	}
	return nil
}

// Label is the "section" or "section → subgroup" string used in summaries.
func (c *Config) Label() string {
	if sub := c.SubgroupName(); sub != "" {
		return fmt.Sprintf("'%s' → '%s'", c.Section, sub)
	}
	return fmt.Sprintf("'%s'", c.Section)
}
