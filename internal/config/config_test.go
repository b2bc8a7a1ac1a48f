package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "py2md/internal/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultMkDocsPath, cfg.MkDocsPath)
	assert.Equal(t, DefaultSection, cfg.Section)
	assert.Equal(t, DefaultSubgroup, cfg.SubgroupName())
	assert.Equal(t, LayoutMirror, cfg.Layout)
	assert.Equal(t, OnParseErrorAbort, cfg.OnParseError)
	assert.Equal(t, DefaultNotebookTimeout, cfg.Notebooks.Timeout)
	assert.False(t, cfg.IncludeComments)
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "py2md.yaml")
	writeFile(t, path, `
source_root: src
output_root: docs/reference
section: Referencia
subgroup: ""
layout: flat
include_comments: true
notebooks:
  enabled: true
  timeout: 30s
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "src", cfg.SourceRoot)
	assert.Equal(t, "docs/reference", cfg.OutputRoot)
	assert.Equal(t, "Referencia", cfg.Section)
	assert.Equal(t, "", cfg.SubgroupName(), "empty subgroup disables subgrouping")
	assert.Equal(t, LayoutFlat, cfg.Layout)
	assert.True(t, cfg.IncludeComments)
	assert.True(t, cfg.Notebooks.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Notebooks.Timeout)
	assert.Equal(t, DefaultNotebookCommand, cfg.Notebooks.Command)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "py2md.yaml")
	writeFile(t, path, "source_root: src\nsection: FromFile\n")

	t.Setenv("PY2MD_SECTION", "FromEnv")
	t.Setenv("PY2MD_GROUP", "Modules")
	t.Setenv("PY2MD_INCLUDE_COMMENTS", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "src", cfg.SourceRoot)
	assert.Equal(t, "FromEnv", cfg.Section)
	assert.Equal(t, "Modules", cfg.SubgroupName())
	assert.True(t, cfg.IncludeComments)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "py2md.yaml")
		writeFile(t, path, "source_root: [unterminated\n")
		_, err := LoadConfig(path)
		require.Error(t, err)
		assert.True(t, perrors.IsCode(err, perrors.ErrConfigInvalid))
	})

	t.Run("bad env bool", func(t *testing.T) {
		t.Setenv("PY2MD_INCLUDE_COMMENTS", "maybe")
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.True(t, perrors.IsCode(err, perrors.ErrConfigInvalid))
	})
}

func TestValidate(t *testing.T) {
	src := t.TempDir()

	valid := func() *Config {
		cfg := Default()
		cfg.SourceRoot = src
		cfg.OutputRoot = filepath.Join(t.TempDir(), "out")
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing source", func(c *Config) { c.SourceRoot = "" }},
		{"missing output", func(c *Config) { c.OutputRoot = "" }},
		{"empty section", func(c *Config) { c.Section = " " }},
		{"bad layout", func(c *Config) { c.Layout = "tree" }},
		{"bad policy", func(c *Config) { c.OnParseError = "ignore" }},
		{"source not found", func(c *Config) { c.SourceRoot = filepath.Join(src, "nope") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, perrors.IsCode(err, perrors.ErrConfigInvalid))
		})
	}
}

func TestNavBaseAndLabel(t *testing.T) {
	cfg := Default()
	cfg.OutputRoot = "docs/reference"
	assert.Equal(t, "docs/reference", cfg.NavBase())
	cfg.NavRoot = "docs"
	assert.Equal(t, "docs", cfg.NavBase())

	assert.Equal(t, "'Reference' → 'API'", cfg.Label())
	cfg.SetSubgroup("")
	assert.Equal(t, "'Reference'", cfg.Label())
}
