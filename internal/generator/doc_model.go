package generator

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	perrors "py2md/internal/errors"
	"py2md/internal/extractor"
)

const moduleModelSchemaVersion = "v1.0.0"

const moduleModelSchemaURL = "https://py2md.local/schemas/module_model.schema.json"

//go:embed module_model.schema.json
var moduleModelSchema []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// ModuleModel is the machine-readable twin of the generated Markdown.
type ModuleModel struct {
	SchemaVersion string        `json:"schema_version"`
	GeneratedAt   string        `json:"generated_at"`
	SourceRoot    string        `json:"source_root"`
	Commit        string        `json:"commit,omitempty"`
	Modules       []ModelModule `json:"modules"`
}

type ModelModule struct {
	extractor.Module
	Document    string `json:"document,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

func NewModuleModel(sourceRoot string) *ModuleModel {
	return &ModuleModel{
		SchemaVersion: moduleModelSchemaVersion,
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		SourceRoot:    sourceRoot,
		Modules:       []ModelModule{},
	}
}

// Add records a scanned module together with the document generated from it.
func (m *ModuleModel) Add(mod *extractor.Module, doc *Document) {
	entry := ModelModule{
		Module:      *mod,
		Fingerprint: extractor.Fingerprint(mod),
	}
	if doc != nil {
		entry.Document = doc.RelPath
	}
	m.Modules = append(m.Modules, entry)
}

func LoadModuleModel(path string) (*ModuleModel, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.ErrIO, path, "failed to read module model")
	}
	var m ModuleModel
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to decode module model %s: %w", path, err)
	}
	return &m, nil
}

// SaveModuleModel validates the model against the embedded schema before
// writing it, so an invalid model never reaches disk.
func SaveModuleModel(path string, model *ModuleModel) error {
	if err := ValidateModuleModel(model); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return perrors.Wrap(err, perrors.ErrIO, path, "failed to create model directory")
	}
	b, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if err := os.WriteFile(path, b, 0644); err != nil {
		return perrors.Wrap(err, perrors.ErrIO, path, "failed to write module model")
	}
	return nil
}

func ValidateModuleModel(model *ModuleModel) error {
	if model == nil {
		return fmt.Errorf("module model is nil")
	}
	schema, err := loadCompiledSchema()
	if err != nil {
		return fmt.Errorf("failed to compile module model schema: %w", err)
	}

	var v any
	raw, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("failed to marshal module model for schema validation: %w", err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("failed to normalize module model for schema validation: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("module model schema validation failed: %w", err)
	}
	return nil
}

func loadCompiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(moduleModelSchemaURL, bytes.NewReader(moduleModelSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile(moduleModelSchemaURL)
	})
	return compiledSchema, schemaErr
}
