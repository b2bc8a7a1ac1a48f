package generator

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"py2md/internal/extractor"
)

func TestSaveModuleModel_RoundTrip(t *testing.T) {
	mod := scan(t, "'Doc.'\n\nclass A:\n    def run(self, n=1): pass\n\ndef go(): pass\n", "pkg/a.py")
	model := NewModuleModel("src")
	model.Add(mod, &Document{RelPath: "pkg/a.md"})

	path := filepath.Join(t.TempDir(), "nested", "model.json")
	require.NoError(t, SaveModuleModel(path, model))

	loaded, err := LoadModuleModel(path)
	require.NoError(t, err)
	require.Len(t, loaded.Modules, 1)
	got := loaded.Modules[0]
	assert.Equal(t, "pkg.a", got.Name)
	assert.Equal(t, "pkg/a.md", got.Document)
	assert.Equal(t, extractor.Fingerprint(mod), got.Fingerprint)
	require.Len(t, got.Classes, 1)
	assert.Equal(t, "(self, n=1)", got.Classes[0].Methods[0].Signature)
}

func TestSaveModuleModel_ValidatesAgainstJSONSchema(t *testing.T) {
	model := NewModuleModel("src")
	model.Add(&extractor.Module{
		Name:      "bad",
		RelPath:   "bad.py",
		Classes:   []extractor.Class{},
		Functions: []extractor.Function{{Name: "_private", QualName: "bad._private", Signature: "()", Line: 1}},
	}, nil)

	err := SaveModuleModel(filepath.Join(t.TempDir(), "model.json"), model)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation")
}

func TestValidateModuleModel_RejectsNullCollections(t *testing.T) {
	model := NewModuleModel("src")
	model.Modules = append(model.Modules, ModelModule{
		Module:      extractor.Module{Name: "x", RelPath: "x.py"},
		Fingerprint: "0123456789abcdef",
	})
	assert.Error(t, ValidateModuleModel(model))
}
