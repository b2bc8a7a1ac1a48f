package generator

import (
	"path"
	"strings"

	"py2md/internal/config"
)

// OutputRelPath maps a source path (slash-separated, relative to the source
// root) to its document path relative to the output root.
//
// Mirror keeps directories and swaps the extension. Flat uses the dotted
// module name, so distinct files can collide; the last writer wins.
func OutputRelPath(layout config.Layout, relPath string) string {
	relPath = strings.TrimPrefix(relPath, "./")
	stem := strings.TrimSuffix(relPath, path.Ext(relPath))
	if layout == config.LayoutFlat {
		return strings.ReplaceAll(stem, "/", ".") + ".md"
	}
	return stem + ".md"
}
