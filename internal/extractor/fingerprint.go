package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Fingerprint is a deterministic hash of a module's public surface: its name and
// the qualified name and signature of every class, method and function.
// Docstrings and line numbers do not contribute, so only API changes move it.
func Fingerprint(m *Module) string {
	if m == nil {
		return ""
	}

	lines := []string{"module|" + canonicalize(m.Name)}
	for _, c := range m.Classes {
		lines = append(lines, "class|"+canonicalize(c.QualName))
		for _, f := range c.Methods {
			lines = append(lines, functionLine(f))
		}
	}
	for _, f := range m.Functions {
		lines = append(lines, functionLine(f))
	}
	sort.Strings(lines[1:])

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:8])
}

func functionLine(f Function) string {
	kind := "def"
	if f.Async {
		kind = "async def"
	}
	return kind + "|" + canonicalize(f.QualName) + "|" + canonicalize(f.Signature)
}

func canonicalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return whitespaceRe.ReplaceAllString(s, " ")
}
