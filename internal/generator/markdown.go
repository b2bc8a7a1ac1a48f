package generator

import (
	"fmt"
	"path"
	"strings"

	"py2md/internal/extractor"
)

// Attribution closes every generated document.
const Attribution = "*Auto-generated by `py2md`.*"

// RenderModule renders one module description as Markdown. Sections without
// content are omitted, so every description renders.
func RenderModule(m *extractor.Module, includeComments bool) string {
	var b strings.Builder

	title := m.Name
	if title == "" {
		title = strings.TrimSuffix(path.Base(m.RelPath), path.Ext(m.RelPath))
	}
	fmt.Fprintf(&b, "# `%s`\n\n", title)
	fmt.Fprintf(&b, "*Source:* `%s`\n", m.RelPath)

	if doc := strings.TrimSpace(m.Doc); doc != "" {
		b.WriteString("\n## Overview\n\n")
		b.WriteString(doc + "\n")
	}

	if len(m.Classes) > 0 {
		b.WriteString("\n## Classes\n")
		for _, c := range m.Classes {
			fmt.Fprintf(&b, "\n### `%s`\n", c.Name)
			if doc := strings.TrimSpace(c.Doc); doc != "" {
				b.WriteString("\n" + doc + "\n")
			}
			if len(c.Methods) == 0 {
				continue
			}
			b.WriteString("\n#### Methods\n\n")
			for _, f := range c.Methods {
				fmt.Fprintf(&b, "- **`%s%s`**%s\n", f.Name, f.Signature, asyncMarker(f))
				if doc := strings.TrimSpace(f.Doc); doc != "" {
					b.WriteString(indent(doc, "  ") + "\n")
				}
			}
		}
	}

	if len(m.Functions) > 0 {
		b.WriteString("\n## Functions\n")
		for _, f := range m.Functions {
			fmt.Fprintf(&b, "\n### `%s%s`%s\n\n", f.Name, f.Signature, asyncMarker(f))
			fmt.Fprintf(&b, "```python\n%s\n```\n", importStatement(f))
			if doc := strings.TrimSpace(f.Doc); doc != "" {
				b.WriteString("\n" + doc + "\n")
			}
		}
	}

	if includeComments && len(m.Comments) > 0 {
		b.WriteString("\n## Comment index\n\n")
		for _, c := range m.Comments {
			fmt.Fprintf(&b, "- L%d: %s\n", c.Line, c.Text)
		}
	}

	b.WriteString("\n---\n\n")
	b.WriteString(Attribution + "\n")
	return b.String()
}

// importStatement derives the example import from the qualified name: the
// owning module is everything before the final dot.
func importStatement(f extractor.Function) string {
	owner := strings.TrimSuffix(f.QualName, "."+f.Name)
	if owner == f.QualName || owner == "" {
		return "import " + f.Name
	}
	return fmt.Sprintf("from %s import %s", owner, f.Name)
}

func asyncMarker(f extractor.Function) string {
	if f.Async {
		return " *async*"
	}
	return ""
}

// indent prefixes every non-empty line so multi-line docs stay inside a list item.
func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}
