package extractor

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// placeholder stands in for expressions that cannot be rendered as text.
const placeholder = "..."

// renderSignature renders a function's parameter list in this order: positional
// params, *args, a bare * when keyword-only params exist without *args,
// keyword-only params, **kwargs, then " -> annotation".
// Parameter annotations are not rendered; defaults are the literal source text.
func renderSignature(fn *sitter.Node, sourceCode []byte) string {
	var (
		positional []string
		kwonly     []string
		vararg     string
		kwarg      string
		afterStar  bool
	)

	add := func(s string) {
		if afterStar {
			kwonly = append(kwonly, s)
		} else {
			positional = append(positional, s)
		}
	}

	if params := fn.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			switch p.Type() {
			case "comment", "positional_separator":
				continue
			case "keyword_separator":
				afterStar = true
			case "list_splat_pattern":
				vararg = splatName(p, sourceCode, "*")
				afterStar = true
			case "dictionary_splat_pattern":
				kwarg = splatName(p, sourceCode, "**")
			case "identifier":
				add(p.Content(sourceCode))
			case "typed_parameter":
				inner := p.NamedChild(0)
				switch {
				case inner == nil:
					add(placeholder)
				case inner.Type() == "list_splat_pattern":
					vararg = splatName(inner, sourceCode, "*")
					afterStar = true
				case inner.Type() == "dictionary_splat_pattern":
					kwarg = splatName(inner, sourceCode, "**")
				default:
					add(inner.Content(sourceCode))
				}
			case "default_parameter", "typed_default_parameter":
				name := p.ChildByFieldName("name")
				if name == nil {
					add(placeholder)
					continue
				}
				add(name.Content(sourceCode) + "=" + renderExpr(p.ChildByFieldName("value"), sourceCode))
			default:
				add(renderExpr(p, sourceCode))
			}
		}
	}

	parts := make([]string, 0, len(positional)+len(kwonly)+3)
	parts = append(parts, positional...)
	if vararg != "" {
		parts = append(parts, "*"+vararg)
	} else if len(kwonly) > 0 {
		parts = append(parts, "*")
	}
	parts = append(parts, kwonly...)
	if kwarg != "" {
		parts = append(parts, "**"+kwarg)
	}

	sig := "(" + strings.Join(parts, ", ") + ")"
	if ret := fn.ChildByFieldName("return_type"); ret != nil {
		sig += " -> " + renderExpr(ret, sourceCode)
	}
	return sig
}

func splatName(n *sitter.Node, sourceCode []byte, stars string) string {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "identifier" {
			return c.Content(sourceCode)
		}
	}
	name := strings.TrimSpace(strings.TrimPrefix(n.Content(sourceCode), stars))
	if name == "" {
		return placeholder
	}
	return name
}

// renderExpr returns an expression's source text joined onto one line.
func renderExpr(n *sitter.Node, sourceCode []byte) string {
	if n == nil || n.HasError() || isErrorNode(n) {
		return placeholder
	}
	text := joinLines(n.Content(sourceCode))
	if text == "" {
		return placeholder
	}
	return text
}

var lineBreakRe = regexp.MustCompile(`[ \t]*\\?\r?\n[ \t]*`)

// joinLines folds a multi-line expression onto one line. Breaks directly inside
// brackets vanish, every other break becomes a single space.
func joinLines(s string) string {
	s = strings.TrimSpace(s)
	locs := lineBreakRe.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	var sb strings.Builder
	last := 0
	for _, loc := range locs {
		sb.WriteString(s[last:loc[0]])
		var before, after byte
		if loc[0] > 0 {
			before = s[loc[0]-1]
		}
		if loc[1] < len(s) {
			after = s[loc[1]]
		}
		if !strings.ContainsRune("([{", rune(before)) && !strings.ContainsRune(")]}", rune(after)) {
			sb.WriteByte(' ')
		}
		last = loc[1]
	}
	sb.WriteString(s[last:])
	return sb.String()
}
