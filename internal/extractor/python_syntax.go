package extractor

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// CheckSyntax catches what tree-sitter-python parses for compatibility but
// Python 3 refuses to compile: print and exec statements, a parameter without
// a default after one with a default, and call arguments in an illegal order.
func (p *PythonExtractor) CheckSyntax(root *sitter.Node, sourceCode []byte) (int, string) {
	var (
		bad *sitter.Node
		msg string
	)
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if bad != nil {
			return
		}
		switch n.Type() {
		case "print_statement":
			// "print >>f, x" is also a valid Python 3 expression.
			if !hasNamedChild(n, "chevron") {
				bad, msg = n, "print statement (use print(...))"
				return
			}
		case "exec_statement":
			bad, msg = n, "exec statement (use exec(...))"
			return
		case "parameters", "lambda_parameters":
			if at := defaultOrderViolation(n); at != nil {
				bad, msg = at, "parameter without a default follows parameter with a default"
				return
			}
		case "argument_list":
			if at, why := argumentOrderViolation(n); at != nil {
				bad, msg = at, why
				return
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			visit(n.NamedChild(i))
		}
	}
	visit(root)
	if bad == nil {
		return 0, ""
	}
	return int(bad.StartPoint().Row) + 1, msg
}

func defaultOrderViolation(params *sitter.Node) *sitter.Node {
	seenDefault := false
	for i := 0; i < int(params.NamedChildCount()); i++ {
		c := params.NamedChild(i)
		switch c.Type() {
		case "default_parameter", "typed_default_parameter":
			seenDefault = true
		case "list_splat_pattern", "dictionary_splat_pattern", "keyword_separator":
			// Keyword-only parameters may omit defaults.
			return nil
		case "typed_parameter":
			if inner := c.NamedChild(0); inner != nil && (inner.Type() == "list_splat_pattern" || inner.Type() == "dictionary_splat_pattern") {
				return nil
			}
			if seenDefault {
				return c
			}
		case "identifier":
			if seenDefault {
				return c
			}
		}
	}
	return nil
}

func argumentOrderViolation(args *sitter.Node) (*sitter.Node, string) {
	seenKeyword, seenDictSplat := false, false
	for i := 0; i < int(args.NamedChildCount()); i++ {
		c := args.NamedChild(i)
		switch c.Type() {
		case "comment":
		case "keyword_argument":
			seenKeyword = true
		case "dictionary_splat":
			seenDictSplat = true
		case "list_splat", "parenthesized_list_splat":
			if seenDictSplat {
				return c, "iterable argument unpacking follows keyword argument unpacking"
			}
		default:
			if seenDictSplat {
				return c, "positional argument follows keyword argument unpacking"
			}
			if seenKeyword {
				return c, "positional argument follows keyword argument"
			}
		}
	}
	return nil, ""
}

func hasNamedChild(n *sitter.Node, typ string) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if n.NamedChild(i).Type() == typ {
			return true
		}
	}
	return false
}
