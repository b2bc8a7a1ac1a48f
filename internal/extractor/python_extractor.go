package extractor

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// PythonExtractor implements LanguageExtractor for Python.
type PythonExtractor struct{}

func (p *PythonExtractor) GetLanguage() *sitter.Language {
	return python.GetLanguage()
}

func (p *PythonExtractor) FileExtension() string {
	return ".py"
}

// GetQuery only matches definitions that are direct children of the module, so
// nested functions and classes never surface.
func (p *PythonExtractor) GetQuery() string {
	return `
		(module (class_definition) @class)
		(module (decorated_definition definition: (class_definition) @class))
		(module (function_definition) @func)
		(module (decorated_definition definition: (function_definition) @func))
	`
}

func (p *PythonExtractor) ModuleDoc(root *sitter.Node, sourceCode []byte) string {
	return docstring(root, sourceCode)
}

func (p *PythonExtractor) ExtractUnit(captureName string, node *sitter.Node, sourceCode []byte, module *Module) {
	switch captureName {
	case "class":
		if c, ok := p.extractClass(node, sourceCode, module.Name); ok {
			module.Classes = append(module.Classes, c)
		}
	case "func":
		if f, ok := p.extractFunction(node, sourceCode, module.Name); ok {
			module.Functions = append(module.Functions, f)
		}
	}
}

func (p *PythonExtractor) extractClass(node *sitter.Node, sourceCode []byte, moduleName string) (Class, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return Class{}, false
	}
	name := nameNode.Content(sourceCode)
	if !IsPublic(name) {
		return Class{}, false
	}
	qualName := qualify(moduleName, name)

	c := Class{
		Name:     name,
		QualName: qualName,
		Line:     int(node.StartPoint().Row) + 1,
		Methods:  []Function{},
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return c, true
	}
	c.Doc = docstring(body, sourceCode)

	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		def := child
		if child.Type() == "decorated_definition" {
			def = child.ChildByFieldName("definition")
		}
		if def == nil || def.Type() != "function_definition" {
			continue
		}
		if m, ok := p.extractFunction(def, sourceCode, qualName); ok {
			c.Methods = append(c.Methods, m)
		}
	}
	return c, true
}

func (p *PythonExtractor) extractFunction(node *sitter.Node, sourceCode []byte, owner string) (Function, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return Function{}, false
	}
	name := nameNode.Content(sourceCode)
	if !IsPublic(name) {
		return Function{}, false
	}

	f := Function{
		Name:      name,
		QualName:  qualify(owner, name),
		Signature: renderSignature(node, sourceCode),
		Line:      int(node.StartPoint().Row) + 1,
		Async:     isAsync(node),
	}
	if body := node.ChildByFieldName("body"); body != nil {
		f.Doc = docstring(body, sourceCode)
	}
	return f, true
}

func qualify(owner, name string) string {
	if owner == "" {
		return name
	}
	return owner + "." + name
}

func isAsync(node *sitter.Node) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "async" {
			return true
		}
		if child.Type() == "def" {
			break
		}
	}
	return false
}

// docstring returns the cleaned docstring of a module or block, or "" when the
// first statement is not a bare string literal.
func docstring(body *sitter.Node, sourceCode []byte) string {
	first := firstStatement(body)
	if first == nil || first.Type() != "expression_statement" || first.NamedChildCount() != 1 {
		return ""
	}
	expr := first.NamedChild(0)
	for expr.Type() == "parenthesized_expression" && expr.NamedChildCount() == 1 {
		expr = expr.NamedChild(0)
	}

	var raw string
	switch expr.Type() {
	case "string":
		v, ok := stringLiteralValue(expr.Content(sourceCode))
		if !ok {
			return ""
		}
		raw = v
	case "concatenated_string":
		var sb strings.Builder
		for i := 0; i < int(expr.NamedChildCount()); i++ {
			part := expr.NamedChild(i)
			if part.Type() == "comment" {
				continue
			}
			if part.Type() != "string" {
				return ""
			}
			v, ok := stringLiteralValue(part.Content(sourceCode))
			if !ok {
				return ""
			}
			sb.WriteString(v)
		}
		raw = sb.String()
	default:
		return ""
	}
	return cleanDoc(raw)
}

func firstStatement(body *sitter.Node) *sitter.Node {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		return child
	}
	return nil
}
