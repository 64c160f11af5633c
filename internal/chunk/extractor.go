package chunk

import (
	"strings"
)

// SymbolExtractor pulls named definitions out of a parsed tree using the
// per-language node-type tables in the registry.
type SymbolExtractor struct {
	registry *LanguageRegistry
}

// NewSymbolExtractor creates an extractor over the default registry.
func NewSymbolExtractor() *SymbolExtractor {
	return &SymbolExtractor{registry: DefaultRegistry()}
}

// NewSymbolExtractorWithRegistry creates an extractor over a custom registry.
func NewSymbolExtractorWithRegistry(registry *LanguageRegistry) *SymbolExtractor {
	return &SymbolExtractor{registry: registry}
}

// Extract walks the tree and returns every symbol it can name. The result
// is never nil.
func (e *SymbolExtractor) Extract(tree *Tree, source []byte) []*Symbol {
	if tree == nil || tree.Root == nil {
		return []*Symbol{}
	}

	config, ok := e.registry.GetByName(tree.Language)
	if !ok {
		return []*Symbol{}
	}

	symbols := []*Symbol{}
	tree.Root.Walk(func(n *Node) bool {
		if symbol := e.extractSymbolFromNode(n, source, config, tree.Language); symbol != nil {
			symbols = append(symbols, symbol)
		}
		return true
	})
	return symbols
}

// classify maps a node type onto a SymbolType using the language config's
// node-type tables.
func classify(nodeType string, config *LanguageConfig) (SymbolType, bool) {
	tables := []struct {
		types []string
		kind  SymbolType
	}{
		{config.FunctionTypes, SymbolTypeFunction},
		{config.MethodTypes, SymbolTypeMethod},
		{config.ClassTypes, SymbolTypeClass},
		{config.InterfaceTypes, SymbolTypeInterface},
		{config.TypeDefTypes, SymbolTypeType},
		{config.ConstantTypes, SymbolTypeConstant},
		{config.VariableTypes, SymbolTypeVariable},
	}
	for _, table := range tables {
		for _, t := range table.types {
			if nodeType == t {
				return table.kind, true
			}
		}
	}
	return "", false
}

// extractSymbolFromNode returns the symbol a single node defines, or nil.
func (e *SymbolExtractor) extractSymbolFromNode(n *Node, source []byte, config *LanguageConfig, language string) *Symbol {
	symbolType, found := classify(n.Type, config)
	if !found {
		// A const/let holding an arrow function reads as a function, not a
		// variable.
		return e.extractSpecialSymbol(n, source, language)
	}

	name := e.extractName(n, source, config, language)
	if name == "" {
		return nil
	}

	return &Symbol{
		Name:       name,
		Type:       symbolType,
		StartLine:  int(n.StartPoint.Row) + 1,
		EndLine:    int(n.EndPoint.Row) + 1,
		Signature:  e.extractSignature(n, source, symbolType),
		DocComment: e.extractDocComment(n, source, language),
	}
}

// extractName finds the defining identifier for a symbol node.
func (e *SymbolExtractor) extractName(n *Node, source []byte, config *LanguageConfig, language string) string {
	switch language {
	case "go":
		return extractGoName(n, source)
	case "typescript", "tsx", "javascript", "jsx":
		return extractJSName(n, source)
	default:
		return firstChildContent(n, source, "identifier")
	}
}

// extractGoName handles Go's grammar shapes: plain identifiers for
// functions, field_identifier for methods, and grouped specs for
// type/const/var declarations.
func extractGoName(n *Node, source []byte) string {
	switch n.Type {
	case "function_declaration":
		return firstChildContent(n, source, "identifier")
	case "method_declaration":
		return firstChildContent(n, source, "field_identifier")
	case "type_declaration":
		return nestedContent(n, source, "type_spec", "type_identifier")
	case "const_declaration":
		return nestedContent(n, source, "const_spec", "identifier")
	case "var_declaration":
		return nestedContent(n, source, "var_spec", "identifier")
	}
	return ""
}

// extractJSName handles JS/TS declarations, including the declarator
// nesting of const/let/var.
func extractJSName(n *Node, source []byte) string {
	if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
		if name := nestedContent(n, source, "variable_declarator", "identifier"); name != "" {
			return name
		}
	}
	for _, child := range n.Children {
		if child.Type == "identifier" || child.Type == "type_identifier" {
			return child.GetContent(source)
		}
	}
	return ""
}

// firstChildContent returns the content of the first direct child of the
// given type.
func firstChildContent(n *Node, source []byte, childType string) string {
	if child := n.FindChildByType(childType); child != nil {
		return child.GetContent(source)
	}
	return ""
}

// nestedContent returns the content of the first grandchild reached via
// the given child and grandchild types.
func nestedContent(n *Node, source []byte, childType, grandchildType string) string {
	for _, child := range n.Children {
		if child.Type != childType {
			continue
		}
		if got := firstChildContent(child, source, grandchildType); got != "" {
			return got
		}
	}
	return ""
}

// extractSpecialSymbol recognizes `const f = () => ...` and
// `const f = function() {...}` in the JS family.
func (e *SymbolExtractor) extractSpecialSymbol(n *Node, source []byte, language string) *Symbol {
	switch language {
	case "typescript", "tsx", "javascript", "jsx":
		if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
			return e.variableFunctionSymbol(n, source)
		}
	}
	return nil
}

// variableFunctionSymbol returns a function symbol when a declarator binds
// a name to an arrow function or function expression.
func (e *SymbolExtractor) variableFunctionSymbol(n *Node, source []byte) *Symbol {
	for _, child := range n.Children {
		if child.Type != "variable_declarator" {
			continue
		}

		var name string
		var hasFunction bool
		for _, grandchild := range child.Children {
			switch grandchild.Type {
			case "identifier":
				name = grandchild.GetContent(source)
			case "arrow_function", "function", "function_expression":
				hasFunction = true
			}
		}

		if name != "" && hasFunction {
			return &Symbol{
				Name:      name,
				Type:      SymbolTypeFunction,
				StartLine: int(n.StartPoint.Row) + 1,
				EndLine:   int(n.EndPoint.Row) + 1,
				Signature: signatureLine(n.GetContent(source)),
			}
		}
	}
	return nil
}

// extractDocComment returns the comment on the line directly above the
// node, if there is one. Python docstrings live inside the body and are
// not collected here.
func (e *SymbolExtractor) extractDocComment(n *Node, source []byte, language string) string {
	if language == "python" || n.StartPoint.Row == 0 {
		return ""
	}

	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	if lineStart <= 1 {
		return ""
	}

	prevLineEnd := lineStart - 1
	prevLineStart := prevLineEnd
	for prevLineStart > 0 && source[prevLineStart-1] != '\n' {
		prevLineStart--
	}

	prevLine := strings.TrimSpace(string(source[prevLineStart:prevLineEnd]))
	if strings.HasPrefix(prevLine, "//") {
		return strings.TrimPrefix(prevLine, "//")
	}
	return ""
}

// extractSignature returns the declaration's first line for symbol kinds
// where an interface line is meaningful.
func (e *SymbolExtractor) extractSignature(n *Node, source []byte, symbolType SymbolType) string {
	switch symbolType {
	case SymbolTypeFunction, SymbolTypeMethod, SymbolTypeClass, SymbolTypeInterface, SymbolTypeType:
		return signatureLine(n.GetContent(source))
	}
	return ""
}

// signatureLine is the first line of a declaration, cut before the opening
// brace when one is present. Python's colon-terminated and Go's alias
// forms have no brace and keep the whole line.
func signatureLine(content string) string {
	firstLine := content
	if idx := strings.IndexByte(content, '\n'); idx != -1 {
		firstLine = content[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)

	if idx := strings.Index(firstLine, "{"); idx != -1 {
		return strings.TrimSpace(firstLine[:idx])
	}
	return firstLine
}
