package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// CodeChunkerOptions configures the code chunker behavior
type CodeChunkerOptions struct {
	MaxChunkTokens int // Maximum tokens per chunk (default: DefaultMaxChunkTokens)
	OverlapTokens  int // Overlap between chunks when splitting (default: DefaultOverlapTokens)
}

// CodeChunker implements AST-aware code chunking using tree-sitter
type CodeChunker struct {
	parser    *Parser
	extractor *SymbolExtractor
	registry  *LanguageRegistry
	options   CodeChunkerOptions
}

// NewCodeChunker creates a new code chunker with default options
func NewCodeChunker() *CodeChunker {
	return NewCodeChunkerWithOptions(CodeChunkerOptions{})
}

// NewCodeChunkerWithOptions creates a new code chunker with custom options
func NewCodeChunkerWithOptions(opts CodeChunkerOptions) *CodeChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}

	registry := DefaultRegistry()
	return &CodeChunker{
		parser:    NewParserWithRegistry(registry),
		extractor: NewSymbolExtractorWithRegistry(registry),
		registry:  registry,
		options:   opts,
	}
}

// Close releases chunker resources
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// SupportedExtensions returns file extensions this chunker handles
func (c *CodeChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

// Chunk splits a file into semantic chunks
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}

	// Check if language is supported
	_, supported := c.registry.GetByName(file.Language)
	if !supported {
		return NewWindowChunker(c.options.MaxChunkTokens, c.options.OverlapTokens).Chunk(file, ContentTypeCode), nil
	}

	// Parse the file
	tree, err := c.parser.Parse(ctx, file.Content, file.Language)
	if err != nil {
		return NewWindowChunker(c.options.MaxChunkTokens, c.options.OverlapTokens).Chunk(file, ContentTypeCode), nil
	}

	// Extract context (package declaration, imports)
	fileContext := c.extractFileContext(tree, file.Content, file.Language)

	// Enrich context with file path marker for better embedding quality
	fileContext = c.enrichContextWithFilePath(file.Path, file.Language, fileContext)

	// Find symbol nodes (functions, classes, methods, types)
	symbolNodes := c.findSymbolNodes(tree, file.Language)

	if len(symbolNodes) == 0 {
		return nil, nil
	}

	// Create chunks from symbol nodes
	chunks := make([]*Chunk, 0, len(symbolNodes))
	now := time.Now()
	covered := make(map[int]bool)

	for _, node := range symbolNodes {
		nodeChunks := c.createChunksFromNode(node, tree, file, fileContext, now)
		if len(nodeChunks) == 0 {
			continue
		}
		chunks = append(chunks, nodeChunks...)
		for line := int(node.node.StartPoint.Row) + 1; line <= int(node.node.EndPoint.Row)+1; line++ {
			covered[line] = true
		}
	}

	chunks = append(chunks, c.moduleChunksFromUncovered(tree.Source, covered, file, now)...)

	return chunks, nil
}

// moduleChunksFromUncovered groups consecutive source lines not claimed by
// any function/class symbol into module chunks. A run ends at the first
// covered line, and a run only becomes a chunk once it clears
// MinChunkTokens.
func (c *CodeChunker) moduleChunksFromUncovered(source []byte, covered map[int]bool, file *FileInput, now time.Time) []*Chunk {
	lines := strings.Split(string(source), "\n")

	var chunks []*Chunk
	groupStart, groupEnd := -1, -1

	flush := func() {
		if groupStart == -1 {
			return
		}
		content := strings.Join(lines[groupStart-1:groupEnd], "\n")
		if estimateTokens(content) >= MinChunkTokens {
			chunks = append(chunks, &Chunk{
				ID:          generateChunkID(file.Path, content),
				FilePath:    file.Path,
				ChunkType:   ChunkTypeModule,
				Content:     content,
				RawContent:  content,
				ContentType: ContentTypeCode,
				Language:    file.Language,
				StartLine:   groupStart,
				EndLine:     groupEnd,
				Preview:     makePreview(content),
				Metadata:    make(map[string]string),
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
		groupStart, groupEnd = -1, -1
	}

	for i := 1; i <= len(lines); i++ {
		if covered[i] {
			flush()
			continue
		}
		if groupStart == -1 {
			groupStart = i
		}
		groupEnd = i
	}
	flush()

	return chunks
}

// symbolNodeInfo holds a symbol node with its extracted symbol info
type symbolNodeInfo struct {
	node   *Node
	symbol *Symbol
}

// findSymbolNodes finds every symbol-defining node in the tree, including
// ones nested inside another symbol (a class's methods, for example)
func (c *CodeChunker) findSymbolNodes(tree *Tree, language string) []*symbolNodeInfo {
	// Return empty slice, not nil, for consistent API behavior
	config, ok := c.registry.GetByName(language)
	if !ok {
		return []*symbolNodeInfo{}
	}

	var symbolNodes []*symbolNodeInfo

	// Build set of symbol-defining node types
	symbolTypes := make(map[string]SymbolType)
	for _, t := range config.FunctionTypes {
		symbolTypes[t] = SymbolTypeFunction
	}
	for _, t := range config.MethodTypes {
		symbolTypes[t] = SymbolTypeMethod
	}
	for _, t := range config.ClassTypes {
		symbolTypes[t] = SymbolTypeClass
	}
	for _, t := range config.InterfaceTypes {
		symbolTypes[t] = SymbolTypeInterface
	}
	for _, t := range config.TypeDefTypes {
		symbolTypes[t] = SymbolTypeType
	}
	for _, t := range config.ConstantTypes {
		symbolTypes[t] = SymbolTypeConstant
	}
	for _, t := range config.VariableTypes {
		symbolTypes[t] = SymbolTypeVariable
	}

	// Walk tree to find symbol nodes
	tree.Root.Walk(func(n *Node) bool {
		// For JS/TS lexical_declaration/variable_declaration, check for arrow functions first
		// Arrow functions should be typed as Function, not Constant
		if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
			sym := c.extractor.extractSpecialSymbol(n, tree.Source, language)
			if sym != nil {
				// It's an arrow function or function expression
				symbolNodes = append(symbolNodes, &symbolNodeInfo{
					node:   n,
					symbol: sym,
				})
				return true // Already handled, don't process as constant
			}
			// Not an arrow function - fall through to check as constant/variable
		}

		// Check if this is a symbol-defining node type
		if symType, isSymbol := symbolTypes[n.Type]; isSymbol {
			sym := c.extractSymbol(n, tree, symType, language)
			if sym != nil {
				symbolNodes = append(symbolNodes, &symbolNodeInfo{
					node:   n,
					symbol: sym,
				})
			}
		}
		return true
	})

	return symbolNodes
}

// extractSymbol extracts symbol info from a node
func (c *CodeChunker) extractSymbol(n *Node, tree *Tree, symType SymbolType, language string) *Symbol {
	config, _ := c.registry.GetByName(language)
	name := c.extractor.extractName(n, tree.Source, config, language)
	if name == "" {
		return nil
	}

	docComment := c.extractDocComment(n, tree.Source, language)

	return &Symbol{
		Name:       name,
		Type:       symType,
		StartLine:  int(n.StartPoint.Row) + 1,
		EndLine:    int(n.EndPoint.Row) + 1,
		DocComment: docComment,
	}
}

// extractDocComment extracts doc comment for a node, looking for multi-line comments
func (c *CodeChunker) extractDocComment(n *Node, source []byte, language string) string {
	// Find the start of the current line
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}

	// Look for comment on preceding lines
	if lineStart <= 1 {
		return ""
	}

	// Collect comment lines working backwards
	var commentLines []string
	pos := lineStart - 1 // Start before the newline

	for pos > 0 {
		// Find start of previous line
		prevLineEnd := pos
		pos--
		for pos > 0 && source[pos] != '\n' {
			pos--
		}
		prevLineStart := pos
		if pos > 0 {
			prevLineStart++ // Skip the newline
		}

		prevLine := strings.TrimSpace(string(source[prevLineStart:prevLineEnd]))

		// Check for single-line comments
		switch language {
		case "go", "typescript", "tsx", "javascript", "jsx":
			if strings.HasPrefix(prevLine, "//") {
				commentLines = append([]string{strings.TrimPrefix(prevLine, "//")}, commentLines...)
				continue
			}
		case "python":
			if strings.HasPrefix(prevLine, "#") {
				commentLines = append([]string{strings.TrimPrefix(prevLine, "#")}, commentLines...)
				continue
			}
		}

		// Any non-comment line, blank or not, ends the doc comment block.
		break
	}

	if len(commentLines) == 0 {
		return ""
	}

	return strings.TrimSpace(strings.Join(commentLines, "\n"))
}

// chunkTypeForSymbol maps the chunker's broader symbol-type set onto the
// closed vocabulary a Chunk carries: function and method read as function,
// class/interface/type read as class, and variable/constant read as module
// (a standalone declaration, not a callable or type definition).
func chunkTypeForSymbol(t SymbolType) ChunkType {
	switch t {
	case SymbolTypeFunction, SymbolTypeMethod:
		return ChunkTypeFunction
	case SymbolTypeClass, SymbolTypeInterface, SymbolTypeType:
		return ChunkTypeClass
	default:
		return ChunkTypeModule
	}
}

// createChunksFromNode creates one or more chunks from a symbol node. A
// function/method body more than twice MaxChunkTokens is dropped entirely
// rather than split; its lines fall through to module-line grouping. A
// class/interface/type body that size is truncated to its first ~30 lines
// plus an elided marker instead.
func (c *CodeChunker) createChunksFromNode(info *symbolNodeInfo, tree *Tree, file *FileInput, fileContext string, now time.Time) []*Chunk {
	node := info.node
	rawContent := string(tree.Source[node.StartByte:node.EndByte])

	rawContentWithDoc := rawContent
	if info.symbol.DocComment != "" {
		rawContentWithDoc = c.getRawContentWithDocComment(node, tree.Source, info.symbol.DocComment)
	}

	chunkType := chunkTypeForSymbol(info.symbol.Type)
	tokens := estimateTokens(rawContentWithDoc)
	oversizeLimit := c.options.MaxChunkTokens * 2

	if tokens <= oversizeLimit {
		chunk := c.createChunk(file, rawContentWithDoc, fileContext, info.symbol, chunkType, now)
		return []*Chunk{chunk}
	}

	if chunkType != ChunkTypeClass {
		// Oversize function/method: let its lines surface as module chunks.
		return nil
	}

	return []*Chunk{c.truncatedClassChunk(node, tree, file, fileContext, info.symbol, now)}
}

// truncatedClassChunk keeps only the class's first ~30 lines plus an
// elided marker, with EndLine shrunk to the kept range.
func (c *CodeChunker) truncatedClassChunk(node *Node, tree *Tree, file *FileInput, fileContext string, symbol *Symbol, now time.Time) *Chunk {
	startLine := int(node.StartPoint.Row) + 1
	endLine := int(node.EndPoint.Row) + 1

	previewEnd := startLine + 30
	if previewEnd > endLine {
		previewEnd = endLine
	}

	lines := strings.Split(string(tree.Source), "\n")
	if previewEnd > len(lines) {
		previewEnd = len(lines)
	}
	truncated := strings.Join(lines[startLine-1:previewEnd], "\n") + "\n    // ... (class continues)"

	truncatedSymbol := &Symbol{
		Name:       symbol.Name,
		Type:       symbol.Type,
		StartLine:  startLine,
		EndLine:    previewEnd,
		DocComment: symbol.DocComment,
	}

	chunk := c.createChunk(file, truncated, fileContext, truncatedSymbol, ChunkTypeClass, now)
	return chunk
}

// getRawContentWithDocComment gets raw content including doc comment
func (c *CodeChunker) getRawContentWithDocComment(n *Node, source []byte, docComment string) string {
	// Find start of doc comment (before the node)
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}

	// Count back through comment lines
	docLines := strings.Count(docComment, "\n") + 1
	for i := 0; i < docLines && lineStart > 0; i++ {
		lineStart--
		for lineStart > 0 && source[lineStart-1] != '\n' {
			lineStart--
		}
	}

	return string(source[lineStart:n.EndByte])
}

// createChunk creates a single chunk from content
func (c *CodeChunker) createChunk(file *FileInput, rawContent, fileContext string, symbol *Symbol, chunkType ChunkType, now time.Time) *Chunk {
	return &Chunk{
		ID:          generateChunkID(file.Path, rawContent),
		FilePath:    file.Path,
		ChunkType:   chunkType,
		Name:        symbol.Name,
		Content:     combineContextAndContent(fileContext, rawContent),
		RawContent:  rawContent,
		Context:     fileContext,
		ContentType: ContentTypeCode,
		Language:    file.Language,
		StartLine:   symbol.StartLine,
		EndLine:     symbol.EndLine,
		Preview:     makePreview(rawContent),
		Symbols:     []*Symbol{symbol},
		Metadata:    make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// extractFileContext extracts package declaration and imports from a file
func (c *CodeChunker) extractFileContext(tree *Tree, source []byte, language string) string {
	var parts []string

	switch language {
	case "go":
		parts = c.extractGoContext(tree, source)
	case "typescript", "tsx":
		parts = c.extractTSContext(tree, source)
	case "javascript", "jsx":
		parts = c.extractJSContext(tree, source)
	case "python":
		parts = c.extractPythonContext(tree, source)
	}

	return strings.Join(parts, "\n\n")
}

func (c *CodeChunker) extractGoContext(tree *Tree, source []byte) []string {
	var parts []string

	// Find package clause
	for _, node := range tree.Root.Children {
		if node.Type == "package_clause" {
			parts = append(parts, node.GetContent(source))
			break
		}
	}

	// Find import declarations
	for _, node := range tree.Root.Children {
		if node.Type == "import_declaration" {
			parts = append(parts, node.GetContent(source))
		}
	}

	return parts
}

func (c *CodeChunker) extractTSContext(tree *Tree, source []byte) []string {
	return c.extractJSContext(tree, source) // Same for TS/TSX
}

func (c *CodeChunker) extractJSContext(tree *Tree, source []byte) []string {
	var parts []string

	// Find import statements
	for _, node := range tree.Root.Children {
		if node.Type == "import_statement" {
			parts = append(parts, node.GetContent(source))
		}
	}

	return parts
}

func (c *CodeChunker) extractPythonContext(tree *Tree, source []byte) []string {
	var parts []string

	// Find import statements
	for _, node := range tree.Root.Children {
		if node.Type == "import_statement" || node.Type == "import_from_statement" {
			parts = append(parts, node.GetContent(source))
		}
	}

	return parts
}

// generateChunkID derives a content-addressable chunk ID from the file path
// and chunk content, stable across line-number shifts: the same content in
// the same file always gets the same ID, so an unchanged chunk keeps its
// vector-index entry across a rescan.
func generateChunkID(filePath string, content string) string {
	// Hash the content first
	contentHash := sha256.Sum256([]byte(content))
	contentHashStr := hex.EncodeToString(contentHash[:])[:16]

	// Combine with file path for uniqueness per file
	input := fmt.Sprintf("%s:%s", filePath, contentHashStr)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}

// estimateTokens estimates the number of tokens in content
func estimateTokens(content string) int {
	return len(content) / TokensPerChar
}

// makePreview truncates content to a short display snippet: first
// previewLen characters, trimmed, with a "..." suffix when content was
// actually cut.
func makePreview(content string) string {
	const previewLen = 200
	if len(content) <= previewLen {
		return strings.TrimSpace(content)
	}
	return strings.TrimSpace(content[:previewLen]) + "..."
}

// combineContextAndContent combines context and raw content into full content
func combineContextAndContent(context, rawContent string) string {
	if context == "" {
		return rawContent
	}
	return context + "\n\n" + rawContent
}

// enrichContextWithFilePath prepends a file path marker to the context.
// This helps embedding models understand file location and scope.
// The marker format is language-appropriate (// for Go/JS/TS, # for Python).
func (c *CodeChunker) enrichContextWithFilePath(filePath, language, existingContext string) string {
	if filePath == "" {
		return existingContext
	}

	// Use language-appropriate comment syntax
	var marker string
	switch language {
	case "python":
		marker = fmt.Sprintf("# File: %s", filePath)
	default:
		// Go, TypeScript, JavaScript, etc. use //
		marker = fmt.Sprintf("// File: %s", filePath)
	}

	if existingContext == "" {
		return marker
	}
	return marker + "\n" + existingContext
}
