package crossfile

import (
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/cris160/exploit-prover/analysis/core"
	"github.com/cris160/exploit-prover/analysis/indexer"
	"github.com/cris160/exploit-prover/analysis/parser"
	"github.com/cris160/exploit-prover/analysis/slicer"
	"github.com/cris160/exploit-prover/ruleset"
)

// defaultMaxDepth bounds cross-file recursion to keep analysis tractable.
const defaultMaxDepth = 3

// Options configures the cross-file engine.
type Options struct {
	// MaxDepth bounds cross-file recursion. Zero means the default of 3.
	MaxDepth int

	// LooseArgMatch restores the legacy substring reachability test between
	// a caller's tainted argument and a callee sink's tainted variables.
	// The default maps arguments to callee parameters by call position and
	// requires exact name equality.
	LooseArgMatch bool
}

// Engine performs inter-procedural taint analysis across workspace files.
//
// Recursion guards (the analyzed-file set and the depth counter) are reset
// at the start of each top-level AnalyzeFile call; an Engine must not be
// shared across goroutines.
type Engine struct {
	indexer       *indexer.ProjectIndexer
	parser        *parser.Parser
	catalog       *ruleset.Catalog
	analyzedFiles map[string]bool
	maxDepth      int
	looseArgMatch bool
}

// callSite is one call expression with its argument identifiers.
type callSite struct {
	name string
	line int

	// argIdentifiers holds the identifier names found in each positional
	// argument, outer slice indexed by argument position.
	argIdentifiers [][]string

	// argTexts holds the verbatim expression of each positional argument.
	// Direct source expressions (input(), request.args...) taint their
	// position even without a tainted variable.
	argTexts []string
}

// New creates an engine for the given workspace root.
func New(workspaceRoot string, catalog *ruleset.Catalog, opts Options) *Engine {
	if catalog == nil {
		catalog = ruleset.DefaultCatalog()
	}
	maxDepth := opts.MaxDepth
	if maxDepth == 0 {
		maxDepth = defaultMaxDepth
	}
	return &Engine{
		indexer:       indexer.New(workspaceRoot),
		parser:        parser.New(),
		catalog:       catalog,
		analyzedFiles: make(map[string]bool),
		maxDepth:      maxDepth,
		looseArgMatch: opts.LooseArgMatch,
	}
}

// IndexWorkspace builds the symbol table before analysis.
func (e *Engine) IndexWorkspace() (int, error) {
	return e.indexer.IndexWorkspace()
}

// Indexer exposes the engine's project index.
func (e *Engine) Indexer() *indexer.ProjectIndexer {
	return e.indexer
}

// AnalyzeFile runs a cross-file taint analysis starting at filePath.
func (e *Engine) AnalyzeFile(filePath string) (*core.CrossFileResult, error) {
	e.analyzedFiles = make(map[string]bool)
	return e.analyzeFileInternal(filePath, 0)
}

func (e *Engine) analyzeFileInternal(filePath string, depth int) (*core.CrossFileResult, error) {
	if depth > e.maxDepth {
		return &core.CrossFileResult{}, nil
	}
	if e.analyzedFiles[filePath] {
		return &core.CrossFileResult{}, nil
	}
	e.analyzedFiles[filePath] = true

	source, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	tree, err := e.parser.Parse(source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	// Intra-file slice for this file.
	bs := slicer.New(e.catalog)
	bs.Analyze(source, tree)

	sinkFinder := parser.NewSinkFinder(e.parser, e.catalog)
	sinks, err := sinkFinder.FindSinks(source)
	if err != nil {
		return nil, err
	}

	// Enrich each sink's tainted variables with every tainted token that
	// appears in its snippet. The classifier only sees the dangerous
	// argument; the slicer knows the whole file.
	for i := range sinks {
		for _, token := range tokenize(sinks[i].CodeSnippet) {
			if bs.IsTainted(token) {
				sinks[i].TaintedVars = append(sinks[i].TaintedVars, token)
			}
		}
	}

	var flows []core.CrossFileFlow
	var attackPath []core.CrossFilePathNode

	for _, call := range findCalls(tree.RootNode(), source) {
		symbol := e.indexer.ResolveSymbol(filePath, call.name)
		if symbol == nil || symbol.FilePath == filePath || symbol.Kind != indexer.SymbolFunction {
			continue
		}

		taintedArgs := e.taintedArguments(call, bs)
		if len(taintedArgs) == 0 {
			continue
		}

		flows = append(flows, core.CrossFileFlow{
			CallerFile:     filePath,
			CallerLine:     call.line,
			FunctionCalled: call.name,
			CalleeFile:     symbol.FilePath,
			CalleeLine:     symbol.Line,
			TaintedArgs:    taintedArgs,
		})

		attackPath = append(attackPath, core.CrossFilePathNode{
			FilePath: filePath,
			Line:     call.line,
			Code:     fmt.Sprintf("%s(...)", call.name),
			NodeType: "CROSS_FILE_CALL",
		})

		// Map tainted argument positions to the callee's parameter names so
		// sink reachability can require exact name equality.
		mappedParams := e.mapTaintedParams(symbol, call, bs)

		subResult, err := e.analyzeFileInternal(symbol.FilePath, depth+1)
		if err != nil {
			// A broken callee file must not abort the caller's analysis.
			continue
		}

		for _, sink := range subResult.Sinks {
			if isParameterized(sink.CodeSnippet) {
				continue
			}
			if !e.sinkReachable(sink, mappedParams, taintedArgs) {
				continue
			}
			attackPath = append(attackPath, core.CrossFilePathNode{
				FilePath: symbol.FilePath,
				Line:     sink.Line,
				Code:     sink.CodeSnippet,
				NodeType: string(sink.Type),
				IsSink:   true,
			})
		}

		// Stitch deeper hops: the callee's own cross-file edges and the
		// sinks it already vetted in files beyond it.
		for _, node := range subResult.AttackPath {
			if node.NodeType == "CROSS_FILE_CALL" || (node.IsSink && node.FilePath != symbol.FilePath) {
				attackPath = append(attackPath, node)
			}
		}

		flows = append(flows, subResult.Flows...)
	}

	// Local sinks terminate the path.
	for _, sink := range sinks {
		attackPath = append(attackPath, core.CrossFilePathNode{
			FilePath: filePath,
			Line:     sink.Line,
			Code:     sink.CodeSnippet,
			NodeType: string(sink.Type),
			IsSink:   true,
		})
	}

	return &core.CrossFileResult{
		Sinks:      sinks,
		Flows:      flows,
		AttackPath: attackPath,
	}, nil
}

// taintedArguments returns the identifiers in any argument position the
// caller's slicer reports as tainted. An argument whose expression is itself
// a direct source (input(), request.args.get(...)) taints its identifiers
// even when no tainted variable is involved.
func (e *Engine) taintedArguments(call *callSite, bs *slicer.BackwardSlicer) []string {
	var tainted []string
	for position, identifiers := range call.argIdentifiers {
		direct := e.isDirectSource(call.argTexts[position])
		for _, name := range identifiers {
			if direct || bs.IsTainted(name) {
				tainted = append(tainted, name)
			}
		}
	}
	return tainted
}

// isDirectSource reports whether an argument expression textually matches a
// catalog entry-point pattern.
func (e *Engine) isDirectSource(argText string) bool {
	for _, entryPoint := range e.catalog.EntryPoints() {
		if strings.Contains(argText, entryPoint) {
			return true
		}
	}
	return false
}

// mapTaintedParams resolves the callee's parameter list and returns the set
// of parameter names bound to a tainted argument position.
func (e *Engine) mapTaintedParams(symbol *indexer.Symbol, call *callSite, bs *slicer.BackwardSlicer) map[string]bool {
	params := e.functionParams(symbol)
	mapped := make(map[string]bool)

	for position, identifiers := range call.argIdentifiers {
		if position >= len(params) {
			break
		}
		if e.isDirectSource(call.argTexts[position]) {
			mapped[params[position]] = true
			continue
		}
		for _, name := range identifiers {
			if bs.IsTainted(name) {
				mapped[params[position]] = true
				break
			}
		}
	}

	return mapped
}

// sinkReachable decides whether a callee sink is fed by the caller's tainted
// arguments.
func (e *Engine) sinkReachable(sink core.Sink, mappedParams map[string]bool, taintedArgs []string) bool {
	if e.looseArgMatch {
		// Legacy behavior: substring match in either direction.
		for _, arg := range taintedArgs {
			for _, tv := range sink.TaintedVars {
				if strings.Contains(tv, arg) || strings.Contains(arg, tv) {
					return true
				}
			}
		}
		return false
	}

	for _, tv := range sink.TaintedVars {
		if mappedParams[tv] {
			return true
		}
	}
	return false
}

// functionParams extracts the ordered parameter names of the function a
// symbol points at.
func (e *Engine) functionParams(symbol *indexer.Symbol) []string {
	source, err := os.ReadFile(symbol.FilePath)
	if err != nil {
		return nil
	}
	tree, err := e.parser.Parse(source)
	if err != nil {
		return nil
	}
	defer tree.Close()

	defNode := findFunctionDefinition(tree.RootNode(), source, symbol.Name, symbol.Line)
	if defNode == nil {
		return nil
	}

	paramsNode := defNode.ChildByFieldName("parameters")
	if paramsNode == nil {
		return nil
	}

	var params []string
	for i := 0; i < int(paramsNode.NamedChildCount()); i++ {
		param := paramsNode.NamedChild(i)
		switch param.Type() {
		case "identifier":
			params = append(params, param.Content(source))
		case "typed_parameter":
			if name := firstIdentifier(param, source); name != "" {
				params = append(params, name)
			}
		case "default_parameter", "typed_default_parameter":
			if nameNode := param.ChildByFieldName("name"); nameNode != nil {
				params = append(params, nameNode.Content(source))
			}
		case "list_splat_pattern", "dictionary_splat_pattern":
			if inner := param.NamedChild(0); inner != nil {
				params = append(params, inner.Content(source))
			}
		}
	}
	return params
}

// findFunctionDefinition locates a function_definition node by name. The
// first definition with that name in tree order is returned; a definition
// nested inside it that starts at the indexed line takes precedence, but
// later sibling definitions are not searched for a line match.
func findFunctionDefinition(node *sitter.Node, source []byte, name string, line int) *sitter.Node {
	if node == nil {
		return nil
	}

	if node.Type() == "function_definition" {
		nameNode := node.ChildByFieldName("name")
		if nameNode != nil && nameNode.Content(source) == name {
			if int(node.StartPoint().Row)+1 == line {
				return node
			}
			// Search this definition's body for an exact line match;
			// otherwise return this one.
			if candidate := findFunctionDefinitionIn(node, source, name, line); candidate != nil {
				return candidate
			}
			return node
		}
	}

	return findFunctionDefinitionIn(node, source, name, line)
}

func findFunctionDefinitionIn(node *sitter.Node, source []byte, name string, line int) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := findFunctionDefinition(node.Child(i), source, name, line); found != nil {
			return found
		}
	}
	return nil
}

// findCalls enumerates every call expression in the tree with the identifier
// names of each positional argument.
func findCalls(node *sitter.Node, source []byte) []*callSite {
	var calls []*callSite
	walkCalls(node, source, &calls)
	return calls
}

func walkCalls(node *sitter.Node, source []byte, calls *[]*callSite) {
	if node == nil {
		return
	}

	if node.Type() == "call" {
		if funcNode := node.ChildByFieldName("function"); funcNode != nil {
			call := &callSite{
				name: funcNode.Content(source),
				line: int(node.StartPoint().Row) + 1,
			}
			if argsNode := node.ChildByFieldName("arguments"); argsNode != nil {
				for i := 0; i < int(argsNode.NamedChildCount()); i++ {
					arg := argsNode.NamedChild(i)
					var identifiers []string
					collectIdentifiers(arg, source, &identifiers)
					call.argIdentifiers = append(call.argIdentifiers, identifiers)
					call.argTexts = append(call.argTexts, arg.Content(source))
				}
			}
			*calls = append(*calls, call)
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		walkCalls(node.Child(i), source, calls)
	}
}

func collectIdentifiers(node *sitter.Node, source []byte, identifiers *[]string) {
	if node == nil {
		return
	}
	if node.Type() == "identifier" {
		*identifiers = append(*identifiers, node.Content(source))
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectIdentifiers(node.Child(i), source, identifiers)
	}
}

func firstIdentifier(node *sitter.Node, source []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "identifier" {
			return child.Content(source)
		}
	}
	return ""
}

// isParameterized recognizes the safe parameterized-query call shape inside a
// sink snippet. Kept as a textual check at this layer: the callee's own
// classifier already suppresses structurally parameterized calls.
func isParameterized(snippet string) bool {
	return strings.Contains(snippet, ", params") ||
		strings.Contains(snippet, ", (") ||
		strings.Contains(snippet, "?")
}

// tokenize splits a snippet on non-identifier characters.
func tokenize(snippet string) []string {
	return strings.FieldsFunc(snippet, func(r rune) bool {
		return !isIdentifierRune(r)
	})
}

func isIdentifierRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		return true
	}
	return false
}
