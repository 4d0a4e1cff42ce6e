package slicer

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/cris160/exploit-prover/ruleset"
)

// ValueSourceKind describes where a variable's value comes from.
type ValueSourceKind string

const (
	// ValueLiteral is a constant value (safe).
	ValueLiteral ValueSourceKind = "literal"

	// ValueUserInput is attacker-controlled data (request accessors, argv, input()).
	ValueUserInput ValueSourceKind = "user_input"

	// ValueDerived depends on other variables.
	ValueDerived ValueSourceKind = "derived"

	// ValueParameter is a function parameter binding.
	ValueParameter ValueSourceKind = "parameter"

	// ValueUnknown could not be classified.
	ValueUnknown ValueSourceKind = "unknown"
)

// VariableDefinition records a single assignment or binding event.
// Multiple definitions per name are retained in source order.
type VariableDefinition struct {
	Name string
	Line int // 1-indexed

	Source ValueSourceKind

	// SourceExpr is the matched entry-point pattern when Source is ValueUserInput.
	SourceExpr string

	// Dependencies are identifier names read by the right-hand side.
	// For augmented assignments the target itself appears here, modeling the
	// read-then-write semantic of x += y.
	Dependencies []string
}

// BackwardSlicer collects variable definitions and taint seeds from one file
// and answers reachability queries from sinks back to entry points.
//
// A slicer instance is built per analysis and is not safe for concurrent use.
type BackwardSlicer struct {
	definitions map[string][]VariableDefinition
	tainted     map[string]bool
	catalog     *ruleset.Catalog
}

// New creates an empty slicer using the given catalog's entry-point patterns.
// A nil catalog falls back to the compiled-in defaults.
func New(catalog *ruleset.Catalog) *BackwardSlicer {
	if catalog == nil {
		catalog = ruleset.DefaultCatalog()
	}
	return &BackwardSlicer{
		definitions: make(map[string][]VariableDefinition),
		tainted:     make(map[string]bool),
		catalog:     catalog,
	}
}

// Analyze walks the tree, collects all definitions and seeds taint.
func (bs *BackwardSlicer) Analyze(source []byte, tree *sitter.Tree) {
	// Pre-seed the bare request object so direct request.x reads are tainted
	// even without an assignment.
	bs.tainted["request"] = true

	bs.collectDefinitions(tree.RootNode(), source)
	bs.identifyEntryPoints()
}

// Definitions returns the recorded definitions for a variable, in source order.
func (bs *BackwardSlicer) Definitions(name string) []VariableDefinition {
	return bs.definitions[name]
}

// DefinitionCount returns the number of distinct defined names.
func (bs *BackwardSlicer) DefinitionCount() int {
	return len(bs.definitions)
}

// IsTainted reports whether a variable is transitively derived from a taint
// source. The walk is cycle-safe: a visited set keyed by name guarantees
// termination on arbitrary dependency graphs.
func (bs *BackwardSlicer) IsTainted(name string) bool {
	return bs.isTaintedRecursive(name, make(map[string]bool))
}

func (bs *BackwardSlicer) isTaintedRecursive(name string, visited map[string]bool) bool {
	if visited[name] {
		return false
	}
	visited[name] = true

	if bs.tainted[name] {
		return true
	}

	for _, def := range bs.definitions[name] {
		switch def.Source {
		case ValueUserInput, ValueParameter:
			return true
		case ValueDerived:
			for _, dep := range def.Dependencies {
				if bs.isTaintedRecursive(dep, visited) {
					return true
				}
			}
		}
	}

	return false
}

// collectDefinitions walks the tree recording assignments and parameter bindings.
func (bs *BackwardSlicer) collectDefinitions(node *sitter.Node, source []byte) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "assignment", "augmented_assignment":
		bs.processAssignment(node, source)
	case "function_definition", "lambda":
		bs.processFunctionParams(node, source)
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		bs.collectDefinitions(node.Child(i), source)
	}
}

// processAssignment records definitions for every identifier target on the
// left-hand side, supporting tuple and list unpacking.
func (bs *BackwardSlicer) processAssignment(node *sitter.Node, source []byte) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	if left == nil || right == nil {
		return
	}

	// "a, b = tup" defines both a and b.
	targets := extractIdentifiers(left, source)
	valueText := right.Content(source)
	valueSource, sourceExpr, initialDeps := bs.analyzeValue(right, source, valueText)

	for _, name := range targets {
		deps := make([]string, len(initialDeps))
		copy(deps, initialDeps)

		// cmd += input reads the previous cmd, so the target depends on itself.
		if node.Type() == "augmented_assignment" {
			deps = append(deps, name)
		}

		bs.definitions[name] = append(bs.definitions[name], VariableDefinition{
			Name:         name,
			Line:         int(node.StartPoint().Row) + 1,
			Source:       valueSource,
			SourceExpr:   sourceExpr,
			Dependencies: deps,
		})
	}
}

// processFunctionParams binds every parameter of a function or lambda.
// Parameters are the externally-callable attack surface, so they are later
// seeded as tainted.
func (bs *BackwardSlicer) processFunctionParams(node *sitter.Node, source []byte) {
	params := node.ChildByFieldName("parameters")
	if params == nil {
		return
	}

	for i := 0; i < int(params.ChildCount()); i++ {
		param := params.Child(i)

		var nameNode *sitter.Node
		switch param.Type() {
		case "identifier":
			nameNode = param
		case "typed_parameter":
			// "x: int" — the name is the first identifier child.
			nameNode = firstIdentifierChild(param)
		case "default_parameter", "typed_default_parameter":
			nameNode = param.ChildByFieldName("name")
		case "list_splat_pattern", "dictionary_splat_pattern":
			// *args and **kwargs
			nameNode = param.NamedChild(0)
		}

		if nameNode == nil {
			continue
		}

		name := nameNode.Content(source)
		bs.definitions[name] = append(bs.definitions[name], VariableDefinition{
			Name:   name,
			Line:   int(param.StartPoint().Row) + 1,
			Source: ValueParameter,
		})
	}
}

// analyzeValue classifies a right-hand side expression.
func (bs *BackwardSlicer) analyzeValue(node *sitter.Node, source []byte, valueText string) (ValueSourceKind, string, []string) {
	for _, entryPoint := range bs.catalog.EntryPoints() {
		if strings.Contains(valueText, entryPoint) {
			return ValueUserInput, entryPoint, nil
		}
	}

	switch node.Type() {
	case "integer", "float", "true", "false", "none":
		return ValueLiteral, "", nil
	}

	deps := extractIdentifiers(node, source)
	if len(deps) == 0 {
		return ValueLiteral, "", nil
	}
	return ValueDerived, "", deps
}

// identifyEntryPoints marks every UserInput and Parameter definition target
// as directly tainted.
func (bs *BackwardSlicer) identifyEntryPoints() {
	for name, defs := range bs.definitions {
		for _, def := range defs {
			switch def.Source {
			case ValueUserInput, ValueParameter:
				bs.tainted[name] = true
			}
		}
	}
}

// extractIdentifiers collects all identifier references in an expression.
// Attribute chains contribute their full dotted text as one name in addition
// to their components — taint sources are recognized by textual prefix, so
// dotted names stay opaque.
func extractIdentifiers(node *sitter.Node, source []byte) []string {
	var ids []string

	switch node.Type() {
	case "identifier":
		ids = append(ids, node.Content(source))
	case "attribute":
		ids = append(ids, node.Content(source))
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		ids = append(ids, extractIdentifiers(node.Child(i), source)...)
	}

	return ids
}

func firstIdentifierChild(node *sitter.Node) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "identifier" {
			return child
		}
	}
	return nil
}
