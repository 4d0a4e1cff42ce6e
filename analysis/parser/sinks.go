package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/cris160/exploit-prover/analysis/core"
	"github.com/cris160/exploit-prover/ruleset"
)

// SinkFinder walks a Python syntax tree and classifies dangerous call sites.
type SinkFinder struct {
	parser  *Parser
	catalog *ruleset.Catalog
}

// NewSinkFinder creates a sink finder using the given catalog.
// A nil catalog falls back to the compiled-in defaults.
func NewSinkFinder(p *Parser, catalog *ruleset.Catalog) *SinkFinder {
	if catalog == nil {
		catalog = ruleset.DefaultCatalog()
	}
	return &SinkFinder{parser: p, catalog: catalog}
}

// FindSinks parses the source and returns all dangerous call sites.
//
// A call is reported only when at least one identifier contributes to its
// dangerous argument position: literal-only and properly parameterized calls
// produce no sink.
func (sf *SinkFinder) FindSinks(source []byte) ([]core.Sink, error) {
	tree, err := sf.parser.Parse(source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var sinks []core.Sink
	sf.walkTree(tree.RootNode(), source, &sinks)
	return sinks, nil
}

// walkTree recursively visits every node looking for call expressions.
func (sf *SinkFinder) walkTree(node *sitter.Node, source []byte, sinks *[]core.Sink) {
	if node == nil {
		return
	}

	if node.Type() == "call" {
		if sink, ok := sf.checkCallNode(node, source); ok {
			*sinks = append(*sinks, sink)
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		sf.walkTree(node.Child(i), source, sinks)
	}
}

// checkCallNode classifies a call node and extracts its taint-relevant
// argument identifiers.
func (sf *SinkFinder) checkCallNode(node *sitter.Node, source []byte) (core.Sink, bool) {
	functionNode := node.ChildByFieldName("function")
	if functionNode == nil {
		return core.Sink{}, false
	}
	functionText := nodeText(functionNode, source)

	sinkType, ok := sf.classify(functionText)
	if !ok {
		return core.Sink{}, false
	}

	argsNode := node.ChildByFieldName("arguments")
	if argsNode == nil {
		return core.Sink{}, false
	}

	// Parameterized-query refinement: for SQL sinks only the first positional
	// argument (the query) is scanned. Variables bound in the parameters
	// position are structurally safe.
	var taintedVars []string
	if sinkType == core.SinkSQLInjection {
		taintedVars = sf.extractSQLTaintedVars(argsNode, source)
	} else {
		taintedVars = extractVariables(argsNode, source)
	}

	if len(taintedVars) == 0 {
		return core.Sink{}, false
	}

	return core.Sink{
		Type:        sinkType,
		Line:        int(node.StartPoint().Row) + 1,
		Column:      int(node.StartPoint().Column),
		CodeSnippet: nodeText(node, source),
		TaintedVars: taintedVars,
	}, true
}

// extractSQLTaintedVars scans only the query position of a SQL execution call.
func (sf *SinkFinder) extractSQLTaintedVars(argsNode *sitter.Node, source []byte) []string {
	firstArg := argsNode.NamedChild(0)
	if firstArg == nil {
		return nil
	}
	return extractVariables(firstArg, source)
}

// classify maps a callee expression to a sink type.
//
// Matching is by the dotted expression's method tail plus contextual
// substring checks, mirroring how the dangerous APIs actually appear in
// Python code. The first matching rule wins; bare eval/exec/system remain a
// final fallback.
func (sf *SinkFinder) classify(functionName string) (core.SinkType, bool) {
	methodName := functionName
	if idx := strings.LastIndex(functionName, "."); idx >= 0 {
		methodName = functionName[idx+1:]
	}

	if containsString(sf.catalog.SQLSinks, methodName) {
		if strings.Contains(functionName, "cursor") ||
			strings.Contains(functionName, "execute") ||
			strings.Contains(functionName, "db") ||
			strings.Contains(functionName, "connection") {
			return core.SinkSQLInjection, true
		}
	}

	if containsString(sf.catalog.CommandSinks, methodName) {
		if strings.Contains(functionName, "os.") ||
			strings.Contains(functionName, "subprocess") ||
			methodName == "system" ||
			methodName == "popen" ||
			methodName == "getoutput" ||
			methodName == "getstatusoutput" {
			return core.SinkCommandInjection, true
		}
	}

	if containsString(sf.catalog.CodeSinks, methodName) {
		return core.SinkCodeInjection, true
	}

	if containsString(sf.catalog.PathSinks, methodName) {
		return core.SinkPathTraversal, true
	}

	if containsString(sf.catalog.DeserializeSinks, methodName) {
		if strings.Contains(functionName, "pickle") ||
			strings.Contains(functionName, "marshal") ||
			strings.Contains(functionName, "yaml") {
			return core.SinkDeserialization, true
		}
	}

	for _, sink := range sf.catalog.SSRFSinks {
		if strings.HasSuffix(functionName, sink) {
			return core.SinkSSRF, true
		}
	}

	for _, sink := range sf.catalog.XXESinks {
		if strings.HasSuffix(functionName, sink) &&
			(strings.Contains(functionName, "lxml") || strings.Contains(functionName, "etree")) {
			return core.SinkXXE, true
		}
	}

	// ReDoS-prone regex construction is reported as code injection.
	for _, sink := range sf.catalog.RegexSinks {
		if strings.HasSuffix(functionName, sink) && strings.Contains(functionName, "re.") {
			return core.SinkCodeInjection, true
		}
	}

	switch methodName {
	case "eval", "exec":
		return core.SinkCodeInjection, true
	case "system":
		return core.SinkCommandInjection, true
	}

	return "", false
}

// extractVariables collects identifier names appearing in an expression.
//
// Attribute chains (obj.attr) contribute their full dotted text as a single
// name; f-strings and concatenated strings are searched for interpolated
// expressions; literals contribute nothing.
func extractVariables(node *sitter.Node, source []byte) []string {
	var vars []string

	switch node.Type() {
	case "identifier":
		return []string{nodeText(node, source)}
	case "attribute":
		return []string{nodeText(node, source)}
	case "string", "concatenated_string", "formatted_string":
		extractFStringVars(node, source, &vars)
		return vars
	case "integer", "float", "true", "false", "none":
		return nil
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		vars = append(vars, extractVariables(node.Child(i), source)...)
	}
	return vars
}

// extractFStringVars descends into interpolation slots of f-strings.
func extractFStringVars(node *sitter.Node, source []byte, vars *[]string) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "interpolation", "format_expression":
			*vars = append(*vars, extractVariables(child, source)...)
		case "concatenated_string", "string":
			extractFStringVars(child, source, vars)
		}
	}
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
