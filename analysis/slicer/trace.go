package slicer

import (
	"fmt"
	"strings"

	"github.com/cris160/exploit-prover/analysis/core"
)

// visitedPair keys the trace's cycle guard. Line dedup alone is not enough:
// two definitions of different names can share a line, and the same name can
// be redefined across lines.
type visitedPair struct {
	name string
	line int
}

// TraceToEntryPoint walks backward from a sink through the definition graph
// and builds the attack path in backward order.
//
// The returned path starts with the sink node itself, followed by the
// definitions that feed it (derivations before the entry points they read),
// from the first tainted variable that reaches the sink. Returns nil when no tainted variable reaches the sink.
func (bs *BackwardSlicer) TraceToEntryPoint(sink *core.Sink, source string) []core.PathNode {
	path := []core.PathNode{{
		Line:        sink.Line,
		Code:        sink.CodeSnippet,
		Description: fmt.Sprintf("SINK: %s", sink.Type.Description()),
	}}

	lines := strings.Split(source, "\n")

	for _, name := range sink.TaintedVars {
		if bs.IsTainted(name) {
			visited := make(map[visitedPair]bool)
			bs.buildTrace(name, lines, visited, &path)
			return path
		}
	}

	return nil
}

// buildTrace appends path nodes for every definition of name, then recurses
// into tainted dependencies. Nodes already shown for a line are skipped for
// display; the visited pair set provides the actual cycle safety.
func (bs *BackwardSlicer) buildTrace(name string, lines []string, visited map[visitedPair]bool, path *[]core.PathNode) {
	for _, def := range bs.definitions[name] {
		pair := visitedPair{name: name, line: def.Line}
		if visited[pair] {
			continue
		}
		visited[pair] = true

		code := fmt.Sprintf("%s = ...", name)
		if def.Line > 0 && def.Line <= len(lines) {
			code = strings.TrimSpace(lines[def.Line-1])
		}

		var description string
		switch def.Source {
		case ValueUserInput:
			description = fmt.Sprintf("ENTRY: User input from %s", def.SourceExpr)
		case ValueParameter:
			description = "ENTRY: Function parameter (potentially user-controlled)"
		case ValueDerived:
			description = "FLOW: Variable derivation"
		default:
			description = "FLOW: Data transformation"
		}

		if !pathContainsLine(*path, def.Line) {
			*path = append(*path, core.PathNode{
				Line:        def.Line,
				Code:        code,
				Description: description,
			})
		}

		for _, dep := range def.Dependencies {
			if bs.IsTainted(dep) {
				bs.buildTrace(dep, lines, visited, path)
			}
		}
	}
}

func pathContainsLine(path []core.PathNode, line int) bool {
	for _, node := range path {
		if node.Line == line {
			return true
		}
	}
	return false
}
