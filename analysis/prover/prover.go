package prover

import (
	"fmt"
	"time"

	"github.com/cris160/exploit-prover/analysis/constraint"
	"github.com/cris160/exploit-prover/analysis/core"
	"github.com/cris160/exploit-prover/analysis/parser"
	"github.com/cris160/exploit-prover/analysis/slicer"
	"github.com/cris160/exploit-prover/analysis/solver"
	"github.com/cris160/exploit-prover/ruleset"
)

// SolverFallback selects how a solver error (missing binary, timeout,
// unparseable output) is counted for a SQL sink that taint analysis already
// reached.
type SolverFallback int

const (
	// FallbackExploitable counts the sink as exploitable on solver error.
	// The taint path exists; only the mathematical witness is missing.
	FallbackExploitable SolverFallback = iota

	// FallbackInconclusive reports Inconclusive instead of claiming
	// exploitability without a witness.
	FallbackInconclusive
)

// Options configures a Prover.
type Options struct {
	// Catalog overrides the sink/source catalog. Nil uses the defaults.
	Catalog *ruleset.Catalog

	// OnSolverError selects the fallback policy for solver failures.
	OnSolverError SolverFallback
}

// Prover is the analysis orchestrator: it runs sink detection, backward
// slicing and path tracing, verifies SQL injection paths with the string
// solver, and assembles the final report.
//
// Each Prover owns its parser and solver state; concurrent analyses must use
// separate instances.
type Prover struct {
	parser        *parser.Parser
	sinkFinder    *parser.SinkFinder
	generator     *constraint.Generator
	solver        *solver.Solver
	catalog       *ruleset.Catalog
	onSolverError SolverFallback
}

// New creates a prover with default options.
func New() *Prover {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a prover with the given options.
func NewWithOptions(opts Options) *Prover {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = ruleset.DefaultCatalog()
	}
	p := parser.New()
	return &Prover{
		parser:        p,
		sinkFinder:    parser.NewSinkFinder(p, catalog),
		generator:     constraint.NewGenerator(),
		solver:        solver.New(),
		catalog:       catalog,
		onSolverError: opts.OnSolverError,
	}
}

// Analyze runs the full pipeline on a Python source string.
func (p *Prover) Analyze(source string) core.AnalysisResult {
	start := time.Now()

	// Step 1: find sinks.
	sinks, err := p.sinkFinder.FindSinks([]byte(source))
	if err != nil {
		return core.AnalysisResult{
			Status:         core.StatusInconclusive,
			Explanation:    fmt.Sprintf("Parse error: %v", err),
			AnalysisTimeMs: time.Since(start).Milliseconds(),
		}
	}

	if len(sinks) == 0 {
		return core.AnalysisResult{
			Success:        true,
			Status:         core.StatusNoSinksFound,
			Explanation:    "No dangerous function calls (sinks) detected in this code.",
			AnalysisTimeMs: time.Since(start).Milliseconds(),
		}
	}

	// Step 2: parse again for the slicer. The tree is not shared between
	// the classifier and the slicer.
	tree, err := p.parser.Parse([]byte(source))
	if err != nil {
		return core.AnalysisResult{
			Status:         core.StatusInconclusive,
			Sinks:          sinks,
			Explanation:    fmt.Sprintf("Failed to build AST: %v", err),
			AnalysisTimeMs: time.Since(start).Milliseconds(),
		}
	}
	defer tree.Close()

	// Step 3: backward slice from each sink.
	bs := slicer.New(p.catalog)
	bs.Analyze([]byte(source), tree)

	var exploitableSinks []core.Sink
	var attackPaths []core.PathNode
	var proofModel string
	solverErrored := false

	for _, sink := range sinks {
		path := bs.TraceToEntryPoint(&sink, source)
		if path == nil {
			continue
		}

		// SQL injection paths get a mathematical witness; other sink kinds
		// are exploitable by the path's existence alone.
		verified := true
		if sink.Type == core.SinkSQLInjection {
			script := p.generator.GenerateSMT(path, sink.CodeSnippet)
			model, sat, solveErr := p.solver.Solve(script)
			switch {
			case solveErr != nil:
				solverErrored = true
				verified = p.onSolverError == FallbackExploitable
			case sat:
				proofModel = model
			default:
				verified = false // UNSAT: provably not injectable
			}
		}

		if verified {
			exploitableSinks = append(exploitableSinks, sink)
			attackPaths = append(attackPaths, path...)
		}
	}

	// Step 4: assemble the report.
	if len(exploitableSinks) > 0 {
		primary := exploitableSinks[0]
		payload := GeneratePayload(&primary)

		explanation := fmt.Sprintf(
			"EXPLOITABLE: %s detected at line %d. User input flows to this sink without proper sanitization.\n\nProof-of-Concept Payload:\n%s",
			primary.Type.Description(), primary.Line, payload)

		if proofModel != "" {
			explanation += "\n\nMathematical Proof (Solver Model):\n"
			explanation += "--------------------------------\n"
			explanation += proofModel
		}

		return core.AnalysisResult{
			Success:        true,
			Status:         core.StatusExploitable,
			Sinks:          exploitableSinks,
			Payload:        payload,
			Explanation:    explanation,
			AttackPath:     attackPaths,
			AnalysisTimeMs: time.Since(start).Milliseconds(),
		}
	}

	if solverErrored && p.onSolverError == FallbackInconclusive {
		return core.AnalysisResult{
			Success:        true,
			Status:         core.StatusInconclusive,
			Sinks:          sinks,
			Explanation:    "INCONCLUSIVE: A taint path to a SQL sink exists but the solver was unavailable to verify it.",
			AnalysisTimeMs: time.Since(start).Milliseconds(),
		}
	}

	return core.AnalysisResult{
		Success:        true,
		Status:         core.StatusSafe,
		Sinks:          sinks,
		Explanation:    "SAFE: Dangerous functions detected but no exploitable path from user input found. The code appears to be properly sanitized or uses safe patterns.",
		AnalysisTimeMs: time.Since(start).Milliseconds(),
	}
}

// AnalyzeAtLine runs Analyze and retains only sinks within five lines of the
// target, matching editor-driven "explain this line" requests.
func (p *Prover) AnalyzeAtLine(source string, targetLine int) core.AnalysisResult {
	result := p.Analyze(source)

	filtered := result.Sinks[:0]
	for _, sink := range result.Sinks {
		delta := sink.Line - targetLine
		if delta < 0 {
			delta = -delta
		}
		if delta <= 5 {
			filtered = append(filtered, sink)
		}
	}
	result.Sinks = filtered

	if len(result.Sinks) == 0 {
		result.Status = core.StatusNoSinksFound
		result.Explanation = fmt.Sprintf("No dangerous function calls found near line %d.", targetLine)
	}

	return result
}
