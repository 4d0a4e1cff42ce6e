package output

import "github.com/cris160/exploit-prover/analysis/core"

// ExitCode represents the CLI process exit code.
type ExitCode int

const (
	// ExitCodeSuccess indicates a completed analysis without a gated finding.
	ExitCodeSuccess ExitCode = 0

	// ExitCodeExploitable indicates an Exploitable verdict while
	// --fail-on-exploitable gating is active.
	ExitCodeExploitable ExitCode = 1

	// ExitCodeError indicates a configuration or execution error.
	ExitCodeError ExitCode = 2
)

// DetermineExitCode calculates the exit code for an analysis result.
//
// Precedence:
//  1. ExitCodeError when the run itself failed.
//  2. ExitCodeExploitable when gating is on and the verdict is Exploitable.
//  3. ExitCodeSuccess otherwise.
func DetermineExitCode(result *core.AnalysisResult, failOnExploitable bool, hadErrors bool) ExitCode {
	if hadErrors {
		return ExitCodeError
	}
	if failOnExploitable && result != nil && result.Status == core.StatusExploitable {
		return ExitCodeExploitable
	}
	return ExitCodeSuccess
}
