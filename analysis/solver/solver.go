package solver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// harnessScript feeds an SMT-LIB script from stdin into the z3 Python
// bindings and prints SAT with a model, UNSAT, UNKNOWN, or an ERROR line.
//
// The stdout contract is stable: when the solver decides, the first line is
// exactly "SAT" or "UNSAT"; on SAT the model follows on subsequent lines.
const harnessScript = `
import sys
import io

sys.stdin = io.TextIOWrapper(sys.stdin.buffer, encoding='utf-8')

try:
    from z3 import *
except ImportError:
    print("ERROR: z3-solver not installed")
    sys.exit(1)

try:
    smt_content = sys.stdin.read()

    s = Solver()
    assertions = parse_smt2_string(smt_content)
    s.add(assertions)

    result = s.check()

    if result == sat:
        print("SAT")
        print(s.model())
    elif result == unsat:
        print("UNSAT")
    else:
        print("UNKNOWN")

except Exception as e:
    print(f"ERROR: {e}")
`

// defaultTimeout bounds the solver subprocess. The solver call is the only
// blocking external operation in an analysis, so a runaway solve must not
// hang the host.
const defaultTimeout = 30 * time.Second

// Solver drives an external string-capable SMT solver as a child process.
type Solver struct {
	pythonBin string
	timeout   time.Duration
}

// New creates a solver driver. The Python interpreter can be overridden with
// the EXPLOITPROVER_PYTHON environment variable.
func New() *Solver {
	pythonBin := os.Getenv("EXPLOITPROVER_PYTHON")
	if pythonBin == "" {
		pythonBin = "python3"
	}
	return &Solver{
		pythonBin: pythonBin,
		timeout:   defaultTimeout,
	}
}

// NewWithTimeout creates a solver driver with a custom wall-clock bound.
func NewWithTimeout(timeout time.Duration) *Solver {
	s := New()
	s.timeout = timeout
	return s
}

// Solve submits an SMT-LIB script to the solver over stdin.
//
// Returns:
//   - (model, true, nil) when the script is satisfiable
//   - ("", false, nil) when it is unsatisfiable
//   - an error for a missing solver, timeout, or unexpected output
func (s *Solver) Solve(smtScript string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.pythonBin, "-c", harnessScript)
	cmd.Stdin = strings.NewReader(smtScript)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", false, fmt.Errorf("solver timed out after %s", s.timeout)
		}
		return "", false, fmt.Errorf("failed to run solver: %w\nstderr: %s", err, stderr.String())
	}

	output := stdout.String()
	if strings.Contains(output, "ERROR:") {
		return "", false, fmt.Errorf("solver error: %s", strings.TrimSpace(output))
	}

	lines := strings.Split(output, "\n")
	if len(lines) == 0 {
		return "", false, fmt.Errorf("solver produced no output")
	}

	switch strings.TrimSpace(lines[0]) {
	case "SAT":
		model := strings.TrimSpace(strings.Join(lines[1:], "\n"))
		return model, true, nil
	case "UNSAT":
		return "", false, nil
	default:
		return "", false, fmt.Errorf("solver returned unexpected output: %s", strings.TrimSpace(output))
	}
}
