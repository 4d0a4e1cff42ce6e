package constraint

import (
	"fmt"
	"strings"

	"github.com/cris160/exploit-prover/analysis/core"
)

// injectionFragment is the SQL injection witness the solver must place inside
// the sink expression. Part of the external SMT-LIB contract.
const injectionFragment = `' OR '1'='1`

// Generator translates an attack path into an SMT-LIB script over the
// quantifier-free theory of strings.
//
// GenerateSMT is a pure function of its inputs: the same path and sink
// variable always produce the same script bytes.
type Generator struct{}

// NewGenerator creates a constraint generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// GenerateSMT converts a sequence of path nodes into an SMT-LIB script.
//
// Each path node whose code contains an assignment to a valid name contributes
// a string constant declaration. An equality assertion is added only when the
// right-hand side is an f-string, a string literal, or another declared name;
// other right-hand sides leave the name unconstrained. The goal asserts that the
// sink variable contains the injection fragment; a satisfying model is a
// concrete attacker input.
func (g *Generator) GenerateSMT(nodes []core.PathNode, sinkVar string) string {
	var script strings.Builder
	script.WriteString("(set-logic QF_S)\n")

	var declared []string
	for _, node := range nodes {
		lhs, _, ok := strings.Cut(node.Code, "=")
		if !ok {
			continue
		}
		varName := strings.TrimSpace(lhs)
		if isValidVarName(varName) && !containsString(declared, varName) {
			fmt.Fprintf(&script, "(declare-const %s String)\n", varName)
			declared = append(declared, varName)
		}
	}

	for _, node := range nodes {
		lhs, rhs, ok := strings.Cut(node.Code, "=")
		if !ok {
			continue
		}
		varName := strings.TrimSpace(lhs)
		expr := strings.TrimSpace(rhs)

		switch {
		case strings.HasPrefix(expr, "f") && (strings.Contains(expr, `"`) || strings.Contains(expr, "'")):
			fmt.Fprintf(&script, "(assert (= %s %s))\n", varName, g.parseFString(expr))
		case strings.HasPrefix(expr, `"`) || strings.HasPrefix(expr, "'"):
			clean := strings.Trim(expr, `f"'`)
			fmt.Fprintf(&script, "(assert (= %s \"%s\"))\n", varName, clean)
		case containsString(declared, expr):
			fmt.Fprintf(&script, "(assert (= %s %s))\n", varName, expr)
		}
	}

	target := sinkVar
	if !containsString(declared, sinkVar) && len(declared) > 0 {
		target = declared[len(declared)-1]
	}

	fmt.Fprintf(&script, "(assert (str.contains %s \"%s\"))\n", target, injectionFragment)
	script.WriteString("(check-sat)\n")
	script.WriteString("(get-model)\n")

	return script.String()
}

// parseFString compiles a Python f-string into an SMT string concatenation.
//
// f"SELECT {col} FROM {table}" becomes
// (str.++ "SELECT " col " FROM " table).
func (g *Generator) parseFString(expr string) string {
	content := strings.TrimPrefix(expr, "f")
	content = strings.Trim(content, `"'`)

	parts := strings.Split(content, "{")
	if len(parts) <= 1 {
		return fmt.Sprintf("\"%s\"", content)
	}

	var concat strings.Builder
	concat.WriteString("(str.++")

	if parts[0] != "" {
		fmt.Fprintf(&concat, " \"%s\"", parts[0])
	}

	for _, part := range parts[1:] {
		variable, literal, ok := strings.Cut(part, "}")
		if !ok {
			continue
		}
		fmt.Fprintf(&concat, " %s", strings.TrimSpace(variable))
		if literal != "" {
			fmt.Fprintf(&concat, " \"%s\"", literal)
		}
	}

	concat.WriteString(")")
	return concat.String()
}

// isValidVarName accepts SMT-safe identifiers: non-empty, not starting with a
// digit, alphanumeric or underscore throughout.
func isValidVarName(name string) bool {
	if name == "" {
		return false
	}
	if name[0] >= '0' && name[0] <= '9' {
		return false
	}
	for _, r := range name {
		if !isIdentifierRune(r) {
			return false
		}
	}
	return true
}

func isIdentifierRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		return true
	}
	return false
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
