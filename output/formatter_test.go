package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/cris160/exploit-prover/analysis/core"
)

func sampleResult() *core.AnalysisResult {
	return &core.AnalysisResult{
		Success: true,
		Status:  core.StatusExploitable,
		Sinks: []core.Sink{{
			Type:        core.SinkSQLInjection,
			Line:        3,
			Column:      0,
			CodeSnippet: "cursor.execute(query)",
			TaintedVars: []string{"query"},
		}},
		Payload:     "payload text",
		Explanation: "EXPLOITABLE: SQL Injection",
		AttackPath: []core.PathNode{
			{Line: 3, Code: "cursor.execute(query)", Description: "SINK: SQL Injection - User input in database query"},
			{Line: 1, Code: "user_id = request.args.get('id')", Description: "ENTRY: User input from request.args"},
		},
		AnalysisTimeMs: 12,
	}
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTextFormatterWithWriter(&buf).Format(sampleResult()))

	out := buf.String()
	assert.Contains(t, out, "Status: Exploitable")
	assert.Contains(t, out, "SqlInjection")
	assert.Contains(t, out, "cursor.execute(query)")
	assert.Contains(t, out, "ENTRY: User input from request.args")
	assert.Contains(t, out, "EXPLOITABLE: SQL Injection")
}

func TestTextFormatterCrossFile(t *testing.T) {
	result := &core.CrossFileResult{
		Sinks: []core.Sink{{Type: core.SinkSQLInjection, Line: 2, CodeSnippet: "cursor.execute(data)"}},
		Flows: []core.CrossFileFlow{{
			CallerFile:     "main.py",
			CallerLine:     3,
			FunctionCalled: "run_query",
			CalleeFile:     "utils.py",
			CalleeLine:     1,
			TaintedArgs:    []string{"input"},
		}},
		AttackPath: []core.CrossFilePathNode{
			{FilePath: "main.py", Line: 3, Code: "run_query(...)", NodeType: "CROSS_FILE_CALL"},
			{FilePath: "utils.py", Line: 2, Code: "cursor.execute(data)", NodeType: "SqlInjection", IsSink: true},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, NewTextFormatterWithWriter(&buf).FormatCrossFile(result))

	out := buf.String()
	assert.Contains(t, out, "Cross-file flows: 1")
	assert.Contains(t, out, "main.py:3 -> utils.py:1 via run_query(input)")
	assert.Contains(t, out, "CROSS_FILE_CALL")
}

func TestJSONFormatterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONFormatterWithWriter(&buf).Format(sampleResult()))

	var decoded core.AnalysisResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, *sampleResult(), decoded)
}

func TestSARIFFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewSARIFFormatterWithWriter(&buf).Format(sampleResult(), "app.py"))

	out := buf.String()
	assert.Contains(t, out, `"version": "2.1.0"`)
	assert.Contains(t, out, "Exploit Prover")
	assert.Contains(t, out, "EP-SQLINJECTION")
	assert.Contains(t, out, "app.py")
	assert.Contains(t, out, "codeFlows")

	// Valid JSON overall.
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
}

func TestCompactBanner(t *testing.T) {
	banner := CompactBanner("1.0.0")
	assert.True(t, strings.HasPrefix(banner, "Exploit Prover v1.0.0"))
}

func TestShouldShowBanner(t *testing.T) {
	assert.False(t, ShouldShowBanner(true, true))
	assert.False(t, ShouldShowBanner(false, false))
	assert.True(t, ShouldShowBanner(true, false))
}
