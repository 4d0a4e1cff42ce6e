package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cris160/exploit-prover/analysis/core"
)

// TextFormatter renders analysis results as human-readable text.
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a text formatter writing to stdout.
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{writer: os.Stdout}
}

// NewTextFormatterWithWriter creates a formatter with a custom writer.
func NewTextFormatterWithWriter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// Format renders one analysis result.
func (f *TextFormatter) Format(result *core.AnalysisResult) error {
	fmt.Fprintf(f.writer, "Status: %s\n", result.Status)
	fmt.Fprintf(f.writer, "Analysis time: %dms\n\n", result.AnalysisTimeMs)

	if len(result.Sinks) > 0 {
		fmt.Fprintf(f.writer, "Sinks (%d):\n", len(result.Sinks))
		for _, sink := range result.Sinks {
			fmt.Fprintf(f.writer, "  [%s] line %d, col %d: %s\n",
				sink.Type, sink.Line, sink.Column, strings.TrimSpace(sink.CodeSnippet))
		}
		fmt.Fprintln(f.writer)
	}

	if len(result.AttackPath) > 0 {
		fmt.Fprintln(f.writer, "Attack path:")
		for _, node := range result.AttackPath {
			fmt.Fprintf(f.writer, "  line %-4d %-55s %s\n", node.Line, node.Code, node.Description)
		}
		fmt.Fprintln(f.writer)
	}

	fmt.Fprintln(f.writer, result.Explanation)
	return nil
}

// FormatCrossFile renders a cross-file analysis result.
func (f *TextFormatter) FormatCrossFile(result *core.CrossFileResult) error {
	fmt.Fprintf(f.writer, "Sinks found: %d\n", len(result.Sinks))
	fmt.Fprintf(f.writer, "Cross-file flows: %d\n\n", len(result.Flows))

	for _, flow := range result.Flows {
		fmt.Fprintf(f.writer, "Flow: %s:%d -> %s:%d via %s(%s)\n",
			flow.CallerFile, flow.CallerLine,
			flow.CalleeFile, flow.CalleeLine,
			flow.FunctionCalled, strings.Join(flow.TaintedArgs, ", "))
	}
	if len(result.Flows) > 0 {
		fmt.Fprintln(f.writer)
	}

	if len(result.AttackPath) > 0 {
		fmt.Fprintln(f.writer, "Attack path:")
		for _, node := range result.AttackPath {
			marker := " "
			if node.IsSink {
				marker = "!"
			}
			fmt.Fprintf(f.writer, "  %s %s:%d [%s] %s\n",
				marker, node.FilePath, node.Line, node.NodeType, strings.TrimSpace(node.Code))
		}
	}

	return nil
}
