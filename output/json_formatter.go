package output

import (
	"encoding/json"
	"io"
	"os"

	"github.com/cris160/exploit-prover/analysis/core"
)

// JSONFormatter renders analysis results as indented JSON.
type JSONFormatter struct {
	writer io.Writer
}

// NewJSONFormatter creates a JSON formatter writing to stdout.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{writer: os.Stdout}
}

// NewJSONFormatterWithWriter creates a formatter with a custom writer.
func NewJSONFormatterWithWriter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{writer: w}
}

// Format renders one analysis result.
func (f *JSONFormatter) Format(result *core.AnalysisResult) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// FormatCrossFile renders a cross-file analysis result.
func (f *JSONFormatter) FormatCrossFile(result *core.CrossFileResult) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
