package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	sarif "github.com/owenrumney/go-sarif/v2/sarif"
	"github.com/cris160/exploit-prover/analysis/core"
)

// SARIFFormatter formats analysis results as SARIF 2.1.0 for CI/CD and code
// scanning integrations.
type SARIFFormatter struct {
	writer io.Writer
}

// NewSARIFFormatter creates a SARIF formatter writing to stdout.
func NewSARIFFormatter() *SARIFFormatter {
	return &SARIFFormatter{writer: os.Stdout}
}

// NewSARIFFormatterWithWriter creates a formatter with a custom writer.
func NewSARIFFormatterWithWriter(w io.Writer) *SARIFFormatter {
	return &SARIFFormatter{writer: w}
}

// Format renders one analysis result for a single file.
// The attack path becomes a SARIF code flow attached to each sink result.
func (f *SARIFFormatter) Format(result *core.AnalysisResult, filePath string) error {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return err
	}

	run := sarif.NewRunWithInformationURI("Exploit Prover", "https://github.com/cris160/exploit-prover")

	f.buildRules(result.Sinks, run)

	for _, sink := range result.Sinks {
		f.buildResult(&sink, result, filePath, run)
	}

	report.AddRun(run)

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func (f *SARIFFormatter) buildRules(sinks []core.Sink, run *sarif.Run) {
	seen := make(map[string]bool)

	for _, sink := range sinks {
		ruleID := ruleIDForSink(sink.Type)
		if seen[ruleID] {
			continue
		}
		seen[ruleID] = true

		rule := run.AddRule(ruleID).
			WithDescription(sink.Type.Description()).
			WithName(string(sink.Type)).
			WithHelpURI("https://github.com/cris160/exploit-prover")

		rule.WithDefaultConfiguration(sarif.NewReportingConfiguration().WithLevel("error"))

		props := make(map[string]interface{})
		props["tags"] = []string{"security"}
		props["security-severity"] = securityScore(sink.Type)
		rule.WithProperties(props)
	}
}

func (f *SARIFFormatter) buildResult(sink *core.Sink, analysis *core.AnalysisResult, filePath string, run *sarif.Run) {
	message := sink.Type.Description()
	if analysis.Status == core.StatusExploitable {
		message += " (verdict: exploitable)"
	}

	result := run.CreateResultForRule(ruleIDForSink(sink.Type)).
		WithMessage(sarif.NewTextMessage(message))

	region := sarif.NewRegion().WithStartLine(sink.Line)
	if sink.Column > 0 {
		region.WithStartColumn(sink.Column + 1)
	}

	result.AddLocation(sarif.NewLocation().
		WithPhysicalLocation(
			sarif.NewPhysicalLocation().
				WithArtifactLocation(sarif.NewArtifactLocation().WithUri(filePath)).
				WithRegion(region),
		))

	f.addCodeFlow(sink, analysis.AttackPath, filePath, result)
}

// addCodeFlow turns the attack path into a SARIF thread flow ending at the sink.
func (f *SARIFFormatter) addCodeFlow(sink *core.Sink, path []core.PathNode, filePath string, result *sarif.Result) {
	if len(path) == 0 {
		return
	}

	var locations []*sarif.ThreadFlowLocation
	for _, node := range path {
		location := sarif.NewLocation().
			WithPhysicalLocation(
				sarif.NewPhysicalLocation().
					WithArtifactLocation(sarif.NewArtifactLocation().WithUri(filePath)).
					WithRegion(sarif.NewRegion().WithStartLine(node.Line)),
			).
			WithMessage(sarif.NewTextMessage(node.Description))
		locations = append(locations, sarif.NewThreadFlowLocation().WithLocation(location))
	}

	threadFlow := sarif.NewThreadFlow().WithLocations(locations)

	flowMsg := fmt.Sprintf("Taint flow reaching sink at line %d", sink.Line)
	codeFlow := sarif.NewCodeFlow().
		WithThreadFlows([]*sarif.ThreadFlow{threadFlow}).
		WithMessage(sarif.NewTextMessage(flowMsg))

	result.WithCodeFlows([]*sarif.CodeFlow{codeFlow})
}

// ruleIDForSink maps a sink kind to a stable SARIF rule id.
func ruleIDForSink(sinkType core.SinkType) string {
	return "EP-" + strings.ToUpper(string(sinkType))
}

// securityScore maps sink kinds to GitHub security-severity scores.
func securityScore(sinkType core.SinkType) string {
	switch sinkType {
	case core.SinkSQLInjection, core.SinkCommandInjection, core.SinkCodeInjection, core.SinkDeserialization:
		return "9.0"
	case core.SinkPathTraversal, core.SinkSSRF, core.SinkXXE:
		return "7.0"
	default:
		return "5.0"
	}
}
