package cmd

import (
	"fmt"
	"os"

	"github.com/cris160/exploit-prover/analysis/core"
	"github.com/cris160/exploit-prover/analysis/prover"
	"github.com/cris160/exploit-prover/analytics"
	"github.com/cris160/exploit-prover/output"
	"github.com/cris160/exploit-prover/ruleset"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.py>",
	Short: "Analyze a Python file for exploitable vulnerabilities",
	Long: `Analyze a single Python file.

The analyzer finds dangerous sinks, slices backward from each sink to
attacker-controlled sources, and for SQL injection asks the string solver for
a concrete input that injects into the query.

Examples:
  # Full file analysis
  exploit-prover analyze app.py

  # Focus on the sink near a specific line
  exploit-prover analyze app.py --line 42

  # JSON or SARIF output
  exploit-prover analyze app.py --output json
  exploit-prover analyze app.py --output sarif

  # Fail the build when the verdict is Exploitable
  exploit-prover analyze app.py --fail-on-exploitable

  # Report Inconclusive instead of Exploitable when the solver is missing
  exploit-prover analyze app.py --solver-fallback inconclusive`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetLine, _ := cmd.Flags().GetInt("line")
		outputFormat, _ := cmd.Flags().GetString("output")
		catalogPath, _ := cmd.Flags().GetString("catalog")
		solverFallback, _ := cmd.Flags().GetString("solver-fallback")
		failOnExploitable, _ := cmd.Flags().GetBool("fail-on-exploitable")
		verbose, _ := cmd.Flags().GetBool("verbose")
		debug, _ := cmd.Flags().GetBool("debug")

		analytics.ReportEventWithProperties(analytics.AnalyzeStarted, map[string]interface{}{
			"output_format": outputFormat,
			"has_line":      targetLine > 0,
		})

		verbosity := output.VerbosityDefault
		if debug {
			verbosity = output.VerbosityDebug
		} else if verbose {
			verbosity = output.VerbosityVerbose
		}
		logger := output.NewLogger(verbosity)

		noBanner, _ := cmd.Flags().GetBool("no-banner")
		if output.ShouldShowBanner(logger.IsTTY(), noBanner) {
			output.PrintBanner(logger.GetWriter(), Version)
		}

		if outputFormat != "" && outputFormat != "text" && outputFormat != "json" && outputFormat != "sarif" {
			return fmt.Errorf("--output must be 'text', 'json', or 'sarif'")
		}

		fallback := prover.FallbackExploitable
		switch solverFallback {
		case "", "exploitable":
		case "inconclusive":
			fallback = prover.FallbackInconclusive
		default:
			return fmt.Errorf("--solver-fallback must be 'exploitable' or 'inconclusive'")
		}

		catalog, err := ruleset.LoadCatalog(catalogPath)
		if err != nil {
			analytics.ReportEvent(analytics.AnalyzeFailed)
			return err
		}

		filePath := args[0]
		source, err := os.ReadFile(filePath)
		if err != nil {
			analytics.ReportEvent(analytics.AnalyzeFailed)
			return fmt.Errorf("failed to read %s: %w", filePath, err)
		}

		stopTiming := logger.StartTiming("analysis")
		p := prover.NewWithOptions(prover.Options{
			Catalog:       catalog,
			OnSolverError: fallback,
		})

		var result core.AnalysisResult
		if targetLine > 0 {
			result = p.AnalyzeAtLine(string(source), targetLine)
		} else {
			result = p.Analyze(string(source))
		}
		stopTiming()

		logger.Statistic("Sinks found: %d", len(result.Sinks))
		logger.PrintTimingSummary()

		if err := renderResult(&result, filePath, outputFormat); err != nil {
			return err
		}

		analytics.ReportEventWithProperties(analytics.AnalyzeCompleted, map[string]interface{}{
			"status":     string(result.Status),
			"sink_count": len(result.Sinks),
		})

		exitCode := output.DetermineExitCode(&result, failOnExploitable, false)
		if exitCode != output.ExitCodeSuccess {
			os.Exit(int(exitCode))
		}
		return nil
	},
}

func renderResult(result *core.AnalysisResult, filePath, format string) error {
	switch format {
	case "json":
		return output.NewJSONFormatter().Format(result)
	case "sarif":
		return output.NewSARIFFormatter().Format(result, filePath)
	default:
		return output.NewTextFormatter().Format(result)
	}
}

func init() {
	analyzeCmd.Flags().Int("line", 0, "Focus analysis on sinks near this line")
	analyzeCmd.Flags().String("output", "text", "Output format: text, json, or sarif")
	analyzeCmd.Flags().String("catalog", "", "YAML file extending the sink/source catalog")
	analyzeCmd.Flags().String("solver-fallback", "exploitable", "Verdict on solver error: exploitable or inconclusive")
	analyzeCmd.Flags().Bool("fail-on-exploitable", false, "Exit 1 when the verdict is Exploitable")
	rootCmd.AddCommand(analyzeCmd)
}
