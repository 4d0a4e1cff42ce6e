package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/cris160/exploit-prover/analysis/crossfile"
	"github.com/cris160/exploit-prover/analytics"
	"github.com/cris160/exploit-prover/output"
	"github.com/cris160/exploit-prover/ruleset"
	"github.com/spf13/cobra"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Cross-file taint analysis across a project",
	Long: `Analyze a file with cross-file taint tracking.

The workspace is indexed first (function and class symbols, imports); call
sites whose tainted arguments cross a file boundary are followed into the
callee up to the recursion depth bound.

Examples:
  # Analyze main.py with the whole project indexed
  exploit-prover workspace --file main.py --project .

  # Legacy substring argument matching
  exploit-prover workspace --file main.py --project . --loose-match

  # JSON output
  exploit-prover workspace --file main.py --project . --output json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		filePath, _ := cmd.Flags().GetString("file")
		projectPath, _ := cmd.Flags().GetString("project")
		outputFormat, _ := cmd.Flags().GetString("output")
		catalogPath, _ := cmd.Flags().GetString("catalog")
		maxDepth, _ := cmd.Flags().GetInt("max-depth")
		looseMatch, _ := cmd.Flags().GetBool("loose-match")
		verbose, _ := cmd.Flags().GetBool("verbose")
		debug, _ := cmd.Flags().GetBool("debug")

		if filePath == "" {
			return fmt.Errorf("--file flag is required")
		}
		if projectPath == "" {
			return fmt.Errorf("--project flag is required")
		}

		analytics.ReportEvent(analytics.WorkspaceStarted)

		verbosity := output.VerbosityDefault
		if debug {
			verbosity = output.VerbosityDebug
		} else if verbose {
			verbosity = output.VerbosityVerbose
		}
		logger := output.NewLogger(verbosity)

		absProject, err := filepath.Abs(projectPath)
		if err != nil {
			return fmt.Errorf("failed to resolve project path: %w", err)
		}
		absFile, err := filepath.Abs(filePath)
		if err != nil {
			return fmt.Errorf("failed to resolve file path: %w", err)
		}

		catalog, err := ruleset.LoadCatalog(catalogPath)
		if err != nil {
			analytics.ReportEvent(analytics.WorkspaceFailed)
			return err
		}

		engine := crossfile.New(absProject, catalog, crossfile.Options{
			MaxDepth:      maxDepth,
			LooseArgMatch: looseMatch,
		})

		logger.StartProgress("Indexing workspace", -1)
		fileCount, err := engine.IndexWorkspace()
		logger.FinishProgress()
		if err != nil {
			analytics.ReportEvent(analytics.WorkspaceFailed)
			return fmt.Errorf("failed to index workspace: %w", err)
		}
		logger.Statistic("Files indexed: %d", fileCount)
		logger.Statistic("Symbols found: %d", engine.Indexer().SymbolCount())

		stopTiming := logger.StartTiming("cross-file analysis")
		result, err := engine.AnalyzeFile(absFile)
		stopTiming()
		if err != nil {
			analytics.ReportEvent(analytics.WorkspaceFailed)
			return err
		}
		logger.PrintTimingSummary()

		switch outputFormat {
		case "json":
			err = output.NewJSONFormatter().FormatCrossFile(result)
		default:
			err = output.NewTextFormatter().FormatCrossFile(result)
		}
		if err != nil {
			return err
		}

		analytics.ReportEventWithProperties(analytics.WorkspaceCompleted, map[string]interface{}{
			"sink_count": len(result.Sinks),
			"flow_count": len(result.Flows),
		})
		return nil
	},
}

func init() {
	workspaceCmd.Flags().String("file", "", "Python file to analyze")
	workspaceCmd.Flags().String("project", "", "Workspace root to index")
	workspaceCmd.Flags().String("output", "text", "Output format: text or json")
	workspaceCmd.Flags().String("catalog", "", "YAML file extending the sink/source catalog")
	workspaceCmd.Flags().Int("max-depth", 0, "Cross-file recursion depth bound (default 3)")
	workspaceCmd.Flags().Bool("loose-match", false, "Use legacy substring argument matching")
	rootCmd.AddCommand(workspaceCmd)
}
