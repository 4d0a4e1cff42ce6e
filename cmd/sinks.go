package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/cris160/exploit-prover/analysis/parser"
	"github.com/cris160/exploit-prover/analytics"
	"github.com/cris160/exploit-prover/ruleset"
	"github.com/spf13/cobra"
)

var sinksCmd = &cobra.Command{
	Use:   "sinks <file.py>",
	Short: "Quick scan: list dangerous sinks without taint analysis",
	Long: `Run only the sink classifier and list every dangerous call site.

No slicing or solving happens; this is the fast editor-gutter scan.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalogPath, _ := cmd.Flags().GetString("catalog")

		catalog, err := ruleset.LoadCatalog(catalogPath)
		if err != nil {
			return err
		}

		source, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		p := parser.New()
		finder := parser.NewSinkFinder(p, catalog)
		sinks, err := finder.FindSinks(source)
		if err != nil {
			return err
		}

		if len(sinks) == 0 {
			fmt.Println("No dangerous function calls (sinks) detected.")
		}
		for _, sink := range sinks {
			fmt.Printf("%s:%d:%d [%s] %s\n",
				args[0], sink.Line, sink.Column, sink.Type, strings.TrimSpace(sink.CodeSnippet))
		}

		analytics.ReportEventWithProperties(analytics.SinkScanCompleted, map[string]interface{}{
			"sink_count": len(sinks),
		})
		return nil
	},
}

func init() {
	sinksCmd.Flags().String("catalog", "", "YAML file extending the sink/source catalog")
	rootCmd.AddCommand(sinksCmd)
}
