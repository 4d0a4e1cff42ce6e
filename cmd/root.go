package cmd

import (
	"github.com/cris160/exploit-prover/analytics"
	"github.com/spf13/cobra"
)

var (
	Version   = "0.3.0"
	GitCommit = "HEAD"
)

var rootCmd = &cobra.Command{
	Use:   "exploit-prover",
	Short: "Static exploit prover for Python | taint slicing + SMT witness generation",
	Long: `Exploit Prover - static vulnerability exploit prover for Python.

Detects dangerous sinks (SQL execution, shell commands, eval, pickle, file
access, outbound requests, XML parsing), slices backward to attacker-controlled
sources, and for SQL injection produces a mathematical witness via an SMT
solver over the theory of strings.`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		disableMetrics, _ := cmd.Flags().GetBool("disable-metrics")
		analytics.LoadEnvFile()
		analytics.Init(disableMetrics)
		analytics.SetVersion(Version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().Bool("disable-metrics", false, "Disable metrics collection")
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose output")
	rootCmd.PersistentFlags().Bool("debug", false, "Debug output")
	rootCmd.PersistentFlags().Bool("no-banner", false, "Disable startup banner")
}
