// Command conduit is the runtime's entrypoint: a cobra CLI exposing run,
// validate, and test subcommands over a graph configuration file. Grounded
// on the teacher's cmd/gateway/main.go for the overall lifecycle shape
// (signal context, staged shutdown with per-step timeouts) and on
// cuemby-warren's cmd/warren/main.go for the cobra root/subcommand wiring
// itself — cobra replaces the teacher's ad hoc flag.Parse dispatch because
// this CLI has three independent verbs instead of one fixed entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set via -ldflags at release build time.
	Version = "dev"

	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use: "conduit",
	Short: "Conduit is a high-throughput observability dataflow runtime",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/graph.yaml", "path to the graph configuration file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(testCmd)
}
