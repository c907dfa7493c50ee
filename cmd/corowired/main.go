// Command corowired is a demonstration host process for the corort
// runtime: it loads a config file, wires up logging and metrics, spawns
// one scheduler/reactor pair per configured worker, and on worker 0
// starts a TCP echo listener and a small HTTP/1.x server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "corowired: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "corowired",
	Short:   "Demonstration host for the corort cooperative coroutine runtime",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("corowired %s (%s)\n", Version, Commit))
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the corowired version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("corowired %s (%s)\n", Version, Commit)
		return nil
	},
}
