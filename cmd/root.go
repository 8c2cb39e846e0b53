package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hitomidl",
	Short: "Headless gallery search, download, and export engine.",
	Long: `hitomidl resolves galleries, searches the tag index, downloads pages
with bounded concurrency, and exports finished galleries to CBZ or PDF.

The engine is driven entirely through the serve command's line-delimited
JSON command/event bridge; this CLI wraps that engine for scripting and
headless operation.`,
}

func init() {
	initRootFlags()
	initServeFlags()

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
