package cmd

import (
	"fmt"

	"hitomidl/internal/buildinfo"

	"github.com/spf13/cobra"
)

// version has no update-check call against a release API: unlike the
// teacher's own distribution, this engine has no published release feed of
// its own to poll, so there is nothing for such a call to check against.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version info",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Println("Version:", buildinfo.Version)
		fmt.Println("Commit:", buildinfo.Commit)
		fmt.Println("Build date:", buildinfo.Date)
	},
}
