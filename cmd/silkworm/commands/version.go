package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gurukamath/silkworm/version"
)

// VersionCmd prints the build's semantic version and exits.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}
