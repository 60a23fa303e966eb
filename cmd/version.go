package cmd

import (
	"os"
	"runtime"

	"github.com/avpd/avpd/color"
	"github.com/avpd/avpd/constant"
	"github.com/avpd/avpd/style"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.SetOut(os.Stdout)
	versionCmd.Flags().BoolP("short", "s", false, "Display only the version string without metadata")
}

// versionCmd displays application version and platform metadata.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the application version and platform metadata",
	Run: func(cmd *cobra.Command, args []string) {
		if lo.Must(cmd.Flags().GetBool("short")) {
			cmd.Println(constant.Version)
			return
		}

		cmd.Printf(
			"%s %s %s\n",
			style.Fg(color.Purple)(constant.Avpd),
			style.Bold(constant.Version),
			style.Faint(runtime.GOOS+"/"+runtime.GOARCH),
		)
	},
}
