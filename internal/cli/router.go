package cli

import (
	"github.com/spf13/cobra"

	"github.com/vietddude/foreman/internal/control"
)

var routerCmd = &cobra.Command{
	Use:   "router",
	Short: "Run only the result router",
	Run: func(cmd *cobra.Command, args []string) {
		runApp(control.Options{RunRouter: true})
	},
}

func init() {
	rootCmd.AddCommand(routerCmd)
}
