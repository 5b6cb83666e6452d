package cli

import (
	"github.com/spf13/cobra"

	"github.com/vietddude/foreman/internal/control"
)

var supervisorCmd = &cobra.Command{
	Use:   "supervisor",
	Short: "Run only the worker pool supervisor",
	Run: func(cmd *cobra.Command, args []string) {
		runApp(control.Options{RunSupervisor: true})
	},
}

func init() {
	rootCmd.AddCommand(supervisorCmd)
}
