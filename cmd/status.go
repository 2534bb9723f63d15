package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the otus process is running",
	Long:  "Checks the pid file written by start and reports liveness. Captured-packet counts are available from the running process's /metrics endpoint.",
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := readPIDFile(pidFile)
		if err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), "otus is not running (no pid file)")
			return nil
		}
		if !processAlive(pid) {
			fmt.Fprintf(cmd.OutOrStdout(), "otus is not running (stale pid file for pid %d)\n", pid)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "otus is running (pid %d)\n", pid)
		return nil
	},
}
