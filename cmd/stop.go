package cmd

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal a running otus process to shut down",
	Long:  "Reads the pid file written by start and sends SIGTERM, letting the running process stop its pipeline and exit cleanly; packets still queued at that point are discarded.",
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := readPIDFile(pidFile)
		if err != nil {
			return err
		}
		if !processAlive(pid) {
			removePIDFile(pidFile)
			return fmt.Errorf("no running otus process for pid %d", pid)
		}
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			return fmt.Errorf("failed to signal pid %d: %w", pid, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent SIGTERM to pid %d\n", pid)
		return nil
	},
}
