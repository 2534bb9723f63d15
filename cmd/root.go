// Package cmd implements the otus CLI using the cobra framework, the same
// structure as the teacher's cmd/root.go, trimmed to the commands this
// repo's supervisor-driven process model actually needs.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	rulesFile  string
	pidFile    string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "otus",
	Short: "Otus - edge packet capture and traffic analysis agent",
	Long: `Otus captures live network traffic, classifies it by application
protocol and source region, and persists the result to a document store for
later aggregation and query.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and runs it. Called
// once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/otus/config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVarP(&rulesFile, "rules", "r", "/etc/otus/rules.yaml", "rules document path")
	rootCmd.PersistentFlags().StringVar(&pidFile, "pid-file", "/var/run/otus.pid", "pid file path for stop/status")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(validateCmd)
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
