package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhubert/gemini-acp/logger"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show or clear log files",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), logger.Path())
		return nil
	},
}

var logsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete gemini-acp log files",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Close()
		n, err := logger.ClearLogs()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d log file(s)\n", n)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "gemini-acp %s\n", version)
	},
}

func init() {
	logsCmd.AddCommand(logsClearCmd)
}
