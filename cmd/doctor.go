package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zhubert/gemini-acp/cli"
	"github.com/zhubert/gemini-acp/exec"
	"github.com/zhubert/gemini-acp/gemini"
	"github.com/zhubert/gemini-acp/logger"
	"github.com/zhubert/gemini-acp/process"
)

var doctorClean bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the Gemini CLI is installed and authenticated",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDoctor(cmd.Context(), cmd, exec.GetDefaultExecutor())
	},
}

func runDoctor(ctx context.Context, cmd *cobra.Command, executor exec.CommandExecutor) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	results := cli.CheckAll(ctx, executor, cli.DefaultPrerequisites(cfg.Executable))
	fmt.Fprint(out, cli.FormatCheckResults(results))

	if err := cli.ValidateRequired(results); err != nil {
		return err
	}

	if _, err := gemini.CheckAuth(ctx, executor, cfg.Executable, logger.WithComponent("doctor")); err != nil {
		fmt.Fprintf(out, "\nAuthentication: ✗\n  %s\n", gemini.AuthRequiredMessage)
		return err
	}
	fmt.Fprintln(out, "\nAuthentication: ✓")

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = "(defaults)"
	}
	fmt.Fprintf(out, "\nConfig:          %s\n", configFile)
	fmt.Fprintf(out, "Permission mode: %s\n", cfg.Mode())
	fmt.Fprintf(out, "Log file:        %s\n", logger.Path())

	reportOrphans(ctx, out, executor)
	return nil
}

// reportOrphans lists Gemini CLI processes left behind by a crashed adapter and,
// with --clean, asks them to exit.
func reportOrphans(ctx context.Context, out io.Writer, executor exec.CommandExecutor) {
	log := logger.WithComponent("doctor")

	if doctorClean {
		n, err := process.CleanupOrphanedProcesses(ctx, executor, cfg.Executable, log)
		if err != nil {
			fmt.Fprintf(out, "Orphaned processes: unknown (%v)\n", err)
			return
		}
		fmt.Fprintf(out, "Orphaned processes: %d terminated\n", n)
		return
	}

	orphans, err := process.FindOrphanedGeminiProcesses(ctx, executor, cfg.Executable, log)
	if err != nil {
		fmt.Fprintf(out, "Orphaned processes: unknown (%v)\n", err)
		return
	}
	fmt.Fprintf(out, "Orphaned processes: %d\n", len(orphans))
	for _, p := range orphans {
		fmt.Fprintf(out, "  %d %s\n", p.PID, p.Command)
	}
	if len(orphans) > 0 {
		fmt.Fprintln(out, "  Run `gemini-acp doctor --clean` to terminate them.")
	}
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorClean, "clean", false, "Send SIGTERM to orphaned Gemini CLI processes")
}
