package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zhubert/gemini-acp/agent"
	"github.com/zhubert/gemini-acp/config"
	"github.com/zhubert/gemini-acp/logger"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gemini-acp",
	Short: "Agent Client Protocol adapter for the Gemini CLI",
	Long: `gemini-acp exposes the Gemini CLI as an Agent Client Protocol (ACP) agent.

Editors start it as a subprocess and speak ACP over stdin/stdout. Each prompt
runs the Gemini CLI once in the session's working directory and streams its
output back as agent message chunks.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
	RunE:              runServe,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "",
		"config file (default: <config dir>/config.yaml)")
	flags.String("executable", "", "Gemini CLI command or path (default \"gemini\")")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("permission-mode", "", "permission mode: default, auto_edit or yolo")
	flags.String("log-file", "", "log file path")

	// Bind flags to viper
	_ = viper.BindPFlag("executable", flags.Lookup("executable"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("permission_mode", flags.Lookup("permission-mode"))
	_ = viper.BindPFlag("log_file", flags.Lookup("log-file"))

	rootCmd.AddCommand(doctorCmd, configCmd, logsCmd, versionCmd)
}

// initConfig loads the configuration and opens the log file.
func initConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	logger.SetDebug(cfg.Debug)
	if err := logger.Init(cfg.LogFile); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Get().Info("gemini-acp starting", "version", version, "config", viper.ConfigFileUsed())
	if err := agent.Serve(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		logger.Get().Error("serve failed", "error", err)
		return err
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
