package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ctxkeep/ctxkeep/internal/config"
	"github.com/ctxkeep/ctxkeep/pkg/logging"
)

var (
	// Version information set by main.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// Date is the build date.
	Date = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ctxkeep",
	Short: "Keep codebase context documents current",
	Long: `ctxkeep maintains four JSON context documents describing a codebase
(project, stack, architecture, constraints) under .ctxkeep/ and keeps them
current as the codebase changes.

Documents are regenerated by scanning the codebase and reconciled with any
manual edits through field-level provenance tracking: values a human has
edited are preserved, values only the scanner maintains follow the code.`,
	PersistentPreRunE: setup,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute adds all child commands to the root command and runs it.
func Execute(version, commit, date string) {
	Version = version
	Commit = commit
	Date = date

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("root", ".", "project root directory")
	rootCmd.PersistentFlags().String("context-dir", ".ctxkeep", "context directory name under the root")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (console, json)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format (table, json, yaml)")
}

// setup runs before every command: .env, viper binding, log level.
func setup(cmd *cobra.Command, _ []string) error {
	// Missing .env files are fine.
	_ = godotenv.Load()

	config.Init()
	if err := viper.BindPFlag(config.KeyRoot, cmd.Flags().Lookup("root")); err != nil {
		return err
	}
	if err := viper.BindPFlag(config.KeyContextDir, cmd.Flags().Lookup("context-dir")); err != nil {
		return err
	}
	if err := viper.BindPFlag(config.KeyLogLevel, cmd.Flags().Lookup("log-level")); err != nil {
		return err
	}
	if err := viper.BindPFlag(config.KeyLogFormat, cmd.Flags().Lookup("log-format")); err != nil {
		return err
	}
	if err := viper.BindPFlag(config.KeyOutput, cmd.Flags().Lookup("output")); err != nil {
		return err
	}

	switch viper.GetString(config.KeyLogFormat) {
	case "json":
		logging.SetDefault(logging.NewJSON(nil))
	case "console":
		logging.SetDefault(logging.NewConsole())
	}
	logging.SetLevel(viper.GetString(config.KeyLogLevel))
	return nil
}
