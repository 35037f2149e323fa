package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gravwell/x32mgr/internal/xlog"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "x32mgrd",
	Short: "Scene manager daemon and CLI for the Behringer X32",
	Long: `x32mgrd talks OSC to a Behringer X32 (or M32) console over UDP.
Run "serve" to start the HTTP/WebSocket daemon, or use the one-shot
export/import/discover subcommands against a console directly.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := logLevel
		if !cmd.Flags().Changed("log-level") {
			if envLevel := os.Getenv("X32MGR_LOG_LEVEL"); envLevel != "" {
				level = envLevel
			}
		}
		lvl, err := xlog.LevelFromString(level)
		if err != nil {
			return err
		}
		return rootLogger.SetLevel(lvl)
	},
}

// rootLogger is shared by every subcommand; it writes to stderr so
// subcommands that print output to stdout (export, discover) keep that
// stream clean.
var rootLogger = xlog.New(os.Stderr, "x32mgrd")

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "log level: OFF, DEBUG, INFO, WARN, ERROR, CRITICAL")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportSceneCmd)
	rootCmd.AddCommand(exportBackupCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(discoverCmd)
}
