package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gravwell/x32mgr/internal/bulk"
	"github.com/gravwell/x32mgr/internal/config"
	"github.com/gravwell/x32mgr/internal/exporter"
)

var (
	exportIP    string
	exportPort  int
	exportName  string
	exportNotes string
	exportOut   string
)

func addExportFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&exportIP, "ip", "", "console IP address (overrides X32MGR_CONSOLE_IP)")
	cmd.Flags().IntVar(&exportPort, "port", 0, "console OSC port (overrides X32MGR_CONSOLE_PORT)")
	cmd.Flags().StringVar(&exportName, "name", "export", "scene name stamped in the file header")
	cmd.Flags().StringVar(&exportNotes, "notes", "", "scene notes stamped in the file header")
	cmd.Flags().StringVar(&exportOut, "out", "", "output file path (defaults to stdout)")
}

var exportSceneCmd = &cobra.Command{
	Use:   "export-scene",
	Short: "Export the current scene's channel/bus/matrix state to a .scn file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd, false)
	},
}

var exportBackupCmd = &cobra.Command{
	Use:   "export-backup",
	Short: "Export the full console state to a .bak file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd, true)
	},
}

func init() {
	addExportFlags(exportSceneCmd)
	addExportFlags(exportBackupCmd)
}

func runExport(cmd *cobra.Command, full bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if exportIP != "" {
		cfg.ConsoleIP = exportIP
	}
	if exportPort != 0 {
		cfg.ConsolePort = exportPort
	}

	rt, err := buildRuntime(cfg, rootLogger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.sess.Open(cfg.ListenPort + 1); err != nil {
		return fmt.Errorf("opening console session: %w", err)
	}

	policy := bulk.Policy{
		PerRequestTimeout: cfg.PerRequestTimeout,
		MaxAttempts:       cfg.MaxAttempts,
		InflightWindow:    cfg.InflightWindow,
		InterSendGap:      cfg.InterSendGap,
		ProgressCadence:   cfg.ProgressCadence,
	}

	progress := func(completed, total int, label string) {
		fmt.Fprintf(os.Stderr, "\r%s: %d/%d", label, completed, total)
	}

	var (
		data    []byte
		summary exporter.Summary
	)
	if full {
		data, summary, err = exporter.ExportConsoleBackup(context.Background(), rt.corr, exportName, exportNotes, policy, progress)
	} else {
		data, summary, err = exporter.ExportScene(context.Background(), rt.corr, exportName, exportNotes, policy, progress)
	}
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	rootLogger.Infof("exported %d parameters in %s (%d errors)", summary.ParameterCount, summary.Duration, summary.ErrorCount)

	if exportOut == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(exportOut, data, 0o644)
}
