package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gravwell/x32mgr/internal/config"
	"github.com/gravwell/x32mgr/internal/importer"
)

var (
	importIP   string
	importPort int
	importFile string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a .scn/.bak file onto a console",
	RunE:  runImport,
}

func init() {
	importCmd.Flags().StringVar(&importIP, "ip", "", "console IP address (overrides X32MGR_CONSOLE_IP)")
	importCmd.Flags().IntVar(&importPort, "port", 0, "console OSC port (overrides X32MGR_CONSOLE_PORT)")
	importCmd.Flags().StringVar(&importFile, "file", "", "scene/backup file to load (required)")
	if err := importCmd.MarkFlagRequired("file"); err != nil {
		panic(err)
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if importIP != "" {
		cfg.ConsoleIP = importIP
	}
	if importPort != 0 {
		cfg.ConsolePort = importPort
	}

	data, err := os.ReadFile(importFile)
	if err != nil {
		return fmt.Errorf("reading %s: %w", importFile, err)
	}

	rt, err := buildRuntime(cfg, rootLogger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.sess.Open(cfg.ListenPort + 1); err != nil {
		return fmt.Errorf("opening console session: %w", err)
	}

	liveFirmware := probeFirmware(rt)

	policy := importer.Policy{InterSendGap: cfg.InterSendGap, LiveConsoleProbe: cfg.DiscoverTimeout}
	progress := func(completed, total int, label string) {
		fmt.Fprintf(os.Stderr, "\r%s: %d/%d", label, completed, total)
	}

	summary, err := importer.Import(context.Background(), rt.snd, rt.corr, rt.bus, data, liveFirmware, policy, progress)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	rootLogger.Infof("loaded %d parameters in %s (%d errors)", summary.ParameterCount, summary.Duration, summary.ErrorCount)
	return nil
}

// probeFirmware asks the console what it's running so importer.Import can
// warn on a major-version mismatch; a failed probe just disables the
// check rather than blocking the load.
func probeFirmware(rt *runtime) string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := rt.corr.Request(ctx, "/xinfo", nil, 2*time.Second)
	if err != nil || len(reply) < 4 {
		return ""
	}
	return reply[3].S
}
