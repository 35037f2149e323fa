package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gravwell/x32mgr/internal/config"
	"github.com/gravwell/x32mgr/internal/discover"
)

var (
	discoverSubnet string
	discoverWindow time.Duration
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Broadcast /xinfo on a subnet and print every console that answers",
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().StringVar(&discoverSubnet, "subnet", "", "broadcast address to probe, e.g. 192.168.1.255 (required)")
	discoverCmd.Flags().DurationVar(&discoverWindow, "window", 0, "collection window (defaults to X32MGR_DISCOVER_TIMEOUT_S)")
	if err := discoverCmd.MarkFlagRequired("subnet"); err != nil {
		panic(err)
	}
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	window := discoverWindow
	if window == 0 {
		window = cfg.DiscoverTimeout
	}

	consoles, err := discover.Sweep(discoverSubnet, cfg.ConsolePort, window)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	if len(consoles) == 0 {
		fmt.Println("no consoles answered")
		return nil
	}
	for _, c := range consoles {
		fmt.Printf("%s\t%s\t%s\tfirmware %s\n", c.IP, c.Name, c.Model, c.Firmware)
	}
	return nil
}
