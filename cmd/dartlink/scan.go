package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openboard/dartlink/internal/board"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby dartboards",
	Long: `Scan for Bluetooth LE dartboards in the vicinity.

Devices advertising the board service UUID are always listed; other
devices are listed when their advertised name matches the board name
prefix. Results are sorted by signal strength.`,
	RunE: runBoardScan,
}

var (
	scanDuration   time.Duration
	scanNamePrefix string
	scanVerbose    bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
	scanCmd.Flags().StringVar(&scanNamePrefix, "name-prefix", board.DefaultNamePrefix, "Advertised-name prefix to match")
	scanCmd.Flags().BoolVar(&scanVerbose, "verbose", false, "Enable debug logging")
}

func runBoardScan(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	progress := startProgress("Scanning for boards", scanDuration)
	defer progress.Stop()

	boards, err := board.Scan(ctx, scanDuration, scanNamePrefix, logger)
	progress.Stop()
	if err != nil {
		return err
	}

	return displayBoards(boards)
}

func displayBoards(boards []board.FoundBoard) error {
	if len(boards) == 0 {
		fmt.Println("No boards discovered")
		return nil
	}

	svcMark := color.New(color.FgGreen).Sprint("yes")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tBOARD SERVICE")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, b := range boards {
		name := b.Name
		if name == "" {
			name = "(unnamed)"
		}
		service := "-"
		if b.HasService {
			service = svcMark
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", name, b.Address, b.RSSI, service)
	}
	return w.Flush()
}
