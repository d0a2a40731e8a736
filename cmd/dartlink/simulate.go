package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openboard/dartlink/internal/segment"
	"github.com/openboard/dartlink/internal/throw"
)

// simulateCmd represents the simulate command
var simulateCmd = &cobra.Command{
	Use:   "simulate <label>...",
	Short: "Simulate throws by segment label, no board required",
	Long: `Decode a sequence of throws from segment labels without a board.

Labels use standard dart notation: S20 (inner single), O20 (outer
single), D20 (double), T20 (triple), BULL, DBULL, MISS. RESET presses
the next-player button and clears the turn counter.

Example:
  dartlink simulate T20 T20 D12 RESET S5`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSimulate,
}

var simulateVerbose bool

func init() {
	simulateCmd.Flags().BoolVar(&simulateVerbose, "verbose", false, "Enable debug logging")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// Validate all labels before emitting anything
	codes := make([]segment.Code, 0, len(args))
	for _, label := range args {
		code, ok := segment.ByLabel(strings.ToUpper(label))
		if !ok {
			return fmt.Errorf("unknown segment label %q", label)
		}
		codes = append(codes, code)
	}

	cmd.SilenceUsage = true

	scoreColor := color.New(color.FgHiWhite, color.Bold)
	dec := throw.NewDecoder("simulator", throw.DefaultWarmup, logger)

	total := 0
	for _, code := range codes {
		th := dec.Inject(code)
		if th == nil {
			fmt.Println("--- next player ---")
			continue
		}
		total += th.Score
		printThrow(scoreColor, th)
	}

	fmt.Printf("total: %d\n", total)
	return nil
}
