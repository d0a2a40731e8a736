package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openboard/dartlink/internal/board"
	"github.com/openboard/dartlink/internal/bus"
	"github.com/openboard/dartlink/internal/throw"
	"github.com/openboard/dartlink/pkg/config"
)

// streamCmd represents the stream command
var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Connect to a board and stream decoded throws",
	Long: `Connect to the nearest dartboard and print every decoded throw.

Each line shows the dart number within the turn, the segment label, and
the score. Pressing the board's reset button clears the turn counter.
With --led, each hit is acknowledged with a green LED flash.`,
	RunE: runStream,
}

var (
	streamTimeout time.Duration
	streamPrefix  string
	streamWarmup  time.Duration
	streamLED     bool
	streamVerbose bool
)

func init() {
	streamCmd.Flags().DurationVar(&streamTimeout, "timeout", 30*time.Second, "Connection timeout")
	streamCmd.Flags().StringVar(&streamPrefix, "name-prefix", "", "Advertised-name prefix to match (default from config)")
	streamCmd.Flags().DurationVar(&streamWarmup, "warmup", throw.DefaultWarmup, "Ignore frames for this long after connecting")
	streamCmd.Flags().BoolVar(&streamLED, "led", false, "Flash the board LEDs on every hit")
	streamCmd.Flags().BoolVar(&streamVerbose, "verbose", false, "Enable debug logging")
}

func runStream(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if streamPrefix == "" {
		streamPrefix = cfg.NamePrefix
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
		cancel()
	}()

	events := bus.New()
	b := board.New(board.Options{
		ConnectTimeout: streamTimeout,
		NamePrefix:     streamPrefix,
		Warmup:         streamWarmup,
	}, events, logger)

	lost := make(chan struct{})
	unsubState := events.SubscribeState(func(s board.State) {
		if s == board.StateDisconnected {
			close(lost)
		}
	})
	defer unsubState()

	scoreColor := color.New(color.FgHiWhite, color.Bold)
	unsubThrows := events.SubscribeThrows(func(th *throw.Throw) {
		printThrow(scoreColor, th)
		if streamLED {
			b.FlashLEDs(board.LEDHit)
		}
	})
	defer unsubThrows()

	progress := startProgress(fmt.Sprintf("Connecting to %s*", streamPrefix), streamTimeout)
	err = b.Connect(ctx)
	progress.Stop()
	if err != nil {
		return err
	}
	defer func() { _ = b.Disconnect() }()

	fmt.Println("Connected. Throw some darts, Ctrl+C to stop...")

	select {
	case <-ctx.Done():
		return nil
	case <-lost:
		return ErrConnectionLost
	}
}

func printThrow(scoreColor *color.Color, th *throw.Throw) {
	fmt.Printf("dart %d/3  %-6s %s\n",
		th.DartIndex, th.SegmentLabel, scoreColor.Sprintf("%3d", th.Score))
}
