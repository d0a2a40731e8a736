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
	"github.com/openboard/dartlink/internal/cork"
	"github.com/openboard/dartlink/internal/throw"
	"github.com/openboard/dartlink/pkg/config"
)

// corkCmd represents the cork command
var corkCmd = &cobra.Command{
	Use:   "cork <player1> <player2>",
	Short: "Run a cork round (throw for first) on a live board",
	Long: `Run a two-player cork round against a connected board.

Each player throws one dart at the bull. Inner singles and bulls count
at face value; everything else scores zero. Both players throw at the
same board in turn order; results stay hidden until both darts are in,
and an exact tie re-arms the round for a rethrow.

Example:
  dartlink cork alice bob`,
	Args: cobra.ExactArgs(2),
	RunE: runCork,
}

var (
	corkTimeout time.Duration
	corkVerbose bool
)

func init() {
	corkCmd.Flags().DurationVar(&corkTimeout, "timeout", 30*time.Second, "Connection timeout")
	corkCmd.Flags().BoolVar(&corkVerbose, "verbose", false, "Enable debug logging")
}

func runCork(cmd *cobra.Command, args []string) error {
	player1, player2 := args[0], args[1]

	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
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
		cancel()
	}()

	winnerColor := color.New(color.FgGreen, color.Bold)

	decided := make(chan string, 1)
	var round *cork.Round
	round = cork.NewRound(player1, player2, cork.Callbacks{
		OnRevealed: func() {
			fmt.Printf("Reveal: %s threw %s, %s threw %s\n",
				player1, round.DisplayFor(1, 1), player2, round.DisplayFor(2, 2))
		},
		OnTie: func() {
			fmt.Println("Tied! Rethrow - both players go again.")
		},
		OnDecided: func(winnerID string) {
			decided <- winnerID
		},
	}, logger)

	events := bus.New()
	b := board.New(board.Options{
		ConnectTimeout: corkTimeout,
		NamePrefix:     cfg.NamePrefix,
		Warmup:         cfg.Warmup,
	}, events, logger)

	lost := make(chan struct{})
	unsubState := events.SubscribeState(func(s board.State) {
		if s == board.StateDisconnected {
			close(lost)
		}
	})
	defer unsubState()

	// Both players share the physical board, so every throw belongs to
	// whoever the round is currently waiting for.
	unsubThrows := events.SubscribeThrows(func(th *throw.Throw) {
		player := round.CurrentThrower()
		if player == 0 {
			return
		}
		round.HandleThrow(player, th)
		if own := round.DisplayFor(player, player); own != "" {
			fmt.Printf("%s threw: %s\n", args[player-1], own)
		}
	})
	defer unsubThrows()

	progress := startProgress(fmt.Sprintf("Connecting to %s*", cfg.NamePrefix), corkTimeout)
	err = b.Connect(ctx)
	progress.Stop()
	if err != nil {
		return err
	}
	defer func() { _ = b.Disconnect() }()

	round.Start()
	defer round.Cancel()
	fmt.Printf("Cork round: %s vs %s. %s throws first.\n", player1, player2, player1)

	select {
	case <-ctx.Done():
		return nil
	case <-lost:
		return ErrConnectionLost
	case winnerID := <-decided:
		fmt.Printf("%s wins the cork and throws first in the match.\n",
			winnerColor.Sprint(winnerID))
		return nil
	}
}
