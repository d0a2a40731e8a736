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

	"github.com/openboard/dartlink/internal/match"
	"github.com/openboard/dartlink/internal/presence"
	"github.com/openboard/dartlink/pkg/config"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <match-id> <player-id> <opponent-id>",
	Short: "Watch a match's presence channel and the leave countdown",
	Long: `Join an online match's realtime channel and track the opponent.

When the opponent's connection drops, a 60 second countdown starts; if
they do not come back the match counts as abandoned. Pressing Ctrl+C
leaves the match deliberately, which broadcasts player-left and marks
the match cancelled.

Requires the realtime endpoint (DARTLINK_REALTIME_URL or realtime_url
in the config file). The match database (DARTLINK_DATABASE_URL) is
optional; without it the cancelled status is not persisted.`,
	Args: cobra.ExactArgs(3),
	RunE: runWatch,
}

var watchVerbose bool

func init() {
	watchCmd.Flags().BoolVar(&watchVerbose, "verbose", false, "Enable debug logging")
}

func runWatch(cmd *cobra.Command, args []string) error {
	var matchID uint
	if _, err := fmt.Sscanf(args[0], "%d", &matchID); err != nil {
		return fmt.Errorf("invalid match id %q", args[0])
	}
	playerID, opponentID := args[1], args[2]

	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if cfg.RealtimeURL == "" {
		return fmt.Errorf("no realtime endpoint configured - set DARTLINK_REALTIME_URL")
	}

	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store presence.StatusStore
	if cfg.DatabaseURL != "" {
		s, err := match.Open(cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("failed to open match store: %w", err)
		}
		store = s
	} else {
		logger.Warn("No database configured, match status will not be persisted")
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	defer dialCancel()
	channel, err := match.DialChannel(dialCtx, cfg.RealtimeURL, matchID, playerID, logger)
	if err != nil {
		return err
	}
	defer channel.Close()

	warnColor := color.New(color.FgYellow)
	w := presence.New(matchID, opponentID, store, channel, presence.Callbacks{
		OnReconnected: func() {
			fmt.Printf("%s is back online.\n", opponentID)
		},
		OnDisconnected: func() {
			warnColor.Printf("%s lost connection. Waiting %d seconds for them to return...\n",
				opponentID, presence.CountdownSeconds)
		},
		OnCountdownTick: func(remaining int) {
			if remaining > 0 && remaining%10 == 0 {
				warnColor.Printf("%s has %d seconds to reconnect...\n", opponentID, remaining)
			}
		},
		OnLeft: func() {
			fmt.Printf("%s left the match.\n", opponentID)
			cancel()
		},
	}, logger)
	defer w.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\nLeaving match...")
			leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer leaveCancel()
			if err := w.LeaveMatch(leaveCtx); err != nil {
				logger.WithError(err).Warn("Leave was not fully recorded")
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Printf("Watching match %d as %s, opponent %s. Ctrl+C to leave...\n",
		matchID, playerID, opponentID)

	// Pump presence events until the channel closes or we leave.
	done := make(chan struct{})
	go func() {
		w.Run(channel.Events())
		close(done)
	}()

	select {
	case <-ctx.Done():
		return nil
	case <-done:
		fmt.Println("Realtime channel closed.")
		return nil
	}
}
