// Package presence tracks the remote opponent's liveness over the match
// channel and runs the countdown-to-abandon protocol. It is fully
// independent of the BLE subsystem.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openboard/dartlink/internal/match"
)

// CountdownSeconds is how long a silently vanished opponent has to come
// back before the match counts as abandoned.
const CountdownSeconds = 60

// LeaveDisplayDelay paces the terminal callback after an explicit
// player-left broadcast, so the "opponent left" notice is readable before
// the caller tears the match down.
const LeaveDisplayDelay = 2 * time.Second

// Phase of the watchdog.
type Phase int

const (
	PhaseNeverSeen Phase = iota
	PhaseOnline
	PhaseCountingDown
	PhaseAbandoned
)

func (p Phase) String() string {
	switch p {
	case PhaseNeverSeen:
		return "never-seen"
	case PhaseOnline:
		return "online"
	case PhaseCountingDown:
		return "counting-down"
	case PhaseAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// StatusStore is the slice of the match store the watchdog needs.
type StatusStore interface {
	MarkCancelled(ctx context.Context, id uint) error
}

// Broadcaster publishes on the match channel. Satisfied by *match.Channel.
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any) error
}

// Timer is a cancellable timer handle. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// TimerFunc schedules fn after d; injectable for tests.
type TimerFunc func(d time.Duration, fn func()) Timer

func afterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Callbacks notify the UI layer. All optional; OnLeft is terminal and
// fires exactly once. Invoked without the watchdog's lock held.
type Callbacks struct {
	OnReconnected   func()
	OnDisconnected  func()
	OnCountdownTick func(remaining int)
	OnLeft          func()
}

// Watchdog owns the opponent-presence state machine:
// NeverSeen -> Online -> (Online | CountingDown) -> (Online | Abandoned).
type Watchdog struct {
	logger     *logrus.Logger
	store      StatusStore
	bcast      Broadcaster
	cb         Callbacks
	matchID    uint
	opponentID string
	after      TimerFunc

	mu        sync.Mutex
	phase     Phase
	remaining int
	timer     Timer
	left      bool // terminal callback fired
	leaveSent bool // our own LeaveMatch broadcast went out
	closed    bool
}

// New creates a watchdog for the opponent in the given match. store and
// bcast may be nil when the match channel is not subscribed; LeaveMatch
// stays safe to call either way.
func New(matchID uint, opponentID string, store StatusStore, bcast Broadcaster, cb Callbacks, logger *logrus.Logger) *Watchdog {
	if logger == nil {
		logger = logrus.New()
	}
	return &Watchdog{
		logger:     logger,
		store:      store,
		bcast:      bcast,
		cb:         cb,
		matchID:    matchID,
		opponentID: opponentID,
		after:      afterFunc,
		phase:      PhaseNeverSeen,
	}
}

// Phase returns the current phase.
func (w *Watchdog) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// Remaining returns the countdown seconds left, or 0 when not counting.
func (w *Watchdog) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.phase != PhaseCountingDown {
		return 0
	}
	return w.remaining
}

// HandleJoin processes a presence join for playerID. The very first
// sighting of the opponent suppresses the reconnected notification; any
// later regain cancels the countdown and fires it.
func (w *Watchdog) HandleJoin(playerID string) {
	if playerID != w.opponentID {
		return
	}

	w.mu.Lock()
	if w.closed || w.left {
		w.mu.Unlock()
		return
	}
	var reconnected bool
	switch w.phase {
	case PhaseNeverSeen:
		w.phase = PhaseOnline
		w.logger.WithField("opponent", playerID).Info("Opponent online")
	case PhaseCountingDown:
		w.stopTimerLocked()
		w.phase = PhaseOnline
		reconnected = true
		w.logger.WithField("opponent", playerID).Info("Opponent reconnected")
	}
	w.mu.Unlock()

	if reconnected && w.cb.OnReconnected != nil {
		w.cb.OnReconnected()
	}
}

// HandleLeave processes a presence loss for playerID. Losing an opponent
// we have seen starts the countdown; an opponent we never saw changes
// nothing.
func (w *Watchdog) HandleLeave(playerID string) {
	if playerID != w.opponentID {
		return
	}

	w.mu.Lock()
	if w.closed || w.left || w.phase != PhaseOnline {
		w.mu.Unlock()
		return
	}
	w.phase = PhaseCountingDown
	w.remaining = CountdownSeconds
	w.timer = w.after(time.Second, w.tick)
	w.logger.WithFields(logrus.Fields{
		"opponent":  playerID,
		"countdown": CountdownSeconds,
	}).Warn("Opponent presence lost, countdown started")
	w.mu.Unlock()

	if w.cb.OnDisconnected != nil {
		w.cb.OnDisconnected()
	}
}

func (w *Watchdog) tick() {
	w.mu.Lock()
	if w.closed || w.phase != PhaseCountingDown {
		w.mu.Unlock()
		return
	}
	w.remaining--
	remaining := w.remaining
	expired := remaining <= 0
	if expired {
		w.phase = PhaseAbandoned
		w.left = true
		w.timer = nil
	} else {
		w.timer = w.after(time.Second, w.tick)
	}
	w.mu.Unlock()

	if w.cb.OnCountdownTick != nil {
		w.cb.OnCountdownTick(remaining)
	}
	if expired {
		w.logger.Warn("Opponent never returned, match abandoned")
		if w.cb.OnLeft != nil {
			w.cb.OnLeft()
		}
	}
}

// HandleOpponentLeft processes the opponent's deliberate player-left
// broadcast: it short-circuits any countdown and fires the terminal
// callback after the display delay, marking the match cancelled.
func (w *Watchdog) HandleOpponentLeft(playerID string) {
	if playerID != w.opponentID {
		return
	}

	w.mu.Lock()
	if w.closed || w.left {
		w.mu.Unlock()
		return
	}
	w.left = true
	w.stopTimerLocked()
	w.phase = PhaseAbandoned
	w.timer = w.after(LeaveDisplayDelay, w.fireLeft)
	w.mu.Unlock()

	w.logger.Info("Opponent left the match")
	w.markCancelled()
}

func (w *Watchdog) fireLeft() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.mu.Unlock()

	if w.cb.OnLeft != nil {
		w.cb.OnLeft()
	}
}

// LeaveMatch is our own deliberate exit: it broadcasts the player-left
// signal and marks the match cancelled in the store. Idempotent, and safe
// to call when the channel was never subscribed.
func (w *Watchdog) LeaveMatch(ctx context.Context) error {
	w.mu.Lock()
	if w.leaveSent {
		w.mu.Unlock()
		return nil
	}
	w.leaveSent = true
	w.stopTimerLocked()
	w.mu.Unlock()

	if w.bcast != nil {
		if err := w.bcast.Broadcast(ctx, match.EventPlayerLeft, nil); err != nil {
			// Signaling failures degrade, they do not block leaving.
			w.logger.WithError(err).Warn("Failed to broadcast player-left")
		}
	}
	return w.markCancelled()
}

func (w *Watchdog) markCancelled() error {
	if w.store == nil {
		return nil
	}
	if err := w.store.MarkCancelled(context.Background(), w.matchID); err != nil {
		w.logger.WithError(err).Error("Failed to mark match cancelled")
		return err
	}
	return nil
}

func (w *Watchdog) stopTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Close tears the watchdog down. No timer fires after Close returns and no
// further callbacks are delivered.
func (w *Watchdog) Close() {
	w.mu.Lock()
	w.closed = true
	w.stopTimerLocked()
	w.mu.Unlock()
}

// Run pumps envelopes from the match channel into the watchdog until the
// channel closes. Intended to run on its own goroutine.
func (w *Watchdog) Run(events <-chan match.Envelope) {
	for env := range events {
		switch env.Event {
		case match.EventPresenceJoin:
			w.HandleJoin(env.PlayerID)
		case match.EventPresenceLeave:
			w.HandleLeave(env.PlayerID)
		case match.EventPlayerLeft:
			w.HandleOpponentLeft(env.PlayerID)
		}
	}
}
