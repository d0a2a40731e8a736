// Package cork runs the two-player "throw for first" protocol: one dart
// each, inner singles and bulls at face value, everything else scores zero,
// highest score throws first in the match. Results stay hidden from the
// opponent until both darts are in, and an exact tie re-arms both players
// for a rethrow.
package cork

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openboard/dartlink/internal/segment"
	"github.com/openboard/dartlink/internal/throw"
)

// Fixed delays of the round. The reveal delay gives each player a moment
// with their own result before the opponent's is shown; the tie and
// announcement delays pace the transition into the rethrow or the match.
const (
	RevealDelay   = 1500 * time.Millisecond
	TieResetDelay = 3 * time.Second
	AnnounceDelay = 3 * time.Second
)

// DisplayDone is what a player sees for the opponent's slot after the
// opponent has thrown but before the reveal. The value itself is never
// leaked mid-round.
const DisplayDone = "done"

// Status of one player's slot within the round.
type Status int

const (
	StatusWaiting Status = iota
	StatusThrown
)

// PlayerState is one player's mutable slot. Reset at round start and on a
// tie rethrow.
type PlayerState struct {
	Status  Status
	Score   int
	Valid   bool // landed in a region that counts for cork
	Display string
}

// Phase is the round's lifecycle phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWaitingPlayer1
	PhaseWaitingPlayer2
	PhaseRevealing
	PhaseTied
	PhaseDecided
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaitingPlayer1:
		return "waiting-player1"
	case PhaseWaitingPlayer2:
		return "waiting-player2"
	case PhaseRevealing:
		return "revealing"
	case PhaseTied:
		return "tied"
	case PhaseDecided:
		return "decided"
	case PhaseCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Timer is a cancellable timer handle. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// TimerFunc schedules fn after d and returns its handle. Injectable so
// tests drive the delays deterministically.
type TimerFunc func(d time.Duration, fn func()) Timer

func afterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Callbacks notify the round's owner. All are optional except OnDecided,
// which reports the winner (the player who throws first in the match).
// Callbacks are invoked without the round's lock held.
type Callbacks struct {
	OnRevealed func()
	OnTie      func()
	OnDecided  func(winnerID string)
}

// Round is the cork state machine. Throws are accepted only from the
// current thrower; turn order strictly alternates starting with player 1,
// including after a tie rethrow.
type Round struct {
	logger *logrus.Logger
	cb     Callbacks
	after  TimerFunc

	player1ID string
	player2ID string

	mu       sync.Mutex
	phase    Phase
	current  int // 1 or 2
	players  [2]PlayerState
	revealed bool
	lastTS   time.Time
	reported bool
	timers   []Timer
}

// NewRound creates a round for the two player ids. Call Start to arm it.
func NewRound(player1ID, player2ID string, cb Callbacks, logger *logrus.Logger) *Round {
	if logger == nil {
		logger = logrus.New()
	}
	return &Round{
		logger:    logger,
		cb:        cb,
		after:     afterFunc,
		player1ID: player1ID,
		player2ID: player2ID,
		phase:     PhaseIdle,
	}
}

// Start arms the round: both slots reset, player 1 throws first.
func (r *Round) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
	r.logger.WithFields(logrus.Fields{
		"player1": r.player1ID,
		"player2": r.player2ID,
	}).Info("Cork round started")
}

func (r *Round) resetLocked() {
	r.players = [2]PlayerState{}
	r.revealed = false
	r.current = 1
	r.phase = PhaseWaitingPlayer1
}

// CurrentThrower returns whose dart the round is waiting for (1 or 2), or
// 0 when it is not waiting.
func (r *Round) CurrentThrower() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseWaitingPlayer1 && r.phase != PhaseWaitingPlayer2 {
		return 0
	}
	return r.current
}

// Phase returns the current round phase.
func (r *Round) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Player returns a copy of the given player's slot (1 or 2).
func (r *Round) Player(player int) PlayerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.players[player-1]
}

// scoreThrow applies the cork scoring rule: inner single or any bull at
// face value, everything else zero and invalid.
func scoreThrow(th *throw.Throw) (score int, valid bool) {
	switch th.Kind {
	case segment.KindSingleInner, segment.KindBull, segment.KindDoubleBull:
		return th.Base, true
	default:
		return 0, false
	}
}

// HandleThrow feeds one decoded throw into the round. Out-of-turn throws,
// duplicate events (same timestamp), and throws for an already-filled slot
// are ignored.
func (r *Round) HandleThrow(player int, th *throw.Throw) {
	r.mu.Lock()

	if r.phase != PhaseWaitingPlayer1 && r.phase != PhaseWaitingPlayer2 {
		r.mu.Unlock()
		return
	}
	if player != r.current {
		r.logger.WithFields(logrus.Fields{
			"player":  player,
			"current": r.current,
		}).Debug("Ignoring out-of-turn throw")
		r.mu.Unlock()
		return
	}
	if !th.Timestamp.IsZero() && th.Timestamp.Equal(r.lastTS) {
		r.mu.Unlock()
		return
	}
	if r.players[player-1].Status == StatusThrown {
		r.mu.Unlock()
		return
	}
	r.lastTS = th.Timestamp

	score, valid := scoreThrow(th)
	display := strconv.Itoa(score)
	if !valid {
		display = fmt.Sprintf("%s → 0", th.SegmentLabel)
	}
	r.players[player-1] = PlayerState{
		Status:  StatusThrown,
		Score:   score,
		Valid:   valid,
		Display: display,
	}
	r.logger.WithFields(logrus.Fields{
		"player":  player,
		"segment": th.SegmentLabel,
		"score":   score,
		"valid":   valid,
	}).Info("Cork throw recorded")

	if player == 1 {
		r.current = 2
		r.phase = PhaseWaitingPlayer2
		r.mu.Unlock()
		return
	}

	r.phase = PhaseRevealing
	r.scheduleLocked(RevealDelay, r.reveal)
	r.mu.Unlock()
}

// scheduleLocked arms a timer owned by the round. Caller holds the lock.
func (r *Round) scheduleLocked(d time.Duration, fn func()) {
	r.timers = append(r.timers, r.after(d, fn))
}

func (r *Round) reveal() {
	r.mu.Lock()
	if r.phase != PhaseRevealing {
		r.mu.Unlock()
		return
	}
	r.revealed = true

	p1, p2 := r.players[0], r.players[1]
	tied := p1.Score == p2.Score

	var winnerID string
	if tied {
		r.phase = PhaseTied
		r.scheduleLocked(TieResetDelay, r.restart)
	} else {
		winnerID = r.player1ID
		if p2.Score > p1.Score {
			winnerID = r.player2ID
		}
		r.phase = PhaseDecided
		r.scheduleLocked(AnnounceDelay, func() { r.announce(winnerID) })
	}
	r.mu.Unlock()

	if r.cb.OnRevealed != nil {
		r.cb.OnRevealed()
	}
	if tied {
		r.logger.WithField("score", p1.Score).Info("Cork tied, rethrowing")
		if r.cb.OnTie != nil {
			r.cb.OnTie()
		}
	}
}

// restart re-arms both players after a tie. The round restarts with
// player 1; nothing else about the game is re-announced.
func (r *Round) restart() {
	r.mu.Lock()
	if r.phase != PhaseTied {
		r.mu.Unlock()
		return
	}
	r.resetLocked()
	r.mu.Unlock()
	r.logger.Info("Cork rethrow armed")
}

func (r *Round) announce(winnerID string) {
	r.mu.Lock()
	if r.phase != PhaseDecided || r.reported {
		r.mu.Unlock()
		return
	}
	r.reported = true
	r.mu.Unlock()

	r.logger.WithField("winner", winnerID).Info("Cork decided")
	if r.cb.OnDecided != nil {
		r.cb.OnDecided(winnerID)
	}
}

// Cancel abandons the round. All pending timers are stopped and no result
// is reported; idempotent. The round has no internal stall timeout, so
// Cancel is the only escape if a player never throws.
func (r *Round) Cancel() {
	r.mu.Lock()
	if r.phase == PhaseCancelled || r.reported {
		r.mu.Unlock()
		return
	}
	r.phase = PhaseCancelled
	timers := r.timers
	r.timers = nil
	r.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	r.logger.Info("Cork round cancelled")
}

// DisplayFor returns what viewer sees for player's slot. A player always
// sees their own real result; the opponent's slot shows only a generic
// done marker until the reveal.
func (r *Round) DisplayFor(viewer, player int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps := r.players[player-1]
	if ps.Status != StatusThrown {
		return ""
	}
	if viewer == player || r.revealed {
		return ps.Display
	}
	return DisplayDone
}

// Revealed reports whether both results are visible to both sides.
func (r *Round) Revealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revealed
}
