// Package throw turns raw board notification frames into validated throw
// events.
package throw

import (
	"bytes"
	"encoding/hex"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openboard/dartlink/internal/segment"
)

// DefaultWarmup is how long after the notification subscription every frame
// is discarded. The board emits spurious frames right after the GATT
// subscription comes up.
const DefaultWarmup = 2 * time.Second

// dartsPerTurn is the number of darts in one turn.
const dartsPerTurn = 3

// initBanner is the prefix of the identification frame the board pushes on
// subscription. It carries firmware info, not a hit.
var initBanner = []byte("GRNBD")

// Throw is one decoded dart hit. Immutable once emitted.
type Throw struct {
	SegmentLabel string
	Score        int
	Multiplier   int
	Base         int
	Kind         segment.Kind
	DartIndex    int // 1-3 within the current turn
	Timestamp    time.Time
	Device       string
	Raw          string // hex of the originating frame, for diagnostics
}

// Outcome classifies a decode call that did not produce a Throw.
type Outcome int

const (
	// OutcomeThrow means a Throw was produced.
	OutcomeThrow Outcome = iota
	// OutcomeIgnored covers warmup noise and init/banner frames.
	OutcomeIgnored
	// OutcomeReset means the frame was the next-player button: the dart
	// counter was cleared and no Throw is emitted.
	OutcomeReset
	// OutcomeUnknown means the byte key matched no table entry. The frame
	// is dropped and the dart counter is unchanged.
	OutcomeUnknown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeThrow:
		return "throw"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeReset:
		return "reset"
	case OutcomeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Decoder converts raw notification frames into Throws. It owns the
// per-turn dart counter; exactly one Decoder drives a board connection.
// Decoder is not safe for concurrent use: frames are decoded strictly in
// arrival order on the notification callback.
type Decoder struct {
	warmup time.Duration
	device string
	logger *logrus.Logger

	darts int // darts thrown in the current turn, 0-2
	now   func() time.Time
}

// NewDecoder creates a decoder for the named source device. A zero warmup
// falls back to DefaultWarmup.
func NewDecoder(device string, warmup time.Duration, logger *logrus.Logger) *Decoder {
	if warmup <= 0 {
		warmup = DefaultWarmup
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Decoder{
		warmup: warmup,
		device: device,
		logger: logger,
		now:    time.Now,
	}
}

// Decode validates one raw frame. connAge is the time elapsed since the
// notification subscription became active.
func (d *Decoder) Decode(data []byte, connAge time.Duration) (*Throw, Outcome) {
	if connAge < d.warmup {
		d.logger.WithFields(logrus.Fields{
			"raw":      hex.EncodeToString(data),
			"conn_age": connAge,
		}).Debug("Dropping warmup frame")
		return nil, OutcomeIgnored
	}

	if bytes.HasPrefix(data, initBanner) {
		d.logger.WithField("raw", hex.EncodeToString(data)).Debug("Dropping board banner frame")
		return nil, OutcomeIgnored
	}

	code, ok := segment.Lookup(segment.Key(data))
	if !ok {
		d.logger.WithField("raw", hex.EncodeToString(data)).Warn("Unknown frame, dropping")
		return nil, OutcomeUnknown
	}

	if code.Kind == segment.KindReset {
		d.darts = 0
		return nil, OutcomeReset
	}

	return d.emit(code, hex.EncodeToString(data)), OutcomeThrow
}

// Inject produces a Throw for a segment code without a real frame, for the
// diagnostic simulateThrow path. It advances the dart counter exactly like
// a decoded frame.
func (d *Decoder) Inject(code segment.Code) *Throw {
	if code.Kind == segment.KindReset {
		d.darts = 0
		return nil
	}
	return d.emit(code, "")
}

func (d *Decoder) emit(code segment.Code, raw string) *Throw {
	mult := segment.Multiplier(code.Kind)
	t := &Throw{
		SegmentLabel: segment.Label(code),
		Score:        code.Base * mult,
		Multiplier:   mult,
		Base:         code.Base,
		Kind:         code.Kind,
		DartIndex:    d.darts + 1,
		Timestamp:    d.now(),
		Device:       d.device,
		Raw:          raw,
	}
	d.darts = (d.darts + 1) % dartsPerTurn

	d.logger.WithFields(logrus.Fields{
		"segment": t.SegmentLabel,
		"score":   t.Score,
		"dart":    t.DartIndex,
	}).Info("Decoded throw")
	return t
}

// SetDevice updates the source device name stamped on emitted throws. Set
// once after the peripheral's advertised name is known.
func (d *Decoder) SetDevice(name string) {
	d.device = name
}

// Darts returns the number of darts thrown in the current turn (0-2).
func (d *Decoder) Darts() int {
	return d.darts
}

// ResetTurn clears the per-turn dart counter.
func (d *Decoder) ResetTurn() {
	d.darts = 0
}
