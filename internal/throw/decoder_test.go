package throw

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openboard/dartlink/internal/segment"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestDecoder(t *testing.T) *Decoder {
	t.Helper()
	d := NewDecoder("GRANBOARD-TEST", DefaultWarmup, testLogger())
	d.now = func() time.Time { return time.Unix(1700000000, 0) }
	return d
}

// steady is a connection age safely past the warmup window.
const steady = 10 * time.Second

func TestDecodeWarmupIgnoresEverything(t *testing.T) {
	d := newTestDecoder(t)

	frames := [][]byte{
		[]byte("0.2@"),  // T20
		[]byte("25.0@"), // bull
		[]byte("OUT@"),  // miss
		[]byte("junk"),  // unknown
	}
	for _, f := range frames {
		th, outcome := d.Decode(f, 500*time.Millisecond)
		assert.Nil(t, th)
		assert.Equal(t, OutcomeIgnored, outcome)
	}
	assert.Equal(t, 0, d.Darts())
}

func TestDecodeBannerIgnored(t *testing.T) {
	d := newTestDecoder(t)

	th, outcome := d.Decode([]byte("GRNBDv3.10"), steady)
	assert.Nil(t, th)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Equal(t, 0, d.Darts())
}

func TestDecodeKnownFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		label string
		score int
		mult  int
		kind  segment.Kind
	}{
		{name: "triple 20", frame: "0.2@", label: "T20", score: 60, mult: 3, kind: segment.KindTriple},
		{name: "double 18", frame: "2.3@", label: "D18", score: 36, mult: 2, kind: segment.KindDouble},
		{name: "inner single 18", frame: "2.1@", label: "S18", score: 18, mult: 1, kind: segment.KindSingleInner},
		{name: "outer single 1", frame: "1.0@", label: "S1", score: 1, mult: 1, kind: segment.KindSingleOuter},
		{name: "bull", frame: "25.0@", label: "BULL", score: 25, mult: 1, kind: segment.KindBull},
		{name: "double bull", frame: "25.1@", label: "DBULL", score: 50, mult: 2, kind: segment.KindDoubleBull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDecoder(t)
			th, outcome := d.Decode([]byte(tt.frame), steady)
			require.Equal(t, OutcomeThrow, outcome)
			require.NotNil(t, th)
			assert.Equal(t, tt.label, th.SegmentLabel)
			assert.Equal(t, tt.score, th.Score)
			assert.Equal(t, tt.mult, th.Multiplier)
			assert.Equal(t, tt.kind, th.Kind)
			assert.Equal(t, 1, th.DartIndex)
			assert.Equal(t, "GRANBOARD-TEST", th.Device)
			assert.NotEmpty(t, th.Raw)
		})
	}
}

func TestDecodeMiss(t *testing.T) {
	d := newTestDecoder(t)

	th, outcome := d.Decode([]byte("OUT@"), steady)
	require.Equal(t, OutcomeThrow, outcome)
	require.NotNil(t, th)
	assert.Equal(t, 0, th.Score)
	assert.Equal(t, 0, th.Multiplier)
	assert.Equal(t, "MISS", th.SegmentLabel)
	// A miss still consumes a dart.
	assert.Equal(t, 1, d.Darts())
}

func TestDecodeUnknownLeavesCounterUnchanged(t *testing.T) {
	d := newTestDecoder(t)

	_, outcome := d.Decode([]byte("0.2@"), steady)
	require.Equal(t, OutcomeThrow, outcome)
	require.Equal(t, 1, d.Darts())

	th, outcome := d.Decode([]byte("bogus frame"), steady)
	assert.Nil(t, th)
	assert.Equal(t, OutcomeUnknown, outcome)
	assert.Equal(t, 1, d.Darts())
}

func TestDartCounterCycles(t *testing.T) {
	d := newTestDecoder(t)

	frames := []string{"0.2@", "OUT@", "25.0@", "5.1@"}
	wantIndex := []int{1, 2, 3, 1}

	for i, f := range frames {
		th, outcome := d.Decode([]byte(f), steady)
		require.Equal(t, OutcomeThrow, outcome, "frame %d", i)
		assert.Equal(t, wantIndex[i], th.DartIndex, "frame %d", i)
	}
	// After the 4th throw one dart of the new turn has been used.
	assert.Equal(t, 1, d.Darts())
}

func TestResetClearsCounter(t *testing.T) {
	d := newTestDecoder(t)

	_, outcome := d.Decode([]byte("0.2@"), steady)
	require.Equal(t, OutcomeThrow, outcome)
	_, outcome = d.Decode([]byte("0.3@"), steady)
	require.Equal(t, OutcomeThrow, outcome)
	require.Equal(t, 2, d.Darts())

	th, outcome := d.Decode([]byte("BTN@"), steady)
	assert.Nil(t, th)
	assert.Equal(t, OutcomeReset, outcome)
	assert.Equal(t, 0, d.Darts())

	th, outcome = d.Decode([]byte("0.2@"), steady)
	require.Equal(t, OutcomeThrow, outcome)
	assert.Equal(t, 1, th.DartIndex)
}

func TestInject(t *testing.T) {
	d := newTestDecoder(t)

	code, ok := segment.ByLabel("T19")
	require.True(t, ok)

	th := d.Inject(code)
	require.NotNil(t, th)
	assert.Equal(t, "T19", th.SegmentLabel)
	assert.Equal(t, 57, th.Score)
	assert.Equal(t, 1, th.DartIndex)
	assert.Empty(t, th.Raw)
	assert.Equal(t, 1, d.Darts())

	reset, ok := segment.ByLabel("RESET")
	require.True(t, ok)
	assert.Nil(t, d.Inject(reset))
	assert.Equal(t, 0, d.Darts())
}
