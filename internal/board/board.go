// Package board owns the BLE session with the dartboard: discovery,
// connection, notification subscription, and teardown. Decoded throws and
// state transitions are handed to a Publisher so consumers never touch the
// peripheral directly.
package board

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/sirupsen/logrus"

	"github.com/openboard/dartlink/internal/segment"
	"github.com/openboard/dartlink/internal/throw"
)

// GATT constants for the board. One service, a notify characteristic for
// inbound hit frames and a write characteristic for LED commands.
var (
	ServiceUUID    = ble.MustParse("442f1570-8a00-9a28-cbe1-e1d4212d53eb")
	NotifyCharUUID = ble.MustParse("442f1571-8a00-9a28-cbe1-e1d4212d53eb")
	WriteCharUUID  = ble.MustParse("442f1572-8a00-9a28-cbe1-e1d4212d53eb")
)

// DefaultNamePrefix is the advertised-name fallback used when service-UUID
// discovery finds nothing.
const DefaultNamePrefix = "GRANBOARD"

// State is the connection lifecycle state. Owned exclusively by Board; all
// other components observe it through the event bus.
type State int

const (
	StateDisconnected State = iota
	StateScanning
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateScanning:
		return "scanning"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Publisher receives decoded throws and state transitions. Implemented by
// the event bus.
type Publisher interface {
	PublishThrow(*throw.Throw)
	PublishState(State)
}

// DeviceFactory creates the ble.Device. A variable so tests can substitute
// a fake transport.
var DeviceFactory = func() (ble.Device, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		if strings.Contains(err.Error(), "central manager has invalid state") {
			if strings.Contains(err.Error(), "have=4") { // StatePoweredOff
				return nil, fmt.Errorf("Bluetooth is turned off - please enable Bluetooth and retry")
			}
			return nil, fmt.Errorf("Bluetooth is not ready - %w", err)
		}
		return nil, err
	}
	return dev, nil
}

// dialFn and scanFn indirect the package-level go-ble entry points so the
// lifecycle can be driven end to end in tests.
var (
	dialFn = func(ctx context.Context, f ble.AdvFilter) (ble.Client, error) {
		return ble.Connect(ctx, f)
	}
	scanFn = func(ctx context.Context, allowDup bool, h ble.AdvHandler, f ble.AdvFilter) error {
		return ble.Scan(ctx, allowDup, h, f)
	}
)

// Options configures a Board.
type Options struct {
	ConnectTimeout time.Duration
	NamePrefix     string        // advertised-name fallback filter
	Warmup         time.Duration // decoder warmup window
}

// DefaultOptions returns the stock board options.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 30 * time.Second,
		NamePrefix:     DefaultNamePrefix,
		Warmup:         throw.DefaultWarmup,
	}
}

// Board is the connection lifecycle manager. Exactly one Board (and its
// decoder) exists per live session; construct a fresh one per test.
type Board struct {
	logger *logrus.Logger
	pub    Publisher
	dec    *throw.Decoder
	opts   Options

	mu          sync.Mutex
	state       State
	client      ble.Client
	notifyChar  *ble.Characteristic
	writeChar   *ble.Characteristic
	connectedAt time.Time
	watchDone   chan struct{}
}

// New creates a Board in the Disconnected state.
func New(opts Options, pub Publisher, logger *logrus.Logger) *Board {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultOptions().ConnectTimeout
	}
	if opts.NamePrefix == "" {
		opts.NamePrefix = DefaultNamePrefix
	}
	return &Board{
		logger: logger,
		pub:    pub,
		dec:    throw.NewDecoder(opts.NamePrefix, opts.Warmup, logger),
		opts:   opts,
		state:  StateDisconnected,
	}
}

// State returns the current connection state.
func (b *Board) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// setState records a transition and broadcasts it. Same-state calls are
// no-ops, which is what makes repeated Disconnect calls produce exactly one
// Disconnected transition.
func (b *Board) setState(s State) {
	b.mu.Lock()
	if b.state == s {
		b.mu.Unlock()
		return
	}
	prev := b.state
	b.state = s
	b.mu.Unlock()

	b.logger.WithFields(logrus.Fields{
		"from": prev.String(),
		"to":   s.String(),
	}).Info("Connection state changed")
	if b.pub != nil {
		b.pub.PublishState(s)
	}
}

func (b *Board) fail(err error) error {
	b.setState(StateError)
	return err
}

// Connect drives Disconnected -> Scanning -> Connecting -> Connected.
// Discovery first filters on the board service UUID and falls back to the
// advertised name prefix. Failures are classified (see ConnectError) and
// leave the board in the Error state; there is no automatic retry.
func (b *Board) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.state == StateScanning || b.state == StateConnecting || b.state == StateConnected {
		b.mu.Unlock()
		return ErrAlreadyConnected
	}
	b.mu.Unlock()

	b.setState(StateScanning)

	dev, err := DeviceFactory()
	if err != nil {
		return b.fail(classifyConnectError("ble init", err))
	}
	ble.SetDefaultDevice(dev)

	client, err := b.discover(ctx)
	if err != nil {
		return b.fail(err)
	}

	b.setState(StateConnecting)

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		_ = client.CancelConnection()
		return b.fail(classifyConnectError("profile discovery", err))
	}

	notifyChar, writeChar, err := resolveCharacteristics(profile)
	if err != nil {
		_ = client.CancelConnection()
		return b.fail(err)
	}

	if err := client.Subscribe(notifyChar, false, b.handleFrame); err != nil {
		_ = client.CancelConnection()
		return b.fail(classifyConnectError("notification subscribe", err))
	}

	if name := client.Name(); name != "" {
		b.dec.SetDevice(name)
	}

	done := make(chan struct{})
	b.mu.Lock()
	b.client = client
	b.notifyChar = notifyChar
	b.writeChar = writeChar
	b.connectedAt = time.Now()
	b.watchDone = done
	b.mu.Unlock()

	go b.watchDisconnect(client, done)

	b.setState(StateConnected)
	b.logger.WithField("name", client.Name()).Info("Board connected, streaming throws")
	return nil
}

// discover scans for the board, trying the service-UUID filter first and
// the name-prefix filter second.
func (b *Board) discover(ctx context.Context) (ble.Client, error) {
	svcCtx, cancel := context.WithTimeout(ctx, b.opts.ConnectTimeout)
	defer cancel()

	client, err := dialFn(svcCtx, func(a ble.Advertisement) bool {
		return ble.Contains(a.Services(), ServiceUUID)
	})
	if err == nil {
		return client, nil
	}

	b.logger.WithError(err).Debug("Service-UUID discovery failed, retrying with name prefix")

	nameCtx, cancel := context.WithTimeout(ctx, b.opts.ConnectTimeout)
	defer cancel()

	prefix := strings.ToUpper(b.opts.NamePrefix)
	client, err = dialFn(nameCtx, func(a ble.Advertisement) bool {
		return strings.HasPrefix(strings.ToUpper(a.LocalName()), prefix)
	})
	if err != nil {
		return nil, classifyConnectError("discovery", err)
	}
	return client, nil
}

// resolveCharacteristics locates the board service and its notify/write
// characteristics in a discovered profile.
func resolveCharacteristics(profile *ble.Profile) (notify, write *ble.Characteristic, err error) {
	var svc *ble.Service
	for _, s := range profile.Services {
		if s.UUID.Equal(ServiceUUID) {
			svc = s
			break
		}
	}
	if svc == nil {
		return nil, nil, &ConnectError{Kind: FailureGattUnsupported, Msg: fmt.Sprintf("board service %s not found", ServiceUUID)}
	}

	for _, c := range svc.Characteristics {
		switch {
		case c.UUID.Equal(NotifyCharUUID):
			notify = c
		case c.UUID.Equal(WriteCharUUID):
			write = c
		}
	}
	if notify == nil {
		return nil, nil, &ConnectError{Kind: FailureGattUnsupported, Msg: fmt.Sprintf("notify characteristic %s not found", NotifyCharUUID)}
	}
	// The write characteristic is optional: LED feedback degrades to a no-op.
	return notify, write, nil
}

// handleFrame is the notification callback. Frames arrive serially; the
// decoder is only ever driven from here while connected.
func (b *Board) handleFrame(data []byte) {
	b.mu.Lock()
	connected := b.state == StateConnected
	age := time.Since(b.connectedAt)
	b.mu.Unlock()

	if !connected {
		return
	}

	th, outcome := b.dec.Decode(data, age)
	if outcome == throw.OutcomeThrow && b.pub != nil {
		b.pub.PublishThrow(th)
	}
}

// watchDisconnect routes an unsolicited link loss (board powered off, out
// of range) through the same teardown path as an explicit Disconnect.
func (b *Board) watchDisconnect(client ble.Client, done chan struct{}) {
	select {
	case <-client.Disconnected():
		b.logger.Warn("Board connection lost")
		_ = b.teardown()
	case <-done:
	}
}

// Disconnect tears the session down. Idempotent: the second and later calls
// are no-ops and produce no further state transitions.
func (b *Board) Disconnect() error {
	return b.teardown()
}

func (b *Board) teardown() error {
	b.mu.Lock()
	if b.client == nil && b.state == StateDisconnected {
		b.mu.Unlock()
		return nil
	}
	client := b.client
	notifyChar := b.notifyChar
	done := b.watchDone
	b.client = nil
	b.notifyChar = nil
	b.writeChar = nil
	b.connectedAt = time.Time{}
	b.watchDone = nil
	b.mu.Unlock()

	if done != nil {
		close(done)
	}

	if client != nil {
		if notifyChar != nil {
			if err := client.Unsubscribe(notifyChar, false); err != nil {
				b.logger.WithError(err).Debug("Unsubscribe failed during teardown")
			}
		}
		if err := client.CancelConnection(); err != nil {
			b.logger.WithError(err).Warn("Error disconnecting from board")
		}
	}

	b.setState(StateDisconnected)
	return nil
}

// SimulateThrow injects a throw by segment label ("T20", "D16", "BULL"),
// bypassing the radio entirely. It shares the decoder's dart counter, so
// simulated and real darts count into the same turn.
func (b *Board) SimulateThrow(label string) (*throw.Throw, error) {
	code, ok := segment.ByLabel(label)
	if !ok {
		return nil, fmt.Errorf("unknown segment label %q", label)
	}
	th := b.dec.Inject(code)
	if th != nil && b.pub != nil {
		b.pub.PublishThrow(th)
	}
	return th, nil
}

// FoundBoard is one discovery result.
type FoundBoard struct {
	Address    string
	Name       string
	RSSI       int
	HasService bool // advertised the board service UUID
}

// Scan discovers nearby boards without connecting. Results are keyed by
// address so repeat advertisements update in place, and sorted by signal
// strength.
func Scan(ctx context.Context, duration time.Duration, namePrefix string, logger *logrus.Logger) ([]FoundBoard, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if namePrefix == "" {
		namePrefix = DefaultNamePrefix
	}
	prefix := strings.ToUpper(namePrefix)

	dev, err := DeviceFactory()
	if err != nil {
		return nil, classifyConnectError("ble init", err)
	}
	ble.SetDefaultDevice(dev)

	found := hashmap.New[string, FoundBoard]()
	handler := func(a ble.Advertisement) {
		hasService := ble.Contains(a.Services(), ServiceUUID)
		if !hasService && !strings.HasPrefix(strings.ToUpper(a.LocalName()), prefix) {
			return
		}
		found.Set(a.Addr().String(), FoundBoard{
			Address:    a.Addr().String(),
			Name:       a.LocalName(),
			RSSI:       a.RSSI(),
			HasService: hasService,
		})
	}

	scanCtx := ctx
	if duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	logger.WithField("duration", duration).Info("Scanning for boards...")
	err = scanFn(scanCtx, true, handler, nil)
	if err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		return nil, classifyConnectError("scan", err)
	}

	boards := make([]FoundBoard, 0, found.Len())
	found.Range(func(_ string, fb FoundBoard) bool {
		boards = append(boards, fb)
		return true
	})
	sort.Slice(boards, func(i, j int) bool { return boards[i].RSSI > boards[j].RSSI })

	logger.WithField("count", len(boards)).Info("Scan completed")
	return boards, nil
}
