package board

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openboard/dartlink/internal/throw"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// recordingBus captures published throws and state transitions.
type recordingBus struct {
	mu     sync.Mutex
	throws []*throw.Throw
	states []State
}

func (r *recordingBus) PublishThrow(t *throw.Throw) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.throws = append(r.throws, t)
}

func (r *recordingBus) PublishState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingBus) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recordingBus) Throws() []*throw.Throw {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*throw.Throw(nil), r.throws...)
}

// fakeDevice satisfies ble.Device via interface embedding; only the methods
// the board exercises are implemented. Anything else panics, which is what
// we want in a test.
type fakeDevice struct {
	ble.Device
}

func (d *fakeDevice) Stop() error { return nil }

// fakeClient stands in for a connected peripheral.
type fakeClient struct {
	ble.Client

	name    string
	profile *ble.Profile

	mu             sync.Mutex
	notifyHandler  ble.NotificationHandler
	unsubscribed   bool
	cancelledCount int

	disconnected chan struct{}
}

func newFakeClient(profile *ble.Profile) *fakeClient {
	return &fakeClient{
		name:         "GRANBOARD-3s",
		profile:      profile,
		disconnected: make(chan struct{}),
	}
}

func (c *fakeClient) Name() string { return c.name }

func (c *fakeClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	if c.profile == nil {
		return nil, errors.New("profile discovery failed")
	}
	return c.profile, nil
}

func (c *fakeClient) Subscribe(char *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifyHandler = h
	return nil
}

func (c *fakeClient) Unsubscribe(char *ble.Characteristic, ind bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = true
	return nil
}

func (c *fakeClient) CancelConnection() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelledCount++
	return nil
}

func (c *fakeClient) Disconnected() <-chan struct{} { return c.disconnected }

func (c *fakeClient) notify(data []byte) {
	c.mu.Lock()
	h := c.notifyHandler
	c.mu.Unlock()
	if h != nil {
		h(data)
	}
}

func boardProfile() *ble.Profile {
	return &ble.Profile{
		Services: []*ble.Service{{
			UUID: ServiceUUID,
			Characteristics: []*ble.Characteristic{
				{UUID: NotifyCharUUID},
				{UUID: WriteCharUUID},
			},
		}},
	}
}

// withFakeTransport swaps the package-level BLE seams for the test's
// lifetime.
func withFakeTransport(t *testing.T, client ble.Client, dialErr error) {
	t.Helper()

	origFactory := DeviceFactory
	origDial := dialFn
	t.Cleanup(func() {
		DeviceFactory = origFactory
		dialFn = origDial
	})

	DeviceFactory = func() (ble.Device, error) {
		return &fakeDevice{}, nil
	}
	dialFn = func(ctx context.Context, f ble.AdvFilter) (ble.Client, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return client, nil
	}
}

func newConnectedBoard(t *testing.T) (*Board, *fakeClient, *recordingBus) {
	t.Helper()

	client := newFakeClient(boardProfile())
	withFakeTransport(t, client, nil)

	pub := &recordingBus{}
	b := New(Options{
		ConnectTimeout: time.Second,
		Warmup:         time.Nanosecond, // no warmup window in tests
	}, pub, testLogger())

	require.NoError(t, b.Connect(context.Background()))
	return b, client, pub
}

func TestConnectLifecycle(t *testing.T) {
	b, client, pub := newConnectedBoard(t)
	defer func() { _ = b.Disconnect() }()

	assert.Equal(t, StateConnected, b.State())
	assert.Equal(t, []State{StateScanning, StateConnecting, StateConnected}, pub.States())

	// The decoder picked up the advertised device name.
	client.notify([]byte("0.2@")) // T20
	throws := pub.Throws()
	require.Len(t, throws, 1)
	assert.Equal(t, "T20", throws[0].SegmentLabel)
	assert.Equal(t, 60, throws[0].Score)
	assert.Equal(t, "GRANBOARD-3s", throws[0].Device)
}

func TestConnectWhileConnected(t *testing.T) {
	b, _, _ := newConnectedBoard(t)
	defer func() { _ = b.Disconnect() }()

	err := b.Connect(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	b, client, pub := newConnectedBoard(t)

	require.NoError(t, b.Disconnect())
	require.NoError(t, b.Disconnect())
	require.NoError(t, b.Disconnect())

	assert.Equal(t, StateDisconnected, b.State())
	assert.True(t, client.unsubscribed)
	assert.Equal(t, 1, client.cancelledCount)

	// Exactly one Disconnected transition despite the repeated calls.
	count := 0
	for _, s := range pub.States() {
		if s == StateDisconnected {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExternalDisconnectTearsDown(t *testing.T) {
	b, client, _ := newConnectedBoard(t)

	close(client.disconnected)

	assert.Eventually(t, func() bool {
		return b.State() == StateDisconnected
	}, time.Second, 10*time.Millisecond)
}

func TestFramesDroppedWhenNotConnected(t *testing.T) {
	b, client, pub := newConnectedBoard(t)

	require.NoError(t, b.Disconnect())
	client.notify([]byte("0.2@"))

	assert.Empty(t, pub.Throws())
	assert.Equal(t, StateDisconnected, b.State())
}

func TestConnectDeviceNotFound(t *testing.T) {
	withFakeTransport(t, nil, context.DeadlineExceeded)

	pub := &recordingBus{}
	b := New(Options{ConnectTimeout: 10 * time.Millisecond}, pub, testLogger())

	err := b.Connect(context.Background())
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Equal(t, StateError, b.State())
}

func TestConnectPermissionDenied(t *testing.T) {
	withFakeTransport(t, nil, nil)
	DeviceFactory = func() (ble.Device, error) {
		return nil, errors.New("bluetooth access denied by user")
	}

	b := New(Options{}, &recordingBus{}, testLogger())

	err := b.Connect(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestConnectMissingNotifyCharacteristic(t *testing.T) {
	profile := &ble.Profile{
		Services: []*ble.Service{{
			UUID:            ServiceUUID,
			Characteristics: []*ble.Characteristic{{UUID: WriteCharUUID}},
		}},
	}
	client := newFakeClient(profile)
	withFakeTransport(t, client, nil)

	b := New(Options{ConnectTimeout: time.Second}, &recordingBus{}, testLogger())

	err := b.Connect(context.Background())
	assert.ErrorIs(t, err, ErrGattUnsupported)
	assert.Equal(t, 1, client.cancelledCount, "failed connect releases the link")
}

func TestWriteCharacteristicOptional(t *testing.T) {
	profile := &ble.Profile{
		Services: []*ble.Service{{
			UUID:            ServiceUUID,
			Characteristics: []*ble.Characteristic{{UUID: NotifyCharUUID}},
		}},
	}
	client := newFakeClient(profile)
	withFakeTransport(t, client, nil)

	b := New(Options{ConnectTimeout: time.Second, Warmup: time.Nanosecond}, &recordingBus{}, testLogger())
	require.NoError(t, b.Connect(context.Background()))
	defer func() { _ = b.Disconnect() }()

	// LED feedback degrades to a no-op without the write characteristic.
	b.FlashLEDs(LEDHit)
	assert.Equal(t, StateConnected, b.State())
}

func TestSimulateThrow(t *testing.T) {
	pub := &recordingBus{}
	b := New(Options{}, pub, testLogger())

	th, err := b.SimulateThrow("D16")
	require.NoError(t, err)
	assert.Equal(t, "D16", th.SegmentLabel)
	assert.Equal(t, 32, th.Score)
	require.Len(t, pub.Throws(), 1)

	_, err = b.SimulateThrow("X99")
	assert.Error(t, err)
}

type fakeAdv struct {
	ble.Advertisement

	name     string
	addr     string
	rssi     int
	services []ble.UUID
}

func (a *fakeAdv) LocalName() string   { return a.name }
func (a *fakeAdv) Addr() ble.Addr      { return ble.NewAddr(a.addr) }
func (a *fakeAdv) RSSI() int           { return a.rssi }
func (a *fakeAdv) Services() []ble.UUID { return a.services }

func TestScanFiltersAndSorts(t *testing.T) {
	origFactory := DeviceFactory
	origScan := scanFn
	t.Cleanup(func() {
		DeviceFactory = origFactory
		scanFn = origScan
	})

	DeviceFactory = func() (ble.Device, error) { return &fakeDevice{}, nil }
	scanFn = func(ctx context.Context, allowDup bool, h ble.AdvHandler, f ble.AdvFilter) error {
		h(&fakeAdv{name: "GRANBOARD-3s", addr: "aa:aa", rssi: -40})
		h(&fakeAdv{name: "kettle", addr: "bb:bb", rssi: -30})
		h(&fakeAdv{name: "", addr: "cc:cc", rssi: -20, services: []ble.UUID{ServiceUUID}})
		// Repeat advertisement updates in place instead of duplicating.
		h(&fakeAdv{name: "GRANBOARD-3s", addr: "aa:aa", rssi: -45})
		return context.DeadlineExceeded
	}

	boards, err := Scan(context.Background(), time.Second, "", testLogger())
	require.NoError(t, err)
	require.Len(t, boards, 2)

	assert.True(t, boards[0].HasService)
	assert.Equal(t, -20, boards[0].RSSI)
	assert.Equal(t, "GRANBOARD-3s", boards[1].Name)
	assert.Equal(t, -45, boards[1].RSSI)
}
