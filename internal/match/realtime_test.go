package match

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// channelServer accepts one websocket client, pushes a presence join, and
// relays the first client broadcast back on a channel.
func channelServer(t *testing.T) (*httptest.Server, <-chan Envelope, <-chan string) {
	t.Helper()

	broadcasts := make(chan Envelope, 1)
	queries := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.RawQuery

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept failed: %v", err)
			return
		}
		defer conn.CloseNow()

		join, _ := json.Marshal(Envelope{Event: EventPresenceJoin, MatchID: 7, PlayerID: "bob"})
		if err := conn.Write(r.Context(), websocket.MessageText, join); err != nil {
			t.Errorf("server write failed: %v", err)
			return
		}

		_, data, err := conn.Read(r.Context())
		if err != nil {
			return // client closed first, fine for tests that never broadcast
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Errorf("server got malformed envelope: %v", err)
			return
		}
		broadcasts <- env

		// Hold the socket until the client leaves.
		_, _, _ = conn.Read(r.Context())
	}))
	t.Cleanup(srv.Close)
	return srv, broadcasts, queries
}

func TestChannelJoinAndPresenceEvents(t *testing.T) {
	srv, _, queries := channelServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := DialChannel(ctx, srv.URL, 7, "alice", testLogger())
	require.NoError(t, err)
	defer ch.Close()

	assert.Equal(t, "match=7&player=alice", <-queries)

	select {
	case env := <-ch.Events():
		assert.Equal(t, EventPresenceJoin, env.Event)
		assert.Equal(t, "bob", env.PlayerID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for presence event")
	}
}

func TestChannelBroadcast(t *testing.T) {
	srv, broadcasts, _ := channelServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := DialChannel(ctx, srv.URL, 7, "alice", testLogger())
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.Broadcast(ctx, EventPlayerLeft, map[string]string{"reason": "quit"}))

	select {
	case env := <-broadcasts:
		assert.Equal(t, EventPlayerLeft, env.Event)
		assert.Equal(t, uint(7), env.MatchID)
		assert.Equal(t, "alice", env.PlayerID)

		var payload map[string]string
		require.NoError(t, json.Unmarshal(env.Payload, &payload))
		assert.Equal(t, "quit", payload["reason"])
	case <-ctx.Done():
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestChannelEventsClosedOnDrop(t *testing.T) {
	srv, _, _ := channelServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := DialChannel(ctx, srv.URL, 7, "alice", testLogger())
	require.NoError(t, err)

	// Drain the join event, then drop the socket from our side.
	<-ch.Events()
	ch.Close()
	ch.Close() // safe to repeat

	select {
	case _, ok := <-ch.Events():
		assert.False(t, ok, "events channel closes when the socket drops")
	case <-ctx.Done():
		t.Fatal("timed out waiting for events channel to close")
	}
}
