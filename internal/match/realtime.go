package match

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// Realtime channel event names. Presence events are emitted by the server
// when a player's socket joins or leaves the match channel; player_left is
// a deliberate broadcast sent by a quitting client.
const (
	EventPresenceJoin  = "presence_join"
	EventPresenceLeave = "presence_leave"
	EventPlayerLeft    = "player_left"
)

// Envelope is the JSON message format on the match channel.
type Envelope struct {
	Event    string          `json:"event"`
	MatchID  uint            `json:"match_id"`
	PlayerID string          `json:"player_id"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

const writeTimeout = 3 * time.Second

// Channel is a live websocket subscription to one match's realtime
// channel. Inbound envelopes are delivered on Events(); the channel closes
// it when the socket drops.
type Channel struct {
	conn     *websocket.Conn
	logger   *logrus.Logger
	matchID  uint
	playerID string

	events chan Envelope

	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
}

// DialChannel connects to the realtime endpoint and joins the match-scoped
// channel. The server starts emitting presence events for the channel as
// soon as the join is processed.
func DialChannel(ctx context.Context, url string, matchID uint, playerID string, logger *logrus.Logger) (*Channel, error) {
	if logger == nil {
		logger = logrus.New()
	}

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("%s?match=%d&player=%s", url, matchID, playerID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial realtime channel: %w", err)
	}

	chCtx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		conn:     conn,
		logger:   logger,
		matchID:  matchID,
		playerID: playerID,
		events:   make(chan Envelope, 64),
		ctx:      chCtx,
		cancel:   cancel,
	}
	go c.readLoop()

	logger.WithFields(logrus.Fields{
		"match":  matchID,
		"player": playerID,
	}).Info("Joined match channel")
	return c, nil
}

// Events returns the inbound envelope stream. Closed when the channel
// shuts down.
func (c *Channel) Events() <-chan Envelope {
	return c.events
}

func (c *Channel) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if c.ctx.Err() == nil {
					c.logger.WithError(err).Warn("Realtime channel read failed")
				}
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.WithError(err).Debug("Dropping malformed channel message")
			continue
		}

		select {
		case c.events <- env:
		default:
			// Consumer stalled; presence events are level-triggered so
			// dropping one is recoverable.
			c.logger.Debug("Dropping channel event, consumer is slow")
		}
	}
}

// Broadcast publishes an event on the match channel. Delivery to other
// participants is the server's at-least-once concern.
func (c *Channel) Broadcast(ctx context.Context, event string, payload any) error {
	env := Envelope{
		Event:    event,
		MatchID:  c.matchID,
		PlayerID: c.playerID,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s payload: %w", event, err)
		}
		env.Payload = raw
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.conn.Write(wctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to broadcast %s: %w", event, err)
	}
	return nil
}

// Close leaves the channel. Safe to call multiple times.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close(websocket.StatusNormalClosure, "leaving match channel")
	})
}
