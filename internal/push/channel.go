// Package push maintains the duplex notification channel to the
// server: a websocket with an outbound heartbeat, typed inbound
// messages, and reconnect-after-delay on any transport failure.
package push

import (
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/ChenCXxx/townpass-microservice/internal/alert"
	"github.com/ChenCXxx/townpass-microservice/internal/metrics"
)

// State is the channel's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

const (
	// notificationsPath is the server's websocket endpoint, relative to
	// the configured base URL.
	notificationsPath = "/ws/notifications"

	// DefaultHeartbeatInterval is how often the channel sends its
	// outbound ping message while connected.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultReconnectDelay is the fixed wait before a reconnect
	// attempt. Deliberately not exponential: callers needing backoff
	// wrap this policy.
	DefaultReconnectDelay = 5 * time.Second
)

// Inbound message type discriminators.
const (
	messageTypeConnected = "connected"
	messageTypePong      = "pong"
	messageTypeAlert     = "construction_alert"
)

// AlertSink consumes translated server alert batches. The dispatcher
// implements it.
type AlertSink interface {
	Dispatch(hits []alert.Hit, source alert.Source)
}

// Options configures a Channel. Zero durations fall back to defaults.
type Options struct {
	// BaseURL is the ws:// or wss:// base of the notification server.
	BaseURL           string
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
}

type inboundMessage struct {
	Type      string              `json:"type"`
	Message   string              `json:"message,omitempty"`
	Alerts    []alert.ServerAlert `json:"alerts,omitempty"`
	Timestamp string              `json:"timestamp,omitempty"`
}

// Channel is the resilient duplex connection. All state transitions
// happen under one mutex; every goroutine and timer carries the
// generation it was started for and becomes a no-op once Disconnect or
// a newer attempt bumps the counter, so a stopped channel is never
// resurrected by stale work.
type Channel struct {
	logger  hclog.Logger
	metrics *metrics.Metrics
	sink    AlertSink
	opts    Options

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	identity       string
	generation     uint64
	heartbeatStop  chan struct{}
	reconnectTimer *time.Timer
}

// NewChannel creates a disconnected channel.
func NewChannel(opts Options, sink AlertSink, logger hclog.Logger, m *metrics.Metrics) *Channel {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	return &Channel{
		logger:  logger,
		metrics: m,
		sink:    sink,
		opts:    opts,
	}
}

// Connect begins connecting on behalf of the given identity. Idempotent:
// calling it while Connecting or Connected is a no-op.
func (c *Channel) Connect(identity string) error {
	if identity == "" {
		return errors.New("identity is required")
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		c.logger.Debug("connect ignored, channel not disconnected", "state", c.state.String())
		return nil
	}
	c.identity = identity
	c.generation++
	generation := c.generation
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	go c.dial(generation)
	return nil
}

// Disconnect tears down the heartbeat, the inbound subscription, and
// the transport, in that order, and cancels any pending reconnect. Safe
// to call from any state.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.teardownLocked()
	c.setStateLocked(StateDisconnected)
}

// CurrentState reports the connection state.
func (c *Channel) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) dial(generation uint64) {
	endpoint := c.opts.BaseURL + notificationsPath + "?external_id=" + url.QueryEscape(c.identitySnapshot())

	conn, resp, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		// Disconnected while the handshake was in flight.
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		c.logger.Warn("push handshake failed", "error", err.Error())
		c.scheduleReconnectLocked(generation)
		return
	}

	c.conn = conn
	c.heartbeatStop = make(chan struct{})
	c.setStateLocked(StateConnected)
	c.logger.Info("push channel connected")

	go c.readLoop(conn, generation)
	go c.heartbeatLoop(conn, c.heartbeatStop)
}

// readLoop consumes inbound messages until the transport fails, then
// schedules a reconnect unless the channel was deliberately stopped.
func (c *Channel) readLoop(conn *websocket.Conn, generation uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if generation != c.generation {
				c.mu.Unlock()
				return
			}
			c.teardownLocked()
			c.logger.Warn("push connection lost", "error", err.Error())
			c.scheduleReconnectLocked(generation)
			c.mu.Unlock()
			return
		}
		c.handleMessage(data)
	}
}

func (c *Channel) heartbeatLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
				// The read loop will observe the same failure and
				// drive the reconnect.
				c.logger.Debug("heartbeat write failed", "error", err.Error())
				return
			}
		}
	}
}

// handleMessage routes one inbound message by its type discriminator.
// Undecodable or unknown messages are logged and dropped; the
// subscription continues.
func (c *Channel) handleMessage(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("dropping undecodable push message", "error", err.Error())
		return
	}

	switch msg.Type {
	case messageTypeConnected:
		c.logger.Info("push handshake acknowledged", "message", msg.Message)
	case messageTypePong:
		c.logger.Debug("heartbeat acknowledged")
	case messageTypeAlert:
		if len(msg.Alerts) == 0 {
			return
		}
		hits := make([]alert.Hit, 0, len(msg.Alerts))
		for _, serverAlert := range msg.Alerts {
			hits = append(hits, serverAlert.Hit())
		}
		c.logger.Info("server alert batch received", "alerts", len(hits))
		c.sink.Dispatch(hits, alert.SourcePush)
	default:
		c.logger.Warn("dropping unknown push message type", "type", msg.Type)
	}
}

// scheduleReconnectLocked moves the channel to Disconnected and arms a
// single reconnect attempt after the configured fixed delay. Caller
// holds the mutex.
func (c *Channel) scheduleReconnectLocked(generation uint64) {
	c.setStateLocked(StateDisconnected)
	c.metrics.PushReconnects.Inc()
	c.logger.Info("scheduling push reconnect", "delay", c.opts.ReconnectDelay)

	c.reconnectTimer = time.AfterFunc(c.opts.ReconnectDelay, func() {
		c.mu.Lock()
		if generation != c.generation || c.state != StateDisconnected {
			c.mu.Unlock()
			return
		}
		c.generation++
		next := c.generation
		c.setStateLocked(StateConnecting)
		c.mu.Unlock()

		c.dial(next)
	})
}

// teardownLocked stops the heartbeat and closes the transport. Caller
// holds the mutex. Closing the transport also ends the read loop, which
// is the inbound subscription.
func (c *Channel) teardownLocked() {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Channel) setStateLocked(s State) {
	c.state = s
	c.metrics.PushState.Set(float64(s))
}

func (c *Channel) identitySnapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}
