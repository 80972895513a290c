package signaling

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"studylink/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler receives decoded inbound messages. Called from the read
// goroutine; implementations must not block for long.
type Handler func(from domain.UserID, msg Message)

// ChannelConfig tunes the reconnect backoff and socket timeouts.
type ChannelConfig struct {
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	WriteTimeout time.Duration
	PongTimeout  time.Duration
	PingInterval time.Duration
}

func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		BackoffBase:  500 * time.Millisecond,
		BackoffMax:   15 * time.Second,
		WriteTimeout: 10 * time.Second,
		PongTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// Channel is the persistent signaling connection for one meeting. Sends
// are fire-and-forget: frames written while the socket is down are
// dropped (at-most-once, no queueing across disconnects). On close the
// channel reconnects with exponential backoff until Close is called.
type Channel struct {
	endpoint  string
	meetingID domain.MeetingID
	userID    domain.UserID
	token     string
	cfg       ChannelConfig
	logger    *zap.SugaredLogger

	handler Handler
	onState func(connected bool)

	mu      sync.Mutex
	conn    *websocket.Conn
	open    bool
	closed  bool
	attempt int

	done chan struct{}
	wg   sync.WaitGroup
}

// NewChannel builds a channel for the relay endpoint (ws:// or wss://).
func NewChannel(endpoint string, meetingID domain.MeetingID, userID domain.UserID, token string, cfg ChannelConfig, logger *zap.SugaredLogger) *Channel {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	def := DefaultChannelConfig()
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	return &Channel{
		endpoint:  endpoint,
		meetingID: meetingID,
		userID:    userID,
		token:     token,
		cfg:       cfg,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// OnMessage registers the inbound handler. Must be called before Connect.
func (c *Channel) OnMessage(h Handler) { c.handler = h }

// OnStateChange registers a connectivity callback, used by the UI layer
// for the transient disconnect indicator.
func (c *Channel) OnStateChange(fn func(connected bool)) { c.onState = fn }

func (c *Channel) dialURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse signaling endpoint: %w", err)
	}
	q := u.Query()
	q.Set("meeting_id", string(c.meetingID))
	q.Set("user_id", string(c.userID))
	if c.token != "" {
		q.Set("token", c.token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect dials the relay. The first dial failing is returned to the
// caller; once connected, later drops are retried in the background.
func (c *Channel) Connect(ctx context.Context) error {
	target, err := c.dialURL()
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignalingDisconnected, err)
	}
	if !c.adopt(conn) {
		return fmt.Errorf("%w: channel closed", domain.ErrSignalingDisconnected)
	}
	return nil
}

// adopt installs a fresh socket and starts its read loop. A dial that
// loses the race with Close gets its socket discarded here, otherwise
// the channel would leak an open connection nobody tears down.
func (c *Channel) adopt(conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return false
	}
	c.conn = conn
	c.open = true
	c.attempt = 0
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		return nil
	})

	c.notifyState(true)
	c.logger.Infow("signaling connected", "meeting_id", c.meetingID, "user_id", c.userID)

	c.wg.Add(2)
	go c.readLoop(conn)
	go c.pingLoop(conn)
	return true
}

// Send writes one envelope if the socket is open and silently drops it
// otherwise. Durability across disconnects is explicitly not provided.
func (c *Channel) Send(msg Message) {
	data, err := Encode(c.userID, msg)
	if err != nil {
		c.logger.Warnw("encode outbound envelope", "kind", msg.Kind(), "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || c.conn == nil {
		c.logger.Debugw("dropping envelope, signaling closed", "kind", msg.Kind())
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debugw("dropping envelope, write failed", "kind", msg.Kind(), "error", err)
	}
}

// Connected reports whether the socket is currently open.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))

		from, msg, err := Decode(data)
		if err != nil {
			c.logger.Warnw("dropping malformed envelope", "error", err)
			continue
		}
		if c.handler != nil {
			c.handler(from, msg)
		}
	}
}

func (c *Channel) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			current := c.conn
			c.mu.Unlock()
			if current != conn {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleDrop marks the channel closed and schedules a reconnect unless
// Close was called.
func (c *Channel) handleDrop(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn == conn {
		c.open = false
		c.conn = nil
	}
	closed := c.closed
	c.mu.Unlock()

	conn.Close()
	if closed {
		return
	}

	c.notifyState(false)
	c.logger.Infow("signaling dropped, reconnecting", "error", cause)

	c.wg.Add(1)
	go c.reconnectLoop()
}

// reconnectLoop retries with exponential backoff, capped at BackoffMax.
// The attempt counter resets on a successful open.
func (c *Channel) reconnectLoop() {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		delay := c.cfg.BackoffBase << c.attempt
		if delay > c.cfg.BackoffMax || delay <= 0 {
			delay = c.cfg.BackoffMax
		}
		c.attempt++
		c.mu.Unlock()

		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		target, err := c.dialURL()
		if err != nil {
			c.logger.Errorw("reconnect aborted", "error", err)
			return
		}
		conn, _, err := websocket.DefaultDialer.Dial(target, nil)
		if err != nil {
			c.logger.Debugw("reconnect attempt failed", "attempt", c.attempt, "error", err)
			continue
		}
		// Close may have won the race; adopt discards the socket then.
		c.adopt(conn)
		return
	}
}

// Close tears the channel down permanently. Safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.open = false
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	return nil
}

func (c *Channel) notifyState(connected bool) {
	if c.onState != nil {
		c.onState(connected)
	}
}
