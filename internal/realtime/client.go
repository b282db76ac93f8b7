// Package realtime keeps a persistent event connection to the server,
// reconnects with linear backoff and applies inbound events to the session.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/swipe-sync/internal/events"
	"github.com/spigell/swipe-sync/internal/logger"
	"github.com/spigell/swipe-sync/internal/utils"
)

const (
	DefaultReconnectInterval    = time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultOutboxSize           = 256

	frameLogLimit = 256
)

var (
	ErrNotConnected    = errors.New("realtime client is not connected")
	ErrOutboxFull      = errors.New("realtime outbox is full")
	ErrMalformedFrame  = errors.New("malformed frame")
	ErrMissingIdentity = errors.New("identity and credential are required")
	ErrEmptyChat       = errors.New("chat id is required")
)

type Config struct {
	URL                  string
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	// OutboxSize bounds the messages queued while the connection is not open.
	OutboxSize int
}

func (c Config) withDefaults() Config {
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = DefaultOutboxSize
	}
	return c
}

// Client owns at most one live connection at a time. A single supervisor
// goroutine per Connect call dials, reads, and schedules reconnects.
type Client struct {
	cfg    Config
	dialer Dialer
	store  Dispatcher
	bus    *events.Broker
	logger *zap.Logger
	wait   func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	state    State
	attempts int
	active   bool
	identity string
	conn     Conn
	outbox   [][]byte
	cancel   context.CancelFunc
	done     chan struct{}

	writeMu sync.Mutex
}

// New builds a client. bus may be nil when nobody listens for events.
func New(cfg Config, dialer Dialer, store Dispatcher, bus *events.Broker, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		cfg:    cfg.withDefaults(),
		dialer: dialer,
		store:  store,
		bus:    bus,
		logger: log,
		wait:   utils.WaitFor,
		state:  StateDisconnected,
	}
}

// Connect starts the connection cycle for identity and returns immediately.
// An existing connection is torn down first, so at most one is ever live.
func (c *Client) Connect(ctx context.Context, identity, credential string) error {
	identity = strings.TrimSpace(identity)
	credential = strings.TrimSpace(credential)
	if identity == "" || credential == "" {
		return ErrMissingIdentity
	}

	target, err := handshakeURL(c.cfg.URL, identity, credential)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)

	c.stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	if c.identity != identity {
		c.outbox = nil
	}
	c.identity = identity
	c.active = true
	c.attempts = 0
	c.conn = nil
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	log := c.logger.With(logger.ConnectionFields("", identity, redact(target))...)
	go c.run(runCtx, target, header, log, done)

	return nil
}

// Disconnect closes the live connection, stops reconnecting, and drops queued sends.
func (c *Client) Disconnect() {
	c.stop()

	c.mu.Lock()
	prev := c.state
	c.state = StateDisconnected
	c.attempts = 0
	c.outbox = nil
	c.conn = nil
	c.mu.Unlock()

	if prev != StateDisconnected {
		c.publish(events.KindConnection, StateChange{From: prev, To: StateDisconnected})
	}
}

// Send transmits a chat message. While the connection is not open the message
// is queued and flushed in order on the next successful open.
func (c *Client) Send(chatID, content string) error {
	if strings.TrimSpace(chatID) == "" {
		return ErrEmptyChat
	}

	frame, err := encodeSend(chatID, content)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.state != StateOpen || c.conn == nil {
		if len(c.outbox) >= c.cfg.OutboxSize {
			c.mu.Unlock()
			return ErrOutboxFull
		}
		c.outbox = append(c.outbox, frame)
		pending := len(c.outbox)
		c.mu.Unlock()

		c.logger.Debug("queued outbound message", zap.String("chat_id", chatID), zap.Int("pending", pending))
		return nil
	}
	conn := c.conn
	c.mu.Unlock()

	return c.sendOn(conn, chatID, frame)
}

// sendOn writes frame to conn. Writers are serialized, and a failed write
// detaches conn before the frame is requeued, so later sends line up behind it.
func (c *Client) sendOn(conn Conn, chatID string, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if c.conn != conn {
		defer c.mu.Unlock()
		if !c.active {
			return ErrNotConnected
		}
		if len(c.outbox) >= c.cfg.OutboxSize {
			return ErrOutboxFull
		}
		c.outbox = append(c.outbox, frame)
		return nil
	}
	c.mu.Unlock()

	err := conn.WriteMessage(frame)
	if err == nil {
		return nil
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	if c.active {
		c.outbox = append([][]byte{frame}, c.outbox...)
	}
	c.mu.Unlock()

	c.logger.Warn("write failed, message queued for retry", zap.String("chat_id", chatID), zap.Error(err))
	_ = conn.Close()

	return nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the current consecutive reconnect attempt count.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Pending returns the number of queued outbound messages.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outbox)
}

// Done is closed when the current connection cycle ends.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.done
}

func (c *Client) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.active = false
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Client) run(ctx context.Context, target string, header http.Header, log *zap.Logger, done chan struct{}) {
	defer close(done)

	for {
		c.transition(ctx, StateConnecting)

		conn, err := c.dialer.Dial(ctx, target, header)
		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}

		if err != nil {
			log.Warn("realtime connection failed", zap.Error(err))
			c.transition(ctx, StateErrored)
		} else {
			connLog := log.With(zap.String(logger.FieldConnID, uuid.NewString()))
			err = c.serve(ctx, conn, connLog)
			if ctx.Err() != nil {
				return
			}
			if cleanClose(err) {
				connLog.Info("realtime connection closed")
				c.transition(ctx, StateClosed)
			} else {
				connLog.Warn("realtime connection lost", zap.Error(err))
				c.transition(ctx, StateErrored)
			}
		}

		delay, ok := c.nextAttempt()
		if !ok {
			c.goOffline(ctx, log)
			return
		}

		c.transition(ctx, StateReconnecting)
		log.Info("scheduling reconnect", zap.Int("attempt", c.Attempts()), zap.Duration("delay", delay))

		if err := c.wait(ctx, delay); err != nil {
			return
		}
	}
}

// serve owns conn until it fails or ctx is cancelled.
func (c *Client) serve(ctx context.Context, conn Conn, log *zap.Logger) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()
	defer c.detach(conn)

	if err := c.open(ctx, conn, log); err != nil {
		return err
	}

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleFrame(data, log)
	}
}

// open flushes the outbox before publishing the open state, so frames queued
// earlier always precede frames sent afterwards.
func (c *Client) open(ctx context.Context, conn Conn, log *zap.Logger) error {
	c.mu.Lock()
	c.conn = conn
	c.attempts = 0
	c.mu.Unlock()

	flushed := 0
	for {
		c.mu.Lock()
		if ctx.Err() != nil {
			c.mu.Unlock()
			return ctx.Err()
		}
		if len(c.outbox) == 0 {
			prev := c.state
			c.state = StateOpen
			c.mu.Unlock()

			log.Info("realtime connection open", zap.Int("flushed", flushed))
			c.publish(events.KindConnection, StateChange{From: prev, To: StateOpen})
			return nil
		}
		frame := c.outbox[0]
		c.outbox = c.outbox[1:]
		c.mu.Unlock()

		if err := c.write(conn, frame); err != nil {
			c.requeue(frame)
			return fmt.Errorf("flush outbox: %w", err)
		}
		flushed++
	}
}

func (c *Client) detach(conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
}

func (c *Client) write(conn Conn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(frame)
}

// requeue puts a frame that failed to send back at the head of the outbox.
func (c *Client) requeue(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.outbox = append([][]byte{frame}, c.outbox...)
}

// nextAttempt increments the attempt counter and returns the linear delay,
// or false once the maximum is exceeded.
func (c *Client) nextAttempt() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.attempts > c.cfg.MaxReconnectAttempts {
		return 0, false
	}
	return c.cfg.ReconnectInterval * time.Duration(c.attempts), true
}

func (c *Client) goOffline(ctx context.Context, log *zap.Logger) {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = StateOffline
	c.active = false
	c.attempts = c.cfg.MaxReconnectAttempts
	attempts := c.attempts
	pending := len(c.outbox)
	c.mu.Unlock()

	log.Error("realtime connection offline, giving up",
		zap.Int("attempts", attempts),
		zap.Int("pending", pending),
	)
	c.publish(events.KindConnection, StateChange{From: prev, To: StateOffline, Attempt: attempts})
	c.publish(events.KindOffline, Offline{Attempts: attempts})
}

func (c *Client) transition(ctx context.Context, to State) {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = to
	attempt := c.attempts
	c.mu.Unlock()

	if prev != to {
		c.publish(events.KindConnection, StateChange{From: prev, To: to, Attempt: attempt})
	}
}

func (c *Client) publish(kind events.Kind, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.Event{Kind: kind, Payload: payload})
}

func (c *Client) handleFrame(data []byte, log *zap.Logger) {
	var env inbound
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		log.Warn("dropping malformed frame",
			zap.Error(err),
			zap.String("frame", utils.TruncateForLog(string(data), frameLogLimit)),
		)
		return
	}

	h, ok := handlers[env.Type]
	if !ok {
		log.Debug("ignoring unknown event type", zap.String("type", env.Type))
		return
	}

	value, err := h.apply(c.store, env.Payload)
	if err != nil {
		if errors.Is(err, ErrMalformedFrame) {
			log.Warn("dropping malformed payload", zap.String("type", env.Type), zap.Error(err))
		} else {
			log.Warn("event rejected by session", zap.String("type", env.Type), zap.Error(err))
		}
		return
	}

	c.publish(h.kind, value)
}
