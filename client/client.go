// Package client implements the subscribing side of the distribution layer:
// a connection state machine with automatic reconnection, cursor-based
// resume, event deduplication, and optimistic send reconciliation.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coregx/roomcast"
	"github.com/coregx/roomcast/model"
	"github.com/coregx/roomcast/retry"
)

// State represents the client connection lifecycle state.
type State int

const (
	// StateDisconnected is the initial state before Connect is called.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates a live event stream.
	StateConnected

	// StateReconnecting indicates the connection dropped and automatic
	// reconnection with backoff is underway.
	StateReconnecting

	// StateExpiredPrompt indicates the capability token expired. The client
	// will not reconnect until ConfirmPresence is called — an expired
	// authorization is never silently renewed.
	StateExpiredPrompt

	// StateClosed is terminal; the client cannot be reused after Close.
	StateClosed
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateExpiredPrompt:
		return "expired_prompt"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventStream is a live stream of broadcast events from the hub.
type EventStream interface {
	// Next blocks until the next event arrives or the stream fails.
	Next(ctx context.Context) (model.BroadcastEvent, error)

	// Close terminates the stream.
	Close() error
}

// Dialer establishes an event stream against the hub.
// cursor is the last processed event ID, empty on a fresh connection; the hub
// replays everything after it, so a resume never loses events (duplicates are
// possible and handled by the client's dedup).
type Dialer interface {
	Dial(ctx context.Context, token, cursor string) (EventStream, error)
}

// TokenSource obtains a fresh capability token for the subscriber.
// Typically backed by a call to the token issuance endpoint.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Heartbeater reports room-viewing presence to the server.
// Typically backed by a call to the heartbeat endpoint.
type Heartbeater interface {
	Heartbeat(ctx context.Context, roomID int64) error
}

// maxSeenEvents caps the dedup window. Old entries are dropped wholesale once
// the cap is hit; an event replayed from further back than this is delivered
// twice, which consumers tolerate (at-least-once contract).
const maxSeenEvents = 4096

// Client is a hub subscription client.
//
// Lifecycle: Connect moves the client from disconnected to connected (through
// connecting). A dropped connection triggers automatic reconnection with
// exponential backoff, resuming from the last processed event so no event is
// lost. An expired capability token instead parks the client in the
// expired-prompt state until ConfirmPresence is called.
//
// Events are delivered on the Events channel, deduplicated by event ID, so a
// resume replay or publish retry never surfaces twice.
//
// Thread safety: safe for concurrent use.
type Client struct {
	dialer      Dialer
	tokens      TokenSource
	heartbeater Heartbeater
	strategy    retry.Strategy
	logger      roomcast.Logger

	heartbeatInterval time.Duration

	mu       sync.Mutex
	state    State
	cursor   string
	seen     map[string]struct{}
	viewing  int64       // Room currently viewed, 0 = none
	stream   EventStream // Active stream, nil while not connected
	confirm  chan struct{}
	onChange func(State)

	events    chan model.BroadcastEvent
	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// New creates a new subscription client with the provided options.
//
// Required options:
//   - WithDialer: event stream transport
//   - WithTokenSource: capability token provider
//   - WithClientLogger: logger instance
//
// Optional options:
//   - WithHeartbeater: presence reporting (default: none)
//   - WithHeartbeatInterval: heartbeat pacing (default: 15s)
//   - WithConnectStrategy: reconnect backoff (default: retry.ConnectStrategy())
//   - WithStateListener: state transition callback
func New(opts ...ClientOption) (*Client, error) {
	c := &Client{
		strategy:          retry.ConnectStrategy(),
		heartbeatInterval: 15 * time.Second,
		state:             StateDisconnected,
		seen:              make(map[string]struct{}),
		confirm:           make(chan struct{}, 1),
		events:            make(chan model.BroadcastEvent, 256),
		closed:            make(chan struct{}),
		done:              make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, roomcast.NewErrorWithCause(roomcast.ErrCodeConfiguration, "failed to apply client option", err)
		}
	}

	if c.dialer == nil {
		return nil, roomcast.NewError(roomcast.ErrCodeConfiguration, "Dialer is required (use WithDialer)")
	}
	if c.tokens == nil {
		return nil, roomcast.NewError(roomcast.ErrCodeConfiguration, "TokenSource is required (use WithTokenSource)")
	}
	if c.logger == nil {
		return nil, roomcast.NewError(roomcast.ErrCodeConfiguration, "Logger is required (use WithClientLogger)")
	}

	return c, nil
}

// WithDialer sets the event stream transport.
func WithDialer(dialer Dialer) ClientOption {
	return func(c *Client) error {
		if dialer == nil {
			return fmt.Errorf("dialer cannot be nil")
		}
		c.dialer = dialer
		return nil
	}
}

// WithTokenSource sets the capability token provider.
func WithTokenSource(tokens TokenSource) ClientOption {
	return func(c *Client) error {
		if tokens == nil {
			return fmt.Errorf("token source cannot be nil")
		}
		c.tokens = tokens
		return nil
	}
}

// WithClientLogger sets the logger instance.
func WithClientLogger(logger roomcast.Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithHeartbeater enables presence heartbeats for the viewed room.
func WithHeartbeater(h Heartbeater) ClientOption {
	return func(c *Client) error {
		if h == nil {
			return fmt.Errorf("heartbeater cannot be nil")
		}
		c.heartbeater = h
		return nil
	}
}

// WithHeartbeatInterval sets the heartbeat pacing. Must match the server's
// configured interval; the server's grace window assumes it.
func WithHeartbeatInterval(interval time.Duration) ClientOption {
	return func(c *Client) error {
		if interval <= 0 {
			return fmt.Errorf("heartbeat interval must be > 0, got %v", interval)
		}
		c.heartbeatInterval = interval
		return nil
	}
}

// WithConnectStrategy sets the reconnection backoff strategy.
func WithConnectStrategy(strategy retry.Strategy) ClientOption {
	return func(c *Client) error {
		c.strategy = strategy
		return nil
	}
}

// WithStateListener registers a callback invoked on every state transition.
// The callback runs on the client's internal goroutine and must not block.
func WithStateListener(fn func(State)) ClientOption {
	return func(c *Client) error {
		if fn == nil {
			return fmt.Errorf("state listener cannot be nil")
		}
		c.onChange = fn
		return nil
	}
}

// Events returns the stream of deduplicated broadcast events.
// The channel is closed when the client is closed.
func (c *Client) Events() <-chan model.BroadcastEvent {
	return c.events
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the client's connection loop in a background goroutine.
// It returns immediately; observe progress via Events and the state listener.
//
// Calling Connect on a client that is not disconnected is an error.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		return roomcast.NewError(roomcast.ErrCodeValidation,
			fmt.Sprintf("cannot connect from state %s", state))
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	go c.run(ctx)
	if c.heartbeater != nil {
		go c.heartbeatLoop(ctx)
	}
	return nil
}

// ViewRoom marks the room the subscriber is actively viewing. Heartbeats are
// sent for that room until ClearView or another ViewRoom call.
func (c *Client) ViewRoom(ctx context.Context, roomID int64) {
	c.mu.Lock()
	c.viewing = roomID
	c.mu.Unlock()

	// Immediate beat so the server counts everything-so-far as read without
	// waiting for the next tick.
	if c.heartbeater != nil && roomID != 0 {
		if err := c.heartbeater.Heartbeat(ctx, roomID); err != nil {
			c.logger.Warnf("Heartbeat failed for room %d: %v", roomID, err)
		}
	}
}

// ClearView stops heartbeats; the subscriber is no longer viewing any room.
func (c *Client) ClearView() {
	c.mu.Lock()
	c.viewing = 0
	c.mu.Unlock()
}

// ConfirmPresence acknowledges the expired-authorization prompt. The client
// fetches a fresh token and reconnects. Calling it in any other state is a
// no-op.
func (c *Client) ConfirmPresence() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateExpiredPrompt {
		return
	}
	select {
	case c.confirm <- struct{}{}:
	default:
	}
}

// Close terminates the client, releasing the hub connection. The events
// channel is closed once the connection loop exits. The client cannot be
// reused.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		c.setStateLocked(StateClosed)
		stream := c.stream
		c.stream = nil
		c.mu.Unlock()

		// Closing the stream unblocks the connection loop's pending read, so
		// no background work survives the session.
		if stream != nil {
			_ = stream.Close()
		}
	})
	return nil
}

// run is the connection loop: dial, drain the stream, classify failures, and
// either back off and reconnect or park on the expiry prompt.
func (c *Client) run(ctx context.Context) {
	defer close(c.events)
	defer close(c.done)

	attempt := 0
	for {
		if c.stopped(ctx) {
			return
		}

		stream, err := c.dial(ctx)
		if err != nil {
			if roomcast.IsAuthorizationExpired(err) {
				if !c.awaitPresenceConfirmation(ctx) {
					return
				}
				attempt = 0
				continue
			}

			attempt++
			if !c.strategy.IsRetryable(attempt) {
				c.logger.Errorf("Giving up reconnection after %d attempts: %v", attempt, err)
				c.transition(StateDisconnected)
				return
			}

			delay := c.strategy.CalculateRetryDelay(attempt)
			c.logger.Warnf("Connection attempt %d failed, retrying in %v: %v", attempt, delay, err)
			c.transition(StateReconnecting)
			if !c.sleep(ctx, delay) {
				return
			}
			continue
		}

		if !c.trackStream(stream) {
			// Closed while the dial was in flight
			_ = stream.Close()
			return
		}

		c.transition(StateConnected)
		attempt = 0

		streamErr := c.consume(ctx, stream)
		c.releaseStream(stream)

		if c.stopped(ctx) {
			return
		}

		if roomcast.IsAuthorizationExpired(streamErr) {
			if !c.awaitPresenceConfirmation(ctx) {
				return
			}
			continue
		}

		c.logger.Warnf("Connection lost, reconnecting: %v", streamErr)
		c.transition(StateReconnecting)
	}
}

// dial obtains a token and opens the stream, resuming from the cursor.
func (c *Client) dial(ctx context.Context) (EventStream, error) {
	c.transitionIfNot(StateConnecting, StateClosed)

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain capability token: %w", err)
	}

	c.mu.Lock()
	cursor := c.cursor
	c.mu.Unlock()

	return c.dialer.Dial(ctx, token, cursor)
}

// consume drains the stream until it fails, delivering deduplicated events
// and advancing the cursor. Always returns a non-nil error (the stream
// failure).
func (c *Client) consume(ctx context.Context, stream EventStream) error {
	for {
		event, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		c.deliver(ctx, event)
	}
}

// deliver advances the cursor and forwards the event unless it's a duplicate.
// Applying a duplicate must be a no-op, so duplicates are dropped here.
func (c *Client) deliver(ctx context.Context, event model.BroadcastEvent) {
	c.mu.Lock()
	if _, dup := c.seen[event.ID]; dup {
		c.cursor = event.ID
		c.mu.Unlock()
		c.logger.Debugf("Dropped duplicate event %s", event.ID)
		return
	}
	if len(c.seen) >= maxSeenEvents {
		c.seen = make(map[string]struct{})
	}
	c.seen[event.ID] = struct{}{}
	c.cursor = event.ID
	c.mu.Unlock()

	select {
	case c.events <- event:
	case <-c.closed:
	case <-ctx.Done():
	}
}

// awaitPresenceConfirmation parks the client in the expired-prompt state
// until ConfirmPresence is called. Returns false if the client is closed or
// the context is canceled while waiting.
func (c *Client) awaitPresenceConfirmation(ctx context.Context) bool {
	c.logger.Info("Capability token expired, waiting for presence confirmation")
	c.transition(StateExpiredPrompt)

	select {
	case <-c.confirm:
		c.transition(StateConnecting)
		return true
	case <-c.closed:
		return false
	case <-ctx.Done():
		return false
	}
}

// heartbeatLoop sends presence heartbeats for the viewed room at the
// configured interval. Runs independently of the connection state: a
// subscriber reading the room during a brief reconnect is still present.
func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-ticker.C:
			c.mu.Lock()
			roomID := c.viewing
			c.mu.Unlock()
			if roomID == 0 {
				continue
			}
			if err := c.heartbeater.Heartbeat(ctx, roomID); err != nil {
				c.logger.Warnf("Heartbeat failed for room %d: %v", roomID, err)
			}
		}
	}
}

// trackStream records the active stream so Close can release it. Returns
// false if the client was closed while the dial was in flight.
func (c *Client) trackStream(stream EventStream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}
	c.stream = stream
	return true
}

// releaseStream closes the stream and drops the reference, unless Close
// already took it.
func (c *Client) releaseStream(stream EventStream) {
	c.mu.Lock()
	if c.stream == stream {
		c.stream = nil
	}
	c.mu.Unlock()
	_ = stream.Close()
}

func (c *Client) stopped(ctx context.Context) bool {
	select {
	case <-c.closed:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.closed:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Client) transition(next State) {
	c.mu.Lock()
	c.setStateLocked(next)
	c.mu.Unlock()
}

// transitionIfNot transitions to next unless the client is in the excluded
// state.
func (c *Client) transitionIfNot(next, excluded State) {
	c.mu.Lock()
	if c.state != excluded {
		c.setStateLocked(next)
	}
	c.mu.Unlock()
}

func (c *Client) setStateLocked(next State) {
	if c.state == next || c.state == StateClosed {
		return
	}
	prev := c.state
	c.state = next
	if c.logger != nil {
		c.logger.Debugf("Client state: %s -> %s", prev, next)
	}
	if c.onChange != nil {
		c.onChange(next)
	}
}
