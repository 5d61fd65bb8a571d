package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/roomcast"
	"github.com/coregx/roomcast/model"
	"github.com/coregx/roomcast/retry"
)

type staticTokens struct{}

func (staticTokens) Token(_ context.Context) (string, error) {
	return "test-token", nil
}

// scriptedStream yields its queued events, then either returns the final
// error or blocks until the context is canceled.
type scriptedStream struct {
	events []model.BroadcastEvent
	final  error
	idx    int
}

func (s *scriptedStream) Next(ctx context.Context) (model.BroadcastEvent, error) {
	if s.idx < len(s.events) {
		e := s.events[s.idx]
		s.idx++
		return e, nil
	}
	if s.final != nil {
		return model.BroadcastEvent{}, s.final
	}
	<-ctx.Done()
	return model.BroadcastEvent{}, ctx.Err()
}

func (s *scriptedStream) Close() error { return nil }

type dialOutcome struct {
	stream EventStream
	err    error
}

// closableStream blocks until its own Close is called, ignoring the client's
// shutdown signals the way a quiet websocket read does.
type closableStream struct {
	done chan struct{}
	once sync.Once
}

func newClosableStream() *closableStream {
	return &closableStream{done: make(chan struct{})}
}

func (s *closableStream) Next(ctx context.Context) (model.BroadcastEvent, error) {
	select {
	case <-ctx.Done():
		return model.BroadcastEvent{}, ctx.Err()
	case <-s.done:
		return model.BroadcastEvent{}, errors.New("connection closed")
	}
}

func (s *closableStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *closableStream) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// scriptedDialer pops one outcome per Dial call; once exhausted it hands out
// idle streams that block until canceled.
type scriptedDialer struct {
	mu       sync.Mutex
	outcomes []dialOutcome
	cursors  []string
}

func (d *scriptedDialer) Dial(_ context.Context, _, cursor string) (EventStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cursors = append(d.cursors, cursor)
	if len(d.outcomes) == 0 {
		return &scriptedStream{}, nil
	}
	out := d.outcomes[0]
	d.outcomes = d.outcomes[1:]
	if out.err != nil {
		return nil, out.err
	}
	return out.stream, nil
}

func (d *scriptedDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cursors)
}

func (d *scriptedDialer) cursorAt(i int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.cursors) {
		return ""
	}
	return d.cursors[i]
}

type recordingHeartbeater struct {
	mu    sync.Mutex
	beats []int64
}

func (h *recordingHeartbeater) Heartbeat(_ context.Context, roomID int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.beats = append(h.beats, roomID)
	return nil
}

func (h *recordingHeartbeater) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.beats)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) saw(s State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.states {
		if st == s {
			return true
		}
	}
	return false
}

// fastStrategy keeps reconnection delays negligible in tests.
func fastStrategy() retry.Strategy {
	return retry.Strategy{
		MaxAttempts:      10,
		BaseDelay:        time.Millisecond,
		MaxDelay:         5 * time.Millisecond,
		ExponentialBase:  2.0,
		AbandonThreshold: 10,
	}
}

func newTestClient(t *testing.T, dialer Dialer, opts ...ClientOption) *Client {
	t.Helper()
	opts = append([]ClientOption{
		WithDialer(dialer),
		WithTokenSource(staticTokens{}),
		WithClientLogger(&roomcast.NoopLogger{}),
		WithConnectStrategy(fastStrategy()),
	}, opts...)
	c, err := New(opts...)
	require.NoError(t, err)
	return c
}

func waitForEvent(t *testing.T, c *Client) model.BroadcastEvent {
	t.Helper()
	select {
	case e := <-c.Events():
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return model.BroadcastEvent{}
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(WithClientLogger(&roomcast.NoopLogger{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Dialer is required")

	_, err = New(
		WithDialer(&scriptedDialer{}),
		WithClientLogger(&roomcast.NoopLogger{}),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TokenSource is required")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "expired_prompt", StateExpiredPrompt.String())
	assert.Equal(t, "closed", StateClosed.String())
}

func TestClient_DeliversAndDeduplicates(t *testing.T) {
	e1 := model.BroadcastEvent{ID: "1:room.7", RoomID: 7, MessageID: 1, Sequence: 1, Body: "first"}
	e2 := model.BroadcastEvent{ID: "2:room.7", RoomID: 7, MessageID: 2, Sequence: 2, Body: "second"}

	// The stream replays e1 after e2, as a resume or publish retry would
	dialer := &scriptedDialer{outcomes: []dialOutcome{
		{stream: &scriptedStream{events: []model.BroadcastEvent{e1, e2, e1}, final: errors.New("stream reset")}},
	}}
	c := newTestClient(t, dialer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	assert.Equal(t, e1, waitForEvent(t, c))
	assert.Equal(t, e2, waitForEvent(t, c))

	// The duplicate is dropped, never a third delivery
	select {
	case e := <-c.Events():
		t.Fatalf("unexpected duplicate delivery: %v", e)
	case <-time.After(50 * time.Millisecond):
	}

	// The stream failure triggers a reconnect resuming from the cursor,
	// which the replayed duplicate advanced to e1
	require.Eventually(t, func() bool { return dialer.dialCount() >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "", dialer.cursorAt(0))
	assert.Equal(t, "1:room.7", dialer.cursorAt(1))
}

func TestClient_ReconnectsWithBackoff(t *testing.T) {
	dialer := &scriptedDialer{outcomes: []dialOutcome{
		{err: errors.New("connection refused")},
		{err: errors.New("connection refused")},
	}}
	recorder := &stateRecorder{}
	c := newTestClient(t, dialer, WithStateListener(recorder.record))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)
	assert.True(t, recorder.saw(StateReconnecting))
	assert.GreaterOrEqual(t, dialer.dialCount(), 3)
}

func TestClient_ExpiredTokenParksOnPrompt(t *testing.T) {
	dialer := &scriptedDialer{outcomes: []dialOutcome{
		{err: roomcast.ErrAuthorizationExpired},
	}}
	c := newTestClient(t, dialer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	require.Eventually(t, func() bool { return c.State() == StateExpiredPrompt }, time.Second, 5*time.Millisecond)

	// No silent reconnection while parked
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())
	assert.Equal(t, StateExpiredPrompt, c.State())

	// Confirming presence fetches a fresh token and reconnects
	c.ConfirmPresence()
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, dialer.dialCount())
}

func TestClient_MidStreamExpiry(t *testing.T) {
	dialer := &scriptedDialer{outcomes: []dialOutcome{
		{stream: &scriptedStream{final: roomcast.ErrAuthorizationExpired}},
	}}
	recorder := &stateRecorder{}
	c := newTestClient(t, dialer, WithStateListener(recorder.record))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	// An expiry mid-stream goes to the prompt, not to backoff reconnection
	require.Eventually(t, func() bool { return c.State() == StateExpiredPrompt }, time.Second, 5*time.Millisecond)
	assert.True(t, recorder.saw(StateConnected))
	assert.False(t, recorder.saw(StateReconnecting))
}

func TestClient_ConnectTwiceFails(t *testing.T) {
	c := newTestClient(t, &scriptedDialer{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	err := c.Connect(ctx)
	require.Error(t, err)

	var rcErr *roomcast.Error
	require.ErrorAs(t, err, &rcErr)
	assert.Equal(t, roomcast.ErrCodeValidation, rcErr.Code)
}

func TestClient_CloseIsTerminal(t *testing.T) {
	c := newTestClient(t, &scriptedDialer{})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Connect(ctx))

	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())

	// ConfirmPresence after close is a no-op
	c.ConfirmPresence()
	assert.Equal(t, StateClosed, c.State())

	// Connect cannot revive a closed client
	require.Error(t, c.Connect(ctx))

	// The events channel closes once the connection loop unwinds
	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-c.Events():
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestClient_CloseReleasesConnection(t *testing.T) {
	stream := newClosableStream()
	dialer := &scriptedDialer{outcomes: []dialOutcome{{stream: stream}}}
	c := newTestClient(t, dialer)

	// Deliberately a long-lived context: Close alone must tear down the
	// connection without the caller canceling anything
	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())

	require.Eventually(t, stream.isClosed, time.Second, 5*time.Millisecond)

	// The connection loop unwinds and closes the events channel, leaving no
	// background work behind
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-c.Events():
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestClient_ViewRoomBeatsImmediately(t *testing.T) {
	hb := &recordingHeartbeater{}
	c := newTestClient(t, &scriptedDialer{}, WithHeartbeater(hb))

	c.ViewRoom(context.Background(), 7)
	assert.Equal(t, []int64{7}, hb.beats)

	c.ClearView()
	c.mu.Lock()
	assert.Equal(t, int64(0), c.viewing)
	c.mu.Unlock()
}

func TestClient_HeartbeatLoop(t *testing.T) {
	hb := &recordingHeartbeater{}
	c := newTestClient(t, &scriptedDialer{},
		WithHeartbeater(hb),
		WithHeartbeatInterval(5*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	c.ViewRoom(ctx, 7)
	require.Eventually(t, func() bool { return hb.count() >= 3 }, time.Second, 5*time.Millisecond)

	// Once the view clears, the ticker keeps running but sends nothing
	c.ClearView()
	settled := hb.count()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, hb.count(), settled+1)
}
