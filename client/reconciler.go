package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/coregx/roomcast"
	"github.com/coregx/roomcast/model"
)

// PendingStatus is the lifecycle state of an optimistically rendered message.
type PendingStatus string

const (
	// PendingSending indicates the message is rendered locally, awaiting its
	// authoritative echo.
	PendingSending PendingStatus = "sending"

	// PendingConfirmed indicates the echo arrived and the local render was
	// replaced with the authoritative message.
	PendingConfirmed PendingStatus = "confirmed"

	// PendingFailed indicates no echo arrived within the timeout. The message
	// stays visible in the failed state until the user retries or discards it;
	// it is never silently dropped.
	PendingFailed PendingStatus = "failed"
)

// Defaults for reconciliation timing. The match window tolerates clock skew
// and delivery latency between the optimistic render and the echo; the
// timeout is when a missing echo turns into a visible failure.
const (
	defaultMatchWindow       = 2 * time.Minute
	defaultConfirmTimeout    = 15 * time.Second
	defaultMaxPendingPerRoom = 64
)

// PendingMessage is an optimistically rendered message awaiting confirmation.
type PendingMessage struct {
	Handle   string        // Client-local identifier for the render
	RoomID   int64         // Room the message was sent to
	AuthorID int64         // Local subscriber (the sender)
	Body     string        // Message content
	SentAt   time.Time     // When the optimistic render happened (or last retry)
	Status   PendingStatus // Current lifecycle state

	// Filled on confirmation
	MessageID int64 // Authoritative server-assigned ID
	Sequence  int64 // Authoritative room sequence
}

// Reconciler matches optimistically rendered messages against their
// authoritative broadcast echoes.
//
// The wire protocol carries no client-generated identifier, so matching is
// heuristic: an incoming event confirms the EARLIEST still-pending message
// with the same room, author, and body whose render time falls within the
// match window. Two identical sends confirm in order, which is correct
// because the server also committed them in order.
//
// Thread safety: safe for concurrent use.
type Reconciler struct {
	mu       sync.Mutex
	pending  map[int64][]*PendingMessage // Per room, ordered by SentAt
	window   time.Duration
	timeout  time.Duration
	logger   roomcast.Logger
	now      func() time.Time
	sequence int64 // Handle counter
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler) error

// NewReconciler creates a new Reconciler with the provided options.
//
// Required options:
//   - WithReconcilerLogger: logger instance
//
// Optional options:
//   - WithMatchWindow: match tolerance window (default: 2 minutes)
//   - WithConfirmTimeout: pending-to-failed timeout (default: 15 seconds)
func NewReconciler(opts ...ReconcilerOption) (*Reconciler, error) {
	r := &Reconciler{
		pending: make(map[int64][]*PendingMessage),
		window:  defaultMatchWindow,
		timeout: defaultConfirmTimeout,
		now:     time.Now,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, roomcast.NewErrorWithCause(roomcast.ErrCodeConfiguration, "failed to apply reconciler option", err)
		}
	}

	if r.logger == nil {
		return nil, roomcast.NewError(roomcast.ErrCodeConfiguration, "Logger is required (use WithReconcilerLogger)")
	}

	return r, nil
}

// WithReconcilerLogger sets the logger instance.
func WithReconcilerLogger(logger roomcast.Logger) ReconcilerOption {
	return func(r *Reconciler) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		r.logger = logger
		return nil
	}
}

// WithMatchWindow sets the tolerance window for matching an echo to a render.
func WithMatchWindow(window time.Duration) ReconcilerOption {
	return func(r *Reconciler) error {
		if window <= 0 {
			return fmt.Errorf("match window must be > 0, got %v", window)
		}
		r.window = window
		return nil
	}
}

// WithConfirmTimeout sets how long a pending message waits for its echo
// before being marked failed.
func WithConfirmTimeout(timeout time.Duration) ReconcilerOption {
	return func(r *Reconciler) error {
		if timeout <= 0 {
			return fmt.Errorf("confirm timeout must be > 0, got %v", timeout)
		}
		r.timeout = timeout
		return nil
	}
}

// Add registers an optimistic render and returns its handle. Call this at
// the moment the message is rendered locally, before the send request.
func (r *Reconciler) Add(roomID, authorID int64, body string) (*PendingMessage, error) {
	if roomID == 0 {
		return nil, roomcast.NewError(roomcast.ErrCodeValidation, "room ID is required")
	}
	if authorID == 0 {
		return nil, roomcast.NewError(roomcast.ErrCodeValidation, "author ID is required")
	}
	if body == "" {
		return nil, roomcast.NewError(roomcast.ErrCodeValidation, "body is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending[roomID]) >= defaultMaxPendingPerRoom {
		return nil, roomcast.NewError(roomcast.ErrCodeValidation,
			fmt.Sprintf("too many pending messages in room %d", roomID))
	}

	r.sequence++
	pm := &PendingMessage{
		Handle:   fmt.Sprintf("pending-%d", r.sequence),
		RoomID:   roomID,
		AuthorID: authorID,
		Body:     body,
		SentAt:   r.now(),
		Status:   PendingSending,
	}
	r.pending[roomID] = append(r.pending[roomID], pm)
	return pm, nil
}

// Reconcile attempts to match an incoming broadcast event against the
// pending set. On a match the earliest pending message with the same room,
// author, and body inside the match window is confirmed and returned; the
// caller replaces its local render with the authoritative event. Returns nil
// when the event is someone else's message (the common case).
func (r *Reconciler) Reconcile(event model.BroadcastEvent) *PendingMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	queue := r.pending[event.RoomID]
	for i, pm := range queue {
		if pm.Status != PendingSending {
			continue
		}
		if pm.AuthorID != event.AuthorID || pm.Body != event.Body {
			continue
		}
		if absDuration(event.PublishedAt.Sub(pm.SentAt)) > r.window {
			continue
		}

		pm.Status = PendingConfirmed
		pm.MessageID = event.MessageID
		pm.Sequence = event.Sequence
		r.pending[event.RoomID] = append(queue[:i], queue[i+1:]...)

		r.logger.Debugf("Confirmed pending message %s as message %d (seq=%d)",
			pm.Handle, pm.MessageID, pm.Sequence)
		return pm
	}
	return nil
}

// SweepTimeouts marks pending messages older than the confirm timeout as
// failed and returns them. Failed messages remain registered for Retry or
// Discard; they are never silently dropped.
//
// Call periodically (e.g. once a second) from the UI loop.
func (r *Reconciler) SweepTimeouts() []*PendingMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var failed []*PendingMessage
	for _, queue := range r.pending {
		for _, pm := range queue {
			if pm.Status == PendingSending && now.Sub(pm.SentAt) > r.timeout {
				pm.Status = PendingFailed
				failed = append(failed, pm)
				r.logger.Warnf("Pending message %s timed out waiting for confirmation", pm.Handle)
			}
		}
	}
	return failed
}

// Retry re-arms a failed message for another send attempt: status back to
// sending, render time reset so the match window and timeout start over.
// The caller is responsible for actually resending the message.
func (r *Reconciler) Retry(handle string) (*PendingMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pm := r.findLocked(handle)
	if pm == nil {
		return nil, roomcast.ErrNoData
	}
	if pm.Status != PendingFailed {
		return nil, roomcast.NewError(roomcast.ErrCodeValidation,
			fmt.Sprintf("cannot retry message in status %s", pm.Status))
	}

	pm.Status = PendingSending
	pm.SentAt = r.now()
	return pm, nil
}

// Discard removes a failed message without resending it.
func (r *Reconciler) Discard(handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID, queue := range r.pending {
		for i, pm := range queue {
			if pm.Handle == handle {
				r.pending[roomID] = append(queue[:i], queue[i+1:]...)
				return nil
			}
		}
	}
	return roomcast.ErrNoData
}

// Pending returns the pending messages for a room, oldest first.
func (r *Reconciler) Pending(roomID int64) []*PendingMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	queue := r.pending[roomID]
	out := make([]*PendingMessage, len(queue))
	copy(out, queue)
	return out
}

func (r *Reconciler) findLocked(handle string) *PendingMessage {
	for _, queue := range r.pending {
		for _, pm := range queue {
			if pm.Handle == handle {
				return pm
			}
		}
	}
	return nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
