package roomcast

import (
	"context"

	"github.com/coregx/roomcast/model"
)

// BroadcastHub is the transport boundary to the external publish/subscribe
// hub. The hub is opaque to this library: it accepts events on named channels
// and streams them to every connected client whose capability token
// enumerates the channel. Hub internals (topic filtering, replay storage,
// connection handling) are not implemented here.
//
// Implementations should return transport errors for failed publishes so the
// outbox retry mechanism can take over; publishes are at-least-once and
// consumers deduplicate by event ID.
type BroadcastHub interface {
	// Publish sends an event to a channel on the hub.
	// Returns an error if the publish fails (network error, non-2xx
	// response, timeout).
	Publish(ctx context.Context, channel string, event model.BroadcastEvent) error
}
