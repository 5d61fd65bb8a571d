// Package hubws provides hub transport adapters: an HTTP publisher
// implementing roomcast.BroadcastHub and a websocket dialer implementing
// client.Dialer.
//
// The hub itself (Centrifugo, a managed channel service, or the bundled
// development hub) is external to this module; these adapters speak its
// publish and subscribe surfaces.
package hubws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/coregx/roomcast"
	"github.com/coregx/roomcast/model"
)

// defaultPublishTimeout bounds a single publish attempt. Retries belong to
// the outbox worker, not the transport.
const defaultPublishTimeout = 10 * time.Second

// Hub publishes broadcast events to the hub's HTTP publish endpoint.
//
// Thread safety: safe for concurrent use.
type Hub struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  roomcast.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub) error

// NewHub creates a new Hub publishing to the given base URL.
//
// Required options:
//   - WithHubLogger: logger instance
//
// Optional options:
//   - WithAPIKey: hub API key sent as a bearer token
//   - WithHTTPClient: custom HTTP client (default: 10s timeout)
func NewHub(baseURL string, opts ...HubOption) (*Hub, error) {
	if baseURL == "" {
		return nil, roomcast.NewError(roomcast.ErrCodeConfiguration, "hub base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, roomcast.NewErrorWithCause(roomcast.ErrCodeConfiguration, "invalid hub base URL", err)
	}

	h := &Hub{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultPublishTimeout},
	}

	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, roomcast.NewErrorWithCause(roomcast.ErrCodeConfiguration, "failed to apply hub option", err)
		}
	}

	if h.logger == nil {
		return nil, roomcast.NewError(roomcast.ErrCodeConfiguration, "Logger is required (use WithHubLogger)")
	}

	return h, nil
}

// WithHubLogger sets the logger instance.
func WithHubLogger(logger roomcast.Logger) HubOption {
	return func(h *Hub) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		h.logger = logger
		return nil
	}
}

// WithAPIKey sets the hub API key.
func WithAPIKey(key string) HubOption {
	return func(h *Hub) error {
		h.apiKey = key
		return nil
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HubOption {
	return func(h *Hub) error {
		if client == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		h.client = client
		return nil
	}
}

// publishRequest is the hub publish wire format.
type publishRequest struct {
	Channel string               `json:"channel"`
	Event   model.BroadcastEvent `json:"event"`
}

// Publish sends the event to the hub's publish endpoint. A non-2xx response
// is an error; the caller (fan-out or outbox worker) owns retries.
func (h *Hub) Publish(ctx context.Context, channel string, event model.BroadcastEvent) error {
	body, err := json.Marshal(publishRequest{Channel: channel, Event: event})
	if err != nil {
		return roomcast.NewErrorWithCause(roomcast.ErrCodePublishFailure, "failed to encode publish request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/publish", bytes.NewReader(body))
	if err != nil {
		return roomcast.NewErrorWithCause(roomcast.ErrCodePublishFailure, "failed to build publish request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return roomcast.NewErrorWithCause(roomcast.ErrCodePublishFailure, "publish request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return roomcast.NewError(roomcast.ErrCodePublishFailure,
			fmt.Sprintf("hub returned status %d: %s", resp.StatusCode, string(snippet)))
	}

	h.logger.Debugf("Published event %s to channel %s", event.ID, channel)
	return nil
}
