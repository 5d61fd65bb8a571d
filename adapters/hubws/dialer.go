package hubws

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coregx/roomcast"
	"github.com/coregx/roomcast/client"
	"github.com/coregx/roomcast/model"
)

// closeCodeAuthExpired is the application close code the hub sends when the
// capability token carried by the connection expires mid-stream.
const closeCodeAuthExpired = 4401

// Dialer implements client.Dialer over a websocket connection to the hub's
// subscribe endpoint.
//
// The capability token travels as a bearer header on the upgrade request; the
// resume cursor as a query parameter. An HTTP 401 on upgrade, or close code
// 4401 mid-stream, maps to roomcast.ErrAuthorizationExpired so the client
// parks on its presence prompt instead of hammering reconnects.
type Dialer struct {
	subscribeURL string
	wsDialer     *websocket.Dialer
}

// NewDialer creates a Dialer for the hub's subscribe endpoint,
// e.g. "wss://hub.example.com/subscribe".
func NewDialer(subscribeURL string) (*Dialer, error) {
	u, err := url.Parse(subscribeURL)
	if err != nil {
		return nil, roomcast.NewErrorWithCause(roomcast.ErrCodeConfiguration, "invalid subscribe URL", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, roomcast.NewError(roomcast.ErrCodeConfiguration,
			fmt.Sprintf("subscribe URL scheme must be ws or wss, got %q", u.Scheme))
	}
	return &Dialer{
		subscribeURL: subscribeURL,
		wsDialer:     websocket.DefaultDialer,
	}, nil
}

// Dial opens the event stream, resuming after cursor when it is non-empty.
func (d *Dialer) Dial(ctx context.Context, token, cursor string) (client.EventStream, error) {
	target := d.subscribeURL
	if cursor != "" {
		u, err := url.Parse(d.subscribeURL)
		if err != nil {
			return nil, roomcast.NewErrorWithCause(roomcast.ErrCodeConfiguration, "invalid subscribe URL", err)
		}
		q := u.Query()
		q.Set("cursor", cursor)
		u.RawQuery = q.Encode()
		target = u.String()
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := d.wsDialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, roomcast.ErrAuthorizationExpired
		}
		return nil, fmt.Errorf("failed to dial hub: %w", err)
	}

	return &stream{conn: conn}, nil
}

// stream wraps a websocket connection as a client.EventStream.
type stream struct {
	conn *websocket.Conn
}

// Next reads the next broadcast event frame.
func (s *stream) Next(ctx context.Context) (model.BroadcastEvent, error) {
	var event model.BroadcastEvent

	if deadline, ok := ctx.Deadline(); ok {
		if err := s.conn.SetReadDeadline(deadline); err != nil {
			return event, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	if err := s.conn.ReadJSON(&event); err != nil {
		if websocket.IsCloseError(err, closeCodeAuthExpired) {
			return event, roomcast.ErrAuthorizationExpired
		}
		return event, fmt.Errorf("stream read failed: %w", err)
	}
	return event, nil
}

// Close terminates the stream.
func (s *stream) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}
