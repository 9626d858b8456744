package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/aether/internal/observe"
	"github.com/MrWong99/aether/pkg/event"
)

// maxFrameBytes bounds a single stream frame. A reconnect after a long
// outage can replay a large backlog in one frame.
const maxFrameBytes = 16 << 20

// frameTypeEvents is the only frame type the stream acts on.
const frameTypeEvents = "events"

// ErrDial is returned, wrapped, by [Reconciler.Stream] when no connection
// could be established. Any other error means the stream was live and then
// failed.
var ErrDial = errors.New("reconcile: dial")

// frame is one message on the event stream.
type frame struct {
	Type  string            `json:"type"`
	Items []json.RawMessage `json:"items"`
}

// StreamURL derives the WebSocket endpoint from the REST base URL: http
// becomes ws, https becomes wss, and /ws is appended to the base path.
func StreamURL(baseURL, token string, afterSeq int64) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("reconcile: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("reconcile: unsupported base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"

	q := url.Values{}
	q.Set("token", token)
	q.Set("after_seq", strconv.FormatInt(afterSeq, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Stream opens the live event stream after afterSeq and applies every
// events frame as one batch until the connection ends. Any previous
// connection is closed before dialing. Stream does not reconnect.
//
// It returns nil when the server closes normally or when the connection is
// replaced or closed locally, and ctx.Err() on cancellation.
func (r *Reconciler) Stream(ctx context.Context, baseURL, token string, afterSeq int64) error {
	wsURL, err := StreamURL(baseURL, token, afterSeq)
	if err != nil {
		return err
	}

	r.dropConn("stream replaced")

	ctx = observe.WithSource(ctx, "stream")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDial, err)
	}
	conn.SetReadLimit(maxFrameBytes)

	r.connMu.Lock()
	r.conn = conn
	r.connMu.Unlock()
	r.connected.Store(true)
	r.metrics.StreamConnections.Add(ctx, 1)
	defer r.metrics.StreamConnections.Add(context.WithoutCancel(ctx), -1)

	r.logger.InfoContext(ctx, "stream connected", "after_seq", afterSeq)

	err = r.readLoop(ctx, conn)

	r.connMu.Lock()
	current := r.conn == conn
	if current {
		r.conn = nil
		r.connected.Store(false)
	}
	r.connMu.Unlock()

	switch {
	case ctx.Err() != nil:
		conn.CloseNow()
		return ctx.Err()
	case !current:
		return nil
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
		r.logger.InfoContext(ctx, "stream closed by server")
		return nil
	}
	conn.CloseNow()
	return fmt.Errorf("reconcile: stream read: %w", err)
}

// readLoop receives frames until the connection fails and returns the read
// error.
func (r *Reconciler) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		events, ok := r.parseFrame(ctx, msg)
		if !ok {
			continue
		}
		r.ApplyBatch(ctx, events)
	}
}

// parseFrame decodes an events frame. Frames of other types and frames that
// are not JSON are ignored; undecodable items are skipped individually so
// one bad item does not cost the rest of the batch.
func (r *Reconciler) parseFrame(ctx context.Context, msg []byte) ([]event.Event, bool) {
	var f frame
	if err := json.Unmarshal(msg, &f); err != nil {
		r.logger.DebugContext(ctx, "ignoring undecodable frame", "err", err)
		return nil, false
	}
	if f.Type != frameTypeEvents {
		return nil, false
	}
	events := make([]event.Event, 0, len(f.Items))
	for i, raw := range f.Items {
		var e event.Event
		if err := json.Unmarshal(raw, &e); err != nil {
			r.logger.WarnContext(ctx, "skipping undecodable stream item", "index", i, "err", err)
			continue
		}
		events = append(events, e)
	}
	return events, len(events) > 0
}

// dropConn closes the current connection, if any.
func (r *Reconciler) dropConn(reason string) {
	r.connMu.Lock()
	conn := r.conn
	r.conn = nil
	r.connected.Store(false)
	r.connMu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, reason)
	}
}
