// ABOUTME: Websocket subscription endpoint and per-connection subscriber lifecycle
// ABOUTME: Upgraded connections live in the registry until close or send error

package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// maxInboundFrame caps frames read from subscribers. Subscribers are
// listen-only, so anything beyond a trivial frame is abuse.
const maxInboundFrame = 4096

// wsConn adapts one gorilla websocket connection to registry.Subscriber.
// Gorilla permits a single concurrent writer, so sends serialize on
// writeMu; the write deadline bounds each push so a stalled peer fails
// its own send instead of wedging the dispatcher.
type wsConn struct {
	id      string
	conn    *websocket.Conn
	timeout time.Duration
	writeMu sync.Mutex
}

func (c *wsConn) ID() string { return c.id }

// Send pushes one payload frame. The deadline is the earlier of the
// per-channel timeout and the dispatch context's own deadline.
func (c *wsConn) Send(ctx context.Context, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)

	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// handleSubscribe upgrades GET requests on the subscription path and
// registers the connection. The connection then receives every
// subsequently dispatched broadcast verbatim until it closes. Upgrades on
// any other path never reach this handler; the mux 404s them.
func (rl *Relay) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := rl.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		rl.logger.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	sub := &wsConn{
		id:      uuid.New().String(),
		conn:    conn,
		timeout: rl.config.Dispatch.Timeout,
	}
	rl.registry.Add(sub)
	rl.logger.Info("subscriber connected", "conn_id", sub.id, "remote_addr", r.RemoteAddr)

	go rl.readPump(sub)
}

// readPump drains inbound frames until the connection dies. Subscribers
// are listen-only, so frames are discarded; the pump exists to detect
// close/error and remove the connection from the registry immediately.
func (rl *Relay) readPump(sub *wsConn) {
	defer func() {
		rl.registry.Remove(sub.id)
		_ = sub.Close()
		rl.logger.Info("subscriber disconnected", "conn_id", sub.id)
	}()

	sub.conn.SetReadLimit(maxInboundFrame)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}
