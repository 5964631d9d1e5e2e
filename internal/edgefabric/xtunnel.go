package edgefabric

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// XTunnelHub multiplexes operator shell WebSocket connections onto a
// router's x/in and x/out MQTT topics, one hub shared across all active
// shell sessions. Grounded on the teacher's gqlgen-subscription websocket
// wiring in main.prod.go, generalized from a GraphQL subscription transport
// to a raw byte-frame tunnel.
type XTunnelHub struct {
	broker *Broker
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*xtunnelSession // keyed by session id
	byRouter map[string][]string        // routerID -> session ids
}

func newXTunnelHub(broker *Broker, logger *zap.Logger) *XTunnelHub {
	return &XTunnelHub{
		broker:   broker,
		logger:   logger.Named("xtunnel"),
		sessions: make(map[string]*xtunnelSession),
		byRouter: make(map[string][]string),
	}
}

// xtunnelSession is one operator's open shell tunnel to a router.
type xtunnelSession struct {
	id       string
	routerID string
	conn     *websocket.Conn
	mu       sync.Mutex // guards conn.WriteMessage, which is not safe for concurrent use
}

// Attach registers a WebSocket connection as the transport for a new
// tunnel session to routerID. The caller (internal/adminapi's handler) owns
// the connection's read loop and calls Detach on close.
func (h *XTunnelHub) Attach(sessionID, routerID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess := &xtunnelSession{id: sessionID, routerID: routerID, conn: conn}
	h.sessions[sessionID] = sess
	h.byRouter[routerID] = append(h.byRouter[routerID], sessionID)
}

// Detach removes a tunnel session, e.g. when the operator's WebSocket closes.
func (h *XTunnelHub) Detach(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	delete(h.sessions, sessionID)
	ids := h.byRouter[sess.routerID]
	for i, id := range ids {
		if id == sessionID {
			h.byRouter[sess.routerID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// SendToRouter forwards a frame from the operator's WebSocket to the
// router's x/in topic, wrapped with the session id so the router can
// demultiplex if it serves more than one concurrent shell.
func (h *XTunnelHub) SendToRouter(ctx context.Context, sessionID string, frame []byte) error {
	h.mu.RLock()
	sess, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	envelope := append([]byte(sessionID+":"), frame...)
	return h.broker.Publish(ctx, XTunnelInTopic(sess.routerID), envelope, 0)
}

// handleOut is invoked by the broker's onMessage dispatcher for every
// message on a router's x/out topic; it fans the frame out to every
// operator session currently attached to that router.
func (h *XTunnelHub) handleOut(routerID string, payload []byte) {
	h.mu.RLock()
	ids := append([]string(nil), h.byRouter[routerID]...)
	h.mu.RUnlock()

	for _, id := range ids {
		h.mu.RLock()
		sess, ok := h.sessions[id]
		h.mu.RUnlock()
		if !ok {
			continue
		}
		sess.mu.Lock()
		err := sess.conn.WriteMessage(websocket.BinaryMessage, payload)
		sess.mu.Unlock()
		if err != nil {
			h.logger.Warn("x-tunnel write failed", zap.String("sessionID", id), zap.Error(err))
		}
	}
}

// XTunnel exposes the broker's x-tunnel hub.
func (b *Broker) XTunnel() *XTunnelHub { return b.xtunnel }
