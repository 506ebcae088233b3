// Package notifier delivers forced-logout signals to live device
// connections. The registry is process-local, ephemeral state owned
// by the service instance: populated when a device announces itself
// over a websocket, drained on disconnect, and consulted when a
// revocation or migration displaces a device. A device that is not
// connected when the signal fires simply misses it and discovers the
// revocation on its next verify.
package notifier

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ForcedLogoutEvent is the single event emitted toward a displaced
// device. It carries no payload.
const ForcedLogoutEvent = "forced_logout"

const defaultWriteTimeout = 5 * time.Second

// Hub maps device ids to their live websocket connections. All map
// access is guarded by a mutex; handles are created and removed by
// independent connection-lifecycle events.
type Hub struct {
	mu           sync.Mutex
	conns        map[string]*websocket.Conn
	writeTimeout time.Duration
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]*websocket.Conn), writeTimeout: defaultWriteTimeout}
}

// Register binds a live connection to a device id. A device
// reconnecting displaces its previous handle, which is closed.
func (h *Hub) Register(deviceID string, conn *websocket.Conn) {
	h.mu.Lock()
	prev := h.conns[deviceID]
	h.conns[deviceID] = conn
	h.mu.Unlock()
	if prev != nil && prev != conn {
		_ = prev.Close(websocket.StatusNormalClosure, "superseded")
	}
}

// Unregister removes the binding, but only if it still points at the
// given connection; a newer registration is left alone.
func (h *Hub) Unregister(deviceID string, conn *websocket.Conn) {
	h.mu.Lock()
	if h.conns[deviceID] == conn {
		delete(h.conns, deviceID)
	}
	h.mu.Unlock()
}

// Connected reports whether a device currently holds a live handle.
func (h *Hub) Connected(deviceID string) bool {
	h.mu.Lock()
	_, ok := h.conns[deviceID]
	h.mu.Unlock()
	return ok
}

// Notify delivers the one-shot forced-logout event to the device if
// it is currently connected, then closes the connection. The signal
// is at-most-once: an unconnected device drops it silently, and a
// write failure is logged, never surfaced. Returns whether a delivery
// was attempted.
func (h *Hub) Notify(deviceID string) bool {
	h.mu.Lock()
	conn, ok := h.conns[deviceID]
	if ok {
		delete(h.conns, deviceID)
	}
	h.mu.Unlock()
	if !ok {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(ForcedLogoutEvent)); err != nil {
		log.Printf("notifier: write to device %s failed: %v", deviceID, err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "forced logout")
	return true
}
