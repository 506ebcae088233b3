package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialHub spins up a server that registers every accepted connection
// under the given device id and returns a connected client side.
func dialHub(t *testing.T, hub *Hub, deviceID string) *websocket.Conn {
	t.Helper()

	registered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(deviceID, conn)
		close(registered)
		// Hold the handler open; the hub owns the write side.
		ctx := r.Context()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)

	select {
	case <-registered:
	case <-time.After(5 * time.Second):
		t.Fatal("connection never registered")
	}
	return conn
}

func TestNotifyDeliversForcedLogout(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "phone-a")

	require.True(t, hub.Connected("phone-a"))
	assert.True(t, hub.Notify("phone-a"))
	assert.False(t, hub.Connected("phone-a"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	kind, payload, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, kind)
	assert.Equal(t, ForcedLogoutEvent, string(payload))

	// The hub closes the connection after the one-shot event.
	_, _, err = conn.Read(ctx)
	assert.Error(t, err)
}

func TestNotifyUnconnectedDevice(t *testing.T) {
	hub := NewHub()
	assert.False(t, hub.Notify("nobody-home"))
}

func TestReconnectSupersedesPreviousHandle(t *testing.T) {
	hub := NewHub()
	first := dialHub(t, hub, "laptop-b")
	second := dialHub(t, hub, "laptop-b")

	// The first client's handle was closed on re-registration.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := first.Read(ctx)
	require.Error(t, err)

	require.True(t, hub.Notify("laptop-b"))
	_, payload, err := second.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, ForcedLogoutEvent, string(payload))
}

func TestUnregisterLeavesNewerRegistration(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "tablet-c")
	replacement := dialHub(t, hub, "tablet-c")

	// Stale unregister for the displaced handle must not evict the
	// live one.
	hub.Unregister("tablet-c", conn)
	assert.True(t, hub.Connected("tablet-c"))

	hub.Unregister("tablet-c", replacement)
	assert.False(t, hub.Connected("tablet-c"))
}
