package handler

import (
	"context"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/session-authority/internal/notifier"
)

// DeviceGateway upgrades device connections and keeps the notifier
// hub in sync with their lifecycle. A device announces itself with
// the device_id query parameter, or by sending its id as the first
// text frame after the upgrade (the wire shape older clients used).
type DeviceGateway struct {
	Hub *notifier.Hub
}

func NewDeviceGateway(h *notifier.Hub) *DeviceGateway { return &DeviceGateway{Hub: h} }

const registerDeadline = 10 * time.Second

// Serve handles GET /v1/devices/ws. The connection stays open until
// the device disconnects or the hub closes it after delivering a
// forced-logout event; inbound frames after registration are ignored.
func (g *DeviceGateway) Serve(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		return nil // Accept already wrote the HTTP error
	}

	deviceID := strings.TrimSpace(c.QueryParam("device_id"))
	if deviceID == "" {
		ctx, cancel := context.WithTimeout(c.Request().Context(), registerDeadline)
		typ, data, err := conn.Read(ctx)
		cancel()
		if err != nil || typ != websocket.MessageText {
			_ = conn.Close(websocket.StatusPolicyViolation, "device id required")
			return nil
		}
		deviceID = strings.TrimSpace(string(data))
	}
	if deviceID == "" {
		_ = conn.Close(websocket.StatusPolicyViolation, "device id required")
		return nil
	}

	g.Hub.Register(deviceID, conn)
	defer g.Hub.Unregister(deviceID, conn)

	// Drain until the peer goes away. The read also services control
	// frames, so pings keep working while we wait.
	ctx := c.Request().Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return nil
		}
	}
}
