package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"kodibridge"
	"kodibridge/internal/device"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12 // 4 KB
	defaultInterval  = 1 * time.Second
	maxInterval      = 10 * time.Second
	maxIntervalMilli = 10_000 // 10s in ms
)

// Envelope used for WebSocket messages.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Upgrader for HTTP -> WebSocket. Consider tightening CheckOrigin in production.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origins for production
}

// StatusHub fans reflector status changes out to the websocket subscribers of
// each device. It is the bridge's outbound push path; the interval ticker in
// wsDeviceStatus remains only as a keep-current fallback.
type StatusHub struct {
	mu   sync.Mutex
	subs map[string]map[chan kodibridge.DeviceStatus]struct{}
}

func NewStatusHub() *StatusHub {
	return &StatusHub{subs: make(map[string]map[chan kodibridge.DeviceStatus]struct{})}
}

// Publish hands the status to every subscriber of the device. A slow reader
// misses intermediate updates instead of blocking the reflector.
func (h *StatusHub) Publish(deviceID string, st kodibridge.DeviceStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[deviceID] {
		select {
		case ch <- st:
		default:
		}
	}
}

// Subscribe registers for one device's status changes. The returned cancel
// func must be called when the subscriber goes away.
func (h *StatusHub) Subscribe(deviceID string) (<-chan kodibridge.DeviceStatus, func()) {
	ch := make(chan kodibridge.DeviceStatus, 8)

	h.mu.Lock()
	set := h.subs[deviceID]
	if set == nil {
		set = make(map[chan kodibridge.DeviceStatus]struct{})
		h.subs[deviceID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, deviceID)
		}
		h.mu.Unlock()
	}
}

// wsDeviceStatus streams the connection state and last-known device status
// for one device: immediately on every status change, plus on a fixed
// interval as a fallback.
func (h *Handler) wsDeviceStatus(c *gin.Context) {
	deviceID := c.Param("id")
	interval := h.parseInterval(c)

	if _, _, err := h.services.Control.Status(deviceID); errors.Is(err, device.ErrDeviceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	updates, unsubscribe := h.hub.Subscribe(deviceID)
	defer unsubscribe()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	// Configure read limits and pong handler to extend read deadline.
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader goroutine to handle control frames and detect disconnects.
	done := make(chan struct{})
	go h.startReader(conn, done)

	// Prepare periodic writers: status updates and pings.
	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	// Send initial status immediately.
	if err := h.sendStatus(deviceID, conn); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}

	// Writer/select loop.
	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		case <-updates:
			// The push carries the new status; fetch through the service so
			// the frame also reflects the connection state.
			if err := h.sendStatus(deviceID, conn); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		case <-ticker.C:
			if err := h.sendStatus(deviceID, conn); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		}
	}
}

// Helper: parseInterval reads ?interval=2s or ?interval_ms=2000 with bounds.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	interval := defaultInterval

	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 && d <= maxInterval {
			return d
		}
	}

	if ms := c.Query("interval_ms"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 && v <= maxIntervalMilli {
			return time.Duration(v) * time.Millisecond
		}
	}

	return interval
}

// Helper: startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
	}
}

// Helper: sendStatus fetches and writes the current device status with a write deadline.
func (h *Handler) sendStatus(deviceID string, conn *websocket.Conn) error {
	state, status, err := h.services.Control.Status(deviceID)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_get_status_failed", "device", deviceID, "err", err)
		}
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wsEnvelope{Type: "status", Data: gin.H{
		"connection": state,
		"status":     status,
	}})
}
