package kodibridge

import "time"

// PlaybackState is the normalized playback state of a device.
type PlaybackState string

const (
	PlaybackUnknown PlaybackState = "UNKNOWN" // device unreachable, power state unproven
	PlaybackOff     PlaybackState = "OFF"
	PlaybackIdle    PlaybackState = "IDLE" // connected, no active player
	PlaybackPlaying PlaybackState = "PLAYING"
	PlaybackPaused  PlaybackState = "PAUSED"
)

// ConnectionState of the control-channel supervisor.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateConnecting   ConnectionState = "CONNECTING"
	StateConnected    ConnectionState = "CONNECTED"
	StateSuspended    ConnectionState = "SUSPENDED"
)

// DeviceEndpoint identifies a configured media-center device.
// Immutable after configuration.
type DeviceEndpoint struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`    // HTTP port, used for artwork URLs
	WSPort   int    `json:"ws_port"` // control-channel websocket port
	Username string `json:"username,omitempty"`
	Password string `json:"-"`
	SSL      bool   `json:"ssl"`
}

// DeviceStatus is the last-known observable state of a device.
// Single shared record per device, last-writer-wins.
type DeviceStatus struct {
	State     PlaybackState `json:"state"`
	Position  int           `json:"position"` // seconds
	Duration  int           `json:"duration"` // seconds
	Volume    int           `json:"volume"`   // 0..100
	Muted     bool          `json:"muted"`
	MediaType string        `json:"media_type,omitempty"`
	Title     string        `json:"title,omitempty"`
	Artist    string        `json:"artist,omitempty"`
	Album     string        `json:"album,omitempty"`
	ImageURL  string        `json:"image_url,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Same reports whether two statuses carry identical observable fields.
// UpdatedAt is bookkeeping and does not count as a change.
func (s DeviceStatus) Same(o DeviceStatus) bool {
	s.UpdatedAt = time.Time{}
	o.UpdatedAt = time.Time{}
	return s == o
}

// Bridge event types.
const (
	EventConnection = "CONNECTION"
	EventCommand    = "COMMAND"
	EventError      = "ERROR"
)

// BridgeEvent is a single log entry of the bridge.
type BridgeEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	DeviceID    string    `json:"device_id"`
	Type        string    `json:"type"`        // CONNECTION | COMMAND | ERROR
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}

type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // don’t expose hash
}
