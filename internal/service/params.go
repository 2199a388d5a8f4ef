package service

import "time"

// LogFilter supports history filtering by time range, device and type.
type LogFilter struct {
	From     time.Time // inclusive; zero means no lower bound
	To       time.Time // inclusive; zero means no upper bound
	DeviceID string    // "" means all devices
	Type     string    // "", "CONNECTION", "COMMAND", "ERROR"
}
