package device

import (
	"context"
	"encoding/json"

	"kodibridge/internal/jsonrpc"
)

// Transport is the control-channel connection the supervisor hands out.
// Satisfied by *jsonrpc.Client; faked in tests.
type Transport interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Notifications() <-chan jsonrpc.Notification
	Done() <-chan struct{}
	Close() error
}

// DialFunc opens a new control-channel connection to the device.
type DialFunc func(ctx context.Context) (Transport, error)
