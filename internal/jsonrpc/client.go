package jsonrpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"kodibridge/internal/logger"
)

// Transport errors surfaced to the supervisor/dispatcher.
var (
	ErrAuth    = errors.New("authentication rejected")
	ErrTimeout = errors.New("rpc call timed out")
	ErrClosed  = errors.New("connection closed")
)

// RPCError is an error object returned by the device for a request.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Notification is an unsolicited device-originated message, matched by
// method name rather than id.
type Notification struct {
	Method string
	Params json.RawMessage
}

// Timing and buffer limits for the control channel.
const (
	DefaultCallTimeout    = 5 * time.Second
	DefaultConnectTimeout = 8 * time.Second
	writeWait             = 10 * time.Second
	maxMsgSize            = 1 << 20 // 1 MB, library item payloads can be large
	notificationBuffer    = 32
)

// Config describes how to reach the device's control channel.
type Config struct {
	Host           string
	WSPort         int
	Username       string
	Password       string
	SSL            bool
	ConnectTimeout time.Duration
	CallTimeout    time.Duration
}

func (c Config) url() string {
	scheme := "ws"
	if c.SSL {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/jsonrpc", scheme, c.Host, c.WSPort)
}

// request/response wire envelopes: request {id, method, params},
// response {id, result|error}.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type envelope struct {
	ID     *uint64         `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

type callResult struct {
	result json.RawMessage
	err    error
}

// Client is a single persistent JSON-RPC-over-WebSocket connection.
// Concurrent Call invocations are legal; frame writes are serialized and
// responses are correlated back to their waiters by id.
type Client struct {
	conn        *websocket.Conn
	log         *logger.Logger
	callTimeout time.Duration

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint64]chan callResult
	nextID    atomic.Uint64

	notifications chan Notification
	done          chan struct{}
	closeOnce     sync.Once
}

// Dial opens the control-channel connection. An HTTP 401/403 during the
// upgrade is reported as ErrAuth; the supervisor treats it as terminal.
func Dial(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout}
	header := http.Header{}
	if cfg.Username != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		header.Set("Authorization", "Basic "+creds)
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.url(), header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("connect %s: %w", cfg.url(), ErrAuth)
		}
		return nil, fmt.Errorf("connect %s: %w", cfg.url(), err)
	}
	conn.SetReadLimit(maxMsgSize)

	c := &Client{
		conn:          conn,
		log:           log,
		callTimeout:   cfg.CallTimeout,
		pending:       map[uint64]chan callResult{},
		notifications: make(chan Notification, notificationBuffer),
		done:          make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Call sends a method invocation and waits for its correlated response.
// A timeout fails only this call; the connection stays open.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	ch := make(chan callResult, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	req := request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := c.write(req); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	timer := time.NewTimer(c.callTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("call %s: %w", method, res.err)
		}
		return res.result, nil
	case <-timer.C:
		return nil, fmt.Errorf("call %s: %w", method, ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("call %s: %w", method, ErrClosed)
	}
}

// Notifications returns the stream of device-originated events. The channel
// is drained by the state reflector; it is not closed on disconnect, watch
// Done instead.
func (c *Client) Notifications() <-chan Notification {
	return c.notifications
}

// Done is closed once the read loop has exited, i.e. the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close tears down the connection. Pending calls fail with ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// readLoop dispatches incoming frames: responses by correlation id,
// id-less messages as notifications. Unmatched responses are discarded.
func (c *Client) readLoop() {
	defer func() {
		close(c.done)
		c.failPending()
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.log != nil {
				c.log.Debugw("control_channel_closed", "err", err)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			if c.log != nil {
				c.log.Warnw("control_channel_bad_frame", "err", err)
			}
			continue
		}

		switch {
		case env.ID != nil:
			c.deliver(*env.ID, env)
		case env.Method != "":
			select {
			case c.notifications <- Notification{Method: env.Method, Params: env.Params}:
			default:
				if c.log != nil {
					c.log.Warnw("notification_dropped", "method", env.Method)
				}
			}
		}
	}
}

func (c *Client) deliver(id uint64, env envelope) {
	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	if !ok {
		// Late response after a timeout, or a response we never asked for.
		if c.log != nil {
			c.log.Debugw("unmatched_response_discarded", "id", id)
		}
		return
	}
	if env.Error != nil {
		ch <- callResult{err: env.Error}
		return
	}
	ch <- callResult{result: env.Result}
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- callResult{err: ErrClosed}
	}
}
