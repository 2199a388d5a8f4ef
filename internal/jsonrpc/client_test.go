package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"kodibridge/internal/logger"
)

var upgrader = websocket.Upgrader{}

// fakeDevice runs a scripted JSON-RPC endpoint: handle receives every
// request frame and writes whatever frames it wants back.
func fakeDevice(t *testing.T, handle func(conn *websocket.Conn, req map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req map[string]any
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			handle(conn, req)
		}
	}))
}

func dialTest(t *testing.T, srv *httptest.Server, cfg Config) *Client {
	t.Helper()
	addr := strings.TrimPrefix(srv.URL, "http://")
	host, portStr, _ := strings.Cut(addr, ":")
	port, _ := strconv.Atoi(portStr)
	cfg.Host = host
	cfg.WSPort = port

	c, err := Dial(context.Background(), cfg, logger.Get(logger.ErrorLevel))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func TestCall_CorrelatesResponsesByID(t *testing.T) {
	srv := fakeDevice(t, func(conn *websocket.Conn, req map[string]any) {
		_ = conn.WriteJSON(map[string]any{
			"jsonrpc": "2.0",
			"id":      req["id"],
			"result":  req["method"],
		})
	})
	defer srv.Close()

	c := dialTest(t, srv, Config{})
	defer c.Close()

	res, err := c.Call(context.Background(), "JSONRPC.Ping", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got string
	if err := json.Unmarshal(res, &got); err != nil || got != "JSONRPC.Ping" {
		t.Fatalf("expected echoed method, got %s (%v)", res, err)
	}
}

func TestCall_OutOfOrderResponses(t *testing.T) {
	// Answer the first request only after the second arrived, in reverse
	// order, to prove correlation is by id and not arrival order.
	pending := make(chan map[string]any, 2)
	srv := fakeDevice(t, func(conn *websocket.Conn, req map[string]any) {
		pending <- req
		if len(pending) < 2 {
			return
		}
		first, second := <-pending, <-pending
		for _, r := range []map[string]any{second, first} {
			_ = conn.WriteJSON(map[string]any{
				"jsonrpc": "2.0", "id": r["id"], "result": r["method"],
			})
		}
	})
	defer srv.Close()

	c := dialTest(t, srv, Config{})
	defer c.Close()

	type outcome struct {
		method string
		res    json.RawMessage
		err    error
	}
	results := make(chan outcome, 2)
	for _, m := range []string{"Player.Stop", "Input.Home"} {
		go func(method string) {
			res, err := c.Call(context.Background(), method, nil)
			results <- outcome{method, res, err}
		}(m)
	}

	for i := 0; i < 2; i++ {
		out := <-results
		if out.err != nil {
			t.Fatalf("call %s: %v", out.method, out.err)
		}
		var got string
		if err := json.Unmarshal(out.res, &got); err != nil || got != out.method {
			t.Fatalf("call %s got result %s", out.method, out.res)
		}
	}
}

func TestCall_TimeoutKeepsConnectionOpen(t *testing.T) {
	srv := fakeDevice(t, func(conn *websocket.Conn, req map[string]any) {
		// Ignore the first method entirely, answer everything else.
		if req["method"] == "Slow.Method" {
			return
		}
		_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req["id"], "result": "pong"})
	})
	defer srv.Close()

	c := dialTest(t, srv, Config{CallTimeout: 50 * time.Millisecond})
	defer c.Close()

	_, err := c.Call(context.Background(), "Slow.Method", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// The connection survived the timed-out call.
	if _, err := c.Call(context.Background(), "JSONRPC.Ping", nil); err != nil {
		t.Fatalf("connection should still serve calls, got %v", err)
	}
	select {
	case <-c.Done():
		t.Fatalf("connection closed after call timeout")
	default:
	}
}

func TestCall_RPCErrorSurfaced(t *testing.T) {
	srv := fakeDevice(t, func(conn *websocket.Conn, req map[string]any) {
		_ = conn.WriteJSON(map[string]any{
			"jsonrpc": "2.0",
			"id":      req["id"],
			"error":   map[string]any{"code": -32601, "message": "Method not found"},
		})
	})
	defer srv.Close()

	c := dialTest(t, srv, Config{})
	defer c.Close()

	_, err := c.Call(context.Background(), "No.Such", nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if rpcErr.Code != -32601 {
		t.Fatalf("expected code -32601, got %d", rpcErr.Code)
	}
}

func TestNotifications_DeliveredByMethodName(t *testing.T) {
	srv := fakeDevice(t, func(conn *websocket.Conn, req map[string]any) {
		_ = conn.WriteJSON(map[string]any{
			"jsonrpc": "2.0",
			"method":  "Player.OnPause",
			"params":  map[string]any{"data": map[string]any{"player": map[string]any{"speed": 0}}},
		})
		_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req["id"], "result": "ok"})
	})
	defer srv.Close()

	c := dialTest(t, srv, Config{})
	defer c.Close()

	if _, err := c.Call(context.Background(), "JSONRPC.Ping", nil); err != nil {
		t.Fatalf("call: %v", err)
	}
	select {
	case n := <-c.Notifications():
		if n.Method != "Player.OnPause" {
			t.Fatalf("expected Player.OnPause, got %s", n.Method)
		}
	case <-time.After(time.Second):
		t.Fatalf("notification not delivered")
	}
}

func TestReadLoop_UnmatchedResponseDiscarded(t *testing.T) {
	srv := fakeDevice(t, func(conn *websocket.Conn, req map[string]any) {
		// A response nobody asked for, then the real one.
		_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 9999, "result": "stale"})
		_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req["id"], "result": "ok"})
	})
	defer srv.Close()

	c := dialTest(t, srv, Config{})
	defer c.Close()

	res, err := c.Call(context.Background(), "JSONRPC.Ping", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var got string
	if err := json.Unmarshal(res, &got); err != nil || got != "ok" {
		t.Fatalf("expected ok, got %s", res)
	}
}

func TestDial_AuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	host, portStr, _ := strings.Cut(addr, ":")
	port, _ := strconv.Atoi(portStr)

	_, err := Dial(context.Background(), Config{
		Host: host, WSPort: port, Username: "kodi", Password: "wrong",
	}, logger.Get(logger.ErrorLevel))
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestClose_FailsPendingCalls(t *testing.T) {
	block := make(chan struct{})
	srv := fakeDevice(t, func(conn *websocket.Conn, req map[string]any) {
		<-block
	})
	defer srv.Close()
	defer close(block)

	c := dialTest(t, srv, Config{CallTimeout: 5 * time.Second})

	done := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), "Slow.Method", nil)
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	_ = c.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("pending call not failed on close")
	}
}
