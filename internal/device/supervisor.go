package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kodibridge"
	"kodibridge/internal/jsonrpc"
	"kodibridge/internal/logger"
)

// ErrDeviceUnreachable is returned when a connection attempt made on behalf
// of a caller does not reach Connected within the attempt budget.
var ErrDeviceUnreachable = errors.New("device unreachable")

// Hooks lets the session react to supervisor transitions. Hooks are invoked
// outside the supervisor's lock and must not call back into it synchronously,
// except for NotifyDeviceOff/Wake which are safe from any goroutine.
type Hooks struct {
	OnConnected    func(Transport)
	OnDisconnected func()
	OnStateChange  func(kodibridge.ConnectionState)
}

// connectAttempt collapses concurrent EnsureConnected callers onto a single
// in-flight dial.
type connectAttempt struct {
	done   chan struct{}
	client Transport
	err    error
}

// Supervisor owns the per-device connection state machine:
//
//	Disconnected → Connecting → Connected → Disconnected on failure/close
//	→ Suspended after SuspendAfter consecutive failures or a device-off signal
//	→ Connecting again only on command intent or an explicit wake
//
// Suspension avoids continuous probing of a powered-off host. All transitions
// happen under a single mutex; there is never more than one attempt in flight.
type Supervisor struct {
	log    *logger.Logger
	dial   DialFunc
	policy Policy
	hooks  Hooks

	mu         sync.Mutex
	state      kodibridge.ConnectionState
	client     Transport
	attempt    *connectAttempt
	failures   int
	backoff    time.Duration
	retryTimer *time.Timer
	authErr    error // terminal until the configuration changes
	closed     bool
}

func NewSupervisor(dial DialFunc, policy Policy, log *logger.Logger, hooks Hooks) *Supervisor {
	policy = policy.withDefaults()
	return &Supervisor{
		log:     log,
		dial:    dial,
		policy:  policy,
		hooks:   hooks,
		state:   kodibridge.StateDisconnected,
		backoff: policy.BackoffMin,
	}
}

// State returns the current connection state.
func (s *Supervisor) State() kodibridge.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start kicks off the first connection attempt. Non-blocking.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != kodibridge.StateDisconnected || s.attempt != nil {
		return
	}
	s.startAttemptLocked()
}

// EnsureConnected returns a live transport, starting at most one connection
// attempt if needed. It is the wake trigger for a Suspended device: any
// command intent passes through here. Blocks the caller for at most one
// attempt's duration and fails with ErrDeviceUnreachable otherwise.
func (s *Supervisor) EnsureConnected(ctx context.Context) (Transport, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: supervisor closed", ErrDeviceUnreachable)
	}
	if s.authErr != nil {
		err := s.authErr
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnreachable, err)
	}
	if s.state == kodibridge.StateConnected && s.client != nil {
		client := s.client
		s.mu.Unlock()
		return client, nil
	}
	att := s.attempt
	if att == nil {
		att = s.startAttemptLocked()
	}
	s.mu.Unlock()

	select {
	case <-att.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if att.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnreachable, att.err)
	}
	return att.client, nil
}

// Wake leaves Suspended without a command intent, e.g. on an external
// power-on observation. No-op in any other state.
func (s *Supervisor) Wake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.authErr != nil || s.state != kodibridge.StateSuspended || s.attempt != nil {
		return
	}
	s.startAttemptLocked()
}

// NotifyDeviceOff handles an explicit device-off signal (quit/sleep
// notification): the connection is dropped and the supervisor suspends
// instead of burning reconnect attempts against a powered-down host.
func (s *Supervisor) NotifyDeviceOff() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.stopRetryLocked()
	changed := s.setStateLocked(kodibridge.StateSuspended)
	s.mu.Unlock()

	if client != nil {
		_ = client.Close()
	}
	s.fireStateChange(changed, kodibridge.StateSuspended)
	if client != nil && s.hooks.OnDisconnected != nil {
		s.hooks.OnDisconnected()
	}
}

// Close shuts the supervisor down for good.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	client := s.client
	s.client = nil
	s.stopRetryLocked()
	s.setStateLocked(kodibridge.StateDisconnected)
	s.mu.Unlock()

	if client != nil {
		_ = client.Close()
	}
}

// startAttemptLocked transitions to Connecting and launches the dial
// goroutine. Caller holds s.mu.
func (s *Supervisor) startAttemptLocked() *connectAttempt {
	s.stopRetryLocked()
	att := &connectAttempt{done: make(chan struct{})}
	s.attempt = att
	changed := s.setStateLocked(kodibridge.StateConnecting)
	go s.runAttempt(att, changed)
	return att
}

func (s *Supervisor) runAttempt(att *connectAttempt, stateChanged bool) {
	s.fireStateChange(stateChanged, kodibridge.StateConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), s.policy.ConnectTimeout)
	client, err := s.dial(ctx)
	cancel()

	var (
		newState kodibridge.ConnectionState
		changed  bool
	)
	s.mu.Lock()
	s.attempt = nil
	switch {
	case s.closed:
		if client != nil {
			_ = client.Close()
		}
		err = fmt.Errorf("supervisor closed")
		att.err = err
	case err != nil:
		s.failures++
		switch {
		case errors.Is(err, jsonrpc.ErrAuth):
			// Terminal: retrying cannot succeed until credentials change.
			s.authErr = err
			changed = s.setStateLocked(kodibridge.StateSuspended)
		case s.failures >= s.policy.SuspendAfter:
			s.log.Infow("device_suspended", "failures", s.failures)
			changed = s.setStateLocked(kodibridge.StateSuspended)
		default:
			changed = s.setStateLocked(kodibridge.StateDisconnected)
			s.scheduleRetryLocked()
		}
		newState = s.state
		att.err = err
	default:
		s.client = client
		s.failures = 0
		s.backoff = s.policy.BackoffMin
		changed = s.setStateLocked(kodibridge.StateConnected)
		newState = s.state
		att.client = client
		go s.watch(client)
	}
	s.mu.Unlock()

	s.fireStateChange(changed, newState)
	if att.client != nil && s.hooks.OnConnected != nil {
		s.hooks.OnConnected(att.client)
	}
	close(att.done)
}

// scheduleRetryLocked arms the next background attempt with exponential
// backoff up to the ceiling. Caller holds s.mu.
func (s *Supervisor) scheduleRetryLocked() {
	delay := s.backoff
	s.backoff *= 2
	if s.backoff > s.policy.BackoffMax {
		s.backoff = s.policy.BackoffMax
	}
	s.log.Debugw("reconnect_scheduled", "delay", delay, "failures", s.failures)
	s.retryTimer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || s.state != kodibridge.StateDisconnected || s.attempt != nil {
			return
		}
		s.startAttemptLocked()
	})
}

func (s *Supervisor) stopRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

// watch pings the live connection and reacts to its loss. Timeouts on the
// ping close the connection; Done then drives the Disconnected transition.
func (s *Supervisor) watch(client Transport) {
	ticker := time.NewTicker(s.policy.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.Done():
			s.handleDisconnect(client)
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.policy.CallTimeout)
			_, err := client.Call(ctx, "JSONRPC.Ping", nil)
			cancel()
			var rpcErr *jsonrpc.RPCError
			if err != nil && !errors.As(err, &rpcErr) {
				if errors.Is(err, jsonrpc.ErrClosed) {
					continue // Done will fire
				}
				s.log.Warnw("control_channel_ping_failed", "err", err)
				_ = client.Close()
			}
		}
	}
}

func (s *Supervisor) handleDisconnect(client Transport) {
	s.mu.Lock()
	if s.closed || s.client != client {
		s.mu.Unlock()
		return
	}
	s.client = nil
	changed := false
	// A device-off signal may already have moved us to Suspended.
	if s.state == kodibridge.StateConnected {
		changed = s.setStateLocked(kodibridge.StateDisconnected)
		s.scheduleRetryLocked()
	}
	newState := s.state
	s.mu.Unlock()

	s.fireStateChange(changed, newState)
	if s.hooks.OnDisconnected != nil {
		s.hooks.OnDisconnected()
	}
}

// setStateLocked mutates the state and reports whether it changed.
// Caller holds s.mu; the hook is fired by the caller after unlocking.
func (s *Supervisor) setStateLocked(st kodibridge.ConnectionState) bool {
	if s.state == st {
		return false
	}
	s.log.Debugw("connection_state", "from", s.state, "to", st)
	s.state = st
	return true
}

func (s *Supervisor) fireStateChange(changed bool, st kodibridge.ConnectionState) {
	if changed && s.hooks.OnStateChange != nil {
		s.hooks.OnStateChange(st)
	}
}
