package device

import (
	"context"

	"kodibridge"
	"kodibridge/internal/catalog"
	"kodibridge/internal/jsonrpc"
	"kodibridge/internal/logger"
)

// EventSink receives connection and command lifecycle events for the bridge
// event log.
type EventSink func(deviceID string, eventType, description string)

// Session bundles everything the bridge runs per configured device: the
// connection supervisor, the command dispatcher and the status reflector.
type Session struct {
	endpoint   kodibridge.DeviceEndpoint
	log        *logger.Logger
	supervisor *Supervisor
	dispatcher *Dispatcher
	reflector  *Reflector

	cancel context.CancelFunc
	ctx    context.Context
}

// NewSession wires up a session for one device endpoint. The session does
// not connect until Start is called.
func NewSession(endpoint kodibridge.DeviceEndpoint, policy Policy, cat *catalog.Catalog, log *logger.Logger, statusSink StatusSink, eventSink EventSink) *Session {
	log = log.Named(endpoint.ID)
	dial := func(ctx context.Context) (Transport, error) {
		cfg := jsonrpc.Config{
			Host:           endpoint.Host,
			WSPort:         endpoint.WSPort,
			Username:       endpoint.Username,
			Password:       endpoint.Password,
			SSL:            endpoint.SSL,
			ConnectTimeout: policy.ConnectTimeout,
			CallTimeout:    policy.CallTimeout,
		}
		client, err := jsonrpc.Dial(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return newSession(endpoint, policy, cat, log, statusSink, eventSink, dial)
}

func newSession(endpoint kodibridge.DeviceEndpoint, policy Policy, cat *catalog.Catalog, log *logger.Logger, statusSink StatusSink, eventSink EventSink, dial DialFunc) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		endpoint: endpoint,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.reflector = NewReflector(endpoint, policy, log, statusSink)

	hooks := Hooks{
		OnConnected: func(tr Transport) {
			go s.reflector.Run(s.ctx, tr)
		},
		OnDisconnected: func() {
			s.reflector.MarkDisconnected()
		},
		OnStateChange: func(st kodibridge.ConnectionState) {
			if eventSink != nil {
				eventSink(endpoint.ID, kodibridge.EventConnection, string(st))
			}
		},
	}
	s.supervisor = NewSupervisor(dial, policy, log, hooks)
	s.reflector.onDeviceOff = s.supervisor.NotifyDeviceOff
	s.dispatcher = NewDispatcher(cat, s.supervisor, log)
	return s
}

// Start launches the first connection attempt in the background.
func (s *Session) Start() { s.supervisor.Start() }

// Wake nudges a suspended session back into connecting.
func (s *Session) Wake() { s.supervisor.Wake() }

// Endpoint returns the device configuration this session serves.
func (s *Session) Endpoint() kodibridge.DeviceEndpoint { return s.endpoint }

// ConnectionState reports the supervisor's current state.
func (s *Session) ConnectionState() kodibridge.ConnectionState { return s.supervisor.State() }

// Status reports the last-known device status.
func (s *Session) Status() kodibridge.DeviceStatus { return s.reflector.Status() }

// Execute issues a single command through the dispatcher.
func (s *Session) Execute(ctx context.Context, command string, params map[string]any, t Timing) error {
	return s.dispatcher.Execute(ctx, command, params, t)
}

// ExecuteSequence issues an ordered command sequence through the dispatcher.
func (s *Session) ExecuteSequence(ctx context.Context, steps []Step) error {
	return s.dispatcher.ExecuteSequence(ctx, steps)
}

// Close tears down the session and its connection.
func (s *Session) Close() {
	s.cancel()
	s.supervisor.Close()
}
