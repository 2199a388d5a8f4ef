package device

import (
	"context"
	"errors"
	"sync"

	"kodibridge"
	"kodibridge/internal/catalog"
	"kodibridge/internal/logger"
)

// ErrDeviceNotFound is returned for operations addressing an unconfigured
// device.
var ErrDeviceNotFound = errors.New("device not found")

// ManagerStatusSink receives status updates tagged with the device they
// belong to.
type ManagerStatusSink func(deviceID string, status kodibridge.DeviceStatus)

// Manager owns the live sessions, one per configured device endpoint.
type Manager struct {
	log       *logger.Logger
	cat       *catalog.Catalog
	policy    Policy
	statusOut ManagerStatusSink
	eventOut  EventSink

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(cat *catalog.Catalog, policy Policy, log *logger.Logger, statusOut ManagerStatusSink, eventOut EventSink) *Manager {
	return &Manager{
		log:       log,
		cat:       cat,
		policy:    policy.withDefaults(),
		statusOut: statusOut,
		eventOut:  eventOut,
		sessions:  make(map[string]*Session),
	}
}

// Add creates and starts a session for the endpoint. An existing session
// with the same id is replaced, picking up configuration changes.
func (m *Manager) Add(endpoint kodibridge.DeviceEndpoint) {
	statusSink := func(st kodibridge.DeviceStatus) {
		if m.statusOut != nil {
			m.statusOut(endpoint.ID, st)
		}
	}
	session := NewSession(endpoint, m.policy, m.cat, m.log, statusSink, m.eventOut)

	m.mu.Lock()
	old := m.sessions[endpoint.ID]
	m.sessions[endpoint.ID] = session
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
	session.Start()
}

// Remove tears down the session for the device id. No-op for unknown ids.
func (m *Manager) Remove(deviceID string) {
	m.mu.Lock()
	session := m.sessions[deviceID]
	delete(m.sessions, deviceID)
	m.mu.Unlock()

	if session != nil {
		session.Close()
	}
}

// Get returns the session for the device id.
func (m *Manager) Get(deviceID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[deviceID]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return session, nil
}

// Invoke runs a single command against the device.
func (m *Manager) Invoke(ctx context.Context, deviceID, command string, params map[string]any, t Timing) error {
	session, err := m.Get(deviceID)
	if err != nil {
		return err
	}
	return session.Execute(ctx, command, params, t)
}

// InvokeSequence runs an ordered command sequence against the device.
func (m *Manager) InvokeSequence(ctx context.Context, deviceID string, steps []Step) error {
	session, err := m.Get(deviceID)
	if err != nil {
		return err
	}
	return session.ExecuteSequence(ctx, steps)
}

// Status reports the connection state and last-known device status.
func (m *Manager) Status(deviceID string) (kodibridge.ConnectionState, kodibridge.DeviceStatus, error) {
	session, err := m.Get(deviceID)
	if err != nil {
		return kodibridge.StateDisconnected, kodibridge.DeviceStatus{}, err
	}
	return session.ConnectionState(), session.Status(), nil
}

// Wake nudges a suspended device back into connecting.
func (m *Manager) Wake(deviceID string) error {
	session, err := m.Get(deviceID)
	if err != nil {
		return err
	}
	session.Wake()
	return nil
}

// Close tears down every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}
