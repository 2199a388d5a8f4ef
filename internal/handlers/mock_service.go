package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kodibridge"
	"kodibridge/internal/device"
	"kodibridge/internal/service"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockRegistry struct {
	devices   []kodibridge.DeviceEndpoint
	getDevice *kodibridge.DeviceEndpoint
	saveErr   error
	getErr    error
	listErr   error
	deleteErr error

	lastSaved  kodibridge.DeviceEndpoint
	deletedIDs []string
}

func (m *mockRegistry) Save(ctx context.Context, d kodibridge.DeviceEndpoint) error {
	m.lastSaved = d
	return m.saveErr
}
func (m *mockRegistry) Get(ctx context.Context, id string) (*kodibridge.DeviceEndpoint, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.getDevice, nil
}
func (m *mockRegistry) List(ctx context.Context) ([]kodibridge.DeviceEndpoint, error) {
	return m.devices, m.listErr
}
func (m *mockRegistry) Delete(ctx context.Context, id string) error {
	m.deletedIDs = append(m.deletedIDs, id)
	return m.deleteErr
}
func (m *mockRegistry) Restore(ctx context.Context) error { return nil }

type mockControl struct {
	invokeErr   error
	sequenceErr error
	statusErr   error
	wakeErr     error
	state       kodibridge.ConnectionState
	status      kodibridge.DeviceStatus

	lastDeviceID string
	lastCommand  string
	lastTiming   device.Timing
	lastSteps    []device.Step
	invokeCalls  int
}

func (m *mockControl) Invoke(ctx context.Context, deviceID, command string, params map[string]any, t device.Timing) error {
	m.invokeCalls++
	m.lastDeviceID = deviceID
	m.lastCommand = command
	m.lastTiming = t
	return m.invokeErr
}
func (m *mockControl) InvokeSequence(ctx context.Context, deviceID string, steps []device.Step) error {
	m.lastDeviceID = deviceID
	m.lastSteps = steps
	return m.sequenceErr
}
func (m *mockControl) Status(deviceID string) (kodibridge.ConnectionState, kodibridge.DeviceStatus, error) {
	m.lastDeviceID = deviceID
	return m.state, m.status, m.statusErr
}
func (m *mockControl) Wake(deviceID string) error {
	m.lastDeviceID = deviceID
	return m.wakeErr
}

type mockEventLog struct {
	resp       []kodibridge.BridgeEvent
	err        error
	lastFrom   time.Time
	lastTo     time.Time
	lastDevice string
	lastType   string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]kodibridge.BridgeEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastDevice = f.DeviceID
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
