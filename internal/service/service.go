package service

import (
	"context"

	"kodibridge"
	"kodibridge/internal/device"
	"kodibridge/internal/logger"
	"kodibridge/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Registry manages the configured device endpoints and keeps the live
// sessions in sync with them.
type Registry interface {
	Save(ctx context.Context, d kodibridge.DeviceEndpoint) error
	Get(ctx context.Context, id string) (*kodibridge.DeviceEndpoint, error)
	List(ctx context.Context) ([]kodibridge.DeviceEndpoint, error)
	Delete(ctx context.Context, id string) error
	Restore(ctx context.Context) error
}

// Control exposes command dispatch and status access for one device.
type Control interface {
	Invoke(ctx context.Context, deviceID, command string, params map[string]any, t device.Timing) error
	InvokeSequence(ctx context.Context, deviceID string, steps []device.Step) error
	Status(deviceID string) (kodibridge.ConnectionState, kodibridge.DeviceStatus, error)
	Wake(deviceID string) error
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]kodibridge.BridgeEvent, error)
}

// SessionManager is the live-session surface the services drive.
// Implemented by *device.Manager.
type SessionManager interface {
	Add(endpoint kodibridge.DeviceEndpoint)
	Remove(deviceID string)
	Invoke(ctx context.Context, deviceID, command string, params map[string]any, t device.Timing) error
	InvokeSequence(ctx context.Context, deviceID string, steps []device.Step) error
	Status(deviceID string) (kodibridge.ConnectionState, kodibridge.DeviceStatus, error)
	Wake(deviceID string) error
}

//
// Root Service aggregates all sub-services.
//

type Service struct {
	Registry
	Control
	EventLog
	Authorization
}

func NewService(repos *repository.Repository, manager SessionManager, signingKey string, log *logger.Logger) *Service {
	return &Service{
		Registry:      NewRegistryService(repos.DeviceRepo, manager, log),
		Control:       NewControlService(manager, repos.EventRepo, log),
		EventLog:      NewEventLogService(repos.EventRepo),
		Authorization: NewAuthService(repos.Auth, signingKey),
	}
}
