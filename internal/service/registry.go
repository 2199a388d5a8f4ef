package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kodibridge"
	"kodibridge/internal/device"
	"kodibridge/internal/logger"
	"kodibridge/internal/repository"
)

// ErrInvalidDevice rejects malformed device configuration.
var ErrInvalidDevice = errors.New("invalid device configuration")

// Default ports of the media center's web server and control channel.
const (
	defaultHTTPPort = 8080
	defaultWSPort   = 9090
)

// RegistryService persists device endpoints and mirrors them into live
// sessions: saving a device (re)starts its session, deleting tears it down.
type RegistryService struct {
	log     *logger.Logger
	devices repository.DeviceRepo
	manager SessionManager
}

func NewRegistryService(devices repository.DeviceRepo, manager SessionManager, log *logger.Logger) *RegistryService {
	return &RegistryService{log: log, devices: devices, manager: manager}
}

func validateDevice(d *kodibridge.DeviceEndpoint) error {
	d.ID = strings.TrimSpace(d.ID)
	d.Host = strings.TrimSpace(d.Host)
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if d.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidDevice)
	}
	if d.Name == "" {
		d.Name = d.ID
	}
	if d.Port == 0 {
		d.Port = defaultHTTPPort
	}
	if d.WSPort == 0 {
		d.WSPort = defaultWSPort
	}
	return nil
}

// Save validates, persists and (re)connects the device.
func (s *RegistryService) Save(ctx context.Context, d kodibridge.DeviceEndpoint) error {
	if err := validateDevice(&d); err != nil {
		return err
	}
	if err := s.devices.Upsert(ctx, d); err != nil {
		return err
	}
	s.manager.Add(d)
	s.log.Infow("device_saved", "id", d.ID, "host", d.Host)
	return nil
}

func (s *RegistryService) Get(ctx context.Context, id string) (*kodibridge.DeviceEndpoint, error) {
	d, err := s.devices.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, device.ErrDeviceNotFound
	}
	return d, nil
}

func (s *RegistryService) List(ctx context.Context) ([]kodibridge.DeviceEndpoint, error) {
	return s.devices.List(ctx)
}

// Delete removes the device and closes its session.
func (s *RegistryService) Delete(ctx context.Context, id string) error {
	d, err := s.devices.Get(ctx, id)
	if err != nil {
		return err
	}
	if d == nil {
		return device.ErrDeviceNotFound
	}
	if err := s.devices.Delete(ctx, id); err != nil {
		return err
	}
	s.manager.Remove(id)
	s.log.Infow("device_deleted", "id", id)
	return nil
}

// Restore starts a session for every persisted device. Called once at boot.
func (s *RegistryService) Restore(ctx context.Context) error {
	devices, err := s.devices.List(ctx)
	if err != nil {
		return fmt.Errorf("restore devices: %w", err)
	}
	for _, d := range devices {
		s.manager.Add(d)
	}
	s.log.Infow("devices_restored", "count", len(devices))
	return nil
}
