package service

import (
	"context"

	"kodibridge"
	"kodibridge/internal/device"
	"kodibridge/internal/logger"
	"kodibridge/internal/repository"
)

// ControlService dispatches commands through the session manager and records
// command outcomes in the bridge event log.
type ControlService struct {
	log     *logger.Logger
	manager SessionManager
	events  repository.EventRepo
}

func NewControlService(manager SessionManager, events repository.EventRepo, log *logger.Logger) *ControlService {
	return &ControlService{log: log, manager: manager, events: events}
}

func (s *ControlService) Invoke(ctx context.Context, deviceID, command string, params map[string]any, t device.Timing) error {
	err := s.manager.Invoke(ctx, deviceID, command, params, t)
	s.record(ctx, deviceID, command, err)
	return err
}

func (s *ControlService) InvokeSequence(ctx context.Context, deviceID string, steps []device.Step) error {
	err := s.manager.InvokeSequence(ctx, deviceID, steps)
	s.record(ctx, deviceID, "sequence", err)
	return err
}

func (s *ControlService) Status(deviceID string) (kodibridge.ConnectionState, kodibridge.DeviceStatus, error) {
	return s.manager.Status(deviceID)
}

func (s *ControlService) Wake(deviceID string) error {
	return s.manager.Wake(deviceID)
}

// record appends a COMMAND or ERROR event. Logging failures must not mask
// the command outcome.
func (s *ControlService) record(ctx context.Context, deviceID, command string, cmdErr error) {
	ev := kodibridge.BridgeEvent{
		DeviceID:    deviceID,
		Type:        kodibridge.EventCommand,
		Description: command,
	}
	if cmdErr != nil {
		ev.Type = kodibridge.EventError
		ev.Metadata = map[string]any{"command": command, "error": cmdErr.Error()}
		ev.Description = "command failed"
	}
	if err := s.events.Append(ctx, ev); err != nil {
		s.log.Warnw("event_log_append_failed", "device", deviceID, "err", err)
	}
}
