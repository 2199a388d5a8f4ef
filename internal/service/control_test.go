package service

import (
	"context"
	"errors"
	"testing"

	"kodibridge"
	"kodibridge/internal/device"
	"kodibridge/internal/logger"
)

func TestControl_Invoke_RecordsCommandEvent(t *testing.T) {
	mgr := &fakeSessionManager{}
	events := &fakeEventRepo{}
	svc := NewControlService(mgr, events, logger.Get(logger.ErrorLevel))

	err := svc.Invoke(context.Background(), "living-room", "play_pause", nil, device.Timing{})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(mgr.invoked) != 1 || mgr.invoked[0] != "play_pause" {
		t.Fatalf("expected dispatch of play_pause, got %v", mgr.invoked)
	}
	if len(events.appended) != 1 {
		t.Fatalf("expected 1 logged event, got %d", len(events.appended))
	}
	ev := events.appended[0]
	if ev.Type != kodibridge.EventCommand || ev.DeviceID != "living-room" || ev.Description != "play_pause" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestControl_Invoke_FailureLogsErrorEvent(t *testing.T) {
	mgr := &fakeSessionManager{invokeErr: errors.New("device busy")}
	events := &fakeEventRepo{}
	svc := NewControlService(mgr, events, logger.Get(logger.ErrorLevel))

	err := svc.Invoke(context.Background(), "living-room", "stop", nil, device.Timing{})
	if err == nil {
		t.Fatalf("expected dispatch error to propagate")
	}
	if len(events.appended) != 1 || events.appended[0].Type != kodibridge.EventError {
		t.Fatalf("expected an ERROR event, got %+v", events.appended)
	}
}

func TestControl_InvokeSequence_RecordsEvent(t *testing.T) {
	mgr := &fakeSessionManager{}
	events := &fakeEventRepo{}
	svc := NewControlService(mgr, events, logger.Get(logger.ErrorLevel))

	steps := []device.Step{{Command: "cursor_up"}, {Command: "cursor_down"}}
	if err := svc.InvokeSequence(context.Background(), "living-room", steps); err != nil {
		t.Fatalf("InvokeSequence: %v", err)
	}
	if len(events.appended) != 1 || events.appended[0].Description != "sequence" {
		t.Fatalf("unexpected events: %+v", events.appended)
	}
}

func TestControl_Status_PassesThrough(t *testing.T) {
	mgr := &fakeSessionManager{
		state:  kodibridge.StateConnected,
		status: kodibridge.DeviceStatus{State: kodibridge.PlaybackPlaying, Volume: 40},
	}
	svc := NewControlService(mgr, &fakeEventRepo{}, logger.Get(logger.ErrorLevel))

	state, status, err := svc.Status("living-room")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if state != kodibridge.StateConnected || status.Volume != 40 {
		t.Fatalf("unexpected status: %s %+v", state, status)
	}
}

func TestControl_Status_UnknownDevice(t *testing.T) {
	mgr := &fakeSessionManager{statusErr: device.ErrDeviceNotFound}
	svc := NewControlService(mgr, &fakeEventRepo{}, logger.Get(logger.ErrorLevel))

	if _, _, err := svc.Status("missing"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}
