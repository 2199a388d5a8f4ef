package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"kodibridge"
)

// fakeEventRepo is a minimal stub that satisfies the repository.EventRepo interface.
type fakeEventRepo struct {
	// captured inputs
	gotFrom   time.Time
	gotTo     time.Time
	gotDevice string
	gotType   string

	// configured outputs
	events []kodibridge.BridgeEvent
	err    error

	appended []kodibridge.BridgeEvent
	calls    int
}

func (f *fakeEventRepo) List(ctx context.Context, from, to time.Time, deviceID, typ string) ([]kodibridge.BridgeEvent, error) {
	f.calls++
	f.gotFrom = from
	f.gotTo = to
	f.gotDevice = deviceID
	f.gotType = typ
	return f.events, f.err
}

func (f *fakeEventRepo) Append(ctx context.Context, e kodibridge.BridgeEvent) error {
	f.appended = append(f.appended, e)
	return f.err
}

func TestEventLog_List_NormalizesFilter(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	from := time.Date(2026, 3, 1, 10, 0, 0, 0, loc)
	to := time.Date(2026, 3, 1, 12, 0, 0, 0, loc)

	repo := &fakeEventRepo{events: []kodibridge.BridgeEvent{{EventID: "1"}}}
	svc := NewEventLogService(repo)

	got, err := svc.List(context.Background(), LogFilter{
		From:     from,
		To:       to,
		DeviceID: " living-room ",
		Type:     " error ",
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected passthrough of repo events, got %d", len(got))
	}
	if repo.gotFrom.Location() != time.UTC || repo.gotTo.Location() != time.UTC {
		t.Fatalf("expected UTC normalization, got %v / %v", repo.gotFrom, repo.gotTo)
	}
	if repo.gotDevice != "living-room" {
		t.Fatalf("expected trimmed device id, got %q", repo.gotDevice)
	}
	if repo.gotType != "ERROR" {
		t.Fatalf("expected uppercased type, got %q", repo.gotType)
	}
}

func TestEventLog_List_RejectsInvertedRange(t *testing.T) {
	repo := &fakeEventRepo{}
	svc := NewEventLogService(repo)

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)

	if _, err := svc.List(context.Background(), LogFilter{From: from, To: to}); err == nil {
		t.Fatalf("expected error for inverted range")
	}
	if repo.calls != 0 {
		t.Fatalf("repo must not be queried on validation failure")
	}
}

func TestEventLog_List_ZeroBoundsPassThrough(t *testing.T) {
	repo := &fakeEventRepo{}
	svc := NewEventLogService(repo)

	if _, err := svc.List(context.Background(), LogFilter{}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if !repo.gotFrom.IsZero() || !repo.gotTo.IsZero() {
		t.Fatalf("zero bounds must stay zero, got %v / %v", repo.gotFrom, repo.gotTo)
	}
}

func TestEventLog_List_RepoErrorPropagates(t *testing.T) {
	repo := &fakeEventRepo{err: errors.New("db down")}
	svc := NewEventLogService(repo)

	if _, err := svc.List(context.Background(), LogFilter{}); err == nil {
		t.Fatalf("expected repo error to propagate")
	}
}
