package device

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"kodibridge"
	"kodibridge/internal/jsonrpc"
	"kodibridge/internal/logger"
)

func testEndpoint() kodibridge.DeviceEndpoint {
	return kodibridge.DeviceEndpoint{
		ID:     "living-room",
		Host:   "10.0.0.5",
		Port:   8080,
		WSPort: 9090,
	}
}

// playbackHandler serves the polled status RPCs for a device playing a movie.
func playbackHandler(speed float64) func(method string, params any) (json.RawMessage, error) {
	return func(method string, params any) (json.RawMessage, error) {
		switch method {
		case "Player.GetActivePlayers":
			return json.RawMessage(`[{"playerid":1,"type":"video"}]`), nil
		case "Application.GetProperties":
			return json.RawMessage(`{"volume":55,"muted":false}`), nil
		case "Player.GetProperties":
			return json.RawMessage(fmt.Sprintf(
				`{"time":{"hours":0,"minutes":5,"seconds":30},"totaltime":{"hours":1,"minutes":30,"seconds":0},"speed":%g}`,
				speed)), nil
		case "Player.GetItem":
			return json.RawMessage(`{"item":{"title":"Big Buck Bunny","type":"movie","thumbnail":"image://thumb.jpg/"}}`), nil
		}
		return json.RawMessage(`"OK"`), nil
	}
}

func newTestReflector(sink StatusSink) *Reflector {
	return NewReflector(testEndpoint(), testPolicy(), logger.Get(logger.ErrorLevel), sink)
}

func notification(method, params string) jsonrpc.Notification {
	return jsonrpc.Notification{Method: method, Params: json.RawMessage(params)}
}

func TestReflector_RefreshPopulatesStatus(t *testing.T) {
	var emitted []kodibridge.DeviceStatus
	r := newTestReflector(func(st kodibridge.DeviceStatus) { emitted = append(emitted, st) })
	tr := newFakeTransport(playbackHandler(1))

	r.refresh(context.Background(), tr)

	st := r.Status()
	if st.State != kodibridge.PlaybackPlaying {
		t.Fatalf("expected playing, got %s", st.State)
	}
	if st.Position != 330 || st.Duration != 5400 {
		t.Fatalf("unexpected position/duration: %d/%d", st.Position, st.Duration)
	}
	if st.Volume != 55 || st.Muted {
		t.Fatalf("unexpected volume state: %d muted=%v", st.Volume, st.Muted)
	}
	if st.Title != "Big Buck Bunny" || st.MediaType != "MOVIE" {
		t.Fatalf("unexpected media: %q %q", st.Title, st.MediaType)
	}
	if st.ImageURL == "" {
		t.Fatalf("expected a resolvable image URL")
	}
	if len(emitted) != 1 {
		t.Fatalf("expected one emission, got %d", len(emitted))
	}
}

func TestReflector_RefreshIsIdempotent(t *testing.T) {
	var emitted int
	r := newTestReflector(func(kodibridge.DeviceStatus) { emitted++ })
	tr := newFakeTransport(playbackHandler(1))

	r.refresh(context.Background(), tr)
	r.refresh(context.Background(), tr)

	if emitted != 1 {
		t.Fatalf("identical observation must not re-emit, got %d emissions", emitted)
	}
}

func TestReflector_PauseNotification(t *testing.T) {
	r := newTestReflector(nil)
	tr := newFakeTransport(playbackHandler(0))

	r.handleNotification(context.Background(), tr, notification(
		"Player.OnPause", `{"data":{"player":{"playerid":1,"speed":0}}}`))

	if st := r.Status(); st.State != kodibridge.PlaybackPaused {
		t.Fatalf("expected paused, got %s", st.State)
	}
}

func TestReflector_StopClearsMedia(t *testing.T) {
	r := newTestReflector(nil)
	tr := newFakeTransport(playbackHandler(1))
	r.refresh(context.Background(), tr)

	r.handleNotification(context.Background(), tr, notification(
		"Player.OnStop", `{"data":{"end":true}}`))

	st := r.Status()
	if st.State != kodibridge.PlaybackIdle {
		t.Fatalf("expected idle, got %s", st.State)
	}
	if st.Title != "" || st.Position != 0 || st.MediaType != "" {
		t.Fatalf("expected cleared media, got %+v", st)
	}
}

func TestReflector_VolumeNotification(t *testing.T) {
	var emitted int
	r := newTestReflector(func(kodibridge.DeviceStatus) { emitted++ })
	tr := newFakeTransport(nil)

	n := notification("Application.OnVolumeChanged", `{"data":{"volume":80,"muted":true}}`)
	r.handleNotification(context.Background(), tr, n)
	r.handleNotification(context.Background(), tr, n)

	st := r.Status()
	if st.Volume != 80 || !st.Muted {
		t.Fatalf("unexpected volume state: %d muted=%v", st.Volume, st.Muted)
	}
	if emitted != 1 {
		t.Fatalf("repeated notification must not re-emit, got %d", emitted)
	}
}

func TestReflector_QuitNotificationReportsDeviceOff(t *testing.T) {
	r := newTestReflector(nil)
	tr := newFakeTransport(nil)

	var offCalled bool
	r.onDeviceOff = func() { offCalled = true }

	r.handleNotification(context.Background(), tr, notification("System.OnQuit", `{"data":null}`))

	if st := r.Status(); st.State != kodibridge.PlaybackOff {
		t.Fatalf("expected off, got %s", st.State)
	}
	if !offCalled {
		t.Fatalf("expected the device-off signal to propagate")
	}
}

func TestReflector_DisconnectMeansUnknownNotOff(t *testing.T) {
	r := newTestReflector(nil)
	tr := newFakeTransport(playbackHandler(1))
	r.refresh(context.Background(), tr)

	r.MarkDisconnected()

	if st := r.Status(); st.State != kodibridge.PlaybackUnknown {
		t.Fatalf("expected unknown after disconnect, got %s", st.State)
	}
}

func TestReflector_DisconnectKeepsProvenOff(t *testing.T) {
	r := newTestReflector(nil)
	tr := newFakeTransport(nil)

	r.handleNotification(context.Background(), tr, notification("System.OnQuit", `{"data":null}`))
	r.MarkDisconnected()

	if st := r.Status(); st.State != kodibridge.PlaybackOff {
		t.Fatalf("off verdict must survive the disconnect, got %s", st.State)
	}
}

func TestReflector_NoPlayersMeansIdle(t *testing.T) {
	r := newTestReflector(nil)
	tr := newFakeTransport(func(method string, params any) (json.RawMessage, error) {
		if method == "Player.GetActivePlayers" {
			return json.RawMessage(`[]`), nil
		}
		return json.RawMessage(`"OK"`), nil
	})

	r.refresh(context.Background(), tr)

	if st := r.Status(); st.State != kodibridge.PlaybackIdle {
		t.Fatalf("expected idle without players, got %s", st.State)
	}
	if len(tr.callsFor("Player.GetProperties")) != 0 {
		t.Fatalf("no player means no player-scoped polling")
	}
}

func TestReflector_RunExitsOnDone(t *testing.T) {
	r := newTestReflector(nil)
	tr := newFakeTransport(playbackHandler(1))

	finished := make(chan struct{})
	go func() {
		r.Run(context.Background(), tr)
		close(finished)
	}()

	time.Sleep(20 * time.Millisecond)
	_ = tr.Close()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("Run did not exit after connection loss")
	}
}
