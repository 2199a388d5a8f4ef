package device

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"kodibridge"
	"kodibridge/internal/jsonrpc"
	"kodibridge/internal/logger"
)

// StatusSink receives the normalized status whenever an observable field
// changed.
type StatusSink func(status kodibridge.DeviceStatus)

// Normalized media types, keyed by the device's item type vocabulary.
var mediaTypes = map[string]string{
	"music":      "MUSIC",
	"artist":     "MUSIC",
	"album":      "MUSIC",
	"song":       "MUSIC",
	"audio":      "MUSIC",
	"set":        "MUSIC",
	"video":      "VIDEO",
	"musicvideo": "VIDEO",
	"movie":      "MOVIE",
	"tvshow":     "TVSHOW",
	"season":     "TVSHOW",
	"episode":    "TVSHOW",
	"channel":    "TVSHOW",
}

// Reflector consumes device notifications and polled status and maintains
// the per-device DeviceStatus record. Updates are idempotent: re-applying an
// identical observation emits nothing.
type Reflector struct {
	log      *logger.Logger
	endpoint kodibridge.DeviceEndpoint
	policy   Policy
	sink     StatusSink

	// onDeviceOff reports an explicit device-off notification upstream.
	onDeviceOff func()

	mu       sync.Mutex
	status   kodibridge.DeviceStatus
	lastPush time.Time
}

func NewReflector(endpoint kodibridge.DeviceEndpoint, policy Policy, log *logger.Logger, sink StatusSink) *Reflector {
	return &Reflector{
		log:      log,
		endpoint: endpoint,
		policy:   policy.withDefaults(),
		sink:     sink,
		status:   kodibridge.DeviceStatus{State: kodibridge.PlaybackUnknown},
	}
}

// Status returns the last-known device status.
func (r *Reflector) Status() kodibridge.DeviceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Run drains notifications from one live connection until it is gone.
// Polling covers dialect gaps in event coverage, but only while connected
// and only when no push event arrived recently.
func (r *Reflector) Run(ctx context.Context, tr Transport) {
	r.refresh(ctx, tr)

	ticker := time.NewTicker(r.policy.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case n := <-tr.Notifications():
			r.mu.Lock()
			r.lastPush = time.Now()
			r.mu.Unlock()
			r.handleNotification(ctx, tr, n)
		case <-ticker.C:
			r.mu.Lock()
			quiet := time.Since(r.lastPush) >= r.policy.PollInterval
			r.mu.Unlock()
			if quiet {
				r.refresh(ctx, tr)
			}
		case <-tr.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// MarkDisconnected records that the control channel is gone. Disconnection
// alone does not prove the device is powered off, so playback state becomes
// unknown rather than off. An explicit quit/sleep notification has already
// proven power-off; that verdict survives the connection teardown it causes.
func (r *Reflector) MarkDisconnected() {
	r.apply(func(st *kodibridge.DeviceStatus) {
		if st.State == kodibridge.PlaybackOff {
			return
		}
		st.State = kodibridge.PlaybackUnknown
	})
}

// Notification payloads share the {data: {...}} envelope.
type playerData struct {
	Data struct {
		Player struct {
			Speed float64 `json:"speed"`
		} `json:"player"`
	} `json:"data"`
}

type volumeData struct {
	Data struct {
		Volume float64 `json:"volume"`
		Muted  bool    `json:"muted"`
	} `json:"data"`
}

func (r *Reflector) handleNotification(ctx context.Context, tr Transport, n jsonrpc.Notification) {
	switch n.Method {
	case "Player.OnPlay", "Player.OnAVStart", "Player.OnAVChange",
		"Player.OnResume", "Player.OnSpeedChanged", "Player.OnSeek", "Player.OnPause":
		var pd playerData
		if err := json.Unmarshal(n.Params, &pd); err != nil {
			r.log.Debugw("notification_parse_failed", "method", n.Method, "err", err)
			return
		}
		r.apply(func(st *kodibridge.DeviceStatus) {
			if pd.Data.Player.Speed == 0 {
				st.State = kodibridge.PlaybackPaused
			} else {
				st.State = kodibridge.PlaybackPlaying
			}
		})
		// Positions and metadata only travel on the polled properties.
		r.refresh(ctx, tr)

	case "Player.OnStop":
		r.apply(func(st *kodibridge.DeviceStatus) {
			st.State = kodibridge.PlaybackIdle
			clearMedia(st)
		})

	case "Application.OnVolumeChanged":
		var vd volumeData
		if err := json.Unmarshal(n.Params, &vd); err != nil {
			r.log.Debugw("notification_parse_failed", "method", n.Method, "err", err)
			return
		}
		r.apply(func(st *kodibridge.DeviceStatus) {
			st.Volume = int(vd.Data.Volume)
			st.Muted = vd.Data.Muted
		})

	case "System.OnQuit", "System.OnRestart", "System.OnSleep":
		r.apply(func(st *kodibridge.DeviceStatus) {
			st.State = kodibridge.PlaybackOff
			clearMedia(st)
		})
		if r.onDeviceOff != nil {
			r.onDeviceOff()
		}
	}
}

type activePlayer struct {
	PlayerID int    `json:"playerid"`
	Type     string `json:"type"`
}

type timeObject struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

func (t timeObject) seconds() int {
	return t.Hours*3600 + t.Minutes*60 + t.Seconds
}

type playerProperties struct {
	Time      timeObject `json:"time"`
	TotalTime timeObject `json:"totaltime"`
	Speed     float64    `json:"speed"`
}

type playingItem struct {
	Item struct {
		Title     string   `json:"title"`
		Label     string   `json:"label"`
		File      string   `json:"file"`
		Album     string   `json:"album"`
		Artist    []string `json:"artist"`
		Season    int      `json:"season"`
		Episode   int      `json:"episode"`
		Thumbnail string   `json:"thumbnail"`
		Type      string   `json:"type"`
	} `json:"item"`
}

type appProperties struct {
	Volume float64 `json:"volume"`
	Muted  bool    `json:"muted"`
}

// refresh polls the full observable state and applies it as one update.
func (r *Reflector) refresh(ctx context.Context, tr Transport) {
	raw, err := tr.Call(ctx, "Player.GetActivePlayers", nil)
	if err != nil {
		r.log.Debugw("status_poll_failed", "err", err)
		return
	}
	var players []activePlayer
	if err := json.Unmarshal(raw, &players); err != nil {
		r.log.Debugw("status_poll_parse_failed", "err", err)
		return
	}

	if len(players) == 0 {
		r.apply(func(st *kodibridge.DeviceStatus) {
			st.State = kodibridge.PlaybackIdle
			clearMedia(st)
		})
		return
	}
	playerID := players[0].PlayerID

	var app appProperties
	if raw, err = tr.Call(ctx, "Application.GetProperties",
		map[string]any{"properties": []string{"volume", "muted"}}); err != nil {
		r.log.Debugw("status_poll_failed", "err", err)
		return
	} else if err = json.Unmarshal(raw, &app); err != nil {
		r.log.Debugw("status_poll_parse_failed", "err", err)
		return
	}

	var props playerProperties
	if raw, err = tr.Call(ctx, "Player.GetProperties",
		map[string]any{"playerid": playerID, "properties": []string{"time", "totaltime", "speed", "live"}}); err != nil {
		r.log.Debugw("status_poll_failed", "err", err)
		return
	} else if err = json.Unmarshal(raw, &props); err != nil {
		r.log.Debugw("status_poll_parse_failed", "err", err)
		return
	}

	var item playingItem
	if raw, err = tr.Call(ctx, "Player.GetItem",
		map[string]any{"playerid": playerID, "properties": []string{
			"title", "file", "thumbnail", "artist", "album", "season", "episode",
		}}); err != nil {
		r.log.Debugw("status_poll_failed", "err", err)
		return
	} else if err = json.Unmarshal(raw, &item); err != nil {
		r.log.Debugw("status_poll_parse_failed", "err", err)
		return
	}

	r.apply(func(st *kodibridge.DeviceStatus) {
		if props.Speed == 0 {
			st.State = kodibridge.PlaybackPaused
		} else {
			st.State = kodibridge.PlaybackPlaying
		}
		st.Position = props.Time.seconds()
		st.Duration = props.TotalTime.seconds()
		st.Volume = int(app.Volume)
		st.Muted = app.Muted
		st.Title = firstNonEmpty(item.Item.Title, item.Item.Label, item.Item.File)
		st.Album = item.Item.Album
		st.Artist = artistLabel(item.Item.Artist, item.Item.Season, item.Item.Episode)
		st.MediaType = mediaTypes[item.Item.Type]
		st.ImageURL = r.imageURL(item.Item.Thumbnail)
	})
}

// apply mutates a copy of the status and publishes it only when an
// observable field changed.
func (r *Reflector) apply(mutate func(*kodibridge.DeviceStatus)) {
	r.mu.Lock()
	next := r.status
	mutate(&next)
	if next.Same(r.status) {
		r.mu.Unlock()
		return
	}
	next.UpdatedAt = time.Now().UTC()
	r.status = next
	r.mu.Unlock()

	if r.sink != nil {
		r.sink(next)
	}
}

func clearMedia(st *kodibridge.DeviceStatus) {
	st.Position = 0
	st.Duration = 0
	st.Title = ""
	st.Album = ""
	st.Artist = ""
	st.MediaType = ""
	st.ImageURL = ""
}

// imageURL turns an image:// resource into a fetchable HTTP URL on the
// device's web server.
func (r *Reflector) imageURL(thumbnail string) string {
	if thumbnail == "" || !strings.HasPrefix(thumbnail, "image://") {
		return ""
	}
	scheme := "http"
	if r.endpoint.SSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d/image/%s", scheme, r.endpoint.Host, r.endpoint.Port, url.QueryEscape(thumbnail))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// artistLabel falls back to a SxEy label for episodic content without an
// artist list.
func artistLabel(artists []string, season, episode int) string {
	if len(artists) > 0 {
		return artists[0]
	}
	label := ""
	if season > 0 {
		label = fmt.Sprintf("S%d", season)
	}
	if episode > 0 {
		label += fmt.Sprintf("E%d", episode)
	}
	return label
}
