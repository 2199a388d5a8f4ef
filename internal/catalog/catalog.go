package catalog

import (
	"errors"
	"fmt"
)

// Command categories.
const (
	CategoryStandard = "standard"
	CategorySimple   = "simple"
	CategoryCustom   = "custom"
)

// Domain errors reported to the caller before any transport interaction.
var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrCommandTooLong = errors.New("command too long")
	ErrInvalidParams  = errors.New("invalid command parameters")
)

// MaxCustomCommandLen bounds the length of a free-form custom command string.
const MaxCustomCommandLen = 64

// PlayerIDToken is the placeholder parameter value substituted with the
// active player identifier at send time.
const PlayerIDToken = "$PID"

// Invocation is a command resolved against the catalog: a concrete RPC
// method plus its parameter object. Params may contain PlayerIDToken values;
// NeedsPlayer marks such invocations for late binding by the dispatcher.
type Invocation struct {
	Name        string
	Category    string
	Method      string
	Params      map[string]any
	NeedsPlayer bool
	HoldCapable bool // method accepts a "holdtime" parameter (milliseconds)
}

type buttonSpec struct {
	button string
	keymap string
}

// Remote-keymap buttons sent through Input.ButtonEvent.
// Keymap R1 matches the device's remote.xml mapping, KB its keyboard.xml.
var buttonKeymap = map[string]buttonSpec{
	"channel_up":      {"pageplus", "R1"},
	"channel_down":    {"pageminus", "R1"},
	"cursor_up":       {"up", "R1"},
	"cursor_down":     {"down", "R1"},
	"cursor_left":     {"left", "R1"},
	"cursor_right":    {"right", "R1"},
	"cursor_enter":    {"enter", "KB"},
	"back":            {"backspace", "KB"},
	"digit_0":         {"zero", "R1"},
	"digit_1":         {"one", "R1"},
	"digit_2":         {"two", "R1"},
	"digit_3":         {"three", "R1"},
	"digit_4":         {"four", "R1"},
	"digit_5":         {"five", "R1"},
	"digit_6":         {"six", "R1"},
	"digit_7":         {"seven", "R1"},
	"digit_8":         {"eight", "R1"},
	"digit_9":         {"nine", "R1"},
	"record":          {"record", "R1"},
	"guide":           {"guide", "R1"},
	"function_green":  {"green", "R1"},
	"function_blue":   {"blue", "R1"},
	"function_red":    {"red", "R1"},
	"function_yellow": {"yellow", "R1"},
}

// Commands mapped onto named input actions (Input.ExecuteAction).
var actionKeymap = map[string]string{
	"subtitle":     "nextsubtitle",
	"audio_track":  "audionextlanguage",
	"fast_forward": "fastforward",
	"rewind":       "rewind",
	"menu":         "menu",
	"info":         "info",
}

// Simple commands: fixed, parameterless symbolic actions. Values containing a
// dot are direct RPC methods, everything else goes through Input.ExecuteAction.
var simpleCommands = map[string]string{
	"MENU_VIDEO":                 "showvideomenu",
	"MODE_FULLSCREEN":            "togglefullscreen",
	"MODE_ZOOM_IN":               "zoomin",
	"MODE_ZOOM_OUT":              "zoomout",
	"MODE_INCREASE_PAR":          "increasepar",
	"MODE_DECREASE_PAR":          "decreasepar",
	"MODE_SHOW_SUBTITLES":        "showsubtitles",
	"MODE_SUBTITLES_DELAY_MINUS": "subtitledelayminus",
	"MODE_SUBTITLES_DELAY_PLUS":  "subtitledelayplus",
	"MODE_AUDIO_DELAY_MINUS":     "audiodelayminus",
	"MODE_AUDIO_DELAY_PLUS":      "audiodelayplus",
	"MODE_DELETE":                "delete",
	"APP_SHUTDOWN":               "System.Shutdown",
	"APP_REBOOT":                 "System.Reboot",
	"APP_HIBERNATE":              "System.Hibernate",
	"APP_SUSPEND":                "System.Suspend",
	"ACTION_BLUE":                "blue",
	"ACTION_GREEN":               "green",
	"ACTION_RED":                 "red",
	"ACTION_YELLOW":              "yellow",
}

// Catalog resolves symbolic command names to RPC invocations.
// Read-only after construction.
type Catalog struct{}

func New() *Catalog {
	return &Catalog{}
}

// Resolve maps a symbolic command name and optional parameters to an
// Invocation. Names that are neither standard nor simple commands are parsed
// through the custom-command grammar.
func (c *Catalog) Resolve(name string, params map[string]any) (Invocation, error) {
	if inv, ok, err := c.resolveStandard(name, params); ok {
		return inv, err
	}
	if inv, ok := c.resolveSimple(name); ok {
		return inv, nil
	}
	return c.resolveCustom(name)
}

// resolveStandard handles the fixed navigation/playback/volume/channel set.
func (c *Catalog) resolveStandard(name string, params map[string]any) (Invocation, bool, error) {
	std := func(method string, p map[string]any) Invocation {
		return Invocation{
			Name:        name,
			Category:    CategoryStandard,
			Method:      method,
			Params:      p,
			NeedsPlayer: hasPlayerToken(p),
		}
	}

	switch name {
	case "volume":
		v, err := intParam(params, "volume")
		if err != nil {
			return Invocation{}, true, err
		}
		if v < 0 || v > 100 {
			return Invocation{}, true, fmt.Errorf("%w: volume %d out of range 0..100", ErrInvalidParams, v)
		}
		return std("Application.SetVolume", map[string]any{"volume": v}), true, nil
	case "volume_up":
		return std("Input.ExecuteAction", map[string]any{"action": "volumeup"}), true, nil
	case "volume_down":
		return std("Input.ExecuteAction", map[string]any{"action": "volumedown"}), true, nil
	case "mute":
		return std("Application.SetMute", map[string]any{"mute": true}), true, nil
	case "unmute":
		return std("Application.SetMute", map[string]any{"mute": false}), true, nil
	case "mute_toggle":
		return std("Application.SetMute", map[string]any{"mute": "toggle"}), true, nil
	case "play_pause":
		return std("Player.PlayPause", map[string]any{"playerid": PlayerIDToken, "play": "toggle"}), true, nil
	case "stop":
		return std("Player.Stop", map[string]any{"playerid": PlayerIDToken}), true, nil
	case "next":
		return std("Player.GoTo", map[string]any{"playerid": PlayerIDToken, "to": "next"}), true, nil
	case "previous":
		return std("Player.GoTo", map[string]any{"playerid": PlayerIDToken, "to": "previous"}), true, nil
	case "seek":
		pos, err := intParam(params, "media_position")
		if err != nil {
			return Invocation{}, true, err
		}
		if pos < 0 {
			return Invocation{}, true, fmt.Errorf("%w: negative seek position", ErrInvalidParams)
		}
		return std("Player.Seek", map[string]any{
			"playerid": PlayerIDToken,
			"value":    map[string]any{"time": secondsToTime(pos)},
		}), true, nil
	case "home":
		return std("Input.Home", map[string]any{}), true, nil
	case "context_menu":
		return std("Input.ContextMenu", map[string]any{}), true, nil
	case "settings":
		return std("GUI.ActivateWindow", map[string]any{"window": "settings"}), true, nil
	case "off":
		return std("Application.Quit", map[string]any{}), true, nil
	}

	if b, ok := buttonKeymap[name]; ok {
		inv := std("Input.ButtonEvent", map[string]any{"button": b.button, "keymap": b.keymap})
		inv.HoldCapable = true
		return inv, true, nil
	}
	if action, ok := actionKeymap[name]; ok {
		return std("Input.ExecuteAction", map[string]any{"action": action}), true, nil
	}
	return Invocation{}, false, nil
}

func (c *Catalog) resolveSimple(name string) (Invocation, bool) {
	target, ok := simpleCommands[name]
	if !ok {
		return Invocation{}, false
	}
	inv := Invocation{Name: name, Category: CategorySimple}
	if isMethodName(target) {
		inv.Method = target
		inv.Params = map[string]any{}
	} else {
		inv.Method = "Input.ExecuteAction"
		inv.Params = map[string]any{"action": target}
	}
	return inv, true
}

// secondsToTime converts a position in seconds to the RPC time object.
func secondsToTime(pos int) map[string]any {
	return map[string]any{
		"hours":        pos / 3600,
		"minutes":      (pos / 60) % 60,
		"seconds":      pos % 60,
		"milliseconds": 0,
	}
}

// intParam extracts an integer parameter, accepting the numeric types JSON
// decoding may produce.
func intParam(params map[string]any, key string) (int, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrInvalidParams, key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("%w: %q must be a number", ErrInvalidParams, key)
}

func hasPlayerToken(params map[string]any) bool {
	for _, v := range params {
		switch t := v.(type) {
		case string:
			if t == PlayerIDToken {
				return true
			}
		case map[string]any:
			if hasPlayerToken(t) {
				return true
			}
		}
	}
	return false
}

// BindPlayer returns a copy of params with every PlayerIDToken value
// replaced by the given player identifier.
func BindPlayer(params map[string]any, playerID int) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		switch t := v.(type) {
		case string:
			if t == PlayerIDToken {
				out[k] = playerID
				continue
			}
			out[k] = t
		case map[string]any:
			out[k] = BindPlayer(t, playerID)
		default:
			out[k] = v
		}
	}
	return out
}
