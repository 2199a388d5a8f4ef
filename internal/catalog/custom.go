package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// resolveCustom parses the free-form custom-command grammar: either a short
// mnemonic with an argument, or a literal `Namespace.Method {json-params}`
// pair forwarded almost verbatim.
func (c *Catalog) resolveCustom(raw string) (Invocation, error) {
	if len(raw) > MaxCustomCommandLen {
		return Invocation{}, fmt.Errorf("%w: %d characters exceeds limit of %d",
			ErrCommandTooLong, len(raw), MaxCustomCommandLen)
	}

	fields := strings.SplitN(strings.TrimSpace(raw), " ", 2)
	key := strings.ToLower(fields[0])
	arg := ""
	if len(fields) == 2 {
		arg = strings.TrimSpace(fields[1])
	}

	cus := func(method string, params map[string]any) Invocation {
		return Invocation{
			Name:        raw,
			Category:    CategoryCustom,
			Method:      method,
			Params:      params,
			NeedsPlayer: hasPlayerToken(params),
		}
	}

	switch key {
	case "activatewindow":
		if arg == "" {
			return Invocation{}, fmt.Errorf("%w: activatewindow requires a window name", ErrInvalidParams)
		}
		return cus("GUI.ActivateWindow", map[string]any{"window": arg}), nil

	case "stereoscopicmode":
		if arg == "" {
			return Invocation{}, fmt.Errorf("%w: stereoscopicmode requires a mode", ErrInvalidParams)
		}
		return cus("GUI.SetStereoscopicMode", map[string]any{"mode": arg}), nil

	case "viewmode":
		if arg == "" {
			return Invocation{}, fmt.Errorf("%w: viewmode requires a mode", ErrInvalidParams)
		}
		return cus("Player.SetViewMode", map[string]any{"playerid": PlayerIDToken, "viewmode": arg}), nil

	case "zoom":
		val, err := zoomValue(arg)
		if err != nil {
			return Invocation{}, err
		}
		return cus("Player.Zoom", map[string]any{"playerid": PlayerIDToken, "zoom": val}), nil

	case "speed":
		val, err := speedValue(arg)
		if err != nil {
			return Invocation{}, err
		}
		return cus("Player.SetSpeed", map[string]any{"playerid": PlayerIDToken, "speed": val}), nil

	case "audiodelay":
		offset, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return Invocation{}, fmt.Errorf("%w: audiodelay requires a numeric offset, got %q", ErrInvalidParams, arg)
		}
		return cus("Player.SetAudioDelay", map[string]any{"playerid": PlayerIDToken, "offset": offset}), nil

	case "key":
		return parseKeyCommand(raw, arg)

	case "action":
		if arg == "" {
			return Invocation{}, fmt.Errorf("%w: action requires an action name", ErrInvalidParams)
		}
		return cus("Input.ExecuteAction", map[string]any{"action": arg}), nil
	}

	// Literal method call: `Namespace.Method {json}`.
	if isMethodName(fields[0]) {
		params := map[string]any{}
		if arg != "" {
			if err := json.Unmarshal([]byte(arg), &params); err != nil {
				return Invocation{}, fmt.Errorf("%w: params of %s are not a JSON object: %v",
					ErrInvalidParams, fields[0], err)
			}
		}
		return cus(fields[0], params), nil
	}

	return Invocation{}, fmt.Errorf("%w: %q", ErrUnknownCommand, raw)
}

// parseKeyCommand handles `key <button> [keymap] [holdtime]`.
func parseKeyCommand(raw, arg string) (Invocation, error) {
	if arg == "" {
		return Invocation{}, fmt.Errorf("%w: key requires a button name", ErrInvalidParams)
	}
	parts := strings.Fields(arg)
	params := map[string]any{"button": parts[0], "keymap": "KB"}
	if len(parts) >= 2 {
		params["keymap"] = parts[1]
	}
	if len(parts) >= 3 {
		holdtime, err := strconv.Atoi(parts[2])
		if err != nil || holdtime < 0 {
			return Invocation{}, fmt.Errorf("%w: key holdtime must be a non-negative integer, got %q",
				ErrInvalidParams, parts[2])
		}
		params["holdtime"] = holdtime
	}
	return Invocation{
		Name:        raw,
		Category:    CategoryCustom,
		Method:      "Input.ButtonEvent",
		Params:      params,
		HoldCapable: true,
	}, nil
}

func zoomValue(arg string) (any, error) {
	if arg == "in" || arg == "out" {
		return arg, nil
	}
	level, err := strconv.Atoi(arg)
	if err != nil || level < 1 || level > 10 {
		return nil, fmt.Errorf("%w: zoom accepts in, out or a level 1..10, got %q", ErrInvalidParams, arg)
	}
	return level, nil
}

func speedValue(arg string) (any, error) {
	if arg == "increment" || arg == "decrement" {
		return arg, nil
	}
	speed, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("%w: speed accepts increment, decrement or an integer, got %q", ErrInvalidParams, arg)
	}
	return speed, nil
}

// isMethodName reports whether s has the `Namespace.Method` shape of an RPC
// method name.
func isMethodName(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return false
	}
	for _, part := range parts {
		for _, r := range part {
			if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
				return false
			}
		}
	}
	return true
}
