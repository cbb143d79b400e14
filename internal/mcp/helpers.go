package mcp

import (
	"fmt"
	"strings"

	"github.com/go-rod/rod"
)

func getStringArg(args map[string]interface{}, key string) string {
	val, ok := args[key]
	if !ok {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func getIntArg(args map[string]interface{}, key string, fallback int) int {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func getBoolArg(args map[string]interface{}, key string, fallback bool) bool {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return fallback
}

// hasIntArg reports whether the key is present and numeric, so tools can
// tell "index 0" apart from "no index given".
func hasIntArg(args map[string]interface{}, key string) bool {
	val, ok := args[key]
	if !ok {
		return false
	}
	switch val.(type) {
	case int, int64, float64:
		return true
	default:
		return false
	}
}

// pageURL fetches a page's current URL, degrading to "" on failure.
func pageURL(page *rod.Page) string {
	info, err := page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// CDP keyboard modifier bits.
const (
	modAlt   = 1
	modCtrl  = 2
	modMeta  = 4
	modShift = 8
)

// parseKeyCombo splits "Control+Shift+Tab" into modifier bits and the key
// name. A bare key returns zero modifiers.
func parseKeyCombo(combo string) (int, string) {
	parts := strings.Split(combo, "+")
	if len(parts) == 1 {
		return 0, parts[0]
	}

	modifiers := 0
	for _, part := range parts[:len(parts)-1] {
		switch strings.ToLower(part) {
		case "alt":
			modifiers |= modAlt
		case "ctrl", "control":
			modifiers |= modCtrl
		case "meta", "cmd", "command":
			modifiers |= modMeta
		case "shift":
			modifiers |= modShift
		}
	}
	return modifiers, parts[len(parts)-1]
}

// keyDefinition maps a key name to the CDP (key, code, keyCode) triple.
// Unknown names pass through with empty code and zero keyCode.
func keyDefinition(name string) (string, string, int) {
	switch name {
	case "Enter", "Return":
		return "Enter", "Enter", 13
	case "Tab":
		return "Tab", "Tab", 9
	case "Escape", "Esc":
		return "Escape", "Escape", 27
	case "Backspace":
		return "Backspace", "Backspace", 8
	case "Delete":
		return "Delete", "Delete", 46
	case "Space", " ":
		return " ", "Space", 32
	case "ArrowUp":
		return "ArrowUp", "ArrowUp", 38
	case "ArrowDown":
		return "ArrowDown", "ArrowDown", 40
	case "ArrowLeft":
		return "ArrowLeft", "ArrowLeft", 37
	case "ArrowRight":
		return "ArrowRight", "ArrowRight", 39
	case "Home":
		return "Home", "Home", 36
	case "End":
		return "End", "End", 35
	case "PageUp":
		return "PageUp", "PageUp", 33
	case "PageDown":
		return "PageDown", "PageDown", 34
	}

	if len(name) == 2 && name[0] == 'F' && name[1] >= '1' && name[1] <= '9' {
		return name, name, 112 + int(name[1]-'1')
	}
	if len(name) == 3 && name[0] == 'F' && name[1] == '1' && name[2] >= '0' && name[2] <= '2' {
		return name, name, 121 + int(name[2]-'0')
	}

	if len(name) == 1 {
		ch := name[0]
		switch {
		case ch >= 'a' && ch <= 'z':
			return name, "Key" + strings.ToUpper(name), int(ch - 'a' + 'A')
		case ch >= 'A' && ch <= 'Z':
			return name, "Key" + name, int(ch)
		case ch >= '0' && ch <= '9':
			return name, "Digit" + name, int(ch)
		}
	}

	return name, "", 0
}
