package mcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/openclaw/mcp-browser-server/internal/browser"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

const defaultElementTimeoutMs = 10000

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// clampTimeoutMs bounds a caller-supplied timeout into [100ms, 120s].
func clampTimeoutMs(ms int) time.Duration {
	if ms < 100 {
		ms = 100
	}
	if ms > 120000 {
		ms = 120000
	}
	return time.Duration(ms) * time.Millisecond
}

// findElement locates a selector with a bounded wait. The returned element is
// detached from the lookup deadline so callers can apply their own.
func findElement(page *rod.Page, selector string, timeout time.Duration) (*rod.Element, error) {
	el, err := page.Timeout(timeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element not found: %s", selector)
	}
	return el.CancelTimeout(), nil
}

func failure(format string, a ...interface{}) map[string]interface{} {
	return map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf(format, a...),
	}
}

// =============================================================================
// NAVIGATION
// =============================================================================

// NavigateTool loads a URL in the active page and waits for the load event.
type NavigateTool struct {
	manager        *browser.Manager
	defaultTimeout time.Duration
}

func (t *NavigateTool) Name() string { return "navigate" }
func (t *NavigateTool) Description() string {
	return "Navigate the active page to a URL and wait for it to load."
}
func (t *NavigateTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "Destination URL",
			},
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "Navigation timeout in milliseconds (default 30000)",
			},
		},
		"required": []string{"url"},
	}
}
func (t *NavigateTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	url := getStringArg(args, "url")
	if url == "" {
		return failure("url is required"), nil
	}
	timeout := clampTimeoutMs(getIntArg(args, "timeout_ms", int(t.defaultTimeout/time.Millisecond)))

	page, err := t.manager.Page(ctx)
	if err != nil {
		return nil, err
	}

	p := page.Timeout(timeout)
	if err := p.Navigate(url); err != nil {
		return failure("navigate to %s: %v", url, err), nil
	}
	if err := p.WaitLoad(); err != nil {
		return failure("wait for load of %s: %v", url, err), nil
	}

	return map[string]interface{}{
		"success": true,
		"url":     pageURL(page),
	}, nil
}

// =============================================================================
// ELEMENT ACTIONS
// =============================================================================

// ClickTool clicks the first element matching a CSS selector.
type ClickTool struct {
	manager *browser.Manager
}

func (t *ClickTool) Name() string { return "click" }
func (t *ClickTool) Description() string {
	return "Click the first element matching a CSS selector on the active page."
}
func (t *ClickTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector of the element to click",
			},
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "How long to wait for the element (default 10000)",
			},
		},
		"required": []string{"selector"},
	}
}
func (t *ClickTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	selector := getStringArg(args, "selector")
	if selector == "" {
		return failure("selector is required"), nil
	}
	timeout := clampTimeoutMs(getIntArg(args, "timeout_ms", defaultElementTimeoutMs))

	page, err := t.manager.Page(ctx)
	if err != nil {
		return nil, err
	}

	el, err := findElement(page, selector, timeout)
	if err != nil {
		return failure("%v", err), nil
	}
	if err := el.ScrollIntoView(); err != nil {
		return failure("scroll to %s: %v", selector, err), nil
	}
	if err := el.Click("left", 1); err != nil {
		return failure("click %s: %v", selector, err), nil
	}

	return map[string]interface{}{"success": true, "selector": selector}, nil
}

// FillTool replaces the value of an input element.
type FillTool struct {
	manager *browser.Manager
}

func (t *FillTool) Name() string { return "fill" }
func (t *FillTool) Description() string {
	return "Fill an input element with text, replacing its current value."
}
func (t *FillTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector of the input element",
			},
			"value": map[string]interface{}{
				"type":        "string",
				"description": "Text to enter",
			},
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "How long to wait for the element (default 10000)",
			},
		},
		"required": []string{"selector", "value"},
	}
}
func (t *FillTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	selector := getStringArg(args, "selector")
	if selector == "" {
		return failure("selector is required"), nil
	}
	value := getStringArg(args, "value")
	timeout := clampTimeoutMs(getIntArg(args, "timeout_ms", defaultElementTimeoutMs))

	page, err := t.manager.Page(ctx)
	if err != nil {
		return nil, err
	}

	el, err := findElement(page, selector, timeout)
	if err != nil {
		return failure("%v", err), nil
	}
	// Select existing content first so fill always replaces, never appends.
	_ = el.SelectAllText()
	if err := el.Input(value); err != nil {
		return failure("fill %s: %v", selector, err), nil
	}

	return map[string]interface{}{"success": true, "selector": selector}, nil
}

// GetTextTool extracts the visible text of an element.
type GetTextTool struct {
	manager *browser.Manager
}

func (t *GetTextTool) Name() string { return "get_text" }
func (t *GetTextTool) Description() string {
	return "Get the visible inner text of the first element matching a CSS selector."
}
func (t *GetTextTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector of the element",
			},
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "How long to wait for the element (default 10000)",
			},
		},
		"required": []string{"selector"},
	}
}
func (t *GetTextTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	selector := getStringArg(args, "selector")
	if selector == "" {
		return failure("selector is required"), nil
	}
	timeout := clampTimeoutMs(getIntArg(args, "timeout_ms", defaultElementTimeoutMs))

	page, err := t.manager.Page(ctx)
	if err != nil {
		return nil, err
	}

	el, err := findElement(page, selector, timeout)
	if err != nil {
		return failure("%v", err), nil
	}
	text, err := el.Text()
	if err != nil {
		return failure("read text of %s: %v", selector, err), nil
	}

	return map[string]interface{}{
		"success":  true,
		"selector": selector,
		"text":     text,
	}, nil
}

// HoverTool moves the mouse over an element.
type HoverTool struct {
	manager *browser.Manager
}

func (t *HoverTool) Name() string { return "hover" }
func (t *HoverTool) Description() string {
	return "Hover the mouse over the first element matching a CSS selector."
}
func (t *HoverTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector of the element",
			},
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "How long to wait for the element (default 10000)",
			},
		},
		"required": []string{"selector"},
	}
}
func (t *HoverTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	selector := getStringArg(args, "selector")
	if selector == "" {
		return failure("selector is required"), nil
	}
	timeout := clampTimeoutMs(getIntArg(args, "timeout_ms", defaultElementTimeoutMs))

	page, err := t.manager.Page(ctx)
	if err != nil {
		return nil, err
	}

	el, err := findElement(page, selector, timeout)
	if err != nil {
		return failure("%v", err), nil
	}
	if err := el.ScrollIntoView(); err != nil {
		return failure("scroll to %s: %v", selector, err), nil
	}
	if err := el.Hover(); err != nil {
		return failure("hover %s: %v", selector, err), nil
	}

	return map[string]interface{}{"success": true, "selector": selector}, nil
}

// =============================================================================
// KEYBOARD
// =============================================================================

// PressKeyTool dispatches a raw keyDown+keyUp pair, with modifier support
// ("Control+a", "Shift+Tab", "Enter").
type PressKeyTool struct {
	manager *browser.Manager
}

func (t *PressKeyTool) Name() string { return "press_key" }
func (t *PressKeyTool) Description() string {
	return "Press a key or key combination (e.g. Enter, Tab, Control+a). Optionally focuses an element first."
}
func (t *PressKeyTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"key": map[string]interface{}{
				"type":        "string",
				"description": "Key name or combo, modifiers joined with '+' (Alt, Control, Meta, Shift)",
			},
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "Optional CSS selector to focus before pressing",
			},
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "How long to wait for the selector (default 10000)",
			},
		},
		"required": []string{"key"},
	}
}
func (t *PressKeyTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	combo := getStringArg(args, "key")
	if combo == "" {
		return failure("key is required"), nil
	}
	selector := getStringArg(args, "selector")
	timeout := clampTimeoutMs(getIntArg(args, "timeout_ms", defaultElementTimeoutMs))

	page, err := t.manager.Page(ctx)
	if err != nil {
		return nil, err
	}

	if selector != "" {
		el, err := findElement(page, selector, timeout)
		if err != nil {
			return failure("%v", err), nil
		}
		if err := el.Focus(); err != nil {
			return failure("focus %s: %v", selector, err), nil
		}
	}

	modifiers, name := parseKeyCombo(combo)
	key, code, keyCode := keyDefinition(name)

	down := proto.InputDispatchKeyEvent{
		Type:                  proto.InputDispatchKeyEventTypeKeyDown,
		Modifiers:             modifiers,
		Key:                   key,
		Code:                  code,
		WindowsVirtualKeyCode: keyCode,
		NativeVirtualKeyCode:  keyCode,
	}
	// Printable characters carry text so the page receives actual input,
	// unless a command modifier turns the press into a shortcut.
	if len(key) == 1 && modifiers&(modCtrl|modAlt|modMeta) == 0 {
		down.Text = key
	}
	if err := down.Call(page); err != nil {
		return failure("key down %s: %v", combo, err), nil
	}

	up := proto.InputDispatchKeyEvent{
		Type:                  proto.InputDispatchKeyEventTypeKeyUp,
		Modifiers:             modifiers,
		Key:                   key,
		Code:                  code,
		WindowsVirtualKeyCode: keyCode,
		NativeVirtualKeyCode:  keyCode,
	}
	if err := up.Call(page); err != nil {
		return failure("key up %s: %v", combo, err), nil
	}

	return map[string]interface{}{"success": true, "key": combo}, nil
}

// =============================================================================
// WAITING
// =============================================================================

// WaitTool waits for a selector to appear, or sleeps for a fixed duration.
// Polling never holds manager locks between checks.
type WaitTool struct {
	manager *browser.Manager
}

func (t *WaitTool) Name() string { return "wait" }
func (t *WaitTool) Description() string {
	return "Wait for an element to appear (selector) or for a fixed duration (duration_ms)."
}
func (t *WaitTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector to wait for",
			},
			"duration_ms": map[string]interface{}{
				"type":        "integer",
				"description": "Fixed sleep when no selector is given",
			},
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "Selector wait deadline in milliseconds (default 10000)",
			},
		},
	}
}
func (t *WaitTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	selector := getStringArg(args, "selector")

	if selector == "" {
		duration := clampTimeoutMs(getIntArg(args, "duration_ms", 1000))
		if err := sleepWithContext(ctx, duration); err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"success":   true,
			"waited_ms": duration.Milliseconds(),
		}, nil
	}

	timeout := clampTimeoutMs(getIntArg(args, "timeout_ms", defaultElementTimeoutMs))

	page, err := t.manager.Page(ctx)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		found, _, err := page.Has(selector)
		if err == nil && found {
			return map[string]interface{}{"success": true, "selector": selector}, nil
		}
		if time.Now().After(deadline) {
			return failure("timed out after %s waiting for %s", timeout, selector), nil
		}
		if err := sleepWithContext(ctx, 200*time.Millisecond); err != nil {
			return nil, err
		}
	}
}

// =============================================================================
// CAPTURE & INSPECTION
// =============================================================================

// ScreenshotTool captures the page or a single element as base64 PNG.
type ScreenshotTool struct {
	manager *browser.Manager
}

func (t *ScreenshotTool) Name() string { return "screenshot" }
func (t *ScreenshotTool) Description() string {
	return "Capture a PNG screenshot of the active page, the full page, or a single element. Returns base64 data."
}
func (t *ScreenshotTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "Optional CSS selector to capture just one element",
			},
			"full_page": map[string]interface{}{
				"type":        "boolean",
				"description": "Capture the full scrollable page instead of the viewport",
			},
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "How long to wait for the selector (default 10000)",
			},
		},
	}
}
func (t *ScreenshotTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	selector := getStringArg(args, "selector")
	fullPage := getBoolArg(args, "full_page", false)
	timeout := clampTimeoutMs(getIntArg(args, "timeout_ms", defaultElementTimeoutMs))

	page, err := t.manager.Page(ctx)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch {
	case selector != "":
		el, err := findElement(page, selector, timeout)
		if err != nil {
			return failure("%v", err), nil
		}
		data, err = el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
		if err != nil {
			return failure("screenshot %s: %v", selector, err), nil
		}
	default:
		data, err = page.Screenshot(fullPage, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
		if err != nil {
			return failure("screenshot page: %v", err), nil
		}
	}

	return map[string]interface{}{
		"success":     true,
		"format":      "png",
		"data_base64": base64.StdEncoding.EncodeToString(data),
		"bytes":       len(data),
	}, nil
}

// EvaluateScriptTool runs JavaScript in the page context.
type EvaluateScriptTool struct {
	manager *browser.Manager
}

func (t *EvaluateScriptTool) Name() string { return "evaluate_script" }
func (t *EvaluateScriptTool) Description() string {
	return "Execute JavaScript in the active page and return the result. Accepts an expression or a function like () => { ... }."
}
func (t *EvaluateScriptTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"script": map[string]interface{}{
				"type":        "string",
				"description": "JavaScript expression or function to evaluate",
			},
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "Max execution time in milliseconds (default 5000)",
			},
		},
		"required": []string{"script"},
	}
}
func (t *EvaluateScriptTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	script := getStringArg(args, "script")
	if script == "" {
		return failure("script is required"), nil
	}
	timeout := clampTimeoutMs(getIntArg(args, "timeout_ms", 5000))

	page, err := t.manager.Page(ctx)
	if err != nil {
		return nil, err
	}

	res, err := page.Timeout(timeout).Eval(script)
	if err != nil {
		return failure("evaluate script: %v", err), nil
	}

	return map[string]interface{}{
		"success": true,
		"result":  res.Value.Val(),
	}, nil
}

// ExtractTableTool pulls an HTML table into headers and rows.
type ExtractTableTool struct {
	manager *browser.Manager
}

func (t *ExtractTableTool) Name() string { return "extract_table" }
func (t *ExtractTableTool) Description() string {
	return "Extract an HTML table as structured data. The first row becomes the headers."
}
func (t *ExtractTableTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector of the table (default \"table\")",
			},
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "Max execution time in milliseconds (default 10000)",
			},
		},
	}
}
func (t *ExtractTableTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	selector := getStringArg(args, "selector")
	if selector == "" {
		selector = "table"
	}
	timeout := clampTimeoutMs(getIntArg(args, "timeout_ms", defaultElementTimeoutMs))

	page, err := t.manager.Page(ctx)
	if err != nil {
		return nil, err
	}

	res, err := page.Timeout(timeout).Eval(`(selector) => {
		const table = document.querySelector(selector);
		if (!table) return null;
		return Array.from(table.querySelectorAll('tr')).map(tr =>
			Array.from(tr.querySelectorAll('th,td')).map(c => c.innerText.trim()));
	}`, selector)
	if err != nil {
		return failure("extract table %s: %v", selector, err), nil
	}

	raw, ok := res.Value.Val().([]interface{})
	if !ok {
		return failure("table not found: %s", selector), nil
	}

	var headers []interface{}
	rows := make([]interface{}, 0, len(raw))
	for i, r := range raw {
		if i == 0 {
			headers, _ = r.([]interface{})
			continue
		}
		rows = append(rows, r)
	}

	return map[string]interface{}{
		"success":   true,
		"selector":  selector,
		"headers":   headers,
		"rows":      rows,
		"row_count": len(rows),
	}, nil
}

// HandleDialogTool accepts or dismisses the currently open JavaScript dialog.
type HandleDialogTool struct {
	manager *browser.Manager
}

func (t *HandleDialogTool) Name() string { return "handle_dialog" }
func (t *HandleDialogTool) Description() string {
	return "Accept or dismiss the currently open JavaScript dialog (alert/confirm/prompt)."
}
func (t *HandleDialogTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"accept": map[string]interface{}{
				"type":        "boolean",
				"description": "Accept (true, default) or dismiss (false) the dialog",
			},
			"prompt_text": map[string]interface{}{
				"type":        "string",
				"description": "Text to enter when the dialog is a prompt",
			},
		},
	}
}
func (t *HandleDialogTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	accept := getBoolArg(args, "accept", true)
	promptText := getStringArg(args, "prompt_text")

	page, err := t.manager.Page(ctx)
	if err != nil {
		return nil, err
	}

	handle := proto.PageHandleJavaScriptDialog{
		Accept:     accept,
		PromptText: promptText,
	}
	if err := handle.Call(page); err != nil {
		return failure("handle dialog (accept=%t): %v", accept, err), nil
	}

	return map[string]interface{}{"success": true, "accepted": accept}, nil
}

// GetDomTool returns page or element HTML.
type GetDomTool struct {
	manager *browser.Manager
}

func (t *GetDomTool) Name() string { return "get_dom" }
func (t *GetDomTool) Description() string {
	return "Get the HTML of the active page, or of a single element when a selector is given."
}
func (t *GetDomTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "Optional CSS selector to scope the HTML to one element",
			},
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "How long to wait for the selector (default 10000)",
			},
		},
	}
}
func (t *GetDomTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	selector := getStringArg(args, "selector")
	timeout := clampTimeoutMs(getIntArg(args, "timeout_ms", defaultElementTimeoutMs))

	page, err := t.manager.Page(ctx)
	if err != nil {
		return nil, err
	}

	var html string
	if selector != "" {
		el, err := findElement(page, selector, timeout)
		if err != nil {
			return failure("%v", err), nil
		}
		html, err = el.HTML()
		if err != nil {
			return failure("read HTML of %s: %v", selector, err), nil
		}
	} else {
		html, err = page.HTML()
		if err != nil {
			return failure("read page HTML: %v", err), nil
		}
	}

	return map[string]interface{}{
		"success": true,
		"html":    html,
	}, nil
}

// GetURLTool reports the active page's URL and title.
type GetURLTool struct {
	manager *browser.Manager
}

func (t *GetURLTool) Name() string { return "get_url" }
func (t *GetURLTool) Description() string {
	return "Get the URL and title of the active page."
}
func (t *GetURLTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *GetURLTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	page, err := t.manager.Page(ctx)
	if err != nil {
		return nil, err
	}

	info, err := page.Info()
	if err != nil {
		return failure("read page info: %v", err), nil
	}

	return map[string]interface{}{
		"success": true,
		"url":     info.URL,
		"title":   info.Title,
	}, nil
}
