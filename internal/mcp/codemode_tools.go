package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openclaw/mcp-browser-server/internal/browser"
	"github.com/openclaw/mcp-browser-server/internal/codemode"
)

// browserEndpoint maps plan paths onto the browser tool surface, so a plan
// step behaves exactly like the corresponding direct tool call.
type browserEndpoint struct {
	tools map[string]Tool
}

func newBrowserEndpoint(manager *browser.Manager, defaultTimeout time.Duration) *browserEndpoint {
	return &browserEndpoint{tools: map[string]Tool{
		"/navigate":      &NavigateTool{manager: manager, defaultTimeout: defaultTimeout},
		"/click":         &ClickTool{manager: manager},
		"/fill":          &FillTool{manager: manager},
		"/get_text":      &GetTextTool{manager: manager},
		"/hover":         &HoverTool{manager: manager},
		"/press_key":     &PressKeyTool{manager: manager},
		"/wait":          &WaitTool{manager: manager},
		"/screenshot":    &ScreenshotTool{manager: manager},
		"/evaluate":      &EvaluateScriptTool{manager: manager},
		"/extract_table": &ExtractTableTool{manager: manager},
		"/new_page":      &NewPageTool{manager: manager},
		"/select_page":   &SelectPageTool{manager: manager},
		"/pages":         &ListPagesTool{manager: manager},
		"/url":           &GetURLTool{manager: manager},
		"/dom":           &GetDomTool{manager: manager},
	}}
}

func (e *browserEndpoint) Call(ctx context.Context, method, path string, body map[string]interface{}) (interface{}, error) {
	tool, ok := e.tools[path]
	if !ok {
		return nil, fmt.Errorf("unknown path %s", path)
	}

	out, err := tool.Execute(ctx, body)
	if err != nil {
		return nil, err
	}
	// Tool-level failure payloads abort the plan; a later step must not run
	// against a page in an unknown state.
	if m, ok := out.(map[string]interface{}); ok {
		if success, ok := m["success"].(bool); ok && !success {
			return nil, fmt.Errorf("%v", m["error"])
		}
	}
	return out, nil
}

// ExecutePlanTool replays a sequence of browser actions under call, step,
// and wall-clock budgets.
type ExecutePlanTool struct {
	manager        *browser.Manager
	defaultTimeout time.Duration
}

func (t *ExecutePlanTool) Name() string { return "execute_plan" }
func (t *ExecutePlanTool) Description() string {
	return `Execute a plan of browser actions in one call instead of many individual tool calls.

Each step is {path, body, method?, save_as?}. Paths mirror the browser tools:
/navigate /click /fill /get_text /hover /press_key /wait /screenshot
/evaluate /extract_table /new_page /select_page /pages /url /dom

Steps saved with save_as can be referenced by later steps via ${name.field}
placeholders in string body values. Execution aborts on the first failing
step or when a budget (calls, steps, time) is exhausted.`
}
func (t *ExecutePlanTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"steps": map[string]interface{}{
				"type":        "array",
				"description": "Ordered plan steps",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"path": map[string]interface{}{
							"type":        "string",
							"description": "Operation path, e.g. /navigate",
						},
						"method": map[string]interface{}{
							"type":        "string",
							"description": "HTTP-style method (default POST)",
						},
						"body": map[string]interface{}{
							"type":        "object",
							"description": "Operation arguments",
						},
						"save_as": map[string]interface{}{
							"type":        "string",
							"description": "Name to save this step's result under",
						},
					},
					"required": []string{"path"},
				},
			},
			"vars": map[string]interface{}{
				"type":        "object",
				"description": "Initial values for ${...} references",
			},
			"max_calls": map[string]interface{}{
				"type":        "integer",
				"description": "Call budget (default 100)",
			},
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "Wall-clock budget in milliseconds (default 60000)",
			},
		},
		"required": []string{"steps"},
	}
}
func (t *ExecutePlanTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	rawSteps, ok := args["steps"]
	if !ok {
		return failure("steps is required"), nil
	}

	encoded, err := json.Marshal(rawSteps)
	if err != nil {
		return failure("invalid steps: %v", err), nil
	}
	var steps []codemode.Step
	if err := json.Unmarshal(encoded, &steps); err != nil {
		return failure("invalid steps: %v", err), nil
	}

	limits := codemode.DefaultLimits()
	if v := getIntArg(args, "max_calls", 0); v > 0 {
		limits.MaxCalls = v
	}
	if v := getIntArg(args, "timeout_ms", 0); v > 0 {
		limits.Timeout = time.Duration(v) * time.Millisecond
	}

	vars, _ := objectArg(args, "vars")

	executor := codemode.NewExecutor(newBrowserEndpoint(t.manager, t.defaultTimeout), limits)
	result, err := executor.Run(ctx, steps, vars)
	if err != nil {
		return failure("plan failed: %v", err), nil
	}

	return map[string]interface{}{
		"success":      true,
		"execution_id": result.ExecutionID,
		"calls":        result.Calls,
		"elapsed_ms":   result.ElapsedMs,
		"saved":        result.Saved,
		"last":         result.Last,
	}, nil
}
