// Package codemode replays a plan of browser actions under execution limits.
//
// A plan is an ordered list of REST-like steps against the browser tool
// surface ("/navigate", "/click", "/fill", ...). The executor enforces a
// call budget, a wall-clock budget, and a step budget so a runaway plan
// cannot hold the browser hostage. Step results can be saved and referenced
// by later steps with ${name.field} placeholders.
package codemode

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Endpoint dispatches one REST-like call to the underlying tool surface.
type Endpoint interface {
	Call(ctx context.Context, method, path string, body map[string]interface{}) (interface{}, error)
}

// Step is one plan entry.
type Step struct {
	// Method defaults to POST.
	Method string `json:"method,omitempty"`
	// Path selects the operation, e.g. "/navigate".
	Path string `json:"path"`
	// Body carries the operation arguments. String values may reference
	// earlier results via ${name.field.path} placeholders.
	Body map[string]interface{} `json:"body,omitempty"`
	// SaveAs stores this step's result under a name for later steps.
	SaveAs string `json:"save_as,omitempty"`
}

// Limits bound a plan run.
type Limits struct {
	// MaxCalls caps endpoint invocations (default 100).
	MaxCalls int
	// MaxSteps caps plan length (default 200).
	MaxSteps int
	// Timeout caps wall-clock duration (default 60s).
	Timeout time.Duration
}

// DefaultLimits mirrors the budgets used by interactive tooling.
func DefaultLimits() Limits {
	return Limits{MaxCalls: 100, MaxSteps: 200, Timeout: 60 * time.Second}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxCalls <= 0 {
		l.MaxCalls = d.MaxCalls
	}
	if l.MaxSteps <= 0 {
		l.MaxSteps = d.MaxSteps
	}
	if l.Timeout <= 0 {
		l.Timeout = d.Timeout
	}
	return l
}

// Result summarizes a completed run.
type Result struct {
	ExecutionID string                 `json:"execution_id"`
	Calls       int                    `json:"calls"`
	ElapsedMs   int64                  `json:"elapsed_ms"`
	Saved       map[string]interface{} `json:"saved,omitempty"`
	// Last is the final step's result.
	Last interface{} `json:"last"`
}

// Executor runs plans against an Endpoint.
type Executor struct {
	endpoint Endpoint
	limits   Limits
}

// NewExecutor builds an Executor; zero limit fields take defaults.
func NewExecutor(endpoint Endpoint, limits Limits) *Executor {
	return &Executor{endpoint: endpoint, limits: limits.withDefaults()}
}

// Run executes the plan in order. vars seeds the reference namespace before
// the first step. Any budget violation or step failure aborts the run with
// the offending step index in the error.
func (e *Executor) Run(ctx context.Context, steps []Step, vars map[string]interface{}) (*Result, error) {
	if len(steps) == 0 {
		return nil, errors.New("plan has no steps")
	}
	if len(steps) > e.limits.MaxSteps {
		return nil, fmt.Errorf("plan has %d steps, limit is %d", len(steps), e.limits.MaxSteps)
	}

	ctx, cancel := context.WithTimeout(ctx, e.limits.Timeout)
	defer cancel()

	saved := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		saved[k] = v
	}

	start := time.Now()
	res := &Result{
		ExecutionID: uuid.NewString(),
		Saved:       map[string]interface{}{},
	}

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("step %d (%s): execution budget of %s exhausted: %w", i, step.Path, e.limits.Timeout, err)
		}
		if res.Calls >= e.limits.MaxCalls {
			return nil, fmt.Errorf("step %d (%s): call budget of %d exhausted", i, step.Path, e.limits.MaxCalls)
		}
		if step.Path == "" {
			return nil, fmt.Errorf("step %d: missing path", i)
		}

		method := strings.ToUpper(step.Method)
		if method == "" {
			method = "POST"
		}

		body, err := substituteBody(step.Body, saved)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Path, err)
		}

		out, err := e.endpoint.Call(ctx, method, step.Path, body)
		res.Calls++
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Path, err)
		}

		res.Last = out
		if step.SaveAs != "" {
			saved[step.SaveAs] = out
			res.Saved[step.SaveAs] = out
		}
	}

	res.ElapsedMs = time.Since(start).Milliseconds()
	return res, nil
}

var placeholderRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteBody resolves ${name.field} placeholders in string values
// against previously saved results. A string that is exactly one
// placeholder keeps the referenced value's type; mixed strings get the
// referenced values formatted in.
func substituteBody(body, saved map[string]interface{}) (map[string]interface{}, error) {
	if body == nil {
		return map[string]interface{}{}, nil
	}
	out, err := substituteValue(body, saved)
	if err != nil {
		return nil, err
	}
	return out.(map[string]interface{}), nil
}

func substituteValue(v interface{}, saved map[string]interface{}) (interface{}, error) {
	switch t := v.(type) {
	case string:
		return substituteString(t, saved)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			sub, err := substituteValue(val, saved)
			if err != nil {
				return nil, err
			}
			out[k] = sub
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			sub, err := substituteValue(val, saved)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	default:
		return v, nil
	}
}

func substituteString(s string, saved map[string]interface{}) (interface{}, error) {
	matches := placeholderRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// Whole-string placeholder: preserve the referenced value's type.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		return lookupRef(s[matches[0][2]:matches[0][3]], saved)
	}

	var result error
	replaced := placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		ref := m[2 : len(m)-1]
		val, err := lookupRef(ref, saved)
		if err != nil {
			result = err
			return m
		}
		return fmt.Sprintf("%v", val)
	})
	if result != nil {
		return nil, result
	}
	return replaced, nil
}

func lookupRef(ref string, saved map[string]interface{}) (interface{}, error) {
	parts := strings.Split(ref, ".")
	var cur interface{} = saved
	for _, part := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("reference %q: segment %q is not a mapping", ref, part)
		}
		cur, ok = m[part]
		if !ok {
			return nil, fmt.Errorf("reference %q: segment %q not found", ref, part)
		}
	}
	return cur, nil
}
