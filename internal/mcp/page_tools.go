package mcp

import (
	"context"

	"github.com/openclaw/mcp-browser-server/internal/browser"
)

// ListPagesTool lists open pages (tabs) with their URLs and the active marker.
type ListPagesTool struct {
	manager *browser.Manager
}

func (t *ListPagesTool) Name() string { return "list_pages" }
func (t *ListPagesTool) Description() string {
	return "List all open pages (tabs) with index, URL, and which one is active."
}
func (t *ListPagesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListPagesTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	infos, err := t.manager.ListPages(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"pages":   infos,
		"count":   len(infos),
	}, nil
}

// NewPageTool opens a new page and makes it active.
type NewPageTool struct {
	manager *browser.Manager
}

func (t *NewPageTool) Name() string { return "new_page" }
func (t *NewPageTool) Description() string {
	return "Open a new page (tab), optionally at a URL, and make it the active page."
}
func (t *NewPageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "URL to open (default about:blank)",
			},
		},
	}
}
func (t *NewPageTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	url := getStringArg(args, "url")
	if url == "" {
		url = "about:blank"
	}

	idx, page, err := t.manager.CreatePage(ctx, url)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"index":   idx,
		"url":     pageURL(page),
	}, nil
}

// SelectPageTool switches the active page by index.
type SelectPageTool struct {
	manager *browser.Manager
}

func (t *SelectPageTool) Name() string { return "select_page" }
func (t *SelectPageTool) Description() string {
	return "Make the page at the given index the active page."
}
func (t *SelectPageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"index": map[string]interface{}{
				"type":        "integer",
				"description": "Page index from list_pages",
			},
		},
		"required": []string{"index"},
	}
}
func (t *SelectPageTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if !hasIntArg(args, "index") {
		return failure("index is required"), nil
	}
	idx := getIntArg(args, "index", 0)

	page, err := t.manager.SelectPage(idx)
	if err != nil {
		return failure("select page %d: %v", idx, err), nil
	}
	return map[string]interface{}{
		"success": true,
		"index":   idx,
		"url":     pageURL(page),
	}, nil
}

// ClosePageTool closes the page at an index. The last page cannot be closed.
type ClosePageTool struct {
	manager *browser.Manager
}

func (t *ClosePageTool) Name() string { return "close_page" }
func (t *ClosePageTool) Description() string {
	return "Close the page at the given index. The last remaining page cannot be closed."
}
func (t *ClosePageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"index": map[string]interface{}{
				"type":        "integer",
				"description": "Page index from list_pages",
			},
		},
		"required": []string{"index"},
	}
}
func (t *ClosePageTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if !hasIntArg(args, "index") {
		return failure("index is required"), nil
	}
	idx := getIntArg(args, "index", 0)

	if err := t.manager.ClosePage(idx); err != nil {
		return failure("close page %d: %v", idx, err), nil
	}
	return map[string]interface{}{
		"success": true,
		"index":   idx,
	}, nil
}

// ShutdownBrowserTool tears down the managed browser. The next browser tool
// call relaunches it.
type ShutdownBrowserTool struct {
	manager *browser.Manager
}

func (t *ShutdownBrowserTool) Name() string { return "shutdown_browser" }
func (t *ShutdownBrowserTool) Description() string {
	return "Shut down the managed browser process. It relaunches automatically on the next browser action."
}
func (t *ShutdownBrowserTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ShutdownBrowserTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	t.manager.Shutdown()
	return map[string]interface{}{"success": true}, nil
}
