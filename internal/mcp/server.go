// Package mcp wires the browser manager, profile registry, and config store
// into MCP tools served over stdio or SSE.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/openclaw/mcp-browser-server/internal/browser"
	"github.com/openclaw/mcp-browser-server/internal/config"
	"github.com/openclaw/mcp-browser-server/internal/configstore"
	"github.com/openclaw/mcp-browser-server/internal/profile"

	"github.com/gorilla/mux"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Server hosts the MCP runtime and the tool registry.
type Server struct {
	cfg       config.Config
	manager   *browser.Manager
	profiles  *profile.Manager
	store     *configstore.Store
	tools     map[string]Tool
	mcpServer *mcpserver.MCPServer
}

// Tool is the contract every MCP tool implements.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// NewServer constructs the MCP server and registers all tools. store may be
// nil, which disables the config CRUD tools.
func NewServer(cfg config.Config, manager *browser.Manager, profiles *profile.Manager, store *configstore.Store) *Server {
	mcpSrv := mcpserver.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithRecovery(),
	)

	s := &Server{
		cfg:       cfg,
		manager:   manager,
		profiles:  profiles,
		store:     store,
		tools:     make(map[string]Tool),
		mcpServer: mcpSrv,
	}

	s.registerAllTools()
	return s
}

// Start serves the MCP protocol over stdio (the default transport).
func (s *Server) Start(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// StartSSE hosts the server over HTTP SSE endpoints with graceful shutdown.
func (s *Server) StartSSE(ctx context.Context, port int) error {
	sseServer := mcpserver.NewSSEServer(s.mcpServer, mcpserver.WithBaseURL("http://localhost:"+strconv.Itoa(port)))

	router := mux.NewRouter()
	router.Handle("/sse", sseServer.SSEHandler()).Methods(http.MethodGet)
	router.Handle("/message", sseServer.MessageHandler()).Methods(http.MethodPost)

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Printf("SSE server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// ExecuteTool invokes a registered tool directly (used by tests).
func (s *Server) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	tool, ok := s.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool.Execute(ctx, args)
}

func (s *Server) registerAllTools() {
	navTimeout := s.cfg.Browser.NavigationTimeout()

	// Browser actions
	s.registerTool(&NavigateTool{manager: s.manager, defaultTimeout: navTimeout})
	s.registerTool(&ClickTool{manager: s.manager})
	s.registerTool(&FillTool{manager: s.manager})
	s.registerTool(&GetTextTool{manager: s.manager})
	s.registerTool(&HoverTool{manager: s.manager})
	s.registerTool(&PressKeyTool{manager: s.manager})
	s.registerTool(&WaitTool{manager: s.manager})
	s.registerTool(&ScreenshotTool{manager: s.manager})
	s.registerTool(&EvaluateScriptTool{manager: s.manager})
	s.registerTool(&ExtractTableTool{manager: s.manager})
	s.registerTool(&HandleDialogTool{manager: s.manager})
	s.registerTool(&GetDomTool{manager: s.manager})
	s.registerTool(&GetURLTool{manager: s.manager})

	// Page (tab) management
	s.registerTool(&ListPagesTool{manager: s.manager})
	s.registerTool(&NewPageTool{manager: s.manager})
	s.registerTool(&SelectPageTool{manager: s.manager})
	s.registerTool(&ClosePageTool{manager: s.manager})
	s.registerTool(&ShutdownBrowserTool{manager: s.manager})

	// Profiles
	s.registerTool(&ListProfilesTool{profiles: s.profiles})
	s.registerTool(&CreateProfileTool{profiles: s.profiles})
	s.registerTool(&DeleteProfileTool{profiles: s.profiles})
	s.registerTool(&ValidateProfileTool{profiles: s.profiles})

	// Plan replay
	s.registerTool(&ExecutePlanTool{manager: s.manager, defaultTimeout: navTimeout})

	// Agent configuration CRUD (only when a store is configured)
	if s.store != nil {
		secrets := configstore.NewSecretStore(s.store.Dir(), s.cfg.Store.IsEncryptSecrets())
		s.registerTool(&ListSectionsTool{store: s.store})
		s.registerTool(&GetSectionTool{store: s.store})
		s.registerTool(&SetSectionTool{store: s.store})
		s.registerTool(&GetValueTool{store: s.store})
		s.registerTool(&SetValueTool{store: s.store})
		s.registerTool(&GetSecretTool{store: s.store, secrets: secrets})
		s.registerTool(&SetSecretTool{store: s.store, secrets: secrets})
		s.registerTool(&ListMCPServersTool{store: s.store})
		s.registerTool(&AddMCPServerTool{store: s.store})
		s.registerTool(&RemoveMCPServerTool{store: s.store})
		s.registerTool(&ListChannelsTool{store: s.store})
		s.registerTool(&GetChannelTool{store: s.store})
		s.registerTool(&SetChannelTool{store: s.store})
		s.registerTool(&RemoveChannelTool{store: s.store})
		s.registerTool(&GetProviderTool{store: s.store})
		s.registerTool(&SetProviderTool{store: s.store})
		s.registerTool(&ReloadConfigTool{store: s.store})
	}
}

func (s *Server) registerTool(tool Tool) {
	s.tools[tool.Name()] = tool

	schema, err := json.Marshal(tool.InputSchema())
	if err != nil {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	mcpTool := mcp.NewToolWithRawSchema(tool.Name(), tool.Description(), schema)
	s.mcpServer.AddTool(mcpTool, s.wrapTool(tool))
}

func (s *Server) wrapTool(tool Tool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]interface{}{}
		}

		result, err := tool.Execute(ctx, args)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("tool %s failed: %v", tool.Name(), err))},
				IsError: true,
			}, nil
		}

		payload := marshalToolPayload(tool.Name(), result)
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(payload))},
			IsError: false,
		}, nil
	}
}

func marshalToolPayload(toolName string, result interface{}) []byte {
	payload, err := json.Marshal(result)
	if err == nil {
		return payload
	}

	fallback := map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf("tool %s returned non-serializable payload: %v", toolName, err),
	}
	payload, fallbackErr := json.Marshal(fallback)
	if fallbackErr == nil {
		return payload
	}
	return []byte(fmt.Sprintf(`{"success":false,"error":"tool %s failed to encode payload"}`, toolName))
}
