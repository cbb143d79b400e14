package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openclaw/mcp-browser-server/internal/browser"
	"github.com/openclaw/mcp-browser-server/internal/config"
	"github.com/openclaw/mcp-browser-server/internal/configstore"
	mcpserver "github.com/openclaw/mcp-browser-server/internal/mcp"
	"github.com/openclaw/mcp-browser-server/internal/profile"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	browserPath string
	cdpURL      string
	headless    bool
	profileName string
	ssePort     int
)

func main() {
	// Missing .env is fine; it only supplies optional overrides.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "mcp-browser-server",
		Short: "MCP server for browser automation with persistent profiles",
		RunE:  runServe,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&browserPath, "browser-path", "", "custom Chrome/Edge binary path")
	root.PersistentFlags().StringVar(&profileName, "profile", "", "named browser profile for session persistence")
	root.PersistentFlags().StringVar(&cdpURL, "cdp-url", "", "attach to a running browser at this CDP URL")
	root.PersistentFlags().BoolVar(&headless, "headless", true, "run the browser headless")
	root.PersistentFlags().IntVar(&ssePort, "sse-port", 0, "serve over SSE on this port instead of stdio")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over stdio (default) or SSE",
		RunE:  runServe,
	}

	setupLogin := &cobra.Command{
		Use:   "setup-login",
		Short: "Open a visible, profile-bound browser for a one-time interactive login",
		RunE:  runSetupLogin,
	}
	setupLogin.Flags().String("url", "", "login page URL to open")
	setupLogin.Flags().Duration("timeout", 5*time.Minute, "how long to keep the browser open without confirmation")
	_ = setupLogin.MarkFlagRequired("url")

	root.AddCommand(serve, setupLogin)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cmd, &cfg)

	// Redirect logging to file for stdio mode (stderr interferes with the
	// MCP protocol).
	if cfg.MCP.SSEPort == 0 && cfg.Server.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			// No log file means no logging at all; stderr pollution is worse.
			log.SetOutput(io.Discard)
		}
	}

	profiles, err := profile.NewManager()
	if err != nil {
		return fmt.Errorf("init profile registry: %w", err)
	}

	// The manager fails launches against unknown profiles, so register the
	// configured one up front.
	if cfg.Browser.Profile != "" {
		if _, err := profiles.GetOrCreate(cfg.Browser.Profile, profile.CreateOpts{}); err != nil {
			return fmt.Errorf("prepare profile %q: %w", cfg.Browser.Profile, err)
		}
	}

	manager := browser.NewManager(browser.Config{
		BrowserPath:  cfg.Browser.BrowserPath,
		CDPURL:       cfg.Browser.CDPURL,
		Headless:     cfg.Browser.IsHeadless(),
		WindowWidth:  cfg.Browser.WindowWidth,
		WindowHeight: cfg.Browser.WindowHeight,
		Profile:      cfg.Browser.Profile,
	}, profiles)
	defer manager.Shutdown()

	var store *configstore.Store
	if cfg.Store.Path != "" {
		store, err = configstore.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open config store: %w", err)
		}
	}

	server := mcpserver.NewServer(cfg, manager, profiles, store)

	var startErr error
	if cfg.MCP.SSEPort > 0 {
		log.Printf("starting MCP SSE server on port %d", cfg.MCP.SSEPort)
		startErr = server.StartSSE(ctx, cfg.MCP.SSEPort)
	} else {
		log.Printf("starting MCP stdio server")
		startErr = server.Start(ctx)
	}

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		return fmt.Errorf("server exited: %w", startErr)
	}
	return nil
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if browserPath != "" {
		cfg.Browser.BrowserPath = browserPath
	}
	if profileName != "" {
		cfg.Browser.Profile = profileName
	}
	if cmd.Flags().Changed("cdp-url") {
		cfg.Browser.CDPURL = cdpURL
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = &headless
	}
	if cmd.Flags().Changed("sse-port") {
		cfg.MCP.SSEPort = ssePort
	}
}

func runSetupLogin(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	if profileName == "" {
		return errors.New("--profile is required for setup-login")
	}
	url, _ := cmd.Flags().GetString("url")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	profiles, err := profile.NewManager()
	if err != nil {
		return fmt.Errorf("init profile registry: %w", err)
	}

	p, err := profiles.GetOrCreate(profileName, profile.CreateOpts{
		Description:        "interactive login profile",
		RequiresHumanLogin: true,
	})
	if err != nil {
		return fmt.Errorf("prepare profile %q: %w", profileName, err)
	}

	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	bold.Printf("Opening login browser for profile %q\n", p.Name)
	fmt.Printf("  URL:       %s\n", url)
	fmt.Printf("  Data dir:  %s\n", p.UserDataDir)

	b, err := browser.LaunchForLogin(profiles, profileName, url, browserPath)
	if err != nil {
		return fmt.Errorf("launch login browser: %w", err)
	}
	defer func() { _ = b.Close() }()

	yellow.Println("\nComplete the login in the browser window.")
	fmt.Printf("Press Enter when done (or wait %s)...\n", timeout)

	done := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		yellow.Println("Timed out waiting for confirmation; saving session as-is.")
	}

	if err := profiles.Touch(profileName); err != nil {
		return fmt.Errorf("record profile usage: %w", err)
	}

	v := profiles.Validate(profileName)
	green.Printf("\nProfile %q saved.\n", profileName)
	fmt.Printf("  Cookies stored: %t\n", v.HasCookies)
	fmt.Printf("  Session valid:  %t\n", v.SessionValid)
	return nil
}
