// Package browser owns the managed Chrome process and its open pages.
//
// Manager is the only component allowed to launch, monitor, or tear down the
// browser, and the only component allowed to mutate page bookkeeping. It is
// profile-aware: when a profile is configured, Chrome launches with
// --user-data-dir pointing at the profile's directory so cookies and login
// state persist across restarts.
//
// Crash detection is lazy: a goroutine drains the browser's CDP event stream
// and its exit marks the process dead. The next lifecycle-sensitive call
// observes the dead marker and relaunches.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/openclaw/mcp-browser-server/internal/profile"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

var (
	// ErrNotInitialized reports a missing browser handle where one was
	// guaranteed by EnsureLive. Seeing it means a locking bug.
	ErrNotInitialized = errors.New("browser not initialized")
	// ErrLastPage is returned when closing the only remaining page.
	ErrLastPage = errors.New("cannot close the last page")
	// ErrPageOutOfRange is returned for page indices past the end of the
	// page list.
	ErrPageOutOfRange = errors.New("page index out of range")
)

// Config controls how the Manager launches or attaches to Chrome.
type Config struct {
	// Custom Chrome/Edge binary path. Empty lets the launcher pick one.
	BrowserPath string
	// Connect to an already-running browser via CDP URL instead of launching.
	CDPURL string
	// Run headless.
	Headless bool
	// Browser window size.
	WindowWidth  int
	WindowHeight int
	// Named profile for session persistence. Empty runs without a profile.
	Profile string
}

// DefaultConfig returns the launch defaults: headless, 1280x720, no profile.
func DefaultConfig() Config {
	return Config{
		Headless:     true,
		WindowWidth:  1280,
		WindowHeight: 720,
	}
}

// PageInfo describes one open page, as reported by ListPages.
type PageInfo struct {
	Index  int    `json:"index"`
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

// Manager is the central browser lifecycle manager.
//
// Process state and page state are guarded by independent locks. Whenever a
// code path needs both, the page lock is taken and released before the
// process lock (the refresh path), or the process lock is taken as a reader
// before escalating to the page lock (the page-creation path). These never
// nest in the opposite order; keep it that way or EnsureLive and Page can
// deadlock against each other.
type Manager struct {
	cfg      Config
	profiles *profile.Manager

	procMu      sync.RWMutex
	browser     *rod.Browser
	launch      *launcher.Launcher
	monitorDone chan struct{}

	pageMu    sync.RWMutex
	pages     []*rod.Page
	activeIdx int
}

// NewManager builds a Manager. Nothing is launched until the first call
// that needs a live browser.
func NewManager(cfg Config, profiles *profile.Manager) *Manager {
	if cfg.WindowWidth <= 0 {
		cfg.WindowWidth = 1280
	}
	if cfg.WindowHeight <= 0 {
		cfg.WindowHeight = 720
	}
	return &Manager{cfg: cfg, profiles: profiles}
}

// monitorFinished reports whether the event-stream watcher has exited.
// Callers must hold procMu (read or write).
func (m *Manager) monitorFinished() bool {
	if m.monitorDone == nil {
		return true
	}
	select {
	case <-m.monitorDone:
		return true
	default:
		return false
	}
}

// EnsureLive guarantees a usable browser, launching or relaunching as
// needed. A present handle whose monitor has exited is stale: it gets a
// best-effort close and kill, then a fresh launch.
func (m *Manager) EnsureLive(ctx context.Context) error {
	// Fast path: handle present and its monitor still running.
	m.procMu.RLock()
	alive := m.browser != nil && !m.monitorFinished()
	m.procMu.RUnlock()
	if alive {
		return nil
	}

	// Pages belonging to a stale browser are unusable. Drop them before
	// taking the process write lock; the page lock is never held while
	// waiting on the process lock.
	m.pageMu.Lock()
	if len(m.pages) > 0 {
		log.Printf("clearing %d stale page references", len(m.pages))
		m.pages = nil
		m.activeIdx = 0
	}
	m.pageMu.Unlock()

	m.procMu.Lock()
	defer m.procMu.Unlock()

	// Double-check: another caller may have refreshed the browser while we
	// waited for the write lock.
	if m.browser != nil && !m.monitorFinished() {
		return nil
	}

	if m.browser != nil {
		log.Printf("browser event stream exited; closing stale browser before relaunch")
		_ = m.browser.Close()
		if m.launch != nil {
			m.launch.Kill()
		}
	}

	browser, launch, done, err := m.launchBrowser()
	if err != nil {
		m.browser = nil
		m.launch = nil
		m.monitorDone = nil
		return err
	}

	m.browser = browser
	m.launch = launch
	m.monitorDone = done
	return nil
}

// launchBrowser connects to the configured CDP endpoint or starts a local
// Chrome, returning the browser, its launcher (nil when attached), and the
// monitor's done channel. The browser is intentionally not bound to the
// caller's context: it outlives individual tool calls.
func (m *Manager) launchBrowser() (*rod.Browser, *launcher.Launcher, chan struct{}, error) {
	if m.cfg.CDPURL != "" {
		b := rod.New().ControlURL(m.cfg.CDPURL)
		if err := b.Connect(); err != nil {
			return nil, nil, nil, fmt.Errorf("connect to browser at %s: %w", m.cfg.CDPURL, err)
		}
		log.Printf("attached to browser at %s", m.cfg.CDPURL)
		return b, nil, watchEvents(b, "remote "+m.cfg.CDPURL), nil
	}

	launch := launcher.New().Headless(m.cfg.Headless)
	if m.cfg.BrowserPath != "" {
		launch = launch.Bin(m.cfg.BrowserPath)
	}
	launch = launch.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", m.cfg.WindowWidth, m.cfg.WindowHeight))

	if m.cfg.Profile != "" {
		dir, err := m.profiles.UserDataDir(m.cfg.Profile)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("resolve profile %q: %w", m.cfg.Profile, err)
		}
		launch = launch.UserDataDir(dir)
	}

	// Stability flags for headless/container environments. The exact values
	// matter for CDP connectivity; do not reorder into generic args.
	launch = launch.
		Set(flags.Flag("disable-dev-shm-usage")).
		Set(flags.Flag("remote-allow-origins"), "*")

	controlURL, err := launch.Launch()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		launch.Kill()
		return nil, nil, nil, fmt.Errorf("connect to launched browser: %w", err)
	}

	// Usage bookkeeping is best-effort: a registry hiccup must not fail
	// an otherwise good launch.
	if m.cfg.Profile != "" {
		if err := m.profiles.Touch(m.cfg.Profile); err != nil {
			log.Printf("warning: failed to record usage for profile %q: %v", m.cfg.Profile, err)
		}
	}

	log.Printf("browser launched at %s", controlURL)
	return b, launch, watchEvents(b, "local browser"), nil
}

// watchEvents drains the browser's CDP event stream until it ends. The
// returned channel closes when the stream does; that closure is the only
// liveness signal the Manager consumes. The watcher takes no recovery
// action itself.
func watchEvents(b *rod.Browser, label string) chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range b.Event() {
		}
		log.Printf("browser event stream ended (%s)", label)
	}()
	return done
}

// Page returns the active page, creating an initial blank one when none
// exist yet.
func (m *Manager) Page(ctx context.Context) (*rod.Page, error) {
	if err := m.EnsureLive(ctx); err != nil {
		return nil, err
	}

	// Fast path: a page already exists.
	m.pageMu.RLock()
	if len(m.pages) > 0 {
		p := m.pages[m.clampedActive()]
		m.pageMu.RUnlock()
		return p, nil
	}
	m.pageMu.RUnlock()

	// Slow path: create the initial page. Re-check after escalating in case
	// a concurrent caller created it first.
	m.pageMu.Lock()
	defer m.pageMu.Unlock()
	if len(m.pages) > 0 {
		return m.pages[m.clampedActive()], nil
	}

	m.procMu.RLock()
	b := m.browser
	m.procMu.RUnlock()
	if b == nil {
		return nil, ErrNotInitialized
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create initial page: %w", err)
	}
	m.pages = append(m.pages, page)
	m.activeIdx = 0
	return page, nil
}

// clampedActive returns activeIdx clamped into the page list.
// Callers must hold pageMu and have checked the list is non-empty.
func (m *Manager) clampedActive() int {
	if m.activeIdx >= len(m.pages) {
		return len(m.pages) - 1
	}
	return m.activeIdx
}

// CreatePage opens a new page (tab) at url, appends it to the tab order,
// and makes it active. Returns the new page's index.
func (m *Manager) CreatePage(ctx context.Context, url string) (int, *rod.Page, error) {
	if err := m.EnsureLive(ctx); err != nil {
		return 0, nil, err
	}

	m.procMu.RLock()
	b := m.browser
	m.procMu.RUnlock()
	if b == nil {
		return 0, nil, ErrNotInitialized
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return 0, nil, fmt.Errorf("create page for %s: %w", url, err)
	}

	m.pageMu.Lock()
	defer m.pageMu.Unlock()
	idx := len(m.pages)
	m.pages = append(m.pages, page)
	m.activeIdx = idx
	return idx, page, nil
}

// ListPages snapshots all open pages with their URLs and the active marker.
// URL lookup failures for individual pages degrade to an empty string.
func (m *Manager) ListPages(ctx context.Context) ([]PageInfo, error) {
	if err := m.EnsureLive(ctx); err != nil {
		return nil, err
	}

	m.pageMu.RLock()
	pages := make([]*rod.Page, len(m.pages))
	copy(pages, m.pages)
	active := m.activeIdx
	m.pageMu.RUnlock()

	infos := make([]PageInfo, 0, len(pages))
	for i, p := range pages {
		url := ""
		if p != nil {
			if info, err := p.Info(); err == nil {
				url = info.URL
			}
		}
		infos = append(infos, PageInfo{Index: i, URL: url, Active: i == active})
	}
	return infos, nil
}

// SelectPage switches the active page by index and returns it.
func (m *Manager) SelectPage(idx int) (*rod.Page, error) {
	m.pageMu.Lock()
	defer m.pageMu.Unlock()

	if idx < 0 || idx >= len(m.pages) {
		return nil, fmt.Errorf("page index %d (have %d pages): %w", idx, len(m.pages), ErrPageOutOfRange)
	}
	m.activeIdx = idx
	return m.pages[idx], nil
}

// ClosePage removes the page at idx. The last remaining page cannot be
// closed. The active index is clamped back into range afterward.
func (m *Manager) ClosePage(idx int) error {
	m.pageMu.Lock()

	if idx < 0 || idx >= len(m.pages) {
		n := len(m.pages)
		m.pageMu.Unlock()
		return fmt.Errorf("page index %d (have %d pages): %w", idx, n, ErrPageOutOfRange)
	}
	if len(m.pages) == 1 {
		m.pageMu.Unlock()
		return fmt.Errorf("page index %d: %w", idx, ErrLastPage)
	}

	closed := m.pages[idx]
	m.pages = append(m.pages[:idx], m.pages[idx+1:]...)
	if m.activeIdx >= len(m.pages) {
		m.activeIdx = len(m.pages) - 1
	}
	m.pageMu.Unlock()

	// Closing the target is best-effort; bookkeeping already moved on.
	if closed != nil {
		_ = closed.Close()
	}
	return nil
}

// Shutdown tears the browser down: graceful CDP close, then a force-kill
// fallback. Never fails; safe to call when nothing is running.
func (m *Manager) Shutdown() {
	m.pageMu.Lock()
	m.pages = nil
	m.activeIdx = 0
	m.pageMu.Unlock()

	m.procMu.Lock()
	defer m.procMu.Unlock()

	if m.browser != nil {
		log.Printf("shutting down browser")
		if err := m.browser.Close(); err != nil {
			log.Printf("graceful browser close failed: %v", err)
		}
	}
	if m.launch != nil {
		m.launch.Kill()
	}
	m.browser = nil
	m.launch = nil
	m.monitorDone = nil
}

// LaunchForLogin opens a headed, profile-bound browser at url and leaves it
// open so a human can complete an interactive login. The caller owns the
// returned browser.
func LaunchForLogin(profiles *profile.Manager, profileName, url, browserPath string) (*rod.Browser, error) {
	dir, err := profiles.UserDataDir(profileName)
	if err != nil {
		return nil, fmt.Errorf("resolve profile %q: %w", profileName, err)
	}

	launch := launcher.New().
		Headless(false).
		UserDataDir(dir).
		Set(flags.Flag("window-size"), "1280,900").
		Set(flags.Flag("disable-dev-shm-usage")).
		Set(flags.Flag("remote-allow-origins"), "*")
	if browserPath != "" {
		launch = launch.Bin(browserPath)
	}

	controlURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser for login: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		launch.Kill()
		return nil, fmt.Errorf("connect to login browser: %w", err)
	}
	watchEvents(b, "login browser")

	if _, err := b.Page(proto.TargetCreateTarget{URL: url}); err != nil {
		return nil, fmt.Errorf("open login page %s: %w", url, err)
	}

	log.Printf("login browser opened at %s", url)
	return b, nil
}
