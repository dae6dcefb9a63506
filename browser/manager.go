// Package browser drives the employee site directly through Playwright,
// without going through the claude CLI.
package browser

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// DefaultTimeout is the per-action timeout in milliseconds.
const DefaultTimeout = 30000

// SessionOptions configures a new browser session.
type SessionOptions struct {
	Headless bool
	// Timeout is the default action timeout in milliseconds.
	Timeout float64
}

// Manager owns the Playwright driver and the browser sessions started
// from it.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	playwright  *playwright.Playwright
	initialized bool
}

// NewManager creates a manager. Initialize must be called before sessions
// can be started.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Initialize installs the driver and Chromium when missing and starts
// Playwright.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	// Keep installer chatter out of the operator's terminal.
	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("start playwright: %w", err)
	}

	m.playwright = pw
	m.initialized = true
	return nil
}

// StartSession launches a browser with a single page under name.
func (m *Manager) StartSession(name string, opts SessionOptions) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[name]; exists {
		return nil, fmt.Errorf("session %q already exists", name)
	}
	if !m.initialized {
		return nil, fmt.Errorf("browser manager not initialized")
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	browser, err := m.playwright.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
	})
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	bctx, err := browser.NewContext()
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("create context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	page.SetDefaultTimeout(opts.Timeout)

	now := time.Now()
	s := &Session{
		Name:       name,
		Browser:    browser,
		Context:    bctx,
		Page:       page,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	m.sessions[name] = s
	return s, nil
}

// CloseSession closes the session's page, context and browser.
func (m *Manager) CloseSession(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[name]
	if !ok {
		return fmt.Errorf("session %q not found", name)
	}
	s.close()
	delete(m.sessions, name)
	return nil
}

// Shutdown closes every session and stops Playwright.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, s := range m.sessions {
		s.close()
		delete(m.sessions, name)
	}
	if m.initialized && m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			return fmt.Errorf("stop playwright: %w", err)
		}
		m.initialized = false
	}
	return nil
}
