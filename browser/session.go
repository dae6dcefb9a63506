package browser

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Page is the subset of browser actions the creator needs. Session
// implements it on top of a Playwright page.
type Page interface {
	Goto(url string) error
	Fill(selector, value string) error
	Click(selector string) error
	SelectByLabel(selector, label string) error
	WaitForIdle() error
	Text(selector string) (string, error)
	Attr(selector, name string) (string, error)
	Visible(selector string) (bool, error)
	URL() string
}

// Session is a launched browser with one open page.
type Session struct {
	Name       string
	Browser    playwright.Browser
	Context    playwright.BrowserContext
	Page       playwright.Page
	CreatedAt  time.Time
	LastUsedAt time.Time
}

var _ Page = (*Session)(nil)

func (s *Session) touch() { s.LastUsedAt = time.Now() }

// Goto navigates and waits until the network is idle.
func (s *Session) Goto(url string) error {
	s.touch()
	waitUntil := playwright.WaitUntilState("networkidle")
	if _, err := s.Page.Goto(url, playwright.PageGotoOptions{WaitUntil: &waitUntil}); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (s *Session) Fill(selector, value string) error {
	s.touch()
	if err := s.Page.Fill(selector, value); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

func (s *Session) Click(selector string) error {
	s.touch()
	if err := s.Page.Click(selector); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// SelectByLabel picks the option whose visible text is label.
func (s *Session) SelectByLabel(selector, label string) error {
	s.touch()
	_, err := s.Page.SelectOption(selector, playwright.SelectOptionValues{Labels: &[]string{label}})
	if err != nil {
		return fmt.Errorf("select %q in %s: %w", label, selector, err)
	}
	return nil
}

func (s *Session) WaitForIdle() error {
	s.touch()
	state := playwright.LoadState("networkidle")
	if err := s.Page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{State: &state}); err != nil {
		return fmt.Errorf("wait for page load: %w", err)
	}
	return nil
}

func (s *Session) Text(selector string) (string, error) {
	s.touch()
	text, err := s.Page.TextContent(selector)
	if err != nil {
		return "", fmt.Errorf("read text of %s: %w", selector, err)
	}
	return text, nil
}

func (s *Session) Attr(selector, name string) (string, error) {
	s.touch()
	v, err := s.Page.GetAttribute(selector, name)
	if err != nil {
		return "", fmt.Errorf("read %s of %s: %w", name, selector, err)
	}
	return v, nil
}

// Visible reports whether selector matches a visible element right now; it
// does not wait for one to appear.
func (s *Session) Visible(selector string) (bool, error) {
	s.touch()
	return s.Page.IsVisible(selector)
}

func (s *Session) URL() string { return s.Page.URL() }

// close releases the page, context and browser, ignoring errors so every
// resource gets a chance to close.
func (s *Session) close() {
	_ = s.Page.Close()
	_ = s.Context.Close()
	_ = s.Browser.Close()
}
