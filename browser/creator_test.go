package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"claude-autorun/logger"
	"claude-autorun/prompt"
)

// fakePage simulates the employee site's login and create pages.
type fakePage struct {
	url      string
	fields   map[string]string
	actions  []string
	captcha  map[string]string // attrs and text of the captcha block; nil when disabled
	answer   string
	rejectAt string // employee name whose submission is refused
	message  string
}

func newFakePage() *fakePage {
	return &fakePage{fields: map[string]string{}}
}

func (p *fakePage) Goto(url string) error {
	p.actions = append(p.actions, "goto "+url)
	p.url = url
	return nil
}

func (p *fakePage) Fill(selector, value string) error {
	p.actions = append(p.actions, fmt.Sprintf("fill %s=%s", selector, value))
	p.fields[selector] = value
	return nil
}

func (p *fakePage) Click(selector string) error {
	p.actions = append(p.actions, "click "+selector)
	switch {
	case strings.HasPrefix(selector, ".captcha-option"):
		p.fields["#captcha_answer"] = strings.TrimSuffix(strings.SplitN(selector, `"`, 2)[1], `"]`)
	case selector == `a[href="/employee/create"]`:
		p.url = "http://site/employee/create"
		p.message = ""
	case selector == `button[type="submit"]` && strings.HasSuffix(p.url, "/login"):
		ok := p.fields["#username"] == "admin" && p.fields["#password"] == "password"
		if p.captcha != nil {
			ok = ok && p.fields["#captcha_answer"] == p.answer
		}
		if ok {
			p.url = "http://site/dashboard"
		} else {
			p.url = "http://site/login?error=1"
		}
	case selector == `button[type="submit"]`:
		if p.fields["#name"] == p.rejectAt {
			p.url = "http://site/employee/create?error=1"
			return nil
		}
		p.url = "http://site/dashboard?success=created"
		p.message = "Success: employee created."
	}
	return nil
}

func (p *fakePage) SelectByLabel(selector, label string) error {
	p.actions = append(p.actions, fmt.Sprintf("select %s=%s", selector, label))
	p.fields[selector] = label
	return nil
}

func (p *fakePage) WaitForIdle() error { return nil }

func (p *fakePage) Text(selector string) (string, error) {
	switch selector {
	case "#captcha_question":
		return p.captcha["question"], nil
	case "#message":
		return p.message, nil
	}
	return "", errors.New("no element " + selector)
}

func (p *fakePage) Attr(selector, name string) (string, error) {
	if selector == "#captcha" && name == "data-kind" {
		return p.captcha["kind"], nil
	}
	return "", errors.New("no attribute")
}

func (p *fakePage) Visible(selector string) (bool, error) {
	switch selector {
	case "#captcha":
		return p.captcha != nil && strings.HasSuffix(p.url, "/login"), nil
	case "#message":
		return p.message != "", nil
	}
	return false, nil
}

func (p *fakePage) URL() string { return p.url }

var testConfig = Config{SiteURL: "http://site/", Username: "admin", Password: "password"}

func TestCreator_Run(t *testing.T) {
	page := newFakePage()
	var out bytes.Buffer
	report, err := NewCreator(page, testConfig, &out, logger.Nop()).Run(context.Background(), prompt.Employees())
	if err != nil {
		t.Fatalf("Run: %v\n%s", err, out.String())
	}
	if len(report.Results) != 3 || report.Failed() != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if page.actions[0] != "goto http://site/login" {
		t.Errorf("first action %q", page.actions[0])
	}

	actions := strings.Join(page.actions, "\n")
	for _, want := range []string{
		"fill #name=Zhang San", "fill #salary=75000", "fill #duration=24", "select #level=Senior", "fill #email=zhang.san@company.com",
		"select #level=Middle", "select #level=Junior", "fill #email=wang.wu@company.com",
	} {
		if !strings.Contains(actions, want) {
			t.Errorf("missing action %q in:\n%s", want, actions)
		}
	}
	if strings.Index(actions, "Zhang San") > strings.Index(actions, "Li Si") {
		t.Error("employees created out of order")
	}
	for _, want := range []string{"=== CREATION REPORT ===", "Total: 3", "Successful: 3", "Failed: 0"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("report missing %q:\n%s", want, out.String())
		}
	}
}

func TestCreator_RunRecordsFailures(t *testing.T) {
	page := newFakePage()
	page.rejectAt = "Li Si"
	var out bytes.Buffer
	report, err := NewCreator(page, testConfig, &out, logger.Nop()).Run(context.Background(), prompt.Employees())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Failed() != 1 || report.Results[1].Err == nil || report.Results[2].Err != nil {
		t.Fatalf("unexpected results %+v", report.Results)
	}
	if !strings.Contains(out.String(), "Successful: 2") || !strings.Contains(out.String(), "Li Si <li.si@company.com>: failed") {
		t.Errorf("report:\n%s", out.String())
	}
}

func TestCreator_LoginWithCaptcha(t *testing.T) {
	tests := []struct {
		kind, question, answer, action string
	}{
		{"math", "12 * 3 = ?", "36", "fill #captcha_answer=36"},
		{"text", "Enter the characters: K7QZ", "K7QZ", "fill #captcha_answer=K7QZ"},
		{"word", "Click: 确认", "确认", `click .captcha-option[data-value="确认"]`},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			page := newFakePage()
			page.captcha = map[string]string{"kind": tt.kind, "question": tt.question}
			page.answer = tt.answer
			report, err := NewCreator(page, testConfig, &bytes.Buffer{}, logger.Nop()).
				Run(context.Background(), prompt.Employees()[:1])
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if report.Failed() != 0 {
				t.Errorf("unexpected failures %+v", report.Results)
			}
			if !strings.Contains(strings.Join(page.actions, "\n"), tt.action) {
				t.Errorf("missing %q in %v", tt.action, page.actions)
			}
		})
	}
}

func TestCreator_LoginRejected(t *testing.T) {
	page := newFakePage()
	cfg := testConfig
	cfg.Password = "wrong"
	_, err := NewCreator(page, cfg, &bytes.Buffer{}, logger.Nop()).Run(context.Background(), prompt.Employees())
	if err == nil || !strings.Contains(err.Error(), "login rejected") {
		t.Fatalf("expected login rejection, got %v", err)
	}
	for _, a := range page.actions {
		if strings.HasPrefix(a, "fill #name=") {
			t.Fatal("employee form filled after failed login")
		}
	}
}

func TestCreator_RunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := NewCreator(newFakePage(), testConfig, &bytes.Buffer{}, logger.Nop()).Run(ctx, prompt.Employees())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(report.Results) != 0 {
		t.Errorf("employees created after cancel: %+v", report.Results)
	}
}

func TestSolveCaptcha(t *testing.T) {
	tests := []struct {
		kind, question, want string
		wantErr              bool
	}{
		{"math", "7 + 5 = ?", "12", false},
		{"math", " 20 - 4 = ? ", "16", false},
		{"math", "6 * 7 = ?", "42", false},
		{"math", "6 / 2 = ?", "", true},
		{"math", "what is six", "", true},
		{"text", "Enter the characters: AB12", "AB12", false},
		{"word", "Click: 开始", "开始", false},
		{"word", "Click:", "", true},
		{"slider", "drag", "", true},
	}
	for _, tt := range tests {
		got, err := solveCaptcha(tt.kind, tt.question)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("solveCaptcha(%q, %q) = %q, %v", tt.kind, tt.question, got, err)
		}
	}
}
