package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"claude-autorun/logger"
	"claude-autorun/prompt"
)

// Config configures a direct creation run.
type Config struct {
	SiteURL  string
	Username string
	Password string
}

// Result is the outcome for one employee.
type Result struct {
	Employee prompt.Employee
	Err      error
}

// Report collects the per-employee outcomes of a run.
type Report struct {
	Results []Result
}

// Failed returns how many employees could not be created.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Creator logs in to the employee site and enters employees through the
// create form.
type Creator struct {
	page Page
	cfg  Config
	out  io.Writer
	log  logger.Logger
}

func NewCreator(page Page, cfg Config, out io.Writer, log logger.Logger) *Creator {
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	return &Creator{page: page, cfg: cfg, out: out, log: log}
}

// Run logs in and creates each employee in order. A login failure aborts
// the run; a failed employee is recorded and the run moves on.
func (c *Creator) Run(ctx context.Context, employees []prompt.Employee) (*Report, error) {
	if err := c.login(); err != nil {
		c.log.Error("browser.login_failed", logger.Err(err))
		return nil, err
	}
	c.log.Info("browser.logged_in", logger.String("user", c.cfg.Username))
	fmt.Fprintf(c.out, "Logged in to %s as %s\n", c.cfg.SiteURL, c.cfg.Username)

	report := &Report{}
	for i, e := range employees {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		err := c.create(e)
		report.Results = append(report.Results, Result{Employee: e, Err: err})
		if err != nil {
			c.log.Warn("browser.create_failed", logger.String("email", e.Email), logger.Err(err))
			fmt.Fprintf(c.out, "[%d/%d] %s: failed: %v\n", i+1, len(employees), e.Name, err)
			continue
		}
		c.log.Info("browser.employee_created", logger.String("email", e.Email))
		fmt.Fprintf(c.out, "[%d/%d] %s: created\n", i+1, len(employees), e.Name)
	}
	c.printReport(report)
	return report, nil
}

func (c *Creator) login() error {
	if err := c.page.Goto(c.cfg.SiteURL + "/login"); err != nil {
		return err
	}
	if err := c.page.Fill("#username", c.cfg.Username); err != nil {
		return err
	}
	if err := c.page.Fill("#password", c.cfg.Password); err != nil {
		return err
	}

	hasCaptcha, err := c.page.Visible("#captcha")
	if err != nil {
		return err
	}
	if hasCaptcha {
		if err := c.answerCaptcha(); err != nil {
			return err
		}
	}

	if err := c.page.Click(`button[type="submit"]`); err != nil {
		return err
	}
	if err := c.page.WaitForIdle(); err != nil {
		return err
	}
	if !strings.Contains(c.page.URL(), "/dashboard") {
		return fmt.Errorf("login rejected, landed on %s", c.page.URL())
	}
	return nil
}

func (c *Creator) answerCaptcha() error {
	kind, err := c.page.Attr("#captcha", "data-kind")
	if err != nil {
		return err
	}
	question, err := c.page.Text("#captcha_question")
	if err != nil {
		return err
	}
	answer, err := solveCaptcha(kind, question)
	if err != nil {
		return err
	}
	c.log.Debug("browser.captcha", logger.String("kind", kind), logger.String("question", question))

	if kind == "word" {
		return c.page.Click(fmt.Sprintf(`.captcha-option[data-value=%q]`, answer))
	}
	return c.page.Fill("#captcha_answer", answer)
}

func (c *Creator) create(e prompt.Employee) error {
	if err := c.page.Click(`a[href="/employee/create"]`); err != nil {
		return err
	}
	if err := c.page.WaitForIdle(); err != nil {
		return err
	}
	fields := []struct{ selector, value string }{
		{"#name", e.Name},
		{"#salary", strconv.Itoa(e.Salary)},
		{"#duration", strconv.Itoa(e.Hours)},
	}
	for _, f := range fields {
		if err := c.page.Fill(f.selector, f.value); err != nil {
			return err
		}
	}
	if err := c.page.SelectByLabel("#level", e.Level); err != nil {
		return err
	}
	if err := c.page.Fill("#email", e.Email); err != nil {
		return err
	}
	if err := c.page.Click(`button[type="submit"]`); err != nil {
		return err
	}
	if err := c.page.WaitForIdle(); err != nil {
		return err
	}

	ok, err := c.page.Visible("#message")
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no confirmation shown")
	}
	msg, err := c.page.Text("#message")
	if err != nil {
		return err
	}
	if !strings.Contains(msg, "Success") {
		return fmt.Errorf("unexpected confirmation %q", strings.TrimSpace(msg))
	}
	return nil
}

func (c *Creator) printReport(r *Report) {
	fmt.Fprintln(c.out, "\n=== CREATION REPORT ===")
	fmt.Fprintf(c.out, "Total: %d\n", len(r.Results))
	fmt.Fprintf(c.out, "Successful: %d\n", len(r.Results)-r.Failed())
	fmt.Fprintf(c.out, "Failed: %d\n", r.Failed())
	fmt.Fprintln(c.out, "Details:")
	for _, res := range r.Results {
		status := "ok"
		if res.Err != nil {
			status = "failed: " + res.Err.Error()
		}
		fmt.Fprintf(c.out, "- %s <%s>: %s\n", res.Employee.Name, res.Employee.Email, status)
	}
}

// solveCaptcha answers the challenges rendered by the employee site.
func solveCaptcha(kind, question string) (string, error) {
	question = strings.TrimSpace(question)
	switch kind {
	case "math":
		var a, b int
		var op string
		if _, err := fmt.Sscanf(question, "%d %s %d = ?", &a, &op, &b); err != nil {
			return "", fmt.Errorf("parse math captcha %q: %w", question, err)
		}
		switch op {
		case "+":
			return strconv.Itoa(a + b), nil
		case "-":
			return strconv.Itoa(a - b), nil
		case "*":
			return strconv.Itoa(a * b), nil
		}
		return "", fmt.Errorf("unknown operator %q in captcha", op)
	case "word", "text":
		_, answer, ok := strings.Cut(question, ": ")
		if !ok || strings.TrimSpace(answer) == "" {
			return "", fmt.Errorf("unexpected %s captcha %q", kind, question)
		}
		return strings.TrimSpace(answer), nil
	}
	return "", fmt.Errorf("unsupported captcha kind %q", kind)
}
