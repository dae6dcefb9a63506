package claude

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"claude-autorun/logger"
)

// RunOption configures a single task invocation.
type RunOption struct {
	Model     string   // value for --model, omitted when empty
	WorkDir   string   // child working directory, inherited when empty
	ExtraArgs []string // inserted before the prompt
}

// RunResult holds the outcome of a finished (or aborted) invocation.
type RunResult struct {
	ExitCode int
	Lines    int
	Duration time.Duration
}

// LineHandler receives each output line of the child, trimmed of
// surrounding whitespace, in the order it was produced.
type LineHandler func(line string)

// ExitError reports a child that ran to completion with a non-zero status.
type ExitError struct {
	Binary string
	Code   int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Binary, e.Code)
}

// Client wraps the claude CLI binary.
type Client struct {
	binary    string
	waitDelay time.Duration
	log       logger.Logger
}

// NewClient creates a client for the given binary name or path.
// waitDelay bounds how long an interrupted child may take to exit after
// its process group was signalled before it is killed outright.
func NewClient(binary string, waitDelay time.Duration, log logger.Logger) *Client {
	if binary == "" {
		binary = "claude"
	}
	if waitDelay <= 0 {
		waitDelay = 5 * time.Second
	}
	return &Client{binary: binary, waitDelay: waitDelay, log: log}
}

// Binary returns the configured binary name or path.
func (c *Client) Binary() string { return c.binary }

// Version runs `<binary> --version` and returns its trimmed stdout.
// A missing binary, a non-zero exit and a timeout are all errors.
func (c *Client) Version(ctx context.Context, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, c.binary, "--version").Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%s --version timed out after %s", c.binary, timeout)
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			c.log.Debug("claude.version_stderr", logger.String("stderr", truncate(string(ee.Stderr), 200)))
			return "", &ExitError{Binary: c.binary, Code: ee.ExitCode()}
		}
		return "", fmt.Errorf("run %s --version: %w", c.binary, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Run executes the CLI with the prompt as its final argument and streams
// combined stdout/stderr to onLine as lines arrive.
//
// When ctx is cancelled the child's process group is terminated and Run
// returns an error wrapping ctx.Err(). A non-zero exit yields *ExitError.
// The result is non-nil whenever the child was started.
func (c *Client) Run(ctx context.Context, prompt string, opt RunOption, onLine LineHandler) (*RunResult, error) {
	args := c.buildArgs(prompt, opt)
	c.log.Debug("claude.run",
		logger.String("binary", c.binary),
		logger.String("model", opt.Model),
		logger.String("workdir", opt.WorkDir),
		logger.Int("prompt_len", len(prompt)),
	)

	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = opt.WorkDir
	cmd.WaitDelay = c.waitDelay
	isolateProcessGroup(cmd)

	// One pipe for both streams keeps the child's own interleaving.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	start := time.Now()
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("start %s: %w", c.binary, err)
	}
	// The child holds its own copy of the write end.
	pw.Close()

	result := &RunResult{ExitCode: -1}
	lines := 0
	scanDone := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
		for scanner.Scan() {
			lines++
			if onLine != nil {
				onLine(strings.TrimSpace(scanner.Text()))
			}
		}
		scanDone <- scanner.Err()
	}()

	var scanErr error
	select {
	case scanErr = <-scanDone:
	case <-ctx.Done():
		// exec signals the process group; closing our end unblocks the
		// reader even if a stray grandchild still holds the pipe.
		pr.Close()
		<-scanDone
	}
	pr.Close()
	if scanErr != nil && cmd.Cancel != nil {
		cmd.Cancel()
	}

	waitErr := cmd.Wait()
	result.Lines = lines
	result.Duration = time.Since(start)

	if ctx.Err() != nil {
		c.log.Warn("claude.cancelled", logger.Int("lines", lines), logger.Duration("elapsed", result.Duration))
		return result, fmt.Errorf("%s interrupted: %w", c.binary, ctx.Err())
	}
	// The child was stopped because its output could not be read, so the
	// read error is the cause rather than its exit status.
	if scanErr != nil {
		if waitErr == nil {
			result.ExitCode = 0
		}
		return result, fmt.Errorf("read %s output: %w", c.binary, scanErr)
	}
	if waitErr != nil {
		var ee *exec.ExitError
		if errors.As(waitErr, &ee) {
			result.ExitCode = ee.ExitCode()
			return result, &ExitError{Binary: c.binary, Code: result.ExitCode}
		}
		return result, fmt.Errorf("wait %s: %w", c.binary, waitErr)
	}
	result.ExitCode = 0
	return result, nil
}

func (c *Client) buildArgs(prompt string, opt RunOption) []string {
	var args []string
	if opt.Model != "" {
		args = append(args, "--model", opt.Model)
	}
	args = append(args, opt.ExtraArgs...)
	return append(args, prompt)
}

func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}
