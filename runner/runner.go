package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"claude-autorun/claude"
	"claude-autorun/logger"

	"github.com/google/uuid"
)

// DefaultPromptFile is the scratch file the prompt is written to.
const DefaultPromptFile = "automation_prompt.txt"

const rule = "=================================================="

// Executor runs the CLI with a prompt and streams its output.
type Executor interface {
	Binary() string
	Run(ctx context.Context, prompt string, opt claude.RunOption, onLine claude.LineHandler) (*claude.RunResult, error)
}

// Config configures the task runner.
type Config struct {
	Model      string
	WorkDir    string
	PromptFile string // relative names resolve against WorkDir
	ExtraArgs  []string
}

// Runner executes one automation task through the CLI.
type Runner struct {
	exec Executor
	cfg  Config
	out  io.Writer
	log  logger.Logger
}

// New creates a runner that relays child output to out.
func New(exec Executor, cfg Config, out io.Writer, log logger.Logger) *Runner {
	if cfg.PromptFile == "" {
		cfg.PromptFile = DefaultPromptFile
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	return &Runner{exec: exec, cfg: cfg, out: out, log: log}
}

// PromptPath returns where the prompt file is written.
func (r *Runner) PromptPath() string {
	if filepath.IsAbs(r.cfg.PromptFile) {
		return r.cfg.PromptFile
	}
	return filepath.Join(r.cfg.WorkDir, r.cfg.PromptFile)
}

// Run writes the prompt file, invokes the CLI and relays its output line by
// line. The prompt file is removed on every return path. The returned error
// is *claude.ExitError for a non-zero exit and wraps context.Canceled when
// the operator interrupted the run.
func (r *Runner) Run(ctx context.Context, prompt string) error {
	runID := uuid.NewString()[:8]
	log := r.log.WithFields(logger.String("run_id", runID))

	fmt.Fprintln(r.out, "Starting automation task...")

	promptPath := r.PromptPath()
	if err := os.WriteFile(promptPath, []byte(prompt), 0o644); err != nil {
		fmt.Fprintf(r.out, "Error during execution: %v\n", err)
		return fmt.Errorf("write prompt file: %w", err)
	}
	defer func() {
		if err := os.Remove(promptPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("runner.cleanup_failed", logger.String("path", promptPath), logger.Err(err))
		}
	}()

	fmt.Fprintf(r.out, "Invoking %s...\n", r.exec.Binary())
	fmt.Fprintln(r.out, "Note: make sure the Playwright MCP server is running")
	fmt.Fprintf(r.out, "Command: %s\n", r.commandLine(prompt))
	fmt.Fprintln(r.out, rule)

	var mu sync.Mutex
	onLine := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(r.out, line)
	}

	log.Info("runner.started", logger.String("model", r.cfg.Model), logger.String("prompt_file", promptPath))
	res, err := r.exec.Run(ctx, prompt, claude.RunOption{
		Model:     r.cfg.Model,
		WorkDir:   r.cfg.WorkDir,
		ExtraArgs: r.cfg.ExtraArgs,
	}, onLine)

	var exitErr *claude.ExitError
	switch {
	case err == nil:
		log.Info("runner.completed", logger.Int("lines", res.Lines), logger.Duration("elapsed", res.Duration))
		fmt.Fprintln(r.out, "\n"+rule)
		fmt.Fprintln(r.out, "Automation task completed!")
		return nil
	case errors.Is(err, context.Canceled):
		log.Warn("runner.interrupted")
		fmt.Fprintln(r.out, "\nTask interrupted by user")
	case errors.As(err, &exitErr):
		log.Error("runner.exited", logger.Int("exit_code", exitErr.Code))
		fmt.Fprintf(r.out, "\nTask failed, exit code: %d\n", exitErr.Code)
	default:
		log.Error("runner.failed", logger.Err(err))
		fmt.Fprintf(r.out, "Error during execution: %v\n", err)
	}
	return err
}

func (r *Runner) commandLine(prompt string) string {
	parts := []string{r.exec.Binary()}
	if r.cfg.Model != "" {
		parts = append(parts, "--model", r.cfg.Model)
	}
	parts = append(parts, r.cfg.ExtraArgs...)
	return strings.Join(append(parts, prompt), " ")
}
