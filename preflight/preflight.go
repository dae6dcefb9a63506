package preflight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"claude-autorun/claude"
	"claude-autorun/logger"
)

// DefaultVersionTimeout bounds the `--version` check.
const DefaultVersionTimeout = 10 * time.Second

// Versioner is the part of the CLI client the checker needs.
type Versioner interface {
	Binary() string
	Version(ctx context.Context, timeout time.Duration) (string, error)
}

// Config configures the environment checker.
type Config struct {
	VersionTimeout time.Duration
	SettingsPath   string
	// Permissions is the allow list written when the settings file is missing.
	Permissions []string
}

// Checker verifies the CLI is invokable and its settings file exists.
type Checker struct {
	cli Versioner
	cfg Config
	out io.Writer
	log logger.Logger
}

// New creates a checker reporting to out.
func New(cli Versioner, cfg Config, out io.Writer, log logger.Logger) *Checker {
	if cfg.VersionTimeout <= 0 {
		cfg.VersionTimeout = DefaultVersionTimeout
	}
	return &Checker{cli: cli, cfg: cfg, out: out, log: log}
}

// Check reports whether the environment is ready. A missing settings file
// is created rather than treated as a failure.
func (c *Checker) Check(ctx context.Context) bool {
	fmt.Fprintln(c.out, "Checking environment...")

	version, err := c.cli.Version(ctx, c.cfg.VersionTimeout)
	if err != nil {
		c.log.Error("preflight.version_failed", logger.String("binary", c.cli.Binary()), logger.Err(err))
		if errors.Is(err, exec.ErrNotFound) {
			fmt.Fprintf(c.out, "%s is not installed, install it first\n", c.cli.Binary())
		} else {
			fmt.Fprintf(c.out, "%s is not installed or not reachable: %v\n", c.cli.Binary(), err)
		}
		return false
	}
	c.log.Info("preflight.version_ok", logger.String("version", version))
	fmt.Fprintf(c.out, "%s version: %s\n", c.cli.Binary(), version)

	if err := c.ensureSettings(); err != nil {
		c.log.Error("preflight.settings_failed", logger.String("path", c.cfg.SettingsPath), logger.Err(err))
		fmt.Fprintf(c.out, "Could not create settings file %s: %v\n", c.cfg.SettingsPath, err)
		return false
	}
	return true
}

func (c *Checker) ensureSettings() error {
	created, err := claude.EnsureSettings(c.cfg.SettingsPath, claude.NewSettings(c.cfg.Permissions))
	if err != nil {
		return err
	}
	if created {
		c.log.Info("preflight.settings_created", logger.String("path", c.cfg.SettingsPath),
			logger.Int("allow", len(c.cfg.Permissions)))
		fmt.Fprintf(c.out, "Settings file not found, created recommended settings: %s\n", c.cfg.SettingsPath)
		return nil
	}
	fmt.Fprintf(c.out, "Settings file exists: %s\n", c.cfg.SettingsPath)

	// An existing file is never rewritten; only report how it differs.
	existing, err := claude.ReadSettings(c.cfg.SettingsPath)
	if err != nil {
		c.log.Warn("preflight.settings_unreadable", logger.String("path", c.cfg.SettingsPath), logger.Err(err))
		fmt.Fprintf(c.out, "Warning: settings file could not be parsed: %v\n", err)
		return nil
	}
	if missing := missingPermissions(existing.Permissions.Allow, c.cfg.Permissions); len(missing) > 0 {
		c.log.Info("preflight.settings_missing_permissions", logger.Int("missing", len(missing)),
			logger.String("first", missing[0]))
		fmt.Fprintf(c.out, "Note: %d recommended permissions are not in the allow list\n", len(missing))
	}
	return nil
}

// missingPermissions returns the entries of want not present in have.
func missingPermissions(have, want []string) []string {
	seen := make(map[string]struct{}, len(have))
	for _, p := range have {
		seen[p] = struct{}{}
	}
	var missing []string
	for _, p := range want {
		if _, ok := seen[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}
