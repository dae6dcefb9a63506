package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"claude-autorun/browser"
	"claude-autorun/claude"
	"claude-autorun/launcher"
	"claude-autorun/logger"
	"claude-autorun/preflight"
	"claude-autorun/prompt"
	"claude-autorun/runner"
	"claude-autorun/site"
	"claude-autorun/store"

	"github.com/urfave/cli/v2"
)

const banner = "============================================================"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(os.Stdin, os.Stdout)
	err := app.RunContext(ctx, os.Args)
	stop()
	if err != nil {
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			if msg := ec.Error(); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			os.Exit(ec.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newApp builds the command tree. Commands report failure as a cli.ExitCoder
// so main alone decides when the process exits.
func newApp(stdin io.Reader, stdout io.Writer) *cli.App {
	withEnv := func(fn func(ctx context.Context, cfg *Config, log logger.Logger) int) cli.ActionFunc {
		return func(c *cli.Context) error {
			cfg, err := LoadConfig(c.String("config"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to load config: %v", err), 1)
			}
			log, err := newLogger(cfg.Logger)
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to init logger: %v", err), 1)
			}
			defer log.Close()
			if code := fn(c.Context, cfg, log); code != 0 {
				return cli.Exit("", code)
			}
			return nil
		}
	}

	runAction := withEnv(func(ctx context.Context, cfg *Config, log logger.Logger) int {
		return run(ctx, cfg, stdin, stdout, log)
	})

	return &cli.App{
		Name:            "claude-autorun",
		Usage:           "drive the claude CLI through a browser automation task",
		Writer:          stdout,
		ErrWriter:       os.Stderr,
		ExitErrHandler:  func(*cli.Context, error) {},
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to config file (defaults apply when it does not exist)",
				EnvVars: []string{"AUTORUN_CONFIG"},
			},
		},
		Action: runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "check the environment, write the launcher and run the automation task",
				Action: runAction,
			},
			{
				Name:  "check",
				Usage: "only check that the CLI is installed and its settings file exists",
				Action: withEnv(func(ctx context.Context, cfg *Config, log logger.Logger) int {
					if !newChecker(cfg, stdout, log).Check(ctx) {
						return 1
					}
					return 0
				}),
			},
			{
				Name:  "launcher",
				Usage: "only write the MCP server launcher script",
				Action: withEnv(func(_ context.Context, cfg *Config, log logger.Logger) int {
					path, err := launcher.Write(cfg.LauncherPath(), launcherServer(cfg))
					if err != nil {
						log.Error("launcher.write_failed", logger.Err(err))
						fmt.Fprintf(stdout, "Could not write launcher script: %v\n", err)
						return 1
					}
					fmt.Fprintf(stdout, "Created MCP server launcher: %s\n", path)
					return 0
				}),
			},
			{
				Name:  "prompt",
				Usage: "print the automation prompt",
				Action: func(*cli.Context) error {
					fmt.Fprintln(stdout, prompt.Build())
					return nil
				},
			},
			{
				Name:  "create",
				Usage: "create the employees directly through a local browser, without the claude CLI",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "headed", Usage: "show the browser window, overrides browser.headless"},
				},
				Action: func(c *cli.Context) error {
					headed := c.Bool("headed")
					return withEnv(func(ctx context.Context, cfg *Config, log logger.Logger) int {
						if headed {
							cfg.Browser.Headless = boolPtr(false)
						}
						return create(ctx, cfg, stdout, log)
					})(c)
				},
			},
			{
				Name:  "serve",
				Usage: "serve the employee management site the task operates on",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "listen", Usage: "listen address, overrides site.listen"},
				},
				Action: func(c *cli.Context) error {
					listen := c.String("listen")
					return withEnv(func(ctx context.Context, cfg *Config, log logger.Logger) int {
						if listen != "" {
							cfg.Site.Listen = listen
						}
						return serve(ctx, cfg, log)
					})(c)
				},
			},
		},
	}
}

// run performs the full pipeline: environment check, launcher script,
// operator confirmation, then the automation task. It returns the process
// exit code.
func run(ctx context.Context, cfg *Config, stdin io.Reader, stdout io.Writer, log logger.Logger) int {
	fmt.Fprintln(stdout, banner)
	fmt.Fprintln(stdout, "Claude + Playwright MCP automation")
	fmt.Fprintln(stdout, banner)

	if !newChecker(cfg, stdout, log).Check(ctx) {
		fmt.Fprintln(stdout, "\nEnvironment check failed, fix the problems above and retry")
		return 1
	}

	script, err := launcher.Write(cfg.LauncherPath(), launcherServer(cfg))
	if err != nil {
		log.Error("launcher.write_failed", logger.Err(err))
		fmt.Fprintf(stdout, "Could not write launcher script: %v\n", err)
		return 1
	}
	log.Info("launcher.written", logger.String("path", script))
	fmt.Fprintf(stdout, "Created MCP server launcher: %s\n", script)

	fmt.Fprintln(stdout, "\n"+banner)
	fmt.Fprintln(stdout, "Usage:")
	fmt.Fprintln(stdout, "1. In another terminal start the MCP server:")
	fmt.Fprintf(stdout, "   %s\n", scriptHint(script))
	fmt.Fprintln(stdout, "2. Then press Enter to start the automation task")
	fmt.Fprintln(stdout, banner)
	fmt.Fprint(stdout, "Press Enter to continue...")

	if err := waitForEnter(ctx, stdin); err != nil {
		log.Warn("run.not_confirmed", logger.Err(err))
		fmt.Fprintln(stdout, "\nNo confirmation received, aborting")
		return 1
	}

	client := claude.NewClient(cfg.Claude.Binary, ParseDuration(cfg.Runner.WaitDelay, 5*time.Second), log)
	r := runner.New(client, runner.Config{
		Model:      cfg.Claude.Model,
		WorkDir:    cfg.Runner.WorkDir,
		PromptFile: cfg.Runner.PromptFile,
		ExtraArgs:  cfg.Runner.ExtraArgs,
	}, stdout, log)

	if err := r.Run(ctx, prompt.Build()); err != nil {
		fmt.Fprintln(stdout, "\nTask failed, check the errors above")
		return 1
	}
	fmt.Fprintln(stdout, "\nAll tasks completed!")
	fmt.Fprintln(stdout, "Check the detailed report for the results")
	return 0
}

func newChecker(cfg *Config, out io.Writer, log logger.Logger) *preflight.Checker {
	perms := cfg.Claude.Permissions
	if len(perms) == 0 {
		perms = claude.DefaultPermissions()
	}
	client := claude.NewClient(cfg.Claude.Binary, ParseDuration(cfg.Runner.WaitDelay, 5*time.Second), log)
	return preflight.New(client, preflight.Config{
		VersionTimeout: ParseDuration(cfg.Claude.VersionTimeout, preflight.DefaultVersionTimeout),
		SettingsPath:   cfg.Claude.SettingsPath,
		Permissions:    perms,
	}, out, log)
}

func launcherServer(cfg *Config) launcher.Server {
	return launcher.Server{
		Runner:  cfg.Launcher.Command,
		Package: cfg.Launcher.Package,
		Args:    cfg.Launcher.Args,
	}
}

// scriptHint returns how the operator invokes the script from the current
// directory.
func scriptHint(path string) string {
	if filepath.IsAbs(path) || strings.HasPrefix(path, ".") {
		return path
	}
	return "./" + path
}

// waitForEnter blocks until a line (or a final unterminated one) is read
// from stdin. It returns early when ctx is cancelled or stdin is closed
// without any input.
func waitForEnter(ctx context.Context, stdin io.Reader) error {
	done := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if errors.Is(err, io.EOF) && line != "" {
			err = nil
		}
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// create enters the prompt's employees through a Playwright-driven browser.
func create(ctx context.Context, cfg *Config, stdout io.Writer, log logger.Logger) int {
	m := browser.NewManager()
	if err := m.Initialize(); err != nil {
		log.Error("browser.init_failed", logger.Err(err))
		fmt.Fprintf(stdout, "Could not start the browser: %v\n", err)
		return 1
	}
	defer m.Shutdown()

	timeout := ParseDuration(cfg.Browser.Timeout, 30*time.Second)
	session, err := m.StartSession("create", browser.SessionOptions{
		Headless: *cfg.Browser.Headless,
		Timeout:  float64(timeout.Milliseconds()),
	})
	if err != nil {
		log.Error("browser.session_failed", logger.Err(err))
		fmt.Fprintf(stdout, "Could not open a browser session: %v\n", err)
		return 1
	}

	return createWith(ctx, session, cfg, stdout, log)
}

func createWith(ctx context.Context, page browser.Page, cfg *Config, stdout io.Writer, log logger.Logger) int {
	creator := browser.NewCreator(page, browser.Config{
		SiteURL:  cfg.Browser.SiteURL,
		Username: cfg.Browser.Username,
		Password: cfg.Browser.Password,
	}, stdout, log)
	report, err := creator.Run(ctx, prompt.Employees())
	if err != nil {
		fmt.Fprintf(stdout, "\nTask failed: %v\n", err)
		return 1
	}
	if report.Failed() > 0 {
		fmt.Fprintln(stdout, "\nSome employees could not be created, check the report above")
		return 1
	}
	fmt.Fprintln(stdout, "\nAll tasks completed!")
	return 0
}

// serve runs the employee site until ctx is cancelled.
func serve(ctx context.Context, cfg *Config, log logger.Logger) int {
	st, err := openStore(cfg.Store, log)
	if err != nil {
		log.Error("store.init_failed", logger.Err(err))
		return 1
	}
	defer st.Close()

	srv, err := site.New(st, site.Config{
		Users:        cfg.Site.Users,
		Captcha:      *cfg.Site.Captcha,
		CaptchaKinds: cfg.Site.CaptchaTypes,
		SessionTTL:   ParseDuration(cfg.Site.SessionTTL, 12*time.Hour),
	}, log)
	if err != nil {
		log.Error("site.init_failed", logger.Err(err))
		return 1
	}
	if *cfg.Site.Seed {
		seedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := srv.Seed(seedCtx)
		cancel()
		if err != nil {
			log.Error("site.seed_failed", logger.Err(err))
			return 1
		}
	}

	log.Info("site.ready", logger.String("listen", cfg.Site.Listen), logger.String("store", cfg.Store.Type))
	if err := srv.ListenAndServe(ctx, cfg.Site.Listen); err != nil {
		log.Error("site.listen_failed", logger.Err(err))
		return 1
	}
	log.Info("site.stopped")
	return 0
}

func openStore(cfg StoreConfig, log logger.Logger) (store.Store, error) {
	switch cfg.Type {
	case "mysql":
		return store.NewMySQLStore(store.MySQLConfig{
			DSN:             cfg.MySQL.DSN,
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: ParseDuration(cfg.MySQL.ConnMaxLifetime, 5*time.Minute),
		}, log)
	case "json":
		if dir := filepath.Dir(cfg.JSON.Path); dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		return store.NewJSONStore(cfg.JSON.Path, ParseDuration(cfg.JSON.FlushInterval, 30*time.Second), log)
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		return store.NewSQLiteStore(cfg.SQLite.Path, log)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

func newLogger(cfg LoggerConfig) (logger.Logger, error) {
	level := logger.ParseLevel(cfg.Level)
	loggers := []logger.Logger{logger.NewConsole(level, cfg.Console.Color == nil || *cfg.Console.Color)}

	if cfg.File.Enabled {
		fileLog, err := logger.NewFile(logger.FileConfig{
			Dir:        cfg.File.Dir,
			Level:      level,
			MaxAgeDays: cfg.File.MaxAgeDays,
		})
		if err != nil {
			return nil, fmt.Errorf("file logger: %w", err)
		}
		loggers = append(loggers, fileLog)
	}

	if cfg.Structured.Enabled {
		structLog, err := logger.NewStructured(cfg.Structured.Path, level)
		if err != nil {
			for _, l := range loggers {
				l.Close()
			}
			return nil, fmt.Errorf("structured logger: %w", err)
		}
		loggers = append(loggers, structLog)
	}
	return logger.Multi(loggers...), nil
}
