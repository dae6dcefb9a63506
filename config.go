package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"claude-autorun/prompt"
	"claude-autorun/site"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for claude-autorun.
type Config struct {
	Claude   ClaudeConfig   `yaml:"claude"`
	Runner   RunnerConfig   `yaml:"runner"`
	Launcher LauncherConfig `yaml:"launcher"`
	Site     SiteConfig     `yaml:"site"`
	Browser  BrowserConfig  `yaml:"browser"`
	Store    StoreConfig    `yaml:"store"`
	Logger   LoggerConfig   `yaml:"logger"`
}

type ClaudeConfig struct {
	Binary         string `yaml:"binary"`
	Model          string `yaml:"model"`
	VersionTimeout string `yaml:"version_timeout"`
	SettingsPath   string `yaml:"settings_path"`
	// Permissions replaces the built-in allow list when non-empty.
	Permissions []string `yaml:"permissions"`
}

type RunnerConfig struct {
	PromptFile string   `yaml:"prompt_file"`
	WorkDir    string   `yaml:"work_dir"`
	WaitDelay  string   `yaml:"wait_delay"`
	ExtraArgs  []string `yaml:"extra_args"`
}

type LauncherConfig struct {
	Path    string   `yaml:"path"`
	Command string   `yaml:"command"`
	Package string   `yaml:"package"`
	Args    []string `yaml:"args"`
}

type SiteConfig struct {
	Listen  string `yaml:"listen"`
	Captcha *bool  `yaml:"captcha"`
	// CaptchaTypes restricts the captcha kinds shown; empty allows all.
	CaptchaTypes []string             `yaml:"captcha_types"`
	SessionTTL   string               `yaml:"session_ttl"`
	Seed         *bool                `yaml:"seed"`
	Users        map[string]site.User `yaml:"users"`
}

// BrowserConfig drives the create command, which fills the site's form
// through Playwright without the claude CLI.
type BrowserConfig struct {
	SiteURL  string `yaml:"site_url"`
	Headless *bool  `yaml:"headless"`
	Timeout  string `yaml:"timeout"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type StoreConfig struct {
	Type   string       `yaml:"type"`
	SQLite SQLiteCfg    `yaml:"sqlite"`
	MySQL  MySQLCfg     `yaml:"mysql"`
	JSON   JSONStoreCfg `yaml:"json"`
}

type SQLiteCfg struct {
	Path string `yaml:"path"`
}

type MySQLCfg struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

type JSONStoreCfg struct {
	Path          string `yaml:"path"`
	FlushInterval string `yaml:"flush_interval"`
}

type LoggerConfig struct {
	Level      string        `yaml:"level"`
	Console    ConsoleLogCfg `yaml:"console"`
	File       FileLogCfg    `yaml:"file"`
	Structured StructLogCfg  `yaml:"structured"`
}

type ConsoleLogCfg struct {
	Color *bool `yaml:"color"`
}

type FileLogCfg struct {
	Enabled    bool   `yaml:"enabled"`
	Dir        string `yaml:"dir"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type StructLogCfg struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoadConfig reads and parses the config file, expanding environment
// variables. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		// Expand ${ENV_VAR} references
		expanded := os.Expand(string(data), func(key string) string {
			return os.Getenv(key)
		})
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Claude.Binary == "" {
		c.Claude.Binary = "claude"
	}
	if c.Claude.Model == "" {
		c.Claude.Model = "sonnet"
	}
	if c.Claude.VersionTimeout == "" {
		c.Claude.VersionTimeout = "10s"
	}
	if c.Claude.SettingsPath == "" {
		c.Claude.SettingsPath = "~/.config/claude-code/settings.local.json"
	}
	c.Claude.SettingsPath = expandHome(c.Claude.SettingsPath)
	if c.Runner.PromptFile == "" {
		c.Runner.PromptFile = "automation_prompt.txt"
	}
	if c.Runner.WorkDir == "" {
		c.Runner.WorkDir = "."
	}
	if c.Runner.WaitDelay == "" {
		c.Runner.WaitDelay = "5s"
	}
	if c.Launcher.Path == "" {
		c.Launcher.Path = "start-mcp-server.sh"
	}
	if c.Launcher.Command == "" {
		c.Launcher.Command = "npx"
	}
	if c.Launcher.Package == "" {
		c.Launcher.Package = "@playwright/mcp@latest"
	}
	if c.Site.Listen == "" {
		c.Site.Listen = ":3000"
	}
	if c.Site.Captcha == nil {
		c.Site.Captcha = boolPtr(true)
	}
	if c.Site.Seed == nil {
		c.Site.Seed = boolPtr(true)
	}
	if c.Site.SessionTTL == "" {
		c.Site.SessionTTL = "12h"
	}
	if c.Browser.SiteURL == "" {
		c.Browser.SiteURL = prompt.SiteURL
	}
	if c.Browser.Headless == nil {
		c.Browser.Headless = boolPtr(true)
	}
	if c.Browser.Timeout == "" {
		c.Browser.Timeout = "30s"
	}
	if c.Browser.Username == "" {
		c.Browser.Username = "admin"
	}
	if c.Browser.Password == "" {
		c.Browser.Password = "password"
	}
	if c.Store.Type == "" {
		c.Store.Type = "sqlite"
	}
	if c.Store.SQLite.Path == "" {
		c.Store.SQLite.Path = "./data/site.db"
	}
	if c.Store.JSON.Path == "" {
		c.Store.JSON.Path = "./data/site.json"
	}
	if c.Logger.Console.Color == nil {
		c.Logger.Console.Color = boolPtr(true)
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "warn"
	}
	if c.Logger.File.Enabled && c.Logger.File.Dir == "" {
		c.Logger.File.Dir = "./logs"
	}
	if c.Logger.Structured.Enabled && c.Logger.Structured.Path == "" {
		c.Logger.Structured.Path = "./logs/autorun.ndjson"
	}
}

// LauncherPath resolves the launcher script location; relative paths are
// taken from the runner's working directory.
func (c *Config) LauncherPath() string {
	if filepath.IsAbs(c.Launcher.Path) {
		return c.Launcher.Path
	}
	return filepath.Join(c.Runner.WorkDir, c.Launcher.Path)
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func boolPtr(b bool) *bool { return &b }

// ParseDuration parses a duration string, returning a fallback on error.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
