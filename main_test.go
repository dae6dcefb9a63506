package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"claude-autorun/browser"
	"claude-autorun/logger"

	"github.com/urfave/cli/v2"
)

func writeFakeClaude(t *testing.T, dir string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	path := filepath.Join(dir, "claude")
	script := `#!/bin/sh
if [ "$1" = "--version" ]; then
	echo "1.0.0 (Claude Code)"
	exit 0
fi
echo "  opened the employee form  "
echo "created 3 employees"
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake claude: %v", err)
	}
	return path
}

func testConfig(t *testing.T, binary string) (*Config, string) {
	t.Helper()
	work := t.TempDir()
	cfg := &Config{}
	cfg.Claude.Binary = binary
	cfg.Claude.SettingsPath = filepath.Join(t.TempDir(), ".config", "claude-code", "settings.local.json")
	cfg.Runner.WorkDir = work
	cfg.applyDefaults()
	return cfg, work
}

func TestRun_EndToEnd(t *testing.T) {
	bin := writeFakeClaude(t, t.TempDir())
	cfg, work := testConfig(t, bin)

	var out bytes.Buffer
	code := run(context.Background(), cfg, strings.NewReader("\n"), &out, logger.Nop())
	if code != 0 {
		t.Fatalf("exit code %d, output:\n%s", code, out.String())
	}

	s := out.String()
	i1 := strings.Index(s, "\nopened the employee form\n")
	i2 := strings.Index(s, "\ncreated 3 employees\n")
	if i1 < 0 || i2 < 0 || i1 > i2 {
		t.Errorf("child lines missing or out of order:\n%s", s)
	}
	if !strings.Contains(s, "All tasks completed!") {
		t.Errorf("missing success banner:\n%s", s)
	}

	if _, err := os.Stat(filepath.Join(work, "automation_prompt.txt")); !os.IsNotExist(err) {
		t.Errorf("prompt file left behind, stat err = %v", err)
	}
	info, err := os.Stat(filepath.Join(work, "start-mcp-server.sh"))
	if err != nil {
		t.Fatalf("launcher not written: %v", err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Errorf("launcher not executable: %v", info.Mode())
	}
	if _, err := os.Stat(cfg.Claude.SettingsPath); err != nil {
		t.Errorf("settings file not created: %v", err)
	}
}

func TestRun_MissingBinary(t *testing.T) {
	cfg, work := testConfig(t, filepath.Join(t.TempDir(), "no-such-claude"))

	var out bytes.Buffer
	code := run(context.Background(), cfg, strings.NewReader("\n"), &out, logger.Nop())
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(out.String(), "Environment check failed") {
		t.Errorf("missing failure banner:\n%s", out.String())
	}
	for _, name := range []string{"start-mcp-server.sh", "automation_prompt.txt"} {
		if _, err := os.Stat(filepath.Join(work, name)); !os.IsNotExist(err) {
			t.Errorf("%s should not exist, stat err = %v", name, err)
		}
	}
}

func TestRun_TaskFailure(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "claude")
	script := "#!/bin/sh\n[ \"$1\" = \"--version\" ] && { echo 1.0.0; exit 0; }\necho boom\nexit 4\n"
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg, work := testConfig(t, bin)

	var out bytes.Buffer
	if code := run(context.Background(), cfg, strings.NewReader("\n"), &out, logger.Nop()); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(out.String(), "exit code: 4") {
		t.Errorf("exit code not reported:\n%s", out.String())
	}
	if _, err := os.Stat(filepath.Join(work, "automation_prompt.txt")); !os.IsNotExist(err) {
		t.Errorf("prompt file left behind, stat err = %v", err)
	}
}

func TestRun_NoConfirmation(t *testing.T) {
	bin := writeFakeClaude(t, t.TempDir())
	cfg, _ := testConfig(t, bin)

	var out bytes.Buffer
	if code := run(context.Background(), cfg, strings.NewReader(""), &out, logger.Nop()); code != 1 {
		t.Fatalf("expected exit 1 on closed stdin, got %d", code)
	}
	if strings.Contains(out.String(), "created 3 employees") {
		t.Error("task ran without confirmation")
	}
}

func TestWaitForEnter(t *testing.T) {
	if err := waitForEnter(context.Background(), strings.NewReader("go")); err != nil {
		t.Errorf("unterminated line should confirm: %v", err)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pr.Close()
	defer pw.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := waitForEnter(ctx, pr); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing config should yield defaults: %v", err)
	}
	if cfg.Claude.Binary != "claude" || cfg.Claude.Model != "sonnet" || cfg.Store.Type != "sqlite" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if !strings.HasSuffix(cfg.Claude.SettingsPath, filepath.Join(".config", "claude-code", "settings.local.json")) ||
		strings.HasPrefix(cfg.Claude.SettingsPath, "~") {
		t.Errorf("settings path not expanded: %q", cfg.Claude.SettingsPath)
	}
	if !*cfg.Site.Captcha {
		t.Error("captcha should default on")
	}
	if !*cfg.Logger.Console.Color {
		t.Error("console color should default on")
	}
	if cfg.Browser.SiteURL != "http://localhost:3000" || !*cfg.Browser.Headless || cfg.Browser.Username != "admin" {
		t.Errorf("unexpected browser defaults %+v", cfg.Browser)
	}

	t.Setenv("AUTORUN_TEST_MODEL", "opus")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
claude:
  model: ${AUTORUN_TEST_MODEL}
  version_timeout: 3s
runner:
  work_dir: /tmp/work
launcher:
  path: launch.sh
logger:
  console:
    color: false
site:
  captcha: false
  captcha_types: [word]
store:
  type: json
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Claude.Model != "opus" {
		t.Errorf("env not expanded, model = %q", cfg.Claude.Model)
	}
	if got := ParseDuration(cfg.Claude.VersionTimeout, time.Second); got != 3*time.Second {
		t.Errorf("version timeout = %s", got)
	}
	if got := cfg.LauncherPath(); got != filepath.Join("/tmp/work", "launch.sh") {
		t.Errorf("LauncherPath = %q", got)
	}
	if *cfg.Site.Captcha {
		t.Error("captcha should be off")
	}
	if len(cfg.Site.CaptchaTypes) != 1 || cfg.Site.CaptchaTypes[0] != "word" {
		t.Errorf("captcha types = %v", cfg.Site.CaptchaTypes)
	}
	if *cfg.Logger.Console.Color {
		t.Error("explicit color: false was overridden")
	}
	if cfg.Store.Type != "json" || cfg.Store.JSON.Path == "" {
		t.Errorf("store config %+v", cfg.Store)
	}

	if err := os.WriteFile(path, []byte("claude: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Minute},
		{" 2s ", 2 * time.Second},
		{"bogus", time.Minute},
	}
	for _, tt := range tests {
		if got := ParseDuration(tt.in, time.Minute); got != tt.want {
			t.Errorf("ParseDuration(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestApp_PromptCommand(t *testing.T) {
	var out bytes.Buffer
	app := newApp(strings.NewReader(""), &out)
	if err := app.Run([]string{"claude-autorun", "prompt"}); err != nil {
		t.Fatalf("prompt command: %v", err)
	}
	if !strings.Contains(out.String(), "Zhang San") {
		t.Errorf("prompt not printed:\n%s", out.String())
	}
}

func TestApp_CheckCommandFailure(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	yml := "claude:\n  binary: " + filepath.Join(dir, "missing") + "\n  settings_path: " + filepath.Join(dir, "s.json") + "\nlogger:\n  level: error\n"
	if err := os.WriteFile(cfgPath, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	app := newApp(strings.NewReader(""), &out)
	err := app.Run([]string{"claude-autorun", "--config", cfgPath, "check"})
	var ec cli.ExitCoder
	if !errors.As(err, &ec) || ec.ExitCode() != 1 {
		t.Fatalf("expected exit code 1, got %v", err)
	}
	if !strings.Contains(out.String(), "not installed") {
		t.Errorf("missing diagnostic:\n%s", out.String())
	}
}

func TestApp_LauncherCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	script := filepath.Join(dir, "start.sh")
	yml := "launcher:\n  path: " + script + "\n"
	if err := os.WriteFile(cfgPath, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	app := newApp(strings.NewReader(""), &out)
	if err := app.Run([]string{"claude-autorun", "-c", cfgPath, "launcher"}); err != nil {
		t.Fatalf("launcher command: %v", err)
	}
	data, err := os.ReadFile(script)
	if err != nil {
		t.Fatalf("launcher not written: %v", err)
	}
	if !strings.Contains(string(data), "npx @playwright/mcp@latest") {
		t.Errorf("unexpected script:\n%s", data)
	}
}

func TestOpenStore_UnknownType(t *testing.T) {
	if _, err := openStore(StoreConfig{Type: "redis"}, logger.Nop()); err == nil {
		t.Error("expected error for unknown store type")
	}
}

func TestOpenStore_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "site.json")
	st, err := openStore(StoreConfig{Type: "json", JSON: JSONStoreCfg{Path: path}}, logger.Nop())
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	n, err := st.Count(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Count = %d, %v", n, err)
	}
	if err := st.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

// unreachablePage fails every navigation, like a browser pointed at a site
// that is not running.
type unreachablePage struct{ browser.Page }

func (unreachablePage) Goto(url string) error {
	return errors.New("net::ERR_CONNECTION_REFUSED at " + url)
}

func TestCreateWith_SiteUnreachable(t *testing.T) {
	cfg, _ := testConfig(t, "claude")
	var out bytes.Buffer
	if code := createWith(context.Background(), unreachablePage{}, cfg, &out, logger.Nop()); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(out.String(), "Task failed") || !strings.Contains(out.String(), "http://localhost:3000/login") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}
