package claude

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Permissions is the permission block of a settings file.
type Permissions struct {
	Allow []string `json:"allow"`
	Deny  []string `json:"deny"`
}

// Settings is the local settings document read by the claude CLI.
type Settings struct {
	Permissions Permissions `json:"permissions"`
}

// NewSettings builds a settings document allowing the given rules and
// denying nothing. The slice is copied.
func NewSettings(allow []string) Settings {
	return Settings{
		Permissions: Permissions{
			Allow: append([]string{}, allow...),
			Deny:  []string{},
		},
	}
}

// EnsureSettings writes s to path unless a file already exists there.
// It reports whether a new file was created. An existing file is left
// untouched and never parsed.
func EnsureSettings(path string, s Settings) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat settings: %w", err)
	}
	if err := WriteSettings(path, s); err != nil {
		return false, err
	}
	return true, nil
}

// WriteSettings creates the parent directories of path and writes s as
// indented JSON, keeping non-ASCII and HTML characters verbatim.
func WriteSettings(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// ReadSettings parses the settings file at path.
func ReadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return &s, nil
}
