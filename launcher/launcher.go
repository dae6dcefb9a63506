package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultName is the file name of the generated launcher script.
const DefaultName = "start-mcp-server.sh"

// Server describes how the automation server is started through a
// package runner, e.g. `npx @playwright/mcp@latest`.
type Server struct {
	Runner  string   // package runner binary, "npx" when empty
	Package string   // package and version, "@playwright/mcp@latest" when empty
	Args    []string // extra arguments appended after the package
}

// DefaultServer is the playwright MCP server started via npx.
func DefaultServer() Server {
	return Server{Runner: "npx", Package: "@playwright/mcp@latest"}
}

// CommandLine returns the shell command that starts the server.
func (s Server) CommandLine() string {
	s = s.withDefaults()
	parts := append([]string{s.Runner, s.Package}, s.Args...)
	return strings.Join(parts, " ")
}

func (s Server) withDefaults() Server {
	d := DefaultServer()
	if s.Runner == "" {
		s.Runner = d.Runner
	}
	if s.Package == "" {
		s.Package = d.Package
	}
	return s
}

// Script renders the launcher script body.
func Script(s Server) string {
	s = s.withDefaults()
	cmdLine := s.CommandLine()

	var sb strings.Builder
	sb.WriteString("#!/bin/bash\n")
	sb.WriteString("# Playwright MCP server launcher\n\n")
	sb.WriteString("echo \"Starting Playwright MCP server...\"\n\n")
	sb.WriteString(fmt.Sprintf("if ! command -v %s &> /dev/null; then\n", s.Runner))
	sb.WriteString("    echo \"Node.js and npm are required\"\n")
	sb.WriteString("    exit 1\n")
	sb.WriteString("fi\n\n")
	sb.WriteString(fmt.Sprintf("echo \"Command: %s\"\n", cmdLine))
	sb.WriteString(cmdLine + "\n")
	return sb.String()
}

// Write writes the launcher script to path with mode 0755, overwriting
// any existing file, and returns the path.
func Write(path string, s Server) (string, error) {
	if path == "" {
		path = DefaultName
	}
	if err := os.WriteFile(path, []byte(Script(s)), 0o755); err != nil {
		return "", fmt.Errorf("write launcher: %w", err)
	}
	// WriteFile leaves the mode of an existing file alone.
	if err := os.Chmod(path, 0o755); err != nil {
		return "", fmt.Errorf("chmod launcher: %w", err)
	}
	return filepath.Clean(path), nil
}
