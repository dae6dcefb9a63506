package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ConsoleLogger writes human-readable log lines, optionally colored.
type ConsoleLogger struct {
	level      Level
	color      bool
	baseFields []Field
	out        *lockedWriter
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a console logger writing to stderr.
func NewConsole(level Level, color bool) *ConsoleLogger {
	return NewConsoleWriter(os.Stderr, level, color)
}

// NewConsoleWriter creates a console logger writing to w.
func NewConsoleWriter(w io.Writer, level Level, color bool) *ConsoleLogger {
	return &ConsoleLogger{level: level, color: color, out: &lockedWriter{w: w}}
}

func (c *ConsoleLogger) Debug(msg string, fields ...Field) { c.log(LevelDebug, msg, fields) }
func (c *ConsoleLogger) Info(msg string, fields ...Field)  { c.log(LevelInfo, msg, fields) }
func (c *ConsoleLogger) Warn(msg string, fields ...Field)  { c.log(LevelWarn, msg, fields) }
func (c *ConsoleLogger) Error(msg string, fields ...Field) { c.log(LevelError, msg, fields) }

func (c *ConsoleLogger) WithFields(fields ...Field) Logger {
	return &ConsoleLogger{
		level:      c.level,
		color:      c.color,
		baseFields: mergeFields(c.baseFields, fields),
		out:        c.out,
	}
}

func (c *ConsoleLogger) Close() error { return nil }

func (c *ConsoleLogger) log(level Level, msg string, fields []Field) {
	if level < c.level {
		return
	}
	line := fmt.Sprintf("%s %s %s%s\n",
		time.Now().Format("15:04:05"),
		c.levelString(level),
		msg,
		FormatFields(mergeFields(c.baseFields, fields)),
	)

	c.out.mu.Lock()
	defer c.out.mu.Unlock()
	io.WriteString(c.out.w, line)
}

func (c *ConsoleLogger) levelString(level Level) string {
	if !c.color {
		return fmt.Sprintf("[%-5s]", level.String())
	}
	var code string
	switch level {
	case LevelDebug:
		code = "\033[36m"
	case LevelInfo:
		code = "\033[32m"
	case LevelWarn:
		code = "\033[33m"
	case LevelError:
		code = "\033[31m"
	}
	return fmt.Sprintf("%s[%-5s]\033[0m", code, level.String())
}
