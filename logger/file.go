package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

// FileConfig configures the file logger.
type FileConfig struct {
	Dir        string
	Prefix     string // file name prefix, "autorun" when empty
	Level      Level
	MaxAgeDays int // 0 keeps files forever
}

// fileSink is shared by every FileLogger derived via WithFields.
type fileSink struct {
	mu         sync.Mutex
	dir        string
	prefix     string
	maxAgeDays int
	file       *os.File
	day        string
}

// FileLogger appends log lines to one file per day.
type FileLogger struct {
	level      Level
	baseFields []Field
	sink       *fileSink
}

// NewFile creates the log directory and opens today's file.
func NewFile(cfg FileConfig) (*FileLogger, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "autorun"
	}

	s := &fileSink{dir: cfg.Dir, prefix: prefix, maxAgeDays: cfg.MaxAgeDays}
	if err := s.open(time.Now()); err != nil {
		return nil, err
	}
	s.cleanOld(time.Now())
	return &FileLogger{level: cfg.Level, sink: s}, nil
}

func (l *FileLogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *FileLogger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *FileLogger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *FileLogger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

func (l *FileLogger) WithFields(fields ...Field) Logger {
	return &FileLogger{level: l.level, baseFields: mergeFields(l.baseFields, fields), sink: l.sink}
}

func (l *FileLogger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.file == nil {
		return nil
	}
	err := l.sink.file.Close()
	l.sink.file = nil
	return err
}

func (l *FileLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	now := time.Now()
	line := fmt.Sprintf("%s [%-5s] %s%s\n",
		now.Format("2006-01-02 15:04:05"), level.String(), msg,
		FormatFields(mergeFields(l.baseFields, fields)))

	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if day := now.Format(dayLayout); day != s.day && s.file != nil {
		s.file.Close()
		if err := s.open(now); err != nil {
			fmt.Fprintf(os.Stderr, "file logger rotate failed: %v\n", err)
			s.file = nil
		}
		s.cleanOld(now)
	}
	if s.file != nil {
		s.file.WriteString(line)
	}
}

func (s *fileSink) name(day string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.log", s.prefix, day))
}

func (s *fileSink) open(t time.Time) error {
	day := t.Format(dayLayout)
	f, err := os.OpenFile(s.name(day), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	s.file = f
	s.day = day
	return nil
}

// cleanOld removes files older than maxAgeDays. Caller holds s.mu or owns s.
func (s *fileSink) cleanOld(now time.Time) {
	if s.maxAgeDays <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -s.maxAgeDays)
	for _, name := range s.list() {
		base := filepath.Base(name)
		dateStr := strings.TrimSuffix(strings.TrimPrefix(base, s.prefix+"-"), ".log")
		d, err := time.Parse(dayLayout, dateStr)
		if err != nil {
			continue
		}
		if d.Before(cutoff) {
			os.Remove(name)
		}
	}
}

func (s *fileSink) list() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, e := range entries {
		n := e.Name()
		if strings.HasPrefix(n, s.prefix+"-") && strings.HasSuffix(n, ".log") {
			files = append(files, filepath.Join(s.dir, n))
		}
	}
	sort.Strings(files)
	return files
}

// LogFiles returns all log files in the directory, sorted by name.
func (l *FileLogger) LogFiles() []string {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.list()
}
