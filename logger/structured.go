package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type ndjsonSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// StructuredLogger writes one JSON object per line (NDJSON).
type StructuredLogger struct {
	level      Level
	baseFields []Field
	sink       *ndjsonSink
}

// NewStructured opens (or creates) path for appending NDJSON entries.
func NewStructured(path string, level Level) (*StructuredLogger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open structured log: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	return &StructuredLogger{level: level, sink: &ndjsonSink{file: f, enc: enc}}, nil
}

func (s *StructuredLogger) Debug(msg string, fields ...Field) { s.log(LevelDebug, msg, fields) }
func (s *StructuredLogger) Info(msg string, fields ...Field)  { s.log(LevelInfo, msg, fields) }
func (s *StructuredLogger) Warn(msg string, fields ...Field)  { s.log(LevelWarn, msg, fields) }
func (s *StructuredLogger) Error(msg string, fields ...Field) { s.log(LevelError, msg, fields) }

func (s *StructuredLogger) WithFields(fields ...Field) Logger {
	return &StructuredLogger{level: s.level, baseFields: mergeFields(s.baseFields, fields), sink: s.sink}
}

func (s *StructuredLogger) Close() error {
	s.sink.mu.Lock()
	defer s.sink.mu.Unlock()
	if s.sink.file == nil {
		return nil
	}
	err := s.sink.file.Close()
	s.sink.file = nil
	return err
}

func (s *StructuredLogger) log(level Level, msg string, fields []Field) {
	if level < s.level {
		return
	}
	all := mergeFields(s.baseFields, fields)
	entry := make(map[string]any, 3+len(all))
	for _, f := range all {
		entry[f.Key] = f.Value
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["msg"] = msg

	s.sink.mu.Lock()
	defer s.sink.mu.Unlock()
	if s.sink.file != nil {
		s.sink.enc.Encode(entry)
	}
}
