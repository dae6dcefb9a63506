package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"claude-autorun/logger"
)

// JSONStore keeps employees in memory and flushes them to a JSON file
// periodically and on Close.
type JSONStore struct {
	path          string
	mu            sync.RWMutex
	employees     map[string]*Employee
	dirty         bool
	log           logger.Logger
	flushInterval time.Duration
	stopFlush     chan struct{}
	flushDone     chan struct{}
	closeOnce     sync.Once
}

type jsonData struct {
	Employees []*Employee `json:"employees"`
}

// NewJSONStore loads path if it exists and starts the background flusher.
func NewJSONStore(path string, flushInterval time.Duration, log logger.Logger) (*JSONStore, error) {
	if flushInterval <= 0 {
		flushInterval = 30 * time.Second
	}
	s := &JSONStore{
		path:          path,
		employees:     make(map[string]*Employee),
		log:           log,
		flushInterval: flushInterval,
		stopFlush:     make(chan struct{}),
		flushDone:     make(chan struct{}),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	go s.flushLoop()

	log.Info("store.json.opened", logger.String("path", path), logger.Int("employees", len(s.employees)))
	return s, nil
}

func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read json store: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var d jsonData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("unmarshal json store: %w", err)
	}
	for _, e := range d.Employees {
		s.employees[e.ID] = e
	}
	return nil
}

func (s *JSONStore) flush() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	data, err := json.MarshalIndent(jsonData{Employees: s.sortedLocked()}, "", "  ")
	s.dirty = false
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal json store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write json store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace json store: %w", err)
	}
	return nil
}

func (s *JSONStore) flushLoop() {
	defer close(s.flushDone)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.flush(); err != nil {
				s.log.Error("store.json.flush_failed", logger.Err(err))
			}
		case <-s.stopFlush:
			return
		}
	}
}

func (s *JSONStore) sortedLocked() []*Employee {
	out := make([]*Employee, 0, len(s.employees))
	for _, e := range s.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *JSONStore) CreateEmployee(_ context.Context, e *Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.employees[e.ID]; exists {
		return fmt.Errorf("employee %s already exists", e.ID)
	}
	clone := *e
	s.employees[e.ID] = &clone
	s.dirty = true
	return nil
}

func (s *JSONStore) GetEmployee(_ context.Context, id string) (*Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.employees[id]
	if !ok {
		return nil, nil
	}
	clone := *e
	return &clone, nil
}

func (s *JSONStore) ListEmployees(_ context.Context, filter EmployeeFilter) ([]*Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit, offset := normalizePage(filter)
	var out []*Employee
	skipped := 0
	for _, e := range s.sortedLocked() {
		if filter.Level != "" && e.Level != filter.Level {
			continue
		}
		if filter.Email != "" && e.Email != filter.Email {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		clone := *e
		out = append(out, &clone)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *JSONStore) DeleteEmployee(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.employees[id]; !ok {
		return fmt.Errorf("employee %s: %w", id, ErrNotFound)
	}
	delete(s.employees, id)
	s.dirty = true
	return nil
}

func (s *JSONStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.employees), nil
}

// Close stops the flusher and writes pending changes.
func (s *JSONStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopFlush)
		<-s.flushDone
		err = s.flush()
	})
	return err
}
