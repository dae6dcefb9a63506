package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"claude-autorun/logger"
)

func newTestSQLiteStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger.Nop())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestJSONStore(t *testing.T) Store {
	t.Helper()
	s, err := NewJSONStore(filepath.Join(t.TempDir(), "test.json"), time.Hour, logger.Nop())
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func makeEmployee(id, name, level string, offset time.Duration) *Employee {
	return &Employee{
		ID:        id,
		Name:      name,
		Salary:    75000,
		Duration:  "24",
		Level:     level,
		Email:     id + "@company.com",
		CreatedBy: "admin",
		CreatedAt: base.Add(offset),
	}
}

// Both backends must satisfy the same contract.
func TestStores(t *testing.T) {
	backends := map[string]func(*testing.T) Store{
		"sqlite": newTestSQLiteStore,
		"json":   newTestJSONStore,
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, open(t)) })
			t.Run("ListOrderAndFilter", func(t *testing.T) { testListOrderAndFilter(t, open(t)) })
			t.Run("Delete", func(t *testing.T) { testDelete(t, open(t)) })
		})
	}
}

func testCreateGet(t *testing.T, s Store) {
	ctx := context.Background()
	e := makeEmployee("emp-1", "Zhang San", "senior", 0)
	if err := s.CreateEmployee(ctx, e); err != nil {
		t.Fatalf("CreateEmployee: %v", err)
	}
	if err := s.CreateEmployee(ctx, e); err == nil {
		t.Error("expected duplicate id error")
	}

	got, err := s.GetEmployee(ctx, "emp-1")
	if err != nil || got == nil {
		t.Fatalf("GetEmployee: %v %v", got, err)
	}
	if got.Name != e.Name || got.Salary != e.Salary || got.Duration != e.Duration ||
		got.Level != e.Level || got.Email != e.Email || got.CreatedBy != e.CreatedBy ||
		!got.CreatedAt.Equal(e.CreatedAt) {
		t.Errorf("fields mismatch: got %+v want %+v", got, e)
	}

	missing, err := s.GetEmployee(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("expected (nil, nil) for unknown id, got %v %v", missing, err)
	}
}

func testListOrderAndFilter(t *testing.T, s Store) {
	ctx := context.Background()
	for _, e := range []*Employee{
		makeEmployee("c", "Wang Wu", "junior", 2*time.Second),
		makeEmployee("a", "Zhang San", "senior", 0),
		makeEmployee("b", "Li Si", "middle", time.Second),
	} {
		if err := s.CreateEmployee(ctx, e); err != nil {
			t.Fatalf("CreateEmployee: %v", err)
		}
	}

	all, err := s.ListEmployees(ctx, EmployeeFilter{})
	if err != nil {
		t.Fatalf("ListEmployees: %v", err)
	}
	if len(all) != 3 || all[0].ID != "a" || all[1].ID != "b" || all[2].ID != "c" {
		t.Fatalf("unexpected order: %v", ids(all))
	}

	seniors, _ := s.ListEmployees(ctx, EmployeeFilter{Level: "senior"})
	if len(seniors) != 1 || seniors[0].ID != "a" {
		t.Errorf("level filter: %v", ids(seniors))
	}
	byEmail, _ := s.ListEmployees(ctx, EmployeeFilter{Email: "b@company.com"})
	if len(byEmail) != 1 || byEmail[0].ID != "b" {
		t.Errorf("email filter: %v", ids(byEmail))
	}
	page, _ := s.ListEmployees(ctx, EmployeeFilter{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].ID != "b" {
		t.Errorf("pagination: %v", ids(page))
	}

	n, err := s.Count(ctx)
	if err != nil || n != 3 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

func testDelete(t *testing.T, s Store) {
	ctx := context.Background()
	if err := s.CreateEmployee(ctx, makeEmployee("x", "X", "junior", 0)); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteEmployee(ctx, "x"); err != nil {
		t.Fatalf("DeleteEmployee: %v", err)
	}
	if err := s.DeleteEmployee(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestJSONStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "employees.json")
	ctx := context.Background()

	s, err := NewJSONStore(path, time.Hour, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CreateEmployee(ctx, makeEmployee("p", "Li Si", "middle", 0)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Second close is a no-op.
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	s2, err := NewJSONStore(path, time.Hour, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	got, _ := s2.GetEmployee(ctx, "p")
	if got == nil || got.Name != "Li Si" {
		t.Errorf("employee not persisted: %+v", got)
	}
}

func TestJSONStore_ReturnsCopies(t *testing.T) {
	s := newTestJSONStore(t)
	ctx := context.Background()
	e := makeEmployee("m", "Wang Wu", "junior", 0)
	if err := s.CreateEmployee(ctx, e); err != nil {
		t.Fatal(err)
	}
	e.Name = "mutated"
	got, _ := s.GetEmployee(ctx, "m")
	got.Salary = 1
	again, _ := s.GetEmployee(ctx, "m")
	if again.Name != "Wang Wu" || again.Salary != 75000 {
		t.Errorf("store leaked internal state: %+v", again)
	}
}

func ids(es []*Employee) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}
