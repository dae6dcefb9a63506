package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an update or delete targets a missing record.
var ErrNotFound = errors.New("not found")

// Employee is a record managed through the employee site.
type Employee struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Salary    int       `json:"salary"`
	Duration  string    `json:"duration"`
	Level     string    `json:"level"`
	Email     string    `json:"email"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// EmployeeFilter narrows ListEmployees. Zero values match everything.
type EmployeeFilter struct {
	Level  string `json:"level"`
	Email  string `json:"email"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

const defaultListLimit = 500

// Store persists employees for the site.
type Store interface {
	CreateEmployee(ctx context.Context, e *Employee) error
	// GetEmployee returns (nil, nil) when id is unknown.
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	// ListEmployees returns records oldest first.
	ListEmployees(ctx context.Context, filter EmployeeFilter) ([]*Employee, error)
	DeleteEmployee(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	Close() error
}

func normalizePage(f EmployeeFilter) (limit, offset int) {
	limit, offset = f.Limit, f.Offset
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
