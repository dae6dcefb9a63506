package site

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)

type levelOption struct {
	Value string
	Label string
}

// levels lists the selectable employee levels in display order.
var levels = []levelOption{
	{"intern", "Intern"},
	{"junior", "Junior"},
	{"middle", "Middle"},
	{"senior", "Senior"},
	{"manager", "Manager"},
	{"cLevel", "C-Level"},
}

var levelAliases = map[string]string{
	"intern":  "intern",
	"junior":  "junior",
	"middle":  "middle",
	"senior":  "senior",
	"manager": "manager",
	"clevel":  "cLevel",
	"c-level": "cLevel",
	"实习生":     "intern",
	"初级员工":    "junior",
	"中级员工":    "middle",
	"高级员工":    "senior",
	"经理":      "manager",
	"高管":      "cLevel",
}

// normalizeLevel maps labels and aliases onto canonical level values.
// Unknown non-empty values are kept as entered.
func normalizeLevel(s string) string {
	s = strings.TrimSpace(s)
	if v, ok := levelAliases[strings.ToLower(s)]; ok {
		return v
	}
	return s
}

type employeeForm struct {
	Name     string
	Salary   int
	Duration string
	Level    string
	Email    string
}

var errInvalidForm = errors.New("invalid employee form")

// parseEmployeeForm normalizes and validates a submitted create form.
func parseEmployeeForm(v url.Values) (employeeForm, error) {
	f := employeeForm{
		Name:     strings.TrimSpace(v.Get("name")),
		Duration: strings.TrimSpace(v.Get("duration")),
		Level:    normalizeLevel(v.Get("level")),
		Email:    strings.ToLower(strings.TrimSpace(v.Get("email"))),
	}
	if f.Level == "" {
		// older form revisions posted the level as "grade"
		f.Level = normalizeLevel(v.Get("grade"))
	}

	salary, err := strconv.ParseFloat(strings.TrimSpace(v.Get("salary")), 64)
	if err != nil || math.IsNaN(salary) || math.Abs(salary) >= math.MaxInt64 {
		return f, fmt.Errorf("%w: salary %q", errInvalidForm, v.Get("salary"))
	}
	f.Salary = int(math.Trunc(salary))

	switch {
	case f.Name == "":
		return f, fmt.Errorf("%w: name is required", errInvalidForm)
	case f.Duration == "":
		return f, fmt.Errorf("%w: duration is required", errInvalidForm)
	case f.Level == "":
		return f, fmt.Errorf("%w: level is required", errInvalidForm)
	case !emailPattern.MatchString(f.Email):
		return f, fmt.Errorf("%w: email %q", errInvalidForm, f.Email)
	}
	return f, nil
}
