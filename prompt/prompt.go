package prompt

import (
	"fmt"
	"strings"
)

// SiteURL is the address of the employee management site the task targets.
const SiteURL = "http://localhost:3000"

// Employee is one record the automation enters through the web form.
type Employee struct {
	Name   string
	Salary int
	Hours  int
	Level  string
	Email  string
}

var employees = [...]Employee{
	{Name: "Zhang San", Salary: 75000, Hours: 24, Level: "Senior", Email: "zhang.san@company.com"},
	{Name: "Li Si", Salary: 90000, Hours: 36, Level: "Middle", Email: "li.si@company.com"},
	{Name: "Wang Wu", Salary: 65000, Hours: 18, Level: "Junior", Email: "wang.wu@company.com"},
}

var ordinals = [...]string{"First", "Second", "Third"}

// Employees returns a copy of the records the prompt asks for.
func Employees() []Employee {
	out := make([]Employee, len(employees))
	copy(out, employees[:])
	return out
}

// Build returns the batch employee creation prompt. It has no inputs and
// returns the same text on every call.
func Build() string {
	var sb strings.Builder

	sb.WriteString("Use the playwright MCP tools to carry out the complete batch employee creation task:\n\n")
	sb.WriteString(fmt.Sprintf("1. Make sure you are logged in to %s (admin/password)\n", SiteURL))
	sb.WriteString("2. Create the following employees in order:\n")

	for i, e := range employees {
		sb.WriteString(fmt.Sprintf("\n%s employee:\n", ordinals[i]))
		sb.WriteString(fmt.Sprintf("- Name: %s\n", e.Name))
		sb.WriteString(fmt.Sprintf("- Salary: %d\n", e.Salary))
		sb.WriteString(fmt.Sprintf("- Working hours: %d\n", e.Hours))
		sb.WriteString(fmt.Sprintf("- Level: %s\n", e.Level))
		sb.WriteString(fmt.Sprintf("- Email: %s\n", e.Email))
	}

	sb.WriteString("\nVerify that each employee was created successfully before moving on, ")
	sb.WriteString("and finish with a complete report of the creation results.")
	return sb.String()
}
