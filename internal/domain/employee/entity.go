package employee

import "time"

type Employee struct {
	ID             int64
	EmployeeNumber string
	FullName       string
	Position       string
	Status         EmploymentStatus
	HireDate       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type EmploymentStatus string

const (
	EmploymentStatusActive     EmploymentStatus = "active"
	EmploymentStatusSuspended  EmploymentStatus = "suspended"
	EmploymentStatusTerminated EmploymentStatus = "terminated"
)

// DisplayName falls back to the employee number when no name is on file.
func (e Employee) DisplayName() string {
	if e.FullName != "" {
		return e.FullName
	}
	return e.EmployeeNumber
}
