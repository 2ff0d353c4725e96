package employee

import "context"

// EmployeeRepository is the read side of the employee directory.
type EmployeeRepository interface {
	GetByID(ctx context.Context, id int64) (Employee, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Employee, error)
}
