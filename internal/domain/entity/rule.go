package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalRule maps a cost band, optionally scoped to a department, to the
// ordered list of approver roles required for requisitions in that band.
//
// Rules are independently stored and may overlap; the resolver picks the
// most specific match at submission time. Editing a rule never touches
// existing requisitions; rules are evaluated once, on submission.
type ApprovalRule struct {
	ID                int64            `json:"id"`
	MinAmount         decimal.Decimal  `json:"min_amount"`
	MaxAmount         *decimal.Decimal `json:"max_amount,omitempty"`
	RequiredApprovers []Role           `json:"required_approvers"`
	DepartmentID      *int64           `json:"department_id,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Matches reports whether the rule applies to the given amount and
// department. A nil DepartmentID means the rule applies to all departments.
func (r *ApprovalRule) Matches(amount decimal.Decimal, departmentID int64) bool {
	if amount.LessThan(r.MinAmount) {
		return false
	}
	if r.MaxAmount != nil && amount.GreaterThan(*r.MaxAmount) {
		return false
	}
	if r.DepartmentID != nil && *r.DepartmentID != departmentID {
		return false
	}
	return true
}

// IsDepartmentScoped returns true when the rule targets a single department.
func (r *ApprovalRule) IsDepartmentScoped() bool {
	return r.DepartmentID != nil
}
