package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reqflow/requisition-service/internal/domain/entity"
	"github.com/reqflow/requisition-service/internal/domain/status"
)

// RequisitionRepository defines persistence operations for Requisition.
//
// Every status-mutating method takes the expected current status and must
// perform the write as an atomic compare-and-swap: the UPDATE carries a
// `WHERE status = from` predicate, and an affected-row count of zero is
// reported as a Conflict. Implementations never overwrite a status the
// caller did not assert.
type RequisitionRepository interface {
	Create(ctx context.Context, r *entity.Requisition) error

	// GetByID returns (nil, nil) when the requisition does not exist.
	GetByID(ctx context.Context, id int64) (*entity.Requisition, error)

	// UpdateFields persists DRAFT-only free-form edits.
	UpdateFields(ctx context.Context, r *entity.Requisition) error

	// UpdateStatus flips status from -> to.
	UpdateStatus(ctx context.Context, id int64, from, to status.Status) error

	// SetApproved flips status and records the approved cost in one write.
	SetApproved(ctx context.Context, id int64, from, to status.Status, approvedCost decimal.Decimal) error

	// SetPayment flips status and records payment details in one write.
	SetPayment(ctx context.Context, id int64, from, to status.Status, payment entity.PaymentDetails) error

	// SetClosed flips status and stamps the closed timestamp in one write.
	SetClosed(ctx context.Context, id int64, from, to status.Status, closedAt time.Time) error

	List(ctx context.Context, limit, offset int) ([]*entity.Requisition, error)
}

// StepRepository defines persistence operations for ApprovalStep
type StepRepository interface {
	// CreateBatch inserts the full ordered step chain of one requisition.
	CreateBatch(ctx context.Context, steps []*entity.ApprovalStep) error

	// GetByID returns (nil, nil) when the step does not exist.
	GetByID(ctx context.Context, id int64) (*entity.ApprovalStep, error)

	// ListByRequisitionID returns all steps ordered by step number.
	ListByRequisitionID(ctx context.Context, requisitionID int64) ([]*entity.ApprovalStep, error)

	// CountUnresolved returns the number of PENDING steps of a requisition.
	CountUnresolved(ctx context.Context, requisitionID int64) (int, error)

	// Resolve flips a step from PENDING to the given resolution as a
	// compare-and-swap; a lost race is reported as a Conflict.
	Resolve(ctx context.Context, id int64, newStatus entity.StepStatus, comment *string, resolvedAt time.Time) error

	// ListStalePending returns PENDING steps created before the cutoff,
	// oldest first, for the reminder sweep.
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*entity.ApprovalStep, error)
}

// RuleRepository defines persistence operations for ApprovalRule
type RuleRepository interface {
	Create(ctx context.Context, rule *entity.ApprovalRule) error

	// GetByID returns (nil, nil) when the rule does not exist.
	GetByID(ctx context.Context, id int64) (*entity.ApprovalRule, error)

	Update(ctx context.Context, rule *entity.ApprovalRule) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]*entity.ApprovalRule, error)

	// ListForDepartment returns rules scoped to the department plus all
	// global rules. Amount filtering happens in the resolver, which owns
	// the decimal comparison semantics.
	ListForDepartment(ctx context.Context, departmentID int64) ([]*entity.ApprovalRule, error)
}

// AuditRepository defines persistence operations for AuditTrailEntry.
// The entity is append-only: there are deliberately no update or delete
// methods, and the storage schema rejects both at the trigger level.
type AuditRepository interface {
	Append(ctx context.Context, e *entity.AuditTrailEntry) error

	// GetByID returns (nil, nil) when the entry does not exist.
	GetByID(ctx context.Context, id int64) (*entity.AuditTrailEntry, error)

	ListByRequisition(ctx context.Context, requisitionID int64, skip, take int) ([]*entity.AuditTrailEntry, error)
	ListByUser(ctx context.Context, userID string, skip, take int) ([]*entity.AuditTrailEntry, error)
	ListByChangeType(ctx context.Context, changeType entity.ChangeType, skip, take int) ([]*entity.AuditTrailEntry, error)
	ListByDateRange(ctx context.Context, from, to time.Time, skip, take int) ([]*entity.AuditTrailEntry, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
