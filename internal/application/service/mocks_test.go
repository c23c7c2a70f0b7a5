package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reqflow/requisition-service/internal/domain/entity"
	"github.com/reqflow/requisition-service/internal/domain/status"
)

// Mock repositories

type mockRequisitionRepo struct {
	createFunc       func(ctx context.Context, r *entity.Requisition) error
	getByIDFunc      func(ctx context.Context, id int64) (*entity.Requisition, error)
	updateFieldsFunc func(ctx context.Context, r *entity.Requisition) error
	updateStatusFunc func(ctx context.Context, id int64, from, to status.Status) error
	setApprovedFunc  func(ctx context.Context, id int64, from, to status.Status, approvedCost decimal.Decimal) error
	setPaymentFunc   func(ctx context.Context, id int64, from, to status.Status, payment entity.PaymentDetails) error
	setClosedFunc    func(ctx context.Context, id int64, from, to status.Status, closedAt time.Time) error
	listFunc         func(ctx context.Context, limit, offset int) ([]*entity.Requisition, error)
}

func (m *mockRequisitionRepo) Create(ctx context.Context, r *entity.Requisition) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, r)
	}
	r.ID = 1 // Set ID for created requisition
	return nil
}

func (m *mockRequisitionRepo) GetByID(ctx context.Context, id int64) (*entity.Requisition, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &entity.Requisition{ID: id, Status: status.StatusDraft}, nil
}

func (m *mockRequisitionRepo) UpdateFields(ctx context.Context, r *entity.Requisition) error {
	if m.updateFieldsFunc != nil {
		return m.updateFieldsFunc(ctx, r)
	}
	return nil
}

func (m *mockRequisitionRepo) UpdateStatus(ctx context.Context, id int64, from, to status.Status) error {
	if m.updateStatusFunc != nil {
		return m.updateStatusFunc(ctx, id, from, to)
	}
	return nil
}

func (m *mockRequisitionRepo) SetApproved(ctx context.Context, id int64, from, to status.Status, approvedCost decimal.Decimal) error {
	if m.setApprovedFunc != nil {
		return m.setApprovedFunc(ctx, id, from, to, approvedCost)
	}
	return nil
}

func (m *mockRequisitionRepo) SetPayment(ctx context.Context, id int64, from, to status.Status, payment entity.PaymentDetails) error {
	if m.setPaymentFunc != nil {
		return m.setPaymentFunc(ctx, id, from, to, payment)
	}
	return nil
}

func (m *mockRequisitionRepo) SetClosed(ctx context.Context, id int64, from, to status.Status, closedAt time.Time) error {
	if m.setClosedFunc != nil {
		return m.setClosedFunc(ctx, id, from, to, closedAt)
	}
	return nil
}

func (m *mockRequisitionRepo) List(ctx context.Context, limit, offset int) ([]*entity.Requisition, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, limit, offset)
	}
	return []*entity.Requisition{}, nil
}

type mockStepRepo struct {
	createBatchFunc     func(ctx context.Context, steps []*entity.ApprovalStep) error
	getByIDFunc         func(ctx context.Context, id int64) (*entity.ApprovalStep, error)
	listByReqFunc       func(ctx context.Context, requisitionID int64) ([]*entity.ApprovalStep, error)
	countUnresolvedFunc func(ctx context.Context, requisitionID int64) (int, error)
	resolveFunc         func(ctx context.Context, id int64, newStatus entity.StepStatus, comment *string, resolvedAt time.Time) error
	listStaleFunc       func(ctx context.Context, olderThan time.Time, limit int) ([]*entity.ApprovalStep, error)
}

func (m *mockStepRepo) CreateBatch(ctx context.Context, steps []*entity.ApprovalStep) error {
	if m.createBatchFunc != nil {
		return m.createBatchFunc(ctx, steps)
	}
	for i, s := range steps {
		s.ID = int64(i + 1)
	}
	return nil
}

func (m *mockStepRepo) GetByID(ctx context.Context, id int64) (*entity.ApprovalStep, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &entity.ApprovalStep{ID: id, Status: entity.StepPending}, nil
}

func (m *mockStepRepo) ListByRequisitionID(ctx context.Context, requisitionID int64) ([]*entity.ApprovalStep, error) {
	if m.listByReqFunc != nil {
		return m.listByReqFunc(ctx, requisitionID)
	}
	return []*entity.ApprovalStep{}, nil
}

func (m *mockStepRepo) CountUnresolved(ctx context.Context, requisitionID int64) (int, error) {
	if m.countUnresolvedFunc != nil {
		return m.countUnresolvedFunc(ctx, requisitionID)
	}
	return 0, nil
}

func (m *mockStepRepo) Resolve(ctx context.Context, id int64, newStatus entity.StepStatus, comment *string, resolvedAt time.Time) error {
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx, id, newStatus, comment, resolvedAt)
	}
	return nil
}

func (m *mockStepRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*entity.ApprovalStep, error) {
	if m.listStaleFunc != nil {
		return m.listStaleFunc(ctx, olderThan, limit)
	}
	return []*entity.ApprovalStep{}, nil
}

type mockRuleRepo struct {
	createFunc            func(ctx context.Context, rule *entity.ApprovalRule) error
	getByIDFunc           func(ctx context.Context, id int64) (*entity.ApprovalRule, error)
	updateFunc            func(ctx context.Context, rule *entity.ApprovalRule) error
	deleteFunc            func(ctx context.Context, id int64) error
	listFunc              func(ctx context.Context) ([]*entity.ApprovalRule, error)
	listForDepartmentFunc func(ctx context.Context, departmentID int64) ([]*entity.ApprovalRule, error)
}

func (m *mockRuleRepo) Create(ctx context.Context, rule *entity.ApprovalRule) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, rule)
	}
	rule.ID = 1
	return nil
}

func (m *mockRuleRepo) GetByID(ctx context.Context, id int64) (*entity.ApprovalRule, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &entity.ApprovalRule{ID: id}, nil
}

func (m *mockRuleRepo) Update(ctx context.Context, rule *entity.ApprovalRule) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, rule)
	}
	return nil
}

func (m *mockRuleRepo) Delete(ctx context.Context, id int64) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

func (m *mockRuleRepo) List(ctx context.Context) ([]*entity.ApprovalRule, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return []*entity.ApprovalRule{}, nil
}

func (m *mockRuleRepo) ListForDepartment(ctx context.Context, departmentID int64) ([]*entity.ApprovalRule, error) {
	if m.listForDepartmentFunc != nil {
		return m.listForDepartmentFunc(ctx, departmentID)
	}
	return []*entity.ApprovalRule{}, nil
}

type mockAuditRepo struct {
	appendFunc           func(ctx context.Context, e *entity.AuditTrailEntry) error
	getByIDFunc          func(ctx context.Context, id int64) (*entity.AuditTrailEntry, error)
	listByReqFunc        func(ctx context.Context, requisitionID int64, skip, take int) ([]*entity.AuditTrailEntry, error)
	listByUserFunc       func(ctx context.Context, userID string, skip, take int) ([]*entity.AuditTrailEntry, error)
	listByChangeTypeFunc func(ctx context.Context, changeType entity.ChangeType, skip, take int) ([]*entity.AuditTrailEntry, error)
	listByDateRangeFunc  func(ctx context.Context, from, to time.Time, skip, take int) ([]*entity.AuditTrailEntry, error)

	appended []*entity.AuditTrailEntry
}

func (m *mockAuditRepo) Append(ctx context.Context, e *entity.AuditTrailEntry) error {
	if m.appendFunc != nil {
		return m.appendFunc(ctx, e)
	}
	e.ID = int64(len(m.appended) + 1)
	m.appended = append(m.appended, e)
	return nil
}

func (m *mockAuditRepo) GetByID(ctx context.Context, id int64) (*entity.AuditTrailEntry, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &entity.AuditTrailEntry{ID: id}, nil
}

func (m *mockAuditRepo) ListByRequisition(ctx context.Context, requisitionID int64, skip, take int) ([]*entity.AuditTrailEntry, error) {
	if m.listByReqFunc != nil {
		return m.listByReqFunc(ctx, requisitionID, skip, take)
	}
	return []*entity.AuditTrailEntry{}, nil
}

func (m *mockAuditRepo) ListByUser(ctx context.Context, userID string, skip, take int) ([]*entity.AuditTrailEntry, error) {
	if m.listByUserFunc != nil {
		return m.listByUserFunc(ctx, userID, skip, take)
	}
	return []*entity.AuditTrailEntry{}, nil
}

func (m *mockAuditRepo) ListByChangeType(ctx context.Context, changeType entity.ChangeType, skip, take int) ([]*entity.AuditTrailEntry, error) {
	if m.listByChangeTypeFunc != nil {
		return m.listByChangeTypeFunc(ctx, changeType, skip, take)
	}
	return []*entity.AuditTrailEntry{}, nil
}

func (m *mockAuditRepo) ListByDateRange(ctx context.Context, from, to time.Time, skip, take int) ([]*entity.AuditTrailEntry, error) {
	if m.listByDateRangeFunc != nil {
		return m.listByDateRangeFunc(ctx, from, to, skip, take)
	}
	return []*entity.AuditTrailEntry{}, nil
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// Test helpers

func strPtr(s string) *string { return &s }

func decPtr(d decimal.Decimal) *decimal.Decimal { return &d }
