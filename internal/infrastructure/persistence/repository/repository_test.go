package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reqflow/requisition-service/internal/domain/apperror"
	"github.com/reqflow/requisition-service/internal/domain/entity"
	"github.com/reqflow/requisition-service/internal/domain/status"
	"github.com/reqflow/requisition-service/internal/infrastructure/persistence/sqlite"
	"github.com/reqflow/requisition-service/pkg/database"
)

// setupDB opens an in-memory database with the full schema applied.
// MaxOpenConns is pinned to 1 so every statement sees the same memory
// database.
func setupDB(t *testing.T) *database.DB {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(database.Config{
		Path:            ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).RunMigrations(sqlite.Migrations()))
	return db
}

func newRequisition() *entity.Requisition {
	return &entity.Requisition{
		Title:         "Standing desks",
		Category:      "OFFICE_EQUIPMENT",
		Description:   "Six adjustable standing desks",
		EstimatedCost: decimal.RequireFromString("4500.00"),
		Currency:      "EUR",
		Urgency:       entity.UrgencyMedium,
		Justification: "Current desks fail ergonomic review",
		Status:        status.StatusDraft,
		SubmitterID:   "user-1",
		DepartmentID:  7,
	}
}

func TestRequisitionRepository_CreateAndGet(t *testing.T) {
	db := setupDB(t)
	repo := NewRequisitionRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	req := newRequisition()
	require.NoError(t, repo.Create(ctx, req))
	require.NotZero(t, req.ID)

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, req.Title, got.Title)
	assert.Equal(t, status.StatusDraft, got.Status)
	assert.True(t, got.EstimatedCost.Equal(decimal.RequireFromString("4500.00")))
	assert.Nil(t, got.ApprovedCost)
	assert.Nil(t, got.ClosedAt)
}

func TestRequisitionRepository_GetMissing(t *testing.T) {
	db := setupDB(t)
	repo := NewRequisitionRepository(db.DB, zap.NewNop())

	got, err := repo.GetByID(context.Background(), 9999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRequisitionRepository_UpdateStatusCAS(t *testing.T) {
	db := setupDB(t)
	repo := NewRequisitionRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	req := newRequisition()
	require.NoError(t, repo.Create(ctx, req))

	require.NoError(t, repo.UpdateStatus(ctx, req.ID, status.StatusDraft, status.StatusSubmitted))

	// The row is no longer DRAFT, so a second writer asserting DRAFT loses.
	err := repo.UpdateStatus(ctx, req.ID, status.StatusDraft, status.StatusSubmitted)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, status.StatusSubmitted, got.Status)
}

func TestRequisitionRepository_PaymentRoundTrip(t *testing.T) {
	db := setupDB(t)
	repo := NewRequisitionRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	req := newRequisition()
	req.Status = status.StatusApproved
	require.NoError(t, repo.Create(ctx, req))

	comment := "freight surcharge"
	payment := entity.PaymentDetails{
		AmountPaid: decimal.RequireFromString("4725.50"),
		Method:     "BANK_TRANSFER",
		Reference:  "TX-2291",
		Date:       time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Comment:    &comment,
	}
	require.NoError(t, repo.SetPayment(ctx, req.ID, status.StatusApproved, status.StatusPaid, payment))

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, status.StatusPaid, got.Status)
	require.NotNil(t, got.ActualCostPaid)
	assert.True(t, got.ActualCostPaid.Equal(payment.AmountPaid))
	require.NotNil(t, got.PaymentMethod)
	assert.Equal(t, "BANK_TRANSFER", *got.PaymentMethod)
	require.NotNil(t, got.PaymentComment)
	assert.Equal(t, comment, *got.PaymentComment)
	require.NotNil(t, got.PaymentDate)
}

func TestStepRepository_CreateBatchAndList(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	reqRepo := NewRequisitionRepository(db.DB, zap.NewNop())
	stepRepo := NewStepRepository(db.DB, zap.NewNop())

	req := newRequisition()
	require.NoError(t, reqRepo.Create(ctx, req))

	steps := []*entity.ApprovalStep{
		{RequisitionID: req.ID, StepNumber: 1, RequiredRole: entity.RoleManager, Status: entity.StepPending},
		{RequisitionID: req.ID, StepNumber: 2, RequiredRole: entity.RoleFinance, Status: entity.StepPending},
	}
	require.NoError(t, stepRepo.CreateBatch(ctx, steps))
	assert.NotZero(t, steps[0].ID)
	assert.NotZero(t, steps[1].ID)

	got, err := stepRepo.ListByRequisitionID(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].StepNumber)
	assert.Equal(t, entity.RoleManager, got[0].RequiredRole)
	assert.Equal(t, 2, got[1].StepNumber)

	count, err := stepRepo.CountUnresolved(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStepRepository_ResolveCAS(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	reqRepo := NewRequisitionRepository(db.DB, zap.NewNop())
	stepRepo := NewStepRepository(db.DB, zap.NewNop())

	req := newRequisition()
	require.NoError(t, reqRepo.Create(ctx, req))

	steps := []*entity.ApprovalStep{
		{RequisitionID: req.ID, StepNumber: 1, RequiredRole: entity.RoleManager, Status: entity.StepPending},
	}
	require.NoError(t, stepRepo.CreateBatch(ctx, steps))

	comment := "looks fine"
	require.NoError(t, stepRepo.Resolve(ctx, steps[0].ID, entity.StepApproved, &comment, time.Now()))

	// A second resolution of the same step hits a resolved row.
	err := stepRepo.Resolve(ctx, steps[0].ID, entity.StepRejected, &comment, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	got, err := stepRepo.GetByID(ctx, steps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StepApproved, got.Status)
	require.NotNil(t, got.Comment)
	assert.Equal(t, "looks fine", *got.Comment)
	require.NotNil(t, got.ResolvedAt)
}

func TestStepRepository_ListStalePending(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	reqRepo := NewRequisitionRepository(db.DB, zap.NewNop())
	stepRepo := NewStepRepository(db.DB, zap.NewNop())

	req := newRequisition()
	require.NoError(t, reqRepo.Create(ctx, req))
	require.NoError(t, stepRepo.CreateBatch(ctx, []*entity.ApprovalStep{
		{RequisitionID: req.ID, StepNumber: 1, RequiredRole: entity.RoleManager, Status: entity.StepPending},
	}))

	// Everything was created just now, so a past cutoff matches nothing.
	stale, err := stepRepo.ListStalePending(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	stale, err = stepRepo.ListStalePending(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, stale, 1)
}

func TestRuleRepository_CRUD(t *testing.T) {
	db := setupDB(t)
	repo := NewRuleRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	max := decimal.RequireFromString("1000")
	rule := &entity.ApprovalRule{
		MinAmount:         decimal.Zero,
		MaxAmount:         &max,
		RequiredApprovers: []entity.Role{entity.RoleManager, entity.RoleFinance},
	}
	require.NoError(t, repo.Create(ctx, rule))
	require.NotZero(t, rule.ID)

	got, err := repo.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []entity.Role{entity.RoleManager, entity.RoleFinance}, got.RequiredApprovers)
	require.NotNil(t, got.MaxAmount)
	assert.True(t, got.MaxAmount.Equal(max))
	assert.Nil(t, got.DepartmentID)

	got.RequiredApprovers = []entity.Role{entity.RoleDirector}
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, []entity.Role{entity.RoleDirector}, got.RequiredApprovers)

	require.NoError(t, repo.Delete(ctx, rule.ID))

	err = repo.Delete(ctx, rule.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestRuleRepository_ListForDepartment(t *testing.T) {
	db := setupDB(t)
	repo := NewRuleRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	dept := int64(7)
	otherDept := int64(9)
	rules := []*entity.ApprovalRule{
		{MinAmount: decimal.Zero, RequiredApprovers: []entity.Role{entity.RoleManager}},
		{MinAmount: decimal.Zero, RequiredApprovers: []entity.Role{entity.RoleFinance}, DepartmentID: &dept},
		{MinAmount: decimal.Zero, RequiredApprovers: []entity.Role{entity.RoleDirector}, DepartmentID: &otherDept},
	}
	for _, r := range rules {
		require.NoError(t, repo.Create(ctx, r))
	}

	got, err := repo.ListForDepartment(ctx, dept)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Global rule plus the department's own rule, never the other
	// department's.
	assert.Nil(t, got[0].DepartmentID)
	require.NotNil(t, got[1].DepartmentID)
	assert.Equal(t, dept, *got[1].DepartmentID)
}

func TestAuditRepository_AppendAndQuery(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	reqRepo := NewRequisitionRepository(db.DB, zap.NewNop())
	auditRepo := NewAuditRepository(db.DB, zap.NewNop())

	req := newRequisition()
	require.NoError(t, reqRepo.Create(ctx, req))

	prev := `"DRAFT"`
	next := `"SUBMITTED"`
	entry := &entity.AuditTrailEntry{
		RequisitionID: req.ID,
		UserID:        "user-1",
		ChangeType:    entity.ChangeStatusChanged,
		PreviousValue: &prev,
		NewValue:      &next,
	}
	require.NoError(t, auditRepo.Append(ctx, entry))
	require.NotZero(t, entry.ID)

	got, err := auditRepo.ListByRequisition(ctx, req.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, entity.ChangeStatusChanged, got[0].ChangeType)
	require.NotNil(t, got[0].PreviousValue)
	assert.Equal(t, `"DRAFT"`, *got[0].PreviousValue)
	assert.Nil(t, got[0].FieldName)

	byUser, err := auditRepo.ListByUser(ctx, "user-1", 0, 10)
	require.NoError(t, err)
	assert.Len(t, byUser, 1)

	byType, err := auditRepo.ListByChangeType(ctx, entity.ChangeApproved, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, byType)
}

func TestAuditRepository_StorageRejectsMutation(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	reqRepo := NewRequisitionRepository(db.DB, zap.NewNop())
	auditRepo := NewAuditRepository(db.DB, zap.NewNop())

	req := newRequisition()
	require.NoError(t, reqRepo.Create(ctx, req))
	entry := &entity.AuditTrailEntry{
		RequisitionID: req.ID,
		UserID:        "user-1",
		ChangeType:    entity.ChangeCreated,
	}
	require.NoError(t, auditRepo.Append(ctx, entry))

	// The schema triggers abort any rewrite of history, even raw SQL that
	// bypasses the repository.
	_, err := db.Exec("UPDATE audit_trail SET user_id = 'intruder' WHERE id = ?", entry.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "immutable")

	_, err = db.Exec("DELETE FROM audit_trail WHERE id = ?", entry.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "immutable")
}

func TestTransactionManager_RollbackDiscardsWrites(t *testing.T) {
	db := setupDB(t)
	logger := zap.NewNop()
	txManager := sqlite.NewDB(db.DB, logger)
	repo := NewRequisitionRepository(db.DB, logger)
	ctx := context.Background()

	var id int64
	err := txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req := newRequisition()
		if err := repo.Create(txCtx, req); err != nil {
			return err
		}
		id = req.ID
		return errors.New("abort")
	})
	require.Error(t, err)
	require.NotZero(t, id)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTransactionManager_NestedJoinsOuter(t *testing.T) {
	db := setupDB(t)
	logger := zap.NewNop()
	txManager := sqlite.NewDB(db.DB, logger)
	repo := NewRequisitionRepository(db.DB, logger)
	ctx := context.Background()

	var id int64
	err := txManager.WithTransaction(ctx, func(outer context.Context) error {
		return txManager.WithTransaction(outer, func(inner context.Context) error {
			req := newRequisition()
			if err := repo.Create(inner, req); err != nil {
				return err
			}
			id = req.ID
			return nil
		})
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
}
