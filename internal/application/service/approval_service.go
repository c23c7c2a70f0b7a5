package service

import (
	"context"
	"strings"
	"time"

	"github.com/reqflow/requisition-service/internal/application/port"
	"github.com/reqflow/requisition-service/internal/domain/apperror"
	"github.com/reqflow/requisition-service/internal/domain/entity"
)

// StepService creates, advances and queries the ordered approval step chain
// of a requisition.
//
// The chain is created once, atomically, from the role list the rule
// resolver produced at submission. Steps resolve strictly in step-number
// order; a rejection halts the chain permanently and later steps remain
// PENDING forever as intentional history.
type StepService interface {
	CreateSteps(ctx context.Context, requisitionID int64, roles []entity.Role) ([]*entity.ApprovalStep, error)
	GetStep(ctx context.Context, id int64) (*entity.ApprovalStep, error)
	ListSteps(ctx context.Context, requisitionID int64) ([]*entity.ApprovalStep, error)

	// GetNextPendingStep returns the lowest-numbered PENDING step whose
	// predecessors are all APPROVED, or nil when the chain is complete or
	// halted by a rejection.
	GetNextPendingStep(ctx context.Context, requisitionID int64) (*entity.ApprovalStep, error)

	ApproveStep(ctx context.Context, stepID int64, actorUserID string, comment *string) (*entity.ApprovalStep, error)
	RejectStep(ctx context.Context, stepID int64, actorUserID string, comment string) (*entity.ApprovalStep, error)

	AllStepsApproved(ctx context.Context, requisitionID int64) (bool, error)
	AnyStepRejected(ctx context.Context, requisitionID int64) (bool, error)
}

type stepServiceImpl struct {
	stepRepo  port.StepRepository
	auditRepo port.AuditRepository
	txManager port.TransactionManager
	logger    Logger
}

// NewStepService creates a new StepService
func NewStepService(
	stepRepo port.StepRepository,
	auditRepo port.AuditRepository,
	txManager port.TransactionManager,
	logger Logger,
) StepService {
	return &stepServiceImpl{
		stepRepo:  stepRepo,
		auditRepo: auditRepo,
		txManager: txManager,
		logger:    logger,
	}
}

// CreateSteps materializes the ordered step chain for a requisition
func (s *stepServiceImpl) CreateSteps(ctx context.Context, requisitionID int64, roles []entity.Role) ([]*entity.ApprovalStep, error) {
	if len(roles) == 0 {
		return nil, apperror.NewValidation("step chain requires at least one approver role")
	}
	for _, role := range roles {
		if !role.IsValid() {
			return nil, apperror.NewValidation("unknown approver role %q", role)
		}
	}

	steps := make([]*entity.ApprovalStep, len(roles))
	for i, role := range roles {
		steps[i] = &entity.ApprovalStep{
			RequisitionID: requisitionID,
			StepNumber:    i + 1,
			RequiredRole:  role,
			Status:        entity.StepPending,
		}
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		unresolved, err := s.stepRepo.CountUnresolved(txCtx, requisitionID)
		if err != nil {
			return err
		}
		if unresolved > 0 {
			return apperror.NewConflict("requisition %d already has %d unresolved approval steps", requisitionID, unresolved)
		}
		return s.stepRepo.CreateBatch(txCtx, steps)
	})
	if err != nil {
		s.logger.Error("Failed to create approval steps", "error", err, "requisition_id", requisitionID)
		return nil, err
	}

	s.logger.Info("Approval steps created",
		"requisition_id", requisitionID,
		"count", len(steps),
	)
	return steps, nil
}

// GetStep retrieves a step by ID
func (s *stepServiceImpl) GetStep(ctx context.Context, id int64) (*entity.ApprovalStep, error) {
	step, err := s.stepRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if step == nil {
		return nil, apperror.NewNotFound("approval step", id)
	}
	return step, nil
}

// ListSteps returns all steps of a requisition ordered by step number
func (s *stepServiceImpl) ListSteps(ctx context.Context, requisitionID int64) ([]*entity.ApprovalStep, error) {
	return s.stepRepo.ListByRequisitionID(ctx, requisitionID)
}

// GetNextPendingStep returns the currently actionable step, if any
func (s *stepServiceImpl) GetNextPendingStep(ctx context.Context, requisitionID int64) (*entity.ApprovalStep, error) {
	steps, err := s.stepRepo.ListByRequisitionID(ctx, requisitionID)
	if err != nil {
		return nil, err
	}

	for _, step := range steps {
		switch step.Status {
		case entity.StepApproved:
			continue
		case entity.StepRejected:
			// Chain halted; nothing is actionable anymore.
			return nil, nil
		case entity.StepPending:
			return step, nil
		}
	}
	return nil, nil
}

// ApproveStep resolves the current eligible step as APPROVED
func (s *stepServiceImpl) ApproveStep(ctx context.Context, stepID int64, actorUserID string, comment *string) (*entity.ApprovalStep, error) {
	var approved *entity.ApprovalStep

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		step, err := s.eligibleStep(txCtx, stepID)
		if err != nil {
			return err
		}
		if step.AssignedUserID != nil && *step.AssignedUserID != actorUserID {
			return apperror.NewBusinessRule("step %d is assigned to another user", step.StepNumber)
		}

		now := time.Now()
		if err := s.stepRepo.Resolve(txCtx, step.ID, entity.StepApproved, comment, now); err != nil {
			return err
		}

		step.Status = entity.StepApproved
		step.Comment = comment
		step.ResolvedAt = &now
		approved = step

		return s.appendStepAudit(txCtx, step, actorUserID, entity.ChangeApproved)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Approval step approved",
		"step_id", approved.ID,
		"requisition_id", approved.RequisitionID,
		"step_number", approved.StepNumber,
		"actor", actorUserID,
	)
	return approved, nil
}

// RejectStep resolves the current eligible step as REJECTED. The comment is
// mandatory; a rejection must state its reason.
func (s *stepServiceImpl) RejectStep(ctx context.Context, stepID int64, actorUserID string, comment string) (*entity.ApprovalStep, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, apperror.NewBusinessRule("rejection requires a comment")
	}

	var rejected *entity.ApprovalStep

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		step, err := s.eligibleStep(txCtx, stepID)
		if err != nil {
			return err
		}
		if step.AssignedUserID != nil && *step.AssignedUserID != actorUserID {
			return apperror.NewBusinessRule("step %d is assigned to another user", step.StepNumber)
		}

		now := time.Now()
		if err := s.stepRepo.Resolve(txCtx, step.ID, entity.StepRejected, &comment, now); err != nil {
			return err
		}

		step.Status = entity.StepRejected
		step.Comment = &comment
		step.ResolvedAt = &now
		rejected = step

		return s.appendStepAudit(txCtx, step, actorUserID, entity.ChangeRejected)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Approval step rejected",
		"step_id", rejected.ID,
		"requisition_id", rejected.RequisitionID,
		"step_number", rejected.StepNumber,
		"actor", actorUserID,
	)
	return rejected, nil
}

// AllStepsApproved reports whether every step of the requisition is APPROVED
func (s *stepServiceImpl) AllStepsApproved(ctx context.Context, requisitionID int64) (bool, error) {
	steps, err := s.stepRepo.ListByRequisitionID(ctx, requisitionID)
	if err != nil {
		return false, err
	}
	if len(steps) == 0 {
		return false, nil
	}
	for _, step := range steps {
		if step.Status != entity.StepApproved {
			return false, nil
		}
	}
	return true, nil
}

// AnyStepRejected reports whether at least one step is REJECTED
func (s *stepServiceImpl) AnyStepRejected(ctx context.Context, requisitionID int64) (bool, error) {
	steps, err := s.stepRepo.ListByRequisitionID(ctx, requisitionID)
	if err != nil {
		return false, err
	}
	for _, step := range steps {
		if step.Status == entity.StepRejected {
			return true, nil
		}
	}
	return false, nil
}

// eligibleStep loads the step and asserts it is the current actionable one:
// PENDING itself, with every lower-numbered step APPROVED.
func (s *stepServiceImpl) eligibleStep(ctx context.Context, stepID int64) (*entity.ApprovalStep, error) {
	step, err := s.stepRepo.GetByID(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if step == nil {
		return nil, apperror.NewNotFound("approval step", stepID)
	}
	if step.Status != entity.StepPending {
		return nil, apperror.NewConflict("step %d is already %s", step.StepNumber, step.Status)
	}

	siblings, err := s.stepRepo.ListByRequisitionID(ctx, step.RequisitionID)
	if err != nil {
		return nil, err
	}
	for _, sibling := range siblings {
		if sibling.StepNumber >= step.StepNumber {
			continue
		}
		switch sibling.Status {
		case entity.StepRejected:
			return nil, apperror.NewConflict("workflow halted: step %d was rejected", sibling.StepNumber)
		case entity.StepPending:
			return nil, apperror.NewConflict("step %d is still pending", sibling.StepNumber)
		}
	}

	return step, nil
}

func (s *stepServiceImpl) appendStepAudit(ctx context.Context, step *entity.ApprovalStep, actorUserID string, changeType entity.ChangeType) error {
	fieldName := "approval_step"

	metadata := map[string]interface{}{
		"step_number":   step.StepNumber,
		"required_role": step.RequiredRole.String(),
	}
	if step.Comment != nil {
		metadata["comment"] = *step.Comment
	}

	return s.auditRepo.Append(ctx, &entity.AuditTrailEntry{
		RequisitionID: step.RequisitionID,
		UserID:        actorUserID,
		ChangeType:    changeType,
		FieldName:     &fieldName,
		PreviousValue: marshalOpaque(string(entity.StepPending)),
		NewValue:      marshalOpaque(string(step.Status)),
		Metadata:      marshalMetadata(metadata),
		Timestamp:     time.Now(),
	})
}
