package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/reqflow/requisition-service/internal/application/port"
	"github.com/reqflow/requisition-service/internal/domain/apperror"
	"github.com/reqflow/requisition-service/internal/domain/entity"
	"github.com/reqflow/requisition-service/internal/domain/status"
)

// CreateRequisitionInput carries the fields of a new requisition
type CreateRequisitionInput struct {
	Title         string          `validate:"required"`
	Category      string          `validate:"required"`
	Description   string          `validate:"required"`
	EstimatedCost decimal.Decimal `validate:"-"`
	Currency      string          `validate:"required,len=3,uppercase"`
	Urgency       entity.Urgency  `validate:"-"`
	Justification string          `validate:"required"`
}

// UpdateRequisitionInput carries a partial edit of a DRAFT requisition.
// Nil fields are left untouched.
type UpdateRequisitionInput struct {
	Title         *string
	Category      *string
	Description   *string
	EstimatedCost *decimal.Decimal
	Currency      *string
	Urgency       *entity.Urgency
	Justification *string
}

// RecordPaymentInput carries the fields of a payment record
type RecordPaymentInput struct {
	AmountPaid decimal.Decimal
	Date       time.Time
	Method     string
	Reference  string
	Comment    *string
}

// RequisitionService drives the requisition lifecycle. Every mutating
// operation composes a status graph check, the data mutation and exactly one
// audit ledger write inside a single transaction; the status write itself is
// a compare-and-swap so concurrent callers cannot both win the same
// transition.
type RequisitionService interface {
	Create(ctx context.Context, in CreateRequisitionInput, submitterID string, departmentID int64) (*entity.Requisition, error)
	Update(ctx context.Context, id int64, in UpdateRequisitionInput, actorID string) (*entity.Requisition, error)
	Get(ctx context.Context, id int64) (*entity.Requisition, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Requisition, error)

	Submit(ctx context.Context, id int64, actorID string) (*entity.Requisition, error)
	TransitionToUnderReview(ctx context.Context, id int64, actorID string) error
	Approve(ctx context.Context, id int64, approvedCost *decimal.Decimal, actorID string) (*entity.Requisition, error)
	Reject(ctx context.Context, id int64, actorID string) error
	RecordPayment(ctx context.Context, id int64, in RecordPaymentInput, actorID string) (*entity.Requisition, error)
	Close(ctx context.Context, id int64, actorID string) (*entity.Requisition, error)
}

type requisitionServiceImpl struct {
	requisitionRepo   port.RequisitionRepository
	auditRepo         port.AuditRepository
	txManager         port.TransactionManager
	validate          *validator.Validate
	varianceThreshold decimal.Decimal
	logger            Logger
}

// NewRequisitionService creates a new RequisitionService. The variance
// threshold is the maximum fraction the paid amount may exceed the approved
// cost before a payment comment becomes mandatory.
func NewRequisitionService(
	requisitionRepo port.RequisitionRepository,
	auditRepo port.AuditRepository,
	txManager port.TransactionManager,
	varianceThreshold decimal.Decimal,
	logger Logger,
) RequisitionService {
	return &requisitionServiceImpl{
		requisitionRepo:   requisitionRepo,
		auditRepo:         auditRepo,
		txManager:         txManager,
		validate:          validator.New(validator.WithRequiredStructEnabled()),
		varianceThreshold: varianceThreshold,
		logger:            logger,
	}
}

// Create stores a new requisition. The initial status is always DRAFT
// regardless of amount or urgency.
func (s *requisitionServiceImpl) Create(ctx context.Context, in CreateRequisitionInput, submitterID string, departmentID int64) (*entity.Requisition, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	if !in.EstimatedCost.IsPositive() {
		return nil, apperror.NewValidation("estimated cost must be greater than zero")
	}
	if submitterID == "" {
		return nil, apperror.NewValidation("submitter id is required")
	}

	urgency := in.Urgency
	if urgency == "" {
		urgency = entity.UrgencyMedium
	}
	if !urgency.IsValid() {
		return nil, apperror.NewValidation("unknown urgency level %q", urgency)
	}

	req := &entity.Requisition{
		Title:         in.Title,
		Category:      in.Category,
		Description:   in.Description,
		EstimatedCost: in.EstimatedCost,
		Currency:      in.Currency,
		Urgency:       urgency,
		Justification: in.Justification,
		Status:        status.StatusDraft,
		SubmitterID:   submitterID,
		DepartmentID:  departmentID,
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.requisitionRepo.Create(txCtx, req); err != nil {
			return err
		}
		return s.auditRepo.Append(txCtx, &entity.AuditTrailEntry{
			RequisitionID: req.ID,
			UserID:        submitterID,
			ChangeType:    entity.ChangeCreated,
			NewValue:      marshalOpaque(req),
			Timestamp:     time.Now(),
		})
	})
	if err != nil {
		s.logger.Error("Failed to create requisition", "error", err, "submitter", submitterID)
		return nil, err
	}

	s.logger.Info("Requisition created",
		"id", req.ID,
		"submitter", submitterID,
		"estimated_cost", req.EstimatedCost.String(),
	)
	return req, nil
}

// Update merges the supplied fields into a DRAFT requisition
func (s *requisitionServiceImpl) Update(ctx context.Context, id int64, in UpdateRequisitionInput, actorID string) (*entity.Requisition, error) {
	var updated *entity.Requisition

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.requisitionRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if req == nil {
			return apperror.NewNotFound("requisition", id)
		}
		if req.Status != status.StatusDraft {
			return apperror.NewBusinessRule("can only update requisitions in Draft status")
		}

		changed, previous := applyPartialUpdate(req, in)
		if len(changed) == 0 {
			updated = req
			return nil
		}
		if strings.TrimSpace(req.Title) == "" {
			return apperror.NewValidation("title must not be empty")
		}
		if !req.EstimatedCost.IsPositive() {
			return apperror.NewValidation("estimated cost must be greater than zero")
		}
		if req.Urgency != "" && !req.Urgency.IsValid() {
			return apperror.NewValidation("unknown urgency level %q", req.Urgency)
		}

		if err := s.requisitionRepo.UpdateFields(txCtx, req); err != nil {
			return err
		}
		updated = req

		fieldList := strings.Join(changed, ",")
		return s.auditRepo.Append(txCtx, &entity.AuditTrailEntry{
			RequisitionID: req.ID,
			UserID:        actorID,
			ChangeType:    entity.ChangeFieldUpdated,
			FieldName:     &fieldList,
			PreviousValue: marshalOpaque(previous),
			NewValue:      marshalOpaque(snapshotFields(req, changed)),
			Timestamp:     time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Get retrieves a requisition by ID
func (s *requisitionServiceImpl) Get(ctx context.Context, id int64) (*entity.Requisition, error) {
	req, err := s.requisitionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperror.NewNotFound("requisition", id)
	}
	return req, nil
}

// List retrieves a paginated list of requisitions
func (s *requisitionServiceImpl) List(ctx context.Context, limit, offset int) ([]*entity.Requisition, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.requisitionRepo.List(ctx, limit, offset)
}

// Submit moves a complete DRAFT requisition to SUBMITTED
func (s *requisitionServiceImpl) Submit(ctx context.Context, id int64, actorID string) (*entity.Requisition, error) {
	var submitted *entity.Requisition

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.requisitionRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if req == nil {
			return apperror.NewNotFound("requisition", id)
		}
		if missing := missingRequiredFields(req); len(missing) > 0 {
			return apperror.NewValidation("missing required fields: %s", strings.Join(missing, ", "))
		}

		if err := s.transition(txCtx, req, status.StatusSubmitted, actorID); err != nil {
			return err
		}
		submitted = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Requisition submitted", "id", id, "actor", actorID)
	return submitted, nil
}

// TransitionToUnderReview moves a SUBMITTED requisition to UNDER_REVIEW
func (s *requisitionServiceImpl) TransitionToUnderReview(ctx context.Context, id int64, actorID string) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.requisitionRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if req == nil {
			return apperror.NewNotFound("requisition", id)
		}
		return s.transition(txCtx, req, status.StatusUnderReview, actorID)
	})
}

// Approve moves an UNDER_REVIEW requisition to APPROVED. The approved cost
// defaults to the estimated cost when omitted.
func (s *requisitionServiceImpl) Approve(ctx context.Context, id int64, approvedCost *decimal.Decimal, actorID string) (*entity.Requisition, error) {
	var approved *entity.Requisition

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.requisitionRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if req == nil {
			return apperror.NewNotFound("requisition", id)
		}
		if err := status.ValidateTransition(req.Status, status.StatusApproved); err != nil {
			return err
		}

		cost := req.EstimatedCost
		if approvedCost != nil {
			cost = *approvedCost
		}
		if !cost.IsPositive() {
			return apperror.NewValidation("approved cost must be greater than zero")
		}

		if err := s.requisitionRepo.SetApproved(txCtx, id, req.Status, status.StatusApproved, cost); err != nil {
			return err
		}

		prev := req.Status
		req.Status = status.StatusApproved
		req.ApprovedCost = &cost
		approved = req

		return s.appendStatusAudit(txCtx, req, prev, actorID, entity.ChangeStatusChanged, map[string]interface{}{
			"approved_cost": cost.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Requisition approved",
		"id", id,
		"approved_cost", approved.ApprovedCost.String(),
		"actor", actorID,
	)
	return approved, nil
}

// Reject moves an UNDER_REVIEW requisition to the terminal REJECTED status
func (s *requisitionServiceImpl) Reject(ctx context.Context, id int64, actorID string) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.requisitionRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if req == nil {
			return apperror.NewNotFound("requisition", id)
		}
		return s.transition(txCtx, req, status.StatusRejected, actorID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Requisition rejected", "id", id, "actor", actorID)
	return nil
}

// RecordPayment moves an APPROVED requisition to PAID. When the paid amount
// exceeds the approved cost by more than the variance threshold, a comment
// justifying the difference is mandatory.
func (s *requisitionServiceImpl) RecordPayment(ctx context.Context, id int64, in RecordPaymentInput, actorID string) (*entity.Requisition, error) {
	if !in.AmountPaid.IsPositive() {
		return nil, apperror.NewValidation("amount paid must be greater than zero")
	}
	if strings.TrimSpace(in.Method) == "" {
		return nil, apperror.NewValidation("payment method is required")
	}
	if strings.TrimSpace(in.Reference) == "" {
		return nil, apperror.NewValidation("payment reference is required")
	}
	if in.Date.IsZero() {
		return nil, apperror.NewValidation("payment date is required")
	}

	var paid *entity.Requisition

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.requisitionRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if req == nil {
			return apperror.NewNotFound("requisition", id)
		}
		if err := status.ValidateTransition(req.Status, status.StatusPaid); err != nil {
			return err
		}
		if req.ApprovedCost == nil || !req.ApprovedCost.IsPositive() {
			return apperror.NewBusinessRule("requisition %d has no approved cost on record", id)
		}

		variance := in.AmountPaid.Sub(*req.ApprovedCost).Div(*req.ApprovedCost)
		if variance.GreaterThan(s.varianceThreshold) {
			if in.Comment == nil || strings.TrimSpace(*in.Comment) == "" {
				return apperror.NewBusinessRule(
					"payment exceeds approved cost variance threshold of %s: comment required",
					s.varianceThreshold.String(),
				)
			}
		}

		payment := entity.PaymentDetails{
			AmountPaid: in.AmountPaid,
			Method:     in.Method,
			Reference:  in.Reference,
			Date:       in.Date,
			Comment:    in.Comment,
		}
		if err := s.requisitionRepo.SetPayment(txCtx, id, req.Status, status.StatusPaid, payment); err != nil {
			return err
		}

		prev := req.Status
		req.Status = status.StatusPaid
		req.ActualCostPaid = &in.AmountPaid
		req.PaymentMethod = &in.Method
		req.PaymentReference = &in.Reference
		req.PaymentDate = &in.Date
		req.PaymentComment = in.Comment
		paid = req

		return s.appendStatusAudit(txCtx, req, prev, actorID, entity.ChangePaymentRecorded, map[string]interface{}{
			"amount_paid": in.AmountPaid.String(),
			"variance":    variance.String(),
			"method":      in.Method,
			"reference":   in.Reference,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment recorded",
		"id", id,
		"amount_paid", paid.ActualCostPaid.String(),
		"actor", actorID,
	)
	return paid, nil
}

// Close moves a PAID requisition to the terminal CLOSED status
func (s *requisitionServiceImpl) Close(ctx context.Context, id int64, actorID string) (*entity.Requisition, error) {
	var closed *entity.Requisition

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.requisitionRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if req == nil {
			return apperror.NewNotFound("requisition", id)
		}
		if err := status.ValidateTransition(req.Status, status.StatusClosed); err != nil {
			return err
		}

		now := time.Now()
		if err := s.requisitionRepo.SetClosed(txCtx, id, req.Status, status.StatusClosed, now); err != nil {
			return err
		}

		prev := req.Status
		req.Status = status.StatusClosed
		req.ClosedAt = &now
		closed = req

		return s.appendStatusAudit(txCtx, req, prev, actorID, entity.ChangeStatusChanged, nil)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Requisition closed", "id", id, "actor", actorID)
	return closed, nil
}

// transition performs a plain status flip with graph validation, CAS write
// and one audit entry.
func (s *requisitionServiceImpl) transition(ctx context.Context, req *entity.Requisition, to status.Status, actorID string) error {
	if err := status.ValidateTransition(req.Status, to); err != nil {
		return err
	}
	if err := s.requisitionRepo.UpdateStatus(ctx, req.ID, req.Status, to); err != nil {
		return err
	}

	prev := req.Status
	req.Status = to

	changeType := entity.ChangeStatusChanged
	if to == status.StatusRejected {
		changeType = entity.ChangeRejected
	}
	return s.appendStatusAudit(ctx, req, prev, actorID, changeType, nil)
}

func (s *requisitionServiceImpl) appendStatusAudit(ctx context.Context, req *entity.Requisition, prev status.Status, actorID string, changeType entity.ChangeType, metadata map[string]interface{}) error {
	fieldName := "status"
	return s.auditRepo.Append(ctx, &entity.AuditTrailEntry{
		RequisitionID: req.ID,
		UserID:        actorID,
		ChangeType:    changeType,
		FieldName:     &fieldName,
		PreviousValue: marshalOpaque(prev.String()),
		NewValue:      marshalOpaque(req.Status.String()),
		Metadata:      marshalMetadata(metadata),
		Timestamp:     time.Now(),
	})
}

// applyPartialUpdate merges non-nil input fields into the requisition and
// returns the names of changed fields together with their previous values.
func applyPartialUpdate(req *entity.Requisition, in UpdateRequisitionInput) ([]string, map[string]interface{}) {
	var changed []string
	previous := make(map[string]interface{})

	if in.Title != nil && *in.Title != req.Title {
		previous["title"] = req.Title
		req.Title = *in.Title
		changed = append(changed, "title")
	}
	if in.Category != nil && *in.Category != req.Category {
		previous["category"] = req.Category
		req.Category = *in.Category
		changed = append(changed, "category")
	}
	if in.Description != nil && *in.Description != req.Description {
		previous["description"] = req.Description
		req.Description = *in.Description
		changed = append(changed, "description")
	}
	if in.EstimatedCost != nil && !in.EstimatedCost.Equal(req.EstimatedCost) {
		previous["estimated_cost"] = req.EstimatedCost.String()
		req.EstimatedCost = *in.EstimatedCost
		changed = append(changed, "estimated_cost")
	}
	if in.Currency != nil && *in.Currency != req.Currency {
		previous["currency"] = req.Currency
		req.Currency = *in.Currency
		changed = append(changed, "currency")
	}
	if in.Urgency != nil && *in.Urgency != req.Urgency {
		previous["urgency"] = req.Urgency
		req.Urgency = *in.Urgency
		changed = append(changed, "urgency")
	}
	if in.Justification != nil && *in.Justification != req.Justification {
		previous["justification"] = req.Justification
		req.Justification = *in.Justification
		changed = append(changed, "justification")
	}

	return changed, previous
}

func snapshotFields(req *entity.Requisition, fields []string) map[string]interface{} {
	snapshot := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		switch f {
		case "title":
			snapshot[f] = req.Title
		case "category":
			snapshot[f] = req.Category
		case "description":
			snapshot[f] = req.Description
		case "estimated_cost":
			snapshot[f] = req.EstimatedCost.String()
		case "currency":
			snapshot[f] = req.Currency
		case "urgency":
			snapshot[f] = req.Urgency
		case "justification":
			snapshot[f] = req.Justification
		}
	}
	return snapshot
}

func missingRequiredFields(req *entity.Requisition) []string {
	var missing []string
	if strings.TrimSpace(req.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(req.Category) == "" {
		missing = append(missing, "category")
	}
	if strings.TrimSpace(req.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(req.Justification) == "" {
		missing = append(missing, "justification")
	}
	if !req.EstimatedCost.IsPositive() {
		missing = append(missing, "estimated_cost")
	}
	return missing
}

// validationError converts validator failures into the shared taxonomy with
// a message naming the offending fields.
func validationError(err error) error {
	var fields []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field()))
		}
	}
	if len(fields) == 0 {
		return apperror.NewValidation("invalid input")
	}
	return apperror.NewValidation("missing or invalid fields: %s", strings.Join(fields, ", "))
}
