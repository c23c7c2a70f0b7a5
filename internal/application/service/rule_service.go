package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/reqflow/requisition-service/internal/application/port"
	"github.com/reqflow/requisition-service/internal/domain/apperror"
	"github.com/reqflow/requisition-service/internal/domain/entity"
)

// RuleInput carries the editable fields of an approval rule
type RuleInput struct {
	MinAmount         decimal.Decimal
	MaxAmount         *decimal.Decimal
	RequiredApprovers []entity.Role
	DepartmentID      *int64
}

// RuleService manages the approval rule set and resolves the required
// approver chain for a given amount and department.
type RuleService interface {
	CreateRule(ctx context.Context, in RuleInput) (*entity.ApprovalRule, error)
	UpdateRule(ctx context.Context, id int64, in RuleInput) (*entity.ApprovalRule, error)
	DeleteRule(ctx context.Context, id int64) error
	GetRule(ctx context.Context, id int64) (*entity.ApprovalRule, error)
	ListRules(ctx context.Context) ([]*entity.ApprovalRule, error)

	// DetermineApprovers returns the ordered approver roles of the most
	// specific matching rule, or an empty slice when no rule matches.
	DetermineApprovers(ctx context.Context, amount decimal.Decimal, departmentID int64) ([]entity.Role, error)
}

type ruleServiceImpl struct {
	ruleRepo port.RuleRepository
	logger   Logger
}

// NewRuleService creates a new RuleService
func NewRuleService(ruleRepo port.RuleRepository, logger Logger) RuleService {
	return &ruleServiceImpl{
		ruleRepo: ruleRepo,
		logger:   logger,
	}
}

// CreateRule validates and stores a new approval rule
func (s *ruleServiceImpl) CreateRule(ctx context.Context, in RuleInput) (*entity.ApprovalRule, error) {
	if err := validateRuleInput(in); err != nil {
		return nil, err
	}

	rule := &entity.ApprovalRule{
		MinAmount:         in.MinAmount,
		MaxAmount:         in.MaxAmount,
		RequiredApprovers: append([]entity.Role(nil), in.RequiredApprovers...),
		DepartmentID:      in.DepartmentID,
	}

	if err := s.ruleRepo.Create(ctx, rule); err != nil {
		s.logger.Error("Failed to create approval rule", "error", err)
		return nil, err
	}

	s.logger.Info("Approval rule created", "id", rule.ID, "min_amount", rule.MinAmount.String())
	return rule, nil
}

// UpdateRule replaces the editable fields of an existing rule. Existing
// requisitions are unaffected; rules are evaluated at submission time only.
func (s *ruleServiceImpl) UpdateRule(ctx context.Context, id int64, in RuleInput) (*entity.ApprovalRule, error) {
	if err := validateRuleInput(in); err != nil {
		return nil, err
	}

	rule, err := s.ruleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, apperror.NewNotFound("approval rule", id)
	}

	rule.MinAmount = in.MinAmount
	rule.MaxAmount = in.MaxAmount
	rule.RequiredApprovers = append([]entity.Role(nil), in.RequiredApprovers...)
	rule.DepartmentID = in.DepartmentID

	if err := s.ruleRepo.Update(ctx, rule); err != nil {
		s.logger.Error("Failed to update approval rule", "error", err, "id", id)
		return nil, err
	}

	return rule, nil
}

// DeleteRule removes a rule from the set
func (s *ruleServiceImpl) DeleteRule(ctx context.Context, id int64) error {
	rule, err := s.ruleRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rule == nil {
		return apperror.NewNotFound("approval rule", id)
	}

	if err := s.ruleRepo.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to delete approval rule", "error", err, "id", id)
		return err
	}

	s.logger.Info("Approval rule deleted", "id", id)
	return nil
}

// GetRule retrieves a rule by ID
func (s *ruleServiceImpl) GetRule(ctx context.Context, id int64) (*entity.ApprovalRule, error) {
	rule, err := s.ruleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, apperror.NewNotFound("approval rule", id)
	}
	return rule, nil
}

// ListRules returns the full rule set
func (s *ruleServiceImpl) ListRules(ctx context.Context) ([]*entity.ApprovalRule, error) {
	return s.ruleRepo.List(ctx)
}

// DetermineApprovers selects every rule matching the amount and department,
// then picks the most specific one: rules scoped to the exact department
// outrank global rules, and among rules of equal department specificity the
// highest minimum amount wins as the tightest lower bound. The winning
// rule's approver order becomes the step sequence.
func (s *ruleServiceImpl) DetermineApprovers(ctx context.Context, amount decimal.Decimal, departmentID int64) ([]entity.Role, error) {
	rules, err := s.ruleRepo.ListForDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}

	var best *entity.ApprovalRule
	for _, rule := range rules {
		if !rule.Matches(amount, departmentID) {
			continue
		}
		if best == nil || moreSpecific(rule, best) {
			best = rule
		}
	}

	if best == nil {
		s.logger.Info("No approval rule matches",
			"amount", amount.String(),
			"department_id", departmentID,
		)
		return nil, nil
	}

	return append([]entity.Role(nil), best.RequiredApprovers...), nil
}

// moreSpecific reports whether candidate outranks current under the
// resolution precedence.
func moreSpecific(candidate, current *entity.ApprovalRule) bool {
	if candidate.IsDepartmentScoped() != current.IsDepartmentScoped() {
		return candidate.IsDepartmentScoped()
	}
	return candidate.MinAmount.GreaterThan(current.MinAmount)
}

func validateRuleInput(in RuleInput) error {
	if in.MinAmount.IsNegative() {
		return apperror.NewValidation("minimum amount must not be negative")
	}
	if in.MaxAmount != nil && !in.MaxAmount.GreaterThan(in.MinAmount) {
		return apperror.NewValidation("maximum amount must be greater than minimum amount")
	}
	if len(in.RequiredApprovers) == 0 {
		return apperror.NewValidation("rule requires at least one approver role")
	}
	for _, role := range in.RequiredApprovers {
		if !role.IsValid() {
			return apperror.NewValidation("unknown approver role %q", role)
		}
	}
	return nil
}
