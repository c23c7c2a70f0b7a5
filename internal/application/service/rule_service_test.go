package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/reqflow/requisition-service/internal/domain/apperror"
	"github.com/reqflow/requisition-service/internal/domain/entity"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newRuleService(ruleRepo *mockRuleRepo) RuleService {
	if ruleRepo == nil {
		ruleRepo = &mockRuleRepo{}
	}
	return NewRuleService(ruleRepo, &mockLogger{})
}

func TestRuleService_CreateRule_Validation(t *testing.T) {
	tests := []struct {
		name    string
		input   RuleInput
		wantErr bool
	}{
		{
			name: "valid band rule",
			input: RuleInput{
				MinAmount:         dec("0"),
				MaxAmount:         decPtr(dec("100")),
				RequiredApprovers: []entity.Role{entity.RoleManager},
			},
		},
		{
			name: "valid open-ended rule",
			input: RuleInput{
				MinAmount:         dec("1000"),
				RequiredApprovers: []entity.Role{entity.RoleManager, entity.RoleFinance, entity.RoleDirector},
			},
		},
		{
			name: "negative minimum",
			input: RuleInput{
				MinAmount:         dec("-1"),
				RequiredApprovers: []entity.Role{entity.RoleManager},
			},
			wantErr: true,
		},
		{
			name: "maximum not above minimum",
			input: RuleInput{
				MinAmount:         dec("100"),
				MaxAmount:         decPtr(dec("100")),
				RequiredApprovers: []entity.Role{entity.RoleManager},
			},
			wantErr: true,
		},
		{
			name: "no approver roles",
			input: RuleInput{
				MinAmount: dec("0"),
			},
			wantErr: true,
		},
		{
			name: "unknown approver role",
			input: RuleInput{
				MinAmount:         dec("0"),
				RequiredApprovers: []entity.Role{entity.Role("WIZARD")},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newRuleService(nil)

			rule, err := svc.CreateRule(context.Background(), tt.input)
			if tt.wantErr {
				if !errors.Is(err, apperror.ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rule.ID == 0 {
				t.Error("expected rule ID to be assigned")
			}
		})
	}
}

func TestRuleService_DetermineApprovers_Bands(t *testing.T) {
	// Two global band rules: small amounts need one manager, larger ones a
	// manager then finance.
	rules := []*entity.ApprovalRule{
		{
			ID:                1,
			MinAmount:         dec("0"),
			MaxAmount:         decPtr(dec("100")),
			RequiredApprovers: []entity.Role{entity.RoleManager},
		},
		{
			ID:                2,
			MinAmount:         dec("100"),
			MaxAmount:         decPtr(dec("1000")),
			RequiredApprovers: []entity.Role{entity.RoleManager, entity.RoleFinance},
		},
	}
	ruleRepo := &mockRuleRepo{
		listForDepartmentFunc: func(ctx context.Context, departmentID int64) ([]*entity.ApprovalRule, error) {
			return rules, nil
		},
	}
	svc := newRuleService(ruleRepo)

	tests := []struct {
		name   string
		amount string
		want   []entity.Role
	}{
		{"small amount gets single approver", "50", []entity.Role{entity.RoleManager}},
		{"larger amount gets two-step chain", "500", []entity.Role{entity.RoleManager, entity.RoleFinance}},
		{"amount above every band matches nothing", "5000", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.DetermineApprovers(context.Background(), dec(tt.amount), 7)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestRuleService_DetermineApprovers_Specificity(t *testing.T) {
	deptID := int64(7)
	rules := []*entity.ApprovalRule{
		{
			ID:                1,
			MinAmount:         dec("0"),
			RequiredApprovers: []entity.Role{entity.RoleManager},
		},
		{
			ID:                2,
			MinAmount:         dec("0"),
			DepartmentID:      &deptID,
			RequiredApprovers: []entity.Role{entity.RoleManager, entity.RoleDirector},
		},
		{
			ID:                3,
			MinAmount:         dec("500"),
			DepartmentID:      &deptID,
			RequiredApprovers: []entity.Role{entity.RoleManager, entity.RoleDirector, entity.RoleExecutive},
		},
	}
	ruleRepo := &mockRuleRepo{
		listForDepartmentFunc: func(ctx context.Context, departmentID int64) ([]*entity.ApprovalRule, error) {
			return rules, nil
		},
	}
	svc := newRuleService(ruleRepo)

	t.Run("department rule outranks global rule", func(t *testing.T) {
		got, err := svc.DetermineApprovers(context.Background(), dec("100"), deptID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 || got[1] != entity.RoleDirector {
			t.Fatalf("expected department chain, got %v", got)
		}
	})

	t.Run("tightest lower bound wins among department rules", func(t *testing.T) {
		got, err := svc.DetermineApprovers(context.Background(), dec("800"), deptID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 3 || got[2] != entity.RoleExecutive {
			t.Fatalf("expected three-step chain, got %v", got)
		}
	})
}

func TestRuleService_DetermineApprovers_NoMatch(t *testing.T) {
	ruleRepo := &mockRuleRepo{
		listForDepartmentFunc: func(ctx context.Context, departmentID int64) ([]*entity.ApprovalRule, error) {
			return nil, nil
		},
	}
	svc := newRuleService(ruleRepo)

	got, err := svc.DetermineApprovers(context.Background(), dec("123.45"), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no approvers, got %v", got)
	}
}

func TestRuleService_UpdateRule_NotFound(t *testing.T) {
	ruleRepo := &mockRuleRepo{
		getByIDFunc: func(ctx context.Context, id int64) (*entity.ApprovalRule, error) {
			return nil, nil
		},
	}
	svc := newRuleService(ruleRepo)

	_, err := svc.UpdateRule(context.Background(), 99, RuleInput{
		MinAmount:         dec("0"),
		RequiredApprovers: []entity.Role{entity.RoleManager},
	})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRuleService_DeleteRule(t *testing.T) {
	t.Run("deletes an existing rule", func(t *testing.T) {
		deleted := false
		ruleRepo := &mockRuleRepo{
			deleteFunc: func(ctx context.Context, id int64) error {
				deleted = true
				return nil
			},
		}
		svc := newRuleService(ruleRepo)

		if err := svc.DeleteRule(context.Background(), 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !deleted {
			t.Error("expected delete to reach the repository")
		}
	})

	t.Run("missing rule reports not found", func(t *testing.T) {
		ruleRepo := &mockRuleRepo{
			getByIDFunc: func(ctx context.Context, id int64) (*entity.ApprovalRule, error) {
				return nil, nil
			},
		}
		svc := newRuleService(ruleRepo)

		if err := svc.DeleteRule(context.Background(), 99); !errors.Is(err, apperror.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}
