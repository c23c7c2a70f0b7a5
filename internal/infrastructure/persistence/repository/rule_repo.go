package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/reqflow/requisition-service/internal/application/port"
	"github.com/reqflow/requisition-service/internal/domain/apperror"
	"github.com/reqflow/requisition-service/internal/domain/entity"
)

// RuleRepository implements port.RuleRepository
type RuleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *sql.DB, logger *zap.Logger) port.RuleRepository {
	return &RuleRepository{
		db:     db,
		logger: logger,
	}
}

const ruleColumns = `
	id, min_amount, max_amount, required_approvers, department_id,
	created_at, updated_at
`

// Create inserts a new approval rule
func (r *RuleRepository) Create(ctx context.Context, rule *entity.ApprovalRule) error {
	approvers, err := json.Marshal(rule.RequiredApprovers)
	if err != nil {
		return fmt.Errorf("failed to encode required approvers: %w", err)
	}

	query := `
		INSERT INTO approval_rules (min_amount, max_amount, required_approvers, department_id)
		VALUES (?, ?, ?, ?)
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		rule.MinAmount.String(),
		decimalArg(rule.MaxAmount),
		string(approvers),
		nullInt64(rule.DepartmentID),
	)
	if err != nil {
		r.logger.Error("Failed to create approval rule", zap.Error(err))
		return fmt.Errorf("failed to create approval rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rule.ID = id
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	return nil
}

// GetByID retrieves a rule by ID, (nil, nil) when absent
func (r *RuleRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM approval_rules WHERE id = ?`

	rule, err := scanRule(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval rule", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval rule: %w", err)
	}
	return rule, nil
}

// Update replaces the stored rule definition
func (r *RuleRepository) Update(ctx context.Context, rule *entity.ApprovalRule) error {
	approvers, err := json.Marshal(rule.RequiredApprovers)
	if err != nil {
		return fmt.Errorf("failed to encode required approvers: %w", err)
	}

	query := `
		UPDATE approval_rules
		SET min_amount = ?, max_amount = ?, required_approvers = ?,
		    department_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		rule.MinAmount.String(),
		decimalArg(rule.MaxAmount),
		string(approvers),
		nullInt64(rule.DepartmentID),
		rule.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update approval rule", zap.Int64("id", rule.ID), zap.Error(err))
		return fmt.Errorf("failed to update approval rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NewNotFound("approval rule", rule.ID)
	}
	return nil
}

// Delete removes a rule. Existing requisitions keep the step chains the
// rule produced; deletion only affects future submissions.
func (r *RuleRepository) Delete(ctx context.Context, id int64) error {
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM approval_rules WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete approval rule", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete approval rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NewNotFound("approval rule", id)
	}
	return nil
}

// List returns all rules
func (r *RuleRepository) List(ctx context.Context) ([]*entity.ApprovalRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM approval_rules ORDER BY id ASC`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list approval rules", zap.Error(err))
		return nil, fmt.Errorf("failed to list approval rules: %w", err)
	}
	defer rows.Close()

	return collectRules(rows)
}

// ListForDepartment returns department-scoped rules plus all global rules
func (r *RuleRepository) ListForDepartment(ctx context.Context, departmentID int64) ([]*entity.ApprovalRule, error) {
	query := `SELECT ` + ruleColumns + `
		FROM approval_rules
		WHERE department_id = ? OR department_id IS NULL
		ORDER BY id ASC
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, departmentID)
	if err != nil {
		r.logger.Error("Failed to list approval rules for department",
			zap.Int64("department_id", departmentID), zap.Error(err))
		return nil, fmt.Errorf("failed to list approval rules for department: %w", err)
	}
	defer rows.Close()

	return collectRules(rows)
}

func collectRules(rows *sql.Rows) ([]*entity.ApprovalRule, error) {
	var rules []*entity.ApprovalRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanRule(row rowScanner) (*entity.ApprovalRule, error) {
	var (
		rule         entity.ApprovalRule
		minAmount    string
		maxAmount    sql.NullString
		approvers    string
		departmentID sql.NullInt64
	)

	err := row.Scan(
		&rule.ID,
		&minAmount,
		&maxAmount,
		&approvers,
		&departmentID,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.MinAmount, err = decimal.NewFromString(minAmount)
	if err != nil {
		return nil, fmt.Errorf("corrupt min_amount for rule %d: %w", rule.ID, err)
	}
	if maxAmount.Valid {
		max, err := decimal.NewFromString(maxAmount.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt max_amount for rule %d: %w", rule.ID, err)
		}
		rule.MaxAmount = &max
	}
	if err := json.Unmarshal([]byte(approvers), &rule.RequiredApprovers); err != nil {
		return nil, fmt.Errorf("corrupt required_approvers for rule %d: %w", rule.ID, err)
	}
	if departmentID.Valid {
		rule.DepartmentID = &departmentID.Int64
	}

	return &rule, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// Verify interface compliance
var _ port.RuleRepository = (*RuleRepository)(nil)
