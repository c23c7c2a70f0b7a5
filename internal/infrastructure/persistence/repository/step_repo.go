package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reqflow/requisition-service/internal/application/port"
	"github.com/reqflow/requisition-service/internal/domain/apperror"
	"github.com/reqflow/requisition-service/internal/domain/entity"
)

// StepRepository implements port.StepRepository
type StepRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStepRepository creates a new step repository
func NewStepRepository(db *sql.DB, logger *zap.Logger) port.StepRepository {
	return &StepRepository{
		db:     db,
		logger: logger,
	}
}

const stepColumns = `
	id, requisition_id, step_number, required_role, assigned_user_id,
	status, comment, resolved_at, created_at
`

// CreateBatch inserts the full ordered step chain of one requisition
func (r *StepRepository) CreateBatch(ctx context.Context, steps []*entity.ApprovalStep) error {
	query := `
		INSERT INTO approval_steps (
			requisition_id, step_number, required_role, assigned_user_id, status
		) VALUES (?, ?, ?, ?, ?)
	`

	exec := getExecutor(ctx, r.db)
	for _, step := range steps {
		result, err := exec.ExecContext(ctx, query,
			step.RequisitionID,
			step.StepNumber,
			step.RequiredRole.String(),
			stringArg(step.AssignedUserID),
			string(step.Status),
		)
		if err != nil {
			r.logger.Error("Failed to create approval step",
				zap.Int64("requisition_id", step.RequisitionID),
				zap.Int("step_number", step.StepNumber),
				zap.Error(err))
			return fmt.Errorf("failed to create approval step %d: %w", step.StepNumber, err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		step.ID = id
		step.CreatedAt = time.Now()
	}
	return nil
}

// GetByID retrieves a step by ID, (nil, nil) when absent
func (r *StepRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalStep, error) {
	query := `SELECT ` + stepColumns + ` FROM approval_steps WHERE id = ?`

	step, err := scanStep(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval step", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval step: %w", err)
	}
	return step, nil
}

// ListByRequisitionID returns all steps of a requisition ordered by step number
func (r *StepRepository) ListByRequisitionID(ctx context.Context, requisitionID int64) ([]*entity.ApprovalStep, error) {
	query := `SELECT ` + stepColumns + `
		FROM approval_steps
		WHERE requisition_id = ?
		ORDER BY step_number ASC
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, requisitionID)
	if err != nil {
		r.logger.Error("Failed to list approval steps", zap.Int64("requisition_id", requisitionID), zap.Error(err))
		return nil, fmt.Errorf("failed to list approval steps: %w", err)
	}
	defer rows.Close()

	return collectSteps(rows)
}

// CountUnresolved returns the number of PENDING steps of a requisition
func (r *StepRepository) CountUnresolved(ctx context.Context, requisitionID int64) (int, error) {
	query := `SELECT COUNT(*) FROM approval_steps WHERE requisition_id = ? AND status = ?`

	var count int
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query, requisitionID, string(entity.StepPending)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unresolved steps: %w", err)
	}
	return count, nil
}

// Resolve flips a step from PENDING to the given resolution as a
// compare-and-swap; a zero affected-row count means another approver won.
func (r *StepRepository) Resolve(ctx context.Context, id int64, newStatus entity.StepStatus, comment *string, resolvedAt time.Time) error {
	query := `
		UPDATE approval_steps
		SET status = ?, comment = ?, resolved_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		string(newStatus), stringArg(comment), resolvedAt, id, string(entity.StepPending),
	)
	if err != nil {
		r.logger.Error("Failed to resolve approval step", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to resolve approval step: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NewConflict("step %d is no longer pending", id)
	}
	return nil
}

// ListStalePending returns PENDING steps created before the cutoff, oldest first
func (r *StepRepository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*entity.ApprovalStep, error) {
	query := `SELECT ` + stepColumns + `
		FROM approval_steps
		WHERE status = ? AND created_at < ?
		ORDER BY created_at ASC
		LIMIT ?
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, string(entity.StepPending), olderThan, limit)
	if err != nil {
		r.logger.Error("Failed to list stale pending steps", zap.Error(err))
		return nil, fmt.Errorf("failed to list stale pending steps: %w", err)
	}
	defer rows.Close()

	return collectSteps(rows)
}

func collectSteps(rows *sql.Rows) ([]*entity.ApprovalStep, error) {
	var steps []*entity.ApprovalStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func scanStep(row rowScanner) (*entity.ApprovalStep, error) {
	var (
		step       entity.ApprovalStep
		roleStr    string
		statusStr  string
		assignee   sql.NullString
		comment    sql.NullString
		resolvedAt sql.NullTime
	)

	err := row.Scan(
		&step.ID,
		&step.RequisitionID,
		&step.StepNumber,
		&roleStr,
		&assignee,
		&statusStr,
		&comment,
		&resolvedAt,
		&step.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	step.RequiredRole = entity.Role(roleStr)
	step.Status = entity.StepStatus(statusStr)
	step.AssignedUserID = nullString(assignee)
	step.Comment = nullString(comment)
	if resolvedAt.Valid {
		step.ResolvedAt = &resolvedAt.Time
	}

	return &step, nil
}

// Verify interface compliance
var _ port.StepRepository = (*StepRepository)(nil)
