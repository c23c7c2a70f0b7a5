package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/reqflow/requisition-service/internal/application/port"
	"github.com/reqflow/requisition-service/internal/domain/apperror"
	"github.com/reqflow/requisition-service/internal/domain/entity"
	"github.com/reqflow/requisition-service/internal/domain/status"
)

// RequisitionRepository implements port.RequisitionRepository
type RequisitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequisitionRepository creates a new requisition repository
func NewRequisitionRepository(db *sql.DB, logger *zap.Logger) port.RequisitionRepository {
	return &RequisitionRepository{
		db:     db,
		logger: logger,
	}
}

const requisitionColumns = `
	id, title, category, description, estimated_cost, currency, urgency,
	justification, status, submitter_id, department_id, approved_cost,
	actual_cost_paid, payment_method, payment_reference, payment_date,
	payment_comment, closed_at, created_at, updated_at
`

// Create inserts a new requisition
func (r *RequisitionRepository) Create(ctx context.Context, req *entity.Requisition) error {
	query := `
		INSERT INTO requisitions (
			title, category, description, estimated_cost, currency, urgency,
			justification, status, submitter_id, department_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		req.Title,
		req.Category,
		req.Description,
		req.EstimatedCost.String(),
		req.Currency,
		string(req.Urgency),
		req.Justification,
		req.Status.String(),
		req.SubmitterID,
		req.DepartmentID,
	)
	if err != nil {
		r.logger.Error("Failed to create requisition", zap.Error(err))
		return fmt.Errorf("failed to create requisition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	req.ID = id
	now := time.Now()
	req.CreatedAt = now
	req.UpdatedAt = now
	return nil
}

// GetByID retrieves a requisition by ID, (nil, nil) when absent
func (r *RequisitionRepository) GetByID(ctx context.Context, id int64) (*entity.Requisition, error) {
	query := `SELECT ` + requisitionColumns + ` FROM requisitions WHERE id = ?`

	req, err := scanRequisition(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get requisition", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get requisition: %w", err)
	}
	return req, nil
}

// UpdateFields persists the editable fields of a draft
func (r *RequisitionRepository) UpdateFields(ctx context.Context, req *entity.Requisition) error {
	query := `
		UPDATE requisitions SET
			title = ?, category = ?, description = ?, estimated_cost = ?,
			currency = ?, urgency = ?, justification = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		req.Title,
		req.Category,
		req.Description,
		req.EstimatedCost.String(),
		req.Currency,
		string(req.Urgency),
		req.Justification,
		req.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update requisition fields", zap.Int64("id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to update requisition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NewNotFound("requisition", req.ID)
	}
	return nil
}

// UpdateStatus flips the status as a compare-and-swap on the current value
func (r *RequisitionRepository) UpdateStatus(ctx context.Context, id int64, from, to status.Status) error {
	query := `
		UPDATE requisitions
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`
	return r.execCAS(ctx, query, id, from, to.String(), id, from.String())
}

// SetApproved flips the status and records the approved cost in one write
func (r *RequisitionRepository) SetApproved(ctx context.Context, id int64, from, to status.Status, approvedCost decimal.Decimal) error {
	query := `
		UPDATE requisitions
		SET status = ?, approved_cost = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`
	return r.execCAS(ctx, query, id, from, to.String(), approvedCost.String(), id, from.String())
}

// SetPayment flips the status and records payment details in one write
func (r *RequisitionRepository) SetPayment(ctx context.Context, id int64, from, to status.Status, payment entity.PaymentDetails) error {
	query := `
		UPDATE requisitions
		SET status = ?, actual_cost_paid = ?, payment_method = ?,
			payment_reference = ?, payment_date = ?, payment_comment = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`
	var comment sql.NullString
	if payment.Comment != nil {
		comment = sql.NullString{String: *payment.Comment, Valid: true}
	}
	return r.execCAS(ctx, query, id, from,
		to.String(),
		payment.AmountPaid.String(),
		payment.Method,
		payment.Reference,
		payment.Date,
		comment,
		id,
		from.String(),
	)
}

// SetClosed flips the status and stamps the closed timestamp in one write
func (r *RequisitionRepository) SetClosed(ctx context.Context, id int64, from, to status.Status, closedAt time.Time) error {
	query := `
		UPDATE requisitions
		SET status = ?, closed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`
	return r.execCAS(ctx, query, id, from, to.String(), closedAt, id, from.String())
}

// List retrieves requisitions with pagination, newest first
func (r *RequisitionRepository) List(ctx context.Context, limit, offset int) ([]*entity.Requisition, error) {
	query := `SELECT ` + requisitionColumns + `
		FROM requisitions
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list requisitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list requisitions: %w", err)
	}
	defer rows.Close()

	var reqs []*entity.Requisition
	for rows.Next() {
		req, err := scanRequisition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan requisition: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// execCAS runs a guarded status update and translates a zero affected-row
// count into a Conflict: someone else changed the status first.
func (r *RequisitionRepository) execCAS(ctx context.Context, query string, id int64, from status.Status, args ...interface{}) error {
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update requisition status", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update requisition status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NewConflict("requisition %d is no longer %s", id, from)
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequisition(row rowScanner) (*entity.Requisition, error) {
	var (
		req              entity.Requisition
		estimatedCost    string
		statusStr        string
		urgencyStr       string
		approvedCost     sql.NullString
		actualCostPaid   sql.NullString
		paymentMethod    sql.NullString
		paymentReference sql.NullString
		paymentDate      sql.NullTime
		paymentComment   sql.NullString
		closedAt         sql.NullTime
	)

	err := row.Scan(
		&req.ID,
		&req.Title,
		&req.Category,
		&req.Description,
		&estimatedCost,
		&req.Currency,
		&urgencyStr,
		&req.Justification,
		&statusStr,
		&req.SubmitterID,
		&req.DepartmentID,
		&approvedCost,
		&actualCostPaid,
		&paymentMethod,
		&paymentReference,
		&paymentDate,
		&paymentComment,
		&closedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Status = status.Status(statusStr)
	req.Urgency = entity.Urgency(urgencyStr)

	if req.EstimatedCost, err = decimal.NewFromString(estimatedCost); err != nil {
		return nil, fmt.Errorf("corrupt estimated_cost for requisition %d: %w", req.ID, err)
	}
	if req.ApprovedCost, err = nullDecimal(approvedCost); err != nil {
		return nil, fmt.Errorf("corrupt approved_cost for requisition %d: %w", req.ID, err)
	}
	if req.ActualCostPaid, err = nullDecimal(actualCostPaid); err != nil {
		return nil, fmt.Errorf("corrupt actual_cost_paid for requisition %d: %w", req.ID, err)
	}

	req.PaymentMethod = nullString(paymentMethod)
	req.PaymentReference = nullString(paymentReference)
	req.PaymentComment = nullString(paymentComment)
	if paymentDate.Valid {
		req.PaymentDate = &paymentDate.Time
	}
	if closedAt.Valid {
		req.ClosedAt = &closedAt.Time
	}

	return &req, nil
}

func nullDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Verify interface compliance
var _ port.RequisitionRepository = (*RequisitionRepository)(nil)
