package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reqflow/requisition-service/internal/application/port"
	"github.com/reqflow/requisition-service/internal/domain/entity"
)

// AuditRepository implements port.AuditRepository. Entries are append-only;
// the schema carries triggers that abort any UPDATE or DELETE against the
// audit_trail table, so the absence of mutation methods here is enforced
// one layer down as well.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

const auditColumns = `
	id, requisition_id, user_id, change_type, field_name,
	previous_value, new_value, metadata, timestamp
`

// Append writes one immutable entry to the ledger
func (r *AuditRepository) Append(ctx context.Context, e *entity.AuditTrailEntry) error {
	query := `
		INSERT INTO audit_trail (
			requisition_id, user_id, change_type, field_name,
			previous_value, new_value, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		e.RequisitionID,
		e.UserID,
		string(e.ChangeType),
		stringArg(e.FieldName),
		stringArg(e.PreviousValue),
		stringArg(e.NewValue),
		stringArg(e.Metadata),
	)
	if err != nil {
		r.logger.Error("Failed to append audit entry",
			zap.Int64("requisition_id", e.RequisitionID),
			zap.String("change_type", string(e.ChangeType)),
			zap.Error(err))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.ID = id
	e.Timestamp = time.Now()
	return nil
}

// GetByID retrieves an entry by ID, (nil, nil) when absent
func (r *AuditRepository) GetByID(ctx context.Context, id int64) (*entity.AuditTrailEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_trail WHERE id = ?`

	e, err := scanAuditEntry(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get audit entry", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}
	return e, nil
}

// ListByRequisition returns entries for one requisition, oldest first
func (r *AuditRepository) ListByRequisition(ctx context.Context, requisitionID int64, skip, take int) ([]*entity.AuditTrailEntry, error) {
	query := `SELECT ` + auditColumns + `
		FROM audit_trail
		WHERE requisition_id = ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ? OFFSET ?
	`
	return r.query(ctx, query, requisitionID, take, skip)
}

// ListByUser returns entries recorded by one user, oldest first
func (r *AuditRepository) ListByUser(ctx context.Context, userID string, skip, take int) ([]*entity.AuditTrailEntry, error) {
	query := `SELECT ` + auditColumns + `
		FROM audit_trail
		WHERE user_id = ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ? OFFSET ?
	`
	return r.query(ctx, query, userID, take, skip)
}

// ListByChangeType returns entries of one change type, oldest first
func (r *AuditRepository) ListByChangeType(ctx context.Context, changeType entity.ChangeType, skip, take int) ([]*entity.AuditTrailEntry, error) {
	query := `SELECT ` + auditColumns + `
		FROM audit_trail
		WHERE change_type = ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ? OFFSET ?
	`
	return r.query(ctx, query, string(changeType), take, skip)
}

// ListByDateRange returns entries within [from, to], oldest first
func (r *AuditRepository) ListByDateRange(ctx context.Context, from, to time.Time, skip, take int) ([]*entity.AuditTrailEntry, error) {
	query := `SELECT ` + auditColumns + `
		FROM audit_trail
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ? OFFSET ?
	`
	return r.query(ctx, query, from, to, take, skip)
}

func (r *AuditRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.AuditTrailEntry, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list audit entries", zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.AuditTrailEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanAuditEntry(row rowScanner) (*entity.AuditTrailEntry, error) {
	var (
		e             entity.AuditTrailEntry
		changeType    string
		fieldName     sql.NullString
		previousValue sql.NullString
		newValue      sql.NullString
		metadata      sql.NullString
	)

	err := row.Scan(
		&e.ID,
		&e.RequisitionID,
		&e.UserID,
		&changeType,
		&fieldName,
		&previousValue,
		&newValue,
		&metadata,
		&e.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	e.ChangeType = entity.ChangeType(changeType)
	e.FieldName = nullString(fieldName)
	e.PreviousValue = nullString(previousValue)
	e.NewValue = nullString(newValue)
	e.Metadata = nullString(metadata)

	return &e, nil
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
