package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/reqflow/requisition-service/internal/application/port"
	"github.com/reqflow/requisition-service/internal/domain/apperror"
	"github.com/reqflow/requisition-service/internal/domain/entity"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// RecordChangeInput carries the facts of one mutation. PreviousValue,
// NewValue and Metadata are serialized opaquely; the ledger never interprets
// them.
type RecordChangeInput struct {
	RequisitionID int64
	UserID        string
	ChangeType    entity.ChangeType
	FieldName     *string
	PreviousValue interface{}
	NewValue      interface{}
	Metadata      map[string]interface{}
}

// AuditService is the query and append surface of the audit ledger. The
// ledger itself is write-once; immutability is enforced by the storage
// layer, VerifyImmutability is only a sanity check on top of it.
type AuditService interface {
	RecordChange(ctx context.Context, in RecordChangeInput) (*entity.AuditTrailEntry, error)
	GetEntry(ctx context.Context, id int64) (*entity.AuditTrailEntry, error)
	ListByRequisition(ctx context.Context, requisitionID int64, skip, take int) ([]*entity.AuditTrailEntry, error)
	ListByUser(ctx context.Context, userID string, skip, take int) ([]*entity.AuditTrailEntry, error)
	ListByChangeType(ctx context.Context, changeType entity.ChangeType, skip, take int) ([]*entity.AuditTrailEntry, error)
	ListByDateRange(ctx context.Context, from, to time.Time, skip, take int) ([]*entity.AuditTrailEntry, error)
	VerifyImmutability(ctx context.Context, entryID int64) error
}

type auditServiceImpl struct {
	auditRepo port.AuditRepository
	logger    Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(auditRepo port.AuditRepository, logger Logger) AuditService {
	return &auditServiceImpl{
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// RecordChange appends one entry to the ledger
func (s *auditServiceImpl) RecordChange(ctx context.Context, in RecordChangeInput) (*entity.AuditTrailEntry, error) {
	if in.RequisitionID <= 0 {
		return nil, apperror.NewValidation("audit entry requires a requisition id")
	}
	if in.UserID == "" {
		return nil, apperror.NewValidation("audit entry requires an actor user id")
	}
	if !in.ChangeType.IsValid() {
		return nil, apperror.NewValidation("unknown change type %q", in.ChangeType)
	}

	entry := &entity.AuditTrailEntry{
		RequisitionID: in.RequisitionID,
		UserID:        in.UserID,
		ChangeType:    in.ChangeType,
		FieldName:     in.FieldName,
		PreviousValue: marshalOpaque(in.PreviousValue),
		NewValue:      marshalOpaque(in.NewValue),
		Metadata:      marshalMetadata(in.Metadata),
		Timestamp:     time.Now(),
	}

	if err := s.auditRepo.Append(ctx, entry); err != nil {
		s.logger.Error("Failed to append audit entry",
			"error", err,
			"requisition_id", in.RequisitionID,
			"change_type", in.ChangeType,
		)
		return nil, err
	}

	return entry, nil
}

// GetEntry retrieves a single ledger entry
func (s *auditServiceImpl) GetEntry(ctx context.Context, id int64) (*entity.AuditTrailEntry, error) {
	entry, err := s.auditRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, apperror.NewNotFound("audit entry", id)
	}
	return entry, nil
}

// ListByRequisition returns entries for one requisition, chronological ascending
func (s *auditServiceImpl) ListByRequisition(ctx context.Context, requisitionID int64, skip, take int) ([]*entity.AuditTrailEntry, error) {
	skip, take = clampPage(skip, take)
	return s.auditRepo.ListByRequisition(ctx, requisitionID, skip, take)
}

// ListByUser returns entries written by one actor
func (s *auditServiceImpl) ListByUser(ctx context.Context, userID string, skip, take int) ([]*entity.AuditTrailEntry, error) {
	skip, take = clampPage(skip, take)
	return s.auditRepo.ListByUser(ctx, userID, skip, take)
}

// ListByChangeType returns entries of one change type
func (s *auditServiceImpl) ListByChangeType(ctx context.Context, changeType entity.ChangeType, skip, take int) ([]*entity.AuditTrailEntry, error) {
	if !changeType.IsValid() {
		return nil, apperror.NewValidation("unknown change type %q", changeType)
	}
	skip, take = clampPage(skip, take)
	return s.auditRepo.ListByChangeType(ctx, changeType, skip, take)
}

// ListByDateRange returns entries whose timestamp falls within [from, to]
func (s *auditServiceImpl) ListByDateRange(ctx context.Context, from, to time.Time, skip, take int) ([]*entity.AuditTrailEntry, error) {
	if to.Before(from) {
		return nil, apperror.NewValidation("date range end precedes start")
	}
	skip, take = clampPage(skip, take)
	return s.auditRepo.ListByDateRange(ctx, from, to, skip, take)
}

// VerifyImmutability checks that the entry still exists. Actual write-once
// enforcement lives in the storage layer, which rejects UPDATE and DELETE
// against the ledger outright.
func (s *auditServiceImpl) VerifyImmutability(ctx context.Context, entryID int64) error {
	entry, err := s.auditRepo.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return apperror.NewNotFound("audit entry", entryID)
	}
	return nil
}

func clampPage(skip, take int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if take <= 0 {
		take = defaultPageSize
	}
	if take > maxPageSize {
		take = maxPageSize
	}
	return skip, take
}

// marshalOpaque serializes a snapshot value to its stored JSON form. A nil
// value stays nil rather than becoming the string "null".
func marshalOpaque(v interface{}) *string {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		s := "unserializable value"
		return &s
	}
	s := string(b)
	return &s
}

func marshalMetadata(m map[string]interface{}) *string {
	if len(m) == 0 {
		return nil
	}
	return marshalOpaque(m)
}
