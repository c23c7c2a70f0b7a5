package entity

import "time"

// ChangeType enumerates the kinds of mutations recorded in the audit trail.
// The string values are part of the storage contract consumed by external
// reporting tools and must not change.
type ChangeType string

const (
	ChangeCreated              ChangeType = "CREATED"
	ChangeFieldUpdated         ChangeType = "FIELD_UPDATED"
	ChangeStatusChanged        ChangeType = "STATUS_CHANGED"
	ChangeApproved             ChangeType = "APPROVED"
	ChangeRejected             ChangeType = "REJECTED"
	ChangePaymentRecorded      ChangeType = "PAYMENT_RECORDED"
	ChangeAttachmentUploaded   ChangeType = "ATTACHMENT_UPLOADED"
	ChangeAttachmentDownloaded ChangeType = "ATTACHMENT_DOWNLOADED"
	ChangeNotificationSent     ChangeType = "NOTIFICATION_SENT"
)

var validChangeTypes = map[ChangeType]bool{
	ChangeCreated:              true,
	ChangeFieldUpdated:         true,
	ChangeStatusChanged:        true,
	ChangeApproved:             true,
	ChangeRejected:             true,
	ChangePaymentRecorded:      true,
	ChangeAttachmentUploaded:   true,
	ChangeAttachmentDownloaded: true,
	ChangeNotificationSent:     true,
}

// IsValid returns true if the change type is one of the enumerated values
func (c ChangeType) IsValid() bool {
	return validChangeTypes[c]
}

// AuditTrailEntry is one immutable fact about a single mutation of a
// requisition. PreviousValue, NewValue and Metadata are opaque serialized
// snapshots; the ledger stores them without interpreting their shape so that
// change-type-specific payloads can evolve without migration.
//
// Entries are write-once. The storage layer rejects UPDATE and DELETE
// against them outright; this is the compliance record, not a cache.
type AuditTrailEntry struct {
	ID            int64      `json:"id"`
	RequisitionID int64      `json:"requisition_id"`
	UserID        string     `json:"user_id"`
	ChangeType    ChangeType `json:"change_type"`
	FieldName     *string    `json:"field_name,omitempty"`
	PreviousValue *string    `json:"previous_value,omitempty"`
	NewValue      *string    `json:"new_value,omitempty"`
	Metadata      *string    `json:"metadata,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}
