package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/reqflow/requisition-service/internal/domain/apperror"
	"github.com/reqflow/requisition-service/internal/domain/entity"
)

func newAuditService(auditRepo *mockAuditRepo) AuditService {
	if auditRepo == nil {
		auditRepo = &mockAuditRepo{}
	}
	return NewAuditService(auditRepo, &mockLogger{})
}

func TestAuditService_RecordChange(t *testing.T) {
	t.Run("serializes snapshots opaquely", func(t *testing.T) {
		auditRepo := &mockAuditRepo{}
		svc := newAuditService(auditRepo)

		entry, err := svc.RecordChange(context.Background(), RecordChangeInput{
			RequisitionID: 42,
			UserID:        "user-1",
			ChangeType:    entity.ChangeFieldUpdated,
			FieldName:     strPtr("title"),
			PreviousValue: "old title",
			NewValue:      map[string]interface{}{"title": "new title"},
			Metadata:      map[string]interface{}{"source": "api"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if entry.PreviousValue == nil || *entry.PreviousValue != `"old title"` {
			t.Errorf("previous value = %v", entry.PreviousValue)
		}
		if entry.NewValue == nil {
			t.Fatal("new value not serialized")
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(*entry.NewValue), &decoded); err != nil {
			t.Fatalf("new value is not valid JSON: %v", err)
		}
		if decoded["title"] != "new title" {
			t.Errorf("decoded new value = %v", decoded)
		}
		if entry.Metadata == nil {
			t.Error("metadata not serialized")
		}
		if entry.Timestamp.IsZero() {
			t.Error("timestamp not stamped")
		}
	})

	t.Run("nil snapshots stay nil", func(t *testing.T) {
		svc := newAuditService(nil)

		entry, err := svc.RecordChange(context.Background(), RecordChangeInput{
			RequisitionID: 42,
			UserID:        "user-1",
			ChangeType:    entity.ChangeCreated,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if entry.PreviousValue != nil || entry.Metadata != nil {
			t.Error("expected nil snapshots to remain nil")
		}
	})

	tests := []struct {
		name  string
		input RecordChangeInput
	}{
		{
			name:  "missing requisition id",
			input: RecordChangeInput{UserID: "user-1", ChangeType: entity.ChangeCreated},
		},
		{
			name:  "missing actor",
			input: RecordChangeInput{RequisitionID: 42, ChangeType: entity.ChangeCreated},
		},
		{
			name:  "unknown change type",
			input: RecordChangeInput{RequisitionID: 42, UserID: "user-1", ChangeType: entity.ChangeType("REWRITTEN")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newAuditService(nil)
			if _, err := svc.RecordChange(context.Background(), tt.input); !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestAuditService_ListByDateRange(t *testing.T) {
	svc := newAuditService(nil)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, -1, 0)

	if _, err := svc.ListByDateRange(context.Background(), from, to, 0, 10); !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("expected validation error for inverted range, got %v", err)
	}
}

func TestAuditService_PaginationClamping(t *testing.T) {
	var gotSkip, gotTake int
	auditRepo := &mockAuditRepo{
		listByReqFunc: func(ctx context.Context, requisitionID int64, skip, take int) ([]*entity.AuditTrailEntry, error) {
			gotSkip, gotTake = skip, take
			return nil, nil
		},
	}
	svc := newAuditService(auditRepo)

	tests := []struct {
		name               string
		skip, take         int
		wantSkip, wantTake int
	}{
		{"negative skip clamps to zero", -5, 10, 0, 10},
		{"zero take gets the default", 0, 0, 0, defaultPageSize},
		{"oversized take is capped", 0, 10000, 0, maxPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ListByRequisition(context.Background(), 42, tt.skip, tt.take); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotSkip != tt.wantSkip || gotTake != tt.wantTake {
				t.Errorf("page = (%d, %d), want (%d, %d)", gotSkip, gotTake, tt.wantSkip, tt.wantTake)
			}
		})
	}
}

func TestAuditService_VerifyImmutability(t *testing.T) {
	t.Run("existing entry verifies", func(t *testing.T) {
		svc := newAuditService(nil)
		if err := svc.VerifyImmutability(context.Background(), 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("missing entry reports not found", func(t *testing.T) {
		auditRepo := &mockAuditRepo{
			getByIDFunc: func(ctx context.Context, id int64) (*entity.AuditTrailEntry, error) {
				return nil, nil
			},
		}
		svc := newAuditService(auditRepo)
		if err := svc.VerifyImmutability(context.Background(), 99); !errors.Is(err, apperror.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}
