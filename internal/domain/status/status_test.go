package status

import (
	"errors"
	"testing"

	"github.com/reqflow/requisition-service/internal/domain/apperror"
)

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		expected bool
	}{
		{StatusDraft, false},
		{StatusSubmitted, false},
		{StatusUnderReview, false},
		{StatusApproved, false},
		{StatusPaid, false},
		{StatusRejected, true},
		{StatusClosed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.expected {
				t.Errorf("Status.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStatus_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		expected bool
	}{
		{"valid status", StatusDraft, true},
		{"valid status", StatusClosed, true},
		{"invalid status", Status("CANCELLED"), false},
		{"empty status", Status(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsValid(); got != tt.expected {
				t.Errorf("Status.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     Status
		to       Status
		expected bool
	}{
		{"draft to submitted", StatusDraft, StatusSubmitted, true},
		{"submitted to under review", StatusSubmitted, StatusUnderReview, true},
		{"under review to approved", StatusUnderReview, StatusApproved, true},
		{"under review to rejected", StatusUnderReview, StatusRejected, true},
		{"approved to paid", StatusApproved, StatusPaid, true},
		{"paid to closed", StatusPaid, StatusClosed, true},
		{"draft to approved skips review", StatusDraft, StatusApproved, false},
		{"submitted to draft", StatusSubmitted, StatusDraft, false},
		{"double submit", StatusSubmitted, StatusSubmitted, false},
		{"approved to rejected", StatusApproved, StatusRejected, false},
		{"rejected is terminal", StatusRejected, StatusSubmitted, false},
		{"closed is terminal", StatusClosed, StatusPaid, false},
		{"unknown from status", Status("CANCELLED"), StatusDraft, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.expected {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.expected)
			}
		})
	}
}

func TestAllowedNext(t *testing.T) {
	tests := []struct {
		from     Status
		expected []Status
	}{
		{StatusDraft, []Status{StatusSubmitted}},
		{StatusUnderReview, []Status{StatusApproved, StatusRejected}},
		{StatusRejected, []Status{}},
		{StatusClosed, []Status{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			got := AllowedNext(tt.from)
			if len(got) != len(tt.expected) {
				t.Fatalf("AllowedNext(%s) = %v, want %v", tt.from, got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("AllowedNext(%s)[%d] = %v, want %v", tt.from, i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestValidateTransition(t *testing.T) {
	if err := ValidateTransition(StatusDraft, StatusSubmitted); err != nil {
		t.Errorf("ValidateTransition(DRAFT, SUBMITTED) = %v, want nil", err)
	}

	err := ValidateTransition(StatusClosed, StatusDraft)
	if err == nil {
		t.Fatal("ValidateTransition(CLOSED, DRAFT) = nil, want error")
	}
	if !errors.Is(err, apperror.ErrInvalidTransition) {
		t.Errorf("error = %v, want wrapped ErrInvalidTransition", err)
	}
}

// Every terminal status must reject every possible transition attempt.
func TestTerminalStatusesRejectAllTransitions(t *testing.T) {
	all := []Status{
		StatusDraft, StatusSubmitted, StatusUnderReview,
		StatusApproved, StatusRejected, StatusPaid, StatusClosed,
	}

	for _, terminal := range []Status{StatusRejected, StatusClosed} {
		for _, to := range all {
			if CanTransition(terminal, to) {
				t.Errorf("terminal status %s permits transition to %s", terminal, to)
			}
		}
	}
}
