// Package workflow coordinates the requisition lifecycle, the approval rule
// resolver and the step orchestrator into single atomic operations, and
// emits lifecycle events once those operations have committed.
package workflow

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/reqflow/requisition-service/internal/application/dispatcher"
	"github.com/reqflow/requisition-service/internal/application/port"
	"github.com/reqflow/requisition-service/internal/application/service"
	"github.com/reqflow/requisition-service/internal/domain/apperror"
	"github.com/reqflow/requisition-service/internal/domain/entity"
	"github.com/reqflow/requisition-service/internal/domain/event"
)

// SubmitResult is the outcome of a successful submission
type SubmitResult struct {
	Requisition *entity.Requisition    `json:"requisition"`
	Steps       []*entity.ApprovalStep `json:"steps"`
}

// StepResult is the outcome of resolving one approval step
type StepResult struct {
	Step        *entity.ApprovalStep `json:"step"`
	Requisition *entity.Requisition  `json:"requisition"`
	// NextStep is the now-actionable step, nil when the chain is complete
	// or halted.
	NextStep *entity.ApprovalStep `json:"next_step,omitempty"`
}

// Engine is the write surface of the approval workflow. Each operation runs
// its state changes in one transaction; events are dispatched only after
// that transaction has committed, so a consumer never observes an event for
// a state that rolled back.
type Engine interface {
	// Submit validates a draft, resolves its approver chain, creates the
	// steps and moves the requisition through SUBMITTED into UNDER_REVIEW
	// atomically. When no approval rule matches, the submission fails and
	// the requisition stays in DRAFT.
	Submit(ctx context.Context, requisitionID int64, actorID string) (*SubmitResult, error)

	// ApproveStep resolves the current step; when it was the last one, the
	// requisition itself becomes APPROVED in the same transaction. The
	// approved cost override only applies to the final step and defaults
	// to the estimated cost when nil.
	ApproveStep(ctx context.Context, stepID int64, actorID string, comment *string, approvedCost *decimal.Decimal) (*StepResult, error)

	// RejectStep resolves the current step as rejected and moves the
	// requisition to REJECTED in the same transaction.
	RejectStep(ctx context.Context, stepID int64, actorID string, comment string) (*StepResult, error)

	// RecordPayment records payment details against an approved requisition
	RecordPayment(ctx context.Context, requisitionID int64, in service.RecordPaymentInput, actorID string) (*entity.Requisition, error)

	// Close moves a paid requisition to its terminal CLOSED status
	Close(ctx context.Context, requisitionID int64, actorID string) (*entity.Requisition, error)
}

type engineImpl struct {
	requisitionSvc service.RequisitionService
	stepSvc        service.StepService
	ruleSvc        service.RuleService
	txManager      port.TransactionManager
	dispatcher     dispatcher.Dispatcher
	logger         service.Logger
}

// NewEngine creates a new workflow engine
func NewEngine(
	requisitionSvc service.RequisitionService,
	stepSvc service.StepService,
	ruleSvc service.RuleService,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	logger service.Logger,
) Engine {
	return &engineImpl{
		requisitionSvc: requisitionSvc,
		stepSvc:        stepSvc,
		ruleSvc:        ruleSvc,
		txManager:      txManager,
		dispatcher:     d,
		logger:         logger,
	}
}

// emit dispatches a post-commit event. The request context may already be
// cancelled once the response is written, so handlers get a detached one.
func (e *engineImpl) emit(ctx context.Context, evt *event.Event) {
	e.dispatcher.DispatchAsync(context.WithoutCancel(ctx), evt)
}

func (e *engineImpl) Submit(ctx context.Context, requisitionID int64, actorID string) (*SubmitResult, error) {
	req, err := e.requisitionSvc.Get(ctx, requisitionID)
	if err != nil {
		return nil, err
	}

	// Resolve the chain before touching the status so a rule gap leaves
	// the requisition editable in DRAFT.
	roles, err := e.ruleSvc.DetermineApprovers(ctx, req.EstimatedCost, req.DepartmentID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, apperror.NewBusinessRule(
			"no approval rule matches amount %s for department %d",
			req.EstimatedCost.String(), req.DepartmentID,
		)
	}

	var result SubmitResult
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		submitted, err := e.requisitionSvc.Submit(txCtx, requisitionID, actorID)
		if err != nil {
			return err
		}

		steps, err := e.stepSvc.CreateSteps(txCtx, requisitionID, roles)
		if err != nil {
			return err
		}

		if err := e.requisitionSvc.TransitionToUnderReview(txCtx, requisitionID, actorID); err != nil {
			return err
		}

		result = SubmitResult{Requisition: submitted, Steps: steps}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, event.New(event.TypeSubmitted, requisitionID, map[string]interface{}{
		event.KeySubmitterID: result.Requisition.SubmitterID,
		event.KeyNextRole:    roles[0].String(),
		event.KeyStepNumber:  1,
	}))

	e.logger.Info("Requisition entered review",
		"requisition_id", requisitionID,
		"steps", len(result.Steps),
		"actor", actorID,
	)
	return &result, nil
}

func (e *engineImpl) ApproveStep(ctx context.Context, stepID int64, actorID string, comment *string, approvedCost *decimal.Decimal) (*StepResult, error) {
	var (
		result        StepResult
		chainComplete bool
	)

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		step, err := e.stepSvc.ApproveStep(txCtx, stepID, actorID, comment)
		if err != nil {
			return err
		}
		result.Step = step

		done, err := e.stepSvc.AllStepsApproved(txCtx, step.RequisitionID)
		if err != nil {
			return err
		}
		chainComplete = done

		if done {
			req, err := e.requisitionSvc.Approve(txCtx, step.RequisitionID, approvedCost, actorID)
			if err != nil {
				return err
			}
			result.Requisition = req
			return nil
		}

		if approvedCost != nil {
			return apperror.NewBusinessRule("approved cost can only be set on the final approval step")
		}

		next, err := e.stepSvc.GetNextPendingStep(txCtx, step.RequisitionID)
		if err != nil {
			return err
		}
		result.NextStep = next

		req, err := e.requisitionSvc.Get(txCtx, step.RequisitionID)
		if err != nil {
			return err
		}
		result.Requisition = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Every approval emits an approved event carrying the submitter and,
	// for intermediate steps, the next approver in the chain.
	payload := map[string]interface{}{
		event.KeySubmitterID: result.Requisition.SubmitterID,
		event.KeyStepNumber:  result.Step.StepNumber,
	}
	if !chainComplete && result.NextStep != nil {
		payload[event.KeyNextRole] = result.NextStep.RequiredRole.String()
		if result.NextStep.AssignedUserID != nil {
			payload[event.KeyNextAssignee] = *result.NextStep.AssignedUserID
		}
	}
	e.emit(ctx, event.New(event.TypeApproved, result.Step.RequisitionID, payload))

	return &result, nil
}

func (e *engineImpl) RejectStep(ctx context.Context, stepID int64, actorID string, comment string) (*StepResult, error) {
	var result StepResult

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		step, err := e.stepSvc.RejectStep(txCtx, stepID, actorID, comment)
		if err != nil {
			return err
		}
		result.Step = step

		if err := e.requisitionSvc.Reject(txCtx, step.RequisitionID, actorID); err != nil {
			return err
		}

		req, err := e.requisitionSvc.Get(txCtx, step.RequisitionID)
		if err != nil {
			return err
		}
		result.Requisition = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, event.New(event.TypeRejected, result.Step.RequisitionID, map[string]interface{}{
		event.KeySubmitterID: result.Requisition.SubmitterID,
		event.KeyReason:      comment,
		event.KeyStepNumber:  result.Step.StepNumber,
	}))

	return &result, nil
}

func (e *engineImpl) RecordPayment(ctx context.Context, requisitionID int64, in service.RecordPaymentInput, actorID string) (*entity.Requisition, error) {
	req, err := e.requisitionSvc.RecordPayment(ctx, requisitionID, in, actorID)
	if err != nil {
		return nil, err
	}

	e.emit(ctx, event.New(event.TypePaid, requisitionID, map[string]interface{}{
		event.KeySubmitterID: req.SubmitterID,
		event.KeyAmountPaid:  in.AmountPaid.String(),
	}))

	return req, nil
}

func (e *engineImpl) Close(ctx context.Context, requisitionID int64, actorID string) (*entity.Requisition, error) {
	return e.requisitionSvc.Close(ctx, requisitionID, actorID)
}
