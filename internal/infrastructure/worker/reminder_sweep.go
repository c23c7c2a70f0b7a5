package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/reqflow/requisition-service/internal/application/dispatcher"
	"github.com/reqflow/requisition-service/internal/application/port"
	"github.com/reqflow/requisition-service/internal/domain/entity"
	"github.com/reqflow/requisition-service/internal/domain/event"
)

// ReminderSweepConfig holds configuration for the reminder sweep
type ReminderSweepConfig struct {
	Interval     time.Duration
	StaleStepAge time.Duration
	BatchSize    int
}

// DefaultReminderSweepConfig returns default configuration
func DefaultReminderSweepConfig() ReminderSweepConfig {
	return ReminderSweepConfig{
		Interval:     time.Hour,
		StaleStepAge: 48 * time.Hour,
		BatchSize:    100,
	}
}

// ReminderSweep periodically finds approval steps that have sat PENDING
// beyond the configured age and nudges the responsible role: one
// NOTIFICATION_SENT audit entry plus one reminder event per stale step.
// Both sides are best-effort; a failed reminder is retried naturally on
// the next sweep.
type ReminderSweep struct {
	config ReminderSweepConfig

	stepRepo   port.StepRepository
	auditRepo  port.AuditRepository
	dispatcher dispatcher.Dispatcher
	logger     *zap.Logger

	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool

	// inFlight guards against overlapping sweeps when one run outlasts
	// the interval.
	inFlight      atomic.Bool
	remindersSent int64
	lastSweep     time.Time
}

// NewReminderSweep creates a new reminder sweep worker
func NewReminderSweep(
	config ReminderSweepConfig,
	stepRepo port.StepRepository,
	auditRepo port.AuditRepository,
	d dispatcher.Dispatcher,
	logger *zap.Logger,
) *ReminderSweep {
	return &ReminderSweep{
		config:     config,
		stepRepo:   stepRepo,
		auditRepo:  auditRepo,
		dispatcher: d,
		logger:     logger,
	}
}

// Start begins the sweep polling loop
func (w *ReminderSweep) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("reminder sweep already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("ReminderSweep started",
		zap.Duration("interval", w.config.Interval),
		zap.Duration("stale_step_age", w.config.StaleStepAge),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop()

	return nil
}

// Stop gracefully terminates the worker
func (w *ReminderSweep) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}

	w.isRunning = false
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}

	w.logger.Info("ReminderSweep stopped",
		zap.Int64("reminders_sent", atomic.LoadInt64(&w.remindersSent)))

	return nil
}

// Restart stops the sweep and starts it again with a new interval. Used
// when the sweep cadence is reconfigured at runtime.
func (w *ReminderSweep) Restart(ctx context.Context, interval time.Duration) error {
	if err := w.Stop(); err != nil {
		return err
	}

	w.mu.Lock()
	w.config.Interval = interval
	w.mu.Unlock()

	return w.Start(ctx)
}

// Name returns the worker name for identification
func (w *ReminderSweep) Name() string {
	return "ReminderSweep"
}

// pollLoop runs the main sweep loop in background
func (w *ReminderSweep) pollLoop() {
	w.mu.RLock()
	ticker := time.NewTicker(w.config.Interval)
	ctx := w.ctx
	w.mu.RUnlock()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Sweep loop context cancelled")
			return

		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over stale pending steps. A sweep still in flight
// from the previous tick wins; this call then becomes a no-op.
func (w *ReminderSweep) Sweep(ctx context.Context) {
	if !w.inFlight.CompareAndSwap(false, true) {
		w.logger.Warn("Previous sweep still running, skipping this tick")
		return
	}
	defer w.inFlight.Store(false)

	cutoff := time.Now().Add(-w.config.StaleStepAge)
	steps, err := w.stepRepo.ListStalePending(ctx, cutoff, w.config.BatchSize)
	if err != nil {
		w.logger.Error("Failed to list stale pending steps", zap.Error(err))
		return
	}

	for _, step := range steps {
		w.remind(ctx, step)
	}

	w.mu.Lock()
	w.lastSweep = time.Now()
	w.mu.Unlock()

	if len(steps) > 0 {
		w.logger.Info("Reminder sweep completed",
			zap.Int("stale_steps", len(steps)),
			zap.Time("cutoff", cutoff))
	}
}

// remind records one reminder for a single stale step
func (w *ReminderSweep) remind(ctx context.Context, step *entity.ApprovalStep) {
	metadata, err := json.Marshal(map[string]interface{}{
		"step_id":       step.ID,
		"step_number":   step.StepNumber,
		"required_role": step.RequiredRole.String(),
		"pending_since": step.CreatedAt,
	})
	if err != nil {
		w.logger.Error("Failed to encode reminder metadata",
			zap.Int64("step_id", step.ID), zap.Error(err))
		return
	}

	meta := string(metadata)
	entry := &entity.AuditTrailEntry{
		RequisitionID: step.RequisitionID,
		UserID:        "system",
		ChangeType:    entity.ChangeNotificationSent,
		Metadata:      &meta,
	}
	if err := w.auditRepo.Append(ctx, entry); err != nil {
		w.logger.Error("Failed to record reminder audit entry",
			zap.Int64("requisition_id", step.RequisitionID),
			zap.Int64("step_id", step.ID),
			zap.Error(err))
		return
	}

	payload := map[string]interface{}{
		event.KeyStepNumber: step.StepNumber,
		event.KeyNextRole:   step.RequiredRole.String(),
	}
	if step.AssignedUserID != nil {
		payload[event.KeyNextAssignee] = *step.AssignedUserID
	}

	w.dispatcher.DispatchAsync(ctx, event.New(event.TypeStepReminder, step.RequisitionID, payload))

	atomic.AddInt64(&w.remindersSent, 1)
}

// RemindersSent returns the number of reminders recorded since start
func (w *ReminderSweep) RemindersSent() int64 {
	return atomic.LoadInt64(&w.remindersSent)
}

// Verify interface compliance
var _ Worker = (*ReminderSweep)(nil)
