package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/reqflow/requisition-service/internal/application/service"
	"github.com/reqflow/requisition-service/internal/application/workflow"
	"github.com/reqflow/requisition-service/internal/domain/apperror"
	"github.com/reqflow/requisition-service/internal/domain/entity"
)

// Actor headers set by the external auth boundary.
const (
	headerActorID   = "X-Actor-ID"
	headerActorRole = "X-Actor-Role"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	requisitionService service.RequisitionService
	stepService        service.StepService
	ruleService        service.RuleService
	auditService       service.AuditService
	engine             workflow.Engine
	logger             Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	requisitionService service.RequisitionService,
	stepService service.StepService,
	ruleService service.RuleService,
	auditService service.AuditService,
	engine workflow.Engine,
	logger Logger,
) *Handlers {
	return &Handlers{
		requisitionService: requisitionService,
		stepService:        stepService,
		ruleService:        ruleService,
		auditService:       auditService,
		engine:             engine,
		logger:             logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// CreateRequisitionRequest is the payload for creating a draft
type CreateRequisitionRequest struct {
	Title         string          `json:"title"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	Currency      string          `json:"currency"`
	Urgency       string          `json:"urgency"`
	Justification string          `json:"justification"`
	DepartmentID  int64           `json:"department_id"`
}

// UpdateRequisitionRequest is the payload for a partial draft edit
type UpdateRequisitionRequest struct {
	Title         *string          `json:"title"`
	Category      *string          `json:"category"`
	Description   *string          `json:"description"`
	EstimatedCost *decimal.Decimal `json:"estimated_cost"`
	Currency      *string          `json:"currency"`
	Urgency       *string          `json:"urgency"`
	Justification *string          `json:"justification"`
}

// RecordPaymentRequest is the payload for recording a payment
type RecordPaymentRequest struct {
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Date       time.Time       `json:"date"`
	Method     string          `json:"method"`
	Reference  string          `json:"reference"`
	Comment    *string         `json:"comment"`
}

// StepResolutionRequest is the payload for approving or rejecting a step.
// ApprovedCost is only honored on the final approval of the chain.
type StepResolutionRequest struct {
	Comment      *string          `json:"comment"`
	ApprovedCost *decimal.Decimal `json:"approved_cost"`
}

// RuleRequest is the payload for creating or updating an approval rule
type RuleRequest struct {
	MinAmount         decimal.Decimal  `json:"min_amount"`
	MaxAmount         *decimal.Decimal `json:"max_amount"`
	RequiredApprovers []string         `json:"required_approvers"`
	DepartmentID      *int64           `json:"department_id"`
}

// paginationQuery carries skip/take style query parameters
type paginationQuery struct {
	Skip int `form:"skip"`
	Take int `form:"take"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateRequisition handles POST /api/v1/requisitions
func (h *Handlers) CreateRequisition(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	var req CreateRequisitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	created, err := h.requisitionService.Create(c.Request.Context(), service.CreateRequisitionInput{
		Title:         req.Title,
		Category:      req.Category,
		Description:   req.Description,
		EstimatedCost: req.EstimatedCost,
		Currency:      req.Currency,
		Urgency:       entity.Urgency(req.Urgency),
		Justification: req.Justification,
	}, actor, req.DepartmentID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: created})
}

// ListRequisitions handles GET /api/v1/requisitions
func (h *Handlers) ListRequisitions(c *gin.Context) {
	limit, offset := listParams(c)

	requisitions, err := h.requisitionService.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: requisitions})
}

// GetRequisition handles GET /api/v1/requisitions/:id
func (h *Handlers) GetRequisition(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	requisition, err := h.requisitionService.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: requisition})
}

// UpdateRequisition handles PATCH /api/v1/requisitions/:id
func (h *Handlers) UpdateRequisition(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req UpdateRequisitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	var urgency *entity.Urgency
	if req.Urgency != nil {
		u := entity.Urgency(*req.Urgency)
		urgency = &u
	}

	updated, err := h.requisitionService.Update(c.Request.Context(), id, service.UpdateRequisitionInput{
		Title:         req.Title,
		Category:      req.Category,
		Description:   req.Description,
		EstimatedCost: req.EstimatedCost,
		Currency:      req.Currency,
		Urgency:       urgency,
		Justification: req.Justification,
	}, actor)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: updated})
}

// SubmitRequisition handles POST /api/v1/requisitions/:id/submit
func (h *Handlers) SubmitRequisition(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	result, err := h.engine.Submit(c.Request.Context(), id, actor)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// RecordPayment handles POST /api/v1/requisitions/:id/payment
func (h *Handlers) RecordPayment(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	requisition, err := h.engine.RecordPayment(c.Request.Context(), id, service.RecordPaymentInput{
		AmountPaid: req.AmountPaid,
		Date:       req.Date,
		Method:     req.Method,
		Reference:  req.Reference,
		Comment:    req.Comment,
	}, actor)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: requisition})
}

// CloseRequisition handles POST /api/v1/requisitions/:id/close
func (h *Handlers) CloseRequisition(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	requisition, err := h.engine.Close(c.Request.Context(), id, actor)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: requisition})
}

// ListSteps handles GET /api/v1/requisitions/:id/steps
func (h *Handlers) ListSteps(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	steps, err := h.stepService.ListSteps(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: steps})
}

// ApproveStep handles POST /api/v1/steps/:id/approve
func (h *Handlers) ApproveStep(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	// The approval comment is optional; so is the body itself.
	var req StepResolutionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "invalid request body", err)
			return
		}
	}

	result, err := h.engine.ApproveStep(c.Request.Context(), id, actor, req.Comment, req.ApprovedCost)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// RejectStep handles POST /api/v1/steps/:id/reject
func (h *Handlers) RejectStep(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	// A missing body yields a blank comment, which the engine refuses
	// with a business rule error.
	var req StepResolutionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "invalid request body", err)
			return
		}
	}

	var comment string
	if req.Comment != nil {
		comment = *req.Comment
	}

	result, err := h.engine.RejectStep(c.Request.Context(), id, actor, comment)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// CreateRule handles POST /api/v1/rules
func (h *Handlers) CreateRule(c *gin.Context) {
	if _, ok := h.requireActor(c); !ok {
		return
	}

	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	rule, err := h.ruleService.CreateRule(c.Request.Context(), toRuleInput(req))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: rule})
}

// ListRules handles GET /api/v1/rules
func (h *Handlers) ListRules(c *gin.Context) {
	rules, err := h.ruleService.ListRules(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rules})
}

// GetRule handles GET /api/v1/rules/:id
func (h *Handlers) GetRule(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	rule, err := h.ruleService.GetRule(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rule})
}

// UpdateRule handles PUT /api/v1/rules/:id
func (h *Handlers) UpdateRule(c *gin.Context) {
	if _, ok := h.requireActor(c); !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	rule, err := h.ruleService.UpdateRule(c.Request.Context(), id, toRuleInput(req))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rule})
}

// DeleteRule handles DELETE /api/v1/rules/:id
func (h *Handlers) DeleteRule(c *gin.Context) {
	if _, ok := h.requireActor(c); !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	if err := h.ruleService.DeleteRule(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// ListRequisitionAudit handles GET /api/v1/requisitions/:id/audit
func (h *Handlers) ListRequisitionAudit(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var page paginationQuery
	if err := c.ShouldBindQuery(&page); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}

	entries, err := h.auditService.ListByRequisition(c.Request.Context(), id, page.Skip, page.Take)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// QueryAudit handles GET /api/v1/audit with exactly one filter: user_id,
// change_type, or a from/to date range.
func (h *Handlers) QueryAudit(c *gin.Context) {
	var page paginationQuery
	if err := c.ShouldBindQuery(&page); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}

	ctx := c.Request.Context()

	switch {
	case c.Query("user_id") != "":
		entries, err := h.auditService.ListByUser(ctx, c.Query("user_id"), page.Skip, page.Take)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: entries})

	case c.Query("change_type") != "":
		entries, err := h.auditService.ListByChangeType(ctx, entity.ChangeType(c.Query("change_type")), page.Skip, page.Take)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: entries})

	case c.Query("from") != "" && c.Query("to") != "":
		from, err := time.Parse(time.RFC3339, c.Query("from"))
		if err != nil {
			h.badRequest(c, "invalid from timestamp", err)
			return
		}
		to, err := time.Parse(time.RFC3339, c.Query("to"))
		if err != nil {
			h.badRequest(c, "invalid to timestamp", err)
			return
		}
		entries, err := h.auditService.ListByDateRange(ctx, from, to, page.Skip, page.Take)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: entries})

	default:
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "one filter required: user_id, change_type, or from/to",
		})
	}
}

// requireActor extracts the actor identity header, failing the request
// when absent
func (h *Handlers) requireActor(c *gin.Context) (string, bool) {
	actor := c.GetHeader(headerActorID)
	if actor == "" {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "missing " + headerActorID + " header",
		})
		return "", false
	}
	return actor, true
}

// pathID parses the :id path parameter
func (h *Handlers) pathID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.logger.Error("Invalid path ID", "id", idStr)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid ID",
		})
		return 0, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, "error", err)
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

// writeError maps the error taxonomy onto HTTP status codes
func (h *Handlers) writeError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict), errors.Is(err, apperror.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, apperror.ErrBusinessRule):
		status = http.StatusUnprocessableEntity
	default:
		h.logger.Error("Unhandled error", "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "internal server error",
		})
		return
	}

	c.JSON(status, Response{Success: false, Error: err.Error()})
}

func listParams(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func toRuleInput(req RuleRequest) service.RuleInput {
	roles := make([]entity.Role, 0, len(req.RequiredApprovers))
	for _, r := range req.RequiredApprovers {
		roles = append(roles, entity.Role(r))
	}
	return service.RuleInput{
		MinAmount:         req.MinAmount,
		MaxAmount:         req.MaxAmount,
		RequiredApprovers: roles,
		DepartmentID:      req.DepartmentID,
	}
}
