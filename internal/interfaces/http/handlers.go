package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/erp-workflow/internal/application/service"
	"github.com/garyjia/erp-workflow/internal/application/workflow"
	"github.com/garyjia/erp-workflow/internal/domain/apperror"
	"github.com/garyjia/erp-workflow/internal/domain/entity"
)

// Version is reported by the health check
var Version = "dev"

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine        workflow.Engine
	definitions   service.DefinitionService
	queries       service.QueryService
	notifications service.NotificationService
	health        HealthFunc
	logger        Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, logger Logger) *Handlers {
	return &Handlers{
		engine:        deps.Engine,
		definitions:   deps.Definitions,
		queries:       deps.Queries,
		notifications: deps.Notifications,
		health:        deps.Health,
		logger:        logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody carries a machine code and a human message
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Version    string      `json:"version"`
	Components interface{} `json:"components,omitempty"`
}

// SubmitBody is the request body of a document submission
type SubmitBody struct {
	Amount       *float64 `json:"amount"`
	WorkflowID   *int64   `json:"workflow_id"`
	TargetUserID *int64   `json:"target_user_id"`
	Comments     string   `json:"comments"`
}

// ActionBody is the request body of an approver decision
type ActionBody struct {
	Action       string `json:"action"`
	Comments     string `json:"comments"`
	TargetUserID *int64 `json:"target_user_id"`
}

// DelegateBody is the request body of a delegation
type DelegateBody struct {
	TargetUserID int64  `json:"target_user_id"`
	Comments     string `json:"comments"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	}
	status := http.StatusOK
	if h.health != nil {
		healthy, details := h.health(c.Request.Context())
		resp.Components = details
		if !healthy {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, resp)
}

// CreateDefinition handles POST /api/workflows
func (h *Handlers) CreateDefinition(c *gin.Context) {
	var in service.DefinitionInput
	if !h.bind(c, &in) {
		return
	}
	def, err := h.definitions.Create(c.Request.Context(), companyID(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, def)
}

// UpdateDefinition handles PUT /api/workflows/:id
func (h *Handlers) UpdateDefinition(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var in service.DefinitionInput
	if !h.bind(c, &in) {
		return
	}
	def, err := h.definitions.Update(c.Request.Context(), companyID(c), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, def)
}

// GetDefinition handles GET /api/workflows/:id
func (h *Handlers) GetDefinition(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	def, err := h.definitions.Get(c.Request.Context(), companyID(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, def)
}

// ListDefinitions handles GET /api/workflows
func (h *Handlers) ListDefinitions(c *gin.Context) {
	defs, err := h.definitions.List(c.Request.Context(), companyID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if defs == nil {
		defs = []*entity.WorkflowDefinition{}
	}
	h.ok(c, http.StatusOK, defs)
}

// Submit returns the handler of POST /api/<module>/<document>/:id/submit for kind
func (h *Handlers) Submit(kind entity.DocumentKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.pathID(c)
		if !ok {
			return
		}
		var body SubmitBody
		if !h.bindOptional(c, &body) {
			return
		}
		res, err := h.engine.Submit(c.Request.Context(), workflow.SubmitRequest{
			CompanyID:    companyID(c),
			Kind:         kind,
			DocumentID:   id,
			SubmittedBy:  userID(c),
			Amount:       body.Amount,
			WorkflowID:   body.WorkflowID,
			TargetUserID: body.TargetUserID,
			Comments:     body.Comments,
		})
		if err != nil {
			h.fail(c, err)
			return
		}
		h.ok(c, http.StatusOK, res)
	}
}

// ProcessAction handles POST /api/workflows/:id/action
func (h *Handlers) ProcessAction(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var body ActionBody
	if !h.bind(c, &body) {
		return
	}
	res, err := h.engine.ProcessAction(c.Request.Context(), workflow.ActionRequest{
		CompanyID:    companyID(c),
		InstanceID:   id,
		ActorID:      userID(c),
		Action:       strings.ToUpper(strings.TrimSpace(body.Action)),
		Comments:     body.Comments,
		TargetUserID: body.TargetUserID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, res)
}

// Delegate handles POST /api/workflows/:id/delegate
func (h *Handlers) Delegate(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var body DelegateBody
	if !h.bind(c, &body) {
		return
	}
	res, err := h.engine.Delegate(c.Request.Context(), workflow.DelegateRequest{
		CompanyID:    companyID(c),
		InstanceID:   id,
		ActorID:      userID(c),
		TargetUserID: body.TargetUserID,
		Comments:     body.Comments,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, res)
}

// PendingApprovals handles GET /api/workflows/approvals/pending
func (h *Handlers) PendingApprovals(c *gin.Context) {
	pending, err := h.queries.PendingForUser(c.Request.Context(), companyID(c), userID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, pending)
}

// ReviewInstance handles GET /api/workflows/approvals/instance/:id
func (h *Handlers) ReviewInstance(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	review, err := h.queries.Review(c.Request.Context(), companyID(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, review)
}

// ExportHistory handles GET /api/workflows/approvals/instance/:id/history.xlsx
func (h *Handlers) ExportHistory(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	// Buffered so a failed export still gets a JSON error instead of a truncated file.
	var buf bytes.Buffer
	if err := h.queries.ExportHistory(c.Request.Context(), companyID(c), id, &buf); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="workflow-%d-history.xlsx"`, id))
	c.Data(http.StatusOK, h.queries.HistoryContentType(), buf.Bytes())
}

// ListNotifications handles GET /api/workflows/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	unread, err := queryBool(c, "unread")
	if err != nil {
		h.fail(c, err)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.fail(c, apperror.Validation("limit must be a non-negative integer"))
			return
		}
	}
	list, err := h.notifications.ListForUser(c.Request.Context(), companyID(c), userID(c), unread, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, list)
}

// MarkNotificationRead handles POST /api/workflows/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), companyID(c), userID(c), id); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, gin.H{"id": id, "is_read": true})
}

func (h *Handlers) ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

// fail maps an application error onto the envelope; internal causes are logged, never returned
func (h *Handlers) fail(c *gin.Context, err error) {
	code := apperror.CodeOf(err)
	if code == apperror.CodeInternal {
		h.logger.Error("Request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"request_id", c.GetString(ctxRequestID),
			"error", err,
		)
	}
	c.JSON(apperror.HTTPStatus(code), Response{
		Success: false,
		Error:   &ErrorBody{Code: string(code), Message: apperror.PublicMessage(err)},
	})
}

func (h *Handlers) pathID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, apperror.Validation("invalid id %q", raw))
		return 0, false
	}
	return id, true
}

func (h *Handlers) bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.fail(c, apperror.Validation("invalid request body: %v", err))
		return false
	}
	return true
}

// bindOptional accepts an empty body
func (h *Handlers) bindOptional(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		h.fail(c, apperror.Validation("invalid request body: %v", err))
		return false
	}
	return true
}

func queryBool(c *gin.Context, name string) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperror.Validation("%s must be a boolean", name)
	}
	return v, nil
}

func userID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}

func companyID(c *gin.Context) int64 {
	return c.GetInt64(ctxCompanyID)
}
